package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/vulpemventures/hwsign/internal/interfaces/websocket/api"
)

var colorRed = string("\033[31m")

func initialState() map[string]string {
	return map[string]string{
		"server":  "localhost:18100",
		"session": "",
		"device":  "",
		"account": "",
		"address": "",
	}
}

func serverURL(scheme, route string, query url.Values) (string, error) {
	state, err := getState()
	if err != nil {
		return "", err
	}
	address := state["server"]
	if address == "" {
		return "", fmt.Errorf("set server with `config set server`")
	}

	u := url.URL{Scheme: scheme, Host: address, Path: route}
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String(), nil
}

func dial(route string) (*websocket.Conn, error) {
	u, err := serverURL("ws", route, nil)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%s: %s", err, resp.Status)
		}
		return nil, err
	}
	return conn, nil
}

// printStatuses prints every status received on conn until the server closes
// it. An interrupt asks the daemon to cancel the flow.
func printStatuses(conn *websocket.Conn) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		if _, ok := <-sigChan; ok {
			conn.WriteJSON(api.ClientMessage{
				Action: api.ActionCancel,
			})
		}
	}()

	var last api.StatusMessage
	for {
		var status api.StatusMessage
		if err := conn.ReadJSON(&status); err != nil {
			closeErr, ok := err.(*websocket.CloseError)
			if !ok {
				return err
			}
			if !last.IsTerminal() && closeErr.Text != "" {
				return fmt.Errorf("%s", closeErr.Text)
			}
			if last.Error != nil {
				return fmt.Errorf("%s: %s", last.Error.Kind, last.Error.Message)
			}
			return nil
		}
		last = status
		printJSON(status)
	}
}

func getState() (map[string]string, error) {
	file, err := os.ReadFile(statePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := writeState(initialState()); err != nil {
			return nil, err
		}
		return initialState(), nil
	}

	data := map[string]string{}
	json.Unmarshal(file, &data)
	return data, nil
}

func setState(partialState map[string]string) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range partialState {
		state[key] = value
	}
	return writeState(state)
}

func writeState(state map[string]string) error {
	dir := filepath.Dir(statePath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		err = os.MkdirAll(dir, 0755)
		if err != nil {
			return fmt.Errorf("failed to create directory: %v", err)
		}
	}

	buf, _ := json.MarshalIndent(state, "", "  ")
	if err := os.WriteFile(statePath, buf, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}

	return nil
}

func printJSON(v interface{}) {
	buf, _ := json.MarshalIndent(v, "", "   ")
	fmt.Println(string(buf))
}

func printErr(err error) {
	msg := fmt.Sprintf("%s%s", colorRed, capitalize(err.Error()))
	fmt.Fprintln(os.Stderr, msg)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	ss := strings.ToUpper(s[0:1])
	ss += s[1:]
	return ss
}

func formatVersion() string {
	return fmt.Sprintf(
		"\nVersion: %s\nCommit: %s\nDate: %s", version, commit, date,
	)
}
