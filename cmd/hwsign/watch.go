package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/hwsign/internal/interfaces/websocket/api"
)

var (
	historyAccount string

	watchCmd = &cobra.Command{
		Use:   "watch <flow-id>",
		Short: "follow a running signing flow",
		Long: "this command attaches to a flow started by another client and " +
			"prints its statuses until it terminates",
		Args: cobra.ExactArgs(1),
		RunE: watchFlow,
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "list the signing history of an account",
		RunE:  listHistory,
	}
)

func init() {
	historyCmd.Flags().StringVar(
		&historyAccount, "account", "",
		"reference of the account, defaults to the configured one",
	)
}

func watchFlow(_ *cobra.Command, args []string) error {
	conn, err := dial("/v1/flows/" + url.PathEscape(args[0]))
	if err != nil {
		return err
	}
	defer conn.Close()

	return printStatuses(conn)
}

func listHistory(_ *cobra.Command, _ []string) error {
	account := historyAccount
	if account == "" {
		state, err := getState()
		if err != nil {
			return err
		}
		account = state["account"]
	}
	if account == "" {
		return fmt.Errorf("missing account, use --account or `config set account`")
	}

	u, err := serverURL("http", "/v1/history", url.Values{"account": {account}})
	if err != nil {
		return err
	}
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, body)
	}

	var history []api.HistoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		return err
	}
	printJSON(history)
	return nil
}
