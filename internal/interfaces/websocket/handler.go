package websocket_interface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/application"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/interfaces/websocket/api"
)

const (
	requestReadTimeout = 30 * time.Second
	writeTimeout       = 10 * time.Second
)

type handler struct {
	svc      *application.SigningService
	upgrader websocket.Upgrader
	closed   <-chan struct{}

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func newHandler(
	svc *application.SigningService, closed <-chan struct{},
) *handler {
	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("websocket handler: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("websocket handler: %s", format)
		log.WithError(err).Warnf(format, a...)
	}
	return &handler{
		svc: svc,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		closed: closed,
		log:    logFn,
		warn:   warnFn,
	}
}

func (h *handler) router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sign", h.sign)
	mux.HandleFunc("GET /v1/flows/{id}", h.watchFlow)
	mux.HandleFunc("GET /v1/history", h.history)
	mux.HandleFunc("GET /v1/records/{id}", h.record)
	return mux
}

// sign reads one SignRequest from the upgraded connection, starts the flow
// and streams its statuses until the terminal one.
func (h *handler) sign(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.warn(err, "failed to upgrade connection")
		return
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(requestReadTimeout))
	var msg api.SignRequest
	if err := conn.ReadJSON(&msg); err != nil {
		h.rejectRequest(conn, msg, fmt.Errorf("%w: %s", api.ErrInvalidRequest, err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	req, session, err := msg.ToDomain()
	if err != nil {
		h.rejectRequest(conn, msg, err)
		return
	}

	flow, err := h.svc.Sign(r.Context(), req, session)
	if err != nil {
		h.rejectRequest(conn, msg, err)
		return
	}
	h.log("client %s started flow %s", r.RemoteAddr, flow.ID())

	h.streamFlow(conn, flow)
}

// watchFlow attaches the client to an existing flow.
func (h *handler) watchFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := h.svc.GetFlow(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.warn(err, "failed to upgrade connection")
		return
	}
	defer conn.Close()

	h.log("client %s attached to flow %s", r.RemoteAddr, flow.ID())
	h.streamFlow(conn, flow)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	accountRef := r.URL.Query().Get("account")
	if accountRef == "" {
		http.Error(w, "missing account", http.StatusBadRequest)
		return
	}

	records, err := h.svc.ListSigningHistory(r.Context(), accountRef)
	if err != nil {
		h.warn(err, "failed to list history of account %s", accountRef)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	history := make([]api.HistoryRecord, 0, len(records))
	for _, record := range records {
		history = append(history, api.NewHistoryRecord(record))
	}
	writeJSON(w, history)
}

func (h *handler) record(w http.ResponseWriter, r *http.Request) {
	record, err := h.svc.GetSigningRecord(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSigningRecordNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, api.NewHistoryRecord(*record))
}

func (h *handler) streamFlow(conn *websocket.Conn, flow *application.SignFlow) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.listenClient(conn, flow, cancel)

	var last api.StatusMessage
	statuses := flow.Subscribe(ctx)
	for {
		select {
		case <-h.closed:
			h.closeConn(conn, websocket.CloseGoingAway, "server shutdown")
			return
		case status, ok := <-statuses:
			if !ok {
				if last.IsTerminal() {
					h.closeConn(conn, websocket.CloseNormalClosure, "")
				} else {
					h.closeConn(
						conn, websocket.CloseNormalClosure,
						application.ErrSignFlowCancelled.Error(),
					)
				}
				return
			}
			last = api.NewStatusMessage(status)
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(last); err != nil {
				h.warn(err, "failed to send status of flow %s", flow.ID())
				return
			}
		}
	}
}

// listenClient handles cancel requests. Leaving the connection unsubscribes
// the client from the flow.
func (h *handler) listenClient(
	conn *websocket.Conn, flow *application.SignFlow, unsubscribe func(),
) {
	defer unsubscribe()

	for {
		var msg api.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Action == api.ActionCancel {
			h.log("flow %s cancelled by client", flow.ID())
			flow.Cancel()
			return
		}
	}
}

func (h *handler) rejectRequest(
	conn *websocket.Conn, msg api.SignRequest, err error,
) {
	h.log("rejected request: %s", err)

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(api.StatusMessage{
		Kind:  msg.Kind,
		State: domain.SignFlowError.String(),
		Error: api.NewErrorMsg(err),
	}); err != nil {
		return
	}
	h.closeConn(conn, websocket.CloseNormalClosure, "")
}

func (h *handler) closeConn(conn *websocket.Conn, code int, reason string) {
	conn.WriteControl(
		websocket.CloseMessage, websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeTimeout),
	)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
