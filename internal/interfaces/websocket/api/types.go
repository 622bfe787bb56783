// Package api holds the JSON messages exchanged with the daemon WebSocket
// interface.
package api

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vulpemventures/hwsign/internal/core/application"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// ActionCancel is the only message a client can send once the flow started.
const ActionCancel = "cancel"

var ErrInvalidRequest = fmt.Errorf("invalid sign request")

type DeviceMsg struct {
	ID    string `json:"id"`
	Model string `json:"model,omitempty"`
	Name  string `json:"name,omitempty"`
}

type AccountMsg struct {
	Ref        string `json:"ref"`
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
}

type SessionMsg struct {
	DeviceSessionID string      `json:"deviceSessionId"`
	Device          *DeviceMsg  `json:"device,omitempty"`
	Account         *AccountMsg `json:"account,omitempty"`
}

// SignRequest is the first and only JSON message a client sends to start a
// flow. Binary payloads are 0x prefixed hex strings, Transaction being the
// unsigned serialization of the tx.
type SignRequest struct {
	Kind           string              `json:"kind"`
	DerivationPath string              `json:"derivationPath"`
	AccountRef     string              `json:"accountRef"`
	Broadcast      bool                `json:"broadcast,omitempty"`
	Transaction    string              `json:"transaction,omitempty"`
	RawTransaction string              `json:"rawTransaction,omitempty"`
	TypedData      *apitypes.TypedData `json:"typedData,omitempty"`
	Message        string              `json:"message,omitempty"`
	Session        SessionMsg          `json:"session"`
}

// ToDomain returns the signing request and session described by the message.
func (r SignRequest) ToDomain() (domain.SigningRequest, domain.SessionContext, error) {
	session := r.Session.toDomain()

	kind, err := domain.ParseSigningKind(r.Kind)
	if err != nil {
		return domain.SigningRequest{}, session, err
	}

	var req domain.SigningRequest
	switch kind {
	case domain.SigningKindTransaction:
		raw, err := decodeHex("transaction", r.Transaction)
		if err != nil {
			return req, session, err
		}
		tx, chainID, err := domain.DecodeUnsignedTransaction(raw)
		if err != nil {
			return req, session, fmt.Errorf("%w: %s", ErrInvalidRequest, err)
		}
		req = domain.NewTransactionRequest(
			r.DerivationPath, r.AccountRef, tx, chainID, r.Broadcast,
		)
	case domain.SigningKindRawTransaction:
		raw, err := decodeHex("rawTransaction", r.RawTransaction)
		if err != nil {
			return req, session, err
		}
		req = domain.NewRawTransactionRequest(r.DerivationPath, r.AccountRef, raw)
	case domain.SigningKindTypedData:
		if r.TypedData == nil {
			return req, session, fmt.Errorf("%w: missing typedData", ErrInvalidRequest)
		}
		req = domain.NewTypedDataRequest(r.DerivationPath, r.AccountRef, *r.TypedData)
	case domain.SigningKindPersonalMessage:
		msg, err := decodeHex("message", r.Message)
		if err != nil {
			return req, session, err
		}
		req = domain.NewPersonalMessageRequest(r.DerivationPath, r.AccountRef, msg)
	}
	return req, session, nil
}

func (s SessionMsg) toDomain() domain.SessionContext {
	session := domain.SessionContext{DeviceSessionID: s.DeviceSessionID}
	if s.Device != nil {
		session.ConnectedDevice = &domain.DeviceInfo{
			ID: s.Device.ID, Model: s.Device.Model, Name: s.Device.Name,
		}
	}
	if s.Account != nil {
		session.SelectedAccount = &domain.Account{
			Ref: s.Account.Ref, Address: s.Account.Address,
			Blockchain: s.Account.Blockchain,
		}
	}
	return session
}

// ClientMessage is sent by the client while a flow is running.
type ClientMessage struct {
	Action string `json:"action"`
}

// ResultMsg is the outcome of a successful flow. It is also attached to a
// BroadcastTransactionError, in which case TxHash is the hash of the signed
// transaction that failed to be broadcast.
type ResultMsg struct {
	Signature         string `json:"signature"`
	SignedTransaction string `json:"signedTransaction,omitempty"`
	TxHash            string `json:"txHash,omitempty"`
	Network           string `json:"network,omitempty"`
}

type ErrorMsg struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusMessage is the JSON form of a signing flow status.
type StatusMessage struct {
	FlowID      string     `json:"flowId"`
	Kind        string     `json:"kind"`
	State       string     `json:"state"`
	Message     string     `json:"message,omitempty"`
	Interaction string     `json:"interaction,omitempty"`
	Result      *ResultMsg `json:"result,omitempty"`
	Error       *ErrorMsg  `json:"error,omitempty"`
}

func NewStatusMessage(status domain.SignFlowStatus) StatusMessage {
	msg := StatusMessage{
		FlowID:      status.FlowID,
		Kind:        status.Kind.String(),
		State:       status.State.String(),
		Message:     status.Message,
		Interaction: string(status.Interaction),
	}
	if res := status.Result; res != nil {
		msg.Result = newResultMsg(res.Signature, res.SignedTransaction)
		if b := res.Broadcast; b != nil {
			msg.Result.TxHash = b.TxHash
			msg.Result.Network = b.Network
		}
	}
	if status.Err != nil {
		msg.Error = NewErrorMsg(status.Err)

		// The transaction is signed even if it couldn't be broadcast, the
		// client gets it to retry on its own.
		var broadcastErr *domain.BroadcastTransactionError
		if errors.As(status.Err, &broadcastErr) {
			msg.Result = newResultMsg(
				broadcastErr.Signature, broadcastErr.SignedTransaction,
			)
		}
	}
	return msg
}

func newResultMsg(sig domain.Signature, tx *domain.SignedTransaction) *ResultMsg {
	res := &ResultMsg{Signature: sig.Hex()}
	if tx != nil {
		res.SignedTransaction = hexutil.Encode(tx.Serialized)
		res.TxHash = tx.Hash.Hex()
	}
	return res
}

func NewErrorMsg(err error) *ErrorMsg {
	return &ErrorMsg{Kind: domain.ErrorKind(err), Message: err.Error()}
}

// IsTerminal returns whether no other status follows this one.
func (m StatusMessage) IsTerminal() bool {
	return m.State == domain.SignFlowSuccess.String() ||
		m.State == domain.SignFlowError.String()
}

type HistoryRecord struct {
	FlowID          string `json:"flowId"`
	Kind            string `json:"kind"`
	DeviceSessionID string `json:"deviceSessionId"`
	DeviceModel     string `json:"deviceModel,omitempty"`
	AccountRef      string `json:"accountRef"`
	AccountAddress  string `json:"accountAddress"`
	Blockchain      string `json:"blockchain,omitempty"`
	DerivationPath  string `json:"derivationPath"`
	Broadcast       bool   `json:"broadcast"`
	Outcome         string `json:"outcome"`
	ErrorKind       string `json:"errorKind,omitempty"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
	Signature       string `json:"signature,omitempty"`
	TxHash          string `json:"txHash,omitempty"`
	StartedAt       int64  `json:"startedAt"`
	CompletedAt     int64  `json:"completedAt"`
}

func NewHistoryRecord(r application.SigningRecordInfo) HistoryRecord {
	return HistoryRecord{
		FlowID:          r.FlowID,
		Kind:            r.Kind.String(),
		DeviceSessionID: r.DeviceSessionID,
		DeviceModel:     r.DeviceModel,
		AccountRef:      r.AccountRef,
		AccountAddress:  r.AccountAddress,
		Blockchain:      r.Blockchain,
		DerivationPath:  r.DerivationPath,
		Broadcast:       r.Broadcast,
		Outcome:         r.Outcome.String(),
		ErrorKind:       r.ErrorKind,
		ErrorMessage:    r.ErrorMessage,
		Signature:       r.Signature,
		TxHash:          r.TxHash,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
}

func decodeHex(field, str string) ([]byte, error) {
	if str == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidRequest, field)
	}
	buf, err := hexutil.Decode(str)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrInvalidRequest, field, err)
	}
	return buf, nil
}
