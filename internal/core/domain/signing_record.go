package domain

import (
	"errors"
	"time"
)

const (
	SigningOutcomeSuccess SigningOutcome = iota
	SigningOutcomeError
	SigningOutcomeCancelled
)

var (
	outcomeString = map[SigningOutcome]string{
		SigningOutcomeSuccess:   "success",
		SigningOutcomeError:     "error",
		SigningOutcomeCancelled: "cancelled",
	}
)

type SigningOutcome int

func (o SigningOutcome) String() string {
	return outcomeString[o]
}

// SigningRecord is the history entry of a signing flow that reached a
// terminal state.
type SigningRecord struct {
	FlowID          string
	Kind            SigningKind
	DeviceSessionID string
	DeviceModel     string
	AccountRef      string
	AccountAddress  string
	Blockchain      string
	DerivationPath  string
	Broadcast       bool
	Outcome         SigningOutcome
	ErrorKind       string
	ErrorMessage    string
	Signature       string
	TxHash          string
	StartedAt       int64
	CompletedAt     int64
}

// NewSigningRecord returns a record for a flow started now.
func NewSigningRecord(
	flowID string, req SigningRequest, session SessionContext,
) *SigningRecord {
	record := &SigningRecord{
		FlowID:          flowID,
		Kind:            req.Kind,
		DeviceSessionID: session.DeviceSessionID,
		DeviceModel:     session.DeviceModel(),
		AccountRef:      req.AccountRef,
		DerivationPath:  req.DerivationPath,
		Broadcast:       req.Kind == SigningKindTransaction && req.BroadcastRequested,
		StartedAt:       time.Now().Unix(),
	}
	if session.SelectedAccount != nil {
		record.AccountAddress = session.SelectedAccount.Address
		record.Blockchain = session.SelectedAccount.Blockchain
	}
	return record
}

// Complete fills the record with the outcome of the given terminal status.
func (r *SigningRecord) Complete(status SignFlowStatus) {
	r.CompletedAt = time.Now().Unix()

	switch status.State {
	case SignFlowSuccess:
		r.Outcome = SigningOutcomeSuccess
		if res := status.Result; res != nil {
			r.Signature = res.Signature.Hex()
			if res.Broadcast != nil {
				r.TxHash = res.Broadcast.TxHash
			} else if res.SignedTransaction != nil {
				r.TxHash = res.SignedTransaction.Hash.Hex()
			}
		}
	case SignFlowError:
		r.Outcome = SigningOutcomeError
		r.ErrorKind = ErrorKind(status.Err)
		if status.Err != nil {
			r.ErrorMessage = status.Err.Error()
		}
		var broadcastErr *BroadcastTransactionError
		if errors.As(status.Err, &broadcastErr) {
			r.Signature = broadcastErr.Signature.Hex()
		}
	}
}

// Cancel marks the record as cancelled by the caller.
func (r *SigningRecord) Cancel() {
	r.CompletedAt = time.Now().Unix()
	r.Outcome = SigningOutcomeCancelled
}

// IsSuccess returns whether the flow produced a signature.
func (r *SigningRecord) IsSuccess() bool {
	return r.Outcome == SigningOutcomeSuccess
}
