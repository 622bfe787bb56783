package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const weiExponent = -18

const (
	TrackingEventStarted   = "started"
	TrackingEventCompleted = "completed"
)

// TrackingPayload is the anonymous context reported to tracking sinks about a
// signing flow.
type TrackingPayload struct {
	FlowID      string
	Kind        SigningKind
	DeviceModel string
	Blockchain  string
	AccountRef  string
	ChainID     string
	To          string
	Value       decimal.Decimal
	TxType      int
	PrimaryType string
	DomainName  string
}

// NewTrackingPayload extracts the tracking context of the given request. Any
// detail that cannot be decoded from the payload is left empty.
func NewTrackingPayload(
	flowID string, req SigningRequest, session SessionContext,
) TrackingPayload {
	payload := TrackingPayload{
		FlowID:      flowID,
		Kind:        req.Kind,
		DeviceModel: session.DeviceModel(),
		AccountRef:  req.AccountRef,
		TxType:      -1,
	}
	if session.SelectedAccount != nil {
		payload.Blockchain = session.SelectedAccount.Blockchain
	}

	switch req.Kind {
	case SigningKindTransaction:
		if req.Transaction != nil && req.Transaction.Tx != nil {
			tx := req.Transaction.Tx
			payload.fillTx(
				int(tx.Type()), req.Transaction.ChainID, tx.To(), tx.Value(),
			)
		}
	case SigningKindRawTransaction:
		if tx, chainID, err := DecodeUnsignedTransaction(req.RawTransaction); err == nil {
			payload.fillTx(int(tx.Type()), chainID, tx.To(), tx.Value())
		}
	case SigningKindTypedData:
		if req.TypedData != nil {
			payload.PrimaryType = req.TypedData.PrimaryType
			payload.DomainName = req.TypedData.Domain.Name
			if cid := req.TypedData.Domain.ChainId; cid != nil {
				payload.ChainID = (*big.Int)(cid).String()
			}
		}
	}
	return payload
}

func (p *TrackingPayload) fillTx(
	txType int, chainID *big.Int, to *common.Address, value *big.Int,
) {
	p.TxType = txType
	if chainID != nil {
		p.ChainID = chainID.String()
	}
	if to != nil {
		p.To = to.Hex()
	}
	if value != nil {
		p.Value = decimal.NewFromBigInt(value, weiExponent)
	}
}

// TrackingEvent is the flat serializable form of a tracking notification
// published by the message based sinks.
type TrackingEvent struct {
	Type        string `json:"type"`
	FlowID      string `json:"flowId"`
	Kind        string `json:"kind"`
	DeviceModel string `json:"deviceModel,omitempty"`
	Blockchain  string `json:"blockchain,omitempty"`
	AccountRef  string `json:"accountRef,omitempty"`
	ChainID     string `json:"chainId,omitempty"`
	To          string `json:"to,omitempty"`
	Value       string `json:"value,omitempty"`
	TxType      int    `json:"txType"`
	PrimaryType string `json:"primaryType,omitempty"`
	DomainName  string `json:"domainName,omitempty"`
	Signature   string `json:"signature,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Network     string `json:"network,omitempty"`
	Timestamp   int64  `json:"timestamp"`
}

func NewStartedEvent(payload TrackingPayload) TrackingEvent {
	return newTrackingEvent(TrackingEventStarted, payload)
}

func NewCompletedEvent(
	payload TrackingPayload, result SigningResult,
) TrackingEvent {
	event := newTrackingEvent(TrackingEventCompleted, payload)
	event.Signature = result.Signature.Hex()
	if result.SignedTransaction != nil {
		event.TxHash = result.SignedTransaction.Hash.Hex()
	}
	if result.Broadcast != nil {
		event.TxHash = result.Broadcast.TxHash
		event.Network = result.Broadcast.Network
	}
	return event
}

func newTrackingEvent(typ string, p TrackingPayload) TrackingEvent {
	event := TrackingEvent{
		Type:        typ,
		FlowID:      p.FlowID,
		Kind:        p.Kind.String(),
		DeviceModel: p.DeviceModel,
		Blockchain:  p.Blockchain,
		AccountRef:  p.AccountRef,
		ChainID:     p.ChainID,
		To:          p.To,
		TxType:      p.TxType,
		PrimaryType: p.PrimaryType,
		DomainName:  p.DomainName,
		Timestamp:   time.Now().Unix(),
	}
	if p.TxType >= 0 {
		event.Value = p.Value.String()
	}
	return event
}
