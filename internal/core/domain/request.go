package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
)

// SigningKind identifies the type of payload a signing request carries.
type SigningKind int

const (
	SigningKindTransaction SigningKind = iota
	SigningKindRawTransaction
	SigningKindTypedData
	SigningKindPersonalMessage
)

var (
	ErrRequestMissingPayload      = fmt.Errorf("missing payload for request kind")
	ErrRequestUnexpectedPayload   = fmt.Errorf("request carries a payload not matching its kind")
	ErrRequestMissingChainID      = fmt.Errorf("missing chain id for transaction")
	ErrRequestUnknownKind         = fmt.Errorf("unknown signing request kind")
	ErrRequestMissingAccountRef   = fmt.Errorf("missing account reference")
	ErrRequestEmptyMessage        = fmt.Errorf("message must not be empty")
	ErrRequestEmptyRawTransaction = fmt.Errorf("raw transaction must not be empty")

	signingKindNames = map[SigningKind]string{
		SigningKindTransaction:     "transaction",
		SigningKindRawTransaction:  "rawTransaction",
		SigningKindTypedData:       "typedData",
		SigningKindPersonalMessage: "personalMessage",
	}
)

func (k SigningKind) String() string {
	if name, ok := signingKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsTransaction returns whether the kind produces a transaction signature.
func (k SigningKind) IsTransaction() bool {
	return k == SigningKindTransaction || k == SigningKindRawTransaction
}

// ParseSigningKind is the inverse of SigningKind.String.
func ParseSigningKind(name string) (SigningKind, error) {
	for kind, n := range signingKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrRequestUnknownKind, name)
}

// TransactionPayload is an unsigned EVM transaction together with the id of
// the chain it is meant for.
type TransactionPayload struct {
	Tx      *types.Transaction
	ChainID *big.Int
}

// RawTransaction returns the unsigned serialization sent to the device.
func (p TransactionPayload) RawTransaction() ([]byte, error) {
	return EncodeUnsignedTransaction(p.Tx, p.ChainID)
}

// SigningRequest is the tagged union of everything the device can be asked to
// sign. Exactly one payload field is set, according to Kind.
// BroadcastRequested is honoured only for SigningKindTransaction.
type SigningRequest struct {
	Kind               SigningKind
	DerivationPath     string
	AccountRef         string
	BroadcastRequested bool

	Transaction    *TransactionPayload
	RawTransaction []byte
	TypedData      *apitypes.TypedData
	Message        []byte
}

func NewTransactionRequest(
	derivationPath, accountRef string, tx *types.Transaction, chainID *big.Int,
	broadcast bool,
) SigningRequest {
	return SigningRequest{
		Kind:               SigningKindTransaction,
		DerivationPath:     derivationPath,
		AccountRef:         accountRef,
		BroadcastRequested: broadcast,
		Transaction:        &TransactionPayload{Tx: tx, ChainID: chainID},
	}
}

func NewRawTransactionRequest(
	derivationPath, accountRef string, rawTx []byte,
) SigningRequest {
	return SigningRequest{
		Kind:           SigningKindRawTransaction,
		DerivationPath: derivationPath,
		AccountRef:     accountRef,
		RawTransaction: rawTx,
	}
}

func NewTypedDataRequest(
	derivationPath, accountRef string, typedData apitypes.TypedData,
) SigningRequest {
	return SigningRequest{
		Kind:           SigningKindTypedData,
		DerivationPath: derivationPath,
		AccountRef:     accountRef,
		TypedData:      &typedData,
	}
}

func NewPersonalMessageRequest(
	derivationPath, accountRef string, message []byte,
) SigningRequest {
	return SigningRequest{
		Kind:           SigningKindPersonalMessage,
		DerivationPath: derivationPath,
		AccountRef:     accountRef,
		Message:        message,
	}
}

// Validate makes sure the request is consistent with its kind and carries a
// well formed derivation path.
func (r SigningRequest) Validate() error {
	if _, err := path.ParseDerivationPath(r.DerivationPath); err != nil {
		return err
	}
	if r.AccountRef == "" {
		return ErrRequestMissingAccountRef
	}

	payloads := 0
	if r.Transaction != nil {
		payloads++
	}
	if r.RawTransaction != nil {
		payloads++
	}
	if r.TypedData != nil {
		payloads++
	}
	if r.Message != nil {
		payloads++
	}
	if payloads > 1 {
		return ErrRequestUnexpectedPayload
	}

	switch r.Kind {
	case SigningKindTransaction:
		if r.Transaction == nil || r.Transaction.Tx == nil {
			return ErrRequestMissingPayload
		}
		if r.Transaction.ChainID == nil || r.Transaction.ChainID.Sign() <= 0 {
			return ErrRequestMissingChainID
		}
	case SigningKindRawTransaction:
		if r.RawTransaction == nil {
			return ErrRequestMissingPayload
		}
		if len(r.RawTransaction) == 0 {
			return ErrRequestEmptyRawTransaction
		}
	case SigningKindTypedData:
		if r.TypedData == nil {
			return ErrRequestMissingPayload
		}
	case SigningKindPersonalMessage:
		if r.Message == nil {
			return ErrRequestMissingPayload
		}
		if len(r.Message) == 0 {
			return ErrRequestEmptyMessage
		}
	default:
		return ErrRequestUnknownKind
	}
	return nil
}

// RawTransactionBytes returns the unsigned transaction bytes for transaction
// kinds, nil otherwise.
func (r SigningRequest) RawTransactionBytes() ([]byte, error) {
	switch r.Kind {
	case SigningKindTransaction:
		return r.Transaction.RawTransaction()
	case SigningKindRawTransaction:
		return r.RawTransaction, nil
	default:
		return nil, nil
	}
}
