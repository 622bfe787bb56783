package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

const signatureLength = 65

// Signature is an ECDSA signature as returned by the device. V is kept as
// the device returns it, see RecoveryID to normalize it.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// NewSignatureFromBytes parses a 65 bytes r||s||v signature.
func NewSignatureFromBytes(buf []byte) (Signature, error) {
	if len(buf) != signatureLength {
		return Signature{}, fmt.Errorf(
			"invalid signature length, expected %d got %d", signatureLength, len(buf),
		)
	}
	var sig Signature
	copy(sig.R[:], buf[:32])
	copy(sig.S[:], buf[32:64])
	sig.V = buf[64]
	return sig, nil
}

// Bytes returns the r||s||v serialization of the signature.
func (s Signature) Bytes() []byte {
	buf := make([]byte, 0, signatureLength)
	buf = append(buf, s.R[:]...)
	buf = append(buf, s.S[:]...)
	return append(buf, s.V)
}

func (s Signature) Hex() string {
	return hexutil.Encode(s.Bytes())
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}

// RecoveryID returns the 0/1 recovery id encoded in V for a transaction of
// the given type and chain. Devices return V as a single byte, so for legacy
// EIP-155 transactions the chain offset is removed modulo 256.
func (s Signature) RecoveryID(chainID *big.Int, txType uint8) byte {
	if txType != types.LegacyTxType {
		if s.V >= 27 {
			return s.V - 27
		}
		return s.V
	}
	if chainID == nil || chainID.Sign() == 0 {
		return s.V - 27
	}
	return s.V - byte(chainID.Uint64()*2+35)
}

// SignedTransaction is a transaction assembled from the unsigned payload sent
// to the device and the signature it returned.
type SignedTransaction struct {
	RawTransaction []byte
	Signature      Signature
	Serialized     []byte
	Hash           common.Hash
}

// Transaction decodes the serialized signed transaction.
func (t *SignedTransaction) Transaction() (*types.Transaction, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(t.Serialized); err != nil {
		return nil, err
	}
	return tx, nil
}

// BroadcastArgs are the arguments of a broadcast request.
type BroadcastArgs struct {
	Signature      Signature
	RawTransaction []byte
}

// BroadcastResult is the receipt of a successful broadcast.
type BroadcastResult struct {
	TxHash  string
	Network string
}
