package domain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	ErrUnsupportedTxType  = fmt.Errorf("unsupported transaction type")
	ErrMalformedRawTx     = fmt.Errorf("malformed unsigned transaction")
	ErrMissingTransaction = fmt.Errorf("missing transaction")
)

type unsignedLegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *common.Address `rlp:"nil"`
	Value    *big.Int
	Data     []byte
	ChainID  *big.Int `rlp:"optional"`
	Zero1    *big.Int `rlp:"optional"`
	Zero2    *big.Int `rlp:"optional"`
}

type unsignedAccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList
}

type unsignedDynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         *common.Address `rlp:"nil"`
	Value      *big.Int
	Data       []byte
	AccessList types.AccessList
}

// EncodeUnsignedTransaction returns the unsigned serialization of tx that is
// sent to the device: the EIP-155 RLP list for legacy transactions, the typed
// envelope without signature values otherwise.
func EncodeUnsignedTransaction(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	if tx == nil {
		return nil, ErrMissingTransaction
	}

	switch tx.Type() {
	case types.LegacyTxType:
		if chainID == nil || chainID.Sign() == 0 {
			return rlp.EncodeToBytes([]interface{}{
				tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(),
			})
		}
		return rlp.EncodeToBytes([]interface{}{
			tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(),
			chainID, big.NewInt(0), big.NewInt(0),
		})
	case types.AccessListTxType:
		payload, err := rlp.EncodeToBytes(unsignedAccessListTx{
			ChainID:    txChainID(tx, chainID),
			Nonce:      tx.Nonce(),
			GasPrice:   tx.GasPrice(),
			Gas:        tx.Gas(),
			To:         tx.To(),
			Value:      tx.Value(),
			Data:       tx.Data(),
			AccessList: tx.AccessList(),
		})
		if err != nil {
			return nil, err
		}
		return append([]byte{types.AccessListTxType}, payload...), nil
	case types.DynamicFeeTxType:
		payload, err := rlp.EncodeToBytes(unsignedDynamicFeeTx{
			ChainID:    txChainID(tx, chainID),
			Nonce:      tx.Nonce(),
			GasTipCap:  tx.GasTipCap(),
			GasFeeCap:  tx.GasFeeCap(),
			Gas:        tx.Gas(),
			To:         tx.To(),
			Value:      tx.Value(),
			Data:       tx.Data(),
			AccessList: tx.AccessList(),
		})
		if err != nil {
			return nil, err
		}
		return append([]byte{types.DynamicFeeTxType}, payload...), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedTxType, tx.Type())
	}
}

// DecodeUnsignedTransaction is the inverse of EncodeUnsignedTransaction. The
// returned chain id is nil for pre EIP-155 legacy transactions.
func DecodeUnsignedTransaction(raw []byte) (*types.Transaction, *big.Int, error) {
	if len(raw) == 0 {
		return nil, nil, ErrMalformedRawTx
	}

	if raw[0] >= 0xc0 {
		var ltx unsignedLegacyTx
		if err := rlp.DecodeBytes(raw, &ltx); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedRawTx, err)
		}
		var chainID *big.Int
		if ltx.ChainID != nil && ltx.ChainID.Sign() > 0 {
			chainID = ltx.ChainID
		}
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    ltx.Nonce,
			GasPrice: ltx.GasPrice,
			Gas:      ltx.Gas,
			To:       ltx.To,
			Value:    ltx.Value,
			Data:     ltx.Data,
		})
		return tx, chainID, nil
	}

	switch raw[0] {
	case types.AccessListTxType:
		var atx unsignedAccessListTx
		if err := rlp.DecodeBytes(raw[1:], &atx); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedRawTx, err)
		}
		tx := types.NewTx(&types.AccessListTx{
			ChainID:    atx.ChainID,
			Nonce:      atx.Nonce,
			GasPrice:   atx.GasPrice,
			Gas:        atx.Gas,
			To:         atx.To,
			Value:      atx.Value,
			Data:       atx.Data,
			AccessList: atx.AccessList,
		})
		return tx, atx.ChainID, nil
	case types.DynamicFeeTxType:
		var dtx unsignedDynamicFeeTx
		if err := rlp.DecodeBytes(raw[1:], &dtx); err != nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrMalformedRawTx, err)
		}
		tx := types.NewTx(&types.DynamicFeeTx{
			ChainID:    dtx.ChainID,
			Nonce:      dtx.Nonce,
			GasTipCap:  dtx.GasTipCap,
			GasFeeCap:  dtx.GasFeeCap,
			Gas:        dtx.Gas,
			To:         dtx.To,
			Value:      dtx.Value,
			Data:       dtx.Data,
			AccessList: dtx.AccessList,
		})
		return tx, dtx.ChainID, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedTxType, raw[0])
	}
}

// AssembleSignedTransaction combines the unsigned transaction with the
// signature returned by the device into a serialized signed transaction.
func AssembleSignedTransaction(raw []byte, sig Signature) (*SignedTransaction, error) {
	tx, chainID, err := DecodeUnsignedTransaction(raw)
	if err != nil {
		return nil, err
	}

	var signer types.Signer = types.HomesteadSigner{}
	if chainID != nil {
		signer = types.LatestSignerForChainID(chainID)
	}

	normalized := sig
	normalized.V = sig.RecoveryID(chainID, tx.Type())
	if normalized.V > 1 {
		return nil, fmt.Errorf("invalid signature recovery id %d", normalized.V)
	}

	signedTx, err := tx.WithSignature(signer, normalized.Bytes())
	if err != nil {
		return nil, err
	}
	serialized, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, err
	}

	return &SignedTransaction{
		RawTransaction: raw,
		Signature:      sig,
		Serialized:     serialized,
		Hash:           signedTx.Hash(),
	}, nil
}

func txChainID(tx *types.Transaction, chainID *big.Int) *big.Int {
	if chainID != nil {
		return chainID
	}
	return tx.ChainId()
}
