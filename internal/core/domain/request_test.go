package domain_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

const (
	testPath       = "m/44'/60'/0'/0/0"
	testAccountRef = "account-1"
)

func TestValidateSigningRequest(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		requests := []domain.SigningRequest{
			domain.NewTransactionRequest(testPath, testAccountRef, newLegacyTx(), big.NewInt(1), true),
			domain.NewRawTransactionRequest(testPath, testAccountRef, []byte{0xc0}),
			domain.NewTypedDataRequest(testPath, testAccountRef, apitypes.TypedData{PrimaryType: "Mail"}),
			domain.NewPersonalMessageRequest(testPath, testAccountRef, []byte("hello")),
		}
		for _, req := range requests {
			require.NoError(t, req.Validate(), req.Kind.String())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name        string
			req         domain.SigningRequest
			expectedErr error
		}{
			{
				name:        "missing account",
				req:         domain.NewPersonalMessageRequest(testPath, "", []byte("hello")),
				expectedErr: domain.ErrRequestMissingAccountRef,
			},
			{
				name:        "missing chain id",
				req:         domain.NewTransactionRequest(testPath, testAccountRef, newLegacyTx(), nil, false),
				expectedErr: domain.ErrRequestMissingChainID,
			},
			{
				name:        "missing tx",
				req:         domain.NewTransactionRequest(testPath, testAccountRef, nil, big.NewInt(1), false),
				expectedErr: domain.ErrRequestMissingPayload,
			},
			{
				name:        "empty raw tx",
				req:         domain.NewRawTransactionRequest(testPath, testAccountRef, []byte{}),
				expectedErr: domain.ErrRequestEmptyRawTransaction,
			},
			{
				name:        "empty message",
				req:         domain.NewPersonalMessageRequest(testPath, testAccountRef, []byte{}),
				expectedErr: domain.ErrRequestEmptyMessage,
			},
			{
				name: "payload mismatch",
				req: domain.SigningRequest{
					Kind:           domain.SigningKindTypedData,
					DerivationPath: testPath,
					AccountRef:     testAccountRef,
					Message:        []byte("hello"),
				},
				expectedErr: domain.ErrRequestMissingPayload,
			},
			{
				name: "multiple payloads",
				req: domain.SigningRequest{
					Kind:           domain.SigningKindPersonalMessage,
					DerivationPath: testPath,
					AccountRef:     testAccountRef,
					Message:        []byte("hello"),
					RawTransaction: []byte{0xc0},
				},
				expectedErr: domain.ErrRequestUnexpectedPayload,
			},
			{
				name: "unknown kind",
				req: domain.SigningRequest{
					Kind:           domain.SigningKind(42),
					DerivationPath: testPath,
					AccountRef:     testAccountRef,
				},
				expectedErr: domain.ErrRequestUnknownKind,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				require.ErrorIs(t, tt.req.Validate(), tt.expectedErr)
			})
		}
	})

	t.Run("invalid derivation path", func(t *testing.T) {
		req := domain.NewPersonalMessageRequest("44'/60'", testAccountRef, []byte("hello"))
		require.Error(t, req.Validate())
	})
}

func TestParseSigningKind(t *testing.T) {
	for _, kind := range []domain.SigningKind{
		domain.SigningKindTransaction, domain.SigningKindRawTransaction,
		domain.SigningKindTypedData, domain.SigningKindPersonalMessage,
	} {
		parsed, err := domain.ParseSigningKind(kind.String())
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
	}

	_, err := domain.ParseSigningKind("psbt")
	require.ErrorIs(t, err, domain.ErrRequestUnknownKind)

	require.True(t, domain.SigningKindRawTransaction.IsTransaction())
	require.False(t, domain.SigningKindTypedData.IsTransaction())
}
