package emulator_test

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/application"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	"github.com/vulpemventures/hwsign/internal/infrastructure/app-launch/static"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/emulator"
	"github.com/vulpemventures/hwsign/internal/infrastructure/storage/db/inmemory"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
)

var (
	ctx          = context.Background()
	testMnemonic = strings.Split(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		" ",
	)
	testAddress = "0x9858EfFD232B4033E47d90003D41EC34EcaEda94"
	opts        = domain.ActionOptions{DeviceSessionID: "session"}
	to          = common.HexToAddress("0x3535353535353535353535353535353535353535")
)

func TestGetAddress(t *testing.T) {
	svc := newTestService(t, emulator.Opts{})

	stream, err := svc.GetAddress(ctx, path.DefaultEthereumPath, opts)
	require.NoError(t, err)
	address := completed(t, stream)
	require.Equal(t, testAddress, address.Address)
	pubkey, err := crypto.UnmarshalPubkey(address.PublicKey)
	require.NoError(t, err)
	require.Equal(t, testAddress, crypto.PubkeyToAddress(*pubkey).Hex())

	_, err = svc.GetAddress(ctx, "44'/60'/0'/0/0", opts)
	require.ErrorIs(t, err, path.ErrRequiredAbsoluteDerivationPath)
}

func TestOpenApp(t *testing.T) {
	t.Run("locked device", func(t *testing.T) {
		svc := newTestService(t, emulator.Opts{Locked: true})
		spec := domain.AppLaunchSpec{ApplicationName: "ethereum"}

		stream, err := svc.OpenAppWithDependencies(ctx, spec, opts)
		require.NoError(t, err)
		states := drain(stream)
		require.Len(t, states, 3)
		require.Equal(t, domain.DeviceInteractionUnlockDevice, states[0].Pending.Interaction)
		require.Equal(t, domain.DeviceInteractionConfirmOpenApp, states[1].Pending.Interaction)
		require.Equal(t, domain.DeviceActionCompleted, states[2].Status)

		// Unlocked once for all.
		stream, err = svc.OpenAppWithDependencies(
			ctx, spec, domain.ActionOptions{SkipOpenApp: true},
		)
		require.NoError(t, err)
		states = drain(stream)
		require.Len(t, states, 1)
		require.Equal(t, emulator.DefaultAppVersion, states[0].Output.Version)
	})

	t.Run("missing dependency", func(t *testing.T) {
		svc := newTestService(t, emulator.Opts{})
		spec := domain.AppLaunchSpec{
			ApplicationName: "Ethereum", DependencyNames: []string{"Bitcoin"},
		}

		stream, err := svc.OpenAppWithDependencies(ctx, spec, opts)
		require.NoError(t, err)
		err = failed(t, stream)
		code, ok := domain.DeviceStatusCode(err)
		require.True(t, ok)
		require.Equal(t, domain.StatusCodeAppNotFound, code)
	})
}

func TestSignMessage(t *testing.T) {
	svc := newTestService(t, emulator.Opts{})
	message := []byte("hello device")

	stream, err := svc.SignMessage(ctx, path.DefaultEthereumPath, message, opts)
	require.NoError(t, err)
	sig := completed(t, stream)
	require.Contains(t, []byte{27, 28}, sig.V)
	requireSigner(t, accounts.TextHash(message), sig)
}

func TestSignTypedData(t *testing.T) {
	svc := newTestService(t, emulator.Opts{})
	typedData := testTypedData()

	stream, err := svc.SignTypedData(ctx, path.DefaultEthereumPath, typedData, opts)
	require.NoError(t, err)
	sig := completed(t, stream)
	hash, _, err := apitypes.TypedDataAndHash(typedData)
	require.NoError(t, err)
	requireSigner(t, hash, sig)
}

func TestSignTransaction(t *testing.T) {
	chainID := big.NewInt(11155111)
	tests := []struct {
		name    string
		tx      *types.Transaction
		chainID *big.Int
	}{
		{
			name: "dynamic fee",
			tx: types.NewTx(&types.DynamicFeeTx{
				ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(1e9),
				GasFeeCap: big.NewInt(2e9), Gas: 21000, To: &to, Value: big.NewInt(1e15),
			}),
			chainID: chainID,
		},
		{
			name: "legacy eip155",
			tx: types.NewTx(&types.LegacyTx{
				Nonce: 1, GasPrice: big.NewInt(1e9), Gas: 21000, To: &to, Value: big.NewInt(1),
			}),
			chainID: chainID,
		},
		{
			name: "legacy homestead",
			tx: types.NewTx(&types.LegacyTx{
				Nonce: 1, GasPrice: big.NewInt(1e9), Gas: 21000, To: &to, Value: big.NewInt(1),
			}),
		},
	}

	svc := newTestService(t, emulator.Opts{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := domain.EncodeUnsignedTransaction(tt.tx, tt.chainID)
			require.NoError(t, err)

			stream, err := svc.SignTransaction(ctx, path.DefaultEthereumPath, raw, opts)
			require.NoError(t, err)
			states := drain(stream)
			last := states[len(states)-1]
			require.Equal(t, domain.DeviceActionCompleted, last.Status)
			require.Equal(t, domain.StepSignTransaction, states[len(states)-2].Pending.Step)

			signed, err := domain.AssembleSignedTransaction(raw, last.Output)
			require.NoError(t, err)
			tx, err := signed.Transaction()
			require.NoError(t, err)

			var signer types.Signer = types.HomesteadSigner{}
			if tt.chainID != nil {
				signer = types.LatestSignerForChainID(tt.chainID)
			}
			sender, err := types.Sender(signer, tx)
			require.NoError(t, err)
			require.Equal(t, testAddress, sender.Hex())
		})
	}
}

func TestSignTransactionBlindSigning(t *testing.T) {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID: big.NewInt(1), GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(1),
		Gas: 60000, To: &to, Data: common.FromHex("0xa9059cbb"),
	})
	raw, err := domain.EncodeUnsignedTransaction(tx, big.NewInt(1))
	require.NoError(t, err)

	t.Run("disabled", func(t *testing.T) {
		svc := newTestService(t, emulator.Opts{})

		stream, err := svc.SignTransaction(ctx, path.DefaultEthereumPath, raw, opts)
		require.NoError(t, err)
		states := drain(stream)
		require.GreaterOrEqual(t, len(states), 2)
		require.Equal(t, domain.StepBlindSignTransactionFallback, states[len(states)-2].Pending.Step)

		last := states[len(states)-1]
		require.Equal(t, domain.DeviceActionError, last.Status)
		code, _ := domain.DeviceStatusCode(last.Err)
		require.Equal(t, domain.StatusCodeInvalidData, code)
	})

	t.Run("enabled", func(t *testing.T) {
		svc := newTestService(t, emulator.Opts{BlindSigningEnabled: true})

		stream, err := svc.SignTransaction(ctx, path.DefaultEthereumPath, raw, opts)
		require.NoError(t, err)
		sig := completed(t, stream)
		require.False(t, sig.IsZero())
	})
}

func TestRejectSigning(t *testing.T) {
	svc := newTestService(t, emulator.Opts{RejectSigning: true})

	stream, err := svc.SignMessage(ctx, path.DefaultEthereumPath, []byte("hi"), opts)
	require.NoError(t, err)
	err = failed(t, stream)
	code, _ := domain.DeviceStatusCode(err)
	require.Equal(t, domain.StatusCodeDeniedByUser, code)

	stream, err = svc.SignTypedData(ctx, path.DefaultEthereumPath, testTypedData(), opts)
	require.NoError(t, err)
	err = failed(t, stream)
	code, _ = domain.DeviceStatusCode(err)
	require.Equal(t, domain.StatusCodeDeniedByUser, code)
}

func TestCancelledAction(t *testing.T) {
	svc := newTestService(t, emulator.Opts{StepDelay: time.Hour})

	cctx, cancel := context.WithCancel(ctx)
	states, err := svc.SignMessage(cctx, path.DefaultEthereumPath, []byte("hi"), opts)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-states:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed after cancellation")
	}
}

func TestSigningServiceWithEmulator(t *testing.T) {
	svc := newTestService(t, emulator.Opts{Locked: true})
	repoManager := inmemory.NewRepoManager()
	signingSvc := application.NewSigningService(
		svc, static.NewProvider(nil), nil, nil, nil, repoManager, 0, 0,
	)
	session := domain.SessionContext{
		DeviceSessionID: "session",
		ConnectedDevice: &domain.DeviceInfo{ID: "emulator", Model: "emulator"},
		SelectedAccount: &domain.Account{
			Ref: "account", Address: strings.ToLower(testAddress), Blockchain: "sepolia",
		},
	}

	message := []byte("hello device")
	flow, err := signingSvc.SignPersonalMessage(
		ctx, path.DefaultEthereumPath, "account", message, session,
	)
	require.NoError(t, err)

	status, err := flow.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.SignFlowSuccess, status.State)
	requireSigner(t, accounts.TextHash(message), status.Result.Signature)

	<-flow.Done()
	history, err := signingSvc.ListSigningHistory(ctx, "account")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].IsSuccess())
}

func newTestService(t *testing.T, opts emulator.Opts) ports.DeviceActionSource {
	opts.Mnemonic = testMnemonic
	svc, err := emulator.NewService(opts)
	require.NoError(t, err)
	return svc
}

func drain[T any](states <-chan domain.DeviceActionState[T]) []domain.DeviceActionState[T] {
	list := make([]domain.DeviceActionState[T], 0)
	for s := range states {
		list = append(list, s)
	}
	return list
}

func completed[T any](t *testing.T, states <-chan domain.DeviceActionState[T]) T {
	list := drain(states)
	require.NotEmpty(t, list)
	last := list[len(list)-1]
	require.Equal(t, domain.DeviceActionCompleted, last.Status, "%v", last.Err)
	return last.Output
}

func failed[T any](t *testing.T, states <-chan domain.DeviceActionState[T]) error {
	list := drain(states)
	require.NotEmpty(t, list)
	last := list[len(list)-1]
	require.Equal(t, domain.DeviceActionError, last.Status)
	return last.Err
}

func requireSigner(t *testing.T, hash []byte, sig domain.Signature) {
	buf := sig.Bytes()
	buf[64] -= 27
	pubkey, err := crypto.SigToPub(hash, buf)
	require.NoError(t, err)
	require.Equal(t, testAddress, crypto.PubkeyToAddress(*pubkey).Hex())
}

func testTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Mail": {
				{Name: "contents", Type: "string"},
			},
		},
		PrimaryType: "Mail",
		Domain: apitypes.TypedDataDomain{
			Name: "Test", ChainId: (*math.HexOrDecimal256)(big.NewInt(1)),
		},
		Message: apitypes.TypedDataMessage{"contents": "hello"},
	}
}
