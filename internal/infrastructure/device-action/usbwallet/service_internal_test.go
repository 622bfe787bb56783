package usbwallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// fakeWallet replies to Status with the given sequence, repeating the last
// reply. Methods not overridden panic.
type fakeWallet struct {
	accounts.Wallet

	lock     sync.Mutex
	statuses []string
	errs     []error
	calls    int
}

func (w *fakeWallet) URL() accounts.URL {
	return accounts.URL{Scheme: "ledger", Path: "fake"}
}

func (w *fakeWallet) Open(string) error { return nil }

func (w *fakeWallet) Close() error { return nil }

func (w *fakeWallet) Status() (string, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	i := w.calls
	if i >= len(w.statuses) {
		i = len(w.statuses) - 1
	}
	w.calls++
	return w.statuses[i], w.errs[i]
}

func newTestService(wallet accounts.Wallet) *service {
	return &service{
		wallets: func() []accounts.Wallet { return []accounts.Wallet{wallet} },
		lock:    &sync.Mutex{},
		log:     func(string, ...interface{}) {},
		warn:    func(error, string, ...interface{}) {},
	}
}

func collectStates[T any](
	t *testing.T, ch <-chan domain.DeviceActionState[T],
) []domain.DeviceActionState[T] {
	t.Helper()

	states := make([]domain.DeviceActionState[T], 0)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case state, ok := <-ch:
			if !ok {
				return states
			}
			states = append(states, state)
		case <-timeout:
			t.Fatalf("device action did not terminate, got %d states", len(states))
			return states
		}
	}
}

var ethereumApp = domain.AppLaunchSpec{ApplicationName: "Ethereum"}

func TestOpenApp(t *testing.T) {
	t.Run("app already open", func(t *testing.T) {
		svc := newTestService(&fakeWallet{
			statuses: []string{"Ethereum app v1.10.4 online"},
			errs:     []error{nil},
		})

		ch, err := svc.OpenAppWithDependencies(
			context.Background(), ethereumApp, domain.ActionOptions{},
		)
		require.NoError(t, err)

		states := collectStates(t, ch)
		require.Len(t, states, 1)
		require.Equal(t, domain.DeviceActionCompleted, states[0].Status)
		require.Equal(t, "1.10.4", states[0].Output.Version)
	})

	t.Run("device fails while waiting for the app", func(t *testing.T) {
		unplugged := fmt.Errorf("hidapi: device disconnected")
		wallet := &fakeWallet{
			statuses: []string{"Ethereum app offline", "Failed: device disconnected"},
			errs:     []error{nil, unplugged},
		}
		svc := newTestService(wallet)

		ch, err := svc.OpenAppWithDependencies(
			context.Background(), ethereumApp, domain.ActionOptions{},
		)
		require.NoError(t, err)

		states := collectStates(t, ch)
		require.Len(t, states, 2)
		require.Equal(t, domain.DeviceActionPending, states[0].Status)
		require.Equal(t,
			domain.DeviceInteractionConfirmOpenApp, states[0].Pending.Interaction,
		)
		require.Equal(t, domain.DeviceActionError, states[1].Status)
		require.ErrorIs(t, states[1].Err, unplugged)
	})

	t.Run("device failed before opening the app", func(t *testing.T) {
		failure := fmt.Errorf("ledger: unexpected reply status 0x5515")
		svc := newTestService(&fakeWallet{
			statuses: []string{"Failed: locked"},
			errs:     []error{failure},
		})

		ch, err := svc.OpenAppWithDependencies(
			context.Background(), ethereumApp, domain.ActionOptions{},
		)
		require.NoError(t, err)

		states := collectStates(t, ch)
		require.Len(t, states, 1)
		require.Equal(t, domain.DeviceActionError, states[0].Status)
		code, ok := domain.DeviceStatusCode(states[0].Err)
		require.True(t, ok)
		require.Equal(t, domain.StatusCodeLockedDevice, code)
	})
}

func TestAppStatus(t *testing.T) {
	require.True(t, isOnline("Ethereum app v1.10.4 online"))
	require.False(t, isOnline("Ethereum app offline"))
	require.Equal(t, "1.10.4", appVersion("Ethereum app v1.10.4 online"))
	require.Empty(t, appVersion("Ethereum app offline"))
}

func TestSignatureFromTx(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	to := common.HexToAddress("0x3535353535353535353535353535353535353535")
	chainID := big.NewInt(137)

	tx := types.NewTx(&types.LegacyTx{
		Nonce: 9, GasPrice: big.NewInt(1), Gas: 21000, To: &to, Value: big.NewInt(1),
	})
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), key)
	require.NoError(t, err)

	sig := signatureFromTx(signed)
	raw, err := domain.EncodeUnsignedTransaction(tx, chainID)
	require.NoError(t, err)
	assembled, err := domain.AssembleSignedTransaction(raw, sig)
	require.NoError(t, err)
	require.Equal(t, signed.Hash(), assembled.Hash)
}

func TestToDeviceError(t *testing.T) {
	err := toDeviceError(fmt.Errorf("ledger: unexpected reply status 0x6985"))
	code, ok := domain.DeviceStatusCode(err)
	require.True(t, ok)
	require.Equal(t, domain.StatusCodeDeniedByUser, code)

	err = fmt.Errorf("wallet closed")
	require.Equal(t, err, toDeviceError(err))
}
