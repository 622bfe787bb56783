package usbwallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/usbwallet"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/action"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
)

const (
	ethereumAppName = "ethereum"
	statusPollTime  = 500 * time.Millisecond
)

var (
	ErrNoDevice                   = fmt.Errorf("no ledger device found")
	ErrPersonalMessageUnsupported = fmt.Errorf(
		"personal messages are not supported by the usb driver",
	)
)

// service drives a Ledger device plugged over USB through the go-ethereum
// hub. Only the Ethereum app is supported, and it can't be opened
// programmatically: the user is asked to open it and the device is polled
// until it's online.
type service struct {
	wallets func() []accounts.Wallet

	lock   *sync.Mutex
	wallet accounts.Wallet

	log  func(format string, a ...interface{})
	warn func(err error, format string, a ...interface{})
}

func NewService() (ports.DeviceActionSource, error) {
	hub, err := usbwallet.NewLedgerHub()
	if err != nil {
		return nil, fmt.Errorf("failed to start ledger hub: %w", err)
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("usbwallet: %s", format)
		log.Debugf(format, a...)
	}
	warnFn := func(err error, format string, a ...interface{}) {
		format = fmt.Sprintf("usbwallet: %s", format)
		log.WithError(err).Warnf(format, a...)
	}

	return &service{
		wallets: hub.Wallets,
		lock:    &sync.Mutex{},
		log:     logFn,
		warn:    warnFn,
	}, nil
}

func (s *service) OpenAppWithDependencies(
	ctx context.Context, spec domain.AppLaunchSpec, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.AppOpened], error) {
	for _, name := range append([]string{spec.ApplicationName}, spec.DependencyNames...) {
		if strings.ToLower(strings.TrimSpace(name)) != ethereumAppName {
			return action.Failed[domain.AppOpened](domain.NewDeviceError(
				domain.StatusCodeAppNotFound,
				fmt.Sprintf("app %s not supported by the usb driver", name),
			)), nil
		}
	}

	return action.Run(ctx, 0, func(e *action.Emitter[domain.AppOpened]) {
		wallet, err := s.openWallet()
		if err != nil {
			e.Fail(err)
			return
		}

		status, err := wallet.Status()
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		if !isOnline(status) {
			interaction := domain.DeviceInteractionConfirmOpenApp
			if opts.SkipOpenApp {
				interaction = domain.DeviceInteractionNone
			}
			if !e.Pending(interaction, domain.StepOpenApp) {
				return
			}
		}

		ticker := time.NewTicker(statusPollTime)
		defer ticker.Stop()
		for !isOnline(status) {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if status, err = wallet.Status(); err != nil {
				e.Fail(toDeviceError(err))
				return
			}
		}

		s.log("device ready: %s", status)
		e.Complete(domain.AppOpened{
			ApplicationName: spec.ApplicationName, Version: appVersion(status),
		})
	}), nil
}

func (s *service) GetAddress(
	ctx context.Context, derivationPath string, _ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.DeviceAddress], error) {
	p, err := parsePath(derivationPath)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, 0, func(e *action.Emitter[domain.DeviceAddress]) {
		_, account, err := s.derive(p)
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		e.Complete(domain.DeviceAddress{Address: account.Address.Hex()})
	}), nil
}

func (s *service) SignTransaction(
	ctx context.Context, derivationPath string, rawTx []byte,
	_ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	p, err := parsePath(derivationPath)
	if err != nil {
		return nil, err
	}
	tx, chainID, err := domain.DecodeUnsignedTransaction(rawTx)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, 0, func(e *action.Emitter[domain.Signature]) {
		wallet, account, err := s.derive(p)
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		if !e.Pending(domain.DeviceInteractionSignTransaction, domain.StepSignTransaction) {
			return
		}

		signed, err := wallet.SignTx(account, tx, chainID)
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		e.Complete(signatureFromTx(signed))
	}), nil
}

func (s *service) SignMessage(
	context.Context, string, []byte, domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	return action.Failed[domain.Signature](ErrPersonalMessageUnsupported), nil
}

func (s *service) SignTypedData(
	ctx context.Context, derivationPath string, typedData apitypes.TypedData,
	_ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	p, err := parsePath(derivationPath)
	if err != nil {
		return nil, err
	}
	_, rawData, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, 0, func(e *action.Emitter[domain.Signature]) {
		wallet, account, err := s.derive(p)
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		if !e.Pending(domain.DeviceInteractionSignTypedData, domain.StepSignTypedData) {
			return
		}

		buf, err := wallet.SignData(
			account, accounts.MimetypeTypedData, []byte(rawData),
		)
		if err != nil {
			e.Fail(toDeviceError(err))
			return
		}
		sig, err := domain.NewSignatureFromBytes(buf)
		if err != nil {
			e.Fail(err)
			return
		}
		if sig.V < 27 {
			sig.V += 27
		}
		e.Complete(sig)
	}), nil
}

// Close closes the opened wallet, if any.
func (s *service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.wallet == nil {
		return
	}
	if err := s.wallet.Close(); err != nil {
		s.warn(err, "failed to close wallet")
	}
	s.wallet = nil
}

func (s *service) openWallet() (accounts.Wallet, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.wallet != nil {
		return s.wallet, nil
	}

	wallets := s.wallets()
	if len(wallets) == 0 {
		return nil, ErrNoDevice
	}
	wallet := wallets[0]
	if err := wallet.Open(""); err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	s.log("opened wallet %s", wallet.URL())
	s.wallet = wallet
	return wallet, nil
}

// derive pins the account at the given path so that it can be used for
// signing.
func (s *service) derive(
	p accounts.DerivationPath,
) (accounts.Wallet, accounts.Account, error) {
	wallet, err := s.openWallet()
	if err != nil {
		return nil, accounts.Account{}, err
	}
	account, err := wallet.Derive(p, true)
	if err != nil {
		return nil, accounts.Account{}, err
	}
	return wallet, account, nil
}

func parsePath(derivationPath string) (accounts.DerivationPath, error) {
	p, err := path.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, err
	}
	return accounts.DerivationPath(p), nil
}

func isOnline(status string) bool {
	return strings.Contains(status, "online")
}

// appVersion extracts the app version from a status like
// "Ethereum app v1.10.4 online".
func appVersion(status string) string {
	for _, field := range strings.Fields(status) {
		if strings.HasPrefix(field, "v") && strings.Contains(field, ".") {
			return strings.TrimPrefix(field, "v")
		}
	}
	return ""
}

func signatureFromTx(tx *types.Transaction) domain.Signature {
	v, r, s := tx.RawSignatureValues()
	sig := domain.Signature{V: byte(v.Uint64())}
	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	return sig
}

// toDeviceError maps the status words reported by the ledger driver to
// device errors.
func toDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	for _, code := range []string{
		domain.StatusCodeDeniedByUser,
		domain.StatusCodeInvalidData,
		domain.StatusCodeLockedDevice,
		domain.StatusCodeWrongAppOpened,
		domain.StatusCodeAppNotFound,
	} {
		if strings.Contains(msg, code) {
			return domain.NewDeviceError(code, err.Error())
		}
	}
	return err
}
