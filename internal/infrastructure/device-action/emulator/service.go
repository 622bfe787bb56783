package emulator

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/hwsign/internal/core/domain"
	"github.com/vulpemventures/hwsign/internal/core/ports"
	"github.com/vulpemventures/hwsign/internal/infrastructure/device-action/action"
	path "github.com/vulpemventures/hwsign/pkg/derivation-path"
	"github.com/vulpemventures/hwsign/pkg/mnemonic"
)

const (
	DefaultAppName    = "Ethereum"
	DefaultAppVersion = "1.10.4"
)

type Opts struct {
	// Mnemonic is the seed of the emulated device. A random one is generated
	// if not defined.
	Mnemonic []string
	// BlindSigningEnabled reflects the app setting, contract calls are
	// rejected with 6a80 when it's off.
	BlindSigningEnabled bool
	// RejectSigning emulates the user declining every signature on device.
	RejectSigning bool
	// InstalledApps defaults to DefaultAppName.
	InstalledApps []string
	// StepDelay is waited between two emitted states.
	StepDelay time.Duration
	// Locked makes the device ask to be unlocked before opening an app.
	Locked bool
}

func (o Opts) validate() error {
	if len(o.Mnemonic) > 0 {
		if _, err := mnemonic.Seed(o.Mnemonic); err != nil {
			return err
		}
	}
	if o.StepDelay < 0 {
		return fmt.Errorf("step delay must not be negative")
	}
	return nil
}

// service is a software signing device behaving like the Ethereum app of a
// hardware wallet. It is meant for development and integration tests.
type service struct {
	master        *hdkeychain.ExtendedKey
	opts          Opts
	installedApps map[string]struct{}

	lock     *sync.Mutex
	unlocked bool

	log func(format string, a ...interface{})
}

func NewService(opts Opts) (ports.DeviceActionSource, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	logFn := func(format string, a ...interface{}) {
		format = fmt.Sprintf("emulator: %s", format)
		log.Debugf(format, a...)
	}

	words := opts.Mnemonic
	if len(words) == 0 {
		var err error
		words, err = mnemonic.Generate()
		if err != nil {
			return nil, err
		}
		log.Warn("emulator: no mnemonic configured, using a random one")
	}
	seed, err := mnemonic.Seed(words)
	if err != nil {
		return nil, err
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	apps := opts.InstalledApps
	if len(apps) == 0 {
		apps = []string{DefaultAppName}
	}
	installedApps := make(map[string]struct{})
	for _, app := range apps {
		installedApps[normalizeAppName(app)] = struct{}{}
	}

	return &service{
		master:        master,
		opts:          opts,
		installedApps: installedApps,
		lock:          &sync.Mutex{},
		unlocked:      !opts.Locked,
		log:           logFn,
	}, nil
}

func (s *service) OpenAppWithDependencies(
	ctx context.Context, spec domain.AppLaunchSpec, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.AppOpened], error) {
	return action.Run(ctx, s.opts.StepDelay, func(e *action.Emitter[domain.AppOpened]) {
		if !s.isUnlocked() {
			if !e.Pending(domain.DeviceInteractionUnlockDevice, "") {
				return
			}
			s.unlock()
		}

		required := make([]string, 0, len(spec.DependencyNames)+1)
		required = append(required, spec.DependencyNames...)
		required = append(required, spec.ApplicationName)
		for _, name := range required {
			if _, ok := s.installedApps[normalizeAppName(name)]; !ok {
				e.Fail(domain.NewDeviceError(
					domain.StatusCodeAppNotFound, fmt.Sprintf("app %s not installed", name),
				))
				return
			}
		}

		if !opts.SkipOpenApp {
			if !e.Pending(domain.DeviceInteractionConfirmOpenApp, domain.StepOpenApp) {
				return
			}
		}
		s.log("app %s opened", spec.ApplicationName)
		e.Complete(domain.AppOpened{
			ApplicationName: spec.ApplicationName, Version: DefaultAppVersion,
		})
	}), nil
}

func (s *service) GetAddress(
	ctx context.Context, derivationPath string, _ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.DeviceAddress], error) {
	key, err := s.deriveKey(derivationPath)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, s.opts.StepDelay, func(e *action.Emitter[domain.DeviceAddress]) {
		e.Complete(domain.DeviceAddress{
			Address:   crypto.PubkeyToAddress(key.PublicKey).Hex(),
			PublicKey: crypto.FromECDSAPub(&key.PublicKey),
		})
	}), nil
}

func (s *service) SignTransaction(
	ctx context.Context, derivationPath string, rawTx []byte,
	_ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	key, err := s.deriveKey(derivationPath)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, s.opts.StepDelay, func(e *action.Emitter[domain.Signature]) {
		if !e.Pending(domain.DeviceInteractionNone, domain.StepGetAppConfig) {
			return
		}

		tx, chainID, err := domain.DecodeUnsignedTransaction(rawTx)
		if err != nil {
			e.Fail(domain.NewDeviceError(domain.StatusCodeInvalidData, err.Error()))
			return
		}

		if len(tx.Data()) > 0 && !s.opts.BlindSigningEnabled {
			if !e.Pending(
				domain.DeviceInteractionSignTransaction,
				domain.StepBlindSignTransactionFallback,
			) {
				return
			}
			e.Fail(domain.NewDeviceError(
				domain.StatusCodeInvalidData, "blind signing disabled",
			))
			return
		}

		if !e.Pending(domain.DeviceInteractionSignTransaction, domain.StepSignTransaction) {
			return
		}
		if s.opts.RejectSigning {
			e.Fail(domain.NewDeviceError(domain.StatusCodeDeniedByUser, "denied by user"))
			return
		}

		sig, err := sign(crypto.Keccak256(rawTx), key)
		if err != nil {
			e.Fail(err)
			return
		}
		switch {
		case tx.Type() != types.LegacyTxType:
		case chainID == nil:
			sig.V += 27
		default:
			sig.V += byte(chainID.Uint64()*2 + 35)
		}
		e.Complete(sig)
	}), nil
}

func (s *service) SignMessage(
	ctx context.Context, derivationPath string, message []byte,
	_ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	key, err := s.deriveKey(derivationPath)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, s.opts.StepDelay, func(e *action.Emitter[domain.Signature]) {
		if !e.Pending(
			domain.DeviceInteractionSignPersonalMessage,
			domain.StepSignPersonalMessage,
		) {
			return
		}
		if s.opts.RejectSigning {
			e.Fail(domain.NewDeviceError(domain.StatusCodeDeniedByUser, "denied by user"))
			return
		}

		sig, err := sign(accounts.TextHash(message), key)
		if err != nil {
			e.Fail(err)
			return
		}
		sig.V += 27
		e.Complete(sig)
	}), nil
}

func (s *service) SignTypedData(
	ctx context.Context, derivationPath string, typedData apitypes.TypedData,
	_ domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	key, err := s.deriveKey(derivationPath)
	if err != nil {
		return nil, err
	}

	return action.Run(ctx, s.opts.StepDelay, func(e *action.Emitter[domain.Signature]) {
		if !e.Pending(domain.DeviceInteractionNone, domain.StepBuildContext) {
			return
		}

		hash, _, err := apitypes.TypedDataAndHash(typedData)
		if err != nil {
			e.Fail(domain.NewDeviceError(domain.StatusCodeInvalidData, err.Error()))
			return
		}

		if !e.Pending(domain.DeviceInteractionSignTypedData, domain.StepSignTypedData) {
			return
		}
		if s.opts.RejectSigning {
			e.Fail(domain.NewDeviceError(domain.StatusCodeDeniedByUser, "denied by user"))
			return
		}

		sig, err := sign(hash, key)
		if err != nil {
			e.Fail(err)
			return
		}
		sig.V += 27
		e.Complete(sig)
	}), nil
}

func (s *service) deriveKey(derivationPath string) (*ecdsa.PrivateKey, error) {
	p, err := path.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, err
	}

	key := s.master
	for _, i := range p {
		key, err = key.Derive(i)
		if err != nil {
			return nil, err
		}
	}
	prvkey, err := key.ECPrivKey()
	if err != nil {
		return nil, err
	}
	return prvkey.ToECDSA(), nil
}

func (s *service) isUnlocked() bool {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.unlocked
}

func (s *service) unlock() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.unlocked = true
}

func sign(hash []byte, key *ecdsa.PrivateKey) (domain.Signature, error) {
	buf, err := crypto.Sign(hash, key)
	if err != nil {
		return domain.Signature{}, err
	}
	return domain.NewSignatureFromBytes(buf)
}

func normalizeAppName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
