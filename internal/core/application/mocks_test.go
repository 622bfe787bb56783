package application_test

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/mock"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// ports.DeviceActionSource
type mockDeviceSource struct {
	mock.Mock
}

func (m *mockDeviceSource) OpenAppWithDependencies(
	ctx context.Context, spec domain.AppLaunchSpec, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.AppOpened], error) {
	args := m.Called(ctx, spec, opts)

	var res <-chan domain.DeviceActionState[domain.AppOpened]
	if a := args.Get(0); a != nil {
		res = a.(<-chan domain.DeviceActionState[domain.AppOpened])
	}
	return res, args.Error(1)
}

func (m *mockDeviceSource) GetAddress(
	ctx context.Context, derivationPath string, opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.DeviceAddress], error) {
	args := m.Called(ctx, derivationPath, opts)

	var res <-chan domain.DeviceActionState[domain.DeviceAddress]
	if a := args.Get(0); a != nil {
		res = a.(<-chan domain.DeviceActionState[domain.DeviceAddress])
	}
	return res, args.Error(1)
}

func (m *mockDeviceSource) SignTransaction(
	ctx context.Context, derivationPath string, rawTx []byte,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	args := m.Called(ctx, derivationPath, rawTx, opts)
	return signatureStream(args.Get(0)), args.Error(1)
}

func (m *mockDeviceSource) SignMessage(
	ctx context.Context, derivationPath string, message []byte,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	args := m.Called(ctx, derivationPath, message, opts)
	return signatureStream(args.Get(0)), args.Error(1)
}

func (m *mockDeviceSource) SignTypedData(
	ctx context.Context, derivationPath string, typedData apitypes.TypedData,
	opts domain.ActionOptions,
) (<-chan domain.DeviceActionState[domain.Signature], error) {
	args := m.Called(ctx, derivationPath, typedData, opts)
	return signatureStream(args.Get(0)), args.Error(1)
}

func signatureStream(a interface{}) <-chan domain.DeviceActionState[domain.Signature] {
	if a == nil {
		return nil
	}
	return a.(<-chan domain.DeviceActionState[domain.Signature])
}

// ports.AppConfigProvider
type mockAppConfigProvider struct {
	mock.Mock
}

func (m *mockAppConfigProvider) GetAppLaunchSpec(
	ctx context.Context, blockchain string,
) (*domain.AppLaunchSpec, error) {
	args := m.Called(ctx, blockchain)

	var res *domain.AppLaunchSpec
	if a := args.Get(0); a != nil {
		res = a.(*domain.AppLaunchSpec)
	}
	return res, args.Error(1)
}

// ports.Broadcaster
type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) Broadcast(
	ctx context.Context, bArgs domain.BroadcastArgs,
) (*domain.BroadcastResult, error) {
	args := m.Called(ctx, bArgs)

	var res *domain.BroadcastResult
	if a := args.Get(0); a != nil {
		res = a.(*domain.BroadcastResult)
	}
	return res, args.Error(1)
}

// ports.TrackingSink
type mockTrackingSink struct {
	mock.Mock
}

func (m *mockTrackingSink) RecordStarted(
	ctx context.Context, payload domain.TrackingPayload,
) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func (m *mockTrackingSink) RecordCompleted(
	ctx context.Context, payload domain.TrackingPayload,
	result domain.SigningResult,
) error {
	args := m.Called(ctx, payload, result)
	return args.Error(0)
}

// ports.SessionGuard
type mockSessionGuard struct {
	mock.Mock
}

func (m *mockSessionGuard) Acquire(
	ctx context.Context, sessionID string, ttl time.Duration,
) (bool, error) {
	args := m.Called(ctx, sessionID, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *mockSessionGuard) Release(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// stream returns a closed channel yielding the given states.
func stream[T any](states ...domain.DeviceActionState[T]) <-chan domain.DeviceActionState[T] {
	ch := make(chan domain.DeviceActionState[T], len(states))
	for _, s := range states {
		ch <- s
	}
	close(ch)
	return ch
}

// endlessStream returns a channel yielding the given states and then
// nothing, as a device waiting for the user forever.
func endlessStream[T any](states ...domain.DeviceActionState[T]) <-chan domain.DeviceActionState[T] {
	ch := make(chan domain.DeviceActionState[T], len(states))
	for _, s := range states {
		ch <- s
	}
	return ch
}
