package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

// DeviceActionSource is the abstraction for any kind of service able to run
// actions on a hardware signing device. Every action returns a stream of
// states that ends with exactly one Completed or Error state, after which the
// channel is closed. Cancelling ctx unsubscribes from the action: the channel
// must be closed soon after, with no further state.
// A non-nil error means the action could not even be started.
type DeviceActionSource interface {
	// OpenAppWithDependencies opens the given app on the device, installing
	// or opening its dependencies first if needed.
	OpenAppWithDependencies(
		ctx context.Context, spec domain.AppLaunchSpec, opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.AppOpened], error)
	// GetAddress returns the address derived by the device at the given path.
	GetAddress(
		ctx context.Context, derivationPath string, opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.DeviceAddress], error)
	// SignTransaction signs the given unsigned serialized transaction.
	SignTransaction(
		ctx context.Context, derivationPath string, rawTx []byte,
		opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.Signature], error)
	// SignMessage signs the given message with the personal_sign prefix.
	SignMessage(
		ctx context.Context, derivationPath string, message []byte,
		opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.Signature], error)
	// SignTypedData signs the given EIP-712 typed data.
	SignTypedData(
		ctx context.Context, derivationPath string, typedData apitypes.TypedData,
		opts domain.ActionOptions,
	) (<-chan domain.DeviceActionState[domain.Signature], error)
}
