package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotConnected is returned when the session has no active device
	// session or no connected device.
	ErrDeviceNotConnected = fmt.Errorf("no device connected")
	// ErrAccountNotSelected is returned when the session has no selected
	// account.
	ErrAccountNotSelected = fmt.Errorf("no account selected")
	// ErrDeviceSessionBusy is returned when another signing flow is already
	// running against the same device session.
	ErrDeviceSessionBusy = fmt.Errorf("device session is busy with another signing flow")
)

// Stable labels of the error taxonomy.
const (
	ErrorKindDeviceConnection     = "DeviceConnectionError"
	ErrorKindAccountNotSelected   = "AccountNotSelectedError"
	ErrorKindDeviceSessionBusy    = "DeviceSessionBusyError"
	ErrorKindAppLaunchResolution  = "AppLaunchResolutionError"
	ErrorKindAppOpenFailed        = "AppOpenFailedError"
	ErrorKindIncorrectSeed        = "IncorrectSeedError"
	ErrorKindBlindSigningDisabled = "BlindSigningDisabledError"
	ErrorKindUserRejected         = "UserRejectedTransactionError"
	ErrorKindBroadcastTransaction = "BroadcastTransactionError"
	ErrorKindUnclassified         = "UnclassifiedError"
)

// AppLaunchResolutionError is returned when the configuration provider has no
// usable app launch spec for the blockchain of the selected account.
type AppLaunchResolutionError struct {
	Blockchain string
	Cause      error
}

func (e *AppLaunchResolutionError) Error() string {
	return fmt.Sprintf(
		"failed to resolve app launch spec for blockchain %q: %s",
		e.Blockchain, e.Cause,
	)
}

func (e *AppLaunchResolutionError) Unwrap() error {
	return e.Cause
}

// AppOpenFailedError is returned when the device rejected or failed the
// open-app sequence.
type AppOpenFailedError struct {
	Cause error
}

func (e *AppOpenFailedError) Error() string {
	return fmt.Sprintf("failed to open app on device: %s", e.Cause)
}

func (e *AppOpenFailedError) Unwrap() error {
	return e.Cause
}

// IncorrectSeedError is returned when the device derives an address different
// from the one of the selected account, which means the connected device is
// not the one holding the account keys.
type IncorrectSeedError struct {
	Expected string
	Actual   string
}

func (e *IncorrectSeedError) Error() string {
	return fmt.Sprintf(
		"device address %s does not match account address %s",
		e.Actual, e.Expected,
	)
}

// BlindSigningDisabledError is returned when the payload can be signed only
// with blind signing enabled in the device app settings.
type BlindSigningDisabledError struct {
	Cause error
}

func (e *BlindSigningDisabledError) Error() string {
	return "blind signing must be enabled in the device app settings"
}

func (e *BlindSigningDisabledError) Unwrap() error {
	return e.Cause
}

// UserRejectedTransactionError is returned when the user declined on device.
type UserRejectedTransactionError struct {
	Cause error
}

func (e *UserRejectedTransactionError) Error() string {
	return "request rejected by user on device"
}

func (e *UserRejectedTransactionError) Unwrap() error {
	return e.Cause
}

// BroadcastTransactionError is returned when the transaction has been signed
// but could not be broadcast. The signature is kept so that it is not lost.
type BroadcastTransactionError struct {
	Signature         Signature
	SignedTransaction *SignedTransaction
	Cause             error
}

func (e *BroadcastTransactionError) Error() string {
	return fmt.Sprintf("failed to broadcast signed transaction: %s", e.Cause)
}

func (e *BroadcastTransactionError) Unwrap() error {
	return e.Cause
}

// ErrorKind returns the taxonomy label of err.
func ErrorKind(err error) string {
	var (
		appLaunchErr   *AppLaunchResolutionError
		appOpenErr     *AppOpenFailedError
		seedErr        *IncorrectSeedError
		blindSignErr   *BlindSigningDisabledError
		userRejectErr  *UserRejectedTransactionError
		broadcastError *BroadcastTransactionError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceNotConnected):
		return ErrorKindDeviceConnection
	case errors.Is(err, ErrAccountNotSelected):
		return ErrorKindAccountNotSelected
	case errors.Is(err, ErrDeviceSessionBusy):
		return ErrorKindDeviceSessionBusy
	case errors.As(err, &appLaunchErr):
		return ErrorKindAppLaunchResolution
	case errors.As(err, &appOpenErr):
		return ErrorKindAppOpenFailed
	case errors.As(err, &seedErr):
		return ErrorKindIncorrectSeed
	case errors.As(err, &blindSignErr):
		return ErrorKindBlindSigningDisabled
	case errors.As(err, &userRejectErr):
		return ErrorKindUserRejected
	case errors.As(err, &broadcastError):
		return ErrorKindBroadcastTransaction
	default:
		return ErrorKindUnclassified
	}
}
