package domain

import (
	"errors"
	"fmt"
	"strings"
)

// DeviceActionStatus is the status of a single state emitted by a device
// action.
type DeviceActionStatus int

const (
	DeviceActionPending DeviceActionStatus = iota
	DeviceActionCompleted
	DeviceActionError
)

func (s DeviceActionStatus) String() string {
	switch s {
	case DeviceActionPending:
		return "pending"
	case DeviceActionCompleted:
		return "completed"
	case DeviceActionError:
		return "error"
	default:
		return "unknown"
	}
}

// DeviceInteraction is the interaction the device is waiting for, as reported
// by the device-action source.
type DeviceInteraction string

const (
	DeviceInteractionNone                  DeviceInteraction = "none"
	DeviceInteractionUnlockDevice          DeviceInteraction = "unlock-device"
	DeviceInteractionAllowSecureConnection DeviceInteraction = "allow-secure-connection"
	DeviceInteractionConfirmOpenApp        DeviceInteraction = "confirm-open-app"
	DeviceInteractionAllowListApps         DeviceInteraction = "allow-list-apps"
	DeviceInteractionWeb3ChecksOptIn       DeviceInteraction = "web3-checks-opt-in"
	DeviceInteractionVerifyAddress         DeviceInteraction = "verify-address"
	DeviceInteractionSignTransaction       DeviceInteraction = "sign-transaction"
	DeviceInteractionSignTypedData         DeviceInteraction = "sign-typed-data"
	DeviceInteractionSignPersonalMessage   DeviceInteraction = "sign-personal-message"
)

// Intermediate steps a sign device action can report while pending.
const (
	StepOpenApp                      = "signer.eth.steps.openApp"
	StepGetAppConfig                 = "signer.eth.steps.getAppConfig"
	StepWeb3ChecksOptIn              = "signer.eth.steps.web3ChecksOptIn"
	StepBuildContext                 = "signer.eth.steps.buildContext"
	StepProvideContext               = "signer.eth.steps.provideContext"
	StepSignTransaction              = "signer.eth.steps.signTransaction"
	StepSignTypedData                = "signer.eth.steps.signTypedData"
	StepSignPersonalMessage          = "signer.eth.steps.signPersonalMessage"
	StepBlindSignTransactionFallback = "signer.eth.steps.blindSignTransactionFallback"
)

// Device status words with a dedicated classification.
const (
	StatusCodeInvalidData    = "6a80"
	StatusCodeDeniedByUser   = "6985"
	StatusCodeLockedDevice   = "5515"
	StatusCodeAppNotFound    = "6807"
	StatusCodeWrongAppOpened = "6d00"
)

// PendingInteraction details a pending state: what the user is asked to do on
// the device and which intermediate step the action is at.
type PendingInteraction struct {
	Interaction DeviceInteraction
	Step        string
}

// DeviceActionState is one discrete state of a device action. Output is set
// only if Status is DeviceActionCompleted, Err only if it's DeviceActionError.
type DeviceActionState[T any] struct {
	Status  DeviceActionStatus
	Pending *PendingInteraction
	Output  T
	Err     error
}

func PendingState[T any](interaction DeviceInteraction, step string) DeviceActionState[T] {
	return DeviceActionState[T]{
		Status:  DeviceActionPending,
		Pending: &PendingInteraction{Interaction: interaction, Step: step},
	}
}

func CompletedState[T any](output T) DeviceActionState[T] {
	return DeviceActionState[T]{Status: DeviceActionCompleted, Output: output}
}

func ErrorState[T any](err error) DeviceActionState[T] {
	return DeviceActionState[T]{Status: DeviceActionError, Err: err}
}

// ActionOptions are passed to every device action. SkipOpenApp tells the
// source the app has already been opened by a previous action of the flow.
type ActionOptions struct {
	DeviceSessionID string
	SkipOpenApp     bool
}

// AppLaunchSpec describes which device application must be opened, along with
// the applications it depends on.
type AppLaunchSpec struct {
	ApplicationName       string   `yaml:"application" json:"application"`
	DependencyNames       []string `yaml:"dependencies" json:"dependencies"`
	RequireLatestFirmware bool     `yaml:"requireLatestFirmware" json:"requireLatestFirmware"`
}

// AppOpened is the output of the open-app device action.
type AppOpened struct {
	ApplicationName string
	Version         string
}

// DeviceAddress is the output of the get-address device action.
type DeviceAddress struct {
	Address   string
	PublicKey []byte
}

// DeviceError is an error reported by the device together with its status
// word.
type DeviceError struct {
	Code    string
	Message string
}

func NewDeviceError(code, message string) *DeviceError {
	return &DeviceError{Code: normalizeStatusCode(code), Message: message}
}

func (e *DeviceError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("device error (0x%s)", e.Code)
	}
	return fmt.Sprintf("device error (0x%s): %s", e.Code, e.Message)
}

func (e *DeviceError) StatusCode() string {
	return e.Code
}

// DeviceStatusCode returns the status word carried by err, if any, as a lower
// case hex string without prefix.
func DeviceStatusCode(err error) (string, bool) {
	var coded interface{ StatusCode() string }
	if !errors.As(err, &coded) {
		return "", false
	}
	code := normalizeStatusCode(coded.StatusCode())
	return code, code != ""
}

func normalizeStatusCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	return strings.TrimPrefix(code, "0x")
}
