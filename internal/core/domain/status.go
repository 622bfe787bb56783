package domain

// InteractionKind is the closed set of device prompts surfaced to the widget.
type InteractionKind string

const (
	InteractionUnlockDevice          InteractionKind = "unlockDevice"
	InteractionAllowSecureConnection InteractionKind = "allowSecureConnection"
	InteractionConfirmOpenApp        InteractionKind = "confirmOpenApp"
	InteractionAllowListApps         InteractionKind = "allowListApps"
	InteractionWeb3ChecksOptIn       InteractionKind = "web3ChecksOptIn"
	InteractionPerformSigning        InteractionKind = "performSigning"
)

var interactionByDeviceInteraction = map[DeviceInteraction]InteractionKind{
	DeviceInteractionUnlockDevice:          InteractionUnlockDevice,
	DeviceInteractionAllowSecureConnection: InteractionAllowSecureConnection,
	DeviceInteractionConfirmOpenApp:        InteractionConfirmOpenApp,
	DeviceInteractionAllowListApps:         InteractionAllowListApps,
	DeviceInteractionWeb3ChecksOptIn:       InteractionWeb3ChecksOptIn,
	DeviceInteractionSignTransaction:       InteractionPerformSigning,
	DeviceInteractionSignTypedData:         InteractionPerformSigning,
	DeviceInteractionSignPersonalMessage:   InteractionPerformSigning,
}

// ToInteractionKind maps a device interaction to the widget interaction kind.
// The boolean is false for interactions with no widget counterpart.
func (i DeviceInteraction) ToInteractionKind() (InteractionKind, bool) {
	kind, ok := interactionByDeviceInteraction[i]
	return kind, ok
}

// SignFlowState enumerates the states of a SignFlowStatus.
type SignFlowState int

const (
	SignFlowDebugging SignFlowState = iota
	SignFlowUserInteractionNeeded
	SignFlowSuccess
	SignFlowError
)

func (s SignFlowState) String() string {
	switch s {
	case SignFlowDebugging:
		return "debugging"
	case SignFlowUserInteractionNeeded:
		return "userInteractionNeeded"
	case SignFlowSuccess:
		return "success"
	case SignFlowError:
		return "error"
	default:
		return "unknown"
	}
}

// SigningResult is the payload of a success status. Signature is always set,
// SignedTransaction for transaction kinds not broadcast, Broadcast for
// broadcast transactions.
type SigningResult struct {
	Signature         Signature
	SignedTransaction *SignedTransaction
	Broadcast         *BroadcastResult
}

// SignFlowStatus is the only value a signing flow exposes to its observers.
type SignFlowStatus struct {
	FlowID      string
	Kind        SigningKind
	State       SignFlowState
	Message     string
	Interaction InteractionKind
	Result      *SigningResult
	Err         error
}

// IsTerminal returns whether no other status can follow this one.
func (s SignFlowStatus) IsTerminal() bool {
	return s.State == SignFlowSuccess || s.State == SignFlowError
}

func DebuggingStatus(flowID string, kind SigningKind, msg string) SignFlowStatus {
	return SignFlowStatus{
		FlowID: flowID, Kind: kind, State: SignFlowDebugging, Message: msg,
	}
}

func InteractionStatus(
	flowID string, kind SigningKind, interaction InteractionKind,
) SignFlowStatus {
	return SignFlowStatus{
		FlowID: flowID, Kind: kind, State: SignFlowUserInteractionNeeded,
		Interaction: interaction,
	}
}

func SuccessStatus(
	flowID string, kind SigningKind, result SigningResult,
) SignFlowStatus {
	return SignFlowStatus{
		FlowID: flowID, Kind: kind, State: SignFlowSuccess, Result: &result,
	}
}

func ErrorStatus(flowID string, kind SigningKind, err error) SignFlowStatus {
	return SignFlowStatus{
		FlowID: flowID, Kind: kind, State: SignFlowError, Err: err,
	}
}
