package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vulpemventures/hwsign/internal/core/domain"
)

const (
	actionOpenApp         = "openApp"
	actionGetAddress      = "getAddress"
	actionSignTransaction = "signTransaction"
	actionSignMessage     = "signMessage"
	actionSignTypedData   = "signTypedData"
	actionCancel          = "cancel"

	statusPending   = "pending"
	statusCompleted = "completed"
	statusError     = "error"
)

var ErrConnectionLost = fmt.Errorf("connection to device bridge lost")

type request struct {
	Id     uint64      `json:"id"`
	Action string      `json:"action"`
	Params interface{} `json:"params,omitempty"`
}

type response struct {
	Id    uint64     `json:"id"`
	State *wireState `json:"state"`
}

type wireState struct {
	Status      string          `json:"status"`
	Interaction string          `json:"interaction,omitempty"`
	Step        string          `json:"step,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Error       *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type actionParams struct {
	DeviceSessionID string                `json:"deviceSessionId"`
	SkipOpenApp     bool                  `json:"skipOpenApp,omitempty"`
	DerivationPath  string                `json:"derivationPath,omitempty"`
	App             *domain.AppLaunchSpec `json:"app,omitempty"`
	Transaction     string                `json:"transaction,omitempty"`
	Message         string                `json:"message,omitempty"`
	TypedData       *apitypes.TypedData   `json:"typedData,omitempty"`
}

func newActionParams(opts domain.ActionOptions) actionParams {
	return actionParams{
		DeviceSessionID: opts.DeviceSessionID,
		SkipOpenApp:     opts.SkipOpenApp,
	}
}

type appOpenedOutput struct {
	Application string `json:"application"`
	Version     string `json:"version"`
}

func (o appOpenedOutput) toDomain() (domain.AppOpened, error) {
	return domain.AppOpened{ApplicationName: o.Application, Version: o.Version}, nil
}

type addressOutput struct {
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

func (o addressOutput) toDomain() (domain.DeviceAddress, error) {
	if o.Address == "" {
		return domain.DeviceAddress{}, fmt.Errorf("missing address")
	}
	var pubkey []byte
	if o.PublicKey != "" {
		var err error
		if pubkey, err = decodeHex(o.PublicKey); err != nil {
			return domain.DeviceAddress{}, fmt.Errorf("invalid public key: %w", err)
		}
	}
	return domain.DeviceAddress{Address: o.Address, PublicKey: pubkey}, nil
}

type signatureOutput struct {
	R string `json:"r"`
	S string `json:"s"`
	V uint64 `json:"v"`
}

func (o signatureOutput) toDomain() (domain.Signature, error) {
	r, err := decodeHex(o.R)
	if err != nil || len(r) > 32 {
		return domain.Signature{}, fmt.Errorf("invalid signature r %q", o.R)
	}
	s, err := decodeHex(o.S)
	if err != nil || len(s) > 32 {
		return domain.Signature{}, fmt.Errorf("invalid signature s %q", o.S)
	}
	if o.V > 0xff {
		return domain.Signature{}, fmt.Errorf("invalid signature v %d", o.V)
	}

	sig := domain.Signature{V: byte(o.V)}
	copy(sig.R[32-len(r):], r)
	copy(sig.S[32-len(s):], s)
	return sig, nil
}

func decodeHex(str string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(str, "0x"))
}
