package domain

// DeviceInfo describes the physical device bound to a session.
type DeviceInfo struct {
	ID    string
	Model string
	Name  string
}

// Account is the account selected by the user in the widget. Address is the
// one the device is expected to derive at the requested path.
type Account struct {
	Ref        string
	Address    string
	Blockchain string
}

// SessionContext is the read-only snapshot of the device session and the
// selected account the signing flow runs against.
type SessionContext struct {
	DeviceSessionID string
	ConnectedDevice *DeviceInfo
	SelectedAccount *Account
}

// HasDevice returns whether the session is bound to a connected device.
func (s SessionContext) HasDevice() bool {
	return s.DeviceSessionID != "" && s.ConnectedDevice != nil
}

// HasAccount returns whether an account has been selected.
func (s SessionContext) HasAccount() bool {
	return s.SelectedAccount != nil && s.SelectedAccount.Address != ""
}

// DeviceModel returns the model of the connected device, if any.
func (s SessionContext) DeviceModel() string {
	if s.ConnectedDevice == nil {
		return ""
	}
	return s.ConnectedDevice.Model
}
