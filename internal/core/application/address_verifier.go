package application

import "strings"

// VerifyAddress returns whether the address derived by the device matches the
// expected one. Addresses are compared case insensitively so that checksummed
// and lower case encodings of the same address match.
func VerifyAddress(deviceAddress, expectedAddress string) bool {
	return strings.EqualFold(deviceAddress, expectedAddress)
}
