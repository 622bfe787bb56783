package path

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

const (
	// MaxDepth is the deepest path a signing device accepts.
	MaxDepth = 10

	// DefaultEthereumPath is the first BIP-44 account of the Ethereum coin type.
	DefaultEthereumPath = "m/44'/60'/0'/0/0"

	purposeBIP44      = hdkeychain.HardenedKeyStart + 44
	accountPathLength = 5
)

// DerivationPath is the data structure representing an HD path.
type DerivationPath []uint32

// ParseDerivationPath converts an absolute derivation path in string format to
// a DerivationPath type.
func ParseDerivationPath(strPath string) (DerivationPath, error) {
	if strPath == "" {
		return nil, ErrMissingDerivationPath
	}

	elems := strings.Split(strPath, "/")
	if containsEmptyString(elems) {
		return nil, ErrMalformedDerivationPath
	}
	if strings.TrimSpace(elems[0]) != "m" {
		return nil, ErrRequiredAbsoluteDerivationPath
	}
	if len(elems) < 2 {
		return nil, ErrMalformedDerivationPath
	}
	elems = elems[1:]
	if len(elems) > MaxDepth {
		return nil, ErrDerivationPathTooDeep
	}

	path := make(DerivationPath, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(elem)
		var value uint32

		if strings.HasSuffix(elem, "'") {
			value = hdkeychain.HardenedKeyStart
			elem = strings.TrimSpace(strings.TrimSuffix(elem, "'"))
		}

		// use big int for convertion
		bigval, ok := new(big.Int).SetString(elem, 0)
		if !ok {
			return nil, fmt.Errorf("invalid elem '%s' in path", elem)
		}

		max := math.MaxUint32 - value
		if bigval.Sign() < 0 || bigval.Cmp(big.NewInt(int64(max))) > 0 {
			if value == 0 {
				return nil, fmt.Errorf("elem %v must be in range [0, %d]", bigval, max)
			}
			return nil, fmt.Errorf("elem %v must be in hardened range [0, %d]", bigval, max)
		}
		value += uint32(bigval.Uint64())

		path = append(path, value)
	}

	return path, nil
}

// ParseAccountPath parses a full BIP-44 path, that is
// m/44'/coin_type'/account'/change/index.
func ParseAccountPath(strPath string) (DerivationPath, error) {
	path, err := ParseDerivationPath(strPath)
	if err != nil {
		return nil, err
	}
	if len(path) != accountPathLength || path[0] != purposeBIP44 {
		return nil, ErrInvalidAccountPath
	}
	for _, i := range path[1:3] {
		if i < hdkeychain.HardenedKeyStart {
			return nil, ErrInvalidAccountPath
		}
	}
	return path, nil
}

func (path DerivationPath) String() string {
	if len(path) <= 0 {
		return ""
	}
	return "m/" + path.Relative()
}

// Relative returns the path without the master key prefix, which is the form
// hardware wallet apps expect.
func (path DerivationPath) Relative() string {
	elems := make([]string, 0, len(path))
	for _, component := range path {
		if component >= hdkeychain.HardenedKeyStart {
			elems = append(elems, fmt.Sprintf("%d'", component-hdkeychain.HardenedKeyStart))
			continue
		}
		elems = append(elems, fmt.Sprintf("%d", component))
	}
	return strings.Join(elems, "/")
}

func containsEmptyString(composedPath []string) bool {
	for _, s := range composedPath {
		if s == "" {
			return true
		}
	}
	return false
}
