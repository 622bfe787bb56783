package mnemonic

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const entropyBits = 256

var ErrInvalidMnemonic = fmt.Errorf("invalid mnemonic")

// Generate returns a random 24-words BIP-39 mnemonic.
func Generate() ([]string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return nil, err
	}
	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, err
	}
	return strings.Fields(words), nil
}

// Seed returns the BIP-39 seed of the given mnemonic, with no passphrase.
func Seed(words []string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(strings.Join(words, " "), "")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMnemonic, err)
	}
	return seed, nil
}
