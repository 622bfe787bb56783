package mnemonic_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/hwsign/pkg/mnemonic"
)

func TestGenerate(t *testing.T) {
	words, err := mnemonic.Generate()
	require.NoError(t, err)
	require.Len(t, words, 24)

	other, err := mnemonic.Generate()
	require.NoError(t, err)
	require.NotEqual(t, words, other)
}

func TestSeed(t *testing.T) {
	words, err := mnemonic.Generate()
	require.NoError(t, err)

	seed, err := mnemonic.Seed(words)
	require.NoError(t, err)
	require.Len(t, seed, 64)

	_, err = mnemonic.Seed(strings.Split("not a valid mnemonic at all", " "))
	require.ErrorIs(t, err, mnemonic.ErrInvalidMnemonic)
}
