package debug

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerboseTogglesEnabled(t *testing.T) {
	SetVerbose(false)
	defer SetVerbose(false)

	require.False(t, Enabled())
	SetVerbose(true)
	require.True(t, Enabled())
}

func TestQuietToggle(t *testing.T) {
	require.False(t, IsQuiet())
	SetQuiet(true)
	defer SetQuiet(false)
	require.True(t, IsQuiet())
}
