package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyVersionCompatible(t *testing.T) {
	// Upgrades and same-version restarts pass.
	require.NoError(t, verifyVersionCompatible("1.2.0", "1.2.0"))
	require.NoError(t, verifyVersionCompatible("1.3.0", "1.2.9"))
	require.NoError(t, verifyVersionCompatible("2.0.0", "1.9.1"))
	// A fresh database has no recorded version yet.
	require.NoError(t, verifyVersionCompatible("1.2.0", ""))

	// Downgrades are refused, dev builds against a released schema included.
	require.Error(t, verifyVersionCompatible("1.1.9", "1.2.0"))
	require.Error(t, verifyVersionCompatible("0.0.0-dev", "1.2.0"))
}
