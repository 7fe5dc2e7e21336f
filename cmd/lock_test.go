package cmd

import (
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock(t *testing.T) {
	home := t.TempDir()
	t.Setenv("BATCHGET_HOME", home)
	t.Cleanup(func() { _ = ReleaseLock() })

	locked, err := AcquireLock()
	require.NoError(t, err)
	require.True(t, locked)

	// Reentrant within the process
	locked, err = AcquireLock()
	require.NoError(t, err)
	assert.True(t, locked)

	// Another handle on the same file is refused
	other := flock.New(filepath.Join(home, "batchget.lock"))
	got, err := other.TryLock()
	require.NoError(t, err)
	assert.False(t, got)

	require.NoError(t, ReleaseLock())

	got, err = other.TryLock()
	require.NoError(t, err)
	assert.True(t, got)
	require.NoError(t, other.Unlock())
}

func TestReleaseLock_NotHeld(t *testing.T) {
	assert.NoError(t, ReleaseLock())
}
