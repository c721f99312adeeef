package dirlock

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	lock, err := New(dir, "worker-1")
	require.NoError(t, err)

	require.NoError(t, lock.Acquire())

	owner, err := os.ReadFile(filepath.Join(dir, LockFileName+".owner"))
	require.NoError(t, err)
	assert.Equal(t, "worker-1", string(owner))

	require.NoError(t, lock.Release())
	assert.NoFileExists(t, filepath.Join(dir, LockFileName+".owner"))
}

func TestReleaseWithoutAcquireIsSafe(t *testing.T) {
	lock, err := New(t.TempDir(), "worker-1")
	require.NoError(t, err)
	assert.NoError(t, lock.Release())
}

func TestConflictReportsPreviousOwner(t *testing.T) {
	dir := t.TempDir()

	first, err := New(dir, "worker-1")
	require.NoError(t, err)
	require.NoError(t, first.Acquire())

	second, err := New(dir, "worker-2")
	require.NoError(t, err)

	acquired := make(chan error, 1)
	go func() {
		acquired <- second.Acquire()
	}()

	// The second acquisition blocks until the first worker releases.
	select {
	case err := <-acquired:
		t.Fatalf("acquire returned before release: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release())

	select {
	case err := <-acquired:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConflict))
		assert.Contains(t, err.Error(), "worker-2")
		assert.Contains(t, err.Error(), "worker-1")
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never completed")
	}

	require.NoError(t, second.Release())
}

func TestNewValidation(t *testing.T) {
	_, err := New("", "worker-1")
	assert.Error(t, err)

	_, err = New(t.TempDir(), " ")
	assert.Error(t, err)
}
