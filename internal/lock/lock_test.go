package lock

import (
	"path/filepath"
	"testing"

	"github.com/mvp-joe/pew/internal/pewerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for ProjectLock:
// - Acquire creates .pew/pew.lock and holds it
// - A second Acquire on the same project fails with PreconditionError
// - Release frees the lock for the next command and tolerates repeats
// - Release handles a nil lock gracefully

func TestAcquire_Exclusive(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	first, err := Acquire(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".pew", FileName), first.Path())
	assert.FileExists(t, first.Path())

	_, err = Acquire(root)
	require.Error(t, err)
	assert.True(t, pewerr.IsPrecondition(err))

	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := Acquire(root)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestRelease_NilLock(t *testing.T) {
	t.Parallel()

	var l *ProjectLock
	assert.NoError(t, l.Release())
}
