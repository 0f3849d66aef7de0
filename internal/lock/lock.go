// Package lock keeps two pew commands from mutating the same project's
// build tree at once.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/mvp-joe/pew/internal/pewerr"
)

// FileName is the lock file inside the project's .pew directory.
const FileName = "pew.lock"

// ProjectLock is a held per-project lock.
type ProjectLock struct {
	path string
	lock *flock.Flock
}

// Acquire takes <projectRoot>/.pew/pew.lock without blocking.
// A lock held by another process is reported as a PreconditionError.
func Acquire(projectRoot string) (*ProjectLock, error) {
	dir := filepath.Join(projectRoot, ".pew")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, FileName)
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return nil, pewerr.Preconditionf("another pew command is already running for this project (lock: %s)", path)
	}

	return &ProjectLock{path: path, lock: fl}, nil
}

// Path returns the lock file path.
func (l *ProjectLock) Path() string { return l.path }

// Release releases the lock. Safe to call more than once.
func (l *ProjectLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
