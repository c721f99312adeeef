// Package dirlock implements the advisory per-directory exclusivity lock
// used when multiple harness workers might collide on one test directory.
// The lock is a best-effort diagnostic, not a correctness guarantee.
package dirlock

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/flock"
)

// LockFileName is the lock file created inside the guarded directory.
const LockFileName = ".dirlock"

// ErrConflict indicates the directory was locked by another owner. The
// conflicting acquisition still completes (blocking) before the error is
// returned, so the collision is observable in both workers' logs.
var ErrConflict = errors.New("directory already locked")

// Lock guards one test directory. The owner identity is persisted in a
// sidecar file so a colliding worker can report who held the lock.
type Lock struct {
	dir       string
	owner     string
	fileLock  *flock.Flock
	ownerPath string
	held      bool
}

// New constructs an unacquired lock for dir, owned by owner.
func New(dir string, owner string) (*Lock, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("directory is required")
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, errors.New("owner is required")
	}

	lockPath := dir + string(os.PathSeparator) + LockFileName
	return &Lock{
		dir:       dir,
		owner:     owner,
		fileLock:  flock.New(lockPath),
		ownerPath: lockPath + ".owner",
	}, nil
}

// Acquire takes the directory lock. On contention it blocks until the
// lock is obtained, then reports the previous owner through ErrConflict;
// the lock is held either way and must be released by the caller.
func (l *Lock) Acquire() error {
	if l == nil {
		return errors.New("lock is nil")
	}

	locked, err := l.fileLock.TryLock()
	if err != nil {
		return fmt.Errorf("try lock %s: %w", l.fileLock.Path(), err)
	}
	if locked {
		l.held = true
		l.writeOwner()
		return nil
	}

	previousOwner := l.readOwner()
	if err := l.fileLock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", l.fileLock.Path(), err)
	}
	l.held = true
	l.writeOwner()
	return fmt.Errorf("%w: %q wants %s but it was held by %q",
		ErrConflict, l.owner, l.dir, previousOwner)
}

// Release drops the lock. Safe to call when the lock was never acquired.
func (l *Lock) Release() error {
	if l == nil || !l.held {
		return nil
	}
	l.held = false
	_ = os.Remove(l.ownerPath)
	if err := l.fileLock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.fileLock.Path(), err)
	}
	return nil
}

// Owner returns the identity this lock writes on acquisition.
func (l *Lock) Owner() string {
	if l == nil {
		return ""
	}
	return l.owner
}

func (l *Lock) writeOwner() {
	// Owner bookkeeping is diagnostic only; failures are ignored.
	_ = os.WriteFile(l.ownerPath, []byte(l.owner), 0o600)
}

func (l *Lock) readOwner() string {
	data, err := os.ReadFile(l.ownerPath)
	if err != nil {
		return "unknown"
	}
	owner := strings.TrimSpace(string(data))
	if owner == "" {
		return "unknown"
	}
	return owner
}
