// Package pipeline sequences a release run: exclusive per-branch locking,
// the five-step publish state machine, and the checkpoint that makes a
// partially failed run resumable.
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrLockHeld marks a second run attempting to release the same branch
// while the first still holds the lock.
var ErrLockHeld = errors.New("release lock already held for branch")

var (
	lockWaitLimit  = 5 * time.Second
	lockRetryDelay = 100 * time.Millisecond
)

// Lock is an acquired per-branch release lock.
type Lock struct {
	path string
}

func lockPath(dir, branch string) string {
	name := strings.NewReplacer("/", "-", "\\", "-").Replace(branch)
	return filepath.Join(dir, "locks", name+".lock")
}

// AcquireLock takes the exclusive lock for branch under the state dir,
// retrying briefly in case a previous run is just finishing. Two runs must
// never bump the same branch's version concurrently.
func AcquireLock(stateDir, branch, runID string) (*Lock, error) {
	path := lockPath(stateDir, branch)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("acquire lock for %q: mkdir: %w", branch, err)
	}

	deadline := time.Now().Add(lockWaitLimit)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%s\n", runID)
			if closeErr := f.Close(); closeErr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("acquire lock for %q: %w", branch, closeErr)
			}
			return &Lock{path: path}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock for %q: %w", branch, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("acquire lock for %q: %w", branch, ErrLockHeld)
		}
		time.Sleep(lockRetryDelay)
	}
}

// Release drops the lock. Safe to call once per acquired lock.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
