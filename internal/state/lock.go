package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 1 * time.Second
	lockRetries    = 3
)

// ErrLocked is returned when another live process holds the conversion
// lock.
var ErrLocked = errors.New("output directory is locked by another pdf-convert process")

// Lock is the exclusive advisory lock one conversion holds on its output
// directory for its whole lifetime.
type Lock struct {
	fl    *flock.Flock
	owner string
}

type lockOwner struct {
	PID     int       `json:"pid"`
	Token   string    `json:"token"`
	Started time.Time `json:"started"`
}

func lockPath(outputDir string) string {
	return filepath.Join(outputDir, FileName+".lock")
}

// AcquireLock takes the advisory lock on the state file. It retries
// transient failures and polls for up to five seconds before giving up
// with an actionable error. A stale lock — holder process no longer
// alive — is reported so the caller can decide whether a resume is safe.
func AcquireLock(ctx context.Context, outputDir string) (*Lock, error) {
	path := lockPath(outputDir)
	fl := flock.New(path)

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < lockRetries; attempt++ {
		ok, err := fl.TryLockContext(ctx, lockRetryDelay)
		if ok {
			l := &Lock{fl: fl, owner: uuid.New().String()}
			if err := l.writeOwner(path); err != nil {
				fl.Unlock()
				return nil, err
			}
			return l, nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			lastErr = err
			select {
			case <-ctx.Done():
			case <-time.After(lockRetryDelay):
			}
			continue
		}
		break
	}
	if lastErr != nil {
		return nil, fmt.Errorf("acquiring lock: %w", lastErr)
	}
	if pid, ok := holderPID(path); ok {
		return nil, fmt.Errorf("%w (pid %d) — wait for it to finish or remove %s", ErrLocked, pid, path)
	}
	return nil, fmt.Errorf("%w — wait for it to finish or remove %s", ErrLocked, path)
}

func (l *Lock) writeOwner(path string) error {
	data, err := json.Marshal(lockOwner{PID: os.Getpid(), Token: l.owner, Started: time.Now().UTC()})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Release drops the lock and removes the lock file.
func (l *Lock) Release() error {
	path := l.fl.Path()
	if err := l.fl.Unlock(); err != nil {
		return err
	}
	os.Remove(path)
	return nil
}

// StaleHolder reports whether a lock file exists in outputDir whose
// recorded holder process is no longer alive. Combined with an
// in_progress status this permits a resume with a warning.
func StaleHolder(outputDir string) (pid int, stale bool) {
	pid, ok := holderPID(lockPath(outputDir))
	if !ok {
		return 0, false
	}
	return pid, !processAlive(pid)
}

func holderPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var o lockOwner
	if err := json.Unmarshal(data, &o); err != nil || o.PID == 0 {
		return 0, false
	}
	return o.PID, true
}

func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
