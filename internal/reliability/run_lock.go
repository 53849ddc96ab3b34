// Package reliability provides the cycle run lock and the ledger archive.
package reliability

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrCycleInProgress is returned when another run holds a fresh lock
var ErrCycleInProgress = errors.New("cycle already in progress")

// ErrLockNotHeld is returned by Release when the lock file belongs to someone else
var ErrLockNotHeld = errors.New("run lock not held by this instance")

// LockInfo is the content of the lock file
type LockInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Holder    string    `json:"holder,omitempty"`
	PID       int       `json:"pid"`
}

// RunLock is a file lock that keeps cycles from overlapping, across
// processes as well as goroutines
type RunLock struct {
	lockPath string
	timeout  time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu   sync.Mutex
	held []byte // exact content written by the last successful Acquire
}

// NewRunLock creates a lock at lockPath. A lock older than timeout is
// considered abandoned and taken over.
func NewRunLock(lockPath string, timeout time.Duration, log zerolog.Logger) *RunLock {
	return &RunLock{
		lockPath: lockPath,
		timeout:  timeout,
		log:      log.With().Str("component", "run_lock").Logger(),
		now:      time.Now,
	}
}

// Path returns the lock file path
func (l *RunLock) Path() string {
	return l.lockPath
}

// Acquire takes the lock for holder.
// It returns ErrCycleInProgress when a fresh lock exists.
func (l *RunLock) Acquire(holder string) error {
	if err := os.MkdirAll(filepath.Dir(l.lockPath), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := l.create(holder)
		if err == nil {
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}

		seen, err := os.ReadFile(l.lockPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("failed to read lock file: %w", err)
		}

		var info LockInfo
		if err := json.Unmarshal(seen, &info); err != nil {
			// Unreadable lock files are treated as abandoned
			l.log.Warn().Err(err).Msg("Taking over unreadable run lock")
		} else {
			age := l.now().Sub(info.Timestamp)
			if age < l.timeout {
				return fmt.Errorf("%w (held by pid %d for %s)", ErrCycleInProgress, info.PID, age.Round(time.Second))
			}
			l.log.Warn().
				Int("pid", info.PID).
				Str("age", age.String()).
				Msg("Taking over stale run lock")
		}

		if err := l.removeIfUnchanged(seen); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w (lock contended)", ErrCycleInProgress)
}

// removeIfUnchanged removes the lock file only if it still holds expected.
// Removers serialize on a takeover guard file; creators only succeed on an
// absent path, so the file cannot change between the comparison and the removal.
func (l *RunLock) removeIfUnchanged(expected []byte) error {
	guard := l.lockPath + ".takeover"
	g, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("failed to create takeover guard: %w", err)
		}
		if st, serr := os.Stat(guard); serr == nil && l.now().Sub(st.ModTime()) > l.timeout {
			l.log.Warn().Str("guard", guard).Msg("Removing abandoned takeover guard")
			_ = os.Remove(guard)
		}
		return fmt.Errorf("%w (lock takeover in progress)", ErrCycleInProgress)
	}
	_ = g.Close()
	defer os.Remove(guard)

	current, err := os.ReadFile(l.lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read lock file: %w", err)
	}
	if !bytes.Equal(current, expected) {
		return fmt.Errorf("%w (lock replaced concurrently)", ErrCycleInProgress)
	}
	if err := os.Remove(l.lockPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock: %w", err)
	}
	return nil
}

func (l *RunLock) create(holder string) error {
	f, err := os.OpenFile(l.lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	info := LockInfo{PID: os.Getpid(), Timestamp: l.now(), Holder: holder}
	data, err := json.MarshalIndent(info, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(l.lockPath)
		return fmt.Errorf("failed to write lock file: %w", err)
	}

	l.mu.Lock()
	l.held = data
	l.mu.Unlock()

	l.log.Debug().
		Str("lock_path", l.lockPath).
		Str("holder", holder).
		Msg("Run lock acquired")
	return nil
}

// Release removes the lock if this instance still holds it.
// A lock taken over by another run is left in place and ErrLockNotHeld
// is returned.
func (l *RunLock) Release() error {
	l.mu.Lock()
	held := l.held
	l.held = nil
	l.mu.Unlock()

	if held == nil {
		if info, err := l.Check(); err == nil && info != nil {
			return ErrLockNotHeld
		}
		return nil
	}

	if err := l.removeIfUnchanged(held); err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			l.log.Warn().Str("lock_path", l.lockPath).Msg("Run lock was taken over, leaving it in place")
			return ErrLockNotHeld
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	l.log.Debug().Str("lock_path", l.lockPath).Msg("Run lock released")
	return nil
}

// Check returns the current lock holder, or nil when unlocked
func (l *RunLock) Check() (*LockInfo, error) {
	data, err := os.ReadFile(l.lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	return &info, nil
}
