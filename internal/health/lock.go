package health

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"grimm.is/pathprobe/internal/clock"
)

// ErrLocked means another poll cycle holds a fresh lock.
var ErrLocked = errors.New("lock held by another poll cycle")

// Lock is the cross-process poll lock: a file holding the RFC3339 time it
// was taken. A lock older than the stale threshold belongs to a crashed run
// and is broken.
type Lock struct {
	path  string
	clock clock.Clock
	held  bool
}

// NewLock creates a lock at path. clk may be nil.
func NewLock(path string, clk clock.Clock) *Lock {
	if clk == nil {
		clk = clock.Default
	}
	return &Lock{path: path, clock: clk}
}

// Path returns the lock file.
func (l *Lock) Path() string {
	return l.path
}

// Held reports whether this process holds the lock.
func (l *Lock) Held() bool {
	return l.held
}

// Acquire creates the lock file. If a lock younger than staleAfter exists it
// returns ErrLocked. An older or unreadable lock is broken and replaced;
// broken reports whether that happened.
func (l *Lock) Acquire(staleAfter time.Duration) (broken bool, err error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			if err := l.write(f); err != nil {
				os.Remove(l.path)
				return broken, err
			}
			l.held = true
			return broken, nil
		}
		if !os.IsExist(err) {
			return broken, fmt.Errorf("failed to create lock file: %w", err)
		}

		taken, terr := l.Timestamp()
		if terr == nil && l.clock.Since(taken) < staleAfter {
			return false, fmt.Errorf("%w: %s taken at %s", ErrLocked, l.path, taken.Format(time.RFC3339))
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return broken, fmt.Errorf("failed to break stale lock: %w", err)
		}
		broken = true
	}
	return broken, fmt.Errorf("%w: %s recreated concurrently", ErrLocked, l.path)
}

func (l *Lock) write(f *os.File) error {
	defer f.Close()
	if err := lockFile(f); err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	defer unlockFile(f)

	if _, err := f.WriteString(l.clock.Now().UTC().Format(time.RFC3339) + "\n"); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return f.Sync()
}

// Timestamp returns the time recorded in the lock file, read under a shared
// flock so a half-written lock is never seen. An empty file is still being
// written by its owner and dates from its modification time.
func (l *Lock) Timestamp() (time.Time, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()
	if err := lockShared(f); err != nil {
		return time.Time{}, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	defer unlockFile(f)

	data, err := io.ReadAll(f)
	if err != nil {
		return time.Time{}, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		info, err := f.Stat()
		if err != nil {
			return time.Time{}, err
		}
		return info.ModTime(), nil
	}
	ts, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt lock file %s: %w", l.path, err)
	}
	return ts, nil
}

// Age returns how long the current lock has been held. ok is false when no
// lock file exists.
func (l *Lock) Age() (age time.Duration, ok bool, err error) {
	ts, err := l.Timestamp()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return l.clock.Since(ts), true, nil
}

// Release removes the lock file if this process holds it.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}
