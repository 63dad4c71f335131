package health

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Watchdog is a decimal failure counter persisted in a small file. An
// external agent reads it and reboots the probe once it passes a threshold.
type Watchdog struct {
	path string
}

// NewWatchdog creates a watchdog backed by path.
func NewWatchdog(path string) *Watchdog {
	return &Watchdog{path: path}
}

// Path returns the counter file.
func (w *Watchdog) Path() string {
	return w.path
}

// Count returns the current value. A missing or corrupt file counts as zero.
func (w *Watchdog) Count() (int, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read watchdog file: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		// Corrupt state, reset
		return 0, nil
	}
	return n, nil
}

// Increment adds one and returns the new value.
func (w *Watchdog) Increment() (int, error) {
	n, err := w.Count()
	if err != nil {
		return 0, err
	}
	n++
	return n, w.save(n)
}

// Decrement subtracts one, never going below zero, and returns the new value.
func (w *Watchdog) Decrement() (int, error) {
	n, err := w.Count()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	n--
	return n, w.save(n)
}

// Exceeded reports whether the count is above threshold.
func (w *Watchdog) Exceeded(threshold int) (bool, int, error) {
	n, err := w.Count()
	if err != nil {
		return false, 0, err
	}
	return n > threshold, n, nil
}

func (w *Watchdog) save(n int) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create watchdog dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".watchdog-*")
	if err != nil {
		return fmt.Errorf("failed to write watchdog file: %w", err)
	}
	if _, err := tmp.WriteString(strconv.Itoa(n) + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write watchdog file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), w.path)
}
