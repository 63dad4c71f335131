package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// OpenLogFile opens path for appending, creating its directory if needed.
func OpenLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

// MultiWriter combines multiple io.Writers (e.g., stderr + log file + syslog).
// Nil writers are skipped.
func MultiWriter(writers ...io.Writer) io.Writer {
	var ws []io.Writer
	for _, w := range writers {
		if w != nil {
			ws = append(ws, w)
		}
	}
	if len(ws) == 1 {
		return ws[0]
	}
	return io.MultiWriter(ws...)
}
