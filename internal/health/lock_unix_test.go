//go:build unix

package health

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/clock"
)

func TestLock_TimestampWaitsForWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, lockFile(f))

	l := NewLock(path, clock.NewMockClock(t0))
	type result struct {
		ts  time.Time
		err error
	}
	done := make(chan result, 1)
	go func() {
		ts, err := l.Timestamp()
		done <- result{ts, err}
	}()

	select {
	case <-done:
		t.Fatal("timestamp read while the writer held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = f.WriteString(t0.Format(time.RFC3339) + "\n")
	require.NoError(t, err)
	require.NoError(t, unlockFile(f))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, t0.Equal(r.ts))
	case <-time.After(5 * time.Second):
		t.Fatal("timestamp never returned")
	}
}
