package testers

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func v4Target(host, addr string) Target {
	return Target{
		Host:      host,
		Address:   netip.MustParseAddr(addr),
		Family:    network.IPv4,
		Interface: "wlan0",
		Index:     1,
	}
}

// funcExecutor runs commands through a function so tests can advance a
// mock clock while a command "runs".
type funcExecutor struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(name string, args []string) (string, error)
}

func (f *funcExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, arg...))
	f.mu.Unlock()
	return f.fn(name, arg)
}

func TestRunWithTimeout_Completes(t *testing.T) {
	rec, err := RunWithTimeout(context.Background(), time.Second, "ping", func(ctx context.Context) (*export.Record, error) {
		return export.NewRecord("src", epoch), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "src", rec.Source)
}

func TestRunWithTimeout_AbandonsStuckTest(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := RunWithTimeout(context.Background(), 50*time.Millisecond, "iperf3_tcp", func(ctx context.Context) (*export.Record, error) {
		// Ignores ctx on purpose.
		<-release
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrTestTimeout)
	assert.Contains(t, err.Error(), "iperf3_tcp")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunWithTimeout_DeadlineFromTest(t *testing.T) {
	_, err := RunWithTimeout(context.Background(), 20*time.Millisecond, "dns", func(ctx context.Context) (*export.Record, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTestTimeout)
}

func TestRunWithTimeout_PassesErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := RunWithTimeout(context.Background(), time.Second, "http", func(ctx context.Context) (*export.Record, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTestTimeout)
}

func TestRunWithTimeout_ZeroMeansNoDeadline(t *testing.T) {
	_, err := RunWithTimeout(context.Background(), 0, "http", func(ctx context.Context) (*export.Record, error) {
		_, ok := ctx.Deadline()
		assert.False(t, ok)
		return nil, nil
	})
	assert.NoError(t, err)
}

func TestClockOr(t *testing.T) {
	mc := clock.NewMockClock(epoch)
	assert.Same(t, mc, clockOr(mc))
	assert.Equal(t, clock.Default, clockOr(nil))
}
