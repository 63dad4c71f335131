// Package testers runs the protocol tests of a poll cycle. Each tester
// produces one export.Record per target and knows nothing about routing;
// the poll driver verifies the route before calling Run.
package testers

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

var (
	// ErrTestTimeout means a test ran past its wall-clock budget and was abandoned.
	ErrTestTimeout = errors.New("test timed out")
	// ErrTestExecution means the tester itself failed for reasons unrelated to routing.
	ErrTestExecution = errors.New("test execution failed")
)

// Target is a resolved, route-checked test destination.
type Target struct {
	Host      string
	Address   netip.Addr
	Family    network.Family
	Interface string
	// Index is the 1-based position of the target in its test's list.
	Index int
}

// Tester runs one kind of test against one target.
type Tester interface {
	Name() string
	Run(ctx context.Context, target Target) (*export.Record, error)
}

// RunWithTimeout runs fn with a deadline of d. If fn has not returned when
// the deadline passes it is abandoned and ErrTestTimeout is returned.
func RunWithTimeout(ctx context.Context, d time.Duration, name string, fn func(ctx context.Context) (*export.Record, error)) (*export.Record, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		rec *export.Record
		err error
	}
	ch := make(chan result, 1)
	go func() {
		rec, err := fn(ctx)
		ch <- result{rec, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v: %w", ErrTestTimeout, name, d, r.err)
		}
		return r.rec, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %v", ErrTestTimeout, name, d)
		}
		return nil, ctx.Err()
	}
}

func execErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrTestExecution, name, err)
}

func ms(d time.Duration) float64 {
	return round2(float64(d) / float64(time.Millisecond))
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}

func round2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

func clockOr(c clock.Clock) clock.Clock {
	if c == nil {
		return clock.Default
	}
	return c
}

func executorOr(e network.CommandExecutor) network.CommandExecutor {
	if e == nil {
		return &network.RealCommandExecutor{}
	}
	return e
}
