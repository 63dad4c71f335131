// Package health holds the state a poll cycle shares with the next one: the
// process lock and the watchdog counter. It also reports on them for the
// status command.
package health

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"grimm.is/pathprobe/internal/clock"
)

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check.
type Check struct {
	Name        string        `json:"name"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	LastChecked time.Time     `json:"last_checked"`
	Duration    time.Duration `json:"duration_ms"`
}

// Report represents the overall health report.
type Report struct {
	Status    Status    `json:"status"`
	Checks    []Check   `json:"checks"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckFunc is a function that performs a health check.
type CheckFunc func(ctx context.Context) Check

// Checker performs health checks.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// NewChecker creates an empty checker.
func NewChecker() *Checker {
	return &Checker{checks: make(map[string]CheckFunc)}
}

// Register adds a health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Check runs all health checks and returns a report with checks sorted by name.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	checkFuncs := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checkFuncs[name] = fn
	}
	c.mu.RUnlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks []Check
	)
	overallStatus := StatusHealthy

	for name, fn := range checkFuncs {
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			start := clock.Now()
			check := fn(ctx)
			check.Name = name
			check.LastChecked = start
			check.Duration = clock.Since(start)

			mu.Lock()
			checks = append(checks, check)
			if check.Status == StatusUnhealthy {
				overallStatus = StatusUnhealthy
			} else if check.Status == StatusDegraded && overallStatus != StatusUnhealthy {
				overallStatus = StatusDegraded
			}
			mu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })
	return Report{
		Status:    overallStatus,
		Checks:    checks,
		Timestamp: clock.Now(),
	}
}

// LockCheck is degraded while a poll holds the lock and unhealthy once the
// lock is stale.
func LockCheck(l *Lock, staleAfter time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		age, ok, err := l.Age()
		switch {
		case err != nil:
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		case !ok:
			return Check{Status: StatusHealthy, Message: "free"}
		case age >= staleAfter:
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("stale, held for %v", age.Round(time.Second))}
		}
		return Check{Status: StatusDegraded, Message: fmt.Sprintf("held for %v", age.Round(time.Second))}
	}
}

// WatchdogCheck is unhealthy once the counter is above threshold and
// degraded while it is non-zero.
func WatchdogCheck(w *Watchdog, threshold int) CheckFunc {
	return func(ctx context.Context) Check {
		exceeded, n, err := w.Exceeded(threshold)
		switch {
		case err != nil:
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		case exceeded:
			return Check{Status: StatusUnhealthy, Message: fmt.Sprintf("count %d above threshold %d", n, threshold)}
		case n > 0:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("count %d", n)}
		}
		return Check{Status: StatusHealthy, Message: "count 0"}
	}
}

// InterfaceCheck verifies an interface exists and is administratively up.
func InterfaceCheck(name string) CheckFunc {
	return func(ctx context.Context) Check {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		if ifi.Flags&net.FlagUp == 0 {
			return Check{Status: StatusUnhealthy, Message: "interface down"}
		}
		return Check{Status: StatusHealthy, Message: "up"}
	}
}
