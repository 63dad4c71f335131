package connectivity

import (
	"sync"

	"grimm.is/pathprobe/internal/logging"
)

// Cycle is the state of one poll cycle. It is created by the poll driver and
// threaded through every check; nothing in it outlives the cycle.
type Cycle struct {
	ID     string
	Logger *logging.Logger

	mu         sync.Mutex
	threshold  int
	testIssues int
	issues     []string
}

// NewCycle creates the context for a cycle. logger gets poll_id bound.
func NewCycle(id string, threshold int, logger *logging.Logger) *Cycle {
	if logger == nil {
		logger = logging.WithComponent("poll")
	}
	return &Cycle{
		ID:        id,
		Logger:    logger.With("poll_id", id),
		threshold: threshold,
	}
}

// RecordTestIssue counts a failed or unrunnable test and returns the new total.
func (c *Cycle) RecordTestIssue(test string, err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.testIssues++
	c.issues = append(c.issues, test)
	c.Logger.Warn("test issue recorded", "test", test, "error", err, "issues", c.testIssues, "threshold", c.threshold)
	return c.testIssues
}

// TestIssues returns the number of issues recorded so far.
func (c *Cycle) TestIssues() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.testIssues
}

// Issues returns the names of the tests that recorded an issue, in order.
func (c *Cycle) Issues() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.issues...)
}

// ThresholdReached reports whether remaining tests must be skipped.
func (c *Cycle) ThresholdReached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold > 0 && c.testIssues >= c.threshold
}
