package connectivity

import "fmt"

// Poll-fatal stages.
const (
	StageLock     = "lock"
	StageWatchdog = "watchdog"
	StageLink     = "link_check"
	StageIPv4     = "ipv4_connectivity"
	StageIPv6     = "ipv6_connectivity"
	StageMgt      = "mgt_connectivity"
)

// FatalError aborts the whole poll cycle. Only the poll driver consumes it.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps err as a FatalError for stage.
func Fatal(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Stage: stage, Err: err}
}
