package network

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrResolution is returned when a family-constrained lookup yields nothing.
	ErrResolution = errors.New("name resolution failed")
	// ErrRouteQuery is returned when ip route show/get fails to run.
	ErrRouteQuery = errors.New("route query failed")
	// ErrNoRoute is a legitimate negative result: nothing matched.
	ErrNoRoute = errors.New("no matching route")
	// ErrInvalidRoute marks a route entry without an egress interface.
	ErrInvalidRoute = errors.New("route entry has no interface")
	// ErrNotADefaultRoute is returned when default-route correction is asked
	// to repair a route that is not a default route.
	ErrNotADefaultRoute = errors.New("route is not a default route")
	// ErrCorrectionFailed wraps any failed route or interface mutation.
	ErrCorrectionFailed = errors.New("route correction failed")
	// ErrCommandFailed is the base of every *CommandError.
	ErrCommandFailed = errors.New("command failed")
)

// CommandError records a failed OS command with its literal invocation and raw output.
type CommandError struct {
	Command string
	Output  string
	Err     error
}

func newCommandError(name string, args []string, output string, err error) *CommandError {
	return &CommandError{
		Command: strings.TrimSpace(name + " " + strings.Join(args, " ")),
		Output:  strings.TrimSpace(output),
		Err:     err,
	}
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command %q failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %q failed: %v, output: %s", e.Command, e.Err, e.Output)
}

// Unwrap exposes both ErrCommandFailed and the underlying exec error.
func (e *CommandError) Unwrap() []error {
	return []error{ErrCommandFailed, e.Err}
}
