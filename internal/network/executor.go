package network

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// CommandExecutor abstracts running OS commands. Arguments are passed
// directly to the binary; no shell is involved.
type CommandExecutor interface {
	RunCommand(ctx context.Context, name string, arg ...string) (string, error)
}

// DefaultCommandExecutor is the executor used when none is injected.
var DefaultCommandExecutor CommandExecutor = &RealCommandExecutor{Timeout: 30 * time.Second}

// RealCommandExecutor runs commands with os/exec.
type RealCommandExecutor struct {
	// Timeout bounds each command when the context has no earlier deadline.
	Timeout time.Duration
}

// RunCommand runs name with args and returns the combined output. On a
// non-zero exit the output is still returned alongside a *CommandError.
func (r *RealCommandExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, arg...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", err, ctx.Err())
		}
		return string(output), newCommandError(name, arg, string(output), err)
	}
	return string(output), nil
}

// DryRunExecutor implements CommandExecutor but only records mutating
// commands. Read-only queries are delegated to Reader when set so that a
// dry run still sees the real routing table.
type DryRunExecutor struct {
	mu       sync.Mutex
	Reader   CommandExecutor
	Commands []string
}

// NewDryRunExecutor creates a dry run executor that reads through reader.
func NewDryRunExecutor(reader CommandExecutor) *DryRunExecutor {
	return &DryRunExecutor{
		Reader:   reader,
		Commands: make([]string, 0),
	}
}

// RunCommand records the command, or delegates it when it only reads state.
func (e *DryRunExecutor) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	if e.Reader != nil && isReadOnly(name, arg) {
		return e.Reader.RunCommand(ctx, name, arg...)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.Commands = append(e.Commands, strings.TrimSpace(name+" "+strings.Join(arg, " ")))
	return "", nil
}

func isReadOnly(name string, arg []string) bool {
	switch name {
	case "ip":
		for _, a := range arg {
			switch a {
			case "show", "get", "list":
				return true
			case "add", "del", "delete", "replace", "set", "flush":
				return false
			}
		}
		return false
	case "iw":
		return true
	}
	return false
}
