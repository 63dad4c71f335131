package network

import (
	"context"
	"fmt"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/logging"
)

// DefaultBounceDelay lets dhclient release fully before the interface returns.
const DefaultBounceDelay = 10 * time.Second

// Bouncer takes an interface down and back up through ifdown/ifup so that
// DHCP and the interface stack re-initialise.
type Bouncer struct {
	Executor CommandExecutor
	Clock    clock.Clock
	Logger   *logging.Logger
	DownCmd  string
	UpCmd    string
	Delay    time.Duration
}

// NewBouncer returns a Bouncer with the stock ifupdown commands.
func NewBouncer(exec CommandExecutor, clk clock.Clock, logger *logging.Logger) *Bouncer {
	if exec == nil {
		exec = DefaultCommandExecutor
	}
	if clk == nil {
		clk = clock.Default
	}
	if logger == nil {
		logger = logging.WithComponent("bounce")
	}
	return &Bouncer{
		Executor: exec,
		Clock:    clk,
		Logger:   logger,
		DownCmd:  "/sbin/ifdown",
		UpCmd:    "/sbin/ifup",
		Delay:    DefaultBounceDelay,
	}
}

// Bounce runs down, waits Delay, then runs up. A dry run executor gets no
// delay since the interface never went down.
func (b *Bouncer) Bounce(ctx context.Context, iface string) error {
	b.Logger.Info("bouncing interface", "iface", iface, "delay", b.Delay)

	if out, err := b.Executor.RunCommand(ctx, b.DownCmd, iface); err != nil {
		b.Logger.Error("interface down failed", "command", b.DownCmd+" "+iface, "output", out)
		return fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
	}

	if _, dry := b.Executor.(*DryRunExecutor); dry {
		b.Logger.Debug("dry run, skipping bounce delay", "iface", iface)
	} else if err := b.Clock.Sleep(ctx, b.Delay); err != nil {
		return err
	}

	if out, err := b.Executor.RunCommand(ctx, b.UpCmd, iface); err != nil {
		b.Logger.Error("interface up failed", "command", b.UpCmd+" "+iface, "output", out)
		return fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
	}

	b.Logger.Info("interface bounced", "iface", iface)
	return nil
}
