package testers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// DHCPClient is the part of nclient4.Client used for an active test.
type DHCPClient interface {
	Request(ctx context.Context, modifiers ...dhcpv4.Modifier) (*nclient4.Lease, error)
	Close() error
}

// DHCP times an address renewal on the test interface.
//
// In passive mode the system dhclient renews the existing lease, so the
// interface keeps its address. Active mode runs a full DORA exchange with
// nclient4 and does not apply the lease.
type DHCP struct {
	Source    string
	Mode      string
	Dhclient  string
	PIDFile   string
	Executor  network.CommandExecutor
	Clock     clock.Clock
	NewClient func(iface string) (DHCPClient, error)
}

func (d *DHCP) Name() string { return "dhcp" }

// Run renews on target.Interface; Host and Address are ignored.
func (d *DHCP) Run(ctx context.Context, target Target) (*export.Record, error) {
	if target.Interface == "" {
		return nil, execErr(d.Name(), errors.New("no test interface"))
	}
	clk := clockOr(d.Clock)

	var (
		elapsed time.Duration
		err     error
	)
	if d.Mode == config.DHCPActive {
		elapsed, err = d.active(ctx, clk, target.Interface)
	} else {
		elapsed, err = d.passive(ctx, clk, target.Interface)
	}
	if err != nil {
		return nil, execErr(d.Name(), err)
	}

	rec := export.NewRecord(d.Source, clk.Now())
	rec.Set("renewal_time_ms", int(elapsed/time.Millisecond))
	return rec, nil
}

func (d *DHCP) passive(ctx context.Context, clk clock.Clock, iface string) (time.Duration, error) {
	bin := d.Dhclient
	if bin == "" {
		bin = "dhclient"
	}
	pid := d.PIDFile
	if pid == "" {
		pid = "/tmp/dhclient.pid"
	}
	exec := executorOr(d.Executor)

	start := clk.Now()
	out, err := exec.RunCommand(ctx, bin, "-1", "-v", iface, "-pf", pid)
	elapsed := clk.Since(start)
	// dhclient forks into the background once bound; stop it so the
	// system's own client keeps ownership of the lease.
	_, _ = exec.RunCommand(ctx, "pkill", "-f", pid)

	if err != nil {
		return 0, err
	}
	if !strings.Contains(out, "DHCPACK") {
		return 0, fmt.Errorf("no DHCPACK from %s on %s", bin, iface)
	}
	return elapsed, nil
}

func (d *DHCP) active(ctx context.Context, clk clock.Clock, iface string) (time.Duration, error) {
	newClient := d.NewClient
	if newClient == nil {
		newClient = func(iface string) (DHCPClient, error) {
			return nclient4.New(iface)
		}
	}
	client, err := newClient(iface)
	if err != nil {
		return 0, fmt.Errorf("failed to open DHCP client on %s: %w", iface, err)
	}
	defer client.Close()

	start := clk.Now()
	lease, err := client.Request(ctx)
	if err != nil {
		return 0, fmt.Errorf("DHCP exchange on %s failed: %w", iface, err)
	}
	elapsed := clk.Since(start)
	if lease == nil || lease.ACK == nil {
		return 0, fmt.Errorf("no DHCPACK on %s", iface)
	}
	return elapsed, nil
}
