package testers

import (
	"context"
	"fmt"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// PingRunner is the part of probing.Pinger the tester uses.
type PingRunner interface {
	RunWithContext(ctx context.Context) error
	Statistics() *probing.Statistics
	Stop()
}

// Ping sends ICMP echo requests with pro-bing.
type Ping struct {
	Source   string
	Count    int
	Interval time.Duration
	Clock    clock.Clock
	// NewRunner builds the pinger for a target; nil uses pro-bing.
	NewRunner func(target Target, count int, interval time.Duration) (PingRunner, error)
}

func (p *Ping) Name() string { return "ping" }

func newProbingRunner(target Target, count int, interval time.Duration) (PingRunner, error) {
	host := target.Host
	if target.Address.IsValid() {
		host = target.Address.String()
	}
	pinger := probing.New(host)
	if target.Family == network.IPv6 {
		pinger.SetNetwork("ip6")
	} else {
		pinger.SetNetwork("ip4")
	}
	if err := pinger.Resolve(); err != nil {
		return nil, fmt.Errorf("failed to create pinger: %w", err)
	}
	pinger.SetPrivileged(true)
	pinger.InterfaceName = target.Interface
	pinger.Count = count
	pinger.Interval = interval
	pinger.Timeout = time.Duration(count)*interval + 5*time.Second
	return pinger, nil
}

// Prime sends a single echo to populate the neighbour cache. Target may
// carry only a host name. Failures are ignored.
func (p *Ping) Prime(ctx context.Context, target Target) {
	if r, err := p.runner(target, 1, p.interval()); err == nil {
		_ = r.RunWithContext(ctx)
		r.Stop()
	}
}

func (p *Ping) interval() time.Duration {
	if p.Interval <= 0 {
		return 200 * time.Millisecond
	}
	return p.Interval
}

func (p *Ping) runner(target Target, count int, interval time.Duration) (PingRunner, error) {
	if p.NewRunner != nil {
		return p.NewRunner(target, count, interval)
	}
	return newProbingRunner(target, count, interval)
}

// Run pings target and records loss and RTT statistics. Complete loss is
// a test failure.
func (p *Ping) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(p.Clock)
	count := p.Count
	if count <= 0 {
		count = 10
	}
	r, err := p.runner(target, count, p.interval())
	if err != nil {
		return nil, execErr(p.Name(), err)
	}
	defer r.Stop()

	start := clk.Now()
	if err := r.RunWithContext(ctx); err != nil {
		return nil, execErr(p.Name(), err)
	}
	elapsed := clk.Since(start)

	stats := r.Statistics()
	if stats == nil || stats.PacketsSent == 0 {
		return nil, execErr(p.Name(), fmt.Errorf("no packets sent to %s", target.Host))
	}
	if stats.PacketsRecv == 0 {
		return nil, execErr(p.Name(), fmt.Errorf("no replies from %s", target.Host))
	}

	rec := export.NewRecord(p.Source, clk.Now())
	rec.Set("ping_index", target.Index).
		Set("ping_host", target.Host).
		Set("ip", target.Address.String()).
		Set("pkts_tx", stats.PacketsSent).
		Set("pkts_rx", stats.PacketsRecv).
		Set("percent_loss", round1(stats.PacketLoss)).
		Set("test_time_ms", int(elapsed/time.Millisecond)).
		Set("rtt_min_ms", ms(stats.MinRtt)).
		Set("rtt_avg_ms", ms(stats.AvgRtt)).
		Set("rtt_max_ms", ms(stats.MaxRtt)).
		Set("rtt_mdev_ms", ms(stats.StdDevRtt))
	return rec, nil
}

// AverageRTT runs a short ping and returns the mean RTT, or zero on failure.
func (p *Ping) AverageRTT(ctx context.Context, target Target, count int) time.Duration {
	r, err := p.runner(target, count, p.interval())
	if err != nil {
		return 0
	}
	defer r.Stop()
	if err := r.RunWithContext(ctx); err != nil {
		return 0
	}
	if s := r.Statistics(); s != nil && s.PacketsRecv > 0 {
		return s.AvgRtt
	}
	return 0
}
