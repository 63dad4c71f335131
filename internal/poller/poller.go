// Package poller drives one poll cycle: watchdog and lock bookkeeping,
// interface readiness, the mandatory connectivity checks, the optional
// tests and the final status report.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/connectivity"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/health"
	"grimm.is/pathprobe/internal/logging"
	"grimm.is/pathprobe/internal/metrics"
	"grimm.is/pathprobe/internal/network"
	"grimm.is/pathprobe/internal/testers"
)

// InterfaceReader snapshots an interface.
type InterfaceReader interface {
	Snapshot(ctx context.Context, name string, kind network.AdapterKind) (network.InterfaceState, error)
}

// RouteVerifier checks and corrects the egress interface per destination.
type RouteVerifier interface {
	CheckInternet(ctx context.Context, host string, family network.Family) (connectivity.Result, error)
	CheckMgt(ctx context.Context, host string, family network.Family) (connectivity.Result, error)
	CheckTarget(ctx context.Context, host string, family network.Family) (connectivity.Result, error)
}

// Sender delivers records. *export.Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, rec *export.Record) error
	Flush(ctx context.Context) (int, error)
	SpoolOnly()
	Spooling() bool
	CanSpool() bool
	Exporter() export.Exporter
	Prune()
}

// Primer warms the neighbour cache towards a destination.
type Primer interface {
	Prime(ctx context.Context, target testers.Target)
}

// Deps are the collaborators of a Poller. Bouncer, Primer, Metrics and
// NewID may be nil.
type Deps struct {
	Config     *config.Config
	Clock      clock.Clock
	Logger     *logging.Logger
	Lock       *health.Lock
	Watchdog   *health.Watchdog
	Interfaces InterfaceReader
	Verifier   RouteVerifier
	Sender     Sender
	Bouncer    network.InterfaceBouncer
	Primer     Primer
	Jobs       []Job
	Metrics    *metrics.Registry
	NewID      func() string
}

// Poller runs poll cycles.
type Poller struct {
	cfg      *config.Config
	clock    clock.Clock
	logger   *logging.Logger
	lock     *health.Lock
	watchdog *health.Watchdog
	ifaces   InterfaceReader
	verifier RouteVerifier
	sender   Sender
	bouncer  network.InterfaceBouncer
	primer   Primer
	jobs     []Job
	metrics  *metrics.Registry
	newID    func() string
	policy   network.Policy
}

// New creates a poller from deps.
func New(d Deps) *Poller {
	p := &Poller{
		cfg:      d.Config,
		clock:    d.Clock,
		logger:   d.Logger,
		lock:     d.Lock,
		watchdog: d.Watchdog,
		ifaces:   d.Interfaces,
		verifier: d.Verifier,
		sender:   d.Sender,
		bouncer:  d.Bouncer,
		primer:   d.Primer,
		jobs:     d.Jobs,
		metrics:  d.Metrics,
		newID:    d.NewID,
		policy:   PolicyFromConfig(d.Config),
	}
	if p.clock == nil {
		p.clock = clock.Default
	}
	if p.logger == nil {
		p.logger = logging.WithComponent("poll")
	}
	if p.newID == nil {
		p.newID = func() string { return uuid.New().String() }
	}
	return p
}

// PolicyFromConfig maps the interface settings of cfg to a routing policy.
func PolicyFromConfig(cfg *config.Config) network.Policy {
	return network.Policy{
		Mode:   network.ProbeMode(cfg.ProbeMode),
		WLANIf: cfg.WLANIf,
		EthIf:  cfg.EthIf,
		MgtIf:  cfg.MgtIf,
	}
}

// Release removes the lock if this process holds it.
func (p *Poller) Release() error {
	return p.lock.Release()
}

// Run executes one cycle. The returned summary is always non-nil; a
// *connectivity.FatalError is returned when the cycle aborted. The caller
// releases the lock.
func (p *Poller) Run(ctx context.Context) (*Summary, error) {
	start := p.clock.Now()
	cycle := connectivity.NewCycle(p.newID(), p.cfg.TestIssueThreshold, p.logger)
	sum := &Summary{
		ID:      cycle.ID,
		Started: start,
		Network: NetworkFail,
		Address: AddressUnknown,
	}

	cycle.Logger.Info("poll cycle starting", "mode", p.cfg.ProbeMode)
	err := p.run(ctx, cycle, sum)

	sum.Duration = p.clock.Since(start)
	sum.Issues = cycle.Issues()

	var fatal *connectivity.FatalError
	if errors.As(err, &fatal) {
		sum.Fatal = fatal
		cycle.Logger.Error("poll cycle aborted", "stage", fatal.Stage, "error", fatal.Err)
	} else if err == nil {
		cycle.Logger.Info("poll cycle finished", "duration", sum.Duration.Round(time.Millisecond).String(), "issues", len(sum.Issues))
	}
	p.recordMetrics(sum)
	return sum, err
}

func (p *Poller) run(ctx context.Context, cycle *connectivity.Cycle, sum *Summary) error {
	exceeded, count, err := p.watchdog.Exceeded(p.cfg.WatchdogThreshold)
	if err != nil {
		cycle.Logger.Warn("failed to read watchdog", "error", err)
	}
	if exceeded {
		cycle.Logger.Warn("watchdog threshold exceeded, skipping cycle", "count", count, "threshold", p.cfg.WatchdogThreshold)
		return connectivity.Fatal(connectivity.StageWatchdog,
			fmt.Errorf("watchdog count %d exceeds threshold %d", count, p.cfg.WatchdogThreshold))
	}

	broken, err := p.lock.Acquire(p.cfg.LockStaleDuration())
	if err != nil {
		if errors.Is(err, health.ErrLocked) {
			p.bumpWatchdog(cycle)
		}
		return connectivity.Fatal(connectivity.StageLock, err)
	}
	if broken {
		cycle.Logger.Warn("broke stale lock", "path", p.lock.Path())
	}

	link, err := p.prepare(ctx, cycle, sum)
	if err != nil {
		p.bumpWatchdog(cycle)
		return err
	}

	p.sendNetworkInfo(ctx, cycle, link.state)
	for _, job := range p.jobs {
		sum.Statuses = append(sum.Statuses, TestStatus{Name: job.Name, Status: p.runJob(ctx, cycle, job, link)})
	}
	p.sendPollStatus(ctx, cycle, sum)

	if cycle.ThresholdReached() {
		cycle.Logger.Warn("test issue threshold reached", "issues", cycle.TestIssues(), "threshold", p.cfg.TestIssueThreshold)
		p.bumpWatchdog(cycle)
	} else if _, err := p.watchdog.Decrement(); err != nil {
		cycle.Logger.Warn("failed to decrement watchdog", "error", err)
	}

	p.sender.Prune()
	return nil
}

// cycleLink is what the link check established for a cycle.
type cycleLink struct {
	state    network.InterfaceState
	families Families
}

// prepare runs the viability stages that must all pass before any test runs.
func (p *Poller) prepare(ctx context.Context, cycle *connectivity.Cycle, sum *Summary) (cycleLink, error) {
	link, err := p.linkCheck(ctx, cycle)
	if err != nil {
		return link, connectivity.Fatal(connectivity.StageLink, err)
	}
	sum.Families = link.families

	for _, check := range []struct {
		family network.Family
		stage  string
	}{
		{network.IPv4, connectivity.StageIPv4},
		{network.IPv6, connectivity.StageIPv6},
	} {
		if !link.families.Has(check.family) {
			continue
		}
		if p.primer != nil {
			p.primer.Prime(ctx, testers.Target{Host: p.cfg.ConnectivityLookup, Family: check.family, Interface: link.state.Name})
		}
		if _, err := p.verifier.CheckInternet(ctx, p.cfg.ConnectivityLookup, check.family); err != nil {
			var fatal *connectivity.FatalError
			if errors.As(err, &fatal) {
				return link, err
			}
			return link, connectivity.Fatal(check.stage, err)
		}
	}

	sum.Network = NetworkOK
	sum.Address = primaryAddress(link.state)

	if err := p.mgtCheck(ctx, cycle, link.families); err != nil {
		if !p.sender.CanSpool() {
			return link, err
		}
		cycle.Logger.Warn("management connectivity down, spooling results", "error", err)
		p.sender.SpoolOnly()
		sum.SpoolOnly = true
	}

	n, err := p.sender.Flush(ctx)
	sum.Flushed = n
	if err != nil {
		cycle.Logger.Warn("spool flush stopped", "sent", n, "error", err)
	} else if n > 0 {
		cycle.Logger.Info("flushed spooled results", "sent", n)
	}
	return link, nil
}

// linkCheck requires the test interface to be up and, in wireless mode,
// associated. An enabled family without an address on the interface is
// dropped for the cycle; when none is left the interface is bounced and
// the check fails.
func (p *Poller) linkCheck(ctx context.Context, cycle *connectivity.Cycle) (cycleLink, error) {
	link := cycleLink{families: FamiliesFromConfig(p.cfg)}
	iface, err := p.policy.TestInterface()
	if err != nil {
		return link, err
	}
	kind := network.KindWired
	if p.policy.IsWireless() {
		kind = network.KindWireless
	}

	link.state, err = p.ifaces.Snapshot(ctx, iface, kind)
	if err != nil {
		return link, err
	}
	if link.state.Link != network.LinkUp {
		return link, fmt.Errorf("interface %s is down", iface)
	}
	if kind == network.KindWireless && !link.state.Wireless.Associated() {
		return link, fmt.Errorf("interface %s is not associated", iface)
	}

	if link.families.IPv4 && !link.state.HasIPv4() {
		cycle.Logger.Warn("no usable IPv4 address, IPv4 tests disabled", "iface", iface)
		link.families.IPv4 = false
	}
	if link.families.IPv6 && !link.state.HasIPv6() {
		cycle.Logger.Warn("no global IPv6 address, IPv6 tests disabled", "iface", iface)
		link.families.IPv6 = false
	}
	if !link.families.Any() {
		if p.bouncer != nil {
			if err := p.bouncer.Bounce(ctx, iface); err != nil {
				cycle.Logger.Warn("interface bounce failed", "iface", iface, "error", err)
			}
		}
		return link, fmt.Errorf("interface %s has no usable address for any enabled family", iface)
	}
	return link, nil
}

// mgtCheck verifies the route to the exporter and probes it. It is skipped
// when results only go to the local spool.
func (p *Poller) mgtCheck(ctx context.Context, cycle *connectivity.Cycle, families Families) error {
	exp := p.sender.Exporter()
	if exp == nil || p.cfg.Exporter == nil || p.cfg.Exporter.Type == config.ExporterSpooler {
		return nil
	}

	host := p.cfg.Exporter.Host
	family, ok := families.For(host)
	if !ok {
		return connectivity.Fatal(connectivity.StageMgt, fmt.Errorf("no usable address family for %s", host))
	}
	if _, err := p.verifier.CheckMgt(ctx, host, family); err != nil {
		var fatal *connectivity.FatalError
		if errors.As(err, &fatal) {
			return err
		}
		return connectivity.Fatal(connectivity.StageMgt, err)
	}

	if prober, ok := exp.(export.Prober); ok {
		if err := prober.Probe(ctx); err != nil {
			return connectivity.Fatal(connectivity.StageMgt, err)
		}
		cycle.Logger.Debug("exporter reachable", "exporter", exp.Name())
	}
	return nil
}

func (p *Poller) bumpWatchdog(cycle *connectivity.Cycle) {
	n, err := p.watchdog.Increment()
	if err != nil {
		cycle.Logger.Warn("failed to increment watchdog", "error", err)
		return
	}
	cycle.Logger.Info("watchdog incremented", "count", n)
}

func (p *Poller) recordMetrics(sum *Summary) {
	if p.metrics == nil {
		return
	}
	stage := ""
	if sum.Fatal != nil {
		stage = sum.Fatal.Stage
	}
	p.metrics.RecordPoll(sum.Duration, p.clock.Now(), stage)
	p.metrics.TestIssues.Set(float64(len(sum.Issues)))
	for _, s := range sum.Statuses {
		p.metrics.SetTestStatus(s.Name, s.Status, AllStatuses)
	}
	if n, err := p.watchdog.Count(); err == nil {
		p.metrics.WatchdogCount.Set(float64(n))
	}
	if b, ok := p.sender.(interface{ Backlog() int }); ok {
		p.metrics.SpoolBacklog.Set(float64(b.Backlog()))
	}
	if p.cfg.MetricsTextfile != "" {
		if err := p.metrics.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
			p.logger.Warn("failed to write metrics", "path", p.cfg.MetricsTextfile, "error", err)
		}
	}
}

// testerTarget builds the tester input for a route-checked destination.
func testerTarget(host string, res connectivity.Result, family network.Family, iface string, index int) testers.Target {
	return testers.Target{
		Host:      host,
		Address:   res.Address,
		Family:    family,
		Interface: iface,
		Index:     index,
	}
}
