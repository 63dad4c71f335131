package poller

import (
	"fmt"
	"time"

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

// speedtestRouteHost is checked before a speedtest, whose server is picked
// by the client.
const speedtestRouteHost = "8.8.8.8"

// Build wires a poller with the real collaborators for cfg. The returned
// dispatcher must be closed by the caller.
func Build(cfg *config.Config, exec network.CommandExecutor, logger *logging.Logger) (*Poller, *export.Dispatcher, error) {
	if exec == nil {
		exec = network.DefaultCommandExecutor
	}
	if logger == nil {
		logger = logging.WithComponent("poll")
	}
	clk := clock.Default

	verifier, collector := NewVerifier(cfg, exec, clk, logger)
	reg := metrics.New()
	verifier.OnCorrection = func(family network.Family, category connectivity.Category, ok bool) {
		reg.RecordCorrection(string(family), string(category), ok)
	}

	dispatcher, err := export.NewDispatcherFromConfig(cfg, clk, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up exporter: %w", err)
	}

	p := New(Deps{
		Config:     cfg,
		Clock:      clk,
		Logger:     logger,
		Lock:       health.NewLock(cfg.LockFile, clk),
		Watchdog:   health.NewWatchdog(cfg.WatchdogFile),
		Interfaces: collector,
		Verifier:   verifier,
		Sender:     dispatcher,
		Bouncer:    newBouncer(cfg, exec, clk, logger),
		Primer:     &testers.Ping{Clock: clk},
		Jobs:       Jobs(cfg, exec, clk),
		Metrics:    reg,
	})
	return p, dispatcher, nil
}

// NewVerifier builds the route verifier for cfg and the interface collector
// it reads addresses from.
func NewVerifier(cfg *config.Config, exec network.CommandExecutor, clk clock.Clock, logger *logging.Logger) (*connectivity.Verifier, *network.Collector) {
	routeCfg := network.RouteOpsConfig{
		Executor:   exec,
		Clock:      clk,
		Logger:     logger.WithComponent("route"),
		TraceTable: cfg.Debug,
	}
	bouncer := newBouncer(cfg, exec, clk, logger)

	routes := network.RouteOpsSet{
		V4: network.NewIPv4RouteOps(routeCfg, network.LeaseReader{Pattern: cfg.LeasePattern()}, bouncer),
		V6: network.NewIPv6RouteOps(routeCfg, network.NDPRouterFinder{Timeout: 3 * time.Second}),
	}

	collector := network.NewCollector(nil, exec, nil, logger.WithComponent("iface"))
	verifier := connectivity.NewVerifier(network.NewResolver(logger), routes, PolicyFromConfig(cfg), collector, logger.WithComponent("connectivity"))
	return verifier, collector
}

func newBouncer(cfg *config.Config, exec network.CommandExecutor, clk clock.Clock, logger *logging.Logger) *network.Bouncer {
	b := network.NewBouncer(exec, clk, logger.WithComponent("bounce"))
	b.DownCmd = cfg.IfDownCmd
	b.UpCmd = cfg.IfUpCmd
	b.Delay = cfg.BounceDelayDuration()
	return b
}

// Jobs returns the optional tests in the order they run. Tests without a
// config block are present but not enabled.
func Jobs(cfg *config.Config, exec network.CommandExecutor, clk clock.Clock) []Job {
	pinger := &testers.Ping{Clock: clk}
	if c := cfg.Ping; c != nil {
		pinger.Source = c.DataFile
		pinger.Count = c.Count
		pinger.Interval = time.Duration(c.IntervalMS) * time.Millisecond
	}

	jobs := []Job{
		speedtestJob(cfg.Speedtest, exec, clk),
		{Name: "ping", Enabled: cfg.Ping != nil && cfg.Ping.Enabled, Targets: targets(cfg.Ping), RouteHost: SameHost, Tester: pinger},
	}

	if c := cfg.DNS; c != nil {
		jobs = append(jobs, Job{Name: "dns", Enabled: c.Enabled, Targets: c.Targets,
			Tester: &testers.DNS{Source: c.DataFile, Server: c.Server, Clock: clk}})
	} else {
		jobs = append(jobs, Job{Name: "dns"})
	}

	if c := cfg.HTTP; c != nil {
		jobs = append(jobs, Job{Name: "http", Enabled: c.Enabled, Targets: c.Targets, RouteHost: URLHost,
			Tester: &testers.HTTP{Source: c.DataFile, Clock: clk}})
	} else {
		jobs = append(jobs, Job{Name: "http"})
	}

	jobs = append(jobs,
		iperfJob("iperf_tcp", cfg.IperfTCP, false, exec, clk, nil),
		iperfJob("iperf_udp", cfg.IperfUDP, true, exec, clk, pinger),
	)

	if c := cfg.DHCP; c != nil {
		iface, _ := PolicyFromConfig(cfg).TestInterface()
		jobs = append(jobs, Job{Name: "dhcp", Enabled: c.Enabled, Targets: []string{iface},
			Tester: &testers.DHCP{Source: c.DataFile, Mode: c.Mode, Executor: exec, Clock: clk}})
	} else {
		jobs = append(jobs, Job{Name: "dhcp"})
	}

	if c := cfg.SMB; c != nil {
		jobs = append(jobs, Job{Name: "smb", Enabled: c.Enabled, Targets: []string{c.Host}, RouteHost: SameHost,
			Tester: &testers.SMB{
				Source:   c.DataFile,
				Share:    c.Share,
				File:     c.File,
				Username: c.Username,
				Password: c.Password,
				Executor: exec,
				Clock:    clk,
			}})
	} else {
		jobs = append(jobs, Job{Name: "smb"})
	}
	return jobs
}

func targets(c *config.PingConfig) []string {
	if c == nil {
		return nil
	}
	return c.Targets
}

func speedtestJob(c *config.SpeedtestConfig, exec network.CommandExecutor, clk clock.Clock) Job {
	if c == nil {
		return Job{Name: "speedtest"}
	}
	return Job{
		Name:      "speedtest",
		Enabled:   c.Enabled,
		Targets:   []string{""},
		RouteHost: FixedHost(speedtestRouteHost),
		Tester:    &testers.Speedtest{Source: c.DataFile, ServerID: c.ServerID, Executor: exec, Clock: clk},
	}
}

func iperfJob(name string, c *config.IperfConfig, udp bool, exec network.CommandExecutor, clk clock.Clock, rtt testers.RTTProber) Job {
	if c == nil {
		return Job{Name: name}
	}
	return Job{
		Name:      name,
		Enabled:   c.Enabled,
		Targets:   []string{c.Server},
		RouteHost: SameHost,
		Tester: &testers.Iperf{
			Source:    c.DataFile,
			UDP:       udp,
			Port:      c.Port,
			Duration:  c.Duration,
			Bandwidth: c.Bandwidth,
			Executor:  exec,
			Clock:     clk,
			RTT:       rtt,
		},
	}
}
