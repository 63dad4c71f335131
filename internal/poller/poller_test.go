package poller

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeIfaces struct {
	state network.InterfaceState
	err   error
}

func (f *fakeIfaces) Snapshot(ctx context.Context, name string, kind network.AdapterKind) (network.InterfaceState, error) {
	s := f.state
	s.Name, s.Kind = name, kind
	return s, f.err
}

type fakeVerifier struct {
	internet map[network.Family]error
	mgt      error
	target   map[string]error
	calls    []string
}

func (f *fakeVerifier) CheckInternet(ctx context.Context, host string, family network.Family) (connectivity.Result, error) {
	f.calls = append(f.calls, "internet "+string(family))
	return connectivity.Result{}, f.internet[family]
}

func (f *fakeVerifier) CheckMgt(ctx context.Context, host string, family network.Family) (connectivity.Result, error) {
	f.calls = append(f.calls, "mgt "+host)
	return connectivity.Result{}, f.mgt
}

func (f *fakeVerifier) CheckTarget(ctx context.Context, host string, family network.Family) (connectivity.Result, error) {
	f.calls = append(f.calls, "target "+host)
	if err := f.target[host]; err != nil {
		return connectivity.Result{}, err
	}
	return connectivity.Result{Address: netip.MustParseAddr("10.0.0.50"), Family: family}, nil
}

type fakeExporter struct {
	probeErr error
}

func (f *fakeExporter) Name() string                                       { return "fake" }
func (f *fakeExporter) Export(ctx context.Context, r *export.Record) error { return nil }
func (f *fakeExporter) Probe(ctx context.Context) error                    { return f.probeErr }

type fakeSender struct {
	sent     []*export.Record
	exporter export.Exporter
	canSpool bool
	spooling bool
	flushes  int
	pruned   bool
}

func (f *fakeSender) Send(ctx context.Context, r *export.Record) error {
	f.sent = append(f.sent, r)
	return nil
}

func (f *fakeSender) Flush(ctx context.Context) (int, error) {
	f.flushes++
	return 0, nil
}

func (f *fakeSender) SpoolOnly()                { f.spooling = true }
func (f *fakeSender) Spooling() bool            { return f.spooling }
func (f *fakeSender) CanSpool() bool            { return f.canSpool }
func (f *fakeSender) Exporter() export.Exporter { return f.exporter }
func (f *fakeSender) Prune()                    { f.pruned = true }

func (f *fakeSender) bySource(source string) []*export.Record {
	var out []*export.Record
	for _, r := range f.sent {
		if r.Source == source {
			out = append(out, r)
		}
	}
	return out
}

type fakeTester struct {
	name string
	err  error
	runs []testers.Target
}

func (f *fakeTester) Name() string { return f.name }

func (f *fakeTester) Run(ctx context.Context, target testers.Target) (*export.Record, error) {
	f.runs = append(f.runs, target)
	if f.err != nil {
		return nil, f.err
	}
	return export.NewRecord("pathprobe-"+f.name, epoch).Set("target", target.Host), nil
}

type fakeBouncer struct {
	calls []string
}

func (f *fakeBouncer) Bounce(ctx context.Context, iface string) error {
	f.calls = append(f.calls, iface)
	return nil
}

type fakePrimer struct {
	targets []testers.Target
}

func (f *fakePrimer) Prime(ctx context.Context, target testers.Target) {
	f.targets = append(f.targets, target)
}

type harness struct {
	cfg      *config.Config
	clk      *clock.MockClock
	ifaces   *fakeIfaces
	verifier *fakeVerifier
	sender   *fakeSender
	lock     *health.Lock
	watchdog *health.Watchdog
	bouncer  network.InterfaceBouncer
	primer   Primer
	jobs     []Job
	metrics  *metrics.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.LockFile = filepath.Join(dir, "pathprobe.lock")
	cfg.WatchdogFile = filepath.Join(dir, "pathprobe.watchdog")
	cfg.TestIssueThreshold = 2
	cfg.TestTimeout = 5
	cfg.Exporter = &config.ExporterConfig{Type: config.ExporterInflux, Host: "influx.example.net", Port: 8086}

	clk := clock.NewMockClock(epoch)
	h := &harness{
		cfg: cfg,
		clk: clk,
		ifaces: &fakeIfaces{state: network.InterfaceState{
			Link:     network.LinkUp,
			IPv4:     netip.MustParseAddr("192.168.1.20"),
			Wireless: &network.WirelessInfo{SSID: "lab", BSSID: "aa:bb:cc:dd:ee:ff", Channel: 36, FreqMHz: 5180, SignalDBm: -52},
		}},
		verifier: &fakeVerifier{},
		sender:   &fakeSender{exporter: &fakeExporter{}},
		lock:     health.NewLock(cfg.LockFile, clk),
		watchdog: health.NewWatchdog(cfg.WatchdogFile),
		metrics:  metrics.New(),
	}
	t.Cleanup(func() { _ = h.lock.Release() })
	return h
}

func (h *harness) poller() *Poller {
	return New(Deps{
		Config:     h.cfg,
		Clock:      h.clk,
		Logger:     logging.Discard(),
		Lock:       h.lock,
		Watchdog:   h.watchdog,
		Interfaces: h.ifaces,
		Verifier:   h.verifier,
		Sender:     h.sender,
		Bouncer:    h.bouncer,
		Primer:     h.primer,
		Jobs:       h.jobs,
		Metrics:    h.metrics,
		NewID:      func() string { return "poll-1" },
	})
}

func (h *harness) watchdogCount(t *testing.T) int {
	t.Helper()
	n, err := h.watchdog.Count()
	require.NoError(t, err)
	return n
}

func fatalStage(t *testing.T, err error) string {
	t.Helper()
	var fatal *connectivity.FatalError
	require.ErrorAs(t, err, &fatal)
	return fatal.Stage
}

func TestRun_CleanCycle(t *testing.T) {
	h := newHarness(t)
	_, err := h.watchdog.Increment()
	require.NoError(t, err)

	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{
		{Name: "speedtest"},
		{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8", "1.1.1.1"}, RouteHost: SameHost, Tester: ping},
	}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusNotEnabled, sum.Status("speedtest"))
	assert.Equal(t, StatusCompleted, sum.Status("ping"))
	assert.Equal(t, NetworkOK, sum.Network)
	assert.Equal(t, "192.168.1.20", sum.Address)
	assert.Empty(t, sum.Issues)
	assert.Nil(t, sum.Fatal)

	require.Len(t, ping.runs, 2)
	assert.Equal(t, 2, ping.runs[1].Index)
	assert.Equal(t, "wlan0", ping.runs[0].Interface)
	assert.Equal(t, network.IPv4, ping.runs[0].Family)

	assert.Equal(t, []string{"internet ipv4", "mgt influx.example.net", "target 8.8.8.8", "target 1.1.1.1"}, h.verifier.calls)
	assert.Equal(t, 1, h.sender.flushes)
	assert.True(t, h.sender.pruned)
	assert.Equal(t, 0, h.watchdogCount(t))
	assert.True(t, h.lock.Held())

	results := h.sender.bySource("pathprobe-ping")
	require.Len(t, results, 2)
	id, _ := results[0].Get("poll_id")
	assert.Equal(t, "poll-1", id)

	status := h.sender.bySource("pathprobe-poll-status")
	require.Len(t, status, 1)
	assert.Equal(t, "Completed", status[0].String("ping"))
	assert.Equal(t, "Not enabled", status[0].String("speedtest"))
	assert.Equal(t, "OK", status[0].String("network"))
	assert.Equal(t, "192.168.1.20", status[0].String("ip"))

	info := h.sender.bySource("pathprobe-network")
	require.Len(t, info, 1)
	assert.Equal(t, "lab", info[0].String("ssid"))
	assert.Equal(t, "-52", info[0].String("rssi"))
}

func TestRun_FreshLockExitsWithoutTests(t *testing.T) {
	h := newHarness(t)
	other := health.NewLock(h.cfg.LockFile, h.clk)
	_, err := other.Acquire(h.cfg.LockStaleDuration())
	require.NoError(t, err)
	defer other.Release()

	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8"}, RouteHost: SameHost, Tester: ping}}
	h.clk.Advance(10 * time.Minute)

	sum, err := h.poller().Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, health.ErrLocked)
	assert.Equal(t, connectivity.StageLock, fatalStage(t, err))
	assert.Empty(t, ping.runs)
	assert.Empty(t, h.sender.sent)
	assert.False(t, h.lock.Held())
	assert.Equal(t, 1, h.watchdogCount(t))
	assert.Equal(t, connectivity.StageLock, sum.Fatal.Stage)
}

func TestRun_StaleLockIsBroken(t *testing.T) {
	h := newHarness(t)
	other := health.NewLock(h.cfg.LockFile, h.clk)
	_, err := other.Acquire(h.cfg.LockStaleDuration())
	require.NoError(t, err)

	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8"}, RouteHost: SameHost, Tester: ping}}
	h.clk.Advance(31 * time.Minute)

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.Status("ping"))
	assert.True(t, h.lock.Held())
}

func TestRun_WatchdogExceededSkipsCycle(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		_, err := h.watchdog.Increment()
		require.NoError(t, err)
	}

	_, err := h.poller().Run(context.Background())
	assert.Equal(t, connectivity.StageWatchdog, fatalStage(t, err))
	assert.False(t, h.lock.Held())
	assert.Equal(t, 4, h.watchdogCount(t))
	assert.Empty(t, h.verifier.calls)
}

func TestRun_LinkCheckFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *harness)
	}{
		{"link down", func(h *harness) { h.ifaces.state.Link = network.LinkDown }},
		{"no ipv4", func(h *harness) { h.ifaces.state.IPv4 = netip.Addr{} }},
		{"no address for either family", func(h *harness) {
			h.cfg.IPv6Enabled = true
			h.ifaces.state.IPv4 = netip.Addr{}
		}},
		{"not associated", func(h *harness) { h.ifaces.state.Wireless = &network.WirelessInfo{} }},
		{"snapshot error", func(h *harness) { h.ifaces.err = errors.New("no such device") }},
		{"unknown mode", func(h *harness) { h.cfg.ProbeMode = "carrier-pigeon" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.mutate(h)

			sum, err := h.poller().Run(context.Background())
			assert.Equal(t, connectivity.StageLink, fatalStage(t, err))
			assert.Equal(t, NetworkFail, sum.Network)
			assert.Equal(t, AddressUnknown, sum.Address)
			assert.Equal(t, 1, h.watchdogCount(t))
			assert.Empty(t, h.verifier.calls)
		})
	}
}

func TestRun_MissingFamilyIsDropped(t *testing.T) {
	h := newHarness(t)
	h.cfg.IPv6Enabled = true
	bouncer := &fakeBouncer{}
	h.bouncer = bouncer

	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"2001:4860:4860::8888", "8.8.8.8", "example.com"}, RouteHost: SameHost, Tester: ping}}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Families{IPv4: true}, sum.Families)
	assert.Equal(t, []string{"internet ipv4", "mgt influx.example.net", "target 8.8.8.8", "target example.com"}, h.verifier.calls)
	require.Len(t, ping.runs, 2)
	assert.Equal(t, network.IPv4, ping.runs[1].Family)
	assert.Equal(t, StatusNotRun, sum.Status("ping"), "the IPv6 target is not run")
	assert.Empty(t, sum.Issues)
	assert.Equal(t, 0, h.watchdogCount(t))
	assert.Empty(t, bouncer.calls)
}

func TestRun_NoAddressBouncesInterface(t *testing.T) {
	h := newHarness(t)
	h.ifaces.state.IPv4 = netip.Addr{}
	bouncer := &fakeBouncer{}
	h.bouncer = bouncer

	_, err := h.poller().Run(context.Background())
	assert.Equal(t, connectivity.StageLink, fatalStage(t, err))
	assert.Equal(t, []string{"wlan0"}, bouncer.calls)
	assert.Equal(t, 1, h.watchdogCount(t))
}

func TestRun_PrimesBeforeInternetCheck(t *testing.T) {
	h := newHarness(t)
	primer := &fakePrimer{}
	h.primer = primer

	_, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, primer.targets, 1)
	assert.Equal(t, "google.com", primer.targets[0].Host)
	assert.Equal(t, "wlan0", primer.targets[0].Interface)
	assert.Equal(t, network.IPv4, primer.targets[0].Family)
}

func TestRun_EthernetModeSkipsAssociation(t *testing.T) {
	h := newHarness(t)
	h.cfg.ProbeMode = config.ModeEthernet
	h.ifaces.state.Wireless = nil
	h.ifaces.state.Wired = &network.WiredInfo{SpeedMbps: 1000, Duplex: "full"}

	_, err := h.poller().Run(context.Background())
	require.NoError(t, err)

	info := h.sender.bySource("pathprobe-network")
	require.Len(t, info, 1)
	assert.Equal(t, "eth0", info[0].String("interface"))
	assert.Equal(t, "1000", info[0].String("speed_mbps"))
}

func TestRun_InternetFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.verifier.internet = map[network.Family]error{
		network.IPv4: connectivity.Fatal(connectivity.StageIPv4, network.ErrCorrectionFailed),
	}

	_, err := h.poller().Run(context.Background())
	assert.Equal(t, connectivity.StageIPv4, fatalStage(t, err))
	assert.Equal(t, 1, h.watchdogCount(t))
	assert.Empty(t, h.sender.sent)
}

func TestRun_MgtFailure(t *testing.T) {
	t.Run("fatal without spool", func(t *testing.T) {
		h := newHarness(t)
		h.verifier.mgt = connectivity.Fatal(connectivity.StageMgt, network.ErrCorrectionFailed)

		_, err := h.poller().Run(context.Background())
		assert.Equal(t, connectivity.StageMgt, fatalStage(t, err))
		assert.Equal(t, 1, h.watchdogCount(t))
	})

	t.Run("probe failure falls back to spool", func(t *testing.T) {
		h := newHarness(t)
		h.sender.exporter = &fakeExporter{probeErr: errors.New("connection refused")}
		h.sender.canSpool = true
		ping := &fakeTester{name: "ping"}
		h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8"}, RouteHost: SameHost, Tester: ping}}

		sum, err := h.poller().Run(context.Background())
		require.NoError(t, err)
		assert.True(t, sum.SpoolOnly)
		assert.True(t, h.sender.spooling)
		assert.Equal(t, StatusCompleted, sum.Status("ping"))
		assert.Equal(t, 0, h.watchdogCount(t))
	})

	t.Run("spooler exporter skips the check", func(t *testing.T) {
		h := newHarness(t)
		h.cfg.Exporter = &config.ExporterConfig{Type: config.ExporterSpooler}
		h.verifier.mgt = errors.New("must not be called")

		_, err := h.poller().Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"internet ipv4"}, h.verifier.calls)
	})
}

func TestRun_TargetRouteFailureMarksTestNotRun(t *testing.T) {
	h := newHarness(t)
	h.verifier.target = map[string]error{"10.0.0.50": fmt.Errorf("%w: host route", network.ErrCorrectionFailed)}

	iperf := &fakeTester{name: "iperf3_tcp"}
	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{
		{Name: "iperf_tcp", Enabled: true, Targets: []string{"10.0.0.50"}, RouteHost: SameHost, Tester: iperf},
		{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8"}, RouteHost: SameHost, Tester: ping},
	}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotRun, sum.Status("iperf_tcp"))
	assert.Equal(t, StatusCompleted, sum.Status("ping"))
	assert.Equal(t, []string{"iperf_tcp"}, sum.Issues)
	assert.Empty(t, iperf.runs)
	assert.Len(t, ping.runs, 1)
	assert.Equal(t, 0, h.watchdogCount(t))
}

func TestRun_UnresolvedTargetIsNotAnIssue(t *testing.T) {
	h := newHarness(t)
	h.verifier.target = map[string]error{"nowhere.invalid": fmt.Errorf("%w: nowhere.invalid", network.ErrResolution)}

	ping := &fakeTester{name: "ping"}
	h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"nowhere.invalid", "8.8.8.8"}, RouteHost: SameHost, Tester: ping}}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotRun, sum.Status("ping"))
	assert.Empty(t, sum.Issues)
	require.Len(t, ping.runs, 1)
	assert.Equal(t, "8.8.8.8", ping.runs[0].Host)
}

func TestRun_IssueThresholdSkipsRemainingTests(t *testing.T) {
	h := newHarness(t)
	failing := errors.New("iperf3: unable to connect")

	tcp := &fakeTester{name: "iperf3_tcp", err: failing}
	udp := &fakeTester{name: "iperf3_udp", err: failing}
	smb := &fakeTester{name: "smb"}
	h.jobs = []Job{
		{Name: "iperf_tcp", Enabled: true, Targets: []string{"10.0.0.50"}, RouteHost: SameHost, Tester: tcp},
		{Name: "iperf_udp", Enabled: true, Targets: []string{"10.0.0.50"}, RouteHost: SameHost, Tester: udp},
		{Name: "dhcp"},
		{Name: "smb", Enabled: true, Targets: []string{"10.0.0.60"}, RouteHost: SameHost, Tester: smb},
	}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusFailure, sum.Status("iperf_tcp"))
	assert.Equal(t, StatusFailure, sum.Status("iperf_udp"))
	assert.Equal(t, StatusNotEnabled, sum.Status("dhcp"))
	assert.Equal(t, StatusNotRun, sum.Status("smb"))
	assert.Empty(t, smb.runs)
	assert.Equal(t, 1, h.watchdogCount(t))

	status := h.sender.bySource("pathprobe-poll-status")
	require.Len(t, status, 1)
	assert.Equal(t, "Not run", status[0].String("smb"))
}

func TestRun_TestWithoutRouteCheck(t *testing.T) {
	h := newHarness(t)
	dns := &fakeTester{name: "dns"}
	h.jobs = []Job{{Name: "dns", Enabled: true, Targets: []string{"example.com"}, Tester: dns}}

	sum, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, sum.Status("dns"))
	assert.NotContains(t, h.verifier.calls, "target example.com")
	require.Len(t, dns.runs, 1)
	assert.False(t, dns.runs[0].Address.IsValid())
}

func TestChooseFamily(t *testing.T) {
	tests := []struct {
		name      string
		v4, v6    bool
		preferred bool
		host      string
		want      network.Family
		ok        bool
	}{
		{"v4 literal", true, false, false, "8.8.8.8", network.IPv4, true},
		{"v6 literal with v6 disabled", true, false, false, "2001:db8::1", "", false},
		{"hostname defaults to v4", true, true, false, "example.com", network.IPv4, true},
		{"hostname prefers v6", true, true, true, "example.com", network.IPv6, true},
		{"v6 only", false, true, false, "example.com", network.IPv6, true},
		{"nothing enabled", false, false, false, "example.com", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.IPv4Enabled, cfg.IPv6Enabled, cfg.IPv6Preferred = tt.v4, tt.v6, tt.preferred

			got, ok := FamilyFor(cfg, tt.host)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFamilies_DroppedFamily(t *testing.T) {
	f := Families{IPv4: true, PreferIPv6: true}
	got, ok := f.For("example.com")
	require.True(t, ok)
	assert.Equal(t, network.IPv4, got, "preference only applies among available families")

	_, ok = f.For("2001:db8::1")
	assert.False(t, ok)
	assert.True(t, f.Any())
	assert.False(t, Families{}.Any())
}

func TestURLHost(t *testing.T) {
	assert.Equal(t, "example.com", URLHost("https://example.com:8443/path"))
	assert.Equal(t, "2001:db8::1", URLHost("http://[2001:db8::1]/"))
	assert.Equal(t, "not a url", URLHost("not a url"))
	assert.Equal(t, "8.8.8.8", FixedHost("8.8.8.8")("ignored"))
}

func TestJobsOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Ping = &config.PingConfig{Enabled: true, Targets: []string{"8.8.8.8"}, Count: 5, IntervalMS: 200}
	cfg.IperfUDP = &config.IperfConfig{Enabled: true, Server: "10.0.0.50"}

	jobs := Jobs(cfg, nil, clock.NewMockClock(epoch))
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"speedtest", "ping", "dns", "http", "iperf_tcp", "iperf_udp", "dhcp", "smb"}, names)

	assert.False(t, jobs[0].Enabled)
	assert.True(t, jobs[1].Enabled)
	assert.True(t, jobs[5].Enabled)
	iperf, ok := jobs[5].Tester.(*testers.Iperf)
	require.True(t, ok)
	assert.True(t, iperf.UDP)
	assert.NotNil(t, iperf.RTT)
}

func TestRun_WritesMetricsTextfile(t *testing.T) {
	h := newHarness(t)
	h.cfg.MetricsTextfile = filepath.Join(t.TempDir(), "pathprobe.prom")
	h.jobs = []Job{{Name: "ping", Enabled: true, Targets: []string{"8.8.8.8"}, RouteHost: SameHost, Tester: &fakeTester{name: "ping"}}}

	_, err := h.poller().Run(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, h.cfg.MetricsTextfile)
}
