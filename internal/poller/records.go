package poller

import (
	"context"
	"net/netip"
	"time"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/connectivity"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// Test statuses reported in the poll status record.
const (
	StatusCompleted  = "Completed"
	StatusFailure    = "Failure"
	StatusNotRun     = "Not run"
	StatusNotEnabled = "Not enabled"
)

// AllStatuses lists every status a test can end in.
var AllStatuses = []string{StatusCompleted, StatusFailure, StatusNotRun, StatusNotEnabled}

// Network and address values before the connectivity checks pass.
const (
	NetworkOK      = "OK"
	NetworkFail    = "Fail"
	AddressUnknown = "Unknown"
)

// TestStatus is the outcome of one job.
type TestStatus struct {
	Name   string
	Status string
}

// Summary describes a finished or aborted cycle.
type Summary struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Network  string
	Address  string
	Statuses []TestStatus
	Issues   []string
	// Families are the address families tests ran over.
	Families Families
	// Flushed is the number of spooled records re-sent this cycle.
	Flushed   int
	SpoolOnly bool
	Fatal     *connectivity.FatalError
}

// Status returns the status of the named test, or "" if it never ran.
func (s *Summary) Status(name string) string {
	for _, t := range s.Statuses {
		if t.Name == name {
			return t.Status
		}
	}
	return ""
}

func primaryAddress(state network.InterfaceState) string {
	switch {
	case state.HasIPv4():
		return state.IPv4.String()
	case state.HasIPv6():
		return state.IPv6.String()
	}
	return AddressUnknown
}

// sendNetworkInfo exports the state of the test interface.
func (p *Poller) sendNetworkInfo(ctx context.Context, cycle *connectivity.Cycle, state network.InterfaceState) {
	rec := export.NewRecord(brand.DataSource("network"), p.clock.Now()).
		Set("interface", state.Name).
		Set("probe_mode", p.cfg.ProbeMode).
		Set("link", string(state.Link)).
		Set("ipv4", addrString(state.IPv4)).
		Set("ipv6", addrString(state.IPv6))

	if w := state.Wireless; w != nil {
		rec.Set("ssid", w.SSID).
			Set("bssid", w.BSSID).
			Set("channel", w.Channel).
			Set("freq_mhz", w.FreqMHz).
			Set("rssi", w.SignalDBm).
			Set("tx_rate_mbps", w.TxRate).
			Set("rx_rate_mbps", w.RxRate).
			Set("tx_retries", w.TxRetries).
			Set("tx_failed", w.TxFailed)
		if p.metrics != nil && w.Associated() {
			p.metrics.SignalDBM.WithLabelValues(state.Name, w.SSID).Set(float64(w.SignalDBm))
		}
	}
	if w := state.Wired; w != nil {
		rec.Set("speed_mbps", int(w.SpeedMbps)).
			Set("duplex", w.Duplex).
			Set("driver", w.Driver)
	}
	rec.Set("poll_id", cycle.ID)

	if err := p.sender.Send(ctx, rec); err != nil {
		cycle.Logger.Error("failed to deliver network info", "error", err)
	}
}

// sendPollStatus exports the per-test statuses of the cycle.
func (p *Poller) sendPollStatus(ctx context.Context, cycle *connectivity.Cycle, sum *Summary) {
	rec := export.NewRecord(brand.DataSource("poll-status"), p.clock.Now()).
		Set("ip", sum.Address).
		Set("network", sum.Network)
	for _, s := range sum.Statuses {
		rec.Set(s.Name, s.Status)
	}
	rec.Set("run_time", p.clock.Since(sum.Started).Round(time.Millisecond).Seconds()).
		Set("poll_id", cycle.ID)

	if err := p.sender.Send(ctx, rec); err != nil {
		cycle.Logger.Error("failed to deliver poll status", "error", err)
	}
}

func addrString(a netip.Addr) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}
