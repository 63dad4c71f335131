// Package metrics keeps the Prometheus metrics of one poll cycle. The probe
// runs from cron, so there is no scrape endpoint: the registry is written
// to a node_exporter textfile at the end of the cycle.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"grimm.is/pathprobe/internal/brand"
)

// Registry holds all poll metrics.
type Registry struct {
	reg *prometheus.Registry

	// Poll cycle
	PollDuration prometheus.Gauge
	PollLastRun  prometheus.Gauge
	PollFatal    *prometheus.GaugeVec
	TestIssues   prometheus.Gauge

	// Routing
	Corrections *prometheus.CounterVec

	// Tests
	TestStatus   *prometheus.GaugeVec
	TestDuration *prometheus.GaugeVec

	// Probe health
	WatchdogCount prometheus.Gauge
	SpoolBacklog  prometheus.Gauge
	SignalDBM     *prometheus.GaugeVec
}

// New creates a registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	ns := brand.LowerName

	r := &Registry{reg: reg}

	r.PollDuration = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "poll_duration_seconds",
		Help:      "Wall-clock duration of the last poll cycle",
	})

	r.PollLastRun = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "poll_last_run_timestamp_seconds",
		Help:      "Unix time the last poll cycle finished",
	})

	r.PollFatal = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "poll_fatal",
		Help:      "1 if the last poll cycle aborted at this stage",
	}, []string{"stage"})

	r.TestIssues = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "poll_test_issues",
		Help:      "Number of test issues in the last poll cycle",
	})

	r.Corrections = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "route_corrections_total",
		Help:      "Route corrections attempted, by family, check category and outcome",
	}, []string{"family", "category", "outcome"})

	r.TestStatus = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "test_status",
		Help:      "1 for the status each test ended the cycle in",
	}, []string{"test", "status"})

	r.TestDuration = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "test_duration_seconds",
		Help:      "Duration of each test in the last poll cycle",
	}, []string{"test"})

	r.WatchdogCount = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "watchdog_count",
		Help:      "Current value of the watchdog failure counter",
	})

	r.SpoolBacklog = f.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "spool_files",
		Help:      "Result files waiting in the spool",
	})

	r.SignalDBM = f.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "wireless_signal_dbm",
		Help:      "Received signal strength of the wireless link",
	}, []string{"interface", "ssid"})

	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// RecordCorrection counts one route correction attempt.
func (r *Registry) RecordCorrection(family, category string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	r.Corrections.WithLabelValues(family, category, outcome).Inc()
}

// SetTestStatus records the final status of a test. Only one status per
// test is set to 1.
func (r *Registry) SetTestStatus(test, status string, statuses []string) {
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		r.TestStatus.WithLabelValues(test, s).Set(v)
	}
}

// RecordPoll stores the cycle duration and completion time. An empty
// stage means the cycle did not abort.
func (r *Registry) RecordPoll(duration time.Duration, finished time.Time, fatalStage string) {
	r.PollDuration.Set(duration.Seconds())
	r.PollLastRun.Set(float64(finished.Unix()))
	if fatalStage != "" {
		r.PollFatal.WithLabelValues(fatalStage).Set(1)
	}
}

// WriteTextfile writes the registry atomically in the text exposition
// format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
