package poller

import (
	"context"
	"errors"
	"net/url"

	"grimm.is/pathprobe/internal/connectivity"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/logging"
	"grimm.is/pathprobe/internal/network"
	"grimm.is/pathprobe/internal/testers"
)

// Job is one optional test and its targets.
type Job struct {
	// Name is the key of the test in the poll status record.
	Name    string
	Enabled bool
	Targets []string
	// RouteHost maps a target to the host whose route is checked before the
	// test runs. nil means the test needs no route check.
	RouteHost func(target string) string
	Tester    testers.Tester
}

// SameHost is the RouteHost of tests whose target is a host.
func SameHost(target string) string { return target }

// URLHost is the RouteHost of tests whose target is a URL.
func URLHost(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return target
	}
	return u.Hostname()
}

// FixedHost returns a RouteHost that always checks host.
func FixedHost(host string) func(string) string {
	return func(string) string { return host }
}

// runJob runs every target of job and returns its status.
func (p *Poller) runJob(ctx context.Context, cycle *connectivity.Cycle, job Job, link cycleLink) string {
	if !job.Enabled || job.Tester == nil {
		return StatusNotEnabled
	}
	log := cycle.Logger.With("test", job.Name)
	start := p.clock.Now()

	status := ""
	for i, target := range job.Targets {
		if cycle.ThresholdReached() {
			log.Warn("skipping test, issue threshold reached", "target", target)
			status = worse(status, StatusNotRun)
			break
		}
		st, stop := p.runTarget(ctx, cycle, log, job, target, i+1, link)
		status = worse(status, st)
		if stop {
			break
		}
	}
	if status == "" {
		status = StatusNotRun
	}

	if p.metrics != nil {
		p.metrics.TestDuration.WithLabelValues(job.Name).Set(p.clock.Since(start).Seconds())
	}
	log.Info("test finished", "status", status)
	return status
}

// runTarget checks the route to one target and runs the tester. stop means
// the remaining targets of the job are skipped.
func (p *Poller) runTarget(ctx context.Context, cycle *connectivity.Cycle, log *logging.Logger, job Job, target string, index int, link cycleLink) (status string, stop bool) {
	routeHost := target
	if job.RouteHost != nil {
		routeHost = job.RouteHost(target)
	}
	family, ok := link.families.For(routeHost)
	if !ok {
		log.Info("no usable address family for target", "target", target)
		return StatusNotRun, false
	}

	var res connectivity.Result
	if job.RouteHost != nil {
		var err error
		res, err = p.verifier.CheckTarget(ctx, routeHost, family)
		if errors.Is(err, network.ErrResolution) {
			log.Warn("target did not resolve", "target", target, "error", err)
			return StatusNotRun, false
		}
		if err != nil {
			cycle.RecordTestIssue(job.Name, err)
			return StatusNotRun, true
		}
	}

	tgt := testerTarget(target, res, family, link.state.Name, index)
	rec, err := testers.RunWithTimeout(ctx, p.cfg.TestTimeoutDuration(), job.Name, func(ctx context.Context) (*export.Record, error) {
		return job.Tester.Run(ctx, tgt)
	})
	if rec != nil {
		rec.Set("poll_id", cycle.ID)
		if serr := p.sender.Send(ctx, rec); serr != nil {
			log.Error("failed to deliver result", "target", target, "error", serr)
		}
	}
	if err != nil {
		cycle.RecordTestIssue(job.Name, err)
		return StatusFailure, false
	}
	return StatusCompleted, false
}

var severity = map[string]int{
	"":              0,
	StatusCompleted: 1,
	StatusNotRun:    2,
	StatusFailure:   3,
}

// worse returns the more severe of two target statuses.
func worse(a, b string) string {
	if severity[b] > severity[a] {
		return b
	}
	return a
}
