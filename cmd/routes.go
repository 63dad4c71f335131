package cmd

import (
	"context"
	"fmt"
	"os"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/connectivity"
	"grimm.is/pathprobe/internal/i18n"
	"grimm.is/pathprobe/internal/network"
	"grimm.is/pathprobe/internal/poller"
)

// destination is one route check the poll cycle would make.
type destination struct {
	category connectivity.Category
	host     string
	family   network.Family
}

// RunRoutes checks the route to every destination of a poll cycle, or to
// hosts when any are given. Routing changes are applied only with fix and
// without dryRun; otherwise the commands are printed.
func RunRoutes(configFile string, fix, dryRun, verbose bool, hosts []string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, closeLogs := setupLogging(cfg, verbose)
	defer closeLogs()

	var exec network.CommandExecutor = network.DefaultCommandExecutor
	var dry *network.DryRunExecutor
	if !fix || dryRun {
		dry = network.NewDryRunExecutor(exec)
		exec = dry
	}
	verifier, _ := poller.NewVerifier(cfg, exec, clock.Default, logger)

	ctx := context.Background()
	failed := 0
	dests := destinations(cfg)
	if len(hosts) > 0 {
		dests = targetDestinations(cfg, hosts)
	}
	for _, d := range dests {
		var res connectivity.Result
		var err error
		switch d.category {
		case connectivity.CategoryInternet:
			res, err = verifier.CheckInternet(ctx, d.host, d.family)
		case connectivity.CategoryMgt:
			res, err = verifier.CheckMgt(ctx, d.host, d.family)
		default:
			res, err = verifier.CheckTarget(ctx, d.host, d.family)
		}

		outcome := "ok"
		switch {
		case err != nil:
			outcome = err.Error()
			failed++
		case res.Corrected:
			outcome = "corrected"
		}
		Printer.Fprintf(stdout, i18n.MsgRouteLine, d.family, d.host, orDash(res.Expected), orDash(res.Observed), outcome)
	}

	if dry != nil && len(dry.Commands) > 0 {
		Printer.Fprintln(stdout, "\nWould run:")
		for _, c := range dry.Commands {
			Printer.Fprintf(stdout, "  %s\n", c)
		}
	}
	if failed > 0 && dry == nil {
		return fmt.Errorf("%d destinations are misrouted", failed)
	}
	if failed > 0 {
		Printer.Fprintf(os.Stderr, "%d destinations would need correction; rerun with --fix to apply.\n", failed)
	}
	return nil
}

// destinations lists, in poll order, every destination whose route a
// cycle checks with cfg.
func destinations(cfg *config.Config) []destination {
	var out []destination
	add := func(cat connectivity.Category, host string) {
		if host == "" {
			return
		}
		if f, ok := poller.FamilyFor(cfg, host); ok {
			out = append(out, destination{category: cat, host: host, family: f})
		}
	}

	if cfg.IPv4Enabled {
		out = append(out, destination{connectivity.CategoryInternet, cfg.ConnectivityLookup, network.IPv4})
	}
	if cfg.IPv6Enabled {
		out = append(out, destination{connectivity.CategoryInternet, cfg.ConnectivityLookup, network.IPv6})
	}
	if e := cfg.Exporter; e != nil && e.Type != config.ExporterSpooler {
		add(connectivity.CategoryMgt, e.Host)
	}

	seen := map[string]bool{}
	for _, job := range poller.Jobs(cfg, nil, nil) {
		if !job.Enabled || job.RouteHost == nil {
			continue
		}
		for _, t := range job.Targets {
			host := job.RouteHost(t)
			if seen[host] {
				continue
			}
			seen[host] = true
			add(connectivity.CategoryTarget, host)
		}
	}
	return out
}

// targetDestinations checks hosts as test targets.
func targetDestinations(cfg *config.Config, hosts []string) []destination {
	var out []destination
	for _, h := range hosts {
		if f, ok := poller.FamilyFor(cfg, h); ok {
			out = append(out, destination{category: connectivity.CategoryTarget, host: h, family: f})
		}
	}
	return out
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
