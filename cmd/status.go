package cmd

import (
	"context"
	"text/tabwriter"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/health"
	"grimm.is/pathprobe/internal/i18n"
	"grimm.is/pathprobe/internal/poller"
)

// RunStatus prints the lock and watchdog state left by the last cycle and
// the state of the probe interfaces.
func RunStatus(configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	lock := health.NewLock(cfg.LockFile, clock.Default)
	watchdog := health.NewWatchdog(cfg.WatchdogFile)

	if age, held, err := lock.Age(); err == nil && held {
		Printer.Fprintf(stdout, i18n.MsgLockHeld, lock.Path(), age.Round(time.Second))
	} else if err == nil {
		Printer.Fprintf(stdout, i18n.MsgLockFree, lock.Path())
	}
	if n, err := watchdog.Count(); err == nil {
		Printer.Fprintf(stdout, i18n.MsgWatchdog, n, cfg.WatchdogThreshold)
	}

	checker := health.NewChecker()
	checker.Register("lock", health.LockCheck(lock, cfg.LockStaleDuration()))
	checker.Register("watchdog", health.WatchdogCheck(watchdog, cfg.WatchdogThreshold))
	if iface, err := poller.PolicyFromConfig(cfg).TestInterface(); err == nil {
		checker.Register("test_if "+iface, health.InterfaceCheck(iface))
	}
	checker.Register("mgt_if "+cfg.MgtIf, health.InterfaceCheck(cfg.MgtIf))

	report := checker.Check(context.Background())
	Printer.Fprintln(stdout)
	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "CHECK\tSTATUS\tDETAIL")
	for _, c := range report.Checks {
		Printer.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Status, c.Message)
	}
	Printer.Fprintf(w, "overall\t%s\t\n", report.Status)
	return w.Flush()
}
