package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/i18n"
	"grimm.is/pathprobe/internal/logging"
)

// RunSpool lists or flushes the local result spool.
func RunSpool(configFile, action string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	switch action {
	case "", "list":
		return spoolList(cfg)
	case "flush":
		logger, closeLogs := setupLogging(cfg, false)
		defer closeLogs()
		return spoolFlush(context.Background(), cfg, logger)
	}
	return fmt.Errorf("unknown spool action %q (want list or flush)", action)
}

func spoolList(cfg *config.Config) error {
	spool := export.NewSpoolFromConfig(cfg, clock.Default, logging.Discard())
	if spool == nil {
		return fmt.Errorf("spooling is not enabled")
	}
	entries, err := spool.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		Printer.Fprintf(stdout, i18n.MsgSpoolEmpty)
		return nil
	}

	w := tabwriter.NewWriter(stdout, 0, 0, 3, ' ', 0)
	Printer.Fprintln(w, "NAME\tSOURCE\tTIME\tSIZE")
	for _, e := range entries {
		Printer.Fprintf(w, "%s\t%s\t%s\t%d\n", e.Name, e.Source, e.Time.Format(time.RFC3339), e.Size)
	}
	return w.Flush()
}

func spoolFlush(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if cfg.Exporter == nil || cfg.Exporter.Type == config.ExporterSpooler {
		return fmt.Errorf("no remote exporter configured")
	}
	d, err := export.NewDispatcherFromConfig(cfg, clock.Default, logger)
	if err != nil {
		return err
	}
	defer d.Close()
	if !d.CanSpool() {
		return fmt.Errorf("spooling is not enabled")
	}

	total := d.Backlog()
	n, err := d.Flush(ctx)
	Printer.Fprintf(stdout, i18n.MsgSpoolFlushed, n, total)
	return err
}
