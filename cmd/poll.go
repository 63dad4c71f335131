package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/poller"
)

// RunPoll runs one poll cycle. It must run as root because route
// corrections change the kernel routing table.
func RunPoll(configFile string, verbose bool) error {
	if unix.Geteuid() != 0 {
		return fmt.Errorf("%s poll must run as root", brand.BinaryName)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	logger, closeLogs := setupLogging(cfg, verbose)
	defer closeLogs()

	p, dispatcher, err := poller.Build(cfg, nil, logger)
	if err != nil {
		return err
	}
	defer dispatcher.Close()
	defer func() {
		if err := p.Release(); err != nil {
			logger.Warn("failed to release lock", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := p.Run(ctx)
	if err != nil {
		return err
	}
	if verbose {
		for _, s := range sum.Statuses {
			Printer.Fprintf(stdout, "%-10s %s\n", s.Name, s.Status)
		}
	}
	return nil
}
