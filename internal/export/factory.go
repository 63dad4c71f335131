package export

import (
	"fmt"
	"os"
	"time"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/logging"
)

// NewExporter builds the exporter named by the exporter block. The
// spooler type returns spool, which must not be nil.
func NewExporter(c *config.ExporterConfig, spool *Spool) (Exporter, error) {
	if c == nil {
		return nil, nil
	}
	probe, _ := os.Hostname()
	timeout := time.Duration(c.Timeout) * time.Second

	switch c.Type {
	case config.ExporterInflux:
		return NewInflux(InfluxConfig{
			Host:      c.Host,
			Port:      c.Port,
			HTTPS:     c.HTTPS,
			Insecure:  c.Insecure,
			Token:     c.Token,
			Org:       c.Org,
			Bucket:    c.Bucket,
			Timeout:   timeout,
			ProbeName: probe,
		}), nil
	case config.ExporterSplunk:
		return NewSplunk(SplunkConfig{
			Host:      c.Host,
			Port:      c.Port,
			HTTPS:     c.HTTPS,
			Insecure:  c.Insecure,
			Token:     c.Token,
			Timeout:   timeout,
			ProbeName: probe,
		}, nil), nil
	case config.ExporterSpooler:
		if spool == nil {
			return nil, fmt.Errorf("spooler exporter needs a spool")
		}
		return spool, nil
	}
	return nil, fmt.Errorf("unknown exporter type %q", c.Type)
}

// NewSpoolFromConfig returns the spool when spooling is enabled, or nil.
func NewSpoolFromConfig(cfg *config.Config, clk clock.Clock, logger *logging.Logger) *Spool {
	if !cfg.SpoolEnabled() {
		return nil
	}
	dir, maxAge := brand.DefaultSpoolDir, 30
	if cfg.Spool != nil {
		dir, maxAge = cfg.Spool.Dir, cfg.Spool.MaxAge
	}
	return NewSpool(dir, time.Duration(maxAge)*time.Minute, clk, logger)
}

// NewDispatcherFromConfig wires exporter, spool and cache from cfg.
func NewDispatcherFromConfig(cfg *config.Config, clk clock.Clock, logger *logging.Logger) (*Dispatcher, error) {
	spool := NewSpoolFromConfig(cfg, clk, logger)
	exp, err := NewExporter(cfg.Exporter, spool)
	if err != nil {
		return nil, err
	}

	var cache Cache
	if c := cfg.Cache; c != nil && c.Enabled {
		cache, err = NewCache(c.Format, c.Root, c.RetentionDays, clk)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
	}
	return NewDispatcher(exp, spool, cache, logger), nil
}
