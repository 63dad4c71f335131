package export

import (
	"context"
	"fmt"

	"grimm.is/pathprobe/internal/logging"
)

// Dispatcher fans a record out to the local cache and to the exporter,
// falling back to the spool when the exporter fails or management
// connectivity is down.
type Dispatcher struct {
	exporter Exporter
	spool    *Spool
	cache    Cache
	logger   *logging.Logger
	spooling bool
}

// NewDispatcher wires the outputs. Any of them may be nil.
func NewDispatcher(exporter Exporter, spool *Spool, cache Cache, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		exporter: exporter,
		spool:    spool,
		cache:    cache,
		logger:   logger.WithComponent("export"),
	}
}

// SpoolOnly stops sending to the exporter for the rest of the cycle.
func (d *Dispatcher) SpoolOnly() {
	d.spooling = true
}

// Spooling reports whether records currently go to the spool only.
func (d *Dispatcher) Spooling() bool {
	return d.spooling
}

// CanSpool reports whether a spool is configured.
func (d *Dispatcher) CanSpool() bool {
	return d.spool != nil
}

// Exporter returns the configured exporter.
func (d *Dispatcher) Exporter() Exporter {
	return d.exporter
}

// Send delivers rec. It fails only when the record could neither be
// exported nor spooled; a cache failure is logged and ignored.
func (d *Dispatcher) Send(ctx context.Context, rec *Record) error {
	if d.cache != nil {
		if err := d.cache.Store(rec); err != nil {
			d.logger.Warn("failed to cache result", "source", rec.Source, "error", err)
		}
	}

	if d.exporter != nil && !d.spooling {
		err := d.exporter.Export(ctx, rec)
		if err == nil {
			d.logger.Debug("exported result", "source", rec.Source, "exporter", d.exporter.Name())
			return nil
		}
		if d.spool == nil {
			return err
		}
		d.logger.Warn("export failed, spooling result", "source", rec.Source, "error", err)
	}

	if d.spool == nil {
		return fmt.Errorf("%w: no exporter or spool for %s", ErrExport, rec.Source)
	}
	return d.spool.Write(rec)
}

// Flush re-sends spooled results through the exporter. It is a no-op when
// the spool is the exporter or either is missing.
func (d *Dispatcher) Flush(ctx context.Context) (int, error) {
	if d.spool == nil || d.exporter == nil || d.spooling {
		return 0, nil
	}
	if sp, ok := d.exporter.(*Spool); ok && sp == d.spool {
		return 0, nil
	}
	return d.spool.Flush(ctx, d.exporter)
}

// Backlog returns the number of spooled records waiting to be sent.
func (d *Dispatcher) Backlog() int {
	if d.spool == nil {
		return 0
	}
	entries, err := d.spool.Entries()
	if err != nil {
		return 0
	}
	return len(entries)
}

// Prune applies cache retention.
func (d *Dispatcher) Prune() {
	if d.cache == nil {
		return
	}
	if n, err := d.cache.Prune(); err != nil {
		d.logger.Warn("cache prune failed", "error", err)
	} else if n > 0 {
		d.logger.Info("pruned cache", "removed", n)
	}
}

// Close releases exporter and cache resources.
func (d *Dispatcher) Close() {
	if c, ok := d.exporter.(Closer); ok {
		c.Close()
	}
	if d.cache != nil {
		_ = d.cache.Close()
	}
}
