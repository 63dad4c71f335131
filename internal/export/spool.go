package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/logging"
)

const spoolTimeLayout = "2006-01-02-150405"

// Spool stores records as JSON files until the server is reachable again.
// File names carry the spool time, the source and a per-second sequence.
type Spool struct {
	dir    string
	maxAge time.Duration
	clock  clock.Clock
	logger *logging.Logger
}

// SpoolEntry describes one spooled file.
type SpoolEntry struct {
	Name   string
	Source string
	Time   time.Time
	Seq    int
	Size   int64
}

// NewSpool creates a spool in dir. Files older than maxAge are discarded;
// zero keeps them forever.
func NewSpool(dir string, maxAge time.Duration, clk clock.Clock, logger *logging.Logger) *Spool {
	if clk == nil {
		clk = clock.Default
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Spool{dir: dir, maxAge: maxAge, clock: clk, logger: logger.WithComponent("spool")}
}

func (s *Spool) Name() string { return "spooler" }

// Dir is the spool directory.
func (s *Spool) Dir() string { return s.dir }

// Export spools rec so the spool can stand in for a real exporter.
func (s *Spool) Export(ctx context.Context, rec *Record) error {
	return s.Write(rec)
}

// Write saves rec as <time>-<source>.json. A second record from the same
// source in the same second gets a numeric suffix.
func (s *Spool) Write(rec *Record) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}
	if _, err := s.Prune(); err != nil {
		s.logger.Warn("spool prune failed", "error", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode spool record: %w", err)
	}

	base := s.clock.Now().UTC().Format(spoolTimeLayout) + "-" + rec.Source
	for n := 0; n < 1000; n++ {
		name := base + ".json"
		if n > 0 {
			name = base + "." + strconv.Itoa(n) + ".json"
		}
		f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create spool file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(f.Name())
			return fmt.Errorf("write spool file: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close spool file: %w", err)
		}
		s.logger.Info("spooled result", "file", name)
		return nil
	}
	return fmt.Errorf("too many spool files named %s", base)
}

// Entries lists spooled files, oldest first. A missing spool dir is empty.
func (s *Spool) Entries() ([]SpoolEntry, error) {
	dirents, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}

	var entries []SpoolEntry
	for _, d := range dirents {
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			continue
		}
		e, ok := parseSpoolName(d.Name())
		if !ok {
			continue
		}
		if info, err := d.Info(); err == nil {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		return a.Seq < b.Seq
	})
	return entries, nil
}

func parseSpoolName(name string) (SpoolEntry, bool) {
	if len(name) < len(spoolTimeLayout)+2 {
		return SpoolEntry{}, false
	}
	t, err := time.Parse(spoolTimeLayout, name[:len(spoolTimeLayout)])
	if err != nil {
		return SpoolEntry{}, false
	}
	source := strings.TrimSuffix(name[len(spoolTimeLayout)+1:], ".json")
	seq := 0
	if i := strings.LastIndexByte(source, '.'); i >= 0 {
		if n, err := strconv.Atoi(source[i+1:]); err == nil {
			source, seq = source[:i], n
		}
	}
	return SpoolEntry{Name: name, Source: source, Time: t, Seq: seq}, true
}

// Prune deletes spooled files older than the max age.
func (s *Spool) Prune() (int, error) {
	if s.maxAge <= 0 {
		return 0, nil
	}
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}
	cutoff := s.clock.Now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if !e.Time.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("remove %s: %w", e.Name, err)
		}
		s.logger.Info("discarded expired spool file", "file", e.Name)
		removed++
	}
	return removed, nil
}

// Read loads a spooled record.
func (s *Spool) Read(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &rec, nil
}

// Flush sends spooled records through exp oldest first. A file is deleted
// only after its record was accepted; the first send failure stops the
// flush and leaves the remaining files in place. Unreadable files are
// removed.
func (s *Spool) Flush(ctx context.Context, exp Exporter) (int, error) {
	if _, err := s.Prune(); err != nil {
		s.logger.Warn("spool prune failed", "error", err)
	}
	entries, err := s.Entries()
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		path := filepath.Join(s.dir, e.Name)
		rec, err := s.Read(e.Name)
		if err != nil {
			s.logger.Warn("dropping unreadable spool file", "file", e.Name, "error", err)
			os.Remove(path)
			continue
		}
		if err := exp.Export(ctx, rec); err != nil {
			return sent, fmt.Errorf("flush %s: %w", e.Name, err)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return sent, fmt.Errorf("remove flushed %s: %w", e.Name, err)
		}
		sent++
	}
	if sent > 0 {
		s.logger.Info("flushed spool", "sent", sent)
	}
	return sent, nil
}
