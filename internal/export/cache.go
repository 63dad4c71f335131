package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"grimm.is/pathprobe/internal/clock"
)

const cacheDateLayout = "2006-01-02"

// Cache keeps a local copy of every record.
type Cache interface {
	Store(rec *Record) error
	// Prune removes data older than the retention period.
	Prune() (int, error)
	Close() error
}

// Cache formats.
const (
	FormatCSV    = "csv"
	FormatJSON   = "json"
	FormatSQLite = "sqlite"
)

// NewCache opens a cache of the given format under root.
func NewCache(format, root string, retentionDays int, clk clock.Clock) (Cache, error) {
	if clk == nil {
		clk = clock.Default
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour
	switch format {
	case FormatCSV, FormatJSON, "":
		if format == "" {
			format = FormatCSV
		}
		return &FileCache{root: root, format: format, retention: retention, clock: clk}, nil
	case FormatSQLite:
		return NewSQLiteCache(filepath.Join(root, "cache.db"), retention, clk)
	}
	return nil, fmt.Errorf("unknown cache format %q", format)
}

// FileCache appends records to <root>/<date>/<source>.<format>. CSV files
// get a header row when created; JSON files hold one object per line.
type FileCache struct {
	mu        sync.Mutex
	root      string
	format    string
	retention time.Duration
	clock     clock.Clock
}

// Path returns the file a record with this source and time goes to.
func (c *FileCache) Path(source string, t time.Time) string {
	return filepath.Join(c.root, t.UTC().Format(cacheDateLayout), source+"."+c.format)
}

func (c *FileCache) Store(rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(rec.Source, rec.Time)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	_, statErr := os.Stat(path)
	fresh := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("open cache file: %w", err)
	}
	defer f.Close()

	if c.format == FormatJSON {
		row := make(map[string]any, len(rec.Values)+1)
		for k, v := range rec.Values {
			row[k] = v
		}
		row["time"] = rec.Time.UTC().Format(time.RFC3339)
		return json.NewEncoder(f).Encode(row)
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(append([]string{"time"}, rec.Columns...)); err != nil {
			return err
		}
	}
	row := make([]string, 0, len(rec.Columns)+1)
	row = append(row, rec.Time.UTC().Format(time.RFC3339))
	for _, col := range rec.Columns {
		row = append(row, rec.String(col))
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// Prune removes whole date directories past the retention period.
func (c *FileCache) Prune() (int, error) {
	if c.retention <= 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dirents, err := os.ReadDir(c.root)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := c.clock.Now().UTC().Add(-c.retention)
	removed := 0
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		day, err := time.Parse(cacheDateLayout, d.Name())
		if err != nil {
			continue
		}
		// A day is kept until all of it is past the cutoff.
		if !day.Add(24 * time.Hour).Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, d.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (c *FileCache) Close() error { return nil }
