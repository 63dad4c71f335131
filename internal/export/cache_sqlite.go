package export

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"grimm.is/pathprobe/internal/clock"
)

// SQLiteCache stores records in a single results table.
type SQLiteCache struct {
	mu        sync.Mutex
	db        *sql.DB
	retention time.Duration
	clock     clock.Clock
}

// NewSQLiteCache opens or creates the cache database at dbPath.
func NewSQLiteCache(dbPath string, retention time.Duration, clk clock.Clock) (*SQLiteCache, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if clk == nil {
		clk = clock.Default
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			source TEXT NOT NULL,
			poll_id TEXT,
			data TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_results_ts ON results(ts);
		CREATE INDEX IF NOT EXISTS idx_results_source ON results(source);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &SQLiteCache{db: db, retention: retention, clock: clk}, nil
}

func (c *SQLiteCache) Store(rec *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(rec.Values)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = c.db.Exec(`INSERT INTO results (ts, source, poll_id, data) VALUES (?, ?, ?, ?)`,
		rec.Time.UnixMilli(), rec.Source, rec.String("poll_id"), string(data))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// Count returns how many rows a source has.
func (c *SQLiteCache) Count(source string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM results WHERE source = ?`, source).Scan(&n)
	return n, err
}

func (c *SQLiteCache) Prune() (int, error) {
	if c.retention <= 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-c.retention).UnixMilli()
	res, err := c.db.Exec(`DELETE FROM results WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune results: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
