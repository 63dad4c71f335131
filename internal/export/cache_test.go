package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/clock"
)

func TestFileCache_CSV(t *testing.T) {
	root := t.TempDir()
	c, err := NewCache(FormatCSV, root, 3, clock.NewMockClock(epoch))
	require.NoError(t, err)

	require.NoError(t, c.Store(NewRecord("pathprobe-ping", epoch).Set("ping_host", "a").Set("rtt_avg_ms", 1.5)))
	require.NoError(t, c.Store(NewRecord("pathprobe-ping", epoch.Add(time.Minute)).Set("ping_host", "b").Set("rtt_avg_ms", 2.0)))

	f, err := os.Open(filepath.Join(root, "2026-03-01", "pathprobe-ping.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"time", "ping_host", "rtt_avg_ms"}, rows[0])
	assert.Equal(t, []string{"2026-03-01T12:30:45Z", "a", "1.5"}, rows[1])
	assert.Equal(t, []string{"2026-03-01T12:31:45Z", "b", "2"}, rows[2])
}

func TestFileCache_JSONLines(t *testing.T) {
	root := t.TempDir()
	c, err := NewCache(FormatJSON, root, 3, nil)
	require.NoError(t, err)

	require.NoError(t, c.Store(NewRecord("pathprobe-dns", epoch).Set("dns_target", "x")))
	require.NoError(t, c.Store(NewRecord("pathprobe-dns", epoch).Set("dns_target", "y")))

	f, err := os.Open(filepath.Join(root, "2026-03-01", "pathprobe-dns.json"))
	require.NoError(t, err)
	defer f.Close()

	var targets []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		assert.Equal(t, "2026-03-01T12:30:45Z", row["time"])
		targets = append(targets, row["dns_target"].(string))
	}
	assert.Equal(t, []string{"x", "y"}, targets)
}

func TestFileCache_Prune(t *testing.T) {
	root := t.TempDir()
	mc := clock.NewMockClock(epoch)
	c, err := NewCache(FormatCSV, root, 3, mc)
	require.NoError(t, err)

	for _, day := range []string{"2026-02-20", "2026-02-25", "2026-02-26", "2026-03-01", "not-a-date"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, day), 0o750))
	}

	n, err := c.Prune()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := os.ReadDir(root)
	require.NoError(t, err)
	var names []string
	for _, d := range left {
		names = append(names, d.Name())
	}
	assert.ElementsMatch(t, []string{"2026-02-26", "2026-03-01", "not-a-date"}, names)
}

func TestNewCache_UnknownFormat(t *testing.T) {
	_, err := NewCache("xml", t.TempDir(), 3, nil)
	assert.Error(t, err)
}

func TestSQLiteCache(t *testing.T) {
	root := t.TempDir()
	mc := clock.NewMockClock(epoch)
	c, err := NewCache(FormatSQLite, root, 1, mc)
	require.NoError(t, err)
	defer c.Close()
	assert.FileExists(t, filepath.Join(root, "cache.db"))

	sc := c.(*SQLiteCache)
	require.NoError(t, sc.Store(NewRecord("pathprobe-ping", epoch.Add(-48*time.Hour)).Set("x", 1)))
	require.NoError(t, sc.Store(NewRecord("pathprobe-ping", epoch).Set("x", 2).Set("poll_id", "p1")))
	require.NoError(t, sc.Store(NewRecord("pathprobe-dns", epoch).Set("x", 3)))

	n, err := sc.Count("pathprobe-ping")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := sc.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	n, err = sc.Count("pathprobe-ping")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
