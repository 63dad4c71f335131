package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/clock"
)

type recordingExporter struct {
	got    []*Record
	failAt int
}

func (r *recordingExporter) Name() string { return "recording" }

func (r *recordingExporter) Export(ctx context.Context, rec *Record) error {
	if r.failAt > 0 && len(r.got)+1 == r.failAt {
		return errors.New("server down")
	}
	r.got = append(r.got, rec)
	return nil
}

func TestSpool_WriteNaming(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewMockClock(epoch)
	s := NewSpool(dir, 30*time.Minute, mc, nil)

	require.NoError(t, s.Write(NewRecord("pathprobe-ping", epoch).Set("ping_index", 1)))
	require.NoError(t, s.Write(NewRecord("pathprobe-ping", epoch).Set("ping_index", 2)))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	names := []string{entries[0].Name, entries[1].Name}
	assert.Contains(t, names, "2026-03-01-123045-pathprobe-ping.json")
	assert.Contains(t, names, "2026-03-01-123045-pathprobe-ping.1.json")
	for _, e := range entries {
		assert.Equal(t, "pathprobe-ping", e.Source)
		assert.Equal(t, epoch, e.Time)
	}
}

func TestSpool_PrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewMockClock(epoch)
	s := NewSpool(dir, 30*time.Minute, mc, nil)

	require.NoError(t, s.Write(NewRecord("pathprobe-dns", epoch)))
	mc.Advance(31 * time.Minute)
	require.NoError(t, s.Write(NewRecord("pathprobe-http", mc.Now())))

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pathprobe-http", entries[0].Source)
}

func TestSpool_FlushOldestFirst(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewMockClock(epoch)
	s := NewSpool(dir, time.Hour, mc, nil)

	for _, src := range []string{"a", "b", "c"} {
		require.NoError(t, s.Write(NewRecord(src, mc.Now()).Set("k", src)))
		mc.Advance(time.Minute)
	}

	exp := &recordingExporter{}
	n, err := s.Flush(context.Background(), exp)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, exp.got, 3)
	assert.Equal(t, "a", exp.got[0].Source)
	assert.Equal(t, "c", exp.got[2].Source)
	assert.Equal(t, "a", exp.got[0].Values["k"])

	entries, err := s.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpool_FlushSameSecondInWriteOrder(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewMockClock(epoch)
	s := NewSpool(dir, time.Hour, mc, nil)

	var want []string
	for i := 0; i < 12; i++ {
		v := strconv.Itoa(i)
		want = append(want, v)
		require.NoError(t, s.Write(NewRecord("pathprobe-ping", epoch).Set("ping_index", v)))
	}

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 12)
	assert.Equal(t, "2026-03-01-123045-pathprobe-ping.json", entries[0].Name)
	assert.Equal(t, 11, entries[11].Seq)

	exp := &recordingExporter{}
	_, err = s.Flush(context.Background(), exp)
	require.NoError(t, err)
	var got []string
	for _, r := range exp.got {
		got = append(got, r.String("ping_index"))
	}
	assert.Equal(t, want, got)
}

func TestSpool_FlushKeepsUnsent(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewMockClock(epoch)
	s := NewSpool(dir, time.Hour, mc, nil)

	for _, src := range []string{"a", "b", "c"} {
		require.NoError(t, s.Write(NewRecord(src, mc.Now())))
		mc.Advance(time.Minute)
	}

	exp := &recordingExporter{failAt: 2}
	n, err := s.Flush(context.Background(), exp)
	assert.Error(t, err)
	assert.Equal(t, 1, n)

	entries, err := s.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Source)
	assert.Equal(t, "c", entries[1].Source)
}

func TestSpool_FlushDropsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSpool(dir, 0, clock.NewMockClock(epoch), nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2026-03-01-120000-x.json"), []byte("{not json"), 0o640))

	n, err := s.Flush(context.Background(), &recordingExporter{})
	require.NoError(t, err)
	assert.Zero(t, n)
	entries, _ := s.Entries()
	assert.Empty(t, entries)
}

func TestSpool_EntriesIgnoresStrangers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), nil, 0o640))

	entries, err := NewSpool(dir, 0, nil, nil).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSpool_MissingDirIsEmpty(t *testing.T) {
	entries, err := NewSpool(filepath.Join(t.TempDir(), "none"), 0, nil, nil).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
