package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/logging"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pathprobe.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func spoolConfig(t *testing.T) (path, spoolDir string) {
	t.Helper()
	dir := t.TempDir()
	spoolDir = filepath.Join(dir, "spool")
	path = writeConfig(t, `
probe_mode    = "wireless"
wlan_if       = "wlan0"
mgt_if        = "wlan0"
lock_file     = "`+filepath.Join(dir, "pathprobe.lock")+`"
watchdog_file = "`+filepath.Join(dir, "pathprobe.watchdog")+`"

exporter {
  type = "spooler"
}

spool {
  enabled = true
  dir     = "`+spoolDir+`"
}

ping {
  enabled = true
  targets = ["8.8.8.8", "example.com"]
}
`)
	return path, spoolDir
}

func TestRunCheck_ValidConfig(t *testing.T) {
	out := captureStdout(t)
	path, _ := spoolConfig(t)

	require.NoError(t, RunCheck(path, true))
	assert.Contains(t, out.String(), path)
	assert.Contains(t, out.String(), "wlan0")
	assert.Contains(t, out.String(), "8.8.8.8, example.com")
	assert.Contains(t, out.String(), "iperf_udp")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	captureStdout(t)

	broken := writeConfig(t, `
exporter {
  type = "influxdb2"
`)
	assert.Error(t, RunCheck(broken, false))

	invalid := writeConfig(t, `probe_mode = "carrier-pigeon"`)
	err := RunCheck(invalid, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe_mode")
}

func TestRunInitConfig(t *testing.T) {
	out := captureStdout(t)
	path := filepath.Join(t.TempDir(), "etc", "pathprobe.hcl")

	require.NoError(t, RunInitConfig(path))
	assert.FileExists(t, path)
	assert.Contains(t, out.String(), path)

	// The generated file must load cleanly.
	require.NoError(t, RunCheck(path, false))

	assert.Error(t, RunInitConfig(path), "existing config must not be overwritten")
}

func TestRunSpool_List(t *testing.T) {
	out := captureStdout(t)
	path, spoolDir := spoolConfig(t)

	require.NoError(t, RunSpool(path, "list"))
	assert.Contains(t, out.String(), "Spool is empty")

	spool := export.NewSpool(spoolDir, time.Hour, nil, logging.Discard())
	require.NoError(t, spool.Write(export.NewRecord("pathprobe-ping", time.Now()).Set("rtt_avg_ms", 12.5)))

	out.Reset()
	require.NoError(t, RunSpool(path, "list"))
	assert.Contains(t, out.String(), "pathprobe-ping")
}

func TestRunSpool_Errors(t *testing.T) {
	captureStdout(t)
	path, _ := spoolConfig(t)

	assert.Error(t, RunSpool(path, "explode"))
	assert.Error(t, RunSpool(path, "flush"), "spooler exporter has nothing to flush to")
}

func TestRunStatus(t *testing.T) {
	out := captureStdout(t)
	path, _ := spoolConfig(t)

	require.NoError(t, RunStatus(path))
	assert.Contains(t, out.String(), "is free")
	assert.Contains(t, out.String(), "Watchdog count 0")
	assert.Contains(t, out.String(), "watchdog")
}

func TestDestinations(t *testing.T) {
	path, _ := spoolConfig(t)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	var hosts []string
	for _, d := range destinations(cfg) {
		hosts = append(hosts, string(d.category)+" "+d.host)
	}
	assert.Equal(t, []string{"internet google.com", "target 8.8.8.8", "target example.com"}, hosts)
}

func TestTargetDestinations(t *testing.T) {
	path, _ := spoolConfig(t)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	dests := targetDestinations(cfg, []string{"192.0.2.7", "2001:db8::1", "example.org"})
	require.Len(t, dests, 2, "ipv6 literal is dropped while ipv6 is disabled")
	assert.Equal(t, "192.0.2.7", dests[0].host)
	assert.Equal(t, "example.org", dests[1].host)
}
