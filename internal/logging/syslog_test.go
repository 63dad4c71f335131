package logging

import (
	"bytes"
	"net"
	"strings"
	"testing"
	"time"
)

func TestParseFacility(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"", 3},
		{"daemon", 3},
		{"USER", 1},
		{"local0", 16},
		{"local7", 23},
	}
	for _, tt := range tests {
		got, err := ParseFacility(tt.name)
		if err != nil {
			t.Errorf("ParseFacility(%q): %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFacility(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}

	if _, err := ParseFacility("local8"); err == nil {
		t.Error("expected error for unknown facility")
	}
}

func TestSplitConsoleLine(t *testing.T) {
	tests := []struct {
		line     string
		severity int
		body     string
	}{
		{"2026-03-01T12:30:45Z pathprobe[42]: [warn] route: mismatch dest=8.8.8.8\n", severityWarning, "[warn] route: mismatch dest=8.8.8.8"},
		{"2026-03-01T12:30:45Z pathprobe[42]: [error] poll: fatal\n", severityError, "[error] poll: fatal"},
		{"2026-03-01T12:30:45Z pathprobe[42]: [debug] dns: query\n", severityDebug, "[debug] dns: query"},
		{"2026-03-01T12:30:45Z pathprobe[42]: [info] cycle done\n", severityInfo, "[info] cycle done"},
		{"plain text", severityInfo, "plain text"},
	}
	for _, tt := range tests {
		sev, body := splitConsoleLine([]byte(tt.line))
		if sev != tt.severity || body != tt.body {
			t.Errorf("splitConsoleLine(%q) = %d %q, want %d %q", tt.line, sev, body, tt.severity, tt.body)
		}
	}
}

func TestNewSyslogWriter_Errors(t *testing.T) {
	if _, err := NewSyslogWriter(SyslogConfig{}); err == nil {
		t.Error("expected error for missing host")
	}
	if _, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Facility: "mail-ish"}); err == nil {
		t.Error("expected error for unknown facility")
	}
}

func listenSyslog(t *testing.T) (net.PacketConn, int) {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	return pc, pc.LocalAddr().(*net.UDPAddr).Port
}

func readSyslog(t *testing.T, pc net.PacketConn) string {
	t.Helper()
	buf := make([]byte, 2048)
	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	return string(buf[:n])
}

func TestSyslogWriter_ForwardsConsoleLines(t *testing.T) {
	pc, port := listenSyslog(t)

	w, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Port: port, Tag: "probe-test", Facility: "local3"})
	if err != nil {
		t.Fatalf("NewSyslogWriter: %v", err)
	}
	defer w.Close()
	w.now = func() time.Time { return time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC) }

	logger := New(Config{Level: LevelInfo, Output: w})
	logger.WithComponent("route").Warn("route corrected", "iface", "wlan0")

	msg := readSyslog(t, pc)
	// local3 is 19, warning is 4: 19*8+4.
	if !strings.HasPrefix(msg, "<156>Mar  1 12:30:45 ") {
		t.Errorf("unexpected header: %q", msg)
	}
	if !strings.Contains(msg, " probe-test[") || !strings.Contains(msg, "]: [warn] route: route corrected iface=wlan0") {
		t.Errorf("message missing tag or body: %q", msg)
	}
	if strings.Count(msg, "pathprobe[") != 0 {
		t.Errorf("console prefix not stripped: %q", msg)
	}
}

func TestSyslogWriter_DefaultFacilityIsDaemon(t *testing.T) {
	pc, port := listenSyslog(t)

	w, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("NewSyslogWriter: %v", err)
	}
	defer w.Close()

	var line bytes.Buffer
	line.WriteString("2026-03-01T12:30:45Z pathprobe[7]: [info] poll: cycle complete\n")
	if _, err := w.Write(line.Bytes()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	msg := readSyslog(t, pc)
	if !strings.HasPrefix(msg, "<30>") {
		t.Errorf("expected daemon.info priority <30>, got %q", msg)
	}
	if !strings.Contains(msg, " pathprobe[") {
		t.Errorf("default tag missing: %q", msg)
	}
}

func TestSyslogWriter_WriteAfterClose(t *testing.T) {
	_, port := listenSyslog(t)

	w, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Port: port})
	if err != nil {
		t.Fatalf("NewSyslogWriter: %v", err)
	}
	w.Close()

	if _, err := w.Write([]byte("x")); err == nil {
		t.Error("Write after Close should fail")
	}
}
