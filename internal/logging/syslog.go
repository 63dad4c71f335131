package logging

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"grimm.is/pathprobe/internal/brand"
)

// Syslog severities used for agent log levels.
const (
	severityError   = 3
	severityWarning = 4
	severityInfo    = 6
	severityDebug   = 7
)

var facilities = map[string]int{
	"kern":   0,
	"user":   1,
	"daemon": 3,
	"auth":   4,
	"syslog": 5,
	"local0": 16,
	"local1": 17,
	"local2": 18,
	"local3": 19,
	"local4": 20,
	"local5": 21,
	"local6": 22,
	"local7": 23,
}

// ParseFacility maps a facility name such as "daemon" or "local3" to its
// code. An empty name is daemon.
func ParseFacility(name string) (int, error) {
	if name == "" {
		return facilities["daemon"], nil
	}
	code, ok := facilities[strings.ToLower(name)]
	if !ok {
		return 0, fmt.Errorf("unknown syslog facility %q", name)
	}
	return code, nil
}

// SyslogConfig describes the remote syslog server.
type SyslogConfig struct {
	Host     string
	Port     int
	Protocol string
	Tag      string
	Facility string
}

// SyslogWriter forwards console log lines to a remote syslog server as
// RFC 3164 messages. The severity is taken from the line's level tag and the
// local timestamp and process prefix are replaced by the syslog header.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	addr     string
	protocol string
	tag      string
	facility int
	hostname string
	now      func() time.Time
}

// NewSyslogWriter dials the server described by cfg.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 514
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "udp"
	}
	if cfg.Tag == "" {
		cfg.Tag = brand.LowerName
	}
	facility, err := ParseFacility(cfg.Facility)
	if err != nil {
		return nil, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = brand.LowerName
	}

	w := &SyslogWriter{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		protocol: cfg.Protocol,
		tag:      fmt.Sprintf("%s[%d]", cfg.Tag, os.Getpid()),
		facility: facility,
		hostname: hostname,
		now:      time.Now,
	}
	if err := w.dial(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *SyslogWriter) dial() error {
	conn, err := net.DialTimeout(w.protocol, w.addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to syslog server %s: %w", w.addr, err)
	}
	w.conn = conn
	return nil
}

// Write sends one console line. A failed send redials once and retries.
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return 0, fmt.Errorf("syslog connection closed")
	}

	severity, body := splitConsoleLine(p)
	msg := fmt.Sprintf("<%d>%s %s %s: %s", w.facility*8+severity, w.now().Format(time.Stamp), w.hostname, w.tag, body)
	if w.protocol == "tcp" {
		msg += "\n"
	}

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.conn.Close()
		if derr := w.dial(); derr != nil {
			w.conn = nil
			return 0, fmt.Errorf("%w (redial: %w)", err, derr)
		}
		if _, err := w.conn.Write([]byte(msg)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// splitConsoleLine extracts the severity from a ConsoleHandler line and
// returns the text after its "name[pid]: " prefix. Lines in any other shape
// are sent whole at info severity.
func splitConsoleLine(p []byte) (int, string) {
	line := string(bytes.TrimRight(p, "\n"))
	i := strings.Index(line, "]: [")
	if i < 0 {
		return severityInfo, line
	}
	body := line[i+3:]
	end := strings.IndexByte(body, ']')
	if end < 0 {
		return severityInfo, body
	}

	switch body[1:end] {
	case "debug":
		return severityDebug, body
	case "warn":
		return severityWarning, body
	case "error":
		return severityError, body
	}
	return severityInfo, body
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}
