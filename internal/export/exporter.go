// Package export delivers result records to the reporting server and
// keeps local copies. Exporters talk to InfluxDB v2 or Splunk HEC; the
// spool holds records while the server is unreachable and the cache keeps
// a dated copy of everything the probe produced.
package export

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrExport wraps every delivery failure.
var ErrExport = errors.New("export failed")

// Exporter sends one record to a reporting backend.
type Exporter interface {
	Name() string
	Export(ctx context.Context, rec *Record) error
}

// Prober is implemented by exporters that can check the backend is
// reachable and accepting data before any results are produced.
type Prober interface {
	Probe(ctx context.Context) error
}

// Closer is implemented by exporters holding connections.
type Closer interface {
	Close()
}

// CheckPort opens and closes a TCP connection to host:port.
func CheckPort(ctx context.Context, host string, port int, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("port check %s:%d: %w", host, port, err)
	}
	return conn.Close()
}

func exportErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExport, name, err)
}
