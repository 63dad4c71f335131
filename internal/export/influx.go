package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PointWriter is the part of api.WriteAPIBlocking the exporter uses.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxConfig describes an InfluxDB v2 endpoint.
type InfluxConfig struct {
	Host     string
	Port     int
	HTTPS    bool
	Insecure bool
	Token    string
	Org      string
	Bucket   string
	Timeout  time.Duration
	// ProbeName is added to every point as the "probe" tag.
	ProbeName string
}

// Influx writes records as points. The measurement is the record's data
// source; poll_id and the probe name become tags and everything else a
// field.
type Influx struct {
	cfg    InfluxConfig
	client influxdb2.Client
	writer PointWriter
}

// NewInflux connects a blocking write API to the configured server.
func NewInflux(cfg InfluxConfig) *Influx {
	opts := influxdb2.DefaultOptions()
	if cfg.Timeout > 0 {
		opts.SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	}
	if cfg.HTTPS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: cfg.Insecure}) //nolint:gosec // operator opt-in
	}
	client := influxdb2.NewClientWithOptions(cfg.URL(), cfg.Token, opts)
	return &Influx{
		cfg:    cfg,
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// NewInfluxWithWriter builds an exporter around an existing writer.
func NewInfluxWithWriter(cfg InfluxConfig, w PointWriter) *Influx {
	return &Influx{cfg: cfg, writer: w}
}

// URL is the server base URL.
func (c InfluxConfig) URL() string {
	scheme := "http"
	if c.HTTPS {
		scheme = "https"
	}
	u := url.URL{Scheme: scheme, Host: net.JoinHostPort(c.Host, strconv.Itoa(c.Port))}
	return u.String()
}

func (i *Influx) Name() string { return "influxdb2" }

// Point converts a record.
func (i *Influx) Point(rec *Record) *write.Point {
	tags := map[string]string{}
	if i.cfg.ProbeName != "" {
		tags["probe"] = i.cfg.ProbeName
	}
	fields := make(map[string]any, len(rec.Columns))
	for _, col := range rec.Columns {
		v := rec.Values[col]
		if v == nil {
			continue
		}
		if col == "poll_id" {
			tags[col] = rec.String(col)
			continue
		}
		fields[col] = v
	}
	return write.NewPoint(rec.Source, tags, fields, rec.Time)
}

// Export writes one point and waits for the server to accept it.
func (i *Influx) Export(ctx context.Context, rec *Record) error {
	if err := i.writer.WritePoint(ctx, i.Point(rec)); err != nil {
		return exportErr(i.Name(), err)
	}
	return nil
}

// Probe checks the server port is open.
func (i *Influx) Probe(ctx context.Context) error {
	timeout := i.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := CheckPort(ctx, i.cfg.Host, i.cfg.Port, timeout); err != nil {
		return exportErr(i.Name(), err)
	}
	return nil
}

func (i *Influx) Close() {
	if i.client != nil {
		i.client.Close()
	}
}

func (i *Influx) String() string {
	return fmt.Sprintf("influxdb2 %s org=%s bucket=%s", i.cfg.URL(), i.cfg.Org, i.cfg.Bucket)
}
