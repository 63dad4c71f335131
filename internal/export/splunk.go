package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrBadToken means the HEC endpoint rejected the configured token.
var ErrBadToken = errors.New("splunk HEC token rejected")

// SplunkConfig describes a Splunk HTTP Event Collector.
type SplunkConfig struct {
	Host     string
	Port     int
	HTTPS    bool
	Insecure bool
	Token    string
	Timeout  time.Duration
	// ProbeName is sent as the event host.
	ProbeName string
}

// Splunk posts each record as one HEC event.
type Splunk struct {
	cfg    SplunkConfig
	client *http.Client
}

// NewSplunk creates a HEC exporter. A nil client builds one from cfg.
func NewSplunk(cfg SplunkConfig, client *http.Client) *Splunk {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure}, //nolint:gosec // operator opt-in
			},
		}
	}
	return &Splunk{cfg: cfg, client: client}
}

func (s *Splunk) Name() string { return "splunk" }

func (s *Splunk) endpoint() string {
	scheme := "http"
	if s.cfg.HTTPS {
		scheme = "https"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Path:   "/services/collector/event",
	}
	return u.String()
}

type hecEvent struct {
	Time       float64        `json:"time"`
	Host       string         `json:"host,omitempty"`
	Source     string         `json:"source"`
	SourceType string         `json:"sourcetype"`
	Event      map[string]any `json:"event"`
}

func (s *Splunk) post(ctx context.Context, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Authorization", "Splunk "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, string(msg), nil
}

// Export posts rec to the collector.
func (s *Splunk) Export(ctx context.Context, rec *Record) error {
	ev := hecEvent{
		Time:       float64(rec.Time.UnixMilli()) / 1000,
		Host:       s.cfg.ProbeName,
		Source:     rec.Source,
		SourceType: "_json",
		Event:      rec.Values,
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return exportErr(s.Name(), err)
	}
	code, msg, err := s.post(ctx, body)
	if err != nil {
		return exportErr(s.Name(), err)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return exportErr(s.Name(), ErrBadToken)
	case code < 200 || code > 299:
		return exportErr(s.Name(), fmt.Errorf("HTTP %d: %s", code, msg))
	}
	return nil
}

// Probe checks the port is open and then sends an empty event. The
// collector answers 400 (no data) when the token is valid.
func (s *Splunk) Probe(ctx context.Context) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := CheckPort(ctx, s.cfg.Host, s.cfg.Port, timeout); err != nil {
		return exportErr(s.Name(), err)
	}

	code, msg, err := s.post(ctx, nil)
	if err != nil {
		return exportErr(s.Name(), err)
	}
	switch code {
	case http.StatusBadRequest:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return exportErr(s.Name(), ErrBadToken)
	default:
		return exportErr(s.Name(), fmt.Errorf("unexpected token check response HTTP %d: %s", code, msg))
	}
}
