package testers

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"grimm.is/pathprobe/internal/brand"
	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
)

// HTTP times a GET of the target URL.
type HTTP struct {
	Source string
	Client *http.Client
	Clock  clock.Clock
}

func (h *HTTP) Name() string { return "http" }

// Run fetches target.Host (a URL) and records the total time and the time
// to first response byte. Any status code is recorded; only transport
// errors fail the test.
func (h *HTTP) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(h.Clock)
	client := h.Client
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}

	var start, firstByte time.Time
	trace := &httptrace.ClientTrace{
		WroteRequest:         func(httptrace.WroteRequestInfo) { start = clk.Now() },
		GotFirstResponseByte: func() { firstByte = clk.Now() },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target.Host, nil)
	if err != nil {
		return nil, execErr(h.Name(), err)
	}
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))

	begin := clk.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, execErr(h.Name(), err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	total := clk.Since(begin)

	var serverTime time.Duration
	if !start.IsZero() && !firstByte.IsZero() {
		serverTime = firstByte.Sub(start)
	}

	rec := export.NewRecord(h.Source, clk.Now())
	rec.Set("http_index", target.Index).
		Set("http_target", target.Host).
		Set("http_get_time_ms", ms(total)).
		Set("http_status_code", resp.StatusCode).
		Set("http_server_response_time_ms", ms(serverTime))
	if resp.StatusCode >= 500 {
		return rec, execErr(h.Name(), fmt.Errorf("%s returned %d", target.Host, resp.StatusCode))
	}
	return rec, nil
}
