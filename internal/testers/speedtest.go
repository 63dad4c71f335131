package testers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// Speedtest runs the Ookla speedtest CLI.
type Speedtest struct {
	Source   string
	ServerID string
	Binary   string
	Executor network.CommandExecutor
	Clock    clock.Clock
}

func (s *Speedtest) Name() string { return "speedtest" }

type speedtestPhase struct {
	// Bandwidth is in bytes per second.
	Bandwidth float64 `json:"bandwidth"`
	Bytes     int64   `json:"bytes"`
}

type speedtestResult struct {
	Type string `json:"type"`
	Ping struct {
		Jitter  float64 `json:"jitter"`
		Latency float64 `json:"latency"`
	} `json:"ping"`
	Download speedtestPhase `json:"download"`
	Upload   speedtestPhase `json:"upload"`
	Server   struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Location string `json:"location"`
	} `json:"server"`
	Error string `json:"error"`
}

// Run executes the speedtest and records throughput and latency.
func (s *Speedtest) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(s.Clock)
	bin := s.Binary
	if bin == "" {
		bin = "speedtest"
	}
	args := []string{"--format=json", "--accept-license", "--accept-gdpr"}
	if s.ServerID != "" {
		args = append(args, "--server-id="+s.ServerID)
	}

	out, runErr := executorOr(s.Executor).RunCommand(ctx, bin, args...)
	res, err := parseSpeedtest(out)
	if err != nil {
		if runErr != nil {
			return nil, execErr(s.Name(), runErr)
		}
		return nil, execErr(s.Name(), err)
	}
	if res.Error != "" {
		return nil, execErr(s.Name(), errors.New(res.Error))
	}

	name := res.Server.Name
	if res.Server.Location != "" {
		name += " - " + res.Server.Location
	}

	rec := export.NewRecord(s.Source, clk.Now())
	rec.Set("server_name", name).
		Set("ping_time", int(res.Ping.Latency+0.5)).
		Set("download_rate_mbps", mbps(res.Download.Bandwidth*8)).
		Set("upload_rate_mbps", mbps(res.Upload.Bandwidth*8)).
		Set("mbytes_sent", round2(float64(res.Upload.Bytes)/1e6)).
		Set("mbytes_received", round2(float64(res.Download.Bytes)/1e6)).
		Set("latency_ms", round2(res.Ping.Latency)).
		Set("jitter_ms", round2(res.Ping.Jitter))
	return rec, nil
}

// parseSpeedtest picks the "result" object out of the CLI output, which
// may also carry log lines.
func parseSpeedtest(out string) (*speedtestResult, error) {
	last := fmt.Errorf("no result in speedtest output: %q", firstLine(out))
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var res speedtestResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			last = fmt.Errorf("failed to parse speedtest output: %w", err)
			continue
		}
		if res.Type == "result" || res.Error != "" {
			return &res, nil
		}
	}
	return nil, last
}
