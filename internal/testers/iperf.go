package testers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// RTTProber measures the round-trip time used for the MOS estimate.
type RTTProber interface {
	AverageRTT(ctx context.Context, target Target, count int) time.Duration
}

// Iperf runs an iperf3 client against target in TCP or UDP mode and
// parses its JSON report.
type Iperf struct {
	Source    string
	UDP       bool
	Port      int
	Duration  int
	Bandwidth string
	Binary    string
	Executor  network.CommandExecutor
	Clock     clock.Clock
	// RTT is used to score UDP results; nil records a MOS of zero.
	RTT RTTProber
}

func (i *Iperf) Name() string {
	if i.UDP {
		return "iperf3_udp"
	}
	return "iperf3_tcp"
}

type iperfStream struct {
	Bytes         int64   `json:"bytes"`
	BitsPerSecond float64 `json:"bits_per_second"`
	Retransmits   int     `json:"retransmits"`
	JitterMS      float64 `json:"jitter_ms"`
	LostPackets   int     `json:"lost_packets"`
	Packets       int     `json:"packets"`
	LostPercent   float64 `json:"lost_percent"`
}

type iperfReport struct {
	End struct {
		SumSent     *iperfStream `json:"sum_sent"`
		SumReceived *iperfStream `json:"sum_received"`
		Sum         *iperfStream `json:"sum"`
	} `json:"end"`
	Error string `json:"error"`
}

func (i *Iperf) args(target Target) []string {
	port := i.Port
	if port == 0 {
		port = 5201
	}
	duration := i.Duration
	if duration == 0 {
		duration = 10
	}
	args := []string{"-c", target.Address.String(), "-p", strconv.Itoa(port), "-t", strconv.Itoa(duration), "-J"}
	if i.UDP {
		bw := i.Bandwidth
		if bw == "" {
			bw = "20M"
		}
		args = append(args, "-u", "-b", bw)
	}
	if target.Family == network.IPv6 {
		args = append(args, "-6")
	} else {
		args = append(args, "-4")
	}
	return args
}

// Run executes iperf3 and records throughput. In UDP mode it also scores
// the path with MOS.
func (i *Iperf) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(i.Clock)
	binary := i.Binary
	if binary == "" {
		binary = "iperf3"
	}

	out, runErr := executorOr(i.Executor).RunCommand(ctx, binary, i.args(target)...)
	report, err := parseIperf(out)
	if err != nil {
		if runErr != nil {
			return nil, execErr(i.Name(), runErr)
		}
		return nil, execErr(i.Name(), err)
	}
	if report.Error != "" {
		return nil, execErr(i.Name(), errors.New(report.Error))
	}

	rec := export.NewRecord(i.Source, clk.Now())
	rec.Set("server", target.Host)
	if !i.UDP {
		sent, recv := report.End.SumSent, report.End.SumReceived
		if sent == nil || recv == nil {
			return nil, execErr(i.Name(), errors.New("report has no TCP summary"))
		}
		rec.Set("sent_mbps", mbps(sent.BitsPerSecond)).
			Set("received_mbps", mbps(recv.BitsPerSecond)).
			Set("sent_bytes", sent.Bytes).
			Set("received_bytes", recv.Bytes).
			Set("retransmits", sent.Retransmits)
		return rec, nil
	}

	sum := report.End.Sum
	if sum == nil {
		return nil, execErr(i.Name(), errors.New("report has no UDP summary"))
	}
	var score float64
	if i.RTT != nil {
		rtt := i.RTT.AverageRTT(ctx, target, 5)
		score = MOSFromDuration(rtt, sum.JitterMS, sum.LostPercent)
	}
	rec.Set("bytes", sum.Bytes).
		Set("mbps", mbps(sum.BitsPerSecond)).
		Set("jitter_ms", round2(sum.JitterMS)).
		Set("packets", sum.Packets).
		Set("lost_packets", sum.LostPackets).
		Set("lost_percent", round2(sum.LostPercent)).
		Set("mos_score", score)
	return rec, nil
}

func parseIperf(out string) (*iperfReport, error) {
	start := strings.IndexByte(out, '{')
	if start < 0 {
		return nil, fmt.Errorf("no JSON in iperf3 output: %q", firstLine(out))
	}
	var report iperfReport
	if err := json.Unmarshal([]byte(out[start:]), &report); err != nil {
		return nil, fmt.Errorf("failed to parse iperf3 output: %w", err)
	}
	return &report, nil
}

func mbps(bps float64) float64 {
	return round2(bps / 1e6)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
