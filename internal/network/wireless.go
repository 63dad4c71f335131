package network

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// WirelessInfo is the association state reported by iw.
type WirelessInfo struct {
	SSID      string
	BSSID     string
	FreqMHz   int
	Channel   int
	SignalDBm int
	TxRate    float64 // Mbit/s
	RxRate    float64 // Mbit/s
	TxRetries int
	TxFailed  int
}

// Associated reports whether the adapter is joined to a network.
func (w *WirelessInfo) Associated() bool {
	return w != nil && w.SSID != ""
}

var (
	reBSSID     = regexp.MustCompile(`Connected to ([0-9a-fA-F:]{17})`)
	reSSID      = regexp.MustCompile(`(?m)^\s*SSID:\s*(.+)$`)
	reFreq      = regexp.MustCompile(`freq:\s*(\d+)`)
	reSignal    = regexp.MustCompile(`signal:\s*(-?\d+)\s*dBm`)
	reTxRate    = regexp.MustCompile(`tx bitrate:\s*([\d.]+)\s*MBit/s`)
	reRxRate    = regexp.MustCompile(`rx bitrate:\s*([\d.]+)\s*MBit/s`)
	reTxRetries = regexp.MustCompile(`tx retries:\s*(\d+)`)
	reTxFailed  = regexp.MustCompile(`tx failed:\s*(\d+)`)
)

// Wireless runs "iw dev <name> link" and "iw dev <name> station dump".
func (c *Collector) Wireless(ctx context.Context, name string) (*WirelessInfo, error) {
	out, err := c.exec.RunCommand(ctx, "iw", "dev", name, "link")
	if err != nil {
		return nil, fmt.Errorf("iw link failed on %s: %w", name, err)
	}
	info := ParseIWLink(out)

	if info.Associated() {
		if dump, err := c.exec.RunCommand(ctx, "iw", "dev", name, "station", "dump"); err == nil {
			info.TxRetries = firstInt(reTxRetries, dump)
			info.TxFailed = firstInt(reTxFailed, dump)
		} else {
			c.logger.Debug("iw station dump failed", "iface", name, "error", err)
		}
	}
	return info, nil
}

// ParseIWLink parses "iw dev <if> link" output. A "Not connected." result
// yields an empty, unassociated record.
func ParseIWLink(out string) *WirelessInfo {
	info := &WirelessInfo{}
	if strings.Contains(out, "Not connected") {
		return info
	}
	if m := reBSSID.FindStringSubmatch(out); len(m) > 1 {
		info.BSSID = strings.ToLower(m[1])
	}
	if m := reSSID.FindStringSubmatch(out); len(m) > 1 {
		info.SSID = strings.TrimSpace(m[1])
	}
	info.FreqMHz = firstInt(reFreq, out)
	info.Channel = FreqToChannel(info.FreqMHz)
	info.SignalDBm = firstInt(reSignal, out)
	info.TxRate = firstFloat(reTxRate, out)
	info.RxRate = firstFloat(reRxRate, out)
	return info
}

// FreqToChannel converts a centre frequency to an 802.11 channel number.
func FreqToChannel(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq <= 2472:
		return (freq - 2407) / 5
	case freq >= 5955 && freq <= 7115:
		return (freq - 5950) / 5
	case freq >= 5000 && freq <= 5900:
		return (freq - 5000) / 5
	}
	return 0
}

func firstInt(re *regexp.Regexp, s string) int {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func firstFloat(re *regexp.Regexp, s string) float64 {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return 0
	}
	f, _ := strconv.ParseFloat(m[1], 64)
	return f
}
