package testers

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

// DNS times a single A or AAAA lookup of the target name.
type DNS struct {
	Source string
	// Server is host or host:port; empty uses the first resolv.conf server.
	Server     string
	ResolvConf string
	Clock      clock.Clock
	Client     *dns.Client
}

func (d *DNS) Name() string { return "dns" }

func (d *DNS) server() (string, error) {
	if d.Server != "" {
		if _, _, err := net.SplitHostPort(d.Server); err == nil {
			return d.Server, nil
		}
		return net.JoinHostPort(d.Server, "53"), nil
	}
	path := d.ResolvConf
	if path == "" {
		path = "/etc/resolv.conf"
	}
	conf, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(conf.Servers) == 0 {
		return "", fmt.Errorf("no nameservers in %s", path)
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port), nil
}

// Run looks up target.Host and records the lookup time. A non-success
// rcode or an empty answer is a test failure.
func (d *DNS) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(d.Clock)
	server, err := d.server()
	if err != nil {
		return nil, execErr(d.Name(), err)
	}

	qtype := dns.TypeA
	if target.Family == network.IPv6 {
		qtype = dns.TypeAAAA
	}
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(target.Host), qtype)
	msg.RecursionDesired = true

	c := d.Client
	if c == nil {
		c = new(dns.Client)
	}

	resp, rtt, err := c.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, execErr(d.Name(), err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, execErr(d.Name(), fmt.Errorf("%s: %s", target.Host, dns.RcodeToString[resp.Rcode]))
	}

	answers := 0
	for _, rr := range resp.Answer {
		if rr.Header().Rrtype == qtype {
			answers++
		}
	}
	if answers == 0 {
		return nil, execErr(d.Name(), fmt.Errorf("%s: no %s records", target.Host, dns.TypeToString[qtype]))
	}

	rec := export.NewRecord(d.Source, clk.Now())
	rec.Set("dns_index", target.Index).
		Set("dns_target", target.Host).
		Set("lookup_time_ms", ms(rtt)).
		Set("answers", answers).
		Set("server", server)
	return rec, nil
}
