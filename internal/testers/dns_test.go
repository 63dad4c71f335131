package testers

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/network"
)

// startDNS serves A and AAAA answers for example.com on a loopback port.
func startDNS(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		if q.Name != "example.com." {
			m.Rcode = dns.RcodeNameError
			_ = w.WriteMsg(m)
			return
		}
		switch q.Qtype {
		case dns.TypeA:
			rr, _ := dns.NewRR("example.com. 60 IN A 93.184.216.34")
			m.Answer = append(m.Answer, rr)
		case dns.TypeAAAA:
			rr, _ := dns.NewRR("example.com. 60 IN AAAA 2606:2800:220:1::1")
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNS_LookupA(t *testing.T) {
	addr := startDNS(t)
	d := &DNS{Source: "pathprobe-dns", Server: addr}

	rec, err := d.Run(context.Background(), Target{Host: "example.com", Family: network.IPv4, Index: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Values["dns_index"])
	assert.Equal(t, "example.com", rec.Values["dns_target"])
	assert.Equal(t, 1, rec.Values["answers"])
	ms, ok := rec.Values["lookup_time_ms"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, ms, 0.0)
}

func TestDNS_LookupAAAA(t *testing.T) {
	addr := startDNS(t)
	d := &DNS{Server: addr}

	rec, err := d.Run(context.Background(), Target{Host: "example.com", Family: network.IPv6})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Values["answers"])
}

func TestDNS_NXDomainFails(t *testing.T) {
	addr := startDNS(t)
	d := &DNS{Server: addr}

	_, err := d.Run(context.Background(), Target{Host: "nope.invalid", Family: network.IPv4})
	assert.ErrorIs(t, err, ErrTestExecution)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestDNS_ServerFromResolvConf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("search lan\nnameserver 192.0.2.53\nnameserver 192.0.2.54\n"), 0o644))

	d := &DNS{ResolvConf: path}
	server, err := d.server()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.53:53", server)
}

func TestDNS_ServerWithoutPort(t *testing.T) {
	d := &DNS{Server: "192.0.2.1"}
	server, err := d.server()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.1:53", server)
}

func TestDNS_MissingResolvConf(t *testing.T) {
	d := &DNS{ResolvConf: filepath.Join(t.TempDir(), "missing")}
	_, err := d.Run(context.Background(), Target{Host: "example.com"})
	assert.ErrorIs(t, err, ErrTestExecution)
}
