package testers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/nclient4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/config"
)

const dhclientOutput = `Internet Systems Consortium DHCP Client 4.4.1
Listening on LPF/wlan0/dc:a6:32:00:00:01
DHCPREQUEST for 192.168.2.50 on wlan0 to 255.255.255.255 port 67
DHCPACK of 192.168.2.50 from 192.168.2.1
bound to 192.168.2.50 -- renewal in 40000 seconds.
`

func TestDHCP_Passive(t *testing.T) {
	mc := clock.NewMockClock(epoch)
	exec := &funcExecutor{fn: func(name string, args []string) (string, error) {
		if name == "dhclient" {
			mc.Advance(350 * time.Millisecond)
			return dhclientOutput, nil
		}
		return "", nil
	}}

	d := &DHCP{Source: "pathprobe-dhcp", Executor: exec, Clock: mc}
	rec, err := d.Run(context.Background(), Target{Interface: "wlan0"})
	require.NoError(t, err)
	assert.Equal(t, 350, rec.Values["renewal_time_ms"])

	require.Len(t, exec.calls, 2)
	assert.Equal(t, []string{"dhclient", "-1", "-v", "wlan0", "-pf", "/tmp/dhclient.pid"}, exec.calls[0])
	assert.Equal(t, []string{"pkill", "-f", "/tmp/dhclient.pid"}, exec.calls[1])
}

func TestDHCP_PassiveNoAck(t *testing.T) {
	exec := &funcExecutor{fn: func(name string, args []string) (string, error) {
		return "DHCPREQUEST for 192.168.2.50 on wlan0\n", nil
	}}
	d := &DHCP{Executor: exec}
	_, err := d.Run(context.Background(), Target{Interface: "wlan0"})
	assert.ErrorIs(t, err, ErrTestExecution)
	assert.Contains(t, err.Error(), "no DHCPACK")
}

func TestDHCP_NoInterface(t *testing.T) {
	d := &DHCP{}
	_, err := d.Run(context.Background(), Target{})
	assert.ErrorIs(t, err, ErrTestExecution)
}

type fakeDHCPClient struct {
	clk    *clock.MockClock
	lease  *nclient4.Lease
	err    error
	closed bool
}

func (f *fakeDHCPClient) Request(ctx context.Context, modifiers ...dhcpv4.Modifier) (*nclient4.Lease, error) {
	f.clk.Advance(120 * time.Millisecond)
	return f.lease, f.err
}

func (f *fakeDHCPClient) Close() error {
	f.closed = true
	return nil
}

func TestDHCP_Active(t *testing.T) {
	mc := clock.NewMockClock(epoch)
	ack, err := dhcpv4.New()
	require.NoError(t, err)
	fc := &fakeDHCPClient{clk: mc, lease: &nclient4.Lease{ACK: ack}}

	d := &DHCP{
		Mode:  config.DHCPActive,
		Clock: mc,
		NewClient: func(iface string) (DHCPClient, error) {
			assert.Equal(t, "eth0", iface)
			return fc, nil
		},
	}
	rec, err := d.Run(context.Background(), Target{Interface: "eth0"})
	require.NoError(t, err)
	assert.Equal(t, 120, rec.Values["renewal_time_ms"])
	assert.True(t, fc.closed)
}

func TestDHCP_ActiveFailure(t *testing.T) {
	mc := clock.NewMockClock(epoch)
	fc := &fakeDHCPClient{clk: mc, err: errors.New("timed out")}
	d := &DHCP{
		Mode:      config.DHCPActive,
		Clock:     mc,
		NewClient: func(string) (DHCPClient, error) { return fc, nil },
	}
	_, err := d.Run(context.Background(), Target{Interface: "eth0"})
	assert.ErrorIs(t, err, ErrTestExecution)
	assert.True(t, fc.closed)
}
