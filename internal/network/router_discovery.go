package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/mdlayher/ndp"
)

// NDPRouterFinder learns the IPv6 default router of an interface by sending
// a router solicitation and waiting for the first advertisement.
type NDPRouterFinder struct {
	Timeout time.Duration
}

var allRouters = netip.MustParseAddr("ff02::2")

// FindRouter returns the link-local source of the first router
// advertisement with a non-zero lifetime seen on iface.
func (f NDPRouterFinder) FindRouter(ctx context.Context, iface string) (netip.Addr, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to get interface %s: %w", iface, err)
	}

	conn, _, err := ndp.Listen(ifi, ndp.LinkLocal)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to listen on %s: %w", iface, err)
	}
	defer conn.Close()

	if err := conn.WriteTo(&ndp.RouterSolicitation{}, nil, allRouters); err != nil {
		return netip.Addr{}, fmt.Errorf("failed to send router solicitation on %s: %w", iface, err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return netip.Addr{}, err
	}

	for {
		msg, _, src, err := conn.ReadFrom()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return netip.Addr{}, fmt.Errorf("no router advertisement on %s within %s", iface, timeout)
			}
			return netip.Addr{}, err
		}
		ra, ok := msg.(*ndp.RouterAdvertisement)
		if !ok || ra.RouterLifetime == 0 {
			continue
		}
		return src.WithZone(""), nil
	}
}
