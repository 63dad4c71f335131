package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"golang.org/x/net/idna"

	"grimm.is/pathprobe/internal/logging"
)

// LookupFunc performs a family-constrained lookup; network is "ip4" or "ip6".
type LookupFunc func(ctx context.Context, network, host string) ([]net.IP, error)

// Resolver resolves hostnames through the system resolver, honouring
// /etc/hosts and nsswitch like every other program on the probe.
type Resolver struct {
	lookup LookupFunc
	logger *logging.Logger
}

// NewResolver creates a resolver backed by net.DefaultResolver.
func NewResolver(logger *logging.Logger) *Resolver {
	return NewResolverWithLookup(net.DefaultResolver.LookupIP, logger)
}

// NewResolverWithLookup creates a resolver with an injected lookup function.
func NewResolverWithLookup(lookup LookupFunc, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.WithComponent("resolver")
	}
	return &Resolver{
		lookup: lookup,
		logger: logger,
	}
}

// Resolve returns an address of the requested family for host. A literal of
// the matching family is returned unchanged without I/O; a literal of the
// other family is an error.
func (r *Resolver) Resolve(ctx context.Context, host string, family Family) (netip.Addr, error) {
	host = strings.TrimSpace(host)
	switch Classify(host) {
	case KindIPv4, KindIPv6:
		addr, _ := netip.ParseAddr(strings.Trim(host, "[]"))
		if addrFamily(addr) != family {
			return netip.Addr{}, fmt.Errorf("%w: %s is not an %s literal", ErrResolution, host, family)
		}
		return addr, nil
	}

	name, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: invalid hostname %q: %v", ErrResolution, host, err)
	}

	network := "ip4"
	if family == IPv6 {
		network = "ip6"
	}

	ips, err := r.lookup(ctx, network, name)
	if err != nil {
		r.logger.Warn("lookup failed", "host", host, "family", family, "error", err)
		return netip.Addr{}, fmt.Errorf("%w: %s (%s): %v", ErrResolution, host, family, err)
	}

	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if family == IPv4 {
			addr = addr.Unmap()
		} else if addr.Is4In6() {
			continue
		}
		if addrFamily(addr) == family {
			r.logger.Info("resolved", "host", host, "family", family, "address", addr.String())
			return addr, nil
		}
	}

	r.logger.Warn("no address of requested family", "host", host, "family", family)
	return netip.Addr{}, fmt.Errorf("%w: no %s address for %s", ErrResolution, family, host)
}

func addrFamily(a netip.Addr) Family {
	if a.Is4() {
		return IPv4
	}
	return IPv6
}
