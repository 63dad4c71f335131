package network

import (
	"context"
	"fmt"
	"net/netip"
)

// StaticMetric6 beats the RA-learned default metric of 1024.
const StaticMetric6 = 1

// FallbackRouter6 is the next-hop used when no router can be discovered.
var FallbackRouter6 = netip.MustParseAddr("fe80::1")

// RouterFinder discovers the link-local address of a router on iface.
type RouterFinder interface {
	FindRouter(ctx context.Context, iface string) (netip.Addr, error)
}

// IPv6RouteOps repairs IPv6 routing by adding lower-metric static copies.
// Default and on-link routes learned from router advertisements reappear
// after deletion, so only static leftovers are ever deleted.
type IPv6RouteOps struct {
	ipRoute
	routers RouterFinder
}

// NewIPv6RouteOps creates the IPv6 variant. routers may be nil, in which
// case synthesised defaults go via fe80::1.
func NewIPv6RouteOps(cfg RouteOpsConfig, routers RouterFinder) *IPv6RouteOps {
	cfg = cfg.withDefaults("route6")
	return &IPv6RouteOps{
		ipRoute: ipRoute{family: IPv6, cfg: cfg},
		routers: routers,
	}
}

// FixDefaultRoute adds a metric 1 static copy of every default route on
// iface, or a synthesised one when there is none, then re-verifies. No
// interface bounce is needed.
func (o *IPv6RouteOps) FixDefaultRoute(ctx context.Context, dest, iface string) error {
	log := o.cfg.Logger

	matches, err := o.RoutesMatching(ctx, dest)
	if err != nil {
		return err
	}

	before := o.snapshot(ctx)
	fixed := false

	for _, rt := range defaults(matches) {
		if rt.Interface != iface {
			// A static default on another interface at or below our metric
			// would tie or win. RA routes never carry such a low metric.
			if rt.HasMetric && rt.Metric <= StaticMetric6 && rt.Expires == "" && rt.Proto != "ra" {
				log.Info("removing competing static default route", "route", rt.String())
				if err := o.mutate(ctx, "del", rt); err != nil {
					return err
				}
			}
			continue
		}

		if rt.HasMetric && rt.Metric == StaticMetric6 {
			fixed = true
			continue
		}

		static := rt.WithoutExpires().WithMetric(StaticMetric6)
		if containsDefault(matches, static) {
			fixed = true
			continue
		}
		if err := o.mutate(ctx, "add", static); err != nil {
			return err
		}
		fixed = true
	}

	if !fixed {
		via := FallbackRouter6
		if o.routers != nil {
			if addr, err := o.routers.FindRouter(ctx, iface); err == nil {
				via = addr
			} else {
				log.Warn("router discovery failed, using fallback next-hop", "iface", iface, "via", via.String(), "error", err)
			}
		}
		synth, _ := ParseRoute(fmt.Sprintf("default via %s dev %s metric %d", via, iface, StaticMetric6), IPv6)
		if err := o.mutate(ctx, "add", synth); err != nil {
			return err
		}
	}

	o.traceDiff(ctx, before)
	return o.verify(ctx, dest, iface)
}

// SuppressDuplicateSubnetRoutes adds a metric 1 copy of the iface subnet
// route for ifaceAddr when another interface shares that subnet.
func (o *IPv6RouteOps) SuppressDuplicateSubnetRoutes(ctx context.Context, ifaceAddr, iface string) error {
	subnets, err := o.subnetRoutes(ctx, ifaceAddr)
	if err != nil {
		return err
	}
	if len(subnets) < 2 {
		return nil
	}
	for _, rt := range subnets {
		if rt.Interface != iface {
			continue
		}
		static := rt.WithoutExpires().WithMetric(StaticMetric6)
		if containsRoute(subnets, static) {
			continue
		}
		o.cfg.Logger.Info("adding preferred subnet route", "route", static.String(), "iface", iface)
		if err := o.mutate(ctx, "add", static); err != nil {
			return err
		}
	}
	return nil
}

// containsRoute reports whether routes already has want's destination on
// the same interface with the same metric.
func containsRoute(routes []Route, want Route) bool {
	for _, rt := range routes {
		if rt.Destination == want.Destination && rt.Interface == want.Interface &&
			rt.HasMetric == want.HasMetric && rt.Metric == want.Metric {
			return true
		}
	}
	return false
}

func containsDefault(routes []Route, want Route) bool {
	for _, rt := range routes {
		if rt.IsDefault() && rt.Interface == want.Interface && rt.Via == want.Via &&
			rt.HasMetric && rt.Metric == want.Metric {
			return true
		}
	}
	return false
}
