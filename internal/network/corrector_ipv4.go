package network

import (
	"context"
	"fmt"
	"net/netip"
)

// GatewaySource supplies the IPv4 gateway used when no default route on the
// desired interface can be salvaged.
type GatewaySource interface {
	Gateway(iface string) (netip.Addr, error)
}

// InterfaceBouncer restarts an interface.
type InterfaceBouncer interface {
	Bounce(ctx context.Context, iface string) error
}

// IPv4RouteOps repairs IPv4 routing by deleting and re-adding routes. IPv4
// entries do not come back on their own once deleted.
type IPv4RouteOps struct {
	ipRoute
	leases  GatewaySource
	bouncer InterfaceBouncer
}

// NewIPv4RouteOps creates the IPv4 variant.
func NewIPv4RouteOps(cfg RouteOpsConfig, leases GatewaySource, bouncer InterfaceBouncer) *IPv4RouteOps {
	cfg = cfg.withDefaults("route4")
	if leases == nil {
		leases = LeaseReader{}
	}
	if bouncer == nil {
		bouncer = NewBouncer(cfg.Executor, cfg.Clock, cfg.Logger)
	}
	return &IPv4RouteOps{
		ipRoute: ipRoute{family: IPv4, cfg: cfg},
		leases:  leases,
		bouncer: bouncer,
	}
}

// FixDefaultRoute deletes every default route, re-adds the first one on
// iface with metric 0 (or synthesises one from the DHCP lease), bounces
// iface and re-verifies.
func (o *IPv4RouteOps) FixDefaultRoute(ctx context.Context, dest, iface string) error {
	log := o.cfg.Logger

	chosen, err := o.KernelRoute(ctx, dest)
	if err != nil {
		return err
	}
	matches, err := o.RoutesMatching(ctx, dest)
	if err != nil {
		return err
	}
	entry, ok := selectedEntry(matches, chosen)
	if !ok || !entry.IsDefault() {
		log.Error("route to destination is not a default route", "destination", dest, "route", chosen.String(), "entry", entry.String())
		return fmt.Errorf("%w: %s -> %q", ErrNotADefaultRoute, dest, entry.String())
	}

	before := o.snapshot(ctx)

	var keep *Route
	for _, rt := range defaults(matches) {
		if err := o.mutate(ctx, "del", rt); err != nil {
			return err
		}
		if rt.Interface == iface && keep == nil {
			fixed := rt.WithoutExpires().WithMetric(0)
			keep = &fixed
		}
	}

	if keep == nil {
		gw, err := o.leases.Gateway(iface)
		if err != nil {
			log.Error("no gateway available for default route", "iface", iface, "error", err)
			return fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
		}
		synth, _ := ParseRoute(fmt.Sprintf("default via %s dev %s metric 0", gw, iface), IPv4)
		keep = &synth
		log.Info("synthesised default route from lease", "iface", iface, "gateway", gw.String())
	}

	if err := o.mutate(ctx, "add", *keep); err != nil {
		return err
	}

	if err := o.bouncer.Bounce(ctx, iface); err != nil {
		return err
	}

	o.traceDiff(ctx, before)
	return o.verify(ctx, dest, iface)
}

// SuppressDuplicateSubnetRoutes deletes subnet routes for ifaceAddr that use
// any interface other than iface.
func (o *IPv4RouteOps) SuppressDuplicateSubnetRoutes(ctx context.Context, ifaceAddr, iface string) error {
	subnets, err := o.subnetRoutes(ctx, ifaceAddr)
	if err != nil {
		return err
	}
	if len(subnets) < 2 {
		return nil
	}
	for _, rt := range subnets {
		if rt.Interface == iface {
			continue
		}
		o.cfg.Logger.Info("removing duplicate subnet route", "route", rt.String(), "iface", iface)
		if err := o.mutate(ctx, "del", rt); err != nil {
			return err
		}
	}
	return nil
}

func (r *ipRoute) subnetRoutes(ctx context.Context, ifaceAddr string) ([]Route, error) {
	routes, err := r.RoutesMatching(ctx, ifaceAddr)
	if err != nil {
		return nil, err
	}
	var out []Route
	for _, rt := range routes {
		if rt.IsSubnet() && !rt.IsLinkLocal() && rt.Valid() {
			out = append(out, rt)
		}
	}
	return out, nil
}

// selectedEntry finds the table entry behind a route get result: the most
// specific match leaving through the same interface and gateway.
func selectedEntry(matches []Route, chosen Route) (Route, bool) {
	var best Route
	found := false
	for _, rt := range matches {
		if !rt.Valid() || rt.Interface != chosen.Interface {
			continue
		}
		if chosen.Via != "" && rt.Via != "" && rt.Via != chosen.Via {
			continue
		}
		if !found || rt.PrefixLen() > best.PrefixLen() {
			best = rt
			found = true
		}
	}
	return best, found
}
