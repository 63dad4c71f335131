package network

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/logging"
)

// RouteOps inspects and repairs the routing table for one address family.
// IPv4RouteOps and IPv6RouteOps are the two implementations; callers pick one
// per check with RouteOpsSet.For.
type RouteOps interface {
	Family() Family

	// RoutesMatching returns every route matching dest, in kernel order.
	// No match is an empty slice, not an error.
	RoutesMatching(ctx context.Context, dest string) ([]Route, error)
	// KernelRoute returns the single route the kernel would use for dest.
	KernelRoute(ctx context.Context, dest string) (Route, error)
	// InterfaceFor returns the egress interface of KernelRoute.
	InterfaceFor(ctx context.Context, dest string) (string, error)

	// FixDefaultRoute makes iface own the default route used for dest.
	FixDefaultRoute(ctx context.Context, dest, iface string) error
	// SuppressDuplicateSubnetRoutes stops peers on a subnet shared by two
	// interfaces from being reached over the wrong one. ifaceAddr is an
	// address of iface on that subnet.
	SuppressDuplicateSubnetRoutes(ctx context.Context, ifaceAddr, iface string) error
	// InjectHostRoute adds "<addr> dev <iface>".
	InjectHostRoute(ctx context.Context, addr, iface string) error
}

// RouteOpsConfig holds the collaborators shared by both RouteOps variants.
type RouteOpsConfig struct {
	Executor CommandExecutor
	Clock    clock.Clock
	Logger   *logging.Logger
	// TraceTable logs a unified diff of the table around each correction.
	TraceTable bool
}

func (c RouteOpsConfig) withDefaults(component string) RouteOpsConfig {
	if c.Executor == nil {
		c.Executor = DefaultCommandExecutor
	}
	if c.Clock == nil {
		c.Clock = clock.Default
	}
	if c.Logger == nil {
		c.Logger = logging.WithComponent(component)
	}
	return c
}

// RouteOpsSet holds one RouteOps per family.
type RouteOpsSet struct {
	V4 RouteOps
	V6 RouteOps
}

// For returns the variant for family.
func (s RouteOpsSet) For(family Family) RouteOps {
	if family == IPv6 {
		return s.V6
	}
	return s.V4
}

// ipRoute implements the inspection half of RouteOps over the ip command.
type ipRoute struct {
	family Family
	cfg    RouteOpsConfig
}

func (r *ipRoute) Family() Family {
	return r.family
}

// ip runs "ip [-6] args..." and logs failures with the literal command.
func (r *ipRoute) ip(ctx context.Context, args ...string) (string, error) {
	full := r.family.ipArgs(args...)
	out, err := r.cfg.Executor.RunCommand(ctx, "ip", full...)
	if err != nil {
		var cmdErr *CommandError
		if !errors.As(err, &cmdErr) {
			cmdErr = newCommandError("ip", full, out, err)
		}
		r.cfg.Logger.Error("command failed", "command", cmdErr.Command, "output", cmdErr.Output, "error", cmdErr.Err)
		return out, cmdErr
	}
	return out, nil
}

func (r *ipRoute) RoutesMatching(ctx context.Context, dest string) ([]Route, error) {
	out, err := r.ip(ctx, "route", "show", "to", "match", dest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteQuery, err)
	}
	routes, err := ParseRoutes(out, r.family)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteQuery, err)
	}
	r.cfg.Logger.Debug("routes matching", "destination", dest, "family", r.family, "count", len(routes))
	return routes, nil
}

func (r *ipRoute) KernelRoute(ctx context.Context, dest string) (Route, error) {
	out, err := r.ip(ctx, "route", "get", dest)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %w", ErrRouteQuery, err)
	}
	routes, err := ParseRoutes(out, r.family)
	if err != nil {
		return Route{}, fmt.Errorf("%w: %w", ErrRouteQuery, err)
	}
	if len(routes) == 0 {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, dest)
	}
	return routes[0], nil
}

func (r *ipRoute) InterfaceFor(ctx context.Context, dest string) (string, error) {
	route, err := r.KernelRoute(ctx, dest)
	if err != nil {
		return "", err
	}
	if !route.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoute, route.String())
	}
	return route.Interface, nil
}

// defaults returns the valid default entries among routes.
func defaults(routes []Route) []Route {
	var out []Route
	for _, rt := range routes {
		if rt.IsDefault() && rt.Valid() {
			out = append(out, rt)
		}
	}
	return out
}

// mutate runs an add/del and wraps failures in ErrCorrectionFailed. The
// route is replayed without its lifetime and status flags.
func (r *ipRoute) mutate(ctx context.Context, verb string, route Route) error {
	route = route.WithoutExpires()
	if !route.Valid() {
		return fmt.Errorf("%w: refusing to %s %q: %w", ErrCorrectionFailed, verb, route.String(), ErrInvalidRoute)
	}
	args := append([]string{"route", verb}, route.Args()...)
	if _, err := r.ip(ctx, args...); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
	}
	r.cfg.Logger.Info("route "+verb, "family", r.family, "route", route.String())
	return nil
}

func (r *ipRoute) InjectHostRoute(ctx context.Context, addr, iface string) error {
	r.cfg.Logger.Info("injecting static host route", "destination", addr, "family", r.family, "iface", iface)
	return r.mutate(ctx, "add", HostRoute(addr, iface, r.family))
}

// verify confirms dest now leaves through iface.
func (r *ipRoute) verify(ctx context.Context, dest, iface string) error {
	got, err := r.InterfaceFor(ctx, dest)
	if err != nil {
		return fmt.Errorf("%w: re-verification failed: %w", ErrCorrectionFailed, err)
	}
	if got != iface {
		return fmt.Errorf("%w: %s still routed via %s, want %s", ErrCorrectionFailed, dest, got, iface)
	}
	return nil
}

// snapshot returns the current table for diff tracing, or "" when disabled.
func (r *ipRoute) snapshot(ctx context.Context) string {
	if !r.cfg.TraceTable {
		return ""
	}
	out, err := r.ip(ctx, "route", "show")
	if err != nil {
		return ""
	}
	return out
}

// traceDiff logs what changed in the table since before.
func (r *ipRoute) traceDiff(ctx context.Context, before string) {
	if !r.cfg.TraceTable {
		return
	}
	after := r.snapshot(ctx)
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "before",
		ToFile:   "after",
		Context:  1,
	})
	if err != nil || diff == "" {
		return
	}
	r.cfg.Logger.Debug("route table changed", "family", r.family, "diff", strings.TrimSpace(diff))
}
