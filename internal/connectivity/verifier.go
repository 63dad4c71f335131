// Package connectivity checks that traffic for a destination leaves through
// the interface the probe mode expects, and corrects the routing table
// when it does not.
package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"grimm.is/pathprobe/internal/logging"
	"grimm.is/pathprobe/internal/network"
)

// Category is the kind of destination being checked. It decides which
// correction is allowed and whether failure is fatal for the cycle.
type Category string

const (
	CategoryInternet Category = "internet"
	CategoryMgt      Category = "mgt"
	CategoryTarget   Category = "target"
)

// Decision actions logged for every check.
const (
	ActionNone      = "none"
	ActionFixRoute  = "fix_default_route"
	ActionHostRoute = "inject_host_route"
	ActionGiveUp    = "give_up"
)

// Resolver resolves a destination for one family.
type Resolver interface {
	Resolve(ctx context.Context, host string, family network.Family) (netip.Addr, error)
}

// AddressSource returns interface addresses for duplicate subnet suppression.
type AddressSource interface {
	IPv4Address(name string) (netip.Addr, error)
	IPv6GlobalAddress(name string) (netip.Addr, error)
}

// Result describes one completed check.
type Result struct {
	Category    Category
	Destination string
	Address     netip.Addr
	Family      network.Family
	Expected    string
	Observed    string
	Corrected   bool
}

// CorrectionHook is told about every correction attempt.
type CorrectionHook func(family network.Family, category Category, ok bool)

// Verifier implements the per-destination check sequence: resolve, compare
// the observed egress interface with the expected one, correct once and
// re-check once.
type Verifier struct {
	resolver Resolver
	routes   network.RouteOpsSet
	policy   network.Policy
	addrs    AddressSource
	logger   *logging.Logger

	OnCorrection CorrectionHook
}

// NewVerifier creates a verifier. addrs may be nil, which disables duplicate
// subnet suppression after a default-route correction.
func NewVerifier(resolver Resolver, routes network.RouteOpsSet, policy network.Policy, addrs AddressSource, logger *logging.Logger) *Verifier {
	if logger == nil {
		logger = logging.WithComponent("connectivity")
	}
	return &Verifier{
		resolver: resolver,
		routes:   routes,
		policy:   policy,
		addrs:    addrs,
		logger:   logger,
	}
}

// CheckInternet verifies general Internet reachability for family goes out
// of the test interface, correcting the default route if needed. Every
// failure is a FatalError.
func (v *Verifier) CheckInternet(ctx context.Context, host string, family network.Family) (Result, error) {
	stage := StageIPv4
	if family == network.IPv6 {
		stage = StageIPv6
	}
	expected, err := v.policy.TestInterface()
	if err != nil {
		return Result{}, Fatal(stage, err)
	}
	res, err := v.check(ctx, CategoryInternet, host, family, expected, v.fixDefault)
	return res, Fatal(stage, err)
}

// CheckMgt verifies the exporter host is reached over the management
// interface. A misroute is fixed with a static host route, so the default
// route the internet check settled on is left alone. Every failure is a
// FatalError.
func (v *Verifier) CheckMgt(ctx context.Context, host string, family network.Family) (Result, error) {
	res, err := v.check(ctx, CategoryMgt, host, family, v.policy.MgtInterface(), v.injectHost)
	return res, Fatal(StageMgt, err)
}

// CheckTarget verifies a per-test target goes out of the test interface,
// injecting a host route if needed. Errors are scoped to the one test.
func (v *Verifier) CheckTarget(ctx context.Context, host string, family network.Family) (Result, error) {
	expected, err := v.policy.TestInterface()
	if err != nil {
		return Result{}, err
	}
	return v.check(ctx, CategoryTarget, host, family, expected, v.injectHost)
}

type correctFunc func(ctx context.Context, ops network.RouteOps, res Result) (string, error)

func (v *Verifier) check(ctx context.Context, cat Category, host string, family network.Family, expected string, correct correctFunc) (Result, error) {
	res := Result{Category: cat, Destination: host, Family: family, Expected: expected}
	log := v.logger.With("category", string(cat))

	addr, err := v.resolver.Resolve(ctx, host, family)
	if err != nil {
		log.Warn("destination did not resolve", "destination", host, "family", family, "error", err)
		return res, err
	}
	res.Address = addr
	dest := addr.String()

	ops := v.routes.For(family)
	if ops == nil {
		return res, fmt.Errorf("no route operations for %s", family)
	}

	observed, err := observedInterface(ctx, ops, dest)
	if err != nil {
		return res, err
	}
	res.Observed = observed

	if observed == expected {
		log.Decision("route ok", dest, string(family), expected, observed, ActionNone, "host", host)
		return res, nil
	}

	action, cerr := correct(ctx, ops, res)
	log.Decision("route mismatch", dest, string(family), expected, observed, action, "host", host)
	if cerr != nil {
		log.Error("route correction failed", "destination", dest, "family", family, "action", action, "error", cerr)
	}

	observed, err = observedInterface(ctx, ops, dest)
	if err != nil {
		v.hook(family, cat, false)
		return res, errors.Join(cerr, err)
	}
	res.Observed = observed
	res.Corrected = true

	if observed != expected {
		v.hook(family, cat, false)
		log.Decision("route still wrong after correction", dest, string(family), expected, observed, ActionGiveUp, "host", host)
		if cerr != nil {
			return res, cerr
		}
		return res, fmt.Errorf("%w: %s routed via %s, want %s", network.ErrCorrectionFailed, dest, observed, expected)
	}

	v.hook(family, cat, true)
	log.Decision("route corrected", dest, string(family), expected, observed, action, "host", host)
	if action == ActionFixRoute {
		v.suppressDuplicates(ctx, ops, expected)
	}
	return res, nil
}

// observedInterface treats "no route" as a mismatch rather than a failure.
func observedInterface(ctx context.Context, ops network.RouteOps, dest string) (string, error) {
	iface, err := ops.InterfaceFor(ctx, dest)
	if errors.Is(err, network.ErrNoRoute) {
		return "", nil
	}
	return iface, err
}

func (v *Verifier) fixDefault(ctx context.Context, ops network.RouteOps, res Result) (string, error) {
	return ActionFixRoute, ops.FixDefaultRoute(ctx, res.Address.String(), res.Expected)
}

func (v *Verifier) injectHost(ctx context.Context, ops network.RouteOps, res Result) (string, error) {
	return ActionHostRoute, ops.InjectHostRoute(ctx, res.Address.String(), res.Expected)
}

// suppressDuplicates runs after a successful default-route correction.
// Failures only leave peers on a shared subnet misrouted, so they are logged.
func (v *Verifier) suppressDuplicates(ctx context.Context, ops network.RouteOps, iface string) {
	if v.addrs == nil {
		return
	}
	var (
		addr netip.Addr
		err  error
	)
	if ops.Family() == network.IPv6 {
		addr, err = v.addrs.IPv6GlobalAddress(iface)
	} else {
		addr, err = v.addrs.IPv4Address(iface)
	}
	if err != nil || !addr.IsValid() {
		v.logger.Debug("no local address for duplicate subnet check", "iface", iface, "family", ops.Family(), "error", err)
		return
	}
	if err := ops.SuppressDuplicateSubnetRoutes(ctx, addr.String(), iface); err != nil {
		v.logger.Warn("duplicate subnet route suppression failed", "iface", iface, "family", ops.Family(), "error", err)
	}
}

func (v *Verifier) hook(family network.Family, cat Category, ok bool) {
	if v.OnCorrection != nil {
		v.OnCorrection(family, cat, ok)
	}
}
