// Package network decides which interface probe traffic leaves through and
// repairs the kernel routing table when it disagrees.
//
// # Overview
//
// The package is layered leaf first:
//
//   - Classify and Resolver turn a target string into an address of a
//     specific family.
//   - RouteOps inspects the routing table through the ip command. IPv4RouteOps
//     and IPv6RouteOps share the inspection contract and differ in how they
//     repair a bad default route.
//   - Policy maps the configured probe mode to the interface names test and
//     management traffic must use.
//   - Collector reads link state, addresses and wireless association data.
//
// # Route Correction
//
// IPv4 default routes are deleted and the desired one is re-added with
// metric 0, after which the owning interface is bounced. IPv6 default and
// on-link routes are re-learned from router advertisements within seconds,
// so they are never deleted; a static copy with metric 1 is added instead and
// wins the tie-break against the RA metric of 1024.
//
// Every mutating command is run once. A failure is returned as a
// *CommandError carrying the literal command and its output, wrapped in
// ErrCorrectionFailed.
//
// # Testing
//
// All OS access goes through CommandExecutor and Netlinker, which have
// testify mocks in mocks.go and a recording DryRunExecutor.
package network
