package network

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
)

// FakeRouteTable is an in-memory CommandExecutor that interprets the ip
// route and ifup/ifdown commands issued by RouteOps. It lets tests assert
// on the resulting table instead of on individual commands.
type FakeRouteTable struct {
	mu       sync.Mutex
	v4       []string
	v6       []string
	Commands []string
	// Fail maps a command prefix to the error it should return.
	Fail map[string]error
	// OnBounce runs after ifup, e.g. to simulate dhclient re-adding a route.
	OnBounce func(t *FakeRouteTable, iface string)
}

// NewFakeRouteTable creates a table from ip route show style lines.
func NewFakeRouteTable(v4, v6 []string) *FakeRouteTable {
	return &FakeRouteTable{
		v4:   append([]string(nil), v4...),
		v6:   append([]string(nil), v6...),
		Fail: map[string]error{},
	}
}

// Lines returns the current table for family.
func (t *FakeRouteTable) Lines(family Family) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if family == IPv6 {
		return append([]string(nil), t.v6...)
	}
	return append([]string(nil), t.v4...)
}

// Routes returns the parsed table for family.
func (t *FakeRouteTable) Routes(family Family) []Route {
	var out []Route
	for _, l := range t.Lines(family) {
		if r, err := ParseRoute(l, family); err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Append adds a line without any of the add checks.
func (t *FakeRouteTable) Append(family Family, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if family == IPv6 {
		t.v6 = append(t.v6, line)
	} else {
		t.v4 = append(t.v4, line)
	}
}

// Mutations returns the recorded commands that change state.
func (t *FakeRouteTable) Mutations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, c := range t.Commands {
		if !strings.Contains(c, " show") && !strings.Contains(c, " get ") {
			out = append(out, c)
		}
	}
	return out
}

func (t *FakeRouteTable) RunCommand(ctx context.Context, name string, arg ...string) (string, error) {
	cmd := strings.TrimSpace(name + " " + strings.Join(arg, " "))

	t.mu.Lock()
	t.Commands = append(t.Commands, cmd)
	for prefix, err := range t.Fail {
		if strings.HasPrefix(cmd, prefix) {
			t.mu.Unlock()
			return "RTNETLINK answers: Operation not permitted", newCommandError(name, arg, "", err)
		}
	}
	t.mu.Unlock()

	switch {
	case strings.HasSuffix(name, "ifdown"):
		return "", nil
	case strings.HasSuffix(name, "ifup"):
		if t.OnBounce != nil && len(arg) > 0 {
			t.OnBounce(t, arg[0])
		}
		return "", nil
	case name != "ip":
		return "", newCommandError(name, arg, "", errors.New("unknown command"))
	}

	family := IPv4
	if len(arg) > 0 && arg[0] == "-6" {
		family = IPv6
		arg = arg[1:]
	}
	if len(arg) < 2 || arg[0] != "route" {
		return "", newCommandError(name, arg, "", errors.New("unsupported ip command"))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch arg[1] {
	case "show":
		if len(arg) >= 5 && arg[2] == "to" && arg[3] == "match" {
			return t.match(family, arg[4]), nil
		}
		return strings.Join(t.table(family), "\n") + "\n", nil
	case "get":
		if len(arg) < 3 {
			return "", newCommandError(name, arg, "", errors.New("missing destination"))
		}
		return t.get(family, arg[2])
	case "add":
		return t.add(family, strings.Join(arg[2:], " "))
	case "del":
		return t.del(family, strings.Join(arg[2:], " "))
	}
	return "", newCommandError(name, arg, "", errors.New("unsupported route verb"))
}

func (t *FakeRouteTable) table(family Family) []string {
	if family == IPv6 {
		return t.v6
	}
	return t.v4
}

func (t *FakeRouteTable) setTable(family Family, lines []string) {
	if family == IPv6 {
		t.v6 = lines
	} else {
		t.v4 = lines
	}
}

func matchesDest(r Route, dest netip.Addr) bool {
	if r.IsDefault() {
		return true
	}
	if p, err := netip.ParsePrefix(r.Destination); err == nil {
		return p.Contains(dest)
	}
	if a, err := netip.ParseAddr(r.Destination); err == nil {
		return a == dest
	}
	return false
}

func (t *FakeRouteTable) match(family Family, dest string) string {
	addr, err := netip.ParseAddr(dest)
	if err != nil {
		return ""
	}
	var out []string
	for _, l := range t.table(family) {
		r, err := ParseRoute(l, family)
		if err == nil && matchesDest(r, addr) {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return ""
	}
	return strings.Join(out, "\n") + "\n"
}

func effectiveMetric(r Route) int {
	if r.HasMetric {
		return r.Metric
	}
	if r.Family == IPv6 {
		return 1024
	}
	return 0
}

func (t *FakeRouteTable) get(family Family, dest string) (string, error) {
	addr, err := netip.ParseAddr(dest)
	if err != nil {
		return "Error: any valid prefix is expected rather than \"" + dest + "\".", newCommandError("ip", []string{"route", "get", dest}, "", errors.New("exit status 1"))
	}
	var best *Route
	for _, l := range t.table(family) {
		r, err := ParseRoute(l, family)
		if err != nil || !r.Valid() || !matchesDest(r, addr) {
			continue
		}
		if best == nil || r.PrefixLen() > best.PrefixLen() ||
			(r.PrefixLen() == best.PrefixLen() && effectiveMetric(r) < effectiveMetric(*best)) {
			rc := r
			best = &rc
		}
	}
	if best == nil {
		return "RTNETLINK answers: Network is unreachable", newCommandError("ip", []string{"route", "get", dest}, "", errors.New("exit status 2"))
	}
	line := dest
	if best.Via != "" {
		line += " via " + best.Via
	}
	line += " dev " + best.Interface
	if best.Source != "" {
		line += " src " + best.Source
	}
	return line + " uid 0 \n    cache \n", nil
}

func sameKey(a, b Route) bool {
	if a.Destination != b.Destination || effectiveMetric(a) != effectiveMetric(b) {
		return false
	}
	if a.Family == IPv6 {
		return a.Interface == b.Interface && a.Via == b.Via
	}
	return true
}

// garbage mimics ip rejecting an output-only token on input.
func garbage(verb, line, token string) error {
	msg := fmt.Sprintf("Error: either \"to\" is duplicate, or \"%s\" is a garbage.", token)
	return newCommandError("ip", []string{"route", verb, line}, msg, errors.New("exit status 1"))
}

func (t *FakeRouteTable) add(family Family, line string) (string, error) {
	r, err := ParseRoute(line, family)
	if err != nil || !r.Valid() {
		return "", newCommandError("ip", []string{"route", "add", line}, "", errors.New("invalid route"))
	}
	if flag := r.statusFlag(); flag != "" {
		return "", garbage("add", line, flag)
	}
	for _, l := range t.table(family) {
		existing, err := ParseRoute(l, family)
		if err == nil && sameKey(existing, r) {
			return "RTNETLINK answers: File exists", newCommandError("ip", []string{"route", "add", line}, "RTNETLINK answers: File exists", errors.New("exit status 2"))
		}
	}
	if family == IPv6 && !r.HasMetric {
		r = r.WithMetric(1024)
	}
	if r.Expires != "" {
		return "", garbage("add", line, "expires")
	}
	t.setTable(family, append(t.table(family), r.String()))
	return "", nil
}

func (t *FakeRouteTable) del(family Family, line string) (string, error) {
	want, err := ParseRoute(line, family)
	if err != nil {
		return "", newCommandError("ip", []string{"route", "del", line}, "", err)
	}
	if flag := want.statusFlag(); flag != "" {
		return "", garbage("del", line, flag)
	}
	lines := t.table(family)
	for i, l := range lines {
		r, err := ParseRoute(l, family)
		if err != nil || r.Destination != want.Destination {
			continue
		}
		if want.Interface != "" && r.Interface != want.Interface {
			continue
		}
		if want.Via != "" && r.Via != want.Via {
			continue
		}
		if want.HasMetric && effectiveMetric(r) != want.Metric {
			continue
		}
		t.setTable(family, append(append([]string(nil), lines[:i]...), lines[i+1:]...))
		return "", nil
	}
	return "RTNETLINK answers: No such process", newCommandError("ip", []string{"route", "del", line}, "RTNETLINK answers: No such process", fmt.Errorf("exit status 2"))
}
