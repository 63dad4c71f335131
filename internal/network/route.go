package network

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// routeTypes are the leading keywords ip prints for non-unicast routes.
var routeTypes = map[string]bool{
	"unicast":     true,
	"local":       true,
	"broadcast":   true,
	"multicast":   true,
	"unreachable": true,
	"blackhole":   true,
	"prohibit":    true,
	"throw":       true,
	"anycast":     true,
}

// statusFlags are printed by ip but rejected when a line is replayed.
var statusFlags = map[string]bool{
	"linkdown":   true,
	"dead":       true,
	"offload":    true,
	"trap":       true,
	"rt_offload": true,
	"rt_trap":    true,
	"notify":     true,
	"pervasive":  true,
	"unresolved": true,
}

// statusFlag returns the first token ip refuses on input, or "".
func (r Route) statusFlag() string {
	for _, t := range r.tokens {
		if statusFlags[t] {
			return t
		}
	}
	return ""
}

// Route is one parsed line of ip route output. It is built fresh from every
// query and never cached.
type Route struct {
	Family      Family
	Type        string
	Destination string
	Via         string
	Interface   string
	Source      string
	Proto       string
	Scope       string
	Metric      int
	HasMetric   bool
	Expires     string
	OnLink      bool

	tokens []string
}

// ParseRoute parses a single route line. Continuation lines (nexthop,
// cache) are handled by ParseRoutes.
func ParseRoute(line string, family Family) (Route, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Route{}, fmt.Errorf("empty route line")
	}

	r := Route{Family: family}
	i := 0
	if routeTypes[tokens[0]] {
		r.Type = tokens[0]
		i = 1
	}
	if i >= len(tokens) {
		return Route{}, fmt.Errorf("route line %q has no destination", line)
	}
	r.Destination = tokens[i]
	i++

	for ; i < len(tokens); i++ {
		key := tokens[i]
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}
		switch key {
		case "via":
			// "via inet6 fe80::1" is printed for cross-family gateways.
			if next == "inet" || next == "inet6" {
				i++
				if i+1 < len(tokens) {
					next = tokens[i+1]
				}
			}
			r.Via = next
			i++
		case "dev":
			r.Interface = next
			i++
		case "src":
			r.Source = next
			i++
		case "proto":
			r.Proto = next
			i++
		case "scope":
			r.Scope = next
			i++
		case "metric":
			m, err := strconv.Atoi(next)
			if err != nil {
				return Route{}, fmt.Errorf("route line %q has invalid metric %q", line, next)
			}
			r.Metric = m
			r.HasMetric = true
			i++
		case "expires":
			r.Expires = next
			i++
		case "onlink":
			r.OnLink = true
		}
	}

	r.tokens = tokens
	return r, nil
}

// ParseRoutes parses multi-line ip route output in kernel order. Indented
// continuation lines are folded into the previous entry: the first nexthop
// supplies the interface of a multipath route, anything else is ignored.
func ParseRoutes(output string, family Family) ([]Route, error) {
	var routes []Route
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(routes) == 0 {
				continue
			}
			last := &routes[len(routes)-1]
			fields := strings.Fields(line)
			if len(fields) > 0 && fields[0] == "nexthop" && last.Interface == "" {
				for j := 0; j+1 < len(fields); j++ {
					if fields[j] == "dev" {
						last.Interface = fields[j+1]
					}
					if fields[j] == "via" && last.Via == "" {
						last.Via = fields[j+1]
					}
				}
			}
			continue
		}
		r, err := ParseRoute(line, family)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, nil
}

// Valid reports whether the entry names an egress interface. Invalid entries
// must never be acted upon.
func (r Route) Valid() bool {
	return r.Interface != ""
}

// IsDefault reports whether the entry is a default route.
func (r Route) IsDefault() bool {
	switch r.Destination {
	case "default", "0.0.0.0/0", "::/0":
		return true
	}
	return false
}

// IsLinkLocal reports whether the destination is a link-local prefix.
func (r Route) IsLinkLocal() bool {
	d := strings.ToLower(r.Destination)
	return strings.HasPrefix(d, "fe80") || strings.HasPrefix(d, "169.254.")
}

// IsSubnet reports whether the destination is a prefix rather than a host or default.
func (r Route) IsSubnet() bool {
	return !r.IsDefault() && strings.Contains(r.Destination, "/")
}

// PrefixLen returns the destination prefix length; host entries count as
// full length and default as zero.
func (r Route) PrefixLen() int {
	if r.IsDefault() {
		return 0
	}
	if p, err := netip.ParsePrefix(r.Destination); err == nil {
		return p.Bits()
	}
	if r.Family == IPv6 {
		return 128
	}
	return 32
}

// String returns the route line as it would be replayed to ip route add/del.
func (r Route) String() string {
	return strings.Join(r.tokens, " ")
}

// Args returns the route line split into ip arguments.
func (r Route) Args() []string {
	out := make([]string, len(r.tokens))
	copy(out, r.tokens)
	return out
}

// WithoutExpires drops the "expires <lifetime>" clause and read-only status
// flags so the line can be replayed.
func (r Route) WithoutExpires() Route {
	out := make([]string, 0, len(r.tokens))
	for i := 0; i < len(r.tokens); i++ {
		t := r.tokens[i]
		if t == "expires" {
			i++
			continue
		}
		if statusFlags[t] {
			continue
		}
		out = append(out, t)
	}
	return r.rebuild(out)
}

// WithMetric rewrites the metric clause, appending one if absent.
func (r Route) WithMetric(metric int) Route {
	out := make([]string, 0, len(r.tokens)+2)
	replaced := false
	for i := 0; i < len(r.tokens); i++ {
		t := r.tokens[i]
		if t == "metric" && i+1 < len(r.tokens) {
			out = append(out, "metric", strconv.Itoa(metric))
			i++
			replaced = true
			continue
		}
		out = append(out, t)
	}
	if !replaced {
		out = append(out, "metric", strconv.Itoa(metric))
	}
	return r.rebuild(out)
}

func (r Route) rebuild(tokens []string) Route {
	nr, err := ParseRoute(strings.Join(tokens, " "), r.Family)
	if err != nil {
		return r
	}
	return nr
}

// HostRoute builds the "<addr> dev <iface>" entry used for static host injection.
func HostRoute(addr, iface string, family Family) Route {
	r, _ := ParseRoute(addr+" dev "+iface, family)
	return r
}
