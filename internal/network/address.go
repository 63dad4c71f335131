package network

import (
	"net/netip"
	"strings"
)

// Family is an IP address family.
type Family string

const (
	IPv4 Family = "ipv4"
	IPv6 Family = "ipv6"
)

// Other returns the opposite family.
func (f Family) Other() Family {
	if f == IPv6 {
		return IPv4
	}
	return IPv6
}

// ipArgs prefixes args with the family switch understood by the ip
// command. IPv4 is the ip default and gets no switch.
func (f Family) ipArgs(args ...string) []string {
	if f == IPv6 {
		return append([]string{"-6"}, args...)
	}
	return args
}

// Kind is the syntactic class of a target string.
type Kind string

const (
	KindIPv4     Kind = "ipv4"
	KindIPv6     Kind = "ipv6"
	KindHostname Kind = "hostname"
)

// Classify reports whether s is an IPv4 literal, an IPv6 literal or a
// hostname. It never performs I/O. IPv4-mapped IPv6 literals count as IPv6.
func Classify(s string) Kind {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return KindHostname
	}
	if addr.Is4() {
		return KindIPv4
	}
	return KindIPv6
}

// FamilyOf returns the family of a literal, or false for a hostname.
func FamilyOf(s string) (Family, bool) {
	switch Classify(s) {
	case KindIPv4:
		return IPv4, true
	case KindIPv6:
		return IPv6, true
	}
	return "", false
}
