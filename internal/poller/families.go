package poller

import (
	"grimm.is/pathprobe/internal/config"
	"grimm.is/pathprobe/internal/network"
)

// Families is the set of address families a cycle tests over. It starts
// from the configuration and loses any family the test interface has no
// address for.
type Families struct {
	IPv4       bool
	IPv6       bool
	PreferIPv6 bool
}

// FamiliesFromConfig returns the families enabled in cfg.
func FamiliesFromConfig(cfg *config.Config) Families {
	return Families{IPv4: cfg.IPv4Enabled, IPv6: cfg.IPv6Enabled, PreferIPv6: cfg.IPv6Preferred}
}

// Any reports whether at least one family is available.
func (f Families) Any() bool { return f.IPv4 || f.IPv6 }

// Has reports whether family is available.
func (f Families) Has(family network.Family) bool {
	if family == network.IPv6 {
		return f.IPv6
	}
	return f.IPv4
}

// For picks the family host is checked over. Literals keep their own
// family and need it available; hostnames follow the IPv6 preference
// among the available families.
func (f Families) For(host string) (network.Family, bool) {
	if fam, literal := network.FamilyOf(host); literal {
		return fam, f.Has(fam)
	}
	switch {
	case f.IPv6 && (f.PreferIPv6 || !f.IPv4):
		return network.IPv6, true
	case f.IPv4:
		return network.IPv4, true
	}
	return "", false
}

// FamilyFor picks the family host is checked over with the families
// enabled in cfg.
func FamilyFor(cfg *config.Config, host string) (network.Family, bool) {
	return FamiliesFromConfig(cfg).For(host)
}
