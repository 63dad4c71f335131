package network

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"grimm.is/pathprobe/internal/logging"
)

// AdapterKind is the role of an interface on the probe.
type AdapterKind string

const (
	KindWireless AdapterKind = "wireless"
	KindWired    AdapterKind = "wired"
)

// LinkState is the operational state of an interface.
type LinkState string

const (
	LinkUp   LinkState = "up"
	LinkDown LinkState = "down"
)

var apipa = netip.MustParsePrefix("169.254.0.0/16")

// InterfaceState is a point-in-time snapshot of one interface.
type InterfaceState struct {
	Name     string
	Kind     AdapterKind
	Link     LinkState
	IPv4     netip.Addr
	IPv6     netip.Addr
	Wireless *WirelessInfo
	Wired    *WiredInfo
}

// HasIPv4 reports whether a usable IPv4 address was found.
func (s InterfaceState) HasIPv4() bool { return s.IPv4.IsValid() }

// HasIPv6 reports whether a global IPv6 address was found.
func (s InterfaceState) HasIPv6() bool { return s.IPv6.IsValid() }

// WiredInfoReader reports link speed for wired adapters.
type WiredInfoReader interface {
	WiredInfo(iface string) (*WiredInfo, error)
}

// Collector reads interface state from the OS. Nothing is cached.
type Collector struct {
	nl     Netlinker
	exec   CommandExecutor
	wired  WiredInfoReader
	logger *logging.Logger
}

// NewCollector creates a collector. nil arguments select the real implementations.
func NewCollector(nl Netlinker, exec CommandExecutor, wired WiredInfoReader, logger *logging.Logger) *Collector {
	if nl == nil {
		nl = DefaultNetlinker
	}
	if exec == nil {
		exec = DefaultCommandExecutor
	}
	if wired == nil {
		wired = EthtoolReader{}
	}
	if logger == nil {
		logger = logging.WithComponent("iface")
	}
	return &Collector{nl: nl, exec: exec, wired: wired, logger: logger}
}

// LinkState returns up when the kernel reports the link operational. An
// administratively up link with unknown operstate (tun, some drivers) is up.
func (c *Collector) LinkState(name string) (LinkState, error) {
	link, err := c.nl.LinkByName(name)
	if err != nil {
		return LinkDown, fmt.Errorf("failed to get link %s: %w", name, err)
	}
	attrs := link.Attrs()
	switch attrs.OperState {
	case netlink.OperUp:
		return LinkUp, nil
	case netlink.OperUnknown:
		if attrs.Flags&net.FlagUp != 0 {
			return LinkUp, nil
		}
	}
	return LinkDown, nil
}

// IPv4Address returns the first non-APIPA IPv4 address, or an invalid Addr.
func (c *Collector) IPv4Address(name string) (netip.Addr, error) {
	addrs, err := c.addrs(name, familyV4)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		ip, ok := toAddr(a)
		if !ok || !ip.Is4() {
			continue
		}
		if apipa.Contains(ip) {
			c.logger.Warn("ignoring APIPA address", "iface", name, "address", ip.String())
			continue
		}
		return ip, nil
	}
	return netip.Addr{}, nil
}

// IPv6GlobalAddress returns the first usable global IPv6 address, or an invalid Addr.
func (c *Collector) IPv6GlobalAddress(name string) (netip.Addr, error) {
	addrs, err := c.addrs(name, familyV6)
	if err != nil {
		return netip.Addr{}, err
	}
	for _, a := range addrs {
		ip, ok := toAddr(a)
		if !ok || ip.Is4() || !ip.IsGlobalUnicast() || ip.IsLinkLocalUnicast() {
			continue
		}
		if !usableGlobal6(a) {
			continue
		}
		return ip, nil
	}
	return netip.Addr{}, nil
}

func (c *Collector) addrs(name string, family int) ([]netlink.Addr, error) {
	link, err := c.nl.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get link %s: %w", name, err)
	}
	addrs, err := c.nl.AddrList(link, family)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses on %s: %w", name, err)
	}
	return addrs, nil
}

func toAddr(a netlink.Addr) (netip.Addr, bool) {
	if a.IPNet == nil {
		return netip.Addr{}, false
	}
	ip, ok := netip.AddrFromSlice(a.IPNet.IP)
	if !ok {
		return netip.Addr{}, false
	}
	return ip.Unmap(), true
}

// Snapshot reads everything known about name. Wireless and wired details
// are best effort; their failures are logged, not returned.
func (c *Collector) Snapshot(ctx context.Context, name string, kind AdapterKind) (InterfaceState, error) {
	state := InterfaceState{Name: name, Kind: kind}

	link, err := c.LinkState(name)
	if err != nil {
		return state, err
	}
	state.Link = link

	if state.IPv4, err = c.IPv4Address(name); err != nil {
		return state, err
	}
	if state.IPv6, err = c.IPv6GlobalAddress(name); err != nil {
		return state, err
	}

	switch kind {
	case KindWireless:
		info, err := c.Wireless(ctx, name)
		if err != nil {
			c.logger.Warn("wireless info unavailable", "iface", name, "error", err)
		} else {
			state.Wireless = info
		}
	case KindWired:
		info, err := c.wired.WiredInfo(name)
		if err != nil {
			c.logger.Debug("wired info unavailable", "iface", name, "error", err)
		} else {
			state.Wired = info
		}
	}

	c.logger.Debug("interface snapshot", "iface", name, "link", state.Link, "ipv4", state.IPv4.String(), "ipv6", state.IPv6.String())
	return state, nil
}
