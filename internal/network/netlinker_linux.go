//go:build linux

package network

import (
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

const (
	familyV4 = netlink.FAMILY_V4
	familyV6 = netlink.FAMILY_V6
)

// RealNetlinker uses the netlink package directly.
type RealNetlinker struct{}

// LinkByName retrieves a link by name.
func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

// AddrList retrieves the addresses of a link.
func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return netlink.AddrList(link, family)
}

// usableGlobal6 reports whether a v6 address is global and not tentative,
// duplicate or deprecated.
func usableGlobal6(a netlink.Addr) bool {
	if a.Scope != unix.RT_SCOPE_UNIVERSE {
		return false
	}
	return a.Flags&(unix.IFA_F_TENTATIVE|unix.IFA_F_DADFAILED|unix.IFA_F_DEPRECATED) == 0
}
