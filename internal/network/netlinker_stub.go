//go:build !linux

package network

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

const (
	familyV4 = 2
	familyV6 = 10
)

// RealNetlinker is a stub on platforms without netlink.
type RealNetlinker struct{}

func (r *RealNetlinker) LinkByName(name string) (netlink.Link, error) {
	return nil, fmt.Errorf("LinkByName not supported on this platform")
}

func (r *RealNetlinker) AddrList(link netlink.Link, family int) ([]netlink.Addr, error) {
	return nil, fmt.Errorf("AddrList not supported on this platform")
}

func usableGlobal6(a netlink.Addr) bool {
	return a.Scope == 0
}
