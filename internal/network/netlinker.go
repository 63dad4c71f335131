package network

import (
	"github.com/vishvananda/netlink"
)

// Netlinker abstracts the netlink calls used to read interface state.
type Netlinker interface {
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

// DefaultNetlinker is the platform netlink implementation.
var DefaultNetlinker Netlinker = &RealNetlinker{}
