//go:build linux

package network

import (
	"fmt"

	"github.com/safchain/ethtool"
)

// EthtoolReader reads link settings through the ethtool ioctl.
type EthtoolReader struct{}

// WiredInfo returns speed and duplex for iface.
func (EthtoolReader) WiredInfo(iface string) (*WiredInfo, error) {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("failed to open ethtool handle: %w", err)
	}
	defer h.Close()

	settings, err := h.GetLinkSettings(iface)
	if err != nil {
		return nil, fmt.Errorf("failed to get link settings for %s: %w", iface, err)
	}

	duplex := "unknown"
	switch settings.Duplex {
	case ethtool.DUPLEX_FULL:
		duplex = "full"
	case ethtool.DUPLEX_HALF:
		duplex = "half"
	}

	info := &WiredInfo{SpeedMbps: settings.Speed, Duplex: duplex}
	if drv, err := h.DriverInfo(iface); err == nil {
		info.Driver = drv.Driver
	}
	return info, nil
}
