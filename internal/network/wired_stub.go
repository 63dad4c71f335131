//go:build !linux

package network

import "fmt"

// EthtoolReader is unavailable off Linux.
type EthtoolReader struct{}

func (EthtoolReader) WiredInfo(iface string) (*WiredInfo, error) {
	return nil, fmt.Errorf("ethtool not supported on this platform")
}
