package network

import (
	"bufio"
	"fmt"
	"net/netip"
	"os"
	"strings"
)

// LeaseReader locates and reads dhclient lease files.
type LeaseReader struct {
	// Pattern is the lease file path; "{iface}" is replaced by the interface name.
	Pattern string
}

// DefaultLeasePattern is where dhclient keeps per-interface leases on Debian.
const DefaultLeasePattern = "/var/lib/dhcp/dhclient.{iface}.leases"

// Path returns the lease file for iface.
func (l LeaseReader) Path(iface string) string {
	pattern := l.Pattern
	if pattern == "" {
		pattern = DefaultLeasePattern
	}
	return strings.ReplaceAll(pattern, "{iface}", iface)
}

// Gateway returns the first router of the last "option routers" line in the
// lease file for iface. Later leases are appended, so the last one is current.
func (l LeaseReader) Gateway(iface string) (netip.Addr, error) {
	path := l.Path(iface)
	f, err := os.Open(path)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("failed to open lease file: %w", err)
	}
	defer f.Close()

	var last string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "option routers ") {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("failed to read lease file %s: %w", path, err)
	}
	if last == "" {
		return netip.Addr{}, fmt.Errorf("no routers option in %s", path)
	}

	value := strings.TrimSuffix(strings.TrimPrefix(last, "option routers "), ";")
	first := strings.TrimSpace(strings.Split(value, ",")[0])
	addr, err := netip.ParseAddr(first)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("invalid router %q in %s", first, path)
	}
	return addr, nil
}
