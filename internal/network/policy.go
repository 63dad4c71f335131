package network

import (
	"errors"
	"fmt"
)

// ProbeMode selects which interface carries test traffic.
type ProbeMode string

const (
	ModeWireless ProbeMode = "wireless"
	ModeEthernet ProbeMode = "ethernet"
)

// Policy maps static configuration to the interfaces traffic must use. It
// never looks at routing state.
type Policy struct {
	Mode   ProbeMode
	WLANIf string
	EthIf  string
	MgtIf  string
}

// ErrUnknownProbeMode is a fatal configuration error.
var ErrUnknownProbeMode = errors.New("unknown probe mode")

// TestInterface returns the interface test traffic must egress from.
func (p Policy) TestInterface() (string, error) {
	switch p.Mode {
	case ModeWireless:
		return p.WLANIf, nil
	case ModeEthernet:
		return p.EthIf, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProbeMode, p.Mode)
}

// MgtInterface returns the interface management traffic must egress from,
// independent of probe mode.
func (p Policy) MgtInterface() string {
	return p.MgtIf
}

// IsWireless reports whether test traffic runs over the WLAN interface.
func (p Policy) IsWireless() bool {
	return p.Mode == ModeWireless
}
