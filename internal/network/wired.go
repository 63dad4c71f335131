package network

// WiredInfo is the negotiated state of a wired adapter.
type WiredInfo struct {
	SpeedMbps uint32
	Duplex    string
	Driver    string
}
