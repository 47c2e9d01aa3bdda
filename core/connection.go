package core

// ConnectionStatus tracks whether a link can carry traffic.
type ConnectionStatus string

const (
	ConnectionUp   ConnectionStatus = "up"
	ConnectionDown ConnectionStatus = "down"
)

// DefaultBandwidthMbps is assumed for links that don't specify one.
const DefaultBandwidthMbps = 100.0

// Connection joins two interfaces. The endpoint pair is unordered:
// traffic flows both ways and VLAN admission is evaluated per endpoint.
type Connection struct {
	ID         string
	InterfaceA string
	InterfaceB string
	Status     ConnectionStatus

	// BandwidthMbps drives the simulated transmission delay of packets
	// crossing the link. Links never saturate in this model; bandwidth
	// affects latency only, not admission.
	BandwidthMbps float64
}

// IsUp reports whether the link can carry traffic.
func (c *Connection) IsUp() bool {
	return c != nil && c.Status == ConnectionUp
}

// Bandwidth returns the configured rate, falling back to the default.
func (c *Connection) Bandwidth() float64 {
	if c == nil || c.BandwidthMbps <= 0 {
		return DefaultBandwidthMbps
	}
	return c.BandwidthMbps
}
