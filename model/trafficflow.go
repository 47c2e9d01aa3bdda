package model

// TrafficFlow describes a recurring packet stream between two devices.
// The engine arms flows on start() and emits packets at a fixed tick
// interval; payload sizes are drawn from a seeded RNG stream so runs
// replay identically for a given seed.
type TrafficFlow struct {
	ID             string
	SourceDeviceID string
	TargetDeviceID string
	Protocol       Protocol
	VLANID         uint16

	// PayloadBytes is the base payload size; JitterBytes the maximum
	// upward deviation applied per packet.
	PayloadBytes int
	JitterBytes  int

	// IntervalTicks is the mean gap between packets in ticks (>= 1).
	IntervalTicks int
}
