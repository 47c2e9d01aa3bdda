package core

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/netlabworks/vlansim/model"
)

// maxLatencySamples bounds the latency sample ring used for the
// percentile estimates so long runs stay flat on memory.
const maxLatencySamples = 8192

// MetricsRecorder receives simulation events for export. The engine
// calls it with its own lock held, so implementations must not call
// back into the engine.
type MetricsRecorder interface {
	PacketCreated(protocol string)
	PacketDelivered(latencyMs float64)
	PacketDropped(reason string)
	ActivePackets(n int)
	BytesForwarded(deviceID string, vlanID uint16, bytes int)
}

// NoopMetrics is a MetricsRecorder that discards everything.
type NoopMetrics struct{}

func (NoopMetrics) PacketCreated(string)               {}
func (NoopMetrics) PacketDelivered(float64)            {}
func (NoopMetrics) PacketDropped(string)               {}
func (NoopMetrics) ActivePackets(int)                  {}
func (NoopMetrics) BytesForwarded(string, uint16, int) {}

// StatsSnapshot is the externally visible aggregate view.
type StatsSnapshot struct {
	Tick             uint64            `json:"tick"`
	PacketsCreated   uint64            `json:"packetsCreated"`
	PacketsDelivered uint64            `json:"packetsDelivered"`
	PacketsDropped   uint64            `json:"packetsDropped"`
	DroppedByReason  map[string]uint64 `json:"droppedByReason"`
	DeliveryRate     float64           `json:"deliveryRate"`
	AvgLatencyMs     float64           `json:"avgLatencyMs"`
	P50LatencyMs     float64           `json:"p50LatencyMs"`
	P95LatencyMs     float64           `json:"p95LatencyMs"`
	BytesDelivered   uint64            `json:"bytesDelivered"`
	ThroughputBps    float64           `json:"throughputBps"`
	BytesByDevice    map[string]uint64 `json:"bytesByDevice"`
	BytesByVLAN      map[uint16]uint64 `json:"bytesByVlan"`
	ActivePackets    int               `json:"activePackets"`
}

// Stats accumulates per-run counters. Terminal packets are counted
// exactly once; synthetic ARP traffic is counted like any other
// packet so the numbers match what an observer sees on the wire.
type Stats struct {
	mu sync.Mutex

	created   uint64
	delivered uint64
	dropped   uint64
	byReason  map[model.DropReason]uint64

	totalLatencyMs float64
	latencies      []float64
	latencyNext    int

	bytesDelivered uint64
	bytesByDevice  map[string]uint64
	bytesByVLAN    map[uint16]uint64

	simElapsedSec float64
	active        int
	tick          uint64
}

// NewStats creates an empty aggregator.
func NewStats() *Stats {
	return &Stats{
		byReason:      make(map[model.DropReason]uint64),
		bytesByDevice: make(map[string]uint64),
		bytesByVLAN:   make(map[uint16]uint64),
	}
}

// RecordCreated counts a newly injected packet.
func (s *Stats) RecordCreated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created++
}

// RecordDelivered counts a delivery and folds its latency into the
// running average and the percentile sample.
func (s *Stats) RecordDelivered(latencyMs float64, payloadBytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delivered++
	s.totalLatencyMs += latencyMs
	if len(s.latencies) < maxLatencySamples {
		s.latencies = append(s.latencies, latencyMs)
	} else {
		s.latencies[s.latencyNext] = latencyMs
		s.latencyNext = (s.latencyNext + 1) % maxLatencySamples
	}
	if payloadBytes > 0 {
		s.bytesDelivered += uint64(payloadBytes)
	}
}

// RecordDropped counts a drop under its reason.
func (s *Stats) RecordDropped(reason model.DropReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
	s.byReason[reason]++
}

// RecordForwarded attributes payload bytes crossing a hop to the
// forwarding device and the packet's VLAN.
func (s *Stats) RecordForwarded(deviceID string, vlanID uint16, payloadBytes int) {
	if payloadBytes <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if deviceID != "" {
		s.bytesByDevice[deviceID] += uint64(payloadBytes)
	}
	if vlanID != model.VLANNone {
		s.bytesByVLAN[vlanID] += uint64(payloadBytes)
	}
}

// ObserveTick advances the simulated-time base used for throughput
// and records the current tick and active packet count.
func (s *Stats) ObserveTick(tick uint64, simSeconds float64, activePackets int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick = tick
	s.simElapsedSec += simSeconds
	s.active = activePackets
}

// Snapshot copies the aggregate counters out under the lock.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		Tick:             s.tick,
		PacketsCreated:   s.created,
		PacketsDelivered: s.delivered,
		PacketsDropped:   s.dropped,
		DroppedByReason:  make(map[string]uint64, len(s.byReason)),
		BytesDelivered:   s.bytesDelivered,
		BytesByDevice:    make(map[string]uint64, len(s.bytesByDevice)),
		BytesByVLAN:      make(map[uint16]uint64, len(s.bytesByVLAN)),
		ActivePackets:    s.active,
	}
	for reason, n := range s.byReason {
		snap.DroppedByReason[string(reason)] = n
	}
	for id, n := range s.bytesByDevice {
		snap.BytesByDevice[id] = n
	}
	for vlan, n := range s.bytesByVLAN {
		snap.BytesByVLAN[vlan] = n
	}

	if terminal := s.delivered + s.dropped; terminal > 0 {
		snap.DeliveryRate = float64(s.delivered) / float64(terminal)
	}
	if s.delivered > 0 {
		snap.AvgLatencyMs = s.totalLatencyMs / float64(s.delivered)
	}
	if len(s.latencies) > 0 {
		sample := make([]float64, len(s.latencies))
		copy(sample, s.latencies)
		sort.Float64s(sample)
		snap.P50LatencyMs = stat.Quantile(0.50, stat.Empirical, sample, nil)
		snap.P95LatencyMs = stat.Quantile(0.95, stat.Empirical, sample, nil)
	}
	if s.simElapsedSec > 0 {
		snap.ThroughputBps = float64(s.bytesDelivered) * 8 / s.simElapsedSec
	}
	return snap
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created, s.delivered, s.dropped = 0, 0, 0
	s.byReason = make(map[model.DropReason]uint64)
	s.totalLatencyMs = 0
	s.latencies = nil
	s.latencyNext = 0
	s.bytesDelivered = 0
	s.bytesByDevice = make(map[string]uint64)
	s.bytesByVLAN = make(map[uint16]uint64)
	s.simElapsedSec = 0
	s.active = 0
	s.tick = 0
}
