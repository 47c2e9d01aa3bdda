package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/model"
)

// DefaultTickDuration is the simulated time one tick represents.
const DefaultTickDuration = time.Second

var (
	ErrUnknownDevice   = errors.New("unknown device")
	ErrDeviceInactive  = errors.New("device not active")
	ErrNotEndpointable = errors.New("device cannot source traffic")
)

// EventType tags the entries of the per-tick event stream.
type EventType string

const (
	EventPacketCreated   EventType = "packet_created"
	EventPacketMoved     EventType = "packet_moved"
	EventPacketDelivered EventType = "packet_delivered"
	EventPacketDropped   EventType = "packet_dropped"
	EventARPResolution   EventType = "arp_resolution"
	EventTablesAged      EventType = "tables_aged"
)

// Event is one observable simulation occurrence. Packet is a deep copy
// taken at emission time, so consumers may hold it across ticks.
type Event struct {
	Type   EventType     `json:"type"`
	Tick   uint64        `json:"tick"`
	Packet *model.Packet `json:"packet,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

// Engine is the packet simulation core. It owns the topology snapshot,
// the learning tables, the active packet set, and the statistics
// aggregator, and advances them one tick at a time.
//
// The engine itself is not safe for concurrent use; callers serialize
// access (the sim/state facade wraps it in a mutex).
type Engine struct {
	topo    *Topology
	devices DeviceView
	res     *Resolver
	tables  *TableStore
	stats   *Stats

	active   []*model.Packet
	flows    []*flowState
	seq      uint64
	tick     uint64
	simTime  time.Time
	tickSpan time.Duration

	log     logging.Logger
	metrics MetricsRecorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to a noop logger.
func WithLogger(log logging.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m MetricsRecorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTickDuration overrides how much simulated time one tick spans.
func WithTickDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tickSpan = d
		}
	}
}

// WithStartTime sets the initial simulated clock.
func WithStartTime(t time.Time) Option {
	return func(e *Engine) { e.simTime = t }
}

// NewEngine builds an engine over the given topology and device store.
func NewEngine(topo *Topology, devices DeviceView, opts ...Option) *Engine {
	e := &Engine{
		topo:     topo,
		devices:  devices,
		res:      NewResolver(topo, devices),
		tables:   NewTableStore(),
		stats:    NewStats(),
		simTime:  time.Unix(0, 0).UTC(),
		tickSpan: DefaultTickDuration,
		log:      logging.Noop(),
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReplaceTopology swaps in a new topology snapshot. In-flight packets
// keep their resolved paths; the per-hop admission checks catch any
// path the new topology no longer admits.
func (e *Engine) ReplaceTopology(topo *Topology) {
	e.topo = topo
	e.res = NewResolver(topo, e.devices)
}

// Resolver exposes the engine's path/reachability resolver for
// query surfaces.
func (e *Engine) Resolver() *Resolver { return e.res }

// Tables exposes the learning-table store for snapshot queries.
func (e *Engine) Tables() *TableStore { return e.tables }

// Topology returns the current topology snapshot.
func (e *Engine) Topology() *Topology { return e.topo }

// Tick returns the number of completed ticks.
func (e *Engine) Tick() uint64 { return e.tick }

// SimTime returns the current simulated clock.
func (e *Engine) SimTime() time.Time { return e.simTime }

// CreateTestPacket injects a unicast packet from src to dst. When
// vlanID is model.VLANNone the VLAN is inferred from the source's
// uplink. The packet starts QUEUED with its path already resolved;
// the next tick validates and moves it. An unknown or inactive source
// or target yields no packet and an error.
func (e *Engine) CreateTestPacket(src, dst string, proto model.Protocol, vlanID uint16) (*model.Packet, error) {
	srcDev := e.devices.Device(src)
	if srcDev == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, src)
	}
	dstDev := e.devices.Device(dst)
	if dstDev == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, dst)
	}
	if !srcDev.IsActive() {
		return nil, fmt.Errorf("%w: %q", ErrDeviceInactive, src)
	}

	if vlanID == model.VLANNone {
		vlanID = e.res.InferVLAN(src)
	}
	pkt := e.newPacket(src, dst, proto, vlanID, defaultPayloadBytes(proto))
	pkt.Path = e.res.FindPath(src, dst, vlanID)
	e.admit(pkt)
	return pkt, nil
}

// SendBroadcastPacket fans one packet out to every reachable end host
// in the packet's VLAN and returns the copies created. A source with
// no reachable peers yields an empty slice and no error.
func (e *Engine) SendBroadcastPacket(src string, proto model.Protocol, vlanID uint16) ([]*model.Packet, error) {
	srcDev := e.devices.Device(src)
	if srcDev == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, src)
	}
	if !srcDev.IsActive() {
		return nil, fmt.Errorf("%w: %q", ErrDeviceInactive, src)
	}

	if vlanID == model.VLANNone {
		vlanID = e.res.InferVLAN(src)
	}
	var out []*model.Packet
	for _, host := range e.res.ReachableHosts(src, vlanID) {
		pkt := e.newPacket(src, host, proto, vlanID, defaultPayloadBytes(proto))
		pkt.TargetMAC = broadcastMAC
		pkt.Path = e.res.FindPath(src, host, vlanID)
		e.admit(pkt)
		out = append(out, pkt)
	}
	return out, nil
}

const broadcastMAC = "FF:FF:FF:FF:FF:FF"

// newPacket assembles a packet shell with addressing filled in from
// the endpoint devices' interfaces.
func (e *Engine) newPacket(src, dst string, proto model.Protocol, vlanID uint16, payloadBytes int) *model.Packet {
	e.seq++
	return &model.Packet{
		ID:             uuid.NewString(),
		Protocol:       proto,
		SourceDeviceID: src,
		TargetDeviceID: dst,
		SourceMAC:      e.deviceMAC(src),
		TargetMAC:      e.deviceMAC(dst),
		SourceIP:       e.deviceIP(src),
		TargetIP:       e.deviceIP(dst),
		VLANID:         vlanID,
		PayloadBytes:   payloadBytes,
		TTL:            model.DefaultTTL,
		Position:       model.Position{DeviceID: src},
		Status:         model.PacketQueued,
		CreatedAt:      e.simTime,
		Seq:            e.seq,
	}
}

// admit registers a packet into the active set and counts it.
func (e *Engine) admit(pkt *model.Packet) {
	e.active = append(e.active, pkt)
	e.stats.RecordCreated()
	e.metrics.PacketCreated(string(pkt.Protocol))
	e.log.Debug(context.Background(), "packet created",
		logging.String("packet", pkt.ID),
		logging.String("src", pkt.SourceDeviceID),
		logging.String("dst", pkt.TargetDeviceID),
		logging.Int("vlan", int(pkt.VLANID)))
}

// StartFlows arms periodic traffic flows. Existing flows are replaced.
func (e *Engine) StartFlows(flows []model.TrafficFlow, seed string) {
	e.flows = newFlowStates(flows, seed)
}

// StopFlows disarms all traffic flows without touching other state.
func (e *Engine) StopFlows() {
	e.flows = nil
}

// ActivePackets returns deep copies of the active set in creation
// order, terminal packets from the last tick included.
func (e *Engine) ActivePackets() []*model.Packet {
	out := make([]*model.Packet, 0, len(e.active))
	for _, pkt := range e.active {
		out = append(out, pkt.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// StatsSnapshot returns the current aggregate counters.
func (e *Engine) StatsSnapshot() StatsSnapshot {
	return e.stats.Snapshot()
}

// Reset clears packets, flows, learned tables, and statistics. The
// topology and tick clock are preserved.
func (e *Engine) Reset() {
	e.active = nil
	e.flows = nil
	e.tables.Clear()
	e.stats.Reset()
	e.metrics.ActivePackets(0)
}

// AdvanceOneTick runs one simulation step and returns the events it
// produced, in the order they occurred:
//
//  1. prune packets that went terminal on an earlier tick,
//  2. age learning tables,
//  3. generate any traffic-flow packets due this tick,
//  4. process every active packet once, in creation order.
//
// Table learning performed while processing one packet is visible to
// packets processed later in the same tick.
func (e *Engine) AdvanceOneTick() []Event {
	e.tick++
	e.simTime = e.simTime.Add(e.tickSpan)

	e.prune()

	var events []Event
	if macRemoved, arpRemoved := e.tables.Age(e.simTime); macRemoved+arpRemoved > 0 {
		events = append(events, Event{
			Type:   EventTablesAged,
			Tick:   e.tick,
			Detail: fmt.Sprintf("aged out %d mac, %d arp entries", macRemoved, arpRemoved),
		})
	}

	events = append(events, e.generateFlowTraffic()...)

	// Snapshot the set before processing so packets synthesized this
	// tick (ARP request/reply) start moving next tick.
	batch := make([]*model.Packet, len(e.active))
	copy(batch, e.active)
	sort.Slice(batch, func(i, j int) bool { return batch[i].Seq < batch[j].Seq })

	for _, pkt := range batch {
		if pkt.Terminal() {
			continue
		}
		events = append(events, e.stepPacket(pkt)...)
	}

	live := 0
	for _, pkt := range e.active {
		if !pkt.Terminal() {
			live++
		}
	}
	e.stats.ObserveTick(e.tick, e.tickSpan.Seconds(), live)
	e.metrics.ActivePackets(live)
	return events
}

// prune drops packets whose terminal tick has already been observable
// for a full tick.
func (e *Engine) prune() {
	kept := e.active[:0]
	for _, pkt := range e.active {
		if pkt.Terminal() && pkt.TerminalTick < e.tick {
			continue
		}
		kept = append(kept, pkt)
	}
	e.active = kept
}

// deviceMAC returns the MAC of a device's lowest-ID interface that
// carries one.
func (e *Engine) deviceMAC(deviceID string) string {
	for _, in := range e.topo.InterfacesForDevice(deviceID) {
		if in.MACAddress != "" {
			return in.MACAddress
		}
	}
	return ""
}

// deviceIP returns the IP of a device's lowest-ID interface that
// carries one.
func (e *Engine) deviceIP(deviceID string) string {
	for _, in := range e.topo.InterfacesForDevice(deviceID) {
		if in.IPAddress != "" {
			return in.IPAddress
		}
	}
	return ""
}

func defaultPayloadBytes(proto model.Protocol) int {
	switch proto {
	case model.ProtocolARP:
		return 28
	case model.ProtocolICMP:
		return 64
	default:
		return 512
	}
}
