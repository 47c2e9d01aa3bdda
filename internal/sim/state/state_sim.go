// internal/sim/state/state_sim.go
package state

import (
	"context"
	"fmt"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/model"
)

// Start begins simulation, arming the provided traffic flows (which
// may be empty for a manually driven session). The seed keys the
// per-flow jitter streams.
func (s *SimState) Start(flows []model.TrafficFlow, seed string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.StartFlows(flows, seed)
	s.running = true
	s.log.Info(context.Background(), "simulation started",
		logging.Int("flows", len(flows)))
}

// Stop halts further ticking. Learning tables and statistics stay
// intact until ClearScenario or ResetSim.
func (s *SimState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.engine.StopFlows()
	s.log.Info(context.Background(), "simulation stopped")
}

// Running reports whether the tick loop should advance the simulation.
func (s *SimState) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Step advances one tick if the simulation is running. The periodic
// driver calls this; it is a no-op while stopped.
func (s *SimState) Step() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	events := s.advanceLocked()
	s.mu.Unlock()

	s.publish(events)
}

// StepOnce advances exactly one tick regardless of the running flag.
// This backs the single-step control used while paused.
func (s *SimState) StepOnce() {
	s.mu.Lock()
	events := s.advanceLocked()
	s.mu.Unlock()

	s.publish(events)
}

// advanceLocked runs the engine tick and folds movement events into
// the telemetry counters. Caller must hold s.mu.
func (s *SimState) advanceLocked() []network.Event {
	events := s.engine.AdvanceOneTick()
	for _, ev := range events {
		if ev.Type != network.EventPacketMoved || ev.Packet == nil {
			continue
		}
		pos := ev.Packet.Position
		if pos.IngressInterface != "" {
			s.telemetry.RecordRx(pos.DeviceID, pos.IngressInterface, ev.Packet.PayloadBytes)
		}
	}
	return events
}

func (s *SimState) publish(events []network.Event) {
	if s.sink == nil || len(events) == 0 {
		return
	}
	s.sink.Publish(events)
}

// Tick returns the number of completed simulation ticks.
func (s *SimState) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Tick()
}

// ResetSim clears packets, learned tables, flows, and statistics while
// keeping the topology in place.
func (s *SimState) ResetSim() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	s.engine.Reset()
	s.telemetry.Clear()
	s.log.Info(context.Background(), "simulation state reset")
}

// CreateTestPacket injects a unicast packet. An explicit VLAN must be
// defined and active; VLANNone defers to uplink inference.
func (s *SimState) CreateTestPacket(src, dst string, proto model.Protocol, vlanID uint16) (*model.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vlanID != model.VLANNone {
		if err := s.devices.RequireActiveVLAN(vlanID); err != nil {
			return nil, err
		}
	}
	pkt, err := s.engine.CreateTestPacket(src, dst, proto, vlanID)
	if err != nil {
		return nil, err
	}
	return pkt.Clone(), nil
}

// SendBroadcastPacket fans a packet out to every end host reachable in
// the VLAN and returns how many copies were created.
func (s *SimState) SendBroadcastPacket(src string, proto model.Protocol, vlanID uint16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vlanID != model.VLANNone {
		if err := s.devices.RequireActiveVLAN(vlanID); err != nil {
			return 0, err
		}
	}
	pkts, err := s.engine.SendBroadcastPacket(src, proto, vlanID)
	if err != nil {
		return 0, err
	}
	return len(pkts), nil
}

// ActivePackets returns deep copies of the active packet set.
func (s *SimState) ActivePackets() []*model.Packet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.ActivePackets()
}

// MACTable returns the forwarding-table snapshot for one switch.
func (s *SimState) MACTable(deviceID string) ([]network.MACEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.devices.Device(deviceID) == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return s.engine.Tables().MACTable(deviceID), nil
}

// ARPTable returns the ARP-cache snapshot for one device.
func (s *SimState) ARPTable(deviceID string) ([]network.ARPEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.devices.Device(deviceID) == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	return s.engine.Tables().ARPTable(deviceID), nil
}

// AddStaticMAC pins a MAC to a switch port, exempt from aging.
func (s *SimState) AddStaticMAC(deviceID string, vlanID uint16, mac, interfaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dev := s.devices.Device(deviceID)
	if dev == nil {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
	}
	if !dev.IsSwitch() {
		return fmt.Errorf("%w: %q does not own a MAC table", kb.ErrDeviceBadInput, deviceID)
	}
	if err := s.devices.RequireActiveVLAN(vlanID); err != nil {
		return err
	}
	s.engine.Tables().AddStaticMAC(deviceID, vlanID, mac, interfaceID, s.engine.SimTime())
	return nil
}

// Stats returns the aggregate statistics snapshot.
func (s *SimState) Stats() network.StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.StatsSnapshot()
}

// Reachable answers a VLAN reachability query against live topology.
func (s *SimState) Reachable(src string, vlanID uint16) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Resolver().Reachable(src, vlanID)
}

// FindPath answers a path query against live topology.
func (s *SimState) FindPath(src, dst string, vlanID uint16) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Resolver().FindPath(src, dst, vlanID)
}
