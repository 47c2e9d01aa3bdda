// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	network "github.com/netlabworks/vlansim/core"
	"github.com/netlabworks/vlansim/internal/logging"
	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/model"
)

// Re-export store sentinel errors so callers can depend on state.*
// instead of kb.* / core.* directly if they want to.
var (
	// ErrDeviceExists indicates a device already exists.
	ErrDeviceExists = kb.ErrDeviceExists
	// ErrDeviceNotFound indicates a requested device was not found.
	ErrDeviceNotFound = kb.ErrDeviceNotFound
	// ErrVLANExists indicates a VLAN id is already defined.
	ErrVLANExists = kb.ErrVLANExists
	// ErrVLANNotFound indicates a requested VLAN was not found.
	ErrVLANNotFound = kb.ErrVLANNotFound
	// ErrVLANNotActive indicates a VLAN exists but is suspended or shut down.
	ErrVLANNotActive = kb.ErrVLANNotActive
	// ErrInterfaceExists indicates an interface already exists.
	ErrInterfaceExists = network.ErrInterfaceExists
	// ErrInterfaceNotFound indicates a requested interface was not found.
	ErrInterfaceNotFound = network.ErrInterfaceNotFound
	// ErrLinkExists indicates a connection already exists.
	ErrLinkExists = network.ErrLinkExists
	// ErrLinkNotFound indicates a requested connection was not found.
	ErrLinkNotFound = network.ErrLinkNotFound
	// ErrPortBadConfig indicates a port VLAN configuration failed validation.
	ErrPortBadConfig = network.ErrPortBadConfig

	// ErrDeviceInUse indicates a device is still referenced by interfaces.
	ErrDeviceInUse = errors.New("device is referenced by interfaces")
	// ErrInterfaceInUse indicates an interface is still referenced by connections.
	ErrInterfaceInUse = errors.New("interface is referenced by connections")
	// ErrVLANInUse indicates a VLAN is still referenced by port configurations.
	ErrVLANInUse = errors.New("vlan is referenced by port configurations")
)

// SimState coordinates the simulator's stores (device base, topology)
// and the packet engine behind one coarse lock, so the tick loop and
// the query/control surfaces observe consistent state.
type SimState struct {
	// mu is the coarse simulation-level lock. Take this before touching
	// the stores to maintain the global lock ordering of
	// SimState -> store locks.
	mu sync.RWMutex

	// devices is the device and VLAN registry.
	devices *kb.DeviceBase

	// topo is the interface/connection knowledge base.
	topo *network.Topology

	// engine owns packets, learning tables, and statistics.
	engine *network.Engine

	// telemetry accumulates per-interface counters from packet movement.
	telemetry *TelemetryState

	// running gates the tick loop; Step is a no-op while false unless
	// forced (single-step from the control surface).
	running bool

	// log is an optional structured logger for state-level events.
	log logging.Logger

	// metrics is an optional recorder for Prometheus-friendly gauges.
	metrics SimMetricsRecorder

	// sink receives the event stream each tick, if attached.
	sink EventSink
}

// SimMetricsRecorder receives count updates for core topology entities.
type SimMetricsRecorder interface {
	SetTopologyCounts(devices, interfaces, links, vlans int)
}

// EventSink consumes the per-tick event stream (e.g. the websocket hub).
// Publish is called outside the SimState write lock.
type EventSink interface {
	Publish(events []network.Event)
}

// TopologySnapshot captures a consistent view of the editable topology.
//
// The slices contain pointers owned by the underlying stores; callers
// MUST treat them as read-only.
type TopologySnapshot struct {
	Devices     []*model.Device
	VLANs       []*model.VLAN
	Interfaces  []*network.Interface
	Connections []*network.Connection
}

// SimStateOption customises SimState construction.
type SimStateOption func(*SimState)

// WithMetricsRecorder attaches an optional metrics recorder for entity counts.
func WithMetricsRecorder(m SimMetricsRecorder) SimStateOption {
	return func(s *SimState) {
		s.metrics = m
	}
}

// WithEventSink attaches a consumer for the per-tick event stream.
func WithEventSink(sink EventSink) SimStateOption {
	return func(s *SimState) {
		s.sink = sink
	}
}

// NewSimState wires together the device base, the topology store, and
// a fresh engine over them.
func NewSimState(devices *kb.DeviceBase, topo *network.Topology, log logging.Logger, engineOpts []network.Option, opts ...SimStateOption) *SimState {
	if log == nil {
		log = logging.Noop()
	}
	s := &SimState{
		devices:   devices,
		topo:      topo,
		telemetry: NewTelemetryState(),
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	engineOpts = append([]network.Option{network.WithLogger(log)}, engineOpts...)
	s.engine = network.NewEngine(topo, devices, engineOpts...)
	return s
}

// DeviceBase exposes the device/VLAN registry.
func (s *SimState) DeviceBase() *kb.DeviceBase {
	return s.devices
}

// Topology exposes the interface/connection store.
func (s *SimState) Topology() *network.Topology {
	return s.topo
}

// Telemetry exposes the per-interface counter store.
func (s *SimState) Telemetry() *TelemetryState {
	return s.telemetry
}

// WithReadLock executes fn while holding the SimState read lock.
// Callers must not invoke other SimState methods that also take the
// lock from inside fn to avoid self-deadlock.
func (s *SimState) WithReadLock(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

//
// ---------- Devices ----------
//

// CreateDevice inserts a new device into the scenario.
func (s *SimState) CreateDevice(d *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.devices.AddDevice(d); err != nil {
		return err
	}
	s.updateMetricsLocked()
	s.log.Debug(context.Background(), "device created",
		logging.String("device", d.ID), logging.String("kind", string(d.Kind)))
	return nil
}

// GetDevice retrieves a device by ID.
func (s *SimState) GetDevice(id string) (*model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d := s.devices.Device(id)
	if d == nil {
		return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}
	return d, nil
}

// ListDevices returns all devices in the scenario.
func (s *SimState) ListDevices() []*model.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices.Devices()
}

// UpdateDevice replaces an existing device entry.
func (s *SimState) UpdateDevice(d *model.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.UpdateDevice(d)
}

// SetDeviceStatus flips a device active/inactive/error. In-flight
// packets react on their next hop, not retroactively.
func (s *SimState) SetDeviceStatus(id string, status model.DeviceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.SetDeviceStatus(id, status)
}

// DeleteDevice removes a device by ID, refusing while interfaces still
// reference it.
func (s *SimState) DeleteDevice(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owned := s.topo.InterfacesForDevice(id); len(owned) > 0 {
		return fmt.Errorf("%w: %q has %d interfaces", ErrDeviceInUse, id, len(owned))
	}
	if err := s.devices.DeleteDevice(id); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

//
// ---------- VLANs ----------
//

// CreateVLAN defines a new VLAN.
func (s *SimState) CreateVLAN(v *model.VLAN) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.devices.AddVLAN(v); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

// GetVLAN retrieves a VLAN definition by ID.
func (s *SimState) GetVLAN(id uint16) (*model.VLAN, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := s.devices.VLAN(id)
	if v == nil {
		return nil, fmt.Errorf("%w: %d", ErrVLANNotFound, id)
	}
	return v, nil
}

// ListVLANs returns all VLAN definitions.
func (s *SimState) ListVLANs() []*model.VLAN {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devices.VLANs()
}

// UpdateVLAN replaces an existing VLAN definition. Suspending a VLAN
// does not rip out port configurations; packets tagged with it start
// failing admission at their next validation point.
func (s *SimState) UpdateVLAN(v *model.VLAN) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices.UpdateVLAN(v)
}

// DeleteVLAN removes a VLAN definition, refusing while any port
// configuration references it.
func (s *SimState) DeleteVLAN(id uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ports := s.portsReferencingVLANLocked(id); len(ports) > 0 {
		return fmt.Errorf("%w: vlan %d on %v", ErrVLANInUse, id, ports)
	}
	if err := s.devices.DeleteVLAN(id); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

// portsReferencingVLANLocked collects interface IDs whose port config
// mentions the VLAN. Caller must hold s.mu.
func (s *SimState) portsReferencingVLANLocked(id uint16) []string {
	var ports []string
	for _, in := range s.topo.Interfaces() {
		for _, v := range in.VLAN.ConfiguredVLANs() {
			if v == id {
				ports = append(ports, in.ID)
				break
			}
		}
	}
	return ports
}

//
// ---------- Interfaces ----------
//

// CreateInterface inserts a new interface. The owning device must
// exist and every VLAN the port configuration references must be
// defined and active.
func (s *SimState) CreateInterface(in *network.Interface) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if in == nil {
		return fmt.Errorf("%w: nil interface", network.ErrInterfaceBadInput)
	}
	if s.devices.Device(in.DeviceID) == nil {
		return fmt.Errorf("%w: interface %q references device %q", ErrDeviceNotFound, in.ID, in.DeviceID)
	}
	if err := s.requireActiveVLANsLocked(in.VLAN); err != nil {
		return err
	}
	if err := s.topo.AddInterface(in); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

// GetInterface retrieves an interface by ID.
func (s *SimState) GetInterface(id string) (*network.Interface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := s.topo.Interface(id)
	if in == nil {
		return nil, fmt.Errorf("%w: %q", ErrInterfaceNotFound, id)
	}
	return in, nil
}

// ListInterfaces returns all interfaces.
func (s *SimState) ListInterfaces() []*network.Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo.Interfaces()
}

// ListInterfacesForDevice returns the ports owned by one device.
func (s *SimState) ListInterfacesForDevice(deviceID string) []*network.Interface {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo.InterfacesForDevice(deviceID)
}

// ConfigurePort applies a new VLAN configuration to a port after both
// structural validation and registry checks (every referenced VLAN
// must exist and be active). Invalid configurations are reported to
// the caller and leave the port untouched.
func (s *SimState) ConfigurePort(interfaceID string, cfg network.VLANConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := network.ValidateVLANConfig(cfg); err != nil {
		return err
	}
	if err := s.requireActiveVLANsLocked(cfg); err != nil {
		return err
	}
	if err := s.topo.ConfigurePort(interfaceID, cfg); err != nil {
		return err
	}
	s.log.Info(context.Background(), "port reconfigured",
		logging.String("interface", interfaceID),
		logging.String("mode", string(cfg.Mode)))
	return nil
}

// requireActiveVLANsLocked checks every VLAN a port config references
// against the registry. Caller must hold s.mu.
func (s *SimState) requireActiveVLANsLocked(cfg network.VLANConfig) error {
	for _, id := range cfg.ConfiguredVLANs() {
		if err := s.devices.RequireActiveVLAN(id); err != nil {
			return err
		}
	}
	return nil
}

// SetInterfaceStatus flips an interface up/down/admin-down.
func (s *SimState) SetInterfaceStatus(id string, status network.InterfaceStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.SetInterfaceStatus(id, status)
}

// DeleteInterface removes an interface by ID, refusing to delete when
// it is still referenced by connections.
func (s *SimState) DeleteInterface(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if links := s.topo.ConnectionsForInterface(id); len(links) > 0 {
		return fmt.Errorf("%w: %q has %d connections", ErrInterfaceInUse, id, len(links))
	}
	if err := s.topo.DeleteInterface(id); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

//
// ---------- Connections ----------
//

// CreateConnection inserts a new link into the topology.
func (s *SimState) CreateConnection(link *network.Connection) error {
	return s.CreateConnections(link)
}

// CreateConnections inserts one or more links. If any insert fails,
// previously added links from this call are rolled back to keep
// adjacency consistent.
func (s *SimState) CreateConnections(links ...*network.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := make([]string, 0, len(links))
	for _, link := range links {
		if err := s.topo.AddConnection(link); err != nil {
			for _, id := range added {
				_ = s.topo.DeleteConnection(id)
			}
			return err
		}
		added = append(added, link.ID)
	}
	s.updateMetricsLocked()
	return nil
}

// GetConnection returns a link by ID.
func (s *SimState) GetConnection(id string) (*network.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := s.topo.Connection(id)
	if link == nil {
		return nil, fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	return link, nil
}

// ListConnections returns all links.
func (s *SimState) ListConnections() []*network.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topo.Connections()
}

// SetConnectionStatus flips a link up or down.
func (s *SimState) SetConnectionStatus(id string, status network.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topo.SetConnectionStatus(id, status)
}

// DeleteConnection removes a link and updates adjacency.
func (s *SimState) DeleteConnection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.topo.DeleteConnection(id); err != nil {
		return err
	}
	s.updateMetricsLocked()
	return nil
}

//
// ---------- Scenario ----------
//

// LoadScenarioFile clears the current scenario and loads a fresh one
// from disk (JSON or YAML by extension). Flows declared in the file
// are returned for the caller to arm via Start.
func (s *SimState) LoadScenarioFile(path string) (*network.ScenarioSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearScenarioLocked()
	sum, err := network.LoadScenarioFile(path, s.devices, s.topo, s.engine.Tables())
	if err != nil {
		return nil, err
	}
	s.updateMetricsLocked()
	s.log.Info(context.Background(), "scenario loaded",
		logging.String("path", path),
		logging.String("name", sum.Name),
		logging.Int("devices", len(sum.DeviceIDs)),
		logging.Int("links", len(sum.LinkIDs)))
	return sum, nil
}

// ClearScenario removes all topology, packet, table, and statistics
// state, returning the simulator to an empty stopped scenario.
func (s *SimState) ClearScenario() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearScenarioLocked()
	s.updateMetricsLocked()
}

// clearScenarioLocked performs the actual teardown. Caller must hold s.mu.
func (s *SimState) clearScenarioLocked() {
	s.running = false
	s.engine.Reset()
	s.topo.Clear()
	s.devices.Clear()
	s.telemetry.Clear()
}

// Snapshot returns a coherent view of the editable topology.
func (s *SimState) Snapshot() *TopologySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &TopologySnapshot{
		Devices:     s.devices.Devices(),
		VLANs:       s.devices.VLANs(),
		Interfaces:  s.topo.Interfaces(),
		Connections: s.topo.Connections(),
	}
}

// updateMetricsLocked pushes entity counts to the metrics recorder.
// Caller must hold s.mu (read or write).
func (s *SimState) updateMetricsLocked() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetTopologyCounts(
		len(s.devices.Devices()),
		len(s.topo.Interfaces()),
		len(s.topo.Connections()),
		len(s.devices.VLANs()),
	)
}
