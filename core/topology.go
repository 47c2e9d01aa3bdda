package core

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrLinkExists        = errors.New("connection already exists")
	ErrLinkNotFound      = errors.New("connection not found")
	ErrLinkBadInput      = errors.New("invalid connection")
	ErrInterfaceMiss     = errors.New("connection references unknown interface")
	ErrInterfaceExists   = errors.New("interface already exists")
	ErrInterfaceNotFound = errors.New("interface not found")
	ErrInterfaceBadInput = errors.New("invalid interface")
)

// Topology is the network knowledge base: it stores interfaces,
// connections, and the adjacency between them. Devices and VLAN
// definitions live in the kb.DeviceBase; interfaces reference devices
// by ID.
//
// The store is concurrency-safe via an internal RWMutex so it can be
// queried from server handlers while the tick loop runs, as long as
// all access goes through these methods.
type Topology struct {
	mu sync.RWMutex

	interfaces       map[string]*Interface
	links            map[string]*Connection
	linksByInterface map[string]map[string]*Connection
}

// NewTopology creates an empty network knowledge base.
func NewTopology() *Topology {
	return &Topology{
		interfaces:       make(map[string]*Interface),
		links:            make(map[string]*Connection),
		linksByInterface: make(map[string]map[string]*Connection),
	}
}

//
// ---------- Interfaces ----------
//

// AddInterface inserts a new interface after validating its VLAN
// configuration structurally.
func (t *Topology) AddInterface(in *Interface) error {
	if in == nil || in.ID == "" {
		return fmt.Errorf("%w", ErrInterfaceBadInput)
	}
	if in.DeviceID == "" {
		return fmt.Errorf("%w: %q has no device", ErrInterfaceBadInput, in.ID)
	}
	if err := ValidateVLANConfig(in.VLAN); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInterfaceBadInput, in.ID, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.interfaces[in.ID]; exists {
		return fmt.Errorf("%w: %q", ErrInterfaceExists, in.ID)
	}
	if in.Status == "" {
		in.Status = InterfaceUp
	}
	t.interfaces[in.ID] = in
	return nil
}

// Interface returns an interface by ID, or nil if not found.
func (t *Topology) Interface(id string) *Interface {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interfaces[id]
}

// Interfaces returns all interfaces sorted by ID.
func (t *Topology) Interfaces() []*Interface {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Interface, 0, len(t.interfaces))
	for _, in := range t.interfaces {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// InterfacesForDevice returns the ports owned by a device, sorted by ID.
func (t *Topology) InterfacesForDevice(deviceID string) []*Interface {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Interface
	for _, in := range t.interfaces {
		if in != nil && in.DeviceID == deviceID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConfigurePort replaces the VLAN configuration of an interface. The
// new configuration is validated structurally before being applied;
// invalid configurations leave the port untouched.
func (t *Topology) ConfigurePort(interfaceID string, cfg VLANConfig) error {
	if err := ValidateVLANConfig(cfg); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.interfaces[interfaceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInterfaceNotFound, interfaceID)
	}
	in.VLAN = cfg
	return nil
}

// SetInterfaceStatus flips an interface's administrative/link status.
func (t *Topology) SetInterfaceStatus(interfaceID string, status InterfaceStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	in, ok := t.interfaces[interfaceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInterfaceNotFound, interfaceID)
	}
	in.Status = status
	return nil
}

// DeleteInterface removes an interface and any connections referencing it.
func (t *Topology) DeleteInterface(id string) error {
	if id == "" {
		return fmt.Errorf("%w", ErrInterfaceBadInput)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.interfaces[id]; !ok {
		return fmt.Errorf("%w: %q", ErrInterfaceNotFound, id)
	}
	t.deleteInterfaceLocked(id)
	return nil
}

//
// ---------- Connections ----------
//

// AddConnection inserts a new link and updates adjacency maps and
// per-interface LinkIDs. Both endpoints must already exist.
func (t *Topology) AddConnection(link *Connection) error {
	if link == nil || link.ID == "" {
		return fmt.Errorf("%w", ErrLinkBadInput)
	}
	if link.InterfaceA == "" || link.InterfaceB == "" {
		return fmt.Errorf("%w: %q is missing an endpoint", ErrLinkBadInput, link.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.links[link.ID]; exists {
		return fmt.Errorf("%w: %q", ErrLinkExists, link.ID)
	}
	if _, ok := t.interfaces[link.InterfaceA]; !ok {
		return fmt.Errorf("%w: %q references %q", ErrInterfaceMiss, link.ID, link.InterfaceA)
	}
	if _, ok := t.interfaces[link.InterfaceB]; !ok {
		return fmt.Errorf("%w: %q references %q", ErrInterfaceMiss, link.ID, link.InterfaceB)
	}

	if link.Status == "" {
		link.Status = ConnectionUp
	}
	t.links[link.ID] = link

	t.attachLinkToInterface(link.ID, link.InterfaceA)
	t.attachLinkToInterface(link.ID, link.InterfaceB)
	return nil
}

// Connection returns a single link by ID, or nil if missing.
func (t *Topology) Connection(id string) *Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.links[id]
}

// Connections returns all links sorted by ID.
func (t *Topology) Connections() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Connection, 0, len(t.links))
	for _, l := range t.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectionsForInterface returns the links attached to an interface.
func (t *Topology) ConnectionsForInterface(ifID string) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.linksByInterface[ifID]
	if !ok {
		return nil
	}
	out := make([]*Connection, 0, len(m))
	for _, l := range m {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConnectionsForDevice returns the links touching any port of a device,
// sorted by ID.
func (t *Topology) ConnectionsForDevice(deviceID string) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]*Connection)
	for ifID, in := range t.interfaces {
		if in == nil || in.DeviceID != deviceID {
			continue
		}
		for id, l := range t.linksByInterface[ifID] {
			seen[id] = l
		}
	}
	out := make([]*Connection, 0, len(seen))
	for _, l := range seen {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetConnectionStatus flips a link up or down.
func (t *Topology) SetConnectionStatus(id string, status ConnectionStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.links[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	l.Status = status
	return nil
}

// DeleteConnection removes a link by ID and cleans up adjacency state.
func (t *Topology) DeleteConnection(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	link, exists := t.links[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrLinkNotFound, id)
	}
	t.detachLinkFromInterface(id, link.InterfaceA)
	t.detachLinkFromInterface(id, link.InterfaceB)
	delete(t.links, id)
	return nil
}

// Endpoints resolves a link's two interfaces. Either may be nil if the
// topology was mutated inconsistently.
func (t *Topology) Endpoints(link *Connection) (*Interface, *Interface) {
	if link == nil {
		return nil, nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.interfaces[link.InterfaceA], t.interfaces[link.InterfaceB]
}

// DeviceEndpoints resolves a link's endpoint device IDs.
func (t *Topology) DeviceEndpoints(link *Connection) (string, string) {
	a, b := t.Endpoints(link)
	var devA, devB string
	if a != nil {
		devA = a.DeviceID
	}
	if b != nil {
		devB = b.DeviceID
	}
	return devA, devB
}

// Clear removes interfaces, links, and adjacency maps.
func (t *Topology) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interfaces = make(map[string]*Interface)
	t.links = make(map[string]*Connection)
	t.linksByInterface = make(map[string]map[string]*Connection)
}

// attachLinkToInterface updates linksByInterface and the interface's
// LinkIDs slice to include linkID.
//
// NOTE: caller must hold t.mu (write lock).
func (t *Topology) attachLinkToInterface(linkID, ifID string) {
	if ifID == "" {
		return
	}
	m, ok := t.linksByInterface[ifID]
	if !ok {
		m = make(map[string]*Connection)
		t.linksByInterface[ifID] = m
	}
	m[linkID] = t.links[linkID]

	if in := t.interfaces[ifID]; in != nil {
		in.LinkIDs = appendIfMissing(in.LinkIDs, linkID)
	}
}

// detachLinkFromInterface removes linkID from adjacency maps and
// per-interface LinkIDs.
//
// NOTE: caller must hold t.mu (write lock).
func (t *Topology) detachLinkFromInterface(linkID, ifID string) {
	if ifID == "" {
		return
	}
	if m, ok := t.linksByInterface[ifID]; ok {
		delete(m, linkID)
		if len(m) == 0 {
			delete(t.linksByInterface, ifID)
		}
	}
	if in := t.interfaces[ifID]; in != nil {
		newIDs := make([]string, 0, len(in.LinkIDs))
		for _, id := range in.LinkIDs {
			if id != linkID {
				newIDs = append(newIDs, id)
			}
		}
		in.LinkIDs = newIDs
	}
}

// deleteInterfaceLocked removes the interface with the provided ID and
// cleans up any adjacency state. Caller must hold t.mu (write lock).
func (t *Topology) deleteInterfaceLocked(id string) {
	for linkID, link := range t.links {
		if link.InterfaceA == id || link.InterfaceB == id {
			t.detachLinkFromInterface(linkID, link.InterfaceA)
			t.detachLinkFromInterface(linkID, link.InterfaceB)
			delete(t.links, linkID)
		}
	}
	delete(t.linksByInterface, id)
	delete(t.interfaces, id)
}

func appendIfMissing(slice []string, id string) []string {
	for _, v := range slice {
		if v == id {
			return slice
		}
	}
	return append(slice, id)
}
