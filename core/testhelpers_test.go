package core

import (
	"testing"

	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/model"
)

// testNet bundles the stores a scenario needs and offers terse
// builders so the actual tests read like topology descriptions.
type testNet struct {
	t       *testing.T
	devices *kb.DeviceBase
	topo    *Topology
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()
	return &testNet{
		t:       t,
		devices: kb.NewDeviceBase(),
		topo:    NewTopology(),
	}
}

func (n *testNet) resolver() *Resolver {
	return NewResolver(n.topo, n.devices)
}

func (n *testNet) engine(opts ...Option) *Engine {
	return NewEngine(n.topo, n.devices, opts...)
}

func (n *testNet) addVLAN(id uint16) {
	n.t.Helper()
	if err := n.devices.AddVLAN(&model.VLAN{ID: id, Name: "vlan", Status: model.VLANActive}); err != nil {
		n.t.Fatalf("AddVLAN(%d): %v", id, err)
	}
}

func (n *testNet) addDevice(id string, kind model.DeviceKind) {
	n.t.Helper()
	err := n.devices.AddDevice(&model.Device{
		ID:     id,
		Name:   id,
		Kind:   kind,
		Status: model.DeviceActive,
	})
	if err != nil {
		n.t.Fatalf("AddDevice(%q): %v", id, err)
	}
}

func (n *testNet) addSwitch(id string) { n.addDevice(id, model.KindSwitch) }
func (n *testNet) addHost(id string)   { n.addDevice(id, model.KindEndHost) }

// addIface registers an interface; mac/ip may be empty.
func (n *testNet) addIface(id, deviceID string, cfg VLANConfig, mac, ip string) {
	n.t.Helper()
	err := n.topo.AddInterface(&Interface{
		ID:         id,
		Name:       id,
		DeviceID:   deviceID,
		Status:     InterfaceUp,
		MACAddress: mac,
		IPAddress:  ip,
		VLAN:       cfg,
	})
	if err != nil {
		n.t.Fatalf("AddInterface(%q): %v", id, err)
	}
}

func (n *testNet) plainIface(id, deviceID, mac, ip string) {
	n.addIface(id, deviceID, VLANConfig{Mode: PortModePlain}, mac, ip)
}

func (n *testNet) accessIface(id, deviceID string, vlan uint16) {
	n.addIface(id, deviceID, VLANConfig{Mode: PortModeAccess, AccessVLAN: vlan}, "", "")
}

func (n *testNet) trunkIface(id, deviceID string, allowed []uint16, native uint16) {
	n.addIface(id, deviceID, VLANConfig{Mode: PortModeTrunk, AllowedVLANs: allowed, NativeVLAN: native}, "", "")
}

func (n *testNet) link(id, ifaceA, ifaceB string) {
	n.t.Helper()
	err := n.topo.AddConnection(&Connection{
		ID:         id,
		InterfaceA: ifaceA,
		InterfaceB: ifaceB,
		Status:     ConnectionUp,
	})
	if err != nil {
		n.t.Fatalf("AddConnection(%q): %v", id, err)
	}
}

// buildTwoSwitchTrunk assembles the canonical two-switch topology:
//
//	H1 -- S1 ===trunk{10,20}/native 10=== S2 -- H2
//
// with H1 and H2 on VLAN 10 access ports. Returns the populated net.
func buildTwoSwitchTrunk(t *testing.T) *testNet {
	n := newTestNet(t)
	n.addVLAN(10)
	n.addVLAN(20)
	n.addHost("H1")
	n.addHost("H2")
	n.addSwitch("S1")
	n.addSwitch("S2")

	n.plainIface("H1-eth0", "H1", "AA:00:00:00:00:01", "10.0.10.1")
	n.plainIface("H2-eth0", "H2", "AA:00:00:00:00:02", "10.0.10.2")
	n.accessIface("S1-p1", "S1", 10)
	n.accessIface("S2-p1", "S2", 10)
	n.trunkIface("S1-t1", "S1", []uint16{10, 20}, 10)
	n.trunkIface("S2-t1", "S2", []uint16{10, 20}, 10)

	n.link("L-h1-s1", "H1-eth0", "S1-p1")
	n.link("L-s1-s2", "S1-t1", "S2-t1")
	n.link("L-s2-h2", "S2-p1", "H2-eth0")
	return n
}

// buildSplitVLANSwitch assembles one switch with two hosts on
// different access VLANs and no router:
//
//	HA --(access 10)-- S --(access 20)-- HB
func buildSplitVLANSwitch(t *testing.T) *testNet {
	n := newTestNet(t)
	n.addVLAN(10)
	n.addVLAN(20)
	n.addSwitch("S")
	n.addHost("HA")
	n.addHost("HB")

	n.plainIface("HA-eth0", "HA", "AA:00:00:00:00:0A", "10.0.10.10")
	n.plainIface("HB-eth0", "HB", "AA:00:00:00:00:0B", "10.0.20.10")
	n.accessIface("S-p1", "S", 10)
	n.accessIface("S-p2", "S", 20)

	n.link("L-ha-s", "HA-eth0", "S-p1")
	n.link("L-s-hb", "S-p2", "HB-eth0")
	return n
}

func advance(t *testing.T, e *Engine, ticks int) []Event {
	t.Helper()
	var all []Event
	for i := 0; i < ticks; i++ {
		all = append(all, e.AdvanceOneTick()...)
	}
	return all
}

// findPacket locates a packet by ID in a snapshot.
func findPacket(pkts []*model.Packet, id string) *model.Packet {
	for _, p := range pkts {
		if p.ID == id {
			return p
		}
	}
	return nil
}
