package core

import (
	"testing"

	"github.com/netlabworks/vlansim/model"
)

func syntheticPackets(pkts []*model.Packet) []*model.Packet {
	var out []*model.Packet
	for _, p := range pkts {
		if p.Synthetic {
			out = append(out, p)
		}
	}
	return out
}

func TestUnknownTargetMACSynthesizesRequestAndReply(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	// First movement hits S1 with no MAC entry for H2.
	e.AdvanceOneTick()

	syn := syntheticPackets(e.ActivePackets())
	if len(syn) != 2 {
		t.Fatalf("synthetic packets = %d, want exactly 2", len(syn))
	}
	var request, reply *model.Packet
	for _, p := range syn {
		if p.Protocol != model.ProtocolARP {
			t.Fatalf("synthetic packet has protocol %s, want ARP", p.Protocol)
		}
		switch p.SourceDeviceID {
		case "H1":
			request = p
		case "H2":
			reply = p
		}
	}
	if request == nil || reply == nil {
		t.Fatalf("missing request or reply: %+v", syn)
	}
	if !pathsEqual(request.Path, pkt.Path) {
		t.Fatalf("request path = %v, want %v", request.Path, pkt.Path)
	}
	if !pathsEqual(reply.Path, reversePath(pkt.Path)) {
		t.Fatalf("reply path = %v, want reversed %v", reply.Path, pkt.Path)
	}
}

func TestARPResolutionTriggersAtMostOnce(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	if _, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	advance(t, e, 10)

	// 1 user packet + 2 synthetic, nothing more: the request/reply
	// pair fires once even though the packet crosses two switches.
	if snap := e.StatsSnapshot(); snap.PacketsCreated != 3 {
		t.Fatalf("packets created = %d, want 3", snap.PacketsCreated)
	}
}

func TestARPReplyPopulatesIntermediateSwitches(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	if _, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	advance(t, e, 10)

	for _, sw := range []string{"S1", "S2"} {
		if _, ok := e.Tables().LookupMAC(sw, 10, "AA:00:00:00:00:02"); !ok {
			t.Errorf("switch %s missing target MAC entry after resolution", sw)
		}
	}
}

func TestARPDeliveryFillsARPCaches(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	if _, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	advance(t, e, 12)

	// Request delivered at H2 teaches it H1's binding, reply at H1
	// teaches it H2's.
	if entry, ok := e.Tables().LookupARP("H2", 10, "10.0.10.1"); !ok || entry.MACAddress != "AA:00:00:00:00:01" {
		t.Fatalf("H2 ARP cache missing H1 binding: %+v", entry)
	}
	if entry, ok := e.Tables().LookupARP("H1", 10, "10.0.10.2"); !ok || entry.MACAddress != "AA:00:00:00:00:02" {
		t.Fatalf("H1 ARP cache missing H2 binding: %+v", entry)
	}
	if entry, _ := e.Tables().LookupARP("H1", 10, "10.0.10.2"); entry.VLANID != 10 {
		t.Fatalf("binding VLAN = %d, want 10", entry.VLANID)
	}
}

func TestARPPacketsDoNotRecurse(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	if _, err := e.CreateTestPacket("H1", "H2", model.ProtocolARP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	advance(t, e, 10)

	if syn := syntheticPackets(e.ActivePackets()); len(syn) != 0 {
		t.Fatalf("ARP traffic spawned synthetics: %d", len(syn))
	}
	if snap := e.StatsSnapshot(); snap.PacketsCreated != 1 {
		t.Fatalf("packets created = %d, want 1", snap.PacketsCreated)
	}
}

func TestKnownTargetMACSkipsResolution(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	// Pre-seed both switches with the target's MAC.
	e.Tables().AddStaticMAC("S1", 10, "AA:00:00:00:00:02", "S1-t1", e.SimTime())
	e.Tables().AddStaticMAC("S2", 10, "AA:00:00:00:00:02", "S2-p1", e.SimTime())

	if _, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10); err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	advance(t, e, 10)

	if snap := e.StatsSnapshot(); snap.PacketsCreated != 1 {
		t.Fatalf("packets created = %d, want 1 (no ARP needed)", snap.PacketsCreated)
	}
}
