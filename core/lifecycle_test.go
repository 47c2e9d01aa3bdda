package core

import (
	"errors"
	"testing"

	"github.com/netlabworks/vlansim/model"
)

func TestSelfAddressedPacketDeliversInOneTick(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H1", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	if got, want := len(pkt.Path), 1; got != want {
		t.Fatalf("path length = %d, want %d (%v)", got, want, pkt.Path)
	}

	e.AdvanceOneTick()

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got == nil {
		t.Fatal("packet missing from active set")
	}
	if got.Status != model.PacketDelivered {
		t.Fatalf("status = %s, want %s", got.Status, model.PacketDelivered)
	}
}

func TestUnicastAcrossTrunkDeliversAndLearns(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	wantPath := []string{"H1", "S1", "S2", "H2"}
	if len(pkt.Path) != len(wantPath) {
		t.Fatalf("path = %v, want %v", pkt.Path, wantPath)
	}
	for i := range wantPath {
		if pkt.Path[i] != wantPath[i] {
			t.Fatalf("path = %v, want %v", pkt.Path, wantPath)
		}
	}

	advance(t, e, 10)

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got != nil && got.Status != model.PacketDelivered {
		t.Fatalf("status = %s, want delivered", got.Status)
	}
	snap := e.StatsSnapshot()
	if snap.PacketsDelivered == 0 {
		t.Fatal("no deliveries recorded")
	}

	for _, sw := range []string{"S1", "S2"} {
		if _, ok := e.Tables().LookupMAC(sw, 10, "AA:00:00:00:00:01"); !ok {
			t.Errorf("switch %s did not learn H1's MAC on VLAN 10", sw)
		}
		if _, ok := e.Tables().LookupMAC(sw, 10, "AA:00:00:00:00:02"); !ok {
			t.Errorf("switch %s did not learn H2's MAC on VLAN 10", sw)
		}
	}
}

func TestCrossVLANWithoutRouterDropsNoRoute(t *testing.T) {
	n := buildSplitVLANSwitch(t)
	e := n.engine()

	// VLAN inferred from HA's access-10 uplink; HB sits behind an
	// access-20 port so no VLAN-10 path exists.
	pkt, err := e.CreateTestPacket("HA", "HB", model.ProtocolICMP, model.VLANNone)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	if pkt.VLANID != 10 {
		t.Fatalf("inferred VLAN = %d, want 10", pkt.VLANID)
	}
	if len(pkt.Path) != 0 {
		t.Fatalf("expected empty path, got %v", pkt.Path)
	}

	e.AdvanceOneTick()

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got == nil || got.Status != model.PacketDropped {
		t.Fatalf("packet not dropped: %+v", got)
	}
	if len(got.Drops) != 1 || got.Drops[0].Reason != model.DropNoRoute {
		t.Fatalf("drops = %+v, want single NO_ROUTE", got.Drops)
	}
}

func TestVLANConfigChangeMidFlightDropsVLANMismatch(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	// Path resolved against the old config; pull VLAN 10 off the
	// trunk before the packet crosses it.
	err = n.topo.ConfigurePort("S1-t1", VLANConfig{
		Mode:         PortModeTrunk,
		AllowedVLANs: []uint16{20},
		NativeVLAN:   20,
	})
	if err != nil {
		t.Fatalf("ConfigurePort: %v", err)
	}

	advance(t, e, 10)

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got != nil {
		if got.Status != model.PacketDropped {
			t.Fatalf("status = %s, want dropped", got.Status)
		}
		if got.Drops[0].Reason != model.DropVLANMismatch {
			t.Fatalf("reason = %s, want %s", got.Drops[0].Reason, model.DropVLANMismatch)
		}
	}
	snap := e.StatsSnapshot()
	if snap.DroppedByReason[string(model.DropVLANMismatch)] == 0 {
		t.Fatal("no VLAN_MISMATCH drop recorded")
	}
	if snap.PacketsDelivered != 0 {
		t.Fatalf("delivered = %d, want 0", snap.PacketsDelivered)
	}
}

func TestTTLExhaustionDropsBeforeDelivery(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	// Force a TTL that cannot cover a three-hop path.
	for _, p := range e.active {
		if p.ID == pkt.ID {
			p.TTL = 1
		}
	}

	advance(t, e, 10)

	snap := e.StatsSnapshot()
	if snap.DroppedByReason[string(model.DropTTLExceeded)] == 0 {
		t.Fatal("no TTL_EXCEEDED drop recorded")
	}
	if snap.PacketsDelivered != 0 {
		t.Fatalf("delivered = %d, want 0", snap.PacketsDelivered)
	}
}

func TestSourceVLANAuthorizationDropsAccessDenied(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	// H1's uplink is an access-10 port; sending tagged VLAN 20 from
	// it must be refused at the source.
	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 20)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	e.AdvanceOneTick()

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got == nil || got.Status != model.PacketDropped {
		t.Fatalf("packet not dropped: %+v", got)
	}
	if got.Drops[0].Reason != model.DropAccessDenied {
		t.Fatalf("reason = %s, want %s", got.Drops[0].Reason, model.DropAccessDenied)
	}
}

func TestInactiveSourceDropsAccessDenied(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	if err := n.devices.SetDeviceStatus("H1", model.DeviceInactive); err != nil {
		t.Fatalf("SetDeviceStatus: %v", err)
	}

	e.AdvanceOneTick()

	got := findPacket(e.ActivePackets(), pkt.ID)
	if got == nil || got.Status != model.PacketDropped {
		t.Fatalf("packet not dropped: %+v", got)
	}
	if got.Drops[0].Reason != model.DropAccessDenied {
		t.Fatalf("reason = %s, want %s", got.Drops[0].Reason, model.DropAccessDenied)
	}
}

func TestUnknownDeviceCreatesNoPacket(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("nope", "H2", model.ProtocolICMP, 10)
	if pkt != nil {
		t.Fatalf("expected nil packet, got %+v", pkt)
	}
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("err = %v, want ErrUnknownDevice", err)
	}
	if len(e.ActivePackets()) != 0 {
		t.Fatal("active set should be empty")
	}
}

func TestTerminalPacketsObservableForExactlyOneTick(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkt, err := e.CreateTestPacket("H1", "H1", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}

	e.AdvanceOneTick()
	if got := findPacket(e.ActivePackets(), pkt.ID); got == nil || !got.Terminal() {
		t.Fatalf("terminal packet should still be visible after its tick: %+v", got)
	}

	e.AdvanceOneTick()
	if got := findPacket(e.ActivePackets(), pkt.ID); got != nil {
		t.Fatalf("terminal packet should be pruned on the following tick: %+v", got)
	}
}

func TestBroadcastFansOutToReachableHosts(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	e := n.engine()

	pkts, err := e.SendBroadcastPacket("H1", model.ProtocolOther, 10)
	if err != nil {
		t.Fatalf("SendBroadcastPacket: %v", err)
	}
	if len(pkts) != 1 {
		t.Fatalf("broadcast copies = %d, want 1 (only H2 reachable)", len(pkts))
	}
	if pkts[0].TargetDeviceID != "H2" {
		t.Fatalf("target = %s, want H2", pkts[0].TargetDeviceID)
	}
	if pkts[0].TargetMAC != broadcastMAC {
		t.Fatalf("target MAC = %s, want broadcast", pkts[0].TargetMAC)
	}
}

func TestHopDelayFloorsAtOneMillisecond(t *testing.T) {
	if ms := hopDelayMs(1, 1000); ms != 1 {
		t.Fatalf("tiny payload delay = %v, want 1", ms)
	}
	// 125000 bytes at 100 Mbps is 10ms on the wire.
	if ms := hopDelayMs(125000, 100); ms != 10 {
		t.Fatalf("delay = %v, want 10", ms)
	}
}
