package core

import (
	"testing"

	"github.com/netlabworks/vlansim/model"
)

func containsID(ids []string, want string) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

func TestReachableSymmetricAcrossTrunk(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	r := n.resolver()

	fromH1 := r.Reachable("H1", 10)
	fromH2 := r.Reachable("H2", 10)

	for _, want := range []string{"H1", "H2", "S1", "S2"} {
		if !containsID(fromH1, want) {
			t.Errorf("reachable(H1, 10) missing %s: %v", want, fromH1)
		}
		if !containsID(fromH2, want) {
			t.Errorf("reachable(H2, 10) missing %s: %v", want, fromH2)
		}
	}
}

func TestReachableExcludesFilteredVLAN(t *testing.T) {
	n := buildSplitVLANSwitch(t)
	r := n.resolver()

	got := r.Reachable("HA", 10)
	if containsID(got, "HB") {
		t.Fatalf("reachable(HA, 10) must not cross an access-20 port: %v", got)
	}
	if !containsID(got, "S") {
		t.Fatalf("reachable(HA, 10) should include the switch: %v", got)
	}

	// Flip perspective: HB sees the switch on VLAN 20 but never HA.
	got = r.Reachable("HB", 20)
	if containsID(got, "HA") {
		t.Fatalf("reachable(HB, 20) must not include HA: %v", got)
	}
}

func TestReachableUnknownVLANYieldsOnlySource(t *testing.T) {
	n := buildSplitVLANSwitch(t)
	r := n.resolver()

	got := r.Reachable("HA", 999)
	if len(got) != 1 || got[0] != "HA" {
		t.Fatalf("reachable(HA, 999) = %v, want [HA]", got)
	}
}

func TestReachableSkipsDownLinksAndInactiveDevices(t *testing.T) {
	n := buildTwoSwitchTrunk(t)
	r := n.resolver()

	if err := n.topo.SetConnectionStatus("L-s1-s2", ConnectionDown); err != nil {
		t.Fatalf("SetConnectionStatus: %v", err)
	}
	got := r.Reachable("H1", 10)
	if containsID(got, "S2") || containsID(got, "H2") {
		t.Fatalf("down trunk must cut reachability: %v", got)
	}

	if err := n.topo.SetConnectionStatus("L-s1-s2", ConnectionUp); err != nil {
		t.Fatalf("SetConnectionStatus: %v", err)
	}
	if err := n.devices.SetDeviceStatus("S2", model.DeviceInactive); err != nil {
		t.Fatalf("SetDeviceStatus: %v", err)
	}
	got = r.Reachable("H1", 10)
	if containsID(got, "S2") || containsID(got, "H2") {
		t.Fatalf("inactive switch must cut reachability: %v", got)
	}
}

func TestHostToHostLinkIgnoresVLANs(t *testing.T) {
	n := newTestNet(t)
	n.addHost("A")
	n.addHost("B")
	n.plainIface("A-eth0", "A", "", "")
	n.plainIface("B-eth0", "B", "", "")
	n.link("L-ab", "A-eth0", "B-eth0")

	r := n.resolver()
	got := r.Reachable("A", 42)
	if !containsID(got, "B") {
		t.Fatalf("host-to-host link should carry any VLAN: %v", got)
	}
}
