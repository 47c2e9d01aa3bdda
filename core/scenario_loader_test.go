package core

import (
	"strings"
	"testing"

	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/model"
)

const scenarioJSON = `{
  "name": "two-switch trunk",
  "vlans": [
    {"id": 10, "name": "users"},
    {"id": 20, "name": "servers", "status": "suspended"}
  ],
  "devices": [
    {"id": "H1", "kind": "end-host"},
    {"id": "H2", "kind": "end-host"},
    {"id": "S1", "kind": "switch"},
    {"id": "S2", "kind": "switch"}
  ],
  "interfaces": [
    {"id": "H1-eth0", "deviceId": "H1", "ip": "10.0.10.1"},
    {"id": "H2-eth0", "deviceId": "H2", "mac": "AA:00:00:00:00:02", "ip": "10.0.10.2"},
    {"id": "S1-p1", "deviceId": "S1", "mode": "access", "accessVlan": 10},
    {"id": "S2-p1", "deviceId": "S2", "mode": "access", "accessVlan": 10},
    {"id": "S1-t1", "deviceId": "S1", "mode": "trunk", "allowedVlans": [10, 20], "nativeVlan": 10},
    {"id": "S2-t1", "deviceId": "S2", "mode": "trunk", "allowedVlans": [10, 20], "nativeVlan": 10}
  ],
  "connections": [
    {"id": "L1", "interfaceA": "H1-eth0", "interfaceB": "S1-p1"},
    {"id": "L2", "interfaceA": "S1-t1", "interfaceB": "S2-t1", "bandwidthMbps": 1000},
    {"id": "L3", "interfaceA": "S2-p1", "interfaceB": "H2-eth0"}
  ],
  "flows": [
    {"id": "f1", "source": "H1", "target": "H2", "protocol": "udp", "vlan": 10, "intervalTicks": 2}
  ]
}`

const scenarioYAML = `
name: mini
vlans:
  - id: 10
    name: users
devices:
  - id: A
    kind: end-host
  - id: B
    kind: end-host
interfaces:
  - id: A-eth0
    deviceId: A
  - id: B-eth0
    deviceId: B
connections:
  - id: L1
    interfaceA: A-eth0
    interfaceB: B-eth0
`

func TestLoadScenarioJSON(t *testing.T) {
	devices := kb.NewDeviceBase()
	topo := NewTopology()
	tables := NewTableStore()

	sum, err := LoadScenarioJSON(strings.NewReader(scenarioJSON), devices, topo, tables)
	if err != nil {
		t.Fatalf("LoadScenarioJSON: %v", err)
	}

	if sum.Name != "two-switch trunk" {
		t.Fatalf("name = %q", sum.Name)
	}
	if len(sum.DeviceIDs) != 4 || len(sum.IfaceIDs) != 6 || len(sum.LinkIDs) != 3 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(sum.Flows) != 1 || sum.Flows[0].Protocol != model.ProtocolUDP || sum.Flows[0].IntervalTicks != 2 {
		t.Fatalf("flows = %+v", sum.Flows)
	}

	v := devices.VLAN(20)
	if v == nil {
		t.Fatal("VLAN 20 not loaded")
	}
	if v.Status != model.VLANSuspended {
		t.Fatalf("vlan 20 status = %s, want suspended", v.Status)
	}

	if got := topo.Connection("L2").Bandwidth(); got != 1000 {
		t.Fatalf("L2 bandwidth = %v, want 1000", got)
	}
	if got := topo.Connection("L1").Bandwidth(); got != DefaultBandwidthMbps {
		t.Fatalf("L1 bandwidth = %v, want default", got)
	}

	// End to end: the loaded topology behaves like the hand-built one.
	e := NewEngine(topo, devices)
	pkt, err := e.CreateTestPacket("H1", "H2", model.ProtocolICMP, 10)
	if err != nil {
		t.Fatalf("CreateTestPacket: %v", err)
	}
	if !pathsEqual(pkt.Path, []string{"H1", "S1", "S2", "H2"}) {
		t.Fatalf("path = %v", pkt.Path)
	}
}

func TestLoadScenarioGeneratesMissingMACs(t *testing.T) {
	devices := kb.NewDeviceBase()
	topo := NewTopology()

	sum, err := LoadScenarioJSON(strings.NewReader(scenarioJSON), devices, topo, nil)
	if err != nil {
		t.Fatalf("LoadScenarioJSON: %v", err)
	}
	// Five of six interfaces omit a MAC.
	if sum.GeneratedMACs != 5 {
		t.Fatalf("generated MACs = %d, want 5", sum.GeneratedMACs)
	}

	got := topo.Interface("H1-eth0").MACAddress
	if got == "" || !strings.HasPrefix(got, "02:") {
		t.Fatalf("generated MAC = %q, want locally-administered", got)
	}
	if got != GenerateMAC("H1", "H1-eth0") {
		t.Fatalf("generated MAC not deterministic: %q", got)
	}
	if topo.Interface("H2-eth0").MACAddress != "AA:00:00:00:00:02" {
		t.Fatal("explicit MAC overwritten")
	}
}

func TestLoadScenarioYAML(t *testing.T) {
	devices := kb.NewDeviceBase()
	topo := NewTopology()

	sum, err := LoadScenarioYAML(strings.NewReader(scenarioYAML), devices, topo, nil)
	if err != nil {
		t.Fatalf("LoadScenarioYAML: %v", err)
	}
	if sum.Name != "mini" || len(sum.DeviceIDs) != 2 || len(sum.LinkIDs) != 1 {
		t.Fatalf("summary = %+v", sum)
	}

	r := NewResolver(topo, devices)
	if got := r.FindPath("A", "B", 0); !pathsEqual(got, []string{"A", "B"}) {
		t.Fatalf("path = %v, want [A B]", got)
	}
}

func TestLoadScenarioRejectsDanglingReferences(t *testing.T) {
	devices := kb.NewDeviceBase()
	topo := NewTopology()

	bad := `{"connections": [{"id": "L1", "interfaceA": "nope", "interfaceB": "nada"}]}`
	if _, err := LoadScenarioJSON(strings.NewReader(bad), devices, topo, nil); err == nil {
		t.Fatal("expected error for dangling interface reference")
	}
}
