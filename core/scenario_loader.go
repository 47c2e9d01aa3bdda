// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/netlabworks/vlansim/kb"
	"github.com/netlabworks/vlansim/model"
)

// ScenarioSummary is a small summary of what was loaded from a
// scenario file. It's mainly useful for logging from main().
type ScenarioSummary struct {
	Name          string
	DeviceIDs     []string
	VLANIDs       []uint16
	IfaceIDs      []string
	LinkIDs       []string
	Flows         []model.TrafficFlow
	GeneratedMACs int
}

// internal file shapes - kept unexported so we're free to evolve them.
// The same shapes double as JSON and YAML via parallel tags.
type scenarioFile struct {
	Name        string              `json:"name" yaml:"name"`
	Description string              `json:"description" yaml:"description"`
	VLANs       []scenarioVLAN      `json:"vlans" yaml:"vlans"`
	Devices     []scenarioDevice    `json:"devices" yaml:"devices"`
	Interfaces  []scenarioIface     `json:"interfaces" yaml:"interfaces"`
	Connections []scenarioLink      `json:"connections" yaml:"connections"`
	Flows       []scenarioFlow      `json:"flows" yaml:"flows"`
	StaticARP   []scenarioStaticARP `json:"staticArp" yaml:"staticArp"`
}

type scenarioVLAN struct {
	ID     uint16 `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Status string `json:"status" yaml:"status"` // active | suspended | shutdown; defaults to active
}

type scenarioDevice struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Kind   string `json:"kind" yaml:"kind"` // switch | router | end-host
	Status string `json:"status" yaml:"status"`
}

type scenarioIface struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	DeviceID     string   `json:"deviceId" yaml:"deviceId"`
	Status       string   `json:"status" yaml:"status"`
	MAC          string   `json:"mac" yaml:"mac"` // generated deterministically when absent
	IP           string   `json:"ip" yaml:"ip"`
	Mode         string   `json:"mode" yaml:"mode"` // plain | access | trunk
	AccessVLAN   uint16   `json:"accessVlan" yaml:"accessVlan"`
	AllowedVLANs []uint16 `json:"allowedVlans" yaml:"allowedVlans"`
	NativeVLAN   uint16   `json:"nativeVlan" yaml:"nativeVlan"`
}

type scenarioLink struct {
	ID            string  `json:"id" yaml:"id"`
	InterfaceA    string  `json:"interfaceA" yaml:"interfaceA"`
	InterfaceB    string  `json:"interfaceB" yaml:"interfaceB"`
	Status        string  `json:"status" yaml:"status"`
	BandwidthMbps float64 `json:"bandwidthMbps" yaml:"bandwidthMbps"`
}

type scenarioFlow struct {
	ID            string `json:"id" yaml:"id"`
	Source        string `json:"source" yaml:"source"`
	Target        string `json:"target" yaml:"target"`
	Protocol      string `json:"protocol" yaml:"protocol"`
	VLAN          uint16 `json:"vlan" yaml:"vlan"`
	PayloadBytes  int    `json:"payloadBytes" yaml:"payloadBytes"`
	JitterBytes   int    `json:"jitterBytes" yaml:"jitterBytes"`
	IntervalTicks int    `json:"intervalTicks" yaml:"intervalTicks"`
}

type scenarioStaticARP struct {
	DeviceID string `json:"deviceId" yaml:"deviceId"`
	VLAN     uint16 `json:"vlan" yaml:"vlan"`
	IP       string `json:"ip" yaml:"ip"`
	MAC      string `json:"mac" yaml:"mac"`
}

// LoadScenarioFile reads a topology scenario from path, choosing the
// decoder by extension (.yaml/.yml vs .json), and populates the device
// store and topology.
func LoadScenarioFile(path string, devices *kb.DeviceBase, topo *Topology, tables *TableStore) (*ScenarioSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadScenarioFile: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadScenarioYAML(f, devices, topo, tables)
	default:
		return LoadScenarioJSON(f, devices, topo, tables)
	}
}

// LoadScenarioJSON decodes a JSON scenario from r and applies it.
func LoadScenarioJSON(r io.Reader, devices *kb.DeviceBase, topo *Topology, tables *TableStore) (*ScenarioSummary, error) {
	var payload scenarioFile
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenarioJSON: decode failed: %w", err)
	}
	return applyScenario(&payload, devices, topo, tables)
}

// LoadScenarioYAML decodes a YAML scenario from r and applies it.
func LoadScenarioYAML(r io.Reader, devices *kb.DeviceBase, topo *Topology, tables *TableStore) (*ScenarioSummary, error) {
	var payload scenarioFile
	if err := yaml.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenarioYAML: decode failed: %w", err)
	}
	return applyScenario(&payload, devices, topo, tables)
}

// applyScenario pushes the decoded shapes into the stores in dependency
// order: VLANs, devices, interfaces, links, then static ARP seeds.
// Store invariants (duplicate IDs, dangling references, invalid VLAN
// configs) surface as wrapped errors rather than being re-validated
// here.
func applyScenario(payload *scenarioFile, devices *kb.DeviceBase, topo *Topology, tables *TableStore) (*ScenarioSummary, error) {
	if devices == nil || topo == nil {
		return nil, fmt.Errorf("applyScenario: nil store")
	}

	result := &ScenarioSummary{Name: payload.Name}

	for _, v := range payload.VLANs {
		vlan := &model.VLAN{
			ID:     v.ID,
			Name:   v.Name,
			Status: model.VLANStatus(v.Status),
		}
		if v.Status == "" {
			vlan.Status = model.VLANActive
		}
		if err := devices.AddVLAN(vlan); err != nil {
			return nil, fmt.Errorf("applyScenario: vlan %d: %w", v.ID, err)
		}
		result.VLANIDs = append(result.VLANIDs, v.ID)
	}

	for _, d := range payload.Devices {
		dev := &model.Device{
			ID:     d.ID,
			Name:   d.Name,
			Kind:   model.DeviceKind(d.Kind),
			Status: model.DeviceStatus(d.Status),
		}
		if d.Status == "" {
			dev.Status = model.DeviceActive
		}
		if err := devices.AddDevice(dev); err != nil {
			return nil, fmt.Errorf("applyScenario: device %q: %w", d.ID, err)
		}
		result.DeviceIDs = append(result.DeviceIDs, d.ID)
	}

	for _, jsIF := range payload.Interfaces {
		mac := jsIF.MAC
		if mac == "" {
			mac = GenerateMAC(jsIF.DeviceID, jsIF.ID)
			result.GeneratedMACs++
		}
		in := &Interface{
			ID:         jsIF.ID,
			Name:       jsIF.Name,
			DeviceID:   jsIF.DeviceID,
			Status:     InterfaceStatus(jsIF.Status),
			MACAddress: mac,
			IPAddress:  jsIF.IP,
			VLAN: VLANConfig{
				Mode:         PortMode(jsIF.Mode),
				AccessVLAN:   jsIF.AccessVLAN,
				AllowedVLANs: jsIF.AllowedVLANs,
				NativeVLAN:   jsIF.NativeVLAN,
			},
		}
		if jsIF.Status == "" {
			in.Status = InterfaceUp
		}
		if jsIF.Mode == "" {
			in.VLAN.Mode = PortModePlain
		}
		if err := topo.AddInterface(in); err != nil {
			return nil, fmt.Errorf("applyScenario: interface %q: %w", jsIF.ID, err)
		}
		result.IfaceIDs = append(result.IfaceIDs, jsIF.ID)
	}

	for _, l := range payload.Connections {
		link := &Connection{
			ID:            l.ID,
			InterfaceA:    l.InterfaceA,
			InterfaceB:    l.InterfaceB,
			Status:        ConnectionStatus(l.Status),
			BandwidthMbps: l.BandwidthMbps,
		}
		if l.Status == "" {
			link.Status = ConnectionUp
		}
		if err := topo.AddConnection(link); err != nil {
			return nil, fmt.Errorf("applyScenario: connection %q: %w", l.ID, err)
		}
		result.LinkIDs = append(result.LinkIDs, l.ID)
	}

	if tables != nil {
		for _, e := range payload.StaticARP {
			tables.AddStaticARP(e.DeviceID, e.VLAN, e.IP, e.MAC, time.Time{})
		}
	}

	for _, fl := range payload.Flows {
		proto := model.Protocol(strings.ToUpper(fl.Protocol))
		if fl.Protocol == "" {
			proto = model.ProtocolICMP
		}
		result.Flows = append(result.Flows, model.TrafficFlow{
			ID:             fl.ID,
			SourceDeviceID: fl.Source,
			TargetDeviceID: fl.Target,
			Protocol:       proto,
			VLANID:         fl.VLAN,
			PayloadBytes:   fl.PayloadBytes,
			JitterBytes:    fl.JitterBytes,
			IntervalTicks:  fl.IntervalTicks,
		})
	}

	return result, nil
}

// GenerateMAC derives a stable locally-administered MAC from a device
// and interface ID, so scenarios that omit addressing still get
// distinct, reproducible MACs.
func GenerateMAC(deviceID, interfaceID string) string {
	h := fnv.New64a()
	h.Write([]byte(deviceID))
	h.Write([]byte{0})
	h.Write([]byte(interfaceID))
	sum := h.Sum64()
	return fmt.Sprintf("02:%02X:%02X:%02X:%02X:%02X",
		byte(sum>>32), byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}
