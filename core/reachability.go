package core

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/netlabworks/vlansim/model"
)

// DeviceView is the read side of the device store the resolvers need.
// kb.DeviceBase satisfies it.
type DeviceView interface {
	Device(id string) *model.Device
}

// Resolver answers reachability and path queries over a topology plus
// the device store. It holds no state of its own, so one resolver can
// be shared freely.
type Resolver struct {
	topo    *Topology
	devices DeviceView
}

// NewResolver creates a resolver over the given topology and devices.
func NewResolver(topo *Topology, devices DeviceView) *Resolver {
	return &Resolver{topo: topo, devices: devices}
}

// Reachable computes the set of device IDs reachable from src within
// VLAN vlanID. The source itself is included when it exists and is
// active. A vlanID of model.VLANNone means untagged traffic, for
// which VLAN admission is skipped and only physical state matters.
func (r *Resolver) Reachable(src string, vlanID uint16) []string {
	start := r.devices.Device(src)
	if start == nil || !start.IsActive() {
		return nil
	}

	g := r.buildGraph()
	uid, ok := g.index[src]
	if !ok {
		// Active but not on any usable link.
		return []string{src}
	}

	var out []string
	bfs := traverse.BreadthFirst{
		Visit:    func(n graph.Node) { out = append(out, g.ids[n.ID()]) },
		Traverse: r.vlanFilter(vlanID),
	}
	bfs.Walk(g, simple.Node(uid), nil)
	sort.Strings(out)
	return out
}

// ReachableHosts narrows Reachable down to active end hosts, excluding
// the source. Broadcast fan-out uses this.
func (r *Resolver) ReachableHosts(src string, vlanID uint16) []string {
	var hosts []string
	for _, id := range r.Reachable(src, vlanID) {
		if id == src {
			continue
		}
		dev := r.devices.Device(id)
		if dev != nil && dev.Kind == model.KindEndHost && dev.IsActive() {
			hosts = append(hosts, id)
		}
	}
	return hosts
}

// linkAllowsVLAN applies the switchport admission rules for a link.
// Only switch-owned ports filter: when both ends sit on switches, both
// ports must permit the VLAN; when one end is a switch, that side
// decides; host-to-host links never filter.
func (r *Resolver) linkAllowsVLAN(a, b *Interface, devA, devB *model.Device, vlanID uint16) bool {
	switchA := devA.IsSwitch()
	switchB := devB.IsSwitch()
	switch {
	case switchA && switchB:
		return a.PermitsVLAN(vlanID) && b.PermitsVLAN(vlanID)
	case switchA:
		return a.PermitsVLAN(vlanID)
	case switchB:
		return b.PermitsVLAN(vlanID)
	default:
		return true
	}
}
