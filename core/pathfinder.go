package core

import (
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"

	"github.com/netlabworks/vlansim/model"
)

// FindPath returns the shortest device-ID path from src to dst within
// vlanID, or nil when dst is unreachable. Breadth-first over the
// device graph with neighbors visited in lexical order, so
// equal-length paths always resolve to the same one. src == dst yields
// the single-element path.
func (r *Resolver) FindPath(src, dst string, vlanID uint16) []string {
	srcDev := r.devices.Device(src)
	dstDev := r.devices.Device(dst)
	if srcDev == nil || dstDev == nil || !srcDev.IsActive() || !dstDev.IsActive() {
		return nil
	}
	if src == dst {
		return []string{src}
	}

	g := r.buildGraph()
	uid, okU := g.index[src]
	vid, okV := g.index[dst]
	if !okU || !okV {
		return nil
	}

	// The first admitted edge into a node is its BFS parent; the walk
	// offers later edges to the same node as filter probes only.
	parent := make(map[int64]int64)
	admits := r.vlanFilter(vlanID)
	bfs := traverse.BreadthFirst{Traverse: func(e graph.Edge) bool {
		if admits != nil && !admits(e) {
			return false
		}
		to := e.To().ID()
		if _, seen := parent[to]; !seen && to != uid {
			parent[to] = e.From().ID()
		}
		return true
	}}

	found := bfs.Walk(g, simple.Node(uid), func(n graph.Node, _ int) bool {
		return n.ID() == vid
	})
	if found == nil {
		return nil
	}

	var rev []string
	for cur := vid; ; cur = parent[cur] {
		rev = append(rev, g.ids[cur])
		if cur == uid {
			break
		}
	}
	path := make([]string, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		path = append(path, rev[i])
	}
	return path
}

// InferVLAN derives the VLAN a packet from deviceID would carry by
// inspecting the switch-side port of the device's uplink. An access
// port tags with its access VLAN, a trunk with its native VLAN. Hosts
// with no switch uplink, or an ambiguous one, send untagged.
func (r *Resolver) InferVLAN(deviceID string) uint16 {
	links := r.topo.ConnectionsForDevice(deviceID)
	var switchPort *Interface
	for _, link := range links {
		a, b := r.topo.Endpoints(link)
		for _, in := range []*Interface{a, b} {
			if in == nil || in.DeviceID == deviceID {
				continue
			}
			dev := r.devices.Device(in.DeviceID)
			if dev == nil || !dev.IsSwitch() {
				continue
			}
			if switchPort != nil && switchPort != in {
				// Multiple uplinks, no single answer.
				return model.VLANNone
			}
			switchPort = in
		}
	}
	if switchPort == nil {
		return model.VLANNone
	}
	switch switchPort.VLAN.Mode {
	case PortModeAccess:
		return switchPort.VLAN.AccessVLAN
	case PortModeTrunk:
		return switchPort.VLAN.NativeVLAN
	default:
		return model.VLANNone
	}
}

// UsableLink returns the first (lexically by ID) physically usable
// link between two adjacent devices, ignoring VLAN admission. The
// VLAN check is deliberately separate so callers can distinguish a
// missing route from a VLAN filter.
func (r *Resolver) UsableLink(devA, devB string) *Connection {
	for _, link := range r.topo.ConnectionsForDevice(devA) {
		if !link.IsUp() {
			continue
		}
		a, b := r.topo.Endpoints(link)
		if a == nil || b == nil || !a.IsUp() || !b.IsUp() {
			continue
		}
		da, db := a.DeviceID, b.DeviceID
		if !(da == devA && db == devB) && !(da == devB && db == devA) {
			continue
		}
		dA := r.devices.Device(da)
		dB := r.devices.Device(db)
		if dA == nil || dB == nil || !dA.IsActive() || !dB.IsActive() {
			continue
		}
		return link
	}
	return nil
}

// LinkAdmitsVLAN reports whether an already-usable link carries the
// given VLAN under the switchport rules.
func (r *Resolver) LinkAdmitsVLAN(link *Connection, vlanID uint16) bool {
	a, b := r.topo.Endpoints(link)
	if a == nil || b == nil {
		return false
	}
	devA := r.devices.Device(a.DeviceID)
	devB := r.devices.Device(b.DeviceID)
	if devA == nil || devB == nil {
		return false
	}
	return r.linkAllowsVLAN(a, b, devA, devB, vlanID)
}

// IngressInterface returns the interface on toDevice at which a frame
// arriving over link would ingress, or nil when link does not attach
// to toDevice.
func (r *Resolver) IngressInterface(link *Connection, toDevice string) *Interface {
	a, b := r.topo.Endpoints(link)
	if a != nil && a.DeviceID == toDevice {
		return a
	}
	if b != nil && b.DeviceID == toDevice {
		return b
	}
	return nil
}
