package core

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/netlabworks/vlansim/model"
)

// deviceGraph projects the physically usable part of the topology into
// gonum's graph types: links that are up, with both interfaces up and
// both endpoint devices active. Nodes are devices numbered in lexical
// device-ID order, so a traversal that walks From in ascending node-ID
// order breaks equal-length ties the same way on every run. VLAN
// admission is not baked into the structure; it is applied per edge by
// the traversal.
type deviceGraph struct {
	ids   []string
	index map[string]int64
	adj   map[int64][]graph.Node
	links map[edgeKey][]*Connection
}

type edgeKey struct{ u, v int64 }

// linkEdge is one adjacency in the device graph together with the
// parallel physical links that realize it.
type linkEdge struct {
	f, t  graph.Node
	links []*Connection
}

func (e linkEdge) From() graph.Node { return e.f }
func (e linkEdge) To() graph.Node   { return e.t }
func (e linkEdge) ReversedEdge() graph.Edge {
	return linkEdge{f: e.t, t: e.f, links: e.links}
}

// buildGraph snapshots the current topology. Queries rebuild it each
// time, so port flaps and device status changes take effect
// immediately.
func (r *Resolver) buildGraph() *deviceGraph {
	byPair := make(map[[2]string][]*Connection)
	nodeSet := make(map[string]bool)
	for _, link := range r.topo.Connections() {
		if !link.IsUp() {
			continue
		}
		a, b := r.topo.Endpoints(link)
		if a == nil || b == nil || !a.IsUp() || !b.IsUp() {
			continue
		}
		if a.DeviceID == b.DeviceID {
			continue
		}
		devA := r.devices.Device(a.DeviceID)
		devB := r.devices.Device(b.DeviceID)
		if devA == nil || devB == nil || !devA.IsActive() || !devB.IsActive() {
			continue
		}
		pair := [2]string{a.DeviceID, b.DeviceID}
		if pair[1] < pair[0] {
			pair[0], pair[1] = pair[1], pair[0]
		}
		byPair[pair] = append(byPair[pair], link)
		nodeSet[pair[0]] = true
		nodeSet[pair[1]] = true
	}

	g := &deviceGraph{
		ids:   make([]string, 0, len(nodeSet)),
		index: make(map[string]int64, len(nodeSet)),
		adj:   make(map[int64][]graph.Node, len(nodeSet)),
		links: make(map[edgeKey][]*Connection, 2*len(byPair)),
	}
	for id := range nodeSet {
		g.ids = append(g.ids, id)
	}
	sort.Strings(g.ids)
	for i, id := range g.ids {
		g.index[id] = int64(i)
	}
	for pair, links := range byPair {
		u, v := g.index[pair[0]], g.index[pair[1]]
		g.adj[u] = append(g.adj[u], simple.Node(v))
		g.adj[v] = append(g.adj[v], simple.Node(u))
		g.links[edgeKey{u, v}] = links
		g.links[edgeKey{v, u}] = links
	}
	for _, nodes := range g.adj {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	}
	return g
}

// From returns the neighbors of id in ascending node-ID order, which
// by construction is lexical device-ID order.
func (g *deviceGraph) From(id int64) graph.Nodes {
	return iterator.NewOrderedNodes(g.adj[id])
}

// Edge returns the adjacency between uid and vid, or nil when the
// devices are not directly linked.
func (g *deviceGraph) Edge(uid, vid int64) graph.Edge {
	links, ok := g.links[edgeKey{u: uid, v: vid}]
	if !ok {
		return nil
	}
	return linkEdge{f: simple.Node(uid), t: simple.Node(vid), links: links}
}

// vlanFilter returns a traversal edge filter that admits an edge when
// at least one of its parallel links carries vlanID. Untagged queries
// get a nil filter and traverse the raw physical graph.
func (r *Resolver) vlanFilter(vlanID uint16) func(graph.Edge) bool {
	if vlanID == model.VLANNone {
		return nil
	}
	return func(e graph.Edge) bool {
		le, ok := e.(linkEdge)
		if !ok {
			return false
		}
		for _, link := range le.links {
			if r.LinkAdmitsVLAN(link, vlanID) {
				return true
			}
		}
		return false
	}
}
