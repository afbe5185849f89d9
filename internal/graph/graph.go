// Package graph provides the in-memory relationship graph used for claim
// network analysis. Topology lives in a gonum undirected graph; this package
// adds the entity metadata the detectors report on.
package graph

import (
	"slices"
	"sort"

	"gonum.org/v1/gonum/graph/simple"
)

// NodeType is the kind of entity a node represents.
type NodeType string

const (
	NodeClaimant NodeType = "claimant"
	NodeProvider NodeType = "provider"
	NodeAttorney NodeType = "attorney"
	NodePhone    NodeType = "phone"
	NodeEmail    NodeType = "email"
	NodeAddress  NodeType = "address"
)

// EdgeType is the kind of relation between two nodes.
type EdgeType string

const (
	EdgeClaimantProvider EdgeType = "claimant_provider"
	EdgeClaimantAttorney EdgeType = "claimant_attorney"
	EdgeHasPhone         EdgeType = "has_phone"
	EdgeHasEmail         EdgeType = "has_email"
	EdgeHasAddress       EdgeType = "has_address"
)

// Node is an entity together with every claim that touched it.
type Node struct {
	ID       string
	Type     NodeType
	Label    string
	ClaimIDs []string

	gid int64
}

// Edge is an undirected relation and the claims that produced it.
type Edge struct {
	Type     EdgeType
	ClaimIDs []string
}

// Graph is an undirected simple graph. It is not safe for concurrent
// mutation; build it once and share it read-only.
type Graph struct {
	g     *simple.UndirectedGraph
	nodes map[string]*Node
	byGID map[int64]*Node
	edges map[[2]int64]*Edge
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		g:     simple.NewUndirectedGraph(),
		nodes: make(map[string]*Node),
		byGID: make(map[int64]*Node),
		edges: make(map[[2]int64]*Edge),
	}
}

// AddNode adds a node or records another claim on an existing one.
func (g *Graph) AddNode(id string, typ NodeType, label, claimID string) *Node {
	n, ok := g.nodes[id]
	if !ok {
		gn := g.g.NewNode()
		g.g.AddNode(gn)
		n = &Node{ID: id, Type: typ, Label: label, gid: gn.ID()}
		g.nodes[id] = n
		g.byGID[n.gid] = n
	}
	if claimID != "" && !slices.Contains(n.ClaimIDs, claimID) {
		n.ClaimIDs = append(n.ClaimIDs, claimID)
	}
	return n
}

// AddEdge connects two existing nodes. Self loops and unknown nodes are
// ignored. Repeated edges accumulate claim ids.
func (g *Graph) AddEdge(a, b string, typ EdgeType, claimID string) {
	na, ok := g.nodes[a]
	if !ok {
		return
	}
	nb, ok := g.nodes[b]
	if !ok || na == nb {
		return
	}

	key := edgeKey(na.gid, nb.gid)
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{Type: typ}
		g.edges[key] = e
		g.g.SetEdge(g.g.NewEdge(simple.Node(na.gid), simple.Node(nb.gid)))
	}
	if claimID != "" && !slices.Contains(e.ClaimIDs, claimID) {
		e.ClaimIDs = append(e.ClaimIDs, claimID)
	}
}

func edgeKey(x, y int64) [2]int64 {
	if x > y {
		x, y = y, x
	}
	return [2]int64{x, y}
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Edge returns the edge between a and b.
func (g *Graph) Edge(a, b string) (*Edge, bool) {
	na, ok1 := g.nodes[a]
	nb, ok2 := g.nodes[b]
	if !ok1 || !ok2 {
		return nil, false
	}
	e, ok := g.edges[edgeKey(na.gid, nb.gid)]
	return e, ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.g.Nodes().Len() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return g.g.Edges().Len() }

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Neighbors returns the sorted ids adjacent to id.
func (g *Graph) Neighbors(id string) []string {
	return g.NeighborsOfType(id, "")
}

// NeighborsOfType returns the sorted neighbors of id with the given node
// type. An empty type matches every neighbor.
func (g *Graph) NeighborsOfType(id string, typ NodeType) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []string
	for it := g.g.From(n.gid); it.Next(); {
		nb := g.byGID[it.Node().ID()]
		if typ == "" || nb.Type == typ {
			out = append(out, nb.ID)
		}
	}
	sort.Strings(out)
	return out
}

// Degree returns the number of neighbors of id.
func (g *Graph) Degree(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return g.g.From(n.gid).Len()
}

// Density is 2E / (N(N-1)); graphs with fewer than two nodes have density 0.
func (g *Graph) Density() float64 {
	n := g.NodeCount()
	if n < 2 {
		return 0
	}
	return 2 * float64(g.EdgeCount()) / float64(n*(n-1))
}

// Subgraph returns the graph induced by ids. Unknown ids are skipped.
func (g *Graph) Subgraph(ids []string) *Graph {
	sub := New()
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			cp := sub.AddNode(id, n.Type, n.Label, "")
			cp.ClaimIDs = slices.Clone(n.ClaimIDs)
		}
	}
	for key, e := range g.edges {
		a, b := g.byGID[key[0]].ID, g.byGID[key[1]].ID
		if _, ok := sub.nodes[a]; !ok {
			continue
		}
		if _, ok := sub.nodes[b]; !ok {
			continue
		}
		sub.AddEdge(a, b, e.Type, "")
		cp, _ := sub.Edge(a, b)
		cp.ClaimIDs = slices.Clone(e.ClaimIDs)
	}
	return sub
}
