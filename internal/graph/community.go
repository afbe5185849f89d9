package graph

import (
	"sort"

	gonum "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"
)

// Communities partitions the graph by modularity using gonum's Louvain
// implementation at resolution 1. Isolated nodes form singleton communities.
//
// Communities are returned largest first; members are sorted and ties are
// broken by the first member.
func (g *Graph) Communities() [][]string {
	if len(g.nodes) == 0 {
		return nil
	}

	var out [][]string
	if len(g.edges) == 0 {
		for _, id := range g.NodeIDs() {
			out = append(out, []string{id})
		}
		return out
	}

	for _, members := range community.Modularize(g.g, 1, nil).Communities() {
		c := make([]string, 0, len(members))
		for _, m := range members {
			c = append(c, g.byGID[m.ID()].ID)
		}
		if len(c) == 0 {
			continue
		}
		sort.Strings(c)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}

// Modularity scores a partition of the graph at resolution 1.
func (g *Graph) Modularity(communities [][]string) float64 {
	if len(g.edges) == 0 || len(communities) == 0 {
		return 0
	}
	return community.Q(g.g, g.partition(communities), 1)
}

func (g *Graph) partition(communities [][]string) [][]gonum.Node {
	out := make([][]gonum.Node, 0, len(communities))
	for _, c := range communities {
		var members []gonum.Node
		for _, id := range c {
			if n, ok := g.nodes[id]; ok {
				members = append(members, simple.Node(n.gid))
			}
		}
		out = append(out, members)
	}
	return out
}

// CommunityOf returns the first community containing any of ids.
func CommunityOf(communities [][]string, ids ...string) ([]string, bool) {
	for _, c := range communities {
		for _, id := range ids {
			if id == "" {
				continue
			}
			i := sort.SearchStrings(c, id)
			if i < len(c) && c[i] == id {
				return c, true
			}
		}
	}
	return nil, false
}
