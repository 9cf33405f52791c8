package graphstore

import (
	"slices"

	"github.com/nao1215/xspider/internal/model"
)

// Graph is a read-only snapshot of the follow graph.
//
// IDs are sorted, and every out-list is sorted, so algorithms iterating
// the graph are deterministic regardless of storage order.
type Graph struct {
	// IDs lists every node, including edge endpoints that have no node
	// record of their own.
	IDs []string

	// Out maps a node to the nodes it follows.
	Out map[string][]string

	// In maps a node to the nodes that follow it.
	In map[string][]string

	// Attrs holds the stored node records keyed by id.
	Attrs map[string]model.Node
}

// NewGraph builds a snapshot from node and edge lists.
func NewGraph(nodes []model.Node, edges []model.Edge) *Graph {
	g := &Graph{
		Out:   make(map[string][]string),
		In:    make(map[string][]string),
		Attrs: make(map[string]model.Node, len(nodes)),
	}

	seen := make(map[string]bool, len(nodes))
	addID := func(id string) {
		if !seen[id] {
			seen[id] = true
			g.IDs = append(g.IDs, id)
		}
	}

	for _, n := range nodes {
		g.Attrs[n.ID] = n
		addID(n.ID)
	}

	type key struct{ s, t string }
	dup := make(map[key]bool, len(edges))
	for _, e := range edges {
		k := key{e.SourceID, e.TargetID}
		if dup[k] || e.SourceID == e.TargetID {
			continue
		}
		dup[k] = true
		addID(e.SourceID)
		addID(e.TargetID)
		g.Out[e.SourceID] = append(g.Out[e.SourceID], e.TargetID)
		g.In[e.TargetID] = append(g.In[e.TargetID], e.SourceID)
	}

	slices.Sort(g.IDs)
	for id := range g.Out {
		slices.Sort(g.Out[id])
	}
	for id := range g.In {
		slices.Sort(g.In[id])
	}
	return g
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.IDs)
}

// OutDegree returns how many nodes id follows.
func (g *Graph) OutDegree(id string) int {
	return len(g.Out[id])
}

// InDegree returns how many nodes follow id.
func (g *Graph) InDegree(id string) int {
	return len(g.In[id])
}

// SeedFollowers returns how many seed nodes follow id.
func (g *Graph) SeedFollowers(id string) int {
	n := 0
	for _, src := range g.In[id] {
		if g.Attrs[src].IsSeed {
			n++
		}
	}
	return n
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, out := range g.Out {
		n += len(out)
	}
	return n
}
