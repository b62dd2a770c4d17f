// Package graph holds the file dependency graph and finds circular imports in it.
package graph

import (
	"cdd/internal/imports"
)

type edgeEntry struct {
	target int
	rec    imports.Record
}

// Graph is a directed multigraph over files. Nodes live in an arena indexed
// by insertion order; edges carry the import that created them.
type Graph struct {
	nodes    []string
	nodeIdx  map[string]int
	outEdges [][]edgeEntry
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make([]string, 0),
		nodeIdx:  make(map[string]int),
		outEdges: make([][]edgeEntry, 0),
	}
}

// AddNode adds a node if it doesn't exist, returns its index.
func (g *Graph) AddNode(path string) int {
	if idx, ok := g.nodeIdx[path]; ok {
		return idx
	}
	idx := len(g.nodes)
	g.nodes = append(g.nodes, path)
	g.nodeIdx[path] = idx
	g.outEdges = append(g.outEdges, nil)
	return idx
}

// AddEdge adds a directed edge between two existing nodes. Parallel edges
// are kept, one per import statement.
func (g *Graph) AddEdge(from, to int, rec imports.Record) {
	g.outEdges[from] = append(g.outEdges[from], edgeEntry{target: to, rec: rec})
}

// Index returns the node index of path.
func (g *Graph) Index(path string) (int, bool) {
	idx, ok := g.nodeIdx[path]
	return idx, ok
}

// Path returns the file of node idx.
func (g *Graph) Path(idx int) string {
	return g.nodes[idx]
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// NumEdges returns the total number of edges.
func (g *Graph) NumEdges() int {
	total := 0
	for _, edges := range g.outEdges {
		total += len(edges)
	}
	return total
}

// Nodes returns all node paths in insertion order.
func (g *Graph) Nodes() []string {
	return g.nodes
}

// Stats summarizes the graph size.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Stats returns the node and edge counts.
func (g *Graph) Stats() Stats {
	return Stats{Nodes: g.NumNodes(), Edges: g.NumEdges()}
}

func (g *Graph) hasSelfEdge(idx int) (imports.Record, bool) {
	for _, e := range g.outEdges[idx] {
		if e.target == idx {
			return e.rec, true
		}
	}
	return imports.Record{}, false
}
