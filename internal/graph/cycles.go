package graph

import (
	"sort"
	"strings"

	"cdd/internal/imports"
	"cdd/internal/paths"
)

// HashLength is the number of hex characters in cycle and run hashes.
const HashLength = 12

// KeySeparator joins the files of a canonical cycle key.
const KeySeparator = " > "

// CycleEdge is one import along a cycle. From and To are absolute paths;
// Line and Text describe the import statement in From.
type CycleEdge struct {
	From string
	To   string
	Line int
	Text string
	Kind imports.Kind
}

// Cycle is one closed import path through a strongly connected component.
type Cycle struct {
	Edges []CycleEdge
	Hash  string
}

// Files returns the importing file of each edge, in path order.
func (c Cycle) Files() []string {
	files := make([]string, len(c.Edges))
	for i, e := range c.Edges {
		files[i] = e.From
	}
	return files
}

// RelativeFiles returns Files relative to root with forward slashes.
func (c Cycle) RelativeFiles(root string) []string {
	files := c.Files()
	for i, f := range files {
		files[i] = paths.RelativeString(f, root)
	}
	return files
}

// Key is the canonical identity of the cycle: its relative files rotated to
// start at the smallest one, joined by KeySeparator.
func (c Cycle) Key(root string) string {
	files := c.RelativeFiles(root)
	if len(files) == 0 {
		return ""
	}
	minIdx := 0
	for i, f := range files {
		if f < files[minIdx] {
			minIdx = i
		}
	}
	rotated := append(append([]string{}, files[minIdx:]...), files[:minIdx]...)
	return strings.Join(rotated, KeySeparator)
}

// CycleHash hashes the sorted relative paths of files, so it does not depend
// on where the traversal started or on the absolute location of root.
func CycleHash(files []string, root string) string {
	rel := make([]string, len(files))
	for i, f := range files {
		rel[i] = paths.RelativeString(f, root)
	}
	sort.Strings(rel)
	return paths.HashStrings(rel, HashLength)
}

// AggregateHash hashes the sorted hashes of cycles into one run-level value.
func AggregateHash(cycles []Cycle) string {
	hashes := make([]string, len(cycles))
	for i, c := range cycles {
		hashes[i] = c.Hash
	}
	sort.Strings(hashes)
	return paths.HashStrings(hashes, HashLength)
}

// Dedupe drops cycles whose canonical key was already seen, keeping the first.
func Dedupe(cycles []Cycle, root string) []Cycle {
	seen := make(map[string]bool, len(cycles))
	out := make([]Cycle, 0, len(cycles))
	for _, c := range cycles {
		key := c.Key(root)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// Cycles returns one representative cycle per cyclic component: every
// component of two or more files, and single files that import themselves.
// The result is deduplicated, hashed, and ordered by canonical key.
func (g *Graph) Cycles(root string) []Cycle {
	var cycles []Cycle
	for _, comp := range g.StronglyConnected() {
		var c Cycle
		if len(comp) == 1 {
			rec, ok := g.hasSelfEdge(comp[0])
			if !ok {
				continue
			}
			c.Edges = []CycleEdge{g.cycleEdge(comp[0], comp[0], rec)}
		} else {
			c.Edges = g.materialize(comp, root)
		}
		if len(c.Edges) == 0 {
			continue
		}
		c.Hash = CycleHash(c.Files(), root)
		cycles = append(cycles, c)
	}

	cycles = Dedupe(cycles, root)
	sort.SliceStable(cycles, func(i, j int) bool {
		return cycles[i].Key(root) < cycles[j].Key(root)
	})
	return cycles
}

type arc struct {
	from, to int
	rec      imports.Record
}

// materialize walks one closed path through a multi-file component. It
// starts at the file with the smallest relative path and greedily follows
// edges to unvisited files, closing on the start when it can. A walk that
// dead-ends falls back to the shortest cycle through the start.
func (g *Graph) materialize(comp []int, root string) []CycleEdge {
	inComp := make(map[int]bool, len(comp))
	for _, n := range comp {
		inComp[n] = true
	}

	members := append([]int(nil), comp...)
	sort.Ints(members)

	adj := make(map[int][]arc, len(members))
	for _, from := range members {
		for _, e := range g.outEdges[from] {
			if inComp[e.target] {
				adj[from] = append(adj[from], arc{from: from, to: e.target, rec: e.rec})
			}
		}
	}

	start, startRel := -1, ""
	for _, n := range members {
		if len(adj[n]) == 0 {
			continue
		}
		rel := paths.RelativeString(g.nodes[n], root)
		if start < 0 || rel < startRel {
			start, startRel = n, rel
		}
	}
	if start < 0 {
		return nil
	}

	path, closed := greedyWalk(adj, start)
	if !closed {
		path = shortestCycle(adj, start)
	}

	edges := make([]CycleEdge, len(path))
	for i, a := range path {
		edges[i] = g.cycleEdge(a.from, a.to, a.rec)
	}
	return edges
}

func greedyWalk(adj map[int][]arc, start int) ([]arc, bool) {
	visited := map[int]bool{start: true}
	var path []arc
	cur := start
	for {
		var next *arc
		for i := range adj[cur] {
			if a := &adj[cur][i]; !visited[a.to] {
				next = a
				break
			}
		}
		if next == nil {
			for i := range adj[cur] {
				if a := &adj[cur][i]; a.to == start {
					next = a
					break
				}
			}
		}
		if next == nil {
			return path, false
		}
		path = append(path, *next)
		if next.to == start {
			return path, true
		}
		visited[next.to] = true
		cur = next.to
	}
}

// shortestCycle runs a BFS from start and returns the first path back to it.
// Within a strongly connected component such a path always exists.
func shortestCycle(adj map[int][]arc, start int) []arc {
	via := make(map[int]arc)
	seen := map[int]bool{start: true}
	queue := []int{start}

	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, a := range adj[u] {
			if a.to == start {
				path := []arc{a}
				for n := u; n != start; n = via[n].from {
					path = append(path, via[n])
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if !seen[a.to] {
				seen[a.to] = true
				via[a.to] = a
				queue = append(queue, a.to)
			}
		}
	}
	return nil
}

func (g *Graph) cycleEdge(from, to int, rec imports.Record) CycleEdge {
	return CycleEdge{
		From: g.nodes[from],
		To:   g.nodes[to],
		Line: rec.Line,
		Text: rec.Text,
		Kind: rec.Kind,
	}
}
