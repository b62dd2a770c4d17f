package graph

// StronglyConnected returns the strongly connected components of g using
// Kosaraju's algorithm. Both passes are iterative so deep import chains do
// not grow the goroutine stack. Components list node indices.
func (g *Graph) StronglyConnected() [][]int {
	n := len(g.nodes)

	// Pass 1: record nodes by DFS finish time.
	order := make([]int, 0, n)
	visited := make([]bool, n)
	type frame struct {
		node, next int
	}
	for root := 0; root < n; root++ {
		if visited[root] {
			continue
		}
		visited[root] = true
		stack := []frame{{node: root}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(g.outEdges[top.node]) {
				target := g.outEdges[top.node][top.next].target
				top.next++
				if !visited[target] {
					visited[target] = true
					stack = append(stack, frame{node: target})
				}
				continue
			}
			order = append(order, top.node)
			stack = stack[:len(stack)-1]
		}
	}

	reverse := make([][]int, n)
	for from, edges := range g.outEdges {
		for _, e := range edges {
			reverse[e.target] = append(reverse[e.target], from)
		}
	}

	// Pass 2: flood the transposed graph in decreasing finish time.
	component := make([]int, n)
	for i := range component {
		component[i] = -1
	}
	var components [][]int
	for i := n - 1; i >= 0; i-- {
		root := order[i]
		if component[root] >= 0 {
			continue
		}
		id := len(components)
		members := []int{root}
		component[root] = id
		stack := []int{root}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, src := range reverse[node] {
				if component[src] < 0 {
					component[src] = id
					members = append(members, src)
					stack = append(stack, src)
				}
			}
		}
		components = append(components, members)
	}
	return components
}
