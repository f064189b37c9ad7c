package task

// findCycle runs a depth-first search over the dependency graph starting at
// root and returns the first cycle found as a path of task ids, or nil. The
// recursion stack, not the visited set, is what detects the cycle: a node
// reached twice on the current path closes a loop.
func findCycle(graph map[string][]string, root string) []string {
	visited := make(map[string]bool, len(graph))
	onStack := make(map[string]bool, len(graph))
	var path []string

	var visit func(node string) []string
	visit = func(node string) []string {
		if onStack[node] {
			for i, entry := range path {
				if entry == node {
					return append(append([]string{}, path[i:]...), node)
				}
			}
			return []string{node, node}
		}
		if visited[node] {
			return nil
		}
		visited[node] = true
		onStack[node] = true
		path = append(path, node)
		for _, neighbor := range graph[node] {
			if cycle := visit(neighbor); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		onStack[node] = false
		return nil
	}

	return visit(root)
}
