package family

// GenerationLevel returns the signed generation offset of person relative to
// root: descendants are positive, ancestors negative. The walk is a
// breadth-first search over parent and child edges and stops at the first
// encounter with root. ok is false when either id is unknown or root is not
// reachable.
func (g *Graph) GenerationLevel(person, root int64) (level int, ok bool) {
	if !g.has(person) || !g.has(root) {
		return 0, false
	}
	if person == root {
		return 0, true
	}

	type step struct {
		id    int64
		level int
	}
	visited := map[int64]bool{person: true}
	queue := []step{{person, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		// The start is one generation below each parent and above each child.
		for _, p := range g.parents[cur.id] {
			if p == root {
				return cur.level + 1, true
			}
			if !visited[p] {
				visited[p] = true
				queue = append(queue, step{p, cur.level + 1})
			}
		}
		for _, c := range g.children[cur.id] {
			if c == root {
				return cur.level - 1, true
			}
			if !visited[c] {
				visited[c] = true
				queue = append(queue, step{c, cur.level - 1})
			}
		}
	}
	return 0, false
}

// DefaultRoot follows first parents upward from id and returns the topmost
// ancestor reached. Cycles stop the climb at the last unvisited person.
func (g *Graph) DefaultRoot(id int64) int64 {
	visited := map[int64]bool{id: true}
	cur := id
	for {
		ps := g.parents[cur]
		if len(ps) == 0 || visited[ps[0]] {
			return cur
		}
		cur = ps[0]
		visited[cur] = true
	}
}
