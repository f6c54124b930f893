// Package family models the genealogy relationship graph: traversal,
// relationship classification, generation offsets, consistency checks and
// GEDCOM export over an in-memory snapshot of people and their edges.
package family

import (
	"slices"

	"github.com/dukerupert/kinship/internal/model"
)

// Graph is an immutable adjacency snapshot. Only confirmed edges between
// known, distinct people are kept.
type Graph struct {
	people       map[int64]*model.Person
	ids          []int64
	parents      map[int64][]int64
	children     map[int64][]int64
	partners     map[int64][]int64
	parentEdges  []model.ParentChild
	partnerships []model.Partnership
}

// NewGraph indexes people and their confirmed edges.
func NewGraph(people []model.Person, parentChild []model.ParentChild, partnerships []model.Partnership) *Graph {
	g := &Graph{
		people:   make(map[int64]*model.Person, len(people)),
		parents:  make(map[int64][]int64),
		children: make(map[int64][]int64),
		partners: make(map[int64][]int64),
	}

	for i := range people {
		p := people[i]
		if _, dup := g.people[p.ID]; dup {
			continue
		}
		g.people[p.ID] = &p
		g.ids = append(g.ids, p.ID)
	}
	slices.Sort(g.ids)

	type pair struct{ a, b int64 }
	seenEdge := make(map[pair]bool)
	for _, e := range parentChild {
		if e.Status != model.StatusConfirmed || e.ParentID == e.ChildID {
			continue
		}
		if !g.has(e.ParentID) || !g.has(e.ChildID) {
			continue
		}
		key := pair{e.ParentID, e.ChildID}
		if seenEdge[key] {
			continue
		}
		seenEdge[key] = true
		g.parents[e.ChildID] = append(g.parents[e.ChildID], e.ParentID)
		g.children[e.ParentID] = append(g.children[e.ParentID], e.ChildID)
		g.parentEdges = append(g.parentEdges, e)
	}

	seenPair := make(map[pair]bool)
	for _, p := range partnerships {
		if p.Status != model.StatusConfirmed || p.Person1ID == p.Person2ID {
			continue
		}
		if !g.has(p.Person1ID) || !g.has(p.Person2ID) {
			continue
		}
		a, b := model.NormalizePair(p.Person1ID, p.Person2ID)
		if seenPair[pair{a, b}] {
			continue
		}
		seenPair[pair{a, b}] = true
		g.partners[a] = append(g.partners[a], b)
		g.partners[b] = append(g.partners[b], a)
		g.partnerships = append(g.partnerships, p)
	}

	for _, m := range []map[int64][]int64{g.parents, g.children, g.partners} {
		for id := range m {
			slices.Sort(m[id])
		}
	}
	slices.SortFunc(g.partnerships, func(x, y model.Partnership) int {
		switch {
		case x.ID < y.ID:
			return -1
		case x.ID > y.ID:
			return 1
		}
		return 0
	})
	return g
}

func (g *Graph) has(id int64) bool {
	_, ok := g.people[id]
	return ok
}

// Lookup returns the person with the given id.
func (g *Graph) Lookup(id int64) (*model.Person, bool) {
	p, ok := g.people[id]
	return p, ok
}

// People returns every person in id order.
func (g *Graph) People() []*model.Person {
	out := make([]*model.Person, 0, len(g.ids))
	for _, id := range g.ids {
		out = append(out, g.people[id])
	}
	return out
}

// Len returns the number of people in the graph.
func (g *Graph) Len() int { return len(g.ids) }

// Subgraph returns a graph of the people keep accepts and the edges
// between them.
func (g *Graph) Subgraph(keep func(*model.Person) bool) *Graph {
	var people []model.Person
	for _, id := range g.ids {
		if p := g.people[id]; keep(p) {
			people = append(people, *p)
		}
	}
	return NewGraph(people, g.parentEdges, g.partnerships)
}

// ParentChildEdges returns the confirmed parent-child edges kept by the graph.
func (g *Graph) ParentChildEdges() []model.ParentChild {
	return slices.Clone(g.parentEdges)
}

// Partnerships returns the confirmed, deduplicated partnerships ordered by id.
func (g *Graph) Partnerships() []model.Partnership {
	return slices.Clone(g.partnerships)
}

// Parents, Children and Partners return the sorted ids adjacent to id.
func (g *Graph) Parents(id int64) []int64  { return slices.Clone(g.parents[id]) }
func (g *Graph) Children(id int64) []int64 { return slices.Clone(g.children[id]) }
func (g *Graph) Partners(id int64) []int64 { return slices.Clone(g.partners[id]) }

// Siblings returns the union of the children of every parent of id,
// excluding id itself, sorted and deduplicated.
func (g *Graph) Siblings(id int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, p := range g.parents[id] {
		for _, c := range g.children[p] {
			if c == id || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}

// Grandparents returns the parents of id's parents.
func (g *Graph) Grandparents(id int64) []int64 {
	return g.hop(g.parents[id], g.parents)
}

// Grandchildren returns the children of id's children.
func (g *Graph) Grandchildren(id int64) []int64 {
	return g.hop(g.children[id], g.children)
}

func (g *Graph) hop(from []int64, edges map[int64][]int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, x := range from {
		for _, y := range edges[x] {
			if !seen[y] {
				seen[y] = true
				out = append(out, y)
			}
		}
	}
	slices.Sort(out)
	return out
}

// Resolve maps ids to people, skipping ids the graph does not know.
func (g *Graph) Resolve(ids []int64) []*model.Person {
	out := make([]*model.Person, 0, len(ids))
	for _, id := range ids {
		if p, ok := g.people[id]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Descendants returns id followed by all of its descendants in depth-first
// order. Each person appears once even when the data contains cycles.
func (g *Graph) Descendants(id int64) []int64 {
	if !g.has(id) {
		return nil
	}
	visited := make(map[int64]bool)
	var out []int64
	var walk func(int64)
	walk = func(cur int64) {
		if visited[cur] {
			return
		}
		visited[cur] = true
		out = append(out, cur)
		for _, c := range g.children[cur] {
			walk(c)
		}
	}
	walk(id)
	return out
}

// Roots returns people with no recorded parents, in id order.
func (g *Graph) Roots() []int64 {
	var out []int64
	for _, id := range g.ids {
		if len(g.parents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

func contains(ids []int64, id int64) bool {
	return slices.Contains(ids, id)
}

func intersects(a, b []int64) bool {
	for _, x := range a {
		if slices.Contains(b, x) {
			return true
		}
	}
	return false
}
