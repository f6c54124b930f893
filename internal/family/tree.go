package family

import (
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

// TreeNode is one person in a tree view. Private nodes keep only their
// id and edges.
type TreeNode struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Gender     string  `json:"gender"`
	BirthYear  *int    `json:"birth_year"`
	DeathYear  *int    `json:"death_year"`
	Age        *int    `json:"age"`
	IsDeceased bool    `json:"is_deceased"`
	Profession string  `json:"profession"`
	BirthPlace string  `json:"birth_place"`
	Private    bool    `json:"private"`
	Parents    []int64 `json:"parents"`
	Partners   []int64 `json:"partners"`
	Children   []int64 `json:"children"`
}

type TreeData struct {
	Individuals  map[int64]*TreeNode `json:"individuals"`
	RootPersonID int64               `json:"root_person_id"`
}

// Tree builds the browser tree payload centred on root. People for which
// visible returns false keep their place in the structure but carry no
// personal details.
func Tree(g *Graph, root int64, visible func(*model.Person) bool, now time.Time) TreeData {
	td := TreeData{
		Individuals:  make(map[int64]*TreeNode, g.Len()),
		RootPersonID: root,
	}
	for _, p := range g.People() {
		n := &TreeNode{
			ID:       p.ID,
			Parents:  nonNil(g.Parents(p.ID)),
			Partners: nonNil(g.Partners(p.ID)),
			Children: nonNil(g.Children(p.ID)),
		}
		if visible != nil && !visible(p) {
			n.Name = "Private"
			n.Gender = "U"
			n.Private = true
			td.Individuals[p.ID] = n
			continue
		}
		n.Name = p.FullName()
		n.Gender = string(p.Gender)
		if n.Gender == "" {
			n.Gender = "U"
		}
		if p.BirthDate != nil {
			y := p.BirthYear()
			n.BirthYear = &y
		}
		if p.DeathDate != nil {
			y := p.DeathYear()
			n.DeathYear = &y
		}
		if !p.IsDeceased {
			if age, ok := p.Age(now); ok {
				n.Age = &age
			}
		}
		n.IsDeceased = p.IsDeceased
		n.Profession = p.Profession
		n.BirthPlace = p.BirthPlace
		td.Individuals[p.ID] = n
	}
	return td
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
