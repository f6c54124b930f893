package family

import "github.com/dukerupert/kinship/internal/model"

// Statistics is a headcount and depth summary of a graph.
type Statistics struct {
	TotalPeople          int `json:"total_people"`
	LivingPeople         int `json:"living_people"`
	DeceasedPeople       int `json:"deceased_people"`
	MaleCount            int `json:"male_count"`
	FemaleCount          int `json:"female_count"`
	OtherGenderCount     int `json:"other_gender_count"`
	OldestBirthYear      int `json:"oldest_birth_year,omitempty"`
	YoungestBirthYear    int `json:"youngest_birth_year,omitempty"`
	YearSpan             int `json:"year_span,omitempty"`
	Partnerships         int `json:"partnerships"`
	ParentChildRelations int `json:"parent_child_relations"`
	MaxGenerations       int `json:"max_generations,omitempty"`
	DeepestGeneration    int `json:"deepest_generation,omitempty"`
}

// Stats summarizes the graph. Generation depth is measured from every
// person without parents down through their descendants.
func Stats(g *Graph) Statistics {
	var s Statistics
	for _, p := range g.People() {
		s.TotalPeople++
		if p.IsDeceased {
			s.DeceasedPeople++
		}
		switch p.Gender {
		case model.GenderMale:
			s.MaleCount++
		case model.GenderFemale:
			s.FemaleCount++
		case model.GenderOther:
			s.OtherGenderCount++
		}
		if p.BirthDate != nil {
			y := p.BirthYear()
			if s.OldestBirthYear == 0 || y < s.OldestBirthYear {
				s.OldestBirthYear = y
			}
			if y > s.YoungestBirthYear {
				s.YoungestBirthYear = y
			}
		}
	}
	s.LivingPeople = s.TotalPeople - s.DeceasedPeople
	if s.OldestBirthYear != 0 {
		s.YearSpan = s.YoungestBirthYear - s.OldestBirthYear
	}
	s.Partnerships = len(g.partnerships)
	s.ParentChildRelations = len(g.parentEdges)

	found := false
	lo, hi := 0, 0
	for _, root := range g.Roots() {
		for _, d := range g.Descendants(root) {
			level, ok := g.GenerationLevel(d, root)
			if !ok {
				continue
			}
			if !found || level < lo {
				lo = level
			}
			if !found || level > hi {
				hi = level
			}
			found = true
		}
	}
	if found {
		s.MaxGenerations = hi - lo + 1
		s.DeepestGeneration = hi
	}
	return s
}
