package family

// Relationship is what one person is to another, as returned by Classify.
type Relationship string

const (
	SamePerson      Relationship = "same_person"
	Parent          Relationship = "parent"
	Child           Relationship = "child"
	Partner         Relationship = "partner"
	Sibling         Relationship = "sibling"
	Grandparent     Relationship = "grandparent"
	Grandchild      Relationship = "grandchild"
	Cousin          Relationship = "cousin"
	AuntUncle       Relationship = "aunt_uncle"
	NieceNephew     Relationship = "niece_nephew"
	DistantRelative Relationship = "distant_relative"
)

var relationshipLabels = map[Relationship]string{
	SamePerson:      "Same person",
	Parent:          "Parent",
	Child:           "Child",
	Partner:         "Partner",
	Sibling:         "Sibling",
	Grandparent:     "Grandparent",
	Grandchild:      "Grandchild",
	Cousin:          "Cousin",
	AuntUncle:       "Aunt/Uncle",
	NieceNephew:     "Niece/Nephew",
	DistantRelative: "Distant relative",
}

// Label returns the display string for a relationship kind.
func Label(r Relationship) string {
	if l, ok := relationshipLabels[r]; ok {
		return l
	}
	return "Unknown relationship"
}

// Classify reports what a is to b. Checks run in a fixed priority order and
// the first match wins; anything unmatched is a distant relative.
func (g *Graph) Classify(a, b int64) Relationship {
	if a == b {
		return SamePerson
	}
	switch {
	case contains(g.parents[b], a):
		return Parent
	case contains(g.children[b], a):
		return Child
	case contains(g.partners[b], a):
		return Partner
	case contains(g.Siblings(b), a):
		return Sibling
	case contains(g.Grandparents(b), a):
		return Grandparent
	case contains(g.Grandchildren(b), a):
		return Grandchild
	}

	if intersects(g.Grandparents(a), g.Grandparents(b)) {
		return Cousin
	}

	for _, sib := range g.Siblings(a) {
		if contains(g.children[sib], b) {
			return AuntUncle
		}
	}
	for _, sib := range g.Siblings(b) {
		if contains(g.children[sib], a) {
			return NieceNephew
		}
	}
	return DistantRelative
}
