package family

import (
	"fmt"
	"strings"

	"github.com/dukerupert/kinship/internal/model"
)

// IssueKind identifies which consistency rule an Issue breaks.
type IssueKind string

const (
	IssueCircular       IssueKind = "circular"
	IssueAgeGap         IssueKind = "age_gap"
	IssueBornAfterDeath IssueKind = "born_after_death"
	IssueDuplicate      IssueKind = "duplicate"
	IssueCheckFailed    IssueKind = "check_failed"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one rule violation and the people involved.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	Severity  Severity  `json:"severity"`
	PersonIDs []int64   `json:"person_ids"`
	Message   string    `json:"message"`
}

// Report collects the issues found by Check.
type Report struct {
	Issues []Issue `json:"issues"`
}

// Messages returns the human-readable form of every issue.
func (r *Report) Messages() []string {
	out := make([]string, 0, len(r.Issues))
	for _, is := range r.Issues {
		out = append(out, is.Message)
	}
	return out
}

// CountByKind tallies issues per kind.
func (r *Report) CountByKind() map[IssueKind]int {
	counts := make(map[IssueKind]int)
	for _, is := range r.Issues {
		counts[is.Kind]++
	}
	return counts
}

// HasErrors reports whether any issue has error severity.
func (r *Report) HasErrors() bool {
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r *Report) add(is Issue) {
	r.Issues = append(r.Issues, is)
}

// CheckConfig holds the thresholds used by Check.
type CheckConfig struct {
	// MinParentAge is the smallest plausible gap in birth years between a
	// parent and a child.
	MinParentAge int
	// DeathGraceYears allows a child born shortly after a parent's death.
	DeathGraceYears int
	// MaxDepth caps the circularity walk.
	MaxDepth int
	// MatchBirthDate requires equal birth dates for duplicate candidates.
	MatchBirthDate bool
}

func DefaultCheckConfig() CheckConfig {
	return CheckConfig{
		MinParentAge:    10,
		DeathGraceYears: 1,
		MaxDepth:        10,
		MatchBirthDate:  true,
	}
}

// Check runs the circularity, plausibility and duplicate passes over the
// graph. A failure while checking one record is reported as an issue and the
// pass moves on.
func Check(g *Graph, cfg CheckConfig) *Report {
	def := DefaultCheckConfig()
	if cfg.MinParentAge <= 0 {
		cfg.MinParentAge = def.MinParentAge
	}
	if cfg.DeathGraceYears < 0 {
		cfg.DeathGraceYears = def.DeathGraceYears
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = def.MaxDepth
	}

	r := &Report{}
	checkCircular(g, cfg, r)
	checkPlausibility(g, cfg, r)
	checkDuplicates(g, cfg, r)
	return r
}

// guard runs fn and converts a panic into a check_failed issue.
func guard(r *Report, ids []int64, what string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.add(Issue{
				Kind:      IssueCheckFailed,
				Severity:  SeverityError,
				PersonIDs: ids,
				Message:   fmt.Sprintf("Could not check %s: %v", what, rec),
			})
		}
	}()
	fn()
}

func checkCircular(g *Graph, cfg CheckConfig, r *Report) {
	for _, p := range g.People() {
		guard(r, []int64{p.ID}, p.FullName(), func() {
			if g.revisits(p.ID, g.parents, cfg.MaxDepth) || g.revisits(p.ID, g.children, cfg.MaxDepth) {
				r.add(Issue{
					Kind:      IssueCircular,
					Severity:  SeverityError,
					PersonIDs: []int64{p.ID},
					Message:   fmt.Sprintf("Circular relationship detected involving %s", p.FullName()),
				})
			}
		})
	}
}

// revisits walks edges from start and reports whether any person appears
// twice on a single path within maxDepth hops.
func (g *Graph) revisits(start int64, edges map[int64][]int64, maxDepth int) bool {
	path := make(map[int64]bool)
	var walk func(id int64, depth int) bool
	walk = func(id int64, depth int) bool {
		if depth > maxDepth {
			return false
		}
		if path[id] {
			return true
		}
		path[id] = true
		defer delete(path, id)
		for _, next := range edges[id] {
			if walk(next, depth+1) {
				return true
			}
		}
		return false
	}
	return walk(start, 0)
}

func checkPlausibility(g *Graph, cfg CheckConfig, r *Report) {
	for _, e := range g.parentEdges {
		parent, child := g.people[e.ParentID], g.people[e.ChildID]
		guard(r, []int64{e.ParentID, e.ChildID}, "parent-child link", func() {
			if parent.BirthDate != nil && child.BirthDate != nil {
				gap := child.BirthYear() - parent.BirthYear()
				if gap < cfg.MinParentAge {
					r.add(Issue{
						Kind:      IssueAgeGap,
						Severity:  SeverityWarning,
						PersonIDs: []int64{parent.ID, child.ID},
						Message: fmt.Sprintf("Suspicious parent-child age gap: %s and %s (difference: %d years)",
							parent.FullName(), child.FullName(), gap),
					})
				}
			}
			if parent.DeathDate != nil && child.BirthDate != nil {
				if child.BirthYear() > parent.DeathYear()+cfg.DeathGraceYears {
					r.add(Issue{
						Kind:      IssueBornAfterDeath,
						Severity:  SeverityError,
						PersonIDs: []int64{parent.ID, child.ID},
						Message: fmt.Sprintf("Impossible date: %s born after the death of %s",
							child.FullName(), parent.FullName()),
					})
				}
			}
		})
	}
}

func duplicateKey(p *model.Person, withBirth bool) string {
	key := strings.ToLower(strings.TrimSpace(p.FirstName)) + "|" + strings.ToLower(strings.TrimSpace(p.LastName))
	if withBirth {
		if p.BirthDate != nil {
			key += "|" + p.BirthDate.Format(model.DateLayout)
		} else {
			key += "|"
		}
	}
	return key
}

func checkDuplicates(g *Graph, cfg CheckConfig, r *Report) {
	groups := make(map[string][]int64)
	for _, p := range g.People() {
		guard(r, []int64{p.ID}, p.FullName(), func() {
			k := duplicateKey(p, cfg.MatchBirthDate)
			groups[k] = append(groups[k], p.ID)
		})
	}
	for _, p := range g.People() {
		group := groups[duplicateKey(p, cfg.MatchBirthDate)]
		if len(group) < 2 {
			continue
		}
		r.add(Issue{
			Kind:      IssueDuplicate,
			Severity:  SeverityWarning,
			PersonIDs: group,
			Message: fmt.Sprintf("Possible duplicate: %s (ID: %d) is similar to %d other person(s)",
				p.FullName(), p.ID, len(group)-1),
		})
	}
}
