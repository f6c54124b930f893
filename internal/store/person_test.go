package store

import (
	"testing"

	"github.com/dukerupert/kinship/internal/model"
)

func TestPersonCreate(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))

	p, err := ps.Create(&model.Person{
		FirstName:  "Grace",
		LastName:   "Hopper",
		Gender:     model.GenderFemale,
		BirthDate:  day(1906, 12, 9),
		DeathDate:  day(1992, 1, 1),
		BirthPlace: "New York",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if !p.IsDeceased {
		t.Error("is_deceased = false, want true when death date set")
	}
	if p.Visibility != model.VisibilityFamily {
		t.Errorf("visibility = %q, want %q", p.Visibility, model.VisibilityFamily)
	}
	if p.BirthDate == nil || p.BirthDate.Year() != 1906 || p.BirthDate.Day() != 9 {
		t.Errorf("birth date = %v, want 1906-12-09", p.BirthDate)
	}
	if p.BirthPlace != "New York" {
		t.Errorf("birth place = %q, want %q", p.BirthPlace, "New York")
	}
}

func TestPersonGetByIDNotFound(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))

	p, err := ps.GetByID(999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p != nil {
		t.Error("expected nil for nonexistent person")
	}
}

func TestPersonUpdateDeceasedFlag(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))
	p := mustPerson(t, ps, "Alan", "Turing", day(1912, 6, 23))

	p.DeathDate = day(1954, 6, 7)
	p.IsDeceased = false
	updated, err := ps.Update(p)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.IsDeceased {
		t.Error("is_deceased = false after setting death date")
	}

	updated.DeathDate = nil
	updated.IsDeceased = false
	updated, err = ps.Update(updated)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsDeceased {
		t.Error("is_deceased = true after clearing death date")
	}

	// The flag cannot be set without a death date.
	updated.IsDeceased = true
	updated, err = ps.Update(updated)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.IsDeceased {
		t.Error("is_deceased = true without a death date")
	}
}

func TestPersonCreateIgnoresDeceasedWithoutDeathDate(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))

	p, err := ps.Create(&model.Person{FirstName: "Ada", LastName: "Lovelace", IsDeceased: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.IsDeceased {
		t.Error("is_deceased = true without a death date")
	}
}

func TestPersonDeleteCascadesEdges(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPersonStore(db)
	pcs := NewParentChildStore(db)

	parent := mustPerson(t, ps, "Parent", "X", day(1950, 1, 1))
	child := mustPerson(t, ps, "Child", "X", day(1980, 1, 1))
	if _, err := pcs.Create(&model.ParentChild{ParentID: parent.ID, ChildID: child.ID}); err != nil {
		t.Fatalf("link: %v", err)
	}

	if err := ps.Delete(parent.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	edges, err := pcs.ListAll()
	if err != nil {
		t.Fatalf("list edges: %v", err)
	}
	if len(edges) != 0 {
		t.Errorf("edges = %d after delete, want 0", len(edges))
	}
}

func TestPersonSearch(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))

	mustPerson(t, ps, "John", "Smith", day(1950, 1, 1))
	mustPerson(t, ps, "Jane", "Smith", day(1980, 1, 1))
	mustPerson(t, ps, "Bob", "Jones", day(1965, 1, 1))
	hidden, _ := ps.Create(&model.Person{FirstName: "Secret", LastName: "Smith", Gender: model.GenderMale, Visibility: model.VisibilityPrivate})

	all := Scope{All: true}
	res, err := ps.Search(SearchParams{Query: "smith", Scope: all})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 3 {
		t.Errorf("total = %d, want 3", res.Total)
	}

	res, _ = ps.Search(SearchParams{Query: "smith", BirthYearFrom: 1960, Scope: all})
	if res.Total != 1 || res.People[0].FirstName != "Jane" {
		t.Errorf("birth year filter = %+v, want only Jane", res.People)
	}

	res, _ = ps.Search(SearchParams{Query: "smith", Scope: Scope{Levels: []model.Visibility{model.VisibilityPublic, model.VisibilityFamily}}})
	if res.Total != 2 {
		t.Errorf("scoped total = %d, want 2", res.Total)
	}
	for _, p := range res.People {
		if p.ID == hidden.ID {
			t.Error("private person leaked into scoped search")
		}
	}

	res, _ = ps.Search(SearchParams{Scope: Scope{Levels: []model.Visibility{model.VisibilityPublic}}})
	if res.Total != 0 {
		t.Errorf("public-only total = %d, want 0", res.Total)
	}
}

func TestPersonSearchPrivateForOwner(t *testing.T) {
	db := setupTestDB(t)
	ps := NewPersonStore(db)
	owner := mustUser(t, NewUserStore(db), "owner@example.com", model.RoleMember)

	ps.Create(&model.Person{FirstName: "Mine", LastName: "Z", Gender: model.GenderMale, Visibility: model.VisibilityPrivate, OwnedBy: &owner.ID})
	ps.Create(&model.Person{FirstName: "Theirs", LastName: "Z", Gender: model.GenderMale, Visibility: model.VisibilityPrivate})

	res, err := ps.Search(SearchParams{Scope: Scope{Levels: []model.Visibility{model.VisibilityFamily}, PrivateFor: owner.ID}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res.Total != 1 || res.People[0].FirstName != "Mine" {
		t.Errorf("results = %+v, want only Mine", res.People)
	}
}

func TestPersonSearchPagination(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))
	for i := 0; i < PageSize+5; i++ {
		mustPerson(t, ps, "Person", "Many", nil)
	}

	res, err := ps.Search(SearchParams{Scope: Scope{All: true}, Page: 2})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.People) != 5 {
		t.Errorf("page 2 size = %d, want 5", len(res.People))
	}
	if res.TotalPages != 2 {
		t.Errorf("total pages = %d, want 2", res.TotalPages)
	}
}

func TestPersonAutocomplete(t *testing.T) {
	ps := NewPersonStore(setupTestDB(t))
	mustPerson(t, ps, "Margaret", "Hamilton", nil)

	got, err := ps.Autocomplete("m", Scope{All: true}, 10)
	if err != nil {
		t.Fatalf("autocomplete: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("single-char query returned %d results, want 0", len(got))
	}

	got, _ = ps.Autocomplete("ham", Scope{All: true}, 10)
	if len(got) != 1 {
		t.Errorf("results = %d, want 1", len(got))
	}
}
