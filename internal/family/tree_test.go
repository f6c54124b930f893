package family

import (
	"slices"
	"testing"
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

func TestTree(t *testing.T) {
	g := threeGenerations()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	hidden := func(p *model.Person) bool { return p.ID != 8 }

	td := Tree(g, 6, hidden, now)
	if td.RootPersonID != 6 {
		t.Errorf("root = %d, want 6", td.RootPersonID)
	}
	if len(td.Individuals) != 8 {
		t.Fatalf("individuals = %d, want 8", len(td.Individuals))
	}

	tom := td.Individuals[6]
	if tom.Name != "Tom Hill" {
		t.Errorf("name = %q, want %q", tom.Name, "Tom Hill")
	}
	if !slices.Equal(tom.Parents, []int64{3, 4}) {
		t.Errorf("parents = %v, want [3 4]", tom.Parents)
	}
	if tom.Age == nil || *tom.Age != 50 {
		t.Errorf("age = %v, want 50", tom.Age)
	}
	if tom.Children == nil {
		t.Error("children = nil, want empty slice")
	}

	sam := td.Individuals[8]
	if !sam.Private || sam.Name != "Private" || sam.BirthYear != nil {
		t.Errorf("hidden person leaked details: %+v", sam)
	}
	if !slices.Equal(sam.Parents, []int64{5}) {
		t.Errorf("hidden person parents = %v, want [5]", sam.Parents)
	}
}
