package family

import (
	"time"

	"github.com/dukerupert/kinship/internal/model"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func person(id int64, first, last string, g model.Gender, born *time.Time) model.Person {
	return model.Person{ID: id, FirstName: first, LastName: last, Gender: g, BirthDate: born, Visibility: model.VisibilityFamily}
}

func pc(parent, child int64) model.ParentChild {
	return model.ParentChild{ParentID: parent, ChildID: child, RelationshipType: model.ParentChildBiological, Status: model.StatusConfirmed}
}

func partnership(id, a, b int64) model.Partnership {
	return model.Partnership{ID: id, Person1ID: a, Person2ID: b, PartnershipType: model.PartnershipMarriage, Status: model.StatusConfirmed}
}

// threeGenerations builds:
//
//	Gp1 (1) + Gp2 (2)
//	   ├── Dad (3) + Mom (4)
//	   │     ├── Kid (6)
//	   │     └── Kid2 (7)
//	   └── Aunt (5)
//	         └── Cousin (8)
func threeGenerations() *Graph {
	people := []model.Person{
		person(1, "George", "Hill", model.GenderMale, date(1920, 3, 1)),
		person(2, "Ruth", "Hill", model.GenderFemale, date(1922, 6, 9)),
		person(3, "Paul", "Hill", model.GenderMale, date(1948, 1, 2)),
		person(4, "Ann", "Hill", model.GenderFemale, date(1950, 5, 5)),
		person(5, "Mary", "Stone", model.GenderFemale, date(1952, 7, 7)),
		person(6, "Tom", "Hill", model.GenderMale, date(1975, 2, 2)),
		person(7, "Lucy", "Hill", model.GenderFemale, date(1978, 8, 8)),
		person(8, "Sam", "Stone", model.GenderMale, date(1980, 9, 9)),
	}
	edges := []model.ParentChild{
		pc(1, 3), pc(2, 3), pc(1, 5), pc(2, 5),
		pc(3, 6), pc(4, 6), pc(3, 7), pc(4, 7),
		pc(5, 8),
	}
	parts := []model.Partnership{partnership(1, 1, 2), partnership(2, 3, 4)}
	return NewGraph(people, edges, parts)
}
