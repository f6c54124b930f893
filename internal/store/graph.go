package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/kinship/internal/family"
)

// GraphStore loads the whole relationship graph in three queries.
type GraphStore struct {
	people       *PersonStore
	parentChild  *ParentChildStore
	partnerships *PartnershipStore
}

func NewGraphStore(db *sql.DB) *GraphStore {
	return &GraphStore{
		people:       NewPersonStore(db),
		parentChild:  NewParentChildStore(db),
		partnerships: NewPartnershipStore(db),
	}
}

func (s *GraphStore) Load() (*family.Graph, error) {
	people, err := s.people.ListAll()
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	edges, err := s.parentChild.ListAll()
	if err != nil {
		return nil, fmt.Errorf("load parent-child: %w", err)
	}
	parts, err := s.partnerships.ListAll()
	if err != nil {
		return nil, fmt.Errorf("load partnerships: %w", err)
	}
	return family.NewGraph(people, edges, parts), nil
}
