package model

import (
	"fmt"
	"strings"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "O"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityFamily  Visibility = "family"
	VisibilityPrivate Visibility = "private"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

type Person struct {
	ID          int64      `json:"id"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	MaidenName  string     `json:"maiden_name,omitempty"`
	Gender      Gender     `json:"gender"`
	Tribe       string     `json:"tribe,omitempty"`
	Clan        string     `json:"clan,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	DeathDate   *time.Time `json:"death_date,omitempty"`
	BirthPlace  string     `json:"birth_place,omitempty"`
	DeathPlace  string     `json:"death_place,omitempty"`
	Biography   string     `json:"biography,omitempty"`
	Profession  string     `json:"profession,omitempty"`
	Education   string     `json:"education,omitempty"`
	CreatedBy   *int64     `json:"created_by,omitempty"`
	OwnedBy     *int64     `json:"owned_by,omitempty"`
	UserAccount *int64     `json:"user_account,omitempty"`
	Visibility  Visibility `json:"visibility"`
	IsDeceased  bool       `json:"is_deceased"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FullName returns "First Last", with the maiden name appended when known.
func (p *Person) FullName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = fmt.Sprintf("Person #%d", p.ID)
	}
	if p.MaidenName != "" {
		name += " (née " + p.MaidenName + ")"
	}
	return name
}

// Age returns the age in whole years at the given instant, or at death for
// deceased people. ok is false when the birth date is unknown or the result
// would be negative.
func (p *Person) Age(at time.Time) (age int, ok bool) {
	if p.BirthDate == nil {
		return 0, false
	}
	end := at
	if p.DeathDate != nil {
		end = *p.DeathDate
	}
	b := *p.BirthDate
	age = end.Year() - b.Year()
	if end.Month() < b.Month() || (end.Month() == b.Month() && end.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

func (p *Person) BirthYear() int {
	if p.BirthDate == nil {
		return 0
	}
	return p.BirthDate.Year()
}

func (p *Person) DeathYear() int {
	if p.DeathDate == nil {
		return 0
	}
	return p.DeathDate.Year()
}

// Lifespan formats the birth and death years for display, e.g. "1950 - 2010".
func (p *Person) Lifespan() string {
	switch {
	case p.BirthDate != nil && p.DeathDate != nil:
		return fmt.Sprintf("%d - %d", p.BirthYear(), p.DeathYear())
	case p.BirthDate != nil && p.IsDeceased:
		return fmt.Sprintf("%d - ?", p.BirthYear())
	case p.BirthDate != nil:
		return fmt.Sprintf("b. %d", p.BirthYear())
	case p.DeathDate != nil:
		return fmt.Sprintf("? - %d", p.DeathYear())
	default:
		return "dates unknown"
	}
}

func ValidGender(g Gender) bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

func ValidVisibility(v Visibility) bool {
	return v == VisibilityPublic || v == VisibilityFamily || v == VisibilityPrivate
}

// ProposableFields lists the person fields that may be changed through a
// modification proposal.
var ProposableFields = []string{
	"first_name", "last_name", "maiden_name", "gender", "tribe", "clan",
	"birth_date", "death_date", "birth_place", "death_place",
	"biography", "profession", "education",
}

func IsProposable(field string) bool {
	for _, f := range ProposableFields {
		if f == field {
			return true
		}
	}
	return false
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD value. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", s, err)
	}
	return &t, nil
}

// FieldValue returns the string form of a proposable field.
func (p *Person) FieldValue(field string) (string, error) {
	switch field {
	case "first_name":
		return p.FirstName, nil
	case "last_name":
		return p.LastName, nil
	case "maiden_name":
		return p.MaidenName, nil
	case "gender":
		return string(p.Gender), nil
	case "tribe":
		return p.Tribe, nil
	case "clan":
		return p.Clan, nil
	case "birth_date":
		return formatDate(p.BirthDate), nil
	case "death_date":
		return formatDate(p.DeathDate), nil
	case "birth_place":
		return p.BirthPlace, nil
	case "death_place":
		return p.DeathPlace, nil
	case "biography":
		return p.Biography, nil
	case "profession":
		return p.Profession, nil
	case "education":
		return p.Education, nil
	}
	return "", fmt.Errorf("field %q is not proposable", field)
}

// SetField assigns a proposable field from its string form.
func (p *Person) SetField(field, value string) error {
	switch field {
	case "first_name":
		p.FirstName = value
	case "last_name":
		p.LastName = value
	case "maiden_name":
		p.MaidenName = value
	case "gender":
		g := Gender(value)
		if !ValidGender(g) {
			return fmt.Errorf("invalid gender %q", value)
		}
		p.Gender = g
	case "tribe":
		p.Tribe = value
	case "clan":
		p.Clan = value
	case "birth_date", "death_date":
		d, err := ParseDate(value)
		if err != nil {
			return err
		}
		if field == "birth_date" {
			p.BirthDate = d
		} else {
			p.DeathDate = d
		}
	case "birth_place":
		p.BirthPlace = value
	case "death_place":
		p.DeathPlace = value
	case "biography":
		p.Biography = value
	case "profession":
		p.Profession = value
	case "education":
		p.Education = value
	default:
		return fmt.Errorf("field %q is not proposable", field)
	}
	p.IsDeceased = p.DeathDate != nil
	return nil
}
