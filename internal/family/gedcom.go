package family

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dukerupert/kinship/internal/model"
)

// ErrDegraded is returned when rendering failed and only the header and
// trailer were written.
var ErrDegraded = errors.New("gedcom export degraded to skeleton")

const gedcomDateLayout = "02 Jan 2006"

// maxNoteValue keeps "n TAG value" within the 255 byte GEDCOM line limit.
const maxNoteValue = 255 - len("2 CONC ")

var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// Exporter renders a graph as GEDCOM 5.5.1 lineage-linked text.
type Exporter struct {
	Source string
	Name   string
	Now    func() time.Time
}

func NewExporter(source, name string) *Exporter {
	return &Exporter{Source: source, Name: name, Now: time.Now}
}

type family struct {
	xref     string
	p        model.Partnership
	husb     int64
	wife     int64
	children []int64
}

// Write renders the whole graph to w. If rendering fails part way the
// partial output is discarded, a header+trailer skeleton is written instead
// and ErrDegraded is returned.
func (e *Exporter) Write(w io.Writer, g *Graph) error {
	var buf bytes.Buffer
	if err := e.render(&buf, g); err != nil {
		buf.Reset()
		e.header(&buf)
		buf.WriteString("0 TRLR\n")
		if _, werr := w.Write(buf.Bytes()); werr != nil {
			return fmt.Errorf("write gedcom skeleton: %w", werr)
		}
		return fmt.Errorf("%w: %v", ErrDegraded, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write gedcom: %w", err)
	}
	return nil
}

// String renders the graph and returns the document.
func (e *Exporter) String(g *Graph) (string, error) {
	var sb strings.Builder
	err := e.Write(&sb, g)
	return sb.String(), err
}

func (e *Exporter) render(buf *bytes.Buffer, g *Graph) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("render: %v", rec)
		}
	}()

	bw := bufio.NewWriter(buf)
	e.header(bw)

	indi := make(map[int64]string, g.Len())
	for i, p := range g.People() {
		indi[p.ID] = fmt.Sprintf("@I%d@", i+1)
	}

	fams := make([]family, 0, len(g.partnerships))
	famc := make(map[int64][]string)
	spouseIn := make(map[int64][]string)
	for i, p := range g.partnerships {
		f := family{xref: fmt.Sprintf("@F%d@", i+1), p: p}
		f.husb, f.wife = spouses(g, p)
		for _, c := range g.children[p.Person1ID] {
			if contains(g.children[p.Person2ID], c) {
				f.children = append(f.children, c)
				famc[c] = append(famc[c], f.xref)
			}
		}
		spouseIn[p.Person1ID] = append(spouseIn[p.Person1ID], f.xref)
		spouseIn[p.Person2ID] = append(spouseIn[p.Person2ID], f.xref)
		fams = append(fams, f)
	}

	for _, p := range g.People() {
		writeIndividual(bw, indi[p.ID], p, famc[p.ID], spouseIn[p.ID])
	}
	for _, f := range fams {
		writeFamily(bw, f, indi)
	}

	bw.WriteString("0 TRLR\n")
	return bw.Flush()
}

func (e *Exporter) header(w io.StringWriter) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	source := e.Source
	if source == "" {
		source = "KINSHIP"
	}
	w.WriteString("0 HEAD\n")
	w.WriteString("1 SOUR " + clean(source) + "\n")
	if e.Name != "" {
		w.WriteString("2 NAME " + clean(e.Name) + "\n")
	}
	w.WriteString("2 DATE " + gedcomDate(now()) + "\n")
	w.WriteString("1 CHAR UTF-8\n")
	w.WriteString("1 GEDC\n")
	w.WriteString("2 VERS 5.5.1\n")
	w.WriteString("2 FORM LINEAGE-LINKED\n")
}

// spouses assigns HUSB and WIFE by gender, falling back to person1/person2.
func spouses(g *Graph, p model.Partnership) (husb, wife int64) {
	g1 := g.people[p.Person1ID].Gender
	g2 := g.people[p.Person2ID].Gender
	if (g1 == model.GenderFemale && g2 != model.GenderFemale) || (g2 == model.GenderMale && g1 != model.GenderMale) {
		return p.Person2ID, p.Person1ID
	}
	return p.Person1ID, p.Person2ID
}

func writeIndividual(w *bufio.Writer, xref string, p *model.Person, famc, fams []string) {
	fmt.Fprintf(w, "0 %s INDI\n", xref)
	fmt.Fprintf(w, "1 NAME %s /%s/\n", clean(p.FirstName), clean(p.LastName))
	if p.MaidenName != "" {
		fmt.Fprintf(w, "1 NAME %s /%s/\n", clean(p.FirstName), clean(p.MaidenName))
	}
	if sex := gedcomSex(p.Gender); sex != "" {
		fmt.Fprintf(w, "1 SEX %s\n", sex)
	}
	writeEvent(w, "BIRT", p.BirthDate, p.BirthPlace)
	writeEvent(w, "DEAT", p.DeathDate, p.DeathPlace)
	if p.Profession != "" {
		fmt.Fprintf(w, "1 OCCU %s\n", clean(p.Profession))
	}
	if p.Biography != "" {
		writeNote(w, p.Biography)
	}
	for _, f := range famc {
		fmt.Fprintf(w, "1 FAMC %s\n", f)
	}
	for _, f := range fams {
		fmt.Fprintf(w, "1 FAMS %s\n", f)
	}
}

func writeEvent(w *bufio.Writer, tag string, date *time.Time, place string) {
	if date == nil {
		return
	}
	fmt.Fprintf(w, "1 %s\n", tag)
	fmt.Fprintf(w, "2 DATE %s\n", gedcomDate(*date))
	if place != "" {
		fmt.Fprintf(w, "2 PLAC %s\n", clean(place))
	}
}

func writeFamily(w *bufio.Writer, f family, indi map[int64]string) {
	fmt.Fprintf(w, "0 %s FAM\n", f.xref)
	fmt.Fprintf(w, "1 HUSB %s\n", indi[f.husb])
	fmt.Fprintf(w, "1 WIFE %s\n", indi[f.wife])
	if f.p.StartDate != nil {
		w.WriteString("1 MARR\n")
		fmt.Fprintf(w, "2 DATE %s\n", gedcomDate(*f.p.StartDate))
		if f.p.Location != "" {
			fmt.Fprintf(w, "2 PLAC %s\n", clean(f.p.Location))
		}
	}
	if f.p.EndDate != nil {
		w.WriteString("1 DIV\n")
		fmt.Fprintf(w, "2 DATE %s\n", gedcomDate(*f.p.EndDate))
	}
	for _, c := range f.children {
		fmt.Fprintf(w, "1 CHIL %s\n", indi[c])
	}
}

func gedcomDate(t time.Time) string {
	return strings.ToUpper(t.Format(gedcomDateLayout))
}

func gedcomSex(g model.Gender) string {
	switch g {
	case model.GenderMale:
		return "M"
	case model.GenderFemale:
		return "F"
	case model.GenderOther:
		return "U"
	}
	return ""
}

// clean flattens line breaks so a value stays on its own GEDCOM line.
func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// writeNote emits text as a NOTE with one CONT per line break. Lines over
// the length limit continue with CONC.
func writeNote(w io.Writer, text string) {
	for i, line := range strings.Split(newlines.Replace(text), "\n") {
		tag := "1 NOTE"
		if i > 0 {
			tag = "2 CONT"
		}
		for {
			chunk := splitNote(line)
			fmt.Fprintf(w, "%s %s\n", tag, chunk)
			line = line[len(chunk):]
			if line == "" {
				break
			}
			tag = "2 CONC"
		}
	}
}

// splitNote returns the longest prefix of s that fits on one line without
// cutting a UTF-8 sequence or splitting next to a space, which readers trim.
func splitNote(s string) string {
	if len(s) <= maxNoteValue {
		return s
	}
	end := maxNoteValue
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	if end == 0 {
		return s[:maxNoteValue]
	}
	for cut := end; cut > 0; cut-- {
		if utf8.RuneStart(s[cut]) && s[cut] != ' ' && s[cut-1] != ' ' {
			return s[:cut]
		}
	}
	return s[:end]
}
