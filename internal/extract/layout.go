package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/leapstack-labs/creditscope/internal/cell"
)

// CohortMode describes how a table attributes values to cohort years.
type CohortMode uint8

const (
	// CohortNone tables carry no cohort year (disbursement schedules).
	CohortNone CohortMode = iota
	// CohortPair tables report two cohorts side by side in column slots.
	CohortPair
	// CohortSingle tables report one cohort per sheet.
	CohortSingle
	// CohortPerRow tables list "FY 2015" rows under each program header.
	CohortPerRow
)

// Credit types.
const (
	DirectLoan    = "direct_loan"
	LoanGuarantee = "loan_guarantee"
)

// Field binds a field name to a zero-based column.
type Field struct {
	Name string
	Col  int
}

// Slot is the set of fields reported for one cohort in a CohortPair table.
type Slot struct {
	Fields []Field
}

// Layout is the configuration for one table family. Layouts are plain data;
// the extraction algorithm is shared.
type Layout struct {
	Table      int
	Name       string
	CreditType string

	// HeaderRows are skipped before extraction starts.
	HeaderRows int

	Cohorts      CohortMode
	CohortOffset int
	Slots        []Slot
	Fields       []Field
	Attributes   []Field

	// Required lists fields of which at least one must be non-null for a row
	// to count as carrying data. Empty means any field.
	Required []string

	Bureaus     map[string]struct{}
	SkipPhrases []string

	// IndentLabels enables indentation-driven label rules.
	IndentLabels bool
	// ColonPrograms treats a colon label with data in the first field
	// column as a program row.
	ColonPrograms bool
	// LeadingFootnotes strips "1 " footnote markers from numeric cells.
	LeadingFootnotes bool
}

// IsBureau reports whether name is a known bureau label.
func (l *Layout) IsBureau(name string) bool {
	_, ok := l.Bureaus[name]
	return ok
}

func (l *Layout) parse(raw string) cell.Value {
	if l.LeadingFootnotes {
		return cell.ParseFootnoted(raw)
	}
	return cell.Parse(raw)
}

// allFields returns every field column the layout reads, slots first.
func (l *Layout) allFields() []Field {
	var out []Field
	for _, s := range l.Slots {
		out = append(out, s.Fields...)
	}
	return append(out, l.Fields...)
}

// hasData reports whether any required field of row is non-null.
func (l *Layout) hasData(row Row) bool {
	for _, f := range l.allFields() {
		if len(l.Required) > 0 && !contains(l.Required, f.Name) {
			continue
		}
		if !l.parse(row.Cell(f.Col)).IsNull() {
			return true
		}
	}
	return false
}

// firstFieldHasData reports whether the first field column is non-null.
func (l *Layout) firstFieldHasData(row Row) bool {
	fields := l.allFields()
	if len(fields) == 0 {
		return false
	}
	return !l.parse(row.Cell(fields[0].Col)).IsNull()
}

func (l *Layout) observation(row Row, fields []Field, cohort int) Observation {
	obs := Observation{CohortYear: cohort, Fields: make([]FieldValue, 0, len(fields))}
	for _, f := range fields {
		obs.Fields = append(obs.Fields, FieldValue{Name: f.Name, Value: l.parse(row.Cell(f.Col))})
	}
	return obs
}

// isHeader reports whether label is a boilerplate column header. Phrases
// match at the start of the label on a word boundary.
func (l *Layout) isHeader(label string) bool {
	for _, p := range l.SkipPhrases {
		if !strings.HasPrefix(label, p) {
			continue
		}
		rest := label[len(p):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
