package extract

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/creditscope/internal/cell"
)

// Class is the role a row plays in the hierarchy.
type Class uint8

const (
	// ClassSkip rows produce nothing.
	ClassSkip Class = iota
	// ClassProgram rows carry financial data for a program.
	ClassProgram
	// ClassHeader rows name a program whose data follows in cohort rows.
	ClassHeader
	// ClassCohort rows carry one cohort of the current program header.
	ClassCohort
	// ClassAgency rows start a new agency.
	ClassAgency
	// ClassBureau rows set the bureau.
	ClassBureau
	// ClassAccount rows set the account.
	ClassAccount
)

func (c Class) String() string {
	switch c {
	case ClassSkip:
		return "skip"
	case ClassProgram:
		return "program"
	case ClassHeader:
		return "header"
	case ClassCohort:
		return "cohort"
	case ClassAgency:
		return "agency"
	case ClassBureau:
		return "bureau"
	case ClassAccount:
		return "account"
	default:
		return "unknown"
	}
}

// Decision is the outcome of classifying one row.
type Decision struct {
	Class  Class
	Name   string
	Cohort int
}

// Classify decides what a row means given the layout, the active context and
// whether the previous row was blank. It never fails: rows it cannot place are
// skipped.
func Classify(l *Layout, ctx Context, prevBlank bool, row Row) Decision {
	first := row.First()
	if first == "" {
		return Decision{Class: ClassSkip}
	}

	if l.Cohorts == CohortPerRow {
		if y, ok := cohortRow(first); ok {
			return Decision{Class: ClassCohort, Cohort: y}
		}
	}

	label := cell.TrimDigitSuffix(first)
	colon := strings.HasSuffix(label, ":")

	// Rule 1: program sentinels.
	if l.Cohorts != CohortPerRow {
		var sentinel bool
		if l.ColonPrograms {
			sentinel = l.firstFieldHasData(row) &&
				(strings.Contains(first, "...") || strings.HasSuffix(first, ":"))
		} else {
			sentinel = isSentinel(first)
		}
		if sentinel {
			if !l.hasData(row) {
				return Decision{Class: ClassSkip}
			}
			return Decision{Class: ClassProgram, Name: ProgramName(first)}
		}
	}

	// Rule 2: colon labels.
	if colon {
		name := labelName(label)
		if name == "" {
			return Decision{Class: ClassSkip}
		}
		if !l.IndentLabels {
			if l.IsBureau(name) {
				return Decision{Class: ClassBureau, Name: name}
			}
			return Decision{Class: ClassAccount, Name: name}
		}
		switch {
		case row.Indent == 0:
			if l.IsBureau(name) || ctx.Bureau == "" {
				return Decision{Class: ClassBureau, Name: name}
			}
			return Decision{Class: ClassAccount, Name: name}
		case row.Indent <= 3:
			return Decision{Class: ClassAccount, Name: name}
		case l.Cohorts == CohortPerRow:
			return Decision{Class: ClassHeader, Name: name}
		default:
			return Decision{Class: ClassAccount, Name: name}
		}
	}

	// Rule 3: bare text, agency or program depending on position.
	dotted := strings.Contains(first, "...")
	if l.Cohorts == CohortPerRow && (row.Indent >= 4 || dotted) {
		return Decision{Class: ClassHeader, Name: ProgramName(first)}
	}
	if dotted {
		// A short leader is never an agency label.
		if l.hasData(row) {
			return Decision{Class: ClassProgram, Name: ProgramName(first)}
		}
		return Decision{Class: ClassSkip}
	}
	if l.IndentLabels && row.Indent > 0 {
		return Decision{Class: ClassSkip}
	}
	if !cell.StartsUpper(first) || l.isHeader(first) {
		return Decision{Class: ClassSkip}
	}
	if l.Cohorts == CohortPerRow {
		if !prevBlank {
			return Decision{Class: ClassHeader, Name: ProgramName(first)}
		}
		return Decision{Class: ClassAgency, Name: cell.StripTrailingFootnote(first)}
	}
	if !prevBlank && ctx.Bureau != "" && l.hasData(row) {
		return Decision{Class: ClassProgram, Name: ProgramName(first)}
	}
	return Decision{Class: ClassAgency, Name: cell.StripTrailingFootnote(first)}
}

// isSentinel reports whether a label carries a program leader: a run of six
// dots, or a three-dot leader together with a colon.
func isSentinel(s string) bool {
	return strings.Contains(s, "......") ||
		(strings.Contains(s, "...") && strings.Contains(s, ":"))
}

// ProgramName extracts a program title from a leader-dotted label. The label
// is cut at the first leader or colon, trailing punctuation is trimmed and
// footnote markers at either end are removed.
func ProgramName(label string) string {
	s := strings.ReplaceAll(strings.TrimSpace(label), "…", "...")
	if i := strings.Index(s, "..."); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = trimPunct(s)
	s = cell.StripTrailingFootnote(s)
	s = cell.StripLeadingFootnote(s)
	return trimPunct(s)
}

func labelName(label string) string {
	s := strings.TrimSuffix(strings.TrimSpace(label), ":")
	return cell.StripLeadingFootnote(trimPunct(s))
}

func trimPunct(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '.' || r == ',' || r == ':' || r == ';' || unicode.IsSpace(r)
	})
}
