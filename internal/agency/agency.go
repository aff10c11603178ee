// Package agency maps the agency labels recovered by extraction to the
// reporting department shown to users.
//
// Older budgets leak program, bureau and department-variant labels into the
// agency position; the override tables route them back to a department.
package agency

import (
	"strings"
	"unicode"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/identity"
	"github.com/leapstack-labs/creditscope/internal/lookups"
)

// Normalizer is immutable once built.
type Normalizer struct {
	exclude   map[string]struct{}
	clean     map[string]string
	renames   map[string]string
	overrides []map[string]string
}

// New builds a normalizer from the agency tables.
func New(t lookups.AgencyTables) *Normalizer {
	n := &Normalizer{
		exclude: make(map[string]struct{}, len(t.Exclude)),
		clean:   make(map[string]string, len(t.Clean)),
		renames: keyed(t.Renames),
	}
	for _, e := range t.Exclude {
		n.exclude[Key(e)] = struct{}{}
	}
	for _, c := range t.Clean {
		n.clean[Key(c)] = c
	}
	// Priority order: program names, bureaus, department variants, program
	// agencies.
	n.overrides = []map[string]string{
		keyed(t.ProgramNames),
		keyed(t.Bureaus),
		keyed(t.DepartmentVariants),
		keyed(t.ProgramAgencies),
	}
	return n
}

func keyed(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[Key(k)] = v
	}
	return out
}

// Key is the lookup form of a label: normalized, with trailing leaders,
// colons and footnote markers removed.
func Key(s string) string {
	s = trimTail(s)
	s = cell.StripTrailingFootnote(s)
	return identity.Normalize(trimTail(s))
}

func trimTail(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '.' || r == ':' || r == '-' || r == '…' || unicode.IsSpace(r)
	})
}

// Normalize returns the department for a raw agency label. Aggregate rows
// such as weighted averages return ok=false. Unknown labels pass through
// trimmed.
func (n *Normalizer) Normalize(raw string) (string, bool) {
	k := Key(raw)
	if k == "" {
		return "", false
	}
	if _, ok := n.exclude[k]; ok || IsAggregate(raw) {
		return "", false
	}
	if clean, ok := n.clean[k]; ok {
		return n.rename(clean), true
	}
	for _, m := range n.overrides {
		if dept, ok := m[k]; ok {
			return n.rename(dept), true
		}
	}
	return strings.TrimSpace(raw), true
}

func (n *Normalizer) rename(name string) string {
	if r, ok := n.renames[Key(name)]; ok {
		return r
	}
	return name
}

// IsAggregate reports whether a label is a summary row rather than an agency.
func IsAggregate(name string) bool {
	return strings.HasPrefix(identity.Normalize(name), "weighted average")
}
