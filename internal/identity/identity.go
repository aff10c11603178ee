// Package identity builds the matching keys used to recognise the same
// program across budget years.
//
// CanonicalKey is the authoritative exact-match key. FuzzyKey is looser and
// only groups candidates for reconciliation.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sep joins the components of a canonical key.
const Sep = "|"

var (
	dashRun       = regexp.MustCompile(`[\x{2010}-\x{2015}\x{2212}\x{FE58}\x{FE63}\x{FF0D}-]+`)
	spaceRun      = regexp.MustCompile(`\s+`)
	parenthetic   = regexp.MustCompile(`\s*\(.*?\)\s*`)
	nonAlnum      = regexp.MustCompile(`[^a-z0-9 ]`)
	loanNoun      = regexp.MustCompile(`\bloans?\b`)
	programNoun   = regexp.MustCompile(`\bprograms?\b`)
	guaranteeNoun = regexp.MustCompile(`\bguarantees?\b`)
	// Footnote-sized only: "section 502" and "section 515" must not collide.
	trailingNum = regexp.MustCompile(`\s+\d{1,2}$`)
)

// Normalize lowercases s, collapses dash glyphs to "-" and whitespace runs to
// a single space.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = dashRun.ReplaceAllString(s, "-")
	s = spaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(strings.ToLower(s))
}

// CanonicalKey joins the normalized hierarchy and program name. Trailing
// footnote markers are dropped from the program only.
func CanonicalKey(agency, bureau, account, program string) string {
	return strings.Join([]string{
		Normalize(agency),
		Normalize(bureau),
		Normalize(account),
		Normalize(cell.StripTrailingFootnote(program)),
	}, Sep)
}

// Split breaks a canonical key into its four components. Malformed keys
// return ok=false.
func Split(key string) (parts [4]string, ok bool) {
	p := strings.Split(key, Sep)
	if len(p) != 4 {
		return parts, false
	}
	copy(parts[:], p)
	return parts, true
}

// FuzzyKey is an aggressive normalization of a single name for cross-year
// grouping: accents and punctuation go, parentheticals are removed, a few
// nouns are singularized and a trailing bare number is dropped.
func FuzzyKey(name string) string {
	if name == "" {
		return ""
	}
	n := strings.ToLower(foldAccents(name))
	n = dashRun.ReplaceAllString(n, " ")
	n = parenthetic.ReplaceAllString(n, " ")
	n = nonAlnum.ReplaceAllString(n, " ")
	n = loanNoun.ReplaceAllString(n, "loan")
	n = programNoun.ReplaceAllString(n, "program")
	n = guaranteeNoun.ReplaceAllString(n, "guarantee")
	n = trailingNum.ReplaceAllString(n, "")
	n = spaceRun.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// GroupKey is the reconciliation grouping key for a program under an agency.
func GroupKey(agency, program string) string {
	return FuzzyKey(agency) + Sep + FuzzyKey(program)
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
