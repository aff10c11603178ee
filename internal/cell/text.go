package cell

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	trailingFootnote = regexp.MustCompile(`(?:^|\D)(\d{1,2}/?)$`)
	leadingFootnote  = regexp.MustCompile(`^\d{1,2}/\s*`)
	digitSuffix      = regexp.MustCompile(`\d+$`)
)

// Indent counts the leading whitespace of s. Tabs count as four spaces and
// non-breaking spaces count as one.
func Indent(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r == '\t':
			n += 4
		case r == ' ' || unicode.IsSpace(r):
			n++
		default:
			return n
		}
	}
	return n
}

// StripTrailingFootnote removes trailing footnote markers such as
// "Program 2" or "Program 1/ 3/". Markers are one or two digits; longer
// numbers are part of the title ("Section 502") and a string made only of
// digits is left alone.
func StripTrailingFootnote(s string) string {
	s = strings.TrimSpace(s)
	for {
		m := trailingFootnote.FindStringSubmatchIndex(s)
		if m == nil || m[2] == 0 {
			return s
		}
		s = strings.TrimSpace(s[:m[2]])
	}
}

// StripLeadingFootnote removes a slash footnote marker like "1/ " from the
// start of s. Bare leading numbers are kept: titles such as "504 Certified
// Development" start with them.
func StripLeadingFootnote(s string) string {
	return strings.TrimSpace(leadingFootnote.ReplaceAllString(strings.TrimSpace(s), ""))
}

// TrimDigitSuffix strips digits glued to the end of a label, so "Housing:2"
// reads as "Housing:" when checking for a trailing colon.
func TrimDigitSuffix(s string) string {
	return strings.TrimSpace(digitSuffix.ReplaceAllString(strings.TrimSpace(s), ""))
}

// StartsUpper reports whether the first letter-or-digit rune of s is an
// uppercase letter.
func StartsUpper(s string) bool {
	for _, r := range strings.TrimSpace(s) {
		return unicode.IsUpper(r)
	}
	return false
}
