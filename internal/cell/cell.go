// Package cell coerces raw spreadsheet cell values into typed values.
//
// FCS workbooks mix numbers, placeholder strings ("......", "-", "*") and
// footnote-tagged text in the same columns. Normalize never fails: anything
// that does not parse as a number degrades to trimmed text, and anything that
// carries no data becomes null.
package cell

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Kind identifies the type held by a Value.
type Kind uint8

const (
	// Null is an empty, blank or placeholder cell.
	Null Kind = iota
	// Number is a cell that parsed as a float.
	Number
	// Text is any other non-empty cell.
	Text
)

// Value is a normalized cell. The zero Value is null.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
}

// Num returns a numeric Value.
func Num(f float64) Value { return Value{Kind: Number, Num: f} }

// Str returns a text Value, or null when s is blank.
func Str(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	return Value{Kind: Text, Str: s}
}

// IsNull reports whether the cell carries no data.
func (v Value) IsNull() bool { return v.Kind == Null }

// Float returns the numeric value and whether the cell is a number.
func (v Value) Float() (float64, bool) {
	if v.Kind != Number {
		return 0, false
	}
	return v.Num, true
}

// String renders the value for logs and text output.
func (v Value) String() string {
	switch v.Kind {
	case Number:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case Text:
		return v.Str
	default:
		return ""
	}
}

// MarshalJSON encodes numbers as JSON numbers, text as strings and null as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Number:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.Num)
	case Text:
		return json.Marshal(v.Str)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a JSON number, string or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*v = Normalize(raw)
	return nil
}

// placeholders are the tokens the FCS tables print instead of a value.
var placeholders = map[string]struct{}{
	"":       {},
	"-":      {},
	"--":     {},
	"—":      {},
	"–":      {},
	"*":      {},
	"n/a":    {},
	"N/A":    {},
	"NaN":    {},
	"nan":    {},
	"......": {},
}

// leaderOnly matches a cell made of nothing but dot leaders and ellipses.
var leaderOnly = regexp.MustCompile(`^[.…\s]+$`)

// IsPlaceholder reports whether a trimmed string means "no data".
func IsPlaceholder(s string) bool {
	s = strings.TrimSpace(s)
	if _, ok := placeholders[s]; ok {
		return true
	}
	return leaderOnly.MatchString(s)
}

// Normalize converts a raw cell (string, number, nil) into a Value.
func Normalize(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Value{}
	case float64:
		if math.IsNaN(x) {
			return Value{}
		}
		return Num(x)
	case float32:
		return Normalize(float64(x))
	case int:
		return Num(float64(x))
	case int64:
		return Num(float64(x))
	case string:
		return Parse(x)
	case Value:
		return x
	default:
		return Value{}
	}
}

// Parse normalizes a string cell. Thousands separators and interior spaces are
// removed before numeric parsing; unparseable text is returned trimmed.
func Parse(s string) Value {
	t := strings.TrimSpace(s)
	if IsPlaceholder(t) {
		return Value{}
	}
	if f, ok := parseNumber(t); ok {
		return Num(f)
	}
	return Value{Kind: Text, Str: t}
}

// ParseFootnoted is Parse for columns whose numbers may carry a leading
// footnote marker, as in "1 96,767" or "2 10.74". The marker is only dropped
// when exactly one token follows it and that token parses as a number, so
// space-grouped numbers such as "1 234 567" keep every digit.
func ParseFootnoted(s string) Value {
	fields := strings.Fields(s)
	if len(fields) == 2 && len(fields[0]) <= 2 && isDigits(fields[0]) {
		if IsPlaceholder(fields[1]) {
			return Value{}
		}
		if f, ok := parseNumber(fields[1]); ok {
			return Num(f)
		}
	}
	return Parse(s)
}

func parseNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	// Accounting negatives: (1,234)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		if r == '−' {
			return '-'
		}
		return r
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
