package cell

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Value
	}{
		{name: "nil", raw: nil, want: Value{}},
		{name: "empty", raw: "", want: Value{}},
		{name: "whitespace", raw: "   ", want: Value{}},
		{name: "dot leaders", raw: "......", want: Value{}},
		{name: "long leaders", raw: "..........", want: Value{}},
		{name: "unicode ellipsis", raw: "……", want: Value{}},
		{name: "dash", raw: "-", want: Value{}},
		{name: "em dash", raw: "—", want: Value{}},
		{name: "star", raw: "*", want: Value{}},
		{name: "float", raw: 1.25, want: Num(1.25)},
		{name: "int", raw: 7, want: Num(7)},
		{name: "numeric string", raw: "12.5", want: Num(12.5)},
		{name: "thousands separator", raw: "1,234,567", want: Num(1234567)},
		{name: "interior spaces", raw: " 1 234 ", want: Num(1234)},
		{name: "negative", raw: "-3.02", want: Num(-3.02)},
		{name: "accounting negative", raw: "(4.5)", want: Num(-4.5)},
		{name: "minus sign glyph", raw: "−2.1", want: Num(-2.1)},
		{name: "text", raw: "  Farm Loans ", want: Str("Farm Loans")},
		{name: "numeric looking text", raw: "12.5.3", want: Str("12.5.3")},
		{name: "unsupported type", raw: struct{}{}, want: Value{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestParseFootnoted(t *testing.T) {
	tests := []struct {
		in   string
		want Value
	}{
		{in: "1 96,767", want: Num(96767)},
		{in: "2 10.74", want: Num(10.74)},
		{in: "3 ......", want: Value{}},
		{in: "10.74", want: Num(10.74)},
		{in: "1 Farm", want: Str("1 Farm")},
		{in: "1 234 567", want: Num(1234567)},
		{in: "Farm Loans", want: Str("Farm Loans")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseFootnoted(tt.in))
		})
	}
}

func TestValueJSON(t *testing.T) {
	in := map[string]Value{"rate": Num(1.5), "label": Str("x"), "none": {}}

	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"rate":1.5,"label":"x","none":null}`, string(b))

	var out map[string]Value
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestFootnoteStripping(t *testing.T) {
	assert.Equal(t, "Program", StripTrailingFootnote("Program 12"))
	assert.Equal(t, "Program", StripTrailingFootnote("Program 1/"))
	assert.Equal(t, "Program", StripTrailingFootnote("Program 1/ 2/"))
	assert.Equal(t, "504", StripTrailingFootnote("504"))
	assert.Equal(t, "Section 502 Direct", StripTrailingFootnote("Section 502 Direct"))
	assert.Equal(t, "Section 502", StripTrailingFootnote("Section 502"))
	assert.Equal(t, "Loans", StripTrailingFootnote("Loans2"))
	assert.Equal(t, "12", StripTrailingFootnote("12"))

	assert.Equal(t, "Program", StripLeadingFootnote("1/ Program"))
	assert.Equal(t, "504 Certified Development", StripLeadingFootnote("504 Certified Development"))

	assert.Equal(t, "Housing:", TrimDigitSuffix("Housing:2"))
}

func TestIndent(t *testing.T) {
	assert.Equal(t, 0, Indent("Agency"))
	assert.Equal(t, 3, Indent("   Account:"))
	assert.Equal(t, 4, Indent("\tProgram"))
	assert.Equal(t, 2, Indent("  Program"))
	assert.Equal(t, 0, Indent(""))
}

func TestStartsUpper(t *testing.T) {
	assert.True(t, StartsUpper("  Department of Agriculture"))
	assert.False(t, StartsUpper("weighted average"))
	assert.False(t, StartsUpper(""))
}
