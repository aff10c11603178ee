package extract

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/testutil"
)

func rows(cells ...[]string) []Row {
	out := make([]Row, len(cells))
	for i, c := range cells {
		out[i] = NewRow(c...)
	}
	return out
}

func fields(names ...string) []Field { return columns(1, names...) }

func obs(cohort int, kv ...any) Observation {
	o := Observation{CohortYear: cohort}
	for i := 0; i < len(kv); i += 2 {
		o.Fields = append(o.Fields, FieldValue{Name: kv[i].(string), Value: kv[i+1].(cell.Value)})
	}
	return o
}

var null = cell.Value{}

func TestExtract_EndToEnd(t *testing.T) {
	l := &Layout{
		Table:   1,
		Fields:  fields("subsidy_rate_percent", "obligations_thousands", "average_loan_size_thousands"),
		Bureaus: map[string]struct{}{"Mortgage Insurance": {}},
	}
	in := rows(
		[]string{"Department of Housing", "", "", ""},
		[]string{"Mortgage Insurance:", "", "", ""},
		[]string{"Guaranteed Loans.......", "1.2", "5000", "50"},
	)

	got := Extract(l, in, Options{Logger: testutil.NewTestLogger(t)})

	want := []Record{{
		Table:   1,
		Agency:  "Department of Housing",
		Bureau:  "Mortgage Insurance",
		Program: "Guaranteed Loans",
		Observations: []Observation{obs(0,
			"subsidy_rate_percent", cell.Num(1.2),
			"obligations_thousands", cell.Num(5000),
			"average_loan_size_thousands", cell.Num(50),
		)},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtract_EmptyInput(t *testing.T) {
	for table, l := range Layouts(nil) {
		assert.Empty(t, Extract(l, nil, Options{BudgetYear: 2020}), "table %d", table)
	}
}

func TestExtract_Formulation(t *testing.T) {
	l := Layouts(map[int][]string{2: {"Farm Service Agency", "Housing Programs"}})[2]
	in := rows(
		[]string{"Table 2. Loan Guarantee Programs"},
		[]string{"Agency and Program", "BEA Category", "2024 Subsidy Rate"},
		[]string{"Department of Agriculture 1"},
		[]string{"Farm Service Agency:"},
		[]string{"Agricultural Credit Insurance Fund Program Account:"},
		[]string{"Farm Operating-Guaranteed......", "Mandatory", "-1.02", "1,500,000", "400", "-0.98", "1,600,000", "420"},
		[]string{"Farm Ownership-Guaranteed 2......", "Mandatory", "0.5", "......", "", "0.6", "3,000", ""},
		[]string{"Boating ......", "", "......", "......", "", "......", "......", ""},
		[]string{""},
		[]string{"Department of Housing and Urban Development"},
		[]string{"Housing Programs:"},
		[]string{"FHA-Mutual Mortgage Insurance Program Account:"},
		[]string{"Mutual Mortgage Insurance......", "", "-3.1", "250,000,000", "", "-2.9", "260,000,000", ""},
	)

	got := Extract(l, in, Options{BudgetYear: 2025, Logger: testutil.NewTestLogger(t)})
	require.Len(t, got, 3)

	assert.Equal(t, "Department of Agriculture", got[0].Agency)
	assert.Equal(t, "Farm Service Agency", got[0].Bureau)
	assert.Equal(t, "Agricultural Credit Insurance Fund Program Account", got[0].Account)
	assert.Equal(t, "Farm Operating-Guaranteed", got[0].Program)
	assert.Equal(t, cell.Str("Mandatory"), got[0].Attributes["bea_category"])

	want := []Observation{
		obs(2024, FieldSubsidyRate, cell.Num(0.5), "obligations_thousands", null, "average_loan_size_thousands", null),
		obs(2025, FieldSubsidyRate, cell.Num(0.6), "obligations_thousands", cell.Num(3000), "average_loan_size_thousands", null),
	}
	assert.Equal(t, "Farm Ownership-Guaranteed", got[1].Program)
	if diff := cmp.Diff(want, got[1].Observations); diff != "" {
		t.Errorf("observations mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "Department of Housing and Urban Development", got[2].Agency)
	assert.Equal(t, "Housing Programs", got[2].Bureau)
	assert.Equal(t, "FHA-Mutual Mortgage Insurance Program Account", got[2].Account)
	assert.Equal(t, "Mutual Mortgage Insurance", got[2].Program)
}

func TestLayouts_BureausPerTable(t *testing.T) {
	layouts := Layouts(lookups.Default().Bureaus)

	// Departmental Offices heads a bureau in the disbursement tables only.
	assert.False(t, layouts[2].IsBureau("Departmental Offices"))
	assert.False(t, layouts[8].IsBureau("Departmental Offices"))
	assert.True(t, layouts[9].IsBureau("Departmental Offices"))
	assert.True(t, layouts[10].IsBureau("Procurement"))
	for table, l := range layouts {
		assert.True(t, l.IsBureau("Farm Service Agency"), "table %d", table)
	}

	in := rows(
		[]string{"Table 2. Loan Guarantee Programs"},
		[]string{"Agency and Program", "BEA Category", "2024 Subsidy Rate"},
		[]string{"Department of the Treasury"},
		[]string{"Office of the Secretary:"},
		[]string{"Departmental Offices:"},
		[]string{"Some Guarantee Program......", "Mandatory", "1.0", "100", "10", "1.1", "110", "11"},
	)
	got := Extract(layouts[2], in, Options{BudgetYear: 2025})
	require.Len(t, got, 1)
	assert.Equal(t, "Department of the Treasury", got[0].Agency)
	assert.Equal(t, "Office of the Secretary", got[0].Bureau)
	assert.Equal(t, "Departmental Offices", got[0].Account)
	assert.Equal(t, "Some Guarantee Program", got[0].Program)
}

func TestLayouts_SharedBureaus(t *testing.T) {
	layouts := Layouts(map[int][]string{
		0: {"Loan Programs Office"},
		9: {"Procurement"},
	})
	for table, l := range layouts {
		assert.True(t, l.IsBureau("Loan Programs Office"), "table %d", table)
	}
	assert.True(t, layouts[9].IsBureau("Procurement"))
	assert.False(t, layouts[10].IsBureau("Procurement"))
}

func TestExtract_Characteristics(t *testing.T) {
	l := Layouts(nil)[6]
	in := rows(
		[]string{"Table 6"},
		[]string{"Agency and Program", "Subsidy Rate"},
		[]string{"Small Business Administration"},
		[]string{"Business Loans Program Account:2"},
		[]string{"7(a) General Business Loans......", "1 0.00", "2.1", "", "-2.1", "", "25", "", "", "2", "0.55", "", "4.2", "60", "75"},
		[]string{"504 Certified Development Companies......", "......"},
	)

	got := Extract(l, in, Options{BudgetYear: 2022})
	require.Len(t, got, 1)
	rec := got[0]
	assert.Equal(t, "Business Loans Program Account", rec.Account)
	assert.Equal(t, "7(a) General Business Loans", rec.Program)
	require.Len(t, rec.Observations, 1)

	o := rec.Observations[0]
	assert.Equal(t, 2022, o.CohortYear)
	rate, ok := o.Float(FieldSubsidyRate)
	require.True(t, ok)
	assert.Zero(t, rate)
	g, ok := o.Float("guarantee_percent")
	require.True(t, ok)
	assert.Equal(t, 75.0, g)
}

func TestExtract_ReestimatesSpaceGrouped(t *testing.T) {
	l := Layouts(map[int][]string{8: {"Farm Service Agency"}})[8]
	in := rows(
		[]string{"Table 8"},
		[]string{"Agency, Bureau, Account, Program", "Original subsidy rate"},
		[]string{"Department of Agriculture"},
		[]string{"Farm Service Agency:"},
		[]string{"  Agricultural Credit Insurance Fund:"},
		[]string{"      Farm Operating"},
		[]string{"FY 2015", "1.5", "1.2", "", "", "1 234 567", "2 10", "", "", ""},
	)

	got := Extract(l, in, Options{BudgetYear: 2020})
	require.Len(t, got, 1)
	require.Len(t, got[0].Observations, 1)
	obs := got[0].Observations[0]

	amount, ok := obs.Float("current_reestimate_amount_thousands")
	require.True(t, ok)
	assert.Equal(t, 1234567.0, amount)
	lifetime, ok := obs.Float("net_lifetime_reestimate_thousands")
	require.True(t, ok)
	assert.Equal(t, 210.0, lifetime)
}

func TestExtract_Reestimates(t *testing.T) {
	l := Layouts(map[int][]string{8: {"Farm Service Agency", "Housing Programs"}})[8]
	in := rows(
		[]string{"Table 8"},
		[]string{"Agency, Bureau, Account, Program", "Original subsidy rate"},
		[]string{"Department of Agriculture"},
		[]string{"Farm Service Agency:"},
		[]string{"  Agricultural Credit Insurance Fund:"},
		[]string{"      Farm Operating"},
		[]string{"FY 2015", "1.5", "1.2", "0.1", "-0.4", "1,000", "2,000", "1,900", "50,000", "20,000"},
		[]string{"FY 2016", "1.4", "1.3", "", "", "", "", "", "", ""},
		[]string{"      Boating"},
		[]string{""},
		[]string{"Department of Housing"},
		[]string{"Housing Programs:"},
		[]string{"FHA-Mutual Mortgage"},
		[]string{"FY2017", "-0.5"},
	)

	got := Extract(l, in, Options{BudgetYear: 2020})
	require.Len(t, got, 2)

	assert.Equal(t, Record{
		Table:      8,
		BudgetYear: 2020,
		Agency:     "Department of Agriculture",
		Bureau:     "Farm Service Agency",
		Account:    "Agricultural Credit Insurance Fund",
		Program:    "Farm Operating",
	}, Record{Table: got[0].Table, BudgetYear: got[0].BudgetYear, Agency: got[0].Agency,
		Bureau: got[0].Bureau, Account: got[0].Account, Program: got[0].Program})
	require.Len(t, got[0].Observations, 2)
	assert.Equal(t, 2015, got[0].Observations[0].CohortYear)
	assert.Equal(t, 2016, got[0].Observations[1].CohortYear)
	rate, ok := got[0].Observations[1].Float(FieldOriginalSubsidyRate)
	require.True(t, ok)
	assert.Equal(t, 1.4, rate)

	assert.Equal(t, "Department of Housing", got[1].Agency)
	assert.Equal(t, "Housing Programs", got[1].Bureau)
	assert.Equal(t, "FHA-Mutual Mortgage", got[1].Program)
	require.Len(t, got[1].Observations, 1)
	assert.Equal(t, 2017, got[1].Observations[0].CohortYear)
}

func TestExtract_Disbursements(t *testing.T) {
	l := Layouts(map[int][]string{9: {"Office of Federal Student Aid"}})[9]
	in := rows(
		[]string{"Table 9"},
		[]string{"Agency, Bureau, Account", "Percentage disbursed"},
		[]string{"Department of Education"},
		[]string{"Office of Federal Student Aid:"},
		[]string{"  Federal Direct Student Loan Program Account:"},
		[]string{"    Stafford:", "40.2", "30.1", "29.7", "", "", "", "", "", "", ""},
		[]string{"    Unsubsidized Stafford......", "41", "59", "", "", "", "", "", "", "", ""},
		[]string{"    Perkins:"},
	)

	got := Extract(l, in, Options{BudgetYear: 2019})
	require.Len(t, got, 2)
	assert.Equal(t, "Office of Federal Student Aid", got[0].Bureau)
	assert.Equal(t, "Federal Direct Student Loan Program Account", got[0].Account)
	assert.Equal(t, "Stafford", got[0].Program)
	assert.Equal(t, "Unsubsidized Stafford", got[1].Program)

	o := got[0].Observations[0]
	assert.Zero(t, o.CohortYear)
	require.Len(t, o.Fields, 10)
	assert.Equal(t, "year_10_plus", o.Fields[9].Name)
	v, ok := o.Float("year_3")
	require.True(t, ok)
	assert.Equal(t, 29.7, v)
}

func TestExtract_Deterministic(t *testing.T) {
	l := Layouts(map[int][]string{0: {"Farm Service Agency"}})[8]
	in := rows(
		[]string{"h"}, []string{"h"},
		[]string{"Department of Agriculture"},
		[]string{"Farm Service Agency:"},
		[]string{"      B"}, []string{"FY 2015", "1"},
		[]string{"      A"}, []string{"FY 2015", "2"},
		[]string{"      C"}, []string{"FY 2015", "3"},
		[]string{"      A"}, []string{"FY 2016", "4"},
	)

	first := Extract(l, in, Options{BudgetYear: 2020})
	require.Len(t, first, 3)
	for i := 0; i < 20; i++ {
		if diff := cmp.Diff(first, Extract(l, in, Options{BudgetYear: 2020})); diff != "" {
			t.Fatalf("run %d differs (-first +got):\n%s", i, diff)
		}
	}
	assert.Equal(t, []string{"B", "A", "C"}, []string{first[0].Program, first[1].Program, first[2].Program})
	assert.Len(t, first[1].Observations, 2)
}

func TestExtract_TieBreak(t *testing.T) {
	l := &Layout{
		Table:   2,
		Fields:  fields("subsidy_rate_percent"),
		Bureaus: map[string]struct{}{"Housing Programs": {}},
	}
	in := rows(
		[]string{"Department of Housing"},
		[]string{"Housing Programs:"},
		[]string{"Guaranteed Loans", "1.2"},
		[]string{""},
		[]string{"Department of Energy", "3"},
		[]string{"Title 17 Innovative Technology......", "4"},
	)

	got := Extract(l, in, Options{})
	require.Len(t, got, 2)
	assert.Equal(t, "Guaranteed Loans", got[0].Program)
	assert.Equal(t, "Housing Programs", got[0].Bureau)

	assert.Equal(t, "Department of Energy", got[1].Agency)
	assert.Empty(t, got[1].Bureau)
	assert.Equal(t, "Title 17 Innovative Technology", got[1].Program)
}

func TestCursor_States(t *testing.T) {
	l := &Layout{Fields: fields("rate"), Bureaus: map[string]struct{}{"B": {}}}
	c := NewCursor(l, Options{})
	assert.Equal(t, StateAgency, c.State())

	c.Step(NewRow("Agency One"))
	assert.Equal(t, StateBureauOrAccount, c.State())
	assert.Equal(t, Context{Agency: "Agency One"}, c.Context())

	c.Step(NewRow("B:"))
	c.Step(NewRow("Account:"))
	assert.Equal(t, Context{Agency: "Agency One", Bureau: "B", Account: "Account"}, c.Context())

	c.Step(NewRow("Loans......", "1"))
	assert.Equal(t, StateProgram, c.State())

	c.Step(NewRow("Other Account:"))
	assert.Equal(t, Context{Agency: "Agency One", Bureau: "B", Account: "Other Account"}, c.Context())

	c.Step(NewRow("B:"))
	assert.Equal(t, Context{Agency: "Agency One", Bureau: "B"}, c.Context())

	c.Step(NewRow(""))
	c.Step(NewRow("Agency Two"))
	assert.Equal(t, Context{Agency: "Agency Two"}, c.Context())

	c.Step(NewRow("stray lowercase", "9"))
	assert.Equal(t, 1, c.Dropped())
	assert.Len(t, c.Records(), 1)
}

func TestProgramName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Guaranteed Loans.......", "Guaranteed Loans"},
		{"Farm Ownership 2......", "Farm Ownership"},
		{"Farm Ownership 1/......", "Farm Ownership"},
		{"1/ Emergency Loans......", "Emergency Loans"},
		{"504 Certified Development Companies......", "504 Certified Development Companies"},
		{"7(a) General Business Loans: ...", "7(a) General Business Loans"},
		{"Rural Electrification…", "Rural Electrification"},
		{"Stafford:", "Stafford"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ProgramName(tt.in))
		})
	}
}

func TestDetectCohorts(t *testing.T) {
	head := rows(
		[]string{"Table 1. Direct Loan Programs, FY 2023 and 2024"},
		[]string{"Agency", "BEA", "2023 Subsidy Rate", "", "", "2024 Subsidy Rate"},
	)
	assert.Equal(t, []int{2023, 2024}, DetectCohorts(head, CohortPair))
	assert.Equal(t, []int{2024}, DetectCohorts(head, CohortSingle))
	assert.Nil(t, DetectCohorts(head, CohortNone))

	one := rows([]string{"Fiscal year 2019 estimates"})
	assert.Equal(t, []int{2018, 2019}, DetectCohorts(one, CohortPair))

	assert.Nil(t, DetectCohorts(rows([]string{"No years, only 1999 and 2099"}), CohortPair))
}

func TestObservation_MarshalJSON(t *testing.T) {
	o := obs(2024, "b_field", cell.Num(1.5), "a_field", null)
	b, err := o.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"cohort_year":2024,"b_field":1.5,"a_field":null}`, string(b))

	b, err = obs(0, "x", cell.Str("y")).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"x":"y"}`, string(b))
}

func TestObservation_UnmarshalJSON(t *testing.T) {
	want := obs(2024, "b_field", cell.Num(1.5), "a_field", null, "note", cell.Str("y"))
	b, err := want.MarshalJSON()
	require.NoError(t, err)

	var got Observation
	require.NoError(t, got.UnmarshalJSON(b))
	assert.Equal(t, want, got)

	assert.Error(t, got.UnmarshalJSON([]byte(`[1,2]`)))
	assert.Error(t, got.UnmarshalJSON([]byte(`{"cohort_year":"x"}`)))
}

func TestClass_String(t *testing.T) {
	tests := []struct {
		class Class
		want  string
	}{
		{class: ClassSkip, want: "skip"},
		{class: ClassProgram, want: "program"},
		{class: ClassCohort, want: "cohort"},
		{class: ClassAccount, want: "account"},
		{class: Class(99), want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.NotPanics(t, func() { _ = tt.class.String() })
			assert.Equal(t, tt.want, tt.class.String())
		})
	}
}
