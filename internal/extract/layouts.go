package extract

import "sort"

var (
	compositionFields = []string{
		"defaults_net_of_recoveries",
		"interest",
		"fees",
		"other",
	}
	characteristicFields = []string{
		"maturity_years",
		"borrower_rate_percent",
		"grace_period_years",
		"upfront_fees_percent",
		"annual_fees_percent",
		"other_fees_percent",
		"default_rate_percent",
		"recovery_rate_percent",
	}
	reestimateFields = []string{
		"original_subsidy_rate_percent",
		"current_reestimated_rate_percent",
		"change_due_to_interest_rates_pct_pts",
		"change_due_to_technical_assumptions_pct_pts",
		"current_reestimate_amount_thousands",
		"net_lifetime_reestimate_thousands",
		"net_lifetime_reestimate_excl_interest_thousands",
		"total_disbursements_to_date_thousands",
		"outstanding_balance_thousands",
	}
	disbursementFields = []string{
		"year_1", "year_2", "year_3", "year_4", "year_5",
		"year_6", "year_7", "year_8", "year_9", "year_10_plus",
	}
)

// Field names shared with downstream consumers.
const (
	FieldSubsidyRate         = "subsidy_rate_percent"
	FieldOriginalSubsidyRate = "original_subsidy_rate_percent"
)

// columns assigns consecutive columns starting at start.
func columns(start int, names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = Field{Name: n, Col: start + i}
	}
	return out
}

func formulation(table int, credit, volume string, bureaus map[string]struct{}) *Layout {
	return &Layout{
		Table:      table,
		Name:       "budget formulation estimates",
		CreditType: credit,
		HeaderRows: 2,
		Cohorts:    CohortPair,
		Slots: []Slot{
			{Fields: columns(2, FieldSubsidyRate, volume, "average_loan_size_thousands")},
			{Fields: columns(5, FieldSubsidyRate, volume, "average_loan_size_thousands")},
		},
		Attributes:  []Field{{Name: "bea_category", Col: 1}},
		Required:    []string{FieldSubsidyRate, volume},
		Bureaus:     bureaus,
		SkipPhrases: []string{"Agency", "BEA", "Weighted average", "Total"},
	}
}

func characteristics(table int, credit string, offset int, bureaus map[string]struct{}) *Layout {
	names := append([]string{FieldSubsidyRate}, compositionFields...)
	names = append(names, characteristicFields...)
	if credit == LoanGuarantee {
		names = append(names, "guarantee_percent")
	}
	return &Layout{
		Table:            table,
		Name:             "subsidy estimates and loan characteristics",
		CreditType:       credit,
		HeaderRows:       2,
		Cohorts:          CohortSingle,
		CohortOffset:     offset,
		Fields:           columns(1, names...),
		Required:         []string{FieldSubsidyRate},
		Bureaus:          bureaus,
		SkipPhrases:      []string{"Agency", "BEA", "Subsidy", "Weighted average", "Total"},
		LeadingFootnotes: true,
	}
}

func reestimates(table int, credit string, bureaus map[string]struct{}) *Layout {
	return &Layout{
		Table:        table,
		Name:         "subsidy reestimates",
		CreditType:   credit,
		HeaderRows:   2,
		Cohorts:      CohortPerRow,
		Fields:       columns(1, reestimateFields...),
		Bureaus:      bureaus,
		SkipPhrases:  []string{"Agency", "Bureau", "Subsidy", "Cohort", "Total"},
		IndentLabels: true,
	}
}

func disbursements(table int, credit string, bureaus map[string]struct{}) *Layout {
	return &Layout{
		Table:         table,
		Name:          "disbursement schedules",
		CreditType:    credit,
		HeaderRows:    2,
		Cohorts:       CohortNone,
		Fields:        columns(1, disbursementFields...),
		Required:      []string{"year_1"},
		Bureaus:       bureaus,
		SkipPhrases:   []string{"Agency", "Bureau", "Percentage", "Total"},
		IndentLabels:  true,
		ColonPrograms: true,
	}
}

// Layouts returns the layouts of FCS Tables 1-10. bureaus maps a table to
// its known bureau labels; labels under key 0 are known in every table.
func Layouts(bureaus map[int][]string) map[int]*Layout {
	set := func(table int) map[string]struct{} {
		out := make(map[string]struct{}, len(bureaus[0])+len(bureaus[table]))
		for _, b := range bureaus[0] {
			out[b] = struct{}{}
		}
		for _, b := range bureaus[table] {
			out[b] = struct{}{}
		}
		return out
	}
	return map[int]*Layout{
		1:  formulation(1, DirectLoan, "loan_levels_thousands", set(1)),
		2:  formulation(2, LoanGuarantee, "obligations_thousands", set(2)),
		3:  characteristics(3, DirectLoan, -1, set(3)),
		4:  characteristics(4, LoanGuarantee, -1, set(4)),
		5:  characteristics(5, DirectLoan, 0, set(5)),
		6:  characteristics(6, LoanGuarantee, 0, set(6)),
		7:  reestimates(7, DirectLoan, set(7)),
		8:  reestimates(8, LoanGuarantee, set(8)),
		9:  disbursements(9, DirectLoan, set(9)),
		10: disbursements(10, LoanGuarantee, set(10)),
	}
}

// Tables returns the table numbers of layouts in ascending order.
func Tables(layouts map[int]*Layout) []int {
	out := make([]int, 0, len(layouts))
	for t := range layouts {
		out = append(out, t)
	}
	sort.Ints(out)
	return out
}

// CohortYears returns the cohort years a layout reports for a budget year.
// CohortPerRow and CohortNone layouts return nil.
func (l *Layout) CohortYears(budgetYear int) []int {
	switch l.Cohorts {
	case CohortPair:
		return []int{budgetYear - 1, budgetYear}
	case CohortSingle:
		return []int{budgetYear + l.CohortOffset}
	default:
		return nil
	}
}
