// Package dataset assembles the unified per-program JSON outputs from a run
// and reads them back for verification.
package dataset

import (
	"fmt"
	"strconv"
	"time"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/engine"
	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/sector"
)

// File names inside the output directory.
const (
	MasterFile   = "programs_master.json"
	ManifestFile = "manifest.json"
	TaxonomyFile = "sector_taxonomy.json"
	ByYearDir    = "by_year"
)

// Group is one unified table-family file.
type Group struct {
	File        string
	Tables      []int
	Description string
	// CreditType is fixed for single-table groups and inferred per table
	// otherwise.
	CreditType string
}

// Groups lists the unified files in output order.
var Groups = []Group{
	{File: "table1_historical.json", Tables: []int{1}, Description: "Direct Loan Programs - Budget Formulation, all years", CreditType: extract.DirectLoan},
	{File: "table2_historical.json", Tables: []int{2}, Description: "Loan Guarantee Programs - Budget Formulation, all years", CreditType: extract.LoanGuarantee},
	{File: "table3_4_characteristics.json", Tables: []int{3, 4}, Description: "Subsidy Estimates and Loan Characteristics (prior-year cohort), all years"},
	{File: "table5_6_characteristics.json", Tables: []int{5, 6}, Description: "Subsidy Estimates and Loan Characteristics (budget-year cohort), all years"},
	{File: "table7_8_reestimates.json", Tables: []int{7, 8}, Description: "Subsidy Reestimates, all years"},
	{File: "table9_10_disbursements.json", Tables: []int{9, 10}, Description: "Disbursement Schedules, all years"},
}

// GroupFor returns the group holding a table.
func GroupFor(table int) (Group, bool) {
	for _, g := range Groups {
		for _, t := range g.Tables {
			if t == table {
				return g, true
			}
		}
	}
	return Group{}, false
}

// CreditType infers the credit type of a table: odd tables are direct
// loans, even tables are loan guarantees.
func CreditType(table int) string {
	if table%2 == 1 {
		return extract.DirectLoan
	}
	return extract.LoanGuarantee
}

// MasterEntry is one program of the programs master.
type MasterEntry struct {
	ProgramID       string   `json:"program_id"`
	CanonicalName   string   `json:"canonical_name"`
	Agency          string   `json:"agency"`
	Department      string   `json:"department"`
	Bureau          string   `json:"bureau"`
	Account         string   `json:"account"`
	Sector          string   `json:"sector"`
	NameVariants    []string `json:"name_variants"`
	BudgetYearsSeen []int    `json:"budget_years_seen"`
}

// YearData is the data one program reported in one budget year.
type YearData struct {
	Table        int                   `json:"_table,omitempty"`
	Attributes   map[string]cell.Value `json:"attributes,omitempty"`
	Observations []extract.Observation `json:"observations"`
}

// GroupEntry is one program inside a unified group file.
type GroupEntry struct {
	ProgramID     string              `json:"program_id"`
	CanonicalName string              `json:"canonical_name"`
	Agency        string              `json:"agency"`
	Bureau        string              `json:"bureau"`
	Sector        string              `json:"sector"`
	CreditType    string              `json:"credit_type"`
	BudgetYears   map[string]YearData `json:"budget_years"`
}

// GroupMetadata describes a unified group file.
type GroupMetadata struct {
	Description    string `json:"description"`
	BudgetYears    []int  `json:"budget_years"`
	TablesIncluded []int  `json:"tables_included"`
}

// GroupFile is the document written for a Group.
type GroupFile struct {
	Metadata GroupMetadata          `json:"metadata"`
	Programs map[string]*GroupEntry `json:"programs"`
}

// SourceFile is one by_year document: the extraction output of a source.
type SourceFile struct {
	BudgetYear int             `json:"budget_year"`
	Table      int             `json:"table"`
	CreditType string          `json:"credit_type"`
	Programs   []SourceProgram `json:"programs"`
}

// SourceProgram is an extracted record tagged with its resolved ID.
type SourceProgram struct {
	ProgramID string `json:"program_id"`
	extract.Record
}

// SourceStatus is one manifest entry.
type SourceStatus struct {
	Year     int    `json:"year"`
	Table    int    `json:"table"`
	Programs int    `json:"programs,omitempty"`
	Error    string `json:"error,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Summary counts manifest entries by outcome.
type Summary struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Manifest records what a run processed.
type Manifest struct {
	RunID          string         `json:"run_id,omitempty"`
	RunDate        time.Time      `json:"run_date"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	YearRange      [2]int         `json:"year_range"`
	Tables         []int          `json:"tables"`
	Summary        Summary        `json:"summary"`
	Success        []SourceStatus `json:"success"`
	Failed         []SourceStatus `json:"failed"`
	Skipped        []SourceStatus `json:"skipped"`
	Reconcile      ReconcileStats `json:"reconcile"`
}

// ReconcileStats is the reconciliation summary carried in the manifest.
type ReconcileStats struct {
	ProgramsBefore int `json:"programs_before"`
	ProgramsAfter  int `json:"programs_after"`
	Merges         int `json:"merges"`
	BlockedByRates int `json:"blocked_by_rates"`
}

// Dataset is every output document of a run.
type Dataset struct {
	Master   map[string]MasterEntry
	Groups   map[string]*GroupFile
	Sources  []SourceFile
	Manifest Manifest
	Taxonomy sector.Taxonomy
}

// Build assembles the dataset from a run result.
func Build(res *engine.Result, tax sector.Taxonomy) *Dataset {
	ds := &Dataset{
		Master:   make(map[string]MasterEntry, len(res.Programs)),
		Groups:   make(map[string]*GroupFile, len(Groups)),
		Taxonomy: tax,
	}
	for _, p := range res.Programs {
		ds.Master[p.ID] = MasterEntry{
			ProgramID:       p.ID,
			CanonicalName:   p.CanonicalName,
			Agency:          p.Agency,
			Department:      p.Department,
			Bureau:          p.Bureau,
			Account:         p.Account,
			Sector:          p.Sector,
			NameVariants:    nonNil(p.NameVariants),
			BudgetYearsSeen: nonNilInts(p.BudgetYearsSeen),
		}
	}

	years := make(map[string]map[int]struct{}, len(Groups))
	for _, g := range Groups {
		ds.Groups[g.File] = &GroupFile{
			Metadata: GroupMetadata{Description: g.Description, TablesIncluded: g.Tables, BudgetYears: []int{}},
			Programs: make(map[string]*GroupEntry),
		}
		years[g.File] = make(map[int]struct{})
	}

	for _, sr := range res.Sources {
		if sr.Status != metrics.StatusSuccess {
			continue
		}
		src := SourceFile{
			BudgetYear: sr.Source.Year,
			Table:      sr.Source.Table,
			CreditType: CreditType(sr.Source.Table),
			Programs:   make([]SourceProgram, 0, len(sr.Records)),
		}
		g, ok := GroupFor(sr.Source.Table)
		if ok {
			years[g.File][sr.Source.Year] = struct{}{}
		}
		for i, rec := range sr.Records {
			id := sr.ProgramIDs[i]
			src.Programs = append(src.Programs, SourceProgram{ProgramID: id, Record: rec})
			if ok {
				ds.addToGroup(g, id, rec)
			}
		}
		ds.Sources = append(ds.Sources, src)
	}
	for file, set := range years {
		ds.Groups[file].Metadata.BudgetYears = sortedInts(set)
	}

	ds.Manifest = buildManifest(res)
	return ds
}

// addToGroup stores a record under its program and budget year. A later
// record for the same program and year replaces an earlier one.
func (ds *Dataset) addToGroup(g Group, id string, rec extract.Record) {
	gf := ds.Groups[g.File]
	entry, ok := gf.Programs[id]
	if !ok {
		m := ds.Master[id]
		credit := g.CreditType
		if credit == "" {
			credit = CreditType(rec.Table)
		}
		entry = &GroupEntry{
			ProgramID:     id,
			CanonicalName: m.CanonicalName,
			Agency:        m.Agency,
			Bureau:        m.Bureau,
			Sector:        m.Sector,
			CreditType:    credit,
			BudgetYears:   make(map[string]YearData),
		}
		gf.Programs[id] = entry
	}
	yd := YearData{Attributes: rec.Attributes, Observations: rec.Observations}
	if len(g.Tables) > 1 {
		yd.Table = rec.Table
	}
	entry.BudgetYears[strconv.Itoa(rec.BudgetYear)] = yd
}

func buildManifest(res *engine.Result) Manifest {
	m := Manifest{
		RunDate:        res.Started.UTC(),
		ElapsedSeconds: float64(res.Elapsed.Round(100*time.Millisecond)) / float64(time.Second),
		YearRange:      [2]int{res.StartYear, res.EndYear},
		Tables:         res.Tables,
		Success:        []SourceStatus{},
		Failed:         []SourceStatus{},
		Skipped:        []SourceStatus{},
		Reconcile: ReconcileStats{
			ProgramsBefore: res.Reconcile.ProgramsBefore,
			ProgramsAfter:  res.Reconcile.ProgramsAfter,
			Merges:         res.Reconcile.Merges,
			BlockedByRates: res.Reconcile.BlockedByRates,
		},
	}
	for _, s := range res.Sources {
		st := SourceStatus{Year: s.Source.Year, Table: s.Source.Table}
		switch s.Status {
		case metrics.StatusSuccess:
			st.Programs = len(s.Records)
			m.Success = append(m.Success, st)
		case metrics.StatusFailed:
			st.Error = errString(s.Err)
			m.Failed = append(m.Failed, st)
		default:
			st.Reason = "file not found"
			if s.Err != nil {
				st.Reason = s.Err.Error()
			}
			m.Skipped = append(m.Skipped, st)
		}
	}
	m.Summary = Summary{Success: len(m.Success), Failed: len(m.Failed), Skipped: len(m.Skipped)}
	return m
}

// SourceFileName is the by_year file name of a source.
func SourceFileName(year, table int) string {
	return fmt.Sprintf("fy%d_table%d.json", year, table)
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
