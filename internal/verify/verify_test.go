package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/dataset"
	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/sector"
)

func rateYear(rates ...float64) dataset.YearData {
	var yd dataset.YearData
	for i, r := range rates {
		yd.Observations = append(yd.Observations, extract.Observation{
			CohortYear: 2014 + i,
			Fields:     []extract.FieldValue{{Name: extract.FieldSubsidyRate, Value: cell.Num(r)}},
		})
	}
	return yd
}

func fixture() *dataset.Dataset {
	ds := &dataset.Dataset{
		Master: map[string]dataset.MasterEntry{
			"P001": {ProgramID: "P001", CanonicalName: "Farm Operating", Sector: "agriculture", BudgetYearsSeen: []int{2014, 2015, 2016}},
			"P002": {ProgramID: "P002", CanonicalName: "Stafford", Sector: "education", BudgetYearsSeen: []int{2016}},
		},
		Groups:   map[string]*dataset.GroupFile{},
		Taxonomy: sector.New(lookups.Default()).Taxonomy(),
	}
	for _, g := range dataset.Groups {
		ds.Groups[g.File] = &dataset.GroupFile{Programs: map[string]*dataset.GroupEntry{}}
	}
	ds.Groups["table1_historical.json"].Programs["P001"] = &dataset.GroupEntry{
		ProgramID: "P001", CanonicalName: "Farm Operating",
		BudgetYears: map[string]dataset.YearData{
			"2014": rateYear(5, 6),
			"2015": rateYear(6, 30),
			"2016": rateYear(31),
		},
	}
	ds.Groups["table1_historical.json"].Programs["P002"] = &dataset.GroupEntry{
		ProgramID: "P002", CanonicalName: "Stafford",
		BudgetYears: map[string]dataset.YearData{"2016": rateYear(1)},
	}
	ds.Groups["table7_8_reestimates.json"].Programs["P002"] = &dataset.GroupEntry{ProgramID: "P002"}
	return ds
}

func find(t *testing.T, r *Report, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not in report", name)
	return Check{}
}

func TestEvaluate(t *testing.T) {
	r := Evaluate(fixture(), map[int][]int{2015: {1, 2}, 2016: {1}})

	assert.False(t, r.Failed())
	assert.Equal(t, 2, r.Programs)
	assert.Equal(t, map[string]int{"agriculture": 1, "education": 1}, r.Sectors)

	cov := find(t, r, "coverage")
	assert.Equal(t, StatusInfo, cov.Status)
	assert.Equal(t, "3 (year, table) pairs across 2 years", cov.Summary)

	assert.Equal(t, StatusPass, find(t, r, "sector classification").Status)

	short := find(t, r, "short-lived programs")
	assert.Equal(t, StatusWarn, short.Status)
	assert.Len(t, short.Details, 1)

	cross := find(t, r, "cross-table consistency")
	assert.Equal(t, StatusPass, cross.Status)

	jumps := find(t, r, "subsidy rate jumps")
	assert.Equal(t, StatusWarn, jumps.Status)
	assert.Equal(t, []string{"P001 (Farm Operating): 6.0% -> 30.0% (2015)"}, jumps.Details)
}

func TestEvaluate_Unclassified(t *testing.T) {
	ds := fixture()
	p := ds.Master["P002"]
	p.Sector = ""
	ds.Master["P002"] = p
	ds.Master["P003"] = dataset.MasterEntry{ProgramID: "P003", Sector: "space"}

	r := Evaluate(ds, nil)
	assert.True(t, r.Failed())
	c := find(t, r, "sector classification")
	assert.Equal(t, StatusFail, c.Status)
	assert.Len(t, c.Details, 2)
	assert.Equal(t, StatusWarn, find(t, r, "coverage").Status)
}

func TestEvaluate_CrossTable(t *testing.T) {
	ds := fixture()
	ds.Groups["table9_10_disbursements.json"].Programs["P999"] = &dataset.GroupEntry{ProgramID: "P999"}

	c := find(t, Evaluate(ds, nil), "cross-table consistency")
	assert.Equal(t, StatusWarn, c.Status)
	assert.Equal(t, []string{"table9_10_disbursements.json: 2/2 Table 1 programs missing"}, c.Details)
}

func TestRateJumps_GapBreaksChain(t *testing.T) {
	p := &dataset.GroupEntry{
		ProgramID: "P001", CanonicalName: "X",
		BudgetYears: map[string]dataset.YearData{
			"2014": rateYear(1),
			"2015": {},
			"2016": rateYear(40),
		},
	}
	assert.Empty(t, programJumps(p))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	ds := fixture()
	ds.Sources = []dataset.SourceFile{{BudgetYear: 2016, Table: 1}, {BudgetYear: 2015, Table: 2}}
	require.NoError(t, dataset.Write(dir, ds))
	require.NoError(t, os.WriteFile(filepath.Join(dir, dataset.ByYearDir, "notes.json"), []byte("{}"), 0o600))

	r, err := Run(dir)
	require.NoError(t, err)
	assert.Equal(t, map[int][]int{2015: {2}, 2016: {1}}, r.Coverage)
	assert.False(t, r.Failed())

	_, err = Run(t.TempDir())
	require.Error(t, err)
}
