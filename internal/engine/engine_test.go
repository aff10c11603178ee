package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/extract"
	"github.com/leapstack-labs/creditscope/internal/metrics"
	"github.com/leapstack-labs/creditscope/internal/source"
	"github.com/leapstack-labs/creditscope/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// rawDir holds FY2015 and FY2016 Table 2, FY2016 Table 8 and an unreadable
// FY2016 Table 1.
func rawDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteCSV(t, dir, 2015, 2, testutil.Table2Rows(2015))
	testutil.WriteCSV(t, dir, 2016, 2, testutil.Table2Rows(2016))
	testutil.WriteCSV(t, dir, 2016, 8, testutil.Table8Rows(2015, "1.02"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BUDGET-2016-FCS-table1.xls"), []byte{0xD0, 0xCF, 0x11, 0xE0}, 0o600))
	return dir
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testutil.NewTestLogger(t)
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "negative tolerance", cfg: Config{RateTolerance: -1}, wantErr: "rate tolerance"},
		{name: "reversed years", cfg: Config{StartYear: 2020, EndYear: 2010}, wantErr: "before start year"},
		{name: "unknown table", cfg: Config{Tables: []int{11}}, wantErr: "unknown table 11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	e, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, e.Tables())
	assert.Equal(t, DefaultWorkers, e.cfg.Workers)
}

func TestRun(t *testing.T) {
	m := metrics.New()
	e := newEngine(t, Config{
		RawDir:        rawDir(t),
		StartYear:     2015,
		EndYear:       2016,
		Tables:        []int{1, 2, 8},
		Workers:       2,
		RateTolerance: 0.5,
		Metrics:       m,
	})

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	var order [][2]int
	for _, s := range res.Sources {
		order = append(order, [2]int{s.Source.Year, s.Source.Table})
	}
	assert.Equal(t, [][2]int{{2015, 1}, {2015, 2}, {2015, 8}, {2016, 1}, {2016, 2}, {2016, 8}}, order)

	assert.Len(t, res.ByStatus(metrics.StatusSuccess), 3)
	assert.Len(t, res.ByStatus(metrics.StatusSkipped), 2)
	failed := res.ByStatus(metrics.StatusFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "FY2016 table 1", failed[0].Label())

	runErr := res.Err()
	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, source.ErrUnsupportedFormat)

	assert.Equal(t, 3, res.Reconcile.ProgramsBefore)
	assert.Equal(t, 2, res.Reconcile.ProgramsAfter)
	assert.Equal(t, 1, res.Reconcile.Merges)

	require.Len(t, res.Programs, 2)
	op := res.Programs[0]
	assert.Equal(t, "P001", op.ID)
	assert.Equal(t, "Farm Operating-Guaranteed", op.CanonicalName)
	assert.Equal(t, []int{2015, 2016}, op.BudgetYearsSeen)
	assert.Equal(t, "agriculture", op.Sector)
	assert.Equal(t, "Department of Agriculture", op.Department)

	got, ok := res.Program("P002")
	require.True(t, ok)
	assert.Equal(t, "Farm Ownership-Guaranteed", got.CanonicalName)
	_, ok = res.Program("P003")
	assert.False(t, ok)

	// The Table 8 record was registered as P003 and now resolves to P001.
	reest := res.Sources[5]
	require.Len(t, reest.Records, 1)
	assert.Equal(t, []string{"P001"}, reest.ProgramIDs)
	assert.Equal(t, []string{"P001", "P002"}, res.Sources[4].ProgramIDs)
}

func TestRun_DeterministicAcrossWorkers(t *testing.T) {
	dir := rawDir(t)
	var programs [][]Program
	for _, workers := range []int{1, 4} {
		e := newEngine(t, Config{RawDir: dir, StartYear: 2015, EndYear: 2016, Tables: []int{2, 8}, Workers: workers, RateTolerance: 0.5})
		res, err := e.Run(context.Background())
		require.NoError(t, err)
		require.NoError(t, res.Err())
		programs = append(programs, res.Programs)
	}
	assert.Equal(t, programs[0], programs[1])
}

func TestRun_Cancelled(t *testing.T) {
	e := newEngine(t, Config{RawDir: rawDir(t), StartYear: 2015, EndYear: 2016, Tables: []int{2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func reestimate(year int, account string, rate float64) extract.Record {
	return extract.Record{
		Table:      8,
		BudgetYear: year,
		Agency:     "Department of Agriculture",
		Bureau:     "Farm Service Agency",
		Account:    account,
		Program:    "Farm Operating",
		Observations: []extract.Observation{{
			CohortYear: 2014,
			Fields:     []extract.FieldValue{{Name: extract.FieldOriginalSubsidyRate, Value: cell.Num(rate)}},
		}},
	}
}

func TestBuildFromRecords_RateGuard(t *testing.T) {
	tests := []struct {
		name        string
		other       float64
		wantMerges  int
		wantBlocked int
		wantLive    []string
	}{
		{name: "rates agree", other: 1.3, wantMerges: 1, wantLive: []string{"P001", "P001"}},
		{name: "rates disagree", other: 3.0, wantBlocked: 1, wantLive: []string{"P001", "P002"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEngine(t, Config{RateTolerance: 0.5})
			b, err := e.BuildFromRecords([]extract.Record{
				reestimate(2015, "Agricultural Credit Insurance Fund", 1.0),
				reestimate(2016, "Agricultural Credit Insurance Fund Program Account", tt.other),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.wantMerges, b.Reconcile.Merges)
			assert.Equal(t, tt.wantBlocked, b.Reconcile.BlockedByRates)
			assert.Equal(t, tt.wantLive, b.RecordIDs)
		})
	}
}

func TestBuildFromRecords_PriorReusesIDs(t *testing.T) {
	first := newEngine(t, Config{})
	b, err := first.BuildFromRecords([]extract.Record{
		reestimate(2015, "Alpha", 1.0),
		{Table: 2, BudgetYear: 2015, Agency: "Small Business Administration", Bureau: "Small Business Administration", Program: "SBA Disaster Loans"},
	})
	require.NoError(t, err)
	snap := b.Registry.Snapshot()

	second := newEngine(t, Config{Prior: &snap})
	b2, err := second.BuildFromRecords([]extract.Record{
		{Table: 2, BudgetYear: 2016, Agency: "Small Business Administration", Bureau: "Small Business Administration", Program: "SBA Disaster Loans"},
		reestimate(2016, "Alpha", 1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P002", "P001"}, b2.RecordIDs)

	sba, ok := b2.Registry.Get("P002")
	require.True(t, ok)
	assert.Equal(t, []int{2015, 2016}, sba.BudgetYearsSeen)
	assert.Equal(t, "disaster_assistance", b2.Programs[1].Sector)
}

func TestExtractSource_UnknownTable(t *testing.T) {
	e := newEngine(t, Config{})
	_, err := e.ExtractSource(context.Background(), source.Source{Table: 12})
	require.Error(t, err)
}
