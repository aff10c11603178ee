package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/identity"
)

const agency = "Department of Agriculture"

// lookalikes registers two programs that differ by key but share a fuzzy
// group. The second is seen in more years.
func lookalikes(t *testing.T) (*Registry, string, string) {
	t.Helper()
	r := newRegistry(t)
	a := r.Register(agency, "Farm Service Agency", "ACIF Direct", "Farm Operating Loans", 2012)
	b := r.Register(agency, "Farm Service Agency", "ACIF Program Account", "Farm Operating Loan", 2013)
	r.Register(agency, "Farm Service Agency", "ACIF Program Account", "Farm Operating Loan", 2014)
	r.Register(agency, "Farm Service Agency", "ACIF Program Account", "Farm Operating Loan", 2015)
	require.NotEqual(t, a, b)
	return r, a, b
}

func TestReconcile_MergeNoOverlap(t *testing.T) {
	r, a, b := lookalikes(t)
	rates := Rates{a: {2012: 1.0}, b: {2014: 9.0}}

	res := r.Reconcile(rates, DefaultRateTolerance)

	assert.Equal(t, 1, res.Merges)
	assert.Zero(t, res.BlockedByRates)
	assert.Equal(t, 2, res.ProgramsBefore)
	assert.Equal(t, 1, res.ProgramsAfter)
	assert.Equal(t, []Merge{{From: a, Into: b}}, res.Merged)

	// The longer-lived program survives even though it has the larger ID.
	all := r.AllPrograms()
	require.Len(t, all, 1)
	survivor, ok := all[b]
	require.True(t, ok)
	assert.Equal(t, []int{2012, 2013, 2014, 2015}, survivor.BudgetYearsSeen)
	assert.Equal(t, []string{"Farm Operating Loan", "Farm Operating Loans"}, survivor.NameVariants)

	got, ok := r.GetID(agency, "Farm Service Agency", "ACIF Direct", "Farm Operating Loans")
	require.True(t, ok)
	assert.Equal(t, b, got, "pre-merge tuple resolves to survivor")
	for _, k := range survivor.KeyVariants {
		id, ok := r.LookupKey(k)
		require.True(t, ok, k)
		assert.Equal(t, b, id, k)
	}

	resolved, ok := r.ResolveID(a)
	require.True(t, ok)
	assert.Equal(t, b, resolved)
	_, ok = r.Get(a)
	assert.False(t, ok, "merged identity is removed")
}

func TestReconcile_MergeWithinTolerance(t *testing.T) {
	r, a, b := lookalikes(t)
	rates := Rates{a: {2014: 1.0}, b: {2014: 1.3}}

	res := r.Reconcile(rates, 0.5)
	assert.Equal(t, 1, res.Merges)
	assert.Equal(t, 1, r.Count())
}

func TestReconcile_BlockedByRates(t *testing.T) {
	r, a, b := lookalikes(t)
	rates := Rates{a: {2013: 1.0, 2014: 1.0}, b: {2013: 1.2, 2014: 3.0}}

	res := r.Reconcile(rates, DefaultRateTolerance)

	assert.Zero(t, res.Merges)
	assert.Equal(t, 1, res.BlockedByRates)
	assert.Equal(t, []Block{{From: a, Into: b, CohortYear: 2014, FromRate: 1.0, IntoRate: 3.0}}, res.Blocked)
	assert.Equal(t, 2, r.Count())

	gotA, ok := r.GetID(agency, "Farm Service Agency", "ACIF Direct", "Farm Operating Loans")
	require.True(t, ok)
	gotB, ok := r.GetID(agency, "Farm Service Agency", "ACIF Program Account", "Farm Operating Loan")
	require.True(t, ok)
	assert.Equal(t, a, gotA)
	assert.Equal(t, b, gotB)
	assert.NotEqual(t, gotA, gotB)
}

func TestReconcile_TieBreakByID(t *testing.T) {
	r := newRegistry(t)
	a := r.Register("Dept", "B", "X", "Widget Loans", 2020)
	b := r.Register("Dept", "B", "Y", "Widget Loan", 2021)

	res := r.Reconcile(nil, DefaultRateTolerance)
	assert.Equal(t, []Merge{{From: b, Into: a}}, res.Merged)
}

func TestReconcile_DifferentAgenciesNotGrouped(t *testing.T) {
	r := newRegistry(t)
	r.Register("Department of Agriculture", "B", "", "Direct Loans", 2020)
	r.Register("Department of Energy", "B", "", "Direct Loans", 2020)

	res := r.Reconcile(nil, DefaultRateTolerance)
	assert.Zero(t, res.Merges)
	assert.Equal(t, 2, res.ProgramsAfter)
}

func TestReconcile_ChainedMerges(t *testing.T) {
	r := newRegistry(t)
	a := r.Register("Dept", "B", "1", "Thing Loans", 2010)
	b := r.Register("Dept", "B", "2", "Thing Loan", 2011)
	c := r.Register("Dept", "B", "3", "Thing-Loans", 2012)
	r.Register("Dept", "B", "3", "Thing-Loans", 2013)

	res := r.Reconcile(nil, DefaultRateTolerance)
	assert.Equal(t, 2, res.Merges)

	for _, acct := range []string{"1", "2", "3"} {
		name := map[string]string{"1": "Thing Loans", "2": "Thing Loan", "3": "Thing-Loans"}[acct]
		id, ok := r.GetID("Dept", "B", acct, name)
		require.True(t, ok)
		assert.Equal(t, c, id)
	}
	for _, old := range []string{a, b} {
		id, ok := r.ResolveID(old)
		require.True(t, ok)
		assert.Equal(t, c, id)
	}
}

func TestFinalizeCanonicalNames(t *testing.T) {
	r := newRegistry(t)
	id := r.Register("Dept", "B", "", "Farm Loans", 2015)
	r.Register("Dept", "B", "", "Farm Loans 3", 2018)
	r.Register("Dept", "B", "", "Farm Loans", 2012)

	r.FinalizeCanonicalNames()
	info, _ := r.Get(id)
	assert.Equal(t, "Farm Loans 3", info.CanonicalName)
	assert.Equal(t, 2018, info.NameYears["Farm Loans 3"])
	assert.Equal(t, 2015, info.NameYears["Farm Loans"])
}

func TestFinalizeCanonicalNames_TieIsLexicographic(t *testing.T) {
	r := newRegistry(t)
	id := r.Register("Dept", "B", "", "Zeta Loans 1", 2020)
	r.Register("Dept", "B", "", "Zeta Loans 2", 2020)
	r.Register("Dept", "B", "", "Zeta Loans", 2020)

	r.FinalizeCanonicalNames()
	info, _ := r.Get(id)
	assert.Equal(t, "Zeta Loans", info.CanonicalName)
}

func TestRates_AddKeepsFirst(t *testing.T) {
	rates := Rates{}
	rates.Add("P001", 2015, 1.1)
	rates.Add("P001", 2015, 9.9)
	rates.Add("P001", 2016, 2.2)
	assert.Equal(t, map[int]float64{2015: 1.1, 2016: 2.2}, rates["P001"])
}

func TestSnapshotRestore(t *testing.T) {
	r, a, b := lookalikes(t)
	r.Reconcile(nil, DefaultRateTolerance)
	snap := r.Snapshot()

	assert.Equal(t, 3, snap.NextSeq)
	assert.Equal(t, map[string]string{a: b}, snap.Retired)
	for _, id := range snap.Keys {
		assert.Equal(t, b, id)
	}

	restored := New(Config{Aliases: identity.NewAliases(nil)})
	require.NoError(t, restored.Restore(snap))

	got, ok := restored.GetID(agency, "Farm Service Agency", "ACIF Direct", "Farm Operating Loans")
	require.True(t, ok)
	assert.Equal(t, b, got)
	resolved, ok := restored.ResolveID(a)
	require.True(t, ok)
	assert.Equal(t, b, resolved)

	assert.Equal(t, b, restored.Register(agency, "Farm Service Agency", "ACIF Program Account", "Farm Operating Loan", 2016))
	assert.Equal(t, "P003", restored.Register("Department of Energy", "", "", "New Program", 2016))
	assert.Equal(t, r.Programs()[0].NameVariants, snap.Programs[0].NameVariants)
}

func TestRestore_Errors(t *testing.T) {
	r := New(Config{})

	err := r.Restore(Snapshot{Keys: map[string]string{"a|b|c|d": "P009"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown program")

	err = r.Restore(Snapshot{Programs: []Info{{ID: "P001", Seq: 1}, {ID: "P001", Seq: 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = r.Restore(Snapshot{Programs: []Info{{ID: "", Seq: 0}}})
	require.Error(t, err)
}
