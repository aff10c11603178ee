package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/creditscope/internal/identity"
	"github.com/leapstack-labs/creditscope/internal/lookups"
	"github.com/leapstack-labs/creditscope/internal/testutil"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	return New(Config{
		Aliases: identity.NewAliases(lookups.Default().Aliases),
		Logger:  testutil.NewTestLogger(t),
	})
}

func TestRegistry_Register(t *testing.T) {
	r := newRegistry(t)

	id := r.Register("Department of Agriculture", "Farm Service Agency", "ACIF", "Farm Operating", 2015)
	assert.Equal(t, "P001", id)
	assert.Equal(t, 1, r.Count())

	id2 := r.Register("Department of Energy", "Energy Programs", "Title 17", "Innovative Technology", 2015)
	assert.Equal(t, "P002", id2)

	info, ok := r.Get("P001")
	require.True(t, ok)
	assert.Equal(t, "Farm Operating", info.CanonicalName)
	assert.Equal(t, "Department of Agriculture", info.Agency)
	assert.Equal(t, []int{2015}, info.BudgetYearsSeen)
}

func TestRegistry_Idempotent(t *testing.T) {
	r := newRegistry(t)

	first := r.Register("Dept", "Bureau", "Account", "Program", 2020)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, r.Register("Dept", "Bureau", "Account", "Program", 2020))
	}
	assert.Len(t, r.AllPrograms(), 1)

	info, _ := r.Get(first)
	assert.Equal(t, []string{"Program"}, info.NameVariants)
	assert.Equal(t, []int{2020}, info.BudgetYearsSeen)
}

func TestRegistry_FootnotesAndDashes(t *testing.T) {
	r := newRegistry(t)

	a := r.Register("Dept. of X", "Bureau—Y", "Acct Z", "Program 2", 2019)
	b := r.Register("Dept. of X", "Bureau-Y", "Acct Z", "Program", 2020)
	assert.Equal(t, a, b)

	info, _ := r.Get(a)
	assert.Equal(t, []string{"Program", "Program 2"}, info.NameVariants)
	assert.Equal(t, []int{2019, 2020}, info.BudgetYearsSeen)
}

func TestRegistry_AliasEquivalence(t *testing.T) {
	for from, to := range lookups.Default().Aliases {
		t.Run(from, func(t *testing.T) {
			r := newRegistry(t)
			a := r.Register("Agency", "Bureau", "Account", from, 2018)
			b := r.Register("Agency", "Bureau", "Account", to, 2020)
			assert.Equal(t, a, b, "program position")

			r = newRegistry(t)
			b = r.Register("Agency", to, "Account", "Loans", 2020)
			a = r.Register("Agency", from, "Account", "Loans", 2018)
			assert.Equal(t, a, b, "bureau position, reverse order")
		})
	}
}

func TestRegistry_RawAndResolvedKeys(t *testing.T) {
	r := newRegistry(t)

	id := r.Register("Department of Education", "Office of Federal Student Aid", "", "Stafford Loans", 2012)

	raw := identity.CanonicalKey("Department of Education", "Office of Federal Student Aid", "", "Stafford Loans")
	resolved := identity.CanonicalKey("Department of Education", "Office of Federal Student Aid", "", "Stafford")

	got, ok := r.LookupKey(raw)
	require.True(t, ok)
	assert.Equal(t, id, got)
	got, ok = r.LookupKey(resolved)
	require.True(t, ok)
	assert.Equal(t, id, got)

	info, _ := r.Get(id)
	assert.ElementsMatch(t, []string{raw, resolved}, info.KeyVariants)
}

func TestRegistry_MissingHierarchy(t *testing.T) {
	r := newRegistry(t)

	id := r.Register("", "", "", "Orphan Loans", 2010)
	got, ok := r.GetID("", "", "", "Orphan Loans")
	require.True(t, ok)
	assert.Equal(t, id, got)
}

func TestRegistry_GetID_Unseen(t *testing.T) {
	r := newRegistry(t)
	r.Register("A", "B", "C", "D", 2020)

	_, ok := r.GetID("A", "B", "C", "E")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count(), "lookup does not register")
}

func TestRegistry_YearZeroNotRecorded(t *testing.T) {
	r := newRegistry(t)
	id := r.Register("A", "B", "C", "D", 0)
	info, _ := r.Get(id)
	assert.Empty(t, info.BudgetYearsSeen)
	assert.Equal(t, []string{"D"}, info.NameVariants)
	assert.Empty(t, info.NameYears)
}

func TestRegistry_EmptyNameNotAVariant(t *testing.T) {
	r := newRegistry(t)
	id := r.Register("A", "B", "C", "", 2015)
	require.Equal(t, id, r.Register("A", "B", "C", "", 2016))

	info, ok := r.Get(id)
	require.True(t, ok)
	assert.Empty(t, info.NameVariants)
	assert.Empty(t, info.NameYears)
	assert.Equal(t, []int{2015, 2016}, info.BudgetYearsSeen)
}

func TestRegistry_ConcurrentRegister(t *testing.T) {
	r := newRegistry(t)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Register("Agency", "Bureau", "", fmt.Sprintf("Program %c", 'A'+i%10), 2000+i/10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, r.Count())
	for _, info := range r.Programs() {
		assert.Len(t, info.BudgetYearsSeen, 5)
	}
}
