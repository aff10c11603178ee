package registry

import (
	"log/slog"
	"math"
	"sort"

	"github.com/leapstack-labs/creditscope/internal/identity"
)

// DefaultRateTolerance is the largest subsidy-rate difference, in percentage
// points, that still counts as the same program.
const DefaultRateTolerance = 0.5

// Rates maps program ID -> cohort year -> original subsidy rate percent.
type Rates map[string]map[int]float64

// Add records a rate unless one is already present for the cohort.
func (r Rates) Add(id string, cohort int, rate float64) {
	m, ok := r[id]
	if !ok {
		m = make(map[int]float64)
		r[id] = m
	}
	if _, seen := m[cohort]; !seen {
		m[cohort] = rate
	}
}

// Merge describes one identity folded into another.
type Merge struct {
	From string `json:"from"`
	Into string `json:"into"`
}

// Block describes a merge refused because subsidy rates disagree.
type Block struct {
	From       string  `json:"from"`
	Into       string  `json:"into"`
	CohortYear int     `json:"cohort_year"`
	FromRate   float64 `json:"from_rate"`
	IntoRate   float64 `json:"into_rate"`
}

// Result summarizes a reconciliation pass.
type Result struct {
	Merges         int     `json:"merges"`
	BlockedByRates int     `json:"blocked_by_rates"`
	ProgramsBefore int     `json:"programs_before"`
	ProgramsAfter  int     `json:"programs_after"`
	Merged         []Merge `json:"merged,omitempty"`
	Blocked        []Block `json:"blocked,omitempty"`
}

// Reconcile merges programs whose fuzzy keys collide. Within a group the
// program seen in the most budget years survives, lower ID breaking ties.
// A merge is refused when both programs have a subsidy rate for a common
// cohort year and the rates differ by more than tolerance. It must run after
// all registrations; IDs are never reassigned.
func (r *Registry) Reconcile(rates Rates, tolerance float64) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{ProgramsBefore: len(r.programs)}

	groups := make(map[string][]*program)
	var order []string
	for _, p := range r.live() {
		k := identity.GroupKey(p.agency, p.canonicalName)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], p)
	}

	for _, k := range order {
		members := groups[k]
		if len(members) < 2 {
			continue
		}
		sort.SliceStable(members, func(i, j int) bool {
			if len(members[i].years) != len(members[j].years) {
				return len(members[i].years) > len(members[j].years)
			}
			return members[i].seq < members[j].seq
		})
		target := members[0]
		for _, cand := range members[1:] {
			if b, conflict := rateConflict(rates[target.id], rates[cand.id], tolerance); conflict {
				b.From, b.Into = cand.id, target.id
				res.BlockedByRates++
				res.Blocked = append(res.Blocked, b)
				r.logger.Debug("merge blocked by rates",
					slog.String("from", cand.id),
					slog.String("into", target.id),
					slog.Int("cohort_year", b.CohortYear))
				continue
			}
			r.merge(cand, target)
			res.Merges++
			res.Merged = append(res.Merged, Merge{From: cand.id, Into: target.id})
		}
	}
	r.compress()

	res.ProgramsAfter = len(r.programs)
	r.logger.Info("reconciled",
		slog.Int("merges", res.Merges),
		slog.Int("blocked_by_rates", res.BlockedByRates),
		slog.Int("programs", res.ProgramsAfter))
	return res
}

// rateConflict reports the earliest common cohort whose rates differ by more
// than tolerance. No overlap is not a conflict.
func rateConflict(into, from map[int]float64, tolerance float64) (Block, bool) {
	var common []int
	for y := range into {
		if _, ok := from[y]; ok {
			common = append(common, y)
		}
	}
	sort.Ints(common)
	for _, y := range common {
		if math.Abs(into[y]-from[y]) > tolerance {
			return Block{CohortYear: y, FromRate: from[y], IntoRate: into[y]}, true
		}
	}
	return Block{}, false
}

// merge folds src into dst and retires src's ID.
func (r *Registry) merge(src, dst *program) {
	for n := range src.nameVariants {
		dst.nameVariants[n] = struct{}{}
	}
	for k := range src.keyVariants {
		dst.keyVariants[k] = struct{}{}
	}
	for y := range src.years {
		dst.years[y] = struct{}{}
	}
	for n, y := range src.nameYears {
		if cur, ok := dst.nameYears[n]; !ok || y > cur {
			dst.nameYears[n] = y
		}
	}
	r.parent[src.seq] = dst.seq
	r.retired[src.id] = dst.id
	delete(r.programs, src.seq)
	r.logger.Debug("programs merged",
		slog.String("from", src.id),
		slog.String("into", dst.id))
}

// FinalizeCanonicalNames sets each program's display name to the variant seen
// in the latest budget year, breaking ties lexicographically.
func (r *Registry) FinalizeCanonicalNames() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.programs {
		if len(p.nameYears) == 0 {
			continue
		}
		best, bestYear := "", math.MinInt
		for n, y := range p.nameYears {
			if y > bestYear || (y == bestYear && n < best) {
				best, bestYear = n, y
			}
		}
		p.canonicalName = best
	}
}
