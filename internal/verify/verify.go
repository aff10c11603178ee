// Package verify runs sanity checks over a built dataset.
package verify

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/leapstack-labs/creditscope/internal/dataset"
	"github.com/leapstack-labs/creditscope/internal/extract"
)

// Status of a check.
type Status string

// Check outcomes. Only StatusFail makes a report fail.
const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusInfo Status = "info"
)

// Thresholds used by the checks.
const (
	ShortLivedYears   = 2
	RateJumpPctPts    = 20.0
	CrossTableMissing = 0.5
)

// Check is the outcome of one check.
type Check struct {
	Name    string   `json:"name"`
	Status  Status   `json:"status"`
	Summary string   `json:"summary"`
	Details []string `json:"details,omitempty"`
}

// Report is the result of Run.
type Report struct {
	Programs int     `json:"programs"`
	Checks   []Check `json:"checks"`
	// Coverage maps budget year to the tables extracted for it.
	Coverage map[int][]int `json:"coverage"`
	// Sectors counts programs per sector.
	Sectors map[string]int `json:"sectors"`
}

// Failed reports whether any check failed.
func (r *Report) Failed() bool {
	for _, c := range r.Checks {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// Run loads the dataset in dir and runs every check.
func Run(dir string) (*Report, error) {
	ds, err := dataset.Load(dir)
	if err != nil {
		return nil, err
	}
	cov, err := Coverage(dir)
	if err != nil {
		return nil, err
	}
	return Evaluate(ds, cov), nil
}

// Evaluate runs every check over a loaded dataset.
func Evaluate(ds *dataset.Dataset, coverage map[int][]int) *Report {
	programs := ds.Programs()
	r := &Report{
		Programs: len(programs),
		Coverage: coverage,
		Sectors:  sectorCounts(programs),
	}
	r.Checks = []Check{
		coverageCheck(coverage),
		unclassified(programs, ds),
		distribution(r.Sectors),
		shortLived(programs),
		crossTable(ds),
		rateJumps(ds),
	}
	return r
}

// Coverage scans the by_year directory for extracted (year, table) pairs.
func Coverage(dir string) (map[int][]int, error) {
	files, err := filepath.Glob(filepath.Join(dir, dataset.ByYearDir, "fy*_table*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dataset.ByYearDir, err)
	}
	out := make(map[int][]int)
	for _, f := range files {
		var year, table int
		if _, err := fmt.Sscanf(filepath.Base(f), "fy%d_table%d.json", &year, &table); err != nil {
			continue
		}
		out[year] = append(out[year], table)
	}
	for y := range out {
		sort.Ints(out[y])
	}
	return out, nil
}

func coverageCheck(cov map[int][]int) Check {
	if len(cov) == 0 {
		return Check{Name: "coverage", Status: StatusWarn, Summary: "no extracted sources found"}
	}
	years := make([]int, 0, len(cov))
	pairs := 0
	for y, ts := range cov {
		years = append(years, y)
		pairs += len(ts)
	}
	sort.Ints(years)
	c := Check{Name: "coverage", Status: StatusInfo,
		Summary: fmt.Sprintf("%d (year, table) pairs across %d years", pairs, len(years))}
	for _, y := range years {
		c.Details = append(c.Details, fmt.Sprintf("FY%d: tables %v", y, cov[y]))
	}
	return c
}

func unclassified(programs []dataset.MasterEntry, ds *dataset.Dataset) Check {
	c := Check{Name: "sector classification"}
	for _, p := range programs {
		switch {
		case p.Sector == "":
			c.Details = append(c.Details, fmt.Sprintf("%s (%s): no sector", p.ProgramID, p.CanonicalName))
		case len(ds.Taxonomy.Sectors) > 0 && !knownSector(ds, p.Sector):
			c.Details = append(c.Details, fmt.Sprintf("%s (%s): unknown sector %q", p.ProgramID, p.CanonicalName, p.Sector))
		}
	}
	if len(c.Details) > 0 {
		c.Status = StatusFail
		c.Summary = fmt.Sprintf("%d unclassified programs", len(c.Details))
		return c
	}
	c.Status = StatusPass
	c.Summary = "all programs classified"
	return c
}

func knownSector(ds *dataset.Dataset, id string) bool {
	_, ok := ds.Taxonomy.Sectors[id]
	return ok
}

func sectorCounts(programs []dataset.MasterEntry) map[string]int {
	out := make(map[string]int)
	for _, p := range programs {
		out[p.Sector]++
	}
	return out
}

func distribution(counts map[string]int) Check {
	type kv struct {
		sector string
		n      int
	}
	list := make([]kv, 0, len(counts))
	for s, n := range counts {
		list = append(list, kv{s, n})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].n != list[j].n {
			return list[i].n > list[j].n
		}
		return list[i].sector < list[j].sector
	})
	c := Check{Name: "sector distribution", Status: StatusInfo,
		Summary: fmt.Sprintf("%d sectors in use", len(list))}
	for _, e := range list {
		c.Details = append(c.Details, fmt.Sprintf("%s: %d", e.sector, e.n))
	}
	return c
}

func shortLived(programs []dataset.MasterEntry) Check {
	c := Check{Name: "short-lived programs"}
	for _, p := range programs {
		if len(p.BudgetYearsSeen) <= ShortLivedYears {
			c.Details = append(c.Details, fmt.Sprintf("%s %s: only in %v", p.ProgramID, p.CanonicalName, p.BudgetYearsSeen))
		}
	}
	if len(c.Details) == 0 {
		c.Status = StatusPass
		c.Summary = "none found"
		return c
	}
	c.Status = StatusWarn
	c.Summary = fmt.Sprintf("%d programs in %d or fewer budget years (may need aliases)", len(c.Details), ShortLivedYears)
	return c
}

func crossTable(ds *dataset.Dataset) Check {
	c := Check{Name: "cross-table consistency", Status: StatusPass, Summary: "consistent"}
	t1 := ds.Groups["table1_historical.json"]
	if t1 == nil || len(t1.Programs) == 0 {
		c.Status = StatusInfo
		c.Summary = "no Table 1 programs"
		return c
	}
	for _, file := range []string{"table3_4_characteristics.json", "table7_8_reestimates.json", "table9_10_disbursements.json"} {
		other := ds.Groups[file]
		if other == nil || len(other.Programs) == 0 {
			continue
		}
		missing := 0
		for id := range t1.Programs {
			if _, ok := other.Programs[id]; !ok {
				missing++
			}
		}
		if float64(missing) > float64(len(t1.Programs))*CrossTableMissing {
			c.Details = append(c.Details, fmt.Sprintf("%s: %d/%d Table 1 programs missing", file, missing, len(t1.Programs)))
		}
	}
	if len(c.Details) > 0 {
		c.Status = StatusWarn
		c.Summary = fmt.Sprintf("%d table families miss most Table 1 programs (expected for some tables)", len(c.Details))
	}
	return c
}

func rateJumps(ds *dataset.Dataset) Check {
	c := Check{Name: "subsidy rate jumps"}
	for _, file := range []string{"table1_historical.json", "table2_historical.json"} {
		gf := ds.Groups[file]
		if gf == nil {
			continue
		}
		ids := make([]string, 0, len(gf.Programs))
		for id := range gf.Programs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			c.Details = append(c.Details, programJumps(gf.Programs[id])...)
		}
	}
	if len(c.Details) == 0 {
		c.Status = StatusPass
		c.Summary = "none found"
		return c
	}
	c.Status = StatusWarn
	c.Summary = fmt.Sprintf("%d jumps over %.0f pct pts", len(c.Details), RateJumpPctPts)
	return c
}

// programJumps compares the budget-year rate of consecutive reported years.
// A year without a rate breaks the chain.
func programJumps(p *dataset.GroupEntry) []string {
	years := make([]int, 0, len(p.BudgetYears))
	for k := range p.BudgetYears {
		if y, err := strconv.Atoi(k); err == nil {
			years = append(years, y)
		}
	}
	sort.Ints(years)

	var out []string
	var prev float64
	havePrev := false
	for _, y := range years {
		rate, ok := budgetYearRate(p.BudgetYears[strconv.Itoa(y)])
		if !ok {
			havePrev = false
			continue
		}
		if havePrev && math.Abs(rate-prev) > RateJumpPctPts {
			out = append(out, fmt.Sprintf("%s (%s): %.1f%% -> %.1f%% (%d)", p.ProgramID, p.CanonicalName, prev, rate, y))
		}
		prev, havePrev = rate, true
	}
	return out
}

func budgetYearRate(yd dataset.YearData) (float64, bool) {
	for i := len(yd.Observations) - 1; i >= 0; i-- {
		if r, ok := yd.Observations[i].Float(extract.FieldSubsidyRate); ok {
			return r, true
		}
	}
	return 0, false
}
