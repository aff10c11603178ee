package extract

import (
	"regexp"
	"sort"
	"strconv"
)

const (
	minCohortYear = 2005
	maxCohortYear = 2035
)

var (
	yearToken   = regexp.MustCompile(`\b(20\d{2})\b`)
	cohortLabel = regexp.MustCompile(`^FY\s*(\d{4})`)
)

// DetectCohorts scans the top of a sheet for fiscal-year tokens. Pair layouts
// get the two largest years found (or the year before and the year found when
// only one is present); Single layouts get the largest. Nil means nothing
// usable was found.
func DetectCohorts(rows []Row, mode CohortMode) []int {
	seen := map[int]struct{}{}
	for i := 0; i < len(rows) && i < 5; i++ {
		for j := 0; j < len(rows[i].Cells) && j < 10; j++ {
			for _, m := range yearToken.FindAllStringSubmatch(rows[i].Cells[j], -1) {
				y, err := strconv.Atoi(m[1])
				if err != nil || y < minCohortYear || y > maxCohortYear {
					continue
				}
				seen[y] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	last := years[len(years)-1]

	switch mode {
	case CohortPair:
		if len(years) == 1 {
			return []int{last - 1, last}
		}
		return []int{years[len(years)-2], last}
	case CohortSingle:
		return []int{last}
	default:
		return nil
	}
}

// cohortRow returns the cohort year of an "FY 2015" row.
func cohortRow(label string) (int, bool) {
	m := cohortLabel.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return y, true
}
