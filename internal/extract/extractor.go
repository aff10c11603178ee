// Package extract recovers the agency > bureau > account > program hierarchy
// from the flat row stream of an FCS table and emits one Record per program.
//
// One algorithm serves every table family. What differs between tables
// (column offsets, cohort handling, known bureau labels, label cues) lives in
// a Layout value.
package extract

import (
	"log/slog"

	"github.com/leapstack-labs/creditscope/internal/cell"
)

// Options configures a single extraction.
type Options struct {
	BudgetYear int
	// Cohorts overrides cohort years. When empty they are derived from the
	// budget year, then from the sheet header.
	Cohorts []int
	Logger  *slog.Logger
}

// Cursor walks rows one at a time, threading the hierarchy context through
// each step. A Cursor is not safe for concurrent use; use one per source.
type Cursor struct {
	layout  *Layout
	opts    Options
	logger  *slog.Logger
	cohorts []int

	ctx       Context
	state     State
	prevBlank bool
	header    string
	seen      int

	records []Record
	index   map[string]int
	dropped int
}

// NewCursor prepares a cursor for one (year, table) source.
func NewCursor(l *Layout, opts Options) *Cursor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cohorts := opts.Cohorts
	if len(cohorts) == 0 && opts.BudgetYear != 0 {
		cohorts = l.CohortYears(opts.BudgetYear)
	}
	return &Cursor{
		layout:    l,
		opts:      opts,
		logger:    logger,
		cohorts:   cohorts,
		prevBlank: true,
		index:     make(map[string]int),
	}
}

// Context returns the hierarchy active after the last row.
func (c *Cursor) Context() Context { return c.ctx }

// State returns the current extraction state.
func (c *Cursor) State() State { return c.state }

// Dropped counts data-bearing rows that could not be placed.
func (c *Cursor) Dropped() int { return c.dropped }

// Step consumes the next row.
func (c *Cursor) Step(row Row) {
	c.seen++
	if c.seen <= c.layout.HeaderRows {
		return
	}
	if row.Blank() || row.First() == "" {
		c.prevBlank = true
		return
	}

	d := Classify(c.layout, c.ctx, c.prevBlank, row)
	c.prevBlank = false

	switch d.Class {
	case ClassAgency:
		c.ctx.EnterAgency(d.Name)
		c.header = ""
		c.state = StateBureauOrAccount
	case ClassBureau:
		c.ctx.EnterBureau(d.Name)
		c.header = ""
		c.state = StateBureauOrAccount
	case ClassAccount:
		c.ctx.EnterAccount(d.Name)
		c.header = ""
		c.state = StateBureauOrAccount
	case ClassHeader:
		c.header = d.Name
		c.state = StateProgram
	case ClassCohort:
		c.addCohort(d.Cohort, row)
	case ClassProgram:
		c.emit(d.Name, row)
		c.state = StateProgram
	default:
		if c.layout.hasData(row) {
			c.dropped++
			c.logger.Debug("row dropped",
				slog.Int("table", c.layout.Table),
				slog.Int("budget_year", c.opts.BudgetYear),
				slog.String("label", row.First()))
		}
	}
}

// Records returns the records emitted so far, in first-seen order.
func (c *Cursor) Records() []Record {
	out := make([]Record, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Cursor) newRecord(program string) Record {
	return Record{
		Table:      c.layout.Table,
		BudgetYear: c.opts.BudgetYear,
		Agency:     c.ctx.Agency,
		Bureau:     c.ctx.Bureau,
		Account:    c.ctx.Account,
		Program:    program,
	}
}

func (c *Cursor) emit(program string, row Row) {
	if program == "" {
		c.dropped++
		return
	}
	rec := c.newRecord(program)
	if len(c.layout.Attributes) > 0 {
		rec.Attributes = make(map[string]cell.Value, len(c.layout.Attributes))
		for _, a := range c.layout.Attributes {
			rec.Attributes[a.Name] = c.layout.parse(row.Cell(a.Col))
		}
	}
	switch c.layout.Cohorts {
	case CohortPair:
		for i, s := range c.layout.Slots {
			rec.Observations = append(rec.Observations, c.layout.observation(row, s.Fields, c.cohortAt(i)))
		}
	case CohortSingle:
		rec.Observations = []Observation{c.layout.observation(row, c.layout.Fields, c.cohortAt(0))}
	default:
		rec.Observations = []Observation{c.layout.observation(row, c.layout.Fields, 0)}
	}
	c.records = append(c.records, rec)
}

func (c *Cursor) addCohort(year int, row Row) {
	if c.header == "" {
		return
	}
	rec := c.newRecord(c.header)
	k := rec.key()
	i, ok := c.index[k]
	if !ok {
		i = len(c.records)
		c.index[k] = i
		c.records = append(c.records, rec)
	}
	c.records[i].Observations = append(c.records[i].Observations,
		c.layout.observation(row, c.layout.Fields, year))
}

func (c *Cursor) cohortAt(i int) int {
	if i < len(c.cohorts) {
		return c.cohorts[i]
	}
	return 0
}

// Extract runs a fresh cursor over rows and returns its records. Cohort years
// missing from opts are detected from the sheet header when possible.
func Extract(l *Layout, rows []Row, opts Options) []Record {
	if len(opts.Cohorts) == 0 && opts.BudgetYear == 0 {
		opts.Cohorts = DetectCohorts(rows, l.Cohorts)
	}
	c := NewCursor(l, opts)
	for _, r := range rows {
		c.Step(r)
	}
	recs := c.Records()
	c.logger.Debug("extracted",
		slog.Int("table", l.Table),
		slog.Int("budget_year", opts.BudgetYear),
		slog.Int("rows", len(rows)),
		slog.Int("records", len(recs)),
		slog.Int("dropped", c.dropped))
	return recs
}
