package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/leapstack-labs/creditscope/internal/cell"
	"github.com/leapstack-labs/creditscope/internal/dataset"
)

// Relational layout shared by the database sinks. Programs are keyed by ID;
// observations are stored long, one row per field, and replaced per source.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS programs (
		program_id TEXT PRIMARY KEY,
		canonical_name TEXT NOT NULL,
		agency TEXT,
		department TEXT,
		bureau TEXT,
		account TEXT,
		sector TEXT,
		name_variants TEXT,
		first_year INTEGER,
		last_year INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS observations (
		program_id TEXT NOT NULL,
		budget_year INTEGER NOT NULL,
		table_num INTEGER NOT NULL,
		cohort_year INTEGER,
		field TEXT NOT NULL,
		value_num DOUBLE PRECISION,
		value_text TEXT
	)`,
}

const (
	upsertProgramSQL = `INSERT INTO programs (program_id, canonical_name, agency, department, bureau, account, sector, name_variants, first_year, last_year)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (program_id) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			agency = excluded.agency,
			department = excluded.department,
			bureau = excluded.bureau,
			account = excluded.account,
			sector = excluded.sector,
			name_variants = excluded.name_variants,
			first_year = excluded.first_year,
			last_year = excluded.last_year`

	deleteObservationsSQL = `DELETE FROM observations WHERE budget_year = ? AND table_num = ?`

	insertObservationSQL = `INSERT INTO observations (program_id, budget_year, table_num, cohort_year, field, value_num, value_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// sqlSink holds the database/sql plumbing shared by the database sinks.
type sqlSink struct {
	DB     *sql.DB
	Logger *slog.Logger

	// numbered switches placeholders from ? to $1, $2, ...
	numbered bool
}

// Close closes the database connection.
func (s *sqlSink) Close() error {
	if s.DB != nil {
		s.Logger.Debug("closing database connection")
		return s.DB.Close()
	}
	return nil
}

func (s *sqlSink) bind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// write stores ds in one transaction after making sure the tables exist.
func (s *sqlSink) write(ctx context.Context, ds *dataset.Dataset) error {
	if s.DB == nil {
		return fmt.Errorf("database connection not established")
	}
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create export tables: %w", err)
		}
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	programs, err := s.writePrograms(ctx, tx, ds.Programs())
	if err != nil {
		return err
	}
	rows, err := s.writeObservations(ctx, tx, ds.Sources)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	s.Logger.Debug("export committed", "programs", programs, "observations", rows)
	return nil
}

func (s *sqlSink) writePrograms(ctx context.Context, tx *sql.Tx, entries []dataset.MasterEntry) (int, error) {
	stmt, err := tx.PrepareContext(ctx, s.bind(upsertProgramSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare program upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		variants, err := json.Marshal(nonNil(e.NameVariants))
		if err != nil {
			return 0, fmt.Errorf("failed to encode name variants: %w", err)
		}
		first, last := yearSpan(e.BudgetYearsSeen)
		if _, err := stmt.ExecContext(ctx,
			e.ProgramID, e.CanonicalName, e.Agency, e.Department, e.Bureau, e.Account, e.Sector,
			string(variants), first, last,
		); err != nil {
			return 0, fmt.Errorf("failed to upsert program %s: %w", e.ProgramID, err)
		}
	}
	return len(entries), nil
}

func (s *sqlSink) writeObservations(ctx context.Context, tx *sql.Tx, sources []dataset.SourceFile) (int, error) {
	del, err := tx.PrepareContext(ctx, s.bind(deleteObservationsSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare observation delete: %w", err)
	}
	defer func() { _ = del.Close() }()
	ins, err := tx.PrepareContext(ctx, s.bind(insertObservationSQL))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer func() { _ = ins.Close() }()

	n := 0
	for _, src := range sources {
		if _, err := del.ExecContext(ctx, src.BudgetYear, src.Table); err != nil {
			return n, fmt.Errorf("failed to clear FY%d table %d: %w", src.BudgetYear, src.Table, err)
		}
		for _, p := range src.Programs {
			for _, obs := range p.Observations {
				cohort := sql.NullInt64{Int64: int64(obs.CohortYear), Valid: obs.CohortYear != 0}
				for _, f := range obs.Fields {
					num, text := columns(f.Value)
					if _, err := ins.ExecContext(ctx,
						p.ProgramID, src.BudgetYear, src.Table, cohort, f.Name, num, text,
					); err != nil {
						return n, fmt.Errorf("failed to insert observation for %s: %w", p.ProgramID, err)
					}
					n++
				}
			}
		}
	}
	return n, nil
}

// columns splits a cell into its numeric and text columns; null cells fill
// neither.
func columns(v cell.Value) (sql.NullFloat64, sql.NullString) {
	switch v.Kind {
	case cell.Number:
		return sql.NullFloat64{Float64: v.Num, Valid: true}, sql.NullString{}
	case cell.Text:
		return sql.NullFloat64{}, sql.NullString{String: v.Str, Valid: true}
	default:
		return sql.NullFloat64{}, sql.NullString{}
	}
}

func yearSpan(years []int) (sql.NullInt64, sql.NullInt64) {
	if len(years) == 0 {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	lo, hi := years[0], years[0]
	for _, y := range years[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	return sql.NullInt64{Int64: int64(lo), Valid: true}, sql.NullInt64{Int64: int64(hi), Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
