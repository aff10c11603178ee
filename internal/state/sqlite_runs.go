package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const runColumns = `id, status, started_at, completed_at, start_year, end_year, tables,
	programs_before, programs_after, merges, blocked, error`

// CreateRun starts a run.
func (s *SQLiteStore) CreateRun(startYear, endYear int, tables []int) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if tables == nil {
		tables = []int{}
	}
	run := &Run{
		ID:        generateID(),
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
		StartYear: startYear,
		EndYear:   endYear,
		Tables:    tables,
	}
	tablesJSON, err := encodeJSON(run.Tables)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tables: %w", err)
	}

	s.logger.Debug("creating run", slog.String("id", run.ID))
	_, err = s.db.ExecContext(ctx(),
		`INSERT INTO runs (id, status, started_at, start_year, end_year, tables) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.StartedAt, run.StartYear, run.EndYear, tablesJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun finishes a run with a status and its reconciliation stats.
func (s *SQLiteStore) CompleteRun(id string, status RunStatus, stats RunStats, errMsg string) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	var errVal sql.NullString
	if errMsg != "" {
		errVal = sql.NullString{String: errMsg, Valid: true}
	}
	res, err := s.db.ExecContext(ctx(),
		`UPDATE runs SET status = ?, completed_at = ?, programs_before = ?, programs_after = ?,
			merges = ?, blocked = ?, error = ? WHERE id = ?`,
		status, time.Now().UTC(), stats.ProgramsBefore, stats.ProgramsAfter,
		stats.Merges, stats.Blocked, errVal, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRowContext(ctx(), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// GetLatestRun returns the most recent run, or nil when there is none.
func (s *SQLiteStore) GetLatestRun() (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	run, err := scanRun(s.db.QueryRowContext(ctx(),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteStore) ListRuns(limit int) ([]*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	var tables string
	var errMsg sql.NullString
	err := row.Scan(&run.ID, &run.Status, &run.StartedAt, &completedAt, &run.StartYear, &run.EndYear,
		&tables, &run.Stats.ProgramsBefore, &run.Stats.ProgramsAfter, &run.Stats.Merges,
		&run.Stats.Blocked, &errMsg)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.Error = errMsg.String
	if err := decodeJSON(tables, &run.Tables); err != nil {
		return nil, fmt.Errorf("failed to decode tables: %w", err)
	}
	return run, nil
}

// RecordSources stores the per-source outcomes of a run.
func (s *SQLiteStore) RecordSources(runID string, sources []SourceRun) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	tx, err := s.db.BeginTx(ctx(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx(),
		`INSERT OR REPLACE INTO source_results (run_id, year, table_num, status, path, records, error, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare source insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, src := range sources {
		if _, err := stmt.ExecContext(ctx(), runID, src.Year, src.Table, src.Status, src.Path,
			src.Records, nullString(src.Error), src.ElapsedMS); err != nil {
			return fmt.Errorf("failed to record FY%d table %d: %w", src.Year, src.Table, err)
		}
	}
	return tx.Commit()
}

// GetSources returns the source outcomes of a run in (year, table) order.
func (s *SQLiteStore) GetSources(runID string) ([]SourceRun, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx(),
		`SELECT run_id, year, table_num, status, COALESCE(path, ''), records, COALESCE(error, ''), elapsed_ms
		FROM source_results WHERE run_id = ? ORDER BY year, table_num`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SourceRun
	for rows.Next() {
		var src SourceRun
		if err := rows.Scan(&src.RunID, &src.Year, &src.Table, &src.Status, &src.Path,
			&src.Records, &src.Error, &src.ElapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan source: %w", err)
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
