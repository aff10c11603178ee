package state

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leapstack-labs/creditscope/internal/registry"
)

// SaveRegistry replaces the persisted identities with snap. Labels are keyed
// by program ID.
func (s *SQLiteStore) SaveRegistry(runID string, snap registry.Snapshot, labels map[string]Labels) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}
	tx, err := s.db.BeginTx(ctx(), nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"programs", "program_keys", "retired", "registry_meta"} {
		if _, err := tx.ExecContext(ctx(), "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	progStmt, err := tx.PrepareContext(ctx(),
		`INSERT INTO programs (program_id, seq, canonical_name, agency, bureau, account, sector, department,
			name_variants, key_variants, budget_years_seen, name_years, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare program insert: %w", err)
	}
	defer func() { _ = progStmt.Close() }()

	for _, p := range snap.Programs {
		enc, err := encodeProgram(p)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", p.ID, err)
		}
		l := labels[p.ID]
		if _, err := progStmt.ExecContext(ctx(), p.ID, p.Seq, p.CanonicalName, p.Agency, p.Bureau, p.Account,
			l.Sector, l.Department, enc[0], enc[1], enc[2], enc[3], nullString(runID)); err != nil {
			return fmt.Errorf("failed to save program %s: %w", p.ID, err)
		}
	}

	for key, id := range snap.Keys {
		if _, err := tx.ExecContext(ctx(), `INSERT INTO program_keys (key, program_id) VALUES (?, ?)`, key, id); err != nil {
			return fmt.Errorf("failed to save key %q: %w", key, err)
		}
	}
	for from, into := range snap.Retired {
		if _, err := tx.ExecContext(ctx(), `INSERT INTO retired (program_id, into_id) VALUES (?, ?)`, from, into); err != nil {
			return fmt.Errorf("failed to save retired %s: %w", from, err)
		}
	}
	if _, err := tx.ExecContext(ctx(),
		`INSERT INTO registry_meta (id, next_seq, run_id, saved_at) VALUES (1, ?, ?, ?)`,
		snap.NextSeq, nullString(runID), time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to save registry metadata: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry: %w", err)
	}
	s.logger.Debug("registry saved",
		slog.Int("programs", len(snap.Programs)),
		slog.Int("keys", len(snap.Keys)),
		slog.Int("retired", len(snap.Retired)))
	return nil
}

func encodeProgram(p registry.Info) ([4]string, error) {
	var out [4]string
	for i, v := range []any{nonNilStrings(p.NameVariants), nonNilStrings(p.KeyVariants), nonNilInts(p.BudgetYearsSeen), p.NameYears} {
		s, err := encodeJSON(v)
		if err != nil {
			return out, err
		}
		out[i] = s
	}
	if p.NameYears == nil {
		out[3] = "{}"
	}
	return out, nil
}

// LoadRegistry returns the persisted snapshot, or nil when nothing has been
// saved yet.
func (s *SQLiteStore) LoadRegistry() (*registry.Snapshot, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	snap := &registry.Snapshot{Keys: map[string]string{}, Retired: map[string]string{}}
	err := s.db.QueryRowContext(ctx(), `SELECT next_seq FROM registry_meta WHERE id = 1`).Scan(&snap.NextSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry metadata: %w", err)
	}

	programs, err := s.ListPrograms()
	if err != nil {
		return nil, err
	}
	for _, p := range programs {
		snap.Programs = append(snap.Programs, p.Info)
	}
	if err := s.loadPairs(`SELECT key, program_id FROM program_keys`, snap.Keys); err != nil {
		return nil, fmt.Errorf("failed to load keys: %w", err)
	}
	if err := s.loadPairs(`SELECT program_id, into_id FROM retired`, snap.Retired); err != nil {
		return nil, fmt.Errorf("failed to load retired ids: %w", err)
	}
	return snap, nil
}

func (s *SQLiteStore) loadPairs(query string, into map[string]string) error {
	rows, err := s.db.QueryContext(ctx(), query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		into[k] = v
	}
	return rows.Err()
}

// ListPrograms returns persisted programs in ID order.
func (s *SQLiteStore) ListPrograms() ([]Program, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	rows, err := s.db.QueryContext(ctx(),
		`SELECT program_id, seq, canonical_name, agency, bureau, account, sector, department,
			name_variants, key_variants, budget_years_seen, name_years, COALESCE(run_id, '')
		FROM programs ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Program
	for rows.Next() {
		var p Program
		var names, keys, years, nameYears string
		if err := rows.Scan(&p.ID, &p.Seq, &p.CanonicalName, &p.Agency, &p.Bureau, &p.Account,
			&p.Sector, &p.Department, &names, &keys, &years, &nameYears, &p.RunID); err != nil {
			return nil, fmt.Errorf("failed to scan program: %w", err)
		}
		for _, d := range []struct {
			src string
			dst any
		}{{names, &p.NameVariants}, {keys, &p.KeyVariants}, {years, &p.BudgetYearsSeen}, {nameYears, &p.NameYears}} {
			if err := decodeJSON(d.src, d.dst); err != nil {
				return nil, fmt.Errorf("failed to decode program %s: %w", p.ID, err)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
