// Package store persists controller state in SQLite so learned
// calibration and the last commanded position survive restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-valves/internal/calibration"
	"github.com/nerrad567/gray-logic-valves/internal/valve"
)

// Record is one persisted controller state.
type Record struct {
	ValveID   string      `json:"valve_id"`
	UpdatedAt time.Time   `json:"updated_at"`
	State     valve.State `json:"state"`
}

// SQLiteRepository stores valve state in the valve_state and
// valve_calibration tables.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed state repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Save replaces the stored state of a valve. Calibration rows keep the
// order of s.Calibration.
func (r *SQLiteRepository) Save(ctx context.Context, id string, s valve.State) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const upsert = `INSERT INTO valve_state (valve_id, position, heating_until_target, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(valve_id) DO UPDATE SET
			position = excluded.position,
			heating_until_target = excluded.heating_until_target,
			updated_at = excluded.updated_at`
	updated := r.now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, upsert, id, s.Position, boolToInt(s.HeatingUntilTarget), updated); err != nil {
		return fmt.Errorf("saving state for %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM valve_calibration WHERE valve_id = ?`, id); err != nil {
		return fmt.Errorf("clearing calibration for %s: %w", id, err)
	}

	const insert = `INSERT INTO valve_calibration (valve_id, target, seq, felt_temp_delta, sweet_spot)
		VALUES (?, ?, ?, ?, ?)`
	for i, k := range s.Calibration {
		if _, err := tx.ExecContext(ctx, insert, id, k.Target, i, k.FeltTempDelta, k.SweetSpot); err != nil {
			return fmt.Errorf("saving calibration %v for %s: %w", k.Target, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing state for %s: %w", id, err)
	}
	return nil
}

// Load returns the stored state of a valve.
func (r *SQLiteRepository) Load(ctx context.Context, id string) (valve.State, error) {
	const query = `SELECT valve_id, position, heating_until_target, updated_at
		FROM valve_state WHERE valve_id = ?`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return valve.State{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return valve.State{}, fmt.Errorf("loading state for %s: %w", id, err)
	}

	cal, err := r.calibration(ctx, id)
	if err != nil {
		return valve.State{}, err
	}
	rec.State.Calibration = cal
	return rec.State, nil
}

// List returns every stored state ordered by valve ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Record, error) {
	const query = `SELECT valve_id, position, heating_until_target, updated_at
		FROM valve_state ORDER BY valve_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing valve state: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning valve state: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating valve state: %w", err)
	}

	for i := range records {
		cal, err := r.calibration(ctx, records[i].ValveID)
		if err != nil {
			return nil, err
		}
		records[i].State.Calibration = cal
	}
	return records, nil
}

// Delete removes the stored state of a valve.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM valve_calibration WHERE valve_id = ?`, id); err != nil {
		return fmt.Errorf("deleting calibration for %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM valve_state WHERE valve_id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting state for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) calibration(ctx context.Context, id string) ([]calibration.Keyed, error) {
	const query = `SELECT target, felt_temp_delta, sweet_spot
		FROM valve_calibration WHERE valve_id = ? ORDER BY seq`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("loading calibration for %s: %w", id, err)
	}
	defer rows.Close()

	var out []calibration.Keyed
	for rows.Next() {
		var k calibration.Keyed
		if err := rows.Scan(&k.Target, &k.FeltTempDelta, &k.SweetSpot); err != nil {
			return nil, fmt.Errorf("scanning calibration for %s: %w", id, err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var (
		rec     Record
		heating int
		updated string
	)
	if err := s.Scan(&rec.ValveID, &rec.State.Position, &heating, &updated); err != nil {
		return Record{}, err
	}
	rec.State.HeatingUntilTarget = heating != 0
	if t, err := time.Parse(time.RFC3339, updated); err == nil {
		rec.UpdatedAt = t
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
