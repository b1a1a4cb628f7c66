package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"time"
)

// MigrationsFS and MigrationsDir locate the SQL files. The migrations
// package sets both from init.
var (
	MigrationsFS  embed.FS
	MigrationsDir = "migrations"
)

// migrationFile matches YYYYMMDD_HHMMSS_description.(up|down).sql.
var migrationFile = regexp.MustCompile(`^(\d{8}_\d{6})_(\w+)\.(up|down)\.sql$`)

// Migration is one schema step. Down may be empty.
type Migration struct {
	Version string
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	AppliedAt time.Time
}

// MigrationStatus reports what Migrate would do next.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Current is the newest applied version, or "" on an empty database.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at TEXT NOT NULL
)`

// Migrate applies every pending migration in version order, each in its own
// transaction. Running it twice is a no-op.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.Status(ctx)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		err := db.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
				m.Version, time.Now().UTC().Format(time.RFC3339))
			return err
		})
		if err != nil {
			return fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	status, err := db.Status(ctx)
	if err != nil {
		return err
	}
	version := status.Current()
	if version == "" {
		return nil
	}

	all, err := loadMigrations()
	if err != nil {
		return err
	}
	idx := sort.Search(len(all), func(i int) bool { return all[i].Version >= version })
	if idx == len(all) || all[idx].Version != version {
		return fmt.Errorf("applied migration %s has no file", version)
	}
	m := all[idx]
	if m.Down == "" {
		return fmt.Errorf("migration %s_%s cannot be reverted", m.Version, m.Name)
	}

	err = db.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.Down); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", m.Version)
		return err
	})
	if err != nil {
		return fmt.Errorf("reverting migration %s_%s: %w", m.Version, m.Name, err)
	}
	return nil
}

// Status compares schema_migrations with the migration files. It creates
// the bookkeeping table on first use.
func (db *DB) Status(ctx context.Context) (MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	all, err := loadMigrations()
	if err != nil {
		return MigrationStatus{}, err
	}

	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	status := MigrationStatus{Applied: applied}
	for _, m := range all {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var (
			a  AppliedMigration
			at string
		)
		if err := rows.Scan(&a.Version, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at)
		out = append(out, a)
	}
	return out, rows.Err()
}

// loadMigrations reads MigrationsFS, sorted by version. Files that do not
// follow the naming scheme are ignored. A missing directory means no
// migrations.
func loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		version, name, up, ok := parseMigrationFilename(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		body, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s_%s has no up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFilename splits "20260301_080000_valve_state.up.sql" into
// version "20260301_080000", name "valve_state" and direction up.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	m := migrationFile.FindStringSubmatch(filename)
	if m == nil {
		return "", "", false, false
	}
	return m[1], m[2], m[3] == "up", true
}
