package database

import (
	"context"
	"embed"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

// useMigrations points the package at fsys for the duration of the test.
func useMigrations(t *testing.T, fsys embed.FS, dir string) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	MigrationsFS, MigrationsDir = fsys, dir
	t.Cleanup(func() { MigrationsFS, MigrationsDir = origFS, origDir })
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, testMigrationsFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	before, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(before.Pending) != 1 || before.Current() != "" {
		t.Fatalf("Status() before = %+v, want one pending", before)
	}
	if before.Pending[0].Name != "create_test_valves" || before.Pending[0].Down == "" {
		t.Errorf("pending migration = %+v", before.Pending[0])
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "test_valves") {
		t.Fatal("test_valves not created")
	}

	// Second run must not reapply.
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}

	after, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if after.Current() != "20260101_090000" || len(after.Pending) != 0 {
		t.Errorf("Status() after = %+v", after)
	}
	if after.Applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}
}

func TestMigrateDown(t *testing.T) {
	useMigrations(t, testMigrationsFS, "testdata")
	db := openTestDB(t)
	ctx := context.Background()

	// Nothing applied yet.
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() on empty database error = %v", err)
	}

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "test_valves") {
		t.Error("test_valves should be dropped")
	}

	status, err := db.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.Applied) != 0 || len(status.Pending) != 1 {
		t.Errorf("Status() = %+v, want nothing applied", status)
	}
}

func TestMigrate_NoFiles(t *testing.T) {
	var empty embed.FS
	for _, dir := range []string{".", "migrations"} {
		t.Run(dir, func(t *testing.T) {
			useMigrations(t, empty, dir)
			db := openTestDB(t)

			if err := db.Migrate(context.Background()); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			if !tableExists(t, db, "schema_migrations") {
				t.Error("schema_migrations not created")
			}
		})
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260301_080000_valve_state.up.sql", "20260301_080000", "valve_state", true, true},
		{"20260301_080000_valve_state.down.sql", "20260301_080000", "valve_state", false, true},
		{"20260415_120000_add_window_log.up.sql", "20260415_120000", "add_window_log", true, true},
		{"20260301_080000_valve_state.sql", "", "", false, false},
		{"valve_state.up.sql", "", "", false, false},
		{"2026_0301_valve_state.up.sql", "", "", false, false},
		{"readme.md", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.filename)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
