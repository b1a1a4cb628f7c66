package database

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	t.Run("creates nested directory and file", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "state", "nested", "valves.db")

		db, err := Open(Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(dbPath); err != nil {
			t.Errorf("database file not created: %v", err)
		}
		if db.Path() != dbPath {
			t.Errorf("Path() = %q, want %q", db.Path(), dbPath)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if _, err := Open(Config{}); err == nil {
			t.Fatal("Open() with empty path should fail")
		}
	})

	t.Run("in memory ignores WAL", func(t *testing.T) {
		db, err := Open(Config{Path: MemoryPath, WALMode: true})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer db.Close()

		var mode string
		if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_mode: %v", err)
		}
		if mode != "memory" {
			t.Errorf("journal_mode = %q, want memory", mode)
		}
	})
}

func TestOpen_Pragmas(t *testing.T) {
	db := openTestDB(t)

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	_ = db.Close()
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}

func TestClose(t *testing.T) {
	var never *DB
	if err := never.Close(); err != nil {
		t.Errorf("Close() on nil DB error = %v", err)
	}
	if err := (&DB{}).Close(); err != nil {
		t.Errorf("Close() on unopened DB error = %v", err)
	}
}

func TestInTx(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE positions (valve_id TEXT PRIMARY KEY, position REAL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	insert := func(id string) func(*sql.Tx) error {
		return func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO positions VALUES (?, 42.5)", id)
			return err
		}
	}

	if err := db.inTx(ctx, insert("kitchen")); err != nil {
		t.Fatalf("inTx() commit error = %v", err)
	}

	boom := errors.New("boom")
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		if err := insert("bathroom")(tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("inTx() error = %v, want %v", err, boom)
	}

	var ids []string
	rows, err := db.QueryContext(ctx, "SELECT valve_id FROM positions ORDER BY valve_id")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 1 || ids[0] != "kitchen" {
		t.Errorf("rows = %v, want [kitchen]", ids)
	}
}

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "valves.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
