package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database. Useful for tests and for
// running without persistence.
const MemoryPath = ":memory:"

const (
	dirPerm  = 0o750
	filePerm = 0o600

	pingTimeout = 5 * time.Second
)

// Config maps to the database section of config.yaml.
type Config struct {
	Path        string
	WALMode     bool
	BusyTimeout int // seconds
}

// DB is the state database. The embedded *sql.DB is handed to repositories.
type DB struct {
	*sql.DB
	path string
}

// Open connects to the database at cfg.Path, creating the parent directory
// and file as needed. The pool is pinned to one connection because SQLite
// serialises writers and an in-memory database lives on one connection.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, errors.New("database path is empty")
	}

	onDisk := cfg.Path != MemoryPath
	if onDisk {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPerm); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg, onDisk))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	// An in-memory database disappears with its connection.
	if onDisk {
		sqlDB.SetConnMaxIdleTime(30 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Path, err)
	}

	if onDisk {
		_ = os.Chmod(cfg.Path, filePerm)
	}
	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

func dsn(cfg Config, onDisk bool) string {
	params := []string{
		fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout*int(time.Second/time.Millisecond)),
		"_foreign_keys=on",
	}
	// WAL needs a real file.
	if cfg.WALMode && onDisk {
		params = append(params, "_journal_mode=WAL", "_synchronous=NORMAL")
	}
	return "file:" + cfg.Path + "?" + strings.Join(params, "&")
}

// Path returns the configured location, or MemoryPath.
func (db *DB) Path() string { return db.path }

// Close is safe to call on a DB that was never opened.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// HealthCheck runs SQLite's quick integrity check.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database health check: %s", result)
	}
	return nil
}

// inTx runs fn in a transaction, committing when it returns nil.
func (db *DB) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
