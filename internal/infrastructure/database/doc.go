// Package database provides SQLite connectivity for Gray Logic Valves.
//
// The database only holds state that must survive a restart: the last
// commanded valve position, the heating-until-target latch, and the learned
// calibration table of every controller.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations (see the migrations package)
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and
// are additive-only: new columns must be NULLABLE or have DEFAULT values.
package database
