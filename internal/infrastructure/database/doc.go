// Package database provides SQLite connectivity for the controller's event store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Forward-only schema migrations embedded in the binary
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files live in the top-level migrations package and are named
// YYYYMMDD_HHMMSS_description.up.sql.
package database
