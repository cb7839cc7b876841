// Package database provides SQLite connectivity for the IR Bridge core.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations embedded into the binary
//   - Connection lifecycle management
//
// All coordination state lives here: pending request correlations, device
// registrations, remote profiles, and automation counters. The rest of the
// system treats the database as the concurrency primitive — conditional
// single-key writes stand in for locks.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
