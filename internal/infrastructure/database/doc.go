// Package database provides SQLite connectivity for the field node's
// local telemetry store.
//
// This package manages:
//   - Database connection with WAL mode so readers do not block the writer
//   - Schema migrations for the node's own bookkeeping tables
//   - Connection lifecycle and health checks
//
// Per-device telemetry tables are created at runtime by the telemetry
// package, not by migrations.
//
// Security Considerations:
//   - All values are bound parameters
//   - Database file permissions are set to 0600 (owner read/write only)
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
package database
