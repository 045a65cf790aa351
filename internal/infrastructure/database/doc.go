// Package database provides SQLite connectivity for the reading history.
//
// This package manages:
//   - Connection setup with optional WAL mode
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Health checks and lifecycle management
//
// All queries use parameterised statements and the database file is
// restricted to 0600.
//
// Usage:
//
//	db, err := database.Open(ctx, database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql. New columns must be NULLABLE or carry a DEFAULT.
package database
