// Package history stores poll readings in SQLite.
//
// Each poll cycle produces one row. Fields that failed to read during the
// cycle are stored as NULL, so the table shows exactly what the console
// printed as ERR.
//
// The schema lives in the top-level migrations package and must be applied
// with database.Migrate before the repository is used.
package history
