package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// timestampLayout matches the schema default, so rows written by SQLite and
// by Go sort the same way as text.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// SQLiteRepository implements Repository on the readings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository over an open, migrated database.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a reading.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - e: Reading to store; ID is ignored
//
// Returns:
//   - error: ErrDeviceIDRequired, or the underlying database error
func (r *SQLiteRepository) Record(ctx context.Context, e Entry) error {
	if e.DeviceID == "" {
		return ErrDeviceIDRequired
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO readings (device_id, pv_scaled, pv_float, sp_scaled, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.DeviceID,
		nullFloat(e.PVScaled),
		nullFloat(e.PVFloat),
		nullFloat(e.SPScaled),
		createdAt.UTC().Format(timestampLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Recent returns recent readings for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device identifier
//   - limit: Maximum entries (0 means DefaultLimit, capped at MaxLimit)
//
// Returns:
//   - []Entry: Readings ordered by created_at DESC
//   - error: ErrDeviceIDRequired, ErrInvalidLimit, or a query error
func (r *SQLiteRepository) Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	if deviceID == "" {
		return nil, ErrDeviceIDRequired
	}
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, pv_scaled, pv_float, sp_scaled, created_at
		 FROM readings
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		deviceID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var pvScaled, pvFloat, spScaled sql.NullFloat64
		var createdAt string

		if err := rows.Scan(&e.ID, &e.DeviceID, &pvScaled, &pvFloat, &spScaled, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		e.PVScaled = floatPtr(pvScaled)
		e.PVFloat = floatPtr(pvFloat)
		e.SPScaled = floatPtr(spScaled)

		if e.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return entries, nil
}

// Prune deletes readings older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: ErrInvalidRetention, or the underlying database error
func (r *SQLiteRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM readings WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// parseTimestamp parses a created_at value stored in SQLite.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err == nil {
		return ts, nil
	}
	if fallback, fallbackErr := time.Parse(timestampLayout, value); fallbackErr == nil {
		return fallback, nil
	}
	return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
}
