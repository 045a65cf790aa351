package history

import (
	"context"
	"time"
)

// Query limits for Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one stored poll reading.
//
// A nil field means that read failed during the cycle.
type Entry struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	PVScaled  *float64  `json:"pv_scaled"`
	PVFloat   *float64  `json:"pv_float"`
	SPScaled  *float64  `json:"sp_scaled"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists and queries poll readings.
type Repository interface {
	// Record stores one reading. A zero CreatedAt means now.
	Record(ctx context.Context, e Entry) error

	// Recent returns the newest readings for a device, newest first.
	Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error)

	// Prune deletes readings older than olderThan and returns the count.
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
