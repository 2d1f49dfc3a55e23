package history

import (
	"context"
	"encoding/json"
	"time"
)

// Subsystem values recorded alongside each event.
const (
	SubsystemMount    = "mount"
	SubsystemGuider   = "guider"
	SubsystemActuator = "actuator"
	SubsystemFocuser  = "focuser"
	SubsystemTracker  = "tracker"
	SubsystemSystem   = "system"
)

// Entry represents a single recorded observatory event.
//
// Each entry stores the full event payload as JSON at the time it was
// published, providing a local audit trail independent of the broker.
type Entry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// Subsystem identifies the producing component (mount, guider, ...).
	Subsystem string `json:"subsystem"`

	// Event is the event name as published (e.g. "mount_coordinates").
	Event string `json:"event"`

	// Payload is the JSON snapshot of the event payload.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp of the event (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Repository stores and retrieves observatory event history.
//
// Implementations must be thread-safe and use UTC timestamps.
type Repository interface {
	// Record persists one event.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - subsystem: Producing component (mount, guider, ...)
	//   - event: Event name as published
	//   - payload: Event payload, marshalled to JSON for storage
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Record(ctx context.Context, subsystem, event string, payload any) error

	// Recent returns recent events for a subsystem, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - subsystem: Producing component to filter by
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []Entry: Entries ordered by created_at DESC
	//   - error: nil on success, otherwise the underlying query error
	Recent(ctx context.Context, subsystem string, limit int) ([]Entry, error)

	// Prune deletes entries older than the given duration.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - olderThan: Retention window (entries older than now-olderThan are deleted)
	//
	// Returns:
	//   - int64: Number of rows deleted
	//   - error: nil on success, otherwise the underlying database error
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}
