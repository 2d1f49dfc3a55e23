// Package mount drives an equatorial mount through an INDIGO device
// server, translating high-level motion requests into property vector
// writes and mirroring the mount's reported state into a local cache.
//
// # Architecture
//
//	┌─────────────┐   property vectors    ┌──────────────────┐
//	│ Controller  │ ◄──────────────────── │  indigo.Client   │
//	│  (cache +   │ ────────────────────► │  (JSON lines)    │
//	│   pulses)   │   switch/number sets  └──────────────────┘
//	└──────┬──────┘
//	       │ mount_status / mount_coordinates
//	       ▼
//	┌─────────────┐
//	│ StatusSink  │
//	└─────────────┘
//
// # State
//
// The controller caches RA/Dec and Alt/Az coordinates, the selected
// slew rate, the park flag, and per-axis motion flags. The cache is
// updated only by property vector handlers; everything else reads it
// through accessors. Cached motion flags reflect the last event seen,
// not necessarily live hardware state.
//
// The derived status is PARKED when the park flag is set, SLEWING when
// either axis reports motion, and IDLE otherwise. Status is recomputed
// and published synchronously after every handled event.
//
// # Pulse guiding
//
// Nudge fires a short timed motion on one axis. At most one pulse is
// in flight per controller: a new request cancels the previous session
// through its context and waits a short grace period before starting.
// The pulse goroutine clears the motion switch on every exit path, so
// the axis is released whether the pulse ran to completion, was
// cancelled, or was superseded.
//
// # Self-healing
//
// A 1 Hz poller re-requests the tracked property names so the cache
// recovers from missed or reordered events without operator action.
package mount
