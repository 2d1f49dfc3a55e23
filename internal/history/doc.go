// Package history persists observatory events to SQLite.
//
// Every status event the core publishes (mount coordinates, guiding
// state, actuator positions, focuser feedback) can be recorded here,
// giving a local audit trail that survives broker restarts and works
// when the time-series database is unavailable.
//
//	┌──────────┐   Publish    ┌──────────┐   INSERT   ┌──────────┐
//	│ mount /  │ ───────────► │ Recorder │ ─────────► │  SQLite  │
//	│ guider / │              │  (sink)  │            │ event_   │
//	│ actuator │              └──────────┘            │ history  │
//	└──────────┘                                      └──────────┘
//
// The Recorder type adapts the repository to the Publish(event, payload)
// sink interface the device controllers emit through, so it slots into
// the same fan-out as the MQTT sink. Bulky events (overlay frames) are
// skipped to keep the database small.
//
// Retention is managed by Prune, typically run periodically from main.
package history
