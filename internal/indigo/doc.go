// Package indigo implements the JSON line protocol client for the INDIGO
// device server.
//
// INDIGO exposes hardware (mount agent, focuser) as typed property vectors:
// named groups of number, switch, light, or text items scoped by device.
// The server speaks newline-delimited JSON over TCP (default port 7624);
// each message is exactly one JSON object terminated by '\n'.
//
// # Architecture
//
//	┌──────────────────┐   JSON lines   ┌──────────────────┐
//	│  Mount / Focuser │◄──────────────►│  indigo.Client   │──► registered
//	│  (device server) │      TCP       │   (this pkg)     │    handlers
//	└──────────────────┘                └──────────────────┘
//
// # Key Responsibilities
//
//   - Connect with a bounded retry budget, then run a dedicated read loop
//   - Serialise outbound vectors (newNumberVector, newSwitchVector,
//     getProperties) as single atomic line writes
//   - Split inbound bytes on newlines, parse each line, and dispatch by
//     message kind to a typed handler registry
//   - Contain protocol errors: an unparseable line is logged and dropped,
//     the session continues
//
// Reconnection after a lost session is the caller's responsibility; the
// client reports Disconnected and stops its read loop.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Sends are serialised
// under a mutex so concurrent callers never interleave partial writes.
package indigo
