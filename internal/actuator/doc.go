// Package actuator controls the dome and etalon servo board over a
// line-based ASCII TCP protocol.
//
// The board (a microcontroller behind a small TCP daemon, default port
// 5555) accepts one command per line and answers one response per line:
//
//	dome <0|180>     -> "dome:<deg>"
//	et1 <0..180>     -> "et1:<val>"
//	et2 <0..180>     -> "et2:<val>"
//	status           -> multi-line "dome:<deg>", "et1:<val>", "et2:<val>"
//
// # Key Responsibilities
//
//   - Serialise request/response pairs under a single mutex (no pipelining)
//   - Connect lazily, cap consecutive failures, and rate-limit failure logs
//   - Close idle sockets so stale half-open connections are never held
//   - Poll board status periodically and classify dome position into
//     Open (>=170 deg), Closed (<=10 deg), or Moving
//
// All failures degrade to logged warnings plus the connected flag on the
// published state; commands issued while the board is unreachable return
// false rather than erroring.
package actuator
