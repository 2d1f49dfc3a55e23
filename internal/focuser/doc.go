// Package focuser drives an nSTEP stepper focuser through an INDIGO
// device server.
//
// Motion is press-and-hold: Move starts travel inward or outward at a
// clamped speed, and "stop" aborts. The focuser reports its absolute
// position through a number vector; the package caches the last seen
// value and publishes a feedback event pairing the current position
// with the most recent commanded speed.
package focuser
