// Package tracker relays target positions to the mount on a fixed
// interval, keeping the instrument pointed without continuous operator
// input.
//
// A PositionSource supplies equatorial coordinates plus an altitude;
// the bundled solar source computes them from a standard low-accuracy
// ephemeris. While the target sits below the horizon the tracker
// pauses slewing and reports the condition instead of driving the
// mount into the ground.
package tracker
