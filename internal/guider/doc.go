// Package guider closes the visual feedback loop: it samples frames
// from the science camera preview, locates the bright solar disk, and
// issues corrective motion pulses to keep the disk centered.
//
// # Pipeline
//
//	fetch (HTTP) ─► downscale ─► grayscale ─► blur ─► Otsu threshold
//	    ─► largest connected region ─► first-moment centroid
//
// The error vector is the centroid minus the frame center, reported as
// (dx, dy, r). Each loop iteration publishes an annotated JPEG overlay
// and a status event, then decides corrections:
//
//   - deadband: no pulses while r is within the deadband radius
//   - gain: pulse duration = clamp(gain × r, min, max) milliseconds
//   - refractory: each axis waits a minimum interval between pulses
//   - polarity: axis direction mapping is configurable per axis since
//     the optical train may mirror either one
//
// Lock detection is hysteretic: a streak counter rises while r stays
// inside the lock radius and falls otherwise, and the locked flag
// tracks whether the streak has reached the hold threshold. Single
// noisy frames therefore cannot flicker the lock state.
//
// The loop paces itself to a target rate by measuring iteration time
// and sleeping the remainder; a slow frame source costs at most its
// fetch timeout per iteration.
package guider
