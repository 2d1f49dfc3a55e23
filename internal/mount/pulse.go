package mount

import (
	"context"
	"strings"
	"time"

	"github.com/altair-obs/helioscope/internal/indigo"
)

// Device slew rate group members.
const (
	rateGuide     = "GUIDE"
	rateCentering = "CENTERING"
	rateFind      = "FIND"
	rateMax       = "MAX"
)

// Pulse timing limits.
const (
	// minPulseMs and maxPulseMs bound a single pulse duration.
	minPulseMs = 20
	maxPulseMs = 5000

	// cancelGrace is how long a new pulse waits for the previous
	// session to observe cancellation and release its axis.
	cancelGrace = 10 * time.Millisecond
)

// mapRate maps a user rate token to a device slew rate member.
// Unknown tokens fall back to the gentle guide rate.
func mapRate(userRate string) string {
	switch strings.ToLower(userRate) {
	case "slow":
		return rateCentering
	case "fast":
		return rateMax
	default:
		return rateGuide
	}
}

// ClampPulse bounds a pulse duration to [minPulseMs, maxPulseMs].
func ClampPulse(ms int) int {
	if ms < minPulseMs {
		return minPulseMs
	}
	if ms > maxPulseMs {
		return maxPulseMs
	}
	return ms
}

// pulseSession is one in-flight timed motion pulse. Cancellation is
// cooperative through the context; done closes when the axis has been
// released.
type pulseSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Nudge fires a timed motion pulse in one direction, then releases the
// axis automatically. Duration is clamped to [20, 5000] ms. At most one
// pulse is in flight per controller: any previous session is cancelled
// and given a short grace period to release its axis before the new one
// starts.
//
// Parameters:
//   - direction: north, south, east, or west
//   - durationMs: pulse length in milliseconds before clamping
//   - rate: user rate token ("solar", "slow", "fast")
//
// Returns:
//   - error: ErrInvalidDirection for an unknown direction, ErrClosed
//     after Shutdown
func (c *Controller) Nudge(direction Direction, durationMs int, rate string) error {
	if c.isClosed() {
		return ErrClosed
	}

	onMsg, ok := c.motionVector(direction, true)
	if !ok {
		c.logWarn("rejected nudge", "direction", direction)
		return ErrInvalidDirection
	}
	offMsg, _ := c.motionVector(direction, false)

	duration := time.Duration(ClampPulse(durationMs)) * time.Millisecond

	c.nudgeMu.Lock()
	defer c.nudgeMu.Unlock()

	c.pulseMu.Lock()
	prev := c.pulse
	c.pulse = nil
	c.pulseMu.Unlock()

	if prev != nil {
		prev.cancel()
		select {
		case <-prev.done:
		case <-time.After(cancelGrace):
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	session := &pulseSession{cancel: cancel, done: make(chan struct{})}

	c.pulseMu.Lock()
	c.pulse = session
	c.pulseMu.Unlock()

	c.wg.Add(1)
	go c.runPulse(ctx, session, onMsg, offMsg, duration, rate)

	c.logDebug("pulse started",
		"direction", direction, "duration", duration, "rate", rate)
	return nil
}

// runPulse executes one pulse session. The axis release and session
// teardown run on every exit path.
func (c *Controller) runPulse(ctx context.Context, session *pulseSession,
	onMsg, offMsg indigo.Message, duration time.Duration, rate string) {
	defer c.wg.Done()
	defer close(session.done)

	defer func() {
		if err := c.client.Send(offMsg, true); err != nil {
			c.logWarn("pulse release failed", "vector", offMsg.Name, "error", err)
		}
		c.pulseMu.Lock()
		if c.pulse == session {
			c.pulse = nil
		}
		c.pulseMu.Unlock()
	}()

	c.setSlewRate(rate)

	if err := c.client.Send(onMsg, true); err != nil {
		c.logWarn("pulse start failed", "vector", onMsg.Name, "error", err)
		return
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-c.done.Done():
	}
}

// PulseActive reports whether a pulse session is currently in flight.
func (c *Controller) PulseActive() bool {
	c.pulseMu.Lock()
	defer c.pulseMu.Unlock()
	return c.pulse != nil
}

// cancelPulse cancels any in-flight pulse and waits briefly for its
// axis release.
func (c *Controller) cancelPulse() {
	c.pulseMu.Lock()
	session := c.pulse
	c.pulse = nil
	c.pulseMu.Unlock()

	if session == nil {
		return
	}
	session.cancel()
	select {
	case <-session.done:
	case <-time.After(cancelGrace):
	}
}
