package history

import (
	"context"
	"time"
)

// recordTimeout bounds each insert so a wedged database cannot stall
// the publishing goroutine.
const recordTimeout = 2 * time.Second

// subsystemForEvent maps published event names to history subsystems.
var subsystemForEvent = map[string]string{
	"mount_status":      SubsystemMount,
	"mount_coordinates": SubsystemMount,
	"guiding_status":    SubsystemGuider,
	"guide_pulse":       SubsystemGuider,
	"actuator_state":    SubsystemActuator,
	"nstep_feedback":    SubsystemFocuser,
	"server_log":        SubsystemSystem,
}

// Logger receives diagnostic output from the recorder.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Recorder adapts a Repository to the Publish(event, payload) sink
// interface the device controllers emit through. It can be composed
// into the same fan-out as the MQTT sink.
//
// Overlay frames are skipped: they are multi-kilobyte JPEG data URLs
// published several times per second, and belong on the broker only.
type Recorder struct {
	repo   Repository
	logger Logger
}

// NewRecorder creates a recorder writing to the given repository.
// logger may be nil.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Publish records the event. Unknown events are stored under the
// system subsystem so nothing is silently lost. Failures are logged
// and swallowed: history is best-effort and must never break the
// publishing path.
func (r *Recorder) Publish(event string, payload any) {
	if event == "guiding_overlay" {
		return
	}

	subsystem, ok := subsystemForEvent[event]
	if !ok {
		subsystem = SubsystemSystem
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Record(ctx, subsystem, event, payload); err != nil && r.logger != nil {
		r.logger.Warn("failed to record event history", "event", event, "error", err)
	}
}
