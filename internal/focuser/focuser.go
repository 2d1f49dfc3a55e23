package focuser

import (
	"errors"
	"sync"

	"github.com/altair-obs/helioscope/internal/indigo"
)

// INDIGO property names for the nSTEP focuser.
const (
	propMotion   = "FOCUSER_MOTION"
	propSpeed    = "FOCUSER_SPEED"
	propPosition = "FOCUSER_POSITION"
)

// Speed limits for a move command.
const (
	minSpeed = 1
	maxSpeed = 100
)

// ErrInvalidDirection indicates a direction outside in/out/stop.
var ErrInvalidDirection = errors.New("focuser: invalid direction")

// ProtocolClient is the slice of the INDIGO client the focuser needs.
type ProtocolClient interface {
	Send(msg indigo.Message, quiet bool) error
}

// StatusSink receives focuser feedback events.
type StatusSink interface {
	Publish(event string, payload any)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Feedback pairs the last reported position with the last commanded speed.
type Feedback struct {
	Current float64 `json:"current"`
	Set     int     `json:"set"`
}

// Focuser commands an nSTEP focuser and caches its reported position.
type Focuser struct {
	client ProtocolClient
	sink   StatusSink
	device string

	mu       sync.RWMutex
	position float64
	speed    int

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a focuser bound to the named INDIGO device.
//
// The focuser shares its client with the mount controller, and the
// client keeps one handler per message kind, so New does not register
// anything: route setNumberVector events to HandleNumberVector when
// wiring the client.
func New(client ProtocolClient, sink StatusSink, device string) *Focuser {
	return &Focuser{
		client: client,
		sink:   sink,
		device: device,
	}
}

// ClampSpeed bounds a move speed to [1, 100].
func ClampSpeed(speed int) int {
	if speed < minSpeed {
		return minSpeed
	}
	if speed > maxSpeed {
		return maxSpeed
	}
	return speed
}

// Move starts focuser travel or aborts it.
//
// Parameters:
//   - direction: "in", "out", or "stop"
//   - speed: travel speed before clamping to [1, 100]
//
// Returns:
//   - error: ErrInvalidDirection for an unknown direction
func (f *Focuser) Move(direction string, speed int) error {
	if direction != "in" && direction != "out" && direction != "stop" {
		f.logWarn("rejected move", "direction", direction)
		return ErrInvalidDirection
	}

	speed = ClampSpeed(speed)

	f.mu.Lock()
	f.speed = speed
	f.mu.Unlock()

	err := f.client.Send(indigo.NewSwitchVector(f.device, propMotion,
		indigo.Sw("FOCUSER_INWARD", direction == "in"),
		indigo.Sw("FOCUSER_OUTWARD", direction == "out"),
		indigo.Sw("FOCUSER_ABORT_MOTION", direction == "stop"),
	), true)
	if err != nil {
		f.logWarn("motion send failed", "direction", direction, "error", err)
	}

	err = f.client.Send(indigo.NewNumberVector(f.device, propSpeed,
		indigo.Num("FOCUSER_SPEED_VALUE", float64(speed)),
	), true)
	if err != nil {
		f.logWarn("speed send failed", "speed", speed, "error", err)
	}

	f.publishFeedback()
	return nil
}

// RequestPosition asks the device to re-report its position vector.
// The cached value updates when the reply arrives.
func (f *Focuser) RequestPosition() {
	err := f.client.Send(indigo.GetProperties(f.device, propPosition), true)
	if err != nil {
		f.logDebug("position request failed", "error", err)
	}
}

// Position returns the last reported absolute position.
func (f *Focuser) Position() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.position
}

// HandleNumberVector caches position reports for the bound device.
// Vectors for other devices or properties are ignored.
func (f *Focuser) HandleNumberVector(v indigo.PropertyVector) {
	if v.Device != f.device || v.Name != propPosition {
		return
	}
	pos, ok := v.Number(propPosition)
	if !ok {
		return
	}

	f.mu.Lock()
	changed := f.position != pos
	f.position = pos
	f.mu.Unlock()

	if changed {
		f.publishFeedback()
	}
}

// publishFeedback pushes the current snapshot to the sink.
func (f *Focuser) publishFeedback() {
	if f.sink == nil {
		return
	}
	f.mu.RLock()
	fb := Feedback{Current: f.position, Set: f.speed}
	f.mu.RUnlock()
	f.sink.Publish("nstep_feedback", fb)
}

// SetLogger sets the logger for this focuser.
func (f *Focuser) SetLogger(logger Logger) {
	f.loggerMu.Lock()
	f.logger = logger
	f.loggerMu.Unlock()
}

func (f *Focuser) logDebug(msg string, keysAndValues ...any) {
	f.loggerMu.RLock()
	l := f.logger
	f.loggerMu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (f *Focuser) logWarn(msg string, keysAndValues ...any) {
	f.loggerMu.RLock()
	l := f.logger
	f.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
