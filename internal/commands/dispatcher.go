package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/altair-obs/helioscope/internal/mount"
)

// Sentinel errors returned by the dispatcher.
var (
	// ErrUnknownSubsystem is returned for topics naming no known subsystem.
	ErrUnknownSubsystem = errors.New("commands: unknown subsystem")

	// ErrUnknownAction is returned for unrecognised actions on a known subsystem.
	ErrUnknownAction = errors.New("commands: unknown action")

	// ErrBadTopic is returned when the topic does not match the command scheme.
	ErrBadTopic = errors.New("commands: malformed command topic")

	// ErrBadPayload is returned when the JSON payload cannot be decoded.
	ErrBadPayload = errors.New("commands: malformed payload")
)

// Mount is the mount surface the dispatcher drives.
type Mount interface {
	Slew(direction mount.Direction, rate string) error
	Nudge(direction mount.Direction, durationMs int, rate string) error
	SlewTo(raHours, decDegrees float64)
	Stop()
	Park()
	Unpark()
}

// Actuator is the servo board surface the dispatcher drives.
type Actuator interface {
	SetDome(cmd string) bool
	SetEtalon(index, value int) bool
}

// Focuser is the focuser surface the dispatcher drives.
type Focuser interface {
	Move(direction string, speed int) error
	RequestPosition()
}

// Runner is a start/stop subsystem (guider, tracker).
type Runner interface {
	Start()
	Stop()
}

// Logger receives diagnostic output from the dispatcher.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

// Dispatcher routes command topics to controllers. Any controller may
// be nil; commands for absent subsystems return ErrUnknownSubsystem.
type Dispatcher struct {
	mount    Mount
	actuator Actuator
	focuser  Focuser
	guider   Runner
	tracker  Runner
	logger   Logger
}

// New creates a dispatcher over the given controllers. logger may be nil.
func New(mnt Mount, act Actuator, foc Focuser, guider, tracker Runner, logger Logger) *Dispatcher {
	return &Dispatcher{
		mount:    mnt,
		actuator: act,
		focuser:  foc,
		guider:   guider,
		tracker:  tracker,
		logger:   logger,
	}
}

// slewPayload carries mount slew and nudge parameters.
type slewPayload struct {
	Direction  string `json:"direction"`
	Rate       string `json:"rate"`
	DurationMs int    `json:"duration_ms"`
}

// gotoPayload carries equatorial target coordinates.
type gotoPayload struct {
	RA  float64 `json:"ra"`
	Dec float64 `json:"dec"`
}

// etalonPayload carries an etalon servo target.
type etalonPayload struct {
	Index int `json:"index"`
	Value int `json:"value"`
}

// movePayload carries focuser motion parameters.
type movePayload struct {
	Direction string `json:"direction"`
	Speed     int    `json:"speed"`
}

// Handle processes one command message. It matches the MessageHandler
// signature of the MQTT subscribe API, so it can be registered
// directly against the command wildcard topic.
func (d *Dispatcher) Handle(topic string, payload []byte) error {
	subsystem, action, err := parseTopic(topic)
	if err != nil {
		return err
	}

	if d.logger != nil {
		d.logger.Info("command received", "subsystem", subsystem, "action", action)
	}

	switch subsystem {
	case "mount":
		return d.handleMount(action, payload)
	case "dome":
		return d.handleDome(action)
	case "etalon":
		return d.handleEtalon(action, payload)
	case "focuser":
		return d.handleFocuser(action, payload)
	case "guider":
		return d.handleRunner(d.guider, action)
	case "tracker":
		return d.handleRunner(d.tracker, action)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSubsystem, subsystem)
	}
}

func (d *Dispatcher) handleMount(action string, payload []byte) error {
	if d.mount == nil {
		return fmt.Errorf("%w: mount", ErrUnknownSubsystem)
	}

	switch action {
	case "slew":
		var p slewPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		return d.mount.Slew(mount.Direction(p.Direction), p.Rate)
	case "nudge":
		var p slewPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		return d.mount.Nudge(mount.Direction(p.Direction), p.DurationMs, p.Rate)
	case "goto":
		var p gotoPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		d.mount.SlewTo(p.RA, p.Dec)
		return nil
	case "stop":
		d.mount.Stop()
		return nil
	case "park":
		d.mount.Park()
		return nil
	case "unpark":
		d.mount.Unpark()
		return nil
	default:
		return fmt.Errorf("%w: mount/%s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) handleDome(action string) error {
	if d.actuator == nil {
		return fmt.Errorf("%w: dome", ErrUnknownSubsystem)
	}

	switch action {
	case "open", "close":
		if !d.actuator.SetDome(action) {
			return fmt.Errorf("commands: dome %s not acknowledged", action)
		}
		return nil
	default:
		return fmt.Errorf("%w: dome/%s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) handleEtalon(action string, payload []byte) error {
	if d.actuator == nil {
		return fmt.Errorf("%w: etalon", ErrUnknownSubsystem)
	}

	switch action {
	case "set":
		var p etalonPayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		if !d.actuator.SetEtalon(p.Index, p.Value) {
			return fmt.Errorf("commands: etalon %d set not acknowledged", p.Index)
		}
		return nil
	default:
		return fmt.Errorf("%w: etalon/%s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) handleFocuser(action string, payload []byte) error {
	if d.focuser == nil {
		return fmt.Errorf("%w: focuser", ErrUnknownSubsystem)
	}

	switch action {
	case "move":
		var p movePayload
		if err := decode(payload, &p); err != nil {
			return err
		}
		return d.focuser.Move(p.Direction, p.Speed)
	case "stop":
		return d.focuser.Move("stop", 0)
	case "position":
		d.focuser.RequestPosition()
		return nil
	default:
		return fmt.Errorf("%w: focuser/%s", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) handleRunner(r Runner, action string) error {
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSubsystem, action)
	}

	switch action {
	case "start":
		r.Start()
		return nil
	case "stop":
		r.Stop()
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}

// parseTopic extracts subsystem and action from a command topic.
// Expected form: helioscope/command/<subsystem>/<action>.
func parseTopic(topic string) (subsystem, action string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "helioscope" || parts[1] != "command" {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	if parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrBadTopic, topic)
	}
	return parts[2], parts[3], nil
}

// decode unmarshals a command payload. Empty payloads decode to the
// zero value so parameterless commands can send nothing at all.
func decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}
