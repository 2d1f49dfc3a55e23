package mount

import (
	"context"
	"sync"
	"time"

	"github.com/altair-obs/helioscope/internal/indigo"
)

// INDIGO property names tracked and written by the controller.
const (
	propGeographic   = "GEOGRAPHIC_COORDINATES"
	propAgentEq      = "AGENT_MOUNT_EQUATORIAL_COORDINATES"
	propEq           = "MOUNT_EQUATORIAL_COORDINATES"
	propHorizontal   = "MOUNT_HORIZONTAL_COORDINATES"
	propSlewRate     = "MOUNT_SLEW_RATE"
	propMotionRA     = "MOUNT_MOTION_RA"
	propMotionDec    = "MOUNT_MOTION_DEC"
	propPark         = "MOUNT_PARK"
	propAbort        = "MOUNT_ABORT_MOTION"
	propStartProcess = "AGENT_START_PROCESS"
)

// defaultPollInterval is the cache self-heal poll period.
const defaultPollInterval = time.Second

// Direction is a cardinal motion direction.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Status labels derived from the cached mount state.
// Parked takes precedence over motion.
const (
	StatusIdle    = "IDLE"
	StatusSlewing = "SLEWING"
	StatusParked  = "PARKED"
)

// ProtocolClient is the slice of the INDIGO client the controller needs.
// The controller owns the session once StartMonitor runs: the poller
// re-invokes Connect whenever the read loop has marked it disconnected.
type ProtocolClient interface {
	Connect(ctx context.Context) error
	Send(msg indigo.Message, quiet bool) error
	On(kind string, handler indigo.Handler)
	IsConnected() bool
	Close() error
}

// StatusSink receives mount status and coordinate events.
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

// Coordinates is a snapshot of the cached pointing solution. Numeric
// fields are nil until the corresponding vector has been observed.
type Coordinates struct {
	RA        *float64 `json:"ra"`
	Dec       *float64 `json:"dec"`
	Alt       *float64 `json:"alt"`
	Az        *float64 `json:"az"`
	RAString  string   `json:"ra_str"`
	DecString string   `json:"dec_str"`
}

// ControllerConfig holds mount controller configuration.
type ControllerConfig struct {
	// Device is the INDIGO device name, e.g. "Mount Agent".
	Device string

	// PollInterval is the property re-request period. Default: 1s.
	PollInterval time.Duration
}

// Controller turns directional motion requests into INDIGO property
// writes and keeps a best-effort cache of the mount's reported state.
type Controller struct {
	client ProtocolClient
	sink   StatusSink
	cfg    ControllerConfig

	// stateMu guards the cached state below.
	stateMu   sync.RWMutex
	raHours   *float64
	decDeg    *float64
	altDeg    *float64
	azDeg     *float64
	slewRate  string
	parked    bool
	movingRA  bool
	movingDec bool

	// nudgeMu serializes Nudge calls so cancel-then-start sequences
	// from concurrent callers cannot interleave.
	nudgeMu sync.Mutex

	// pulseMu guards the active pulse session.
	pulseMu sync.Mutex
	pulse   *pulseSession

	runMu   sync.Mutex
	running bool

	done *closeOnce
	wg   sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// NewController creates a mount controller and registers its property
// vector handlers with the client. The self-heal poller does not run
// until StartMonitor is called.
//
// Parameters:
//   - client: Connected INDIGO client (controller takes ownership)
//   - sink: Status sink for state events; may be nil
//   - cfg: Device name and poll interval
func NewController(client ProtocolClient, sink StatusSink, cfg ControllerConfig) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	c := &Controller{
		client:   client,
		sink:     sink,
		cfg:      cfg,
		slewRate: rateGuide,
		done:     newCloseOnce(),
	}

	client.On(indigo.TagSetNumberVector, c.HandleNumberVector)
	client.On(indigo.TagSetSwitchVector, c.HandleSwitchVector)

	return c
}

// SetLocation writes the observing site to the mount agent.
// Best-effort: a send failure is logged and not returned.
func (c *Controller) SetLocation(latitude, longitude, elevation float64) {
	err := c.client.Send(indigo.NewNumberVector(c.cfg.Device, propGeographic,
		indigo.Num("LAT", latitude),
		indigo.Num("LONG", longitude),
		indigo.Num("ELEVATION", elevation),
	), true)
	if err != nil {
		c.logWarn("set location failed", "error", err)
		return
	}
	c.logInfo("site configured", "lat", latitude, "lon", longitude, "elev", elevation)
}

// Slew begins continuous motion in a cardinal direction at the given
// user rate ("solar", "slow", or "fast"). Motion continues until Stop.
//
// Returns:
//   - error: ErrInvalidDirection for an unknown direction, ErrClosed
//     after Shutdown
func (c *Controller) Slew(direction Direction, rate string) error {
	if c.isClosed() {
		return ErrClosed
	}

	msg, ok := c.motionVector(direction, true)
	if !ok {
		c.logWarn("rejected slew", "direction", direction)
		return ErrInvalidDirection
	}

	c.logInfo("slew start", "direction", direction, "rate", rate)
	c.setSlewRate(rate)
	if err := c.client.Send(msg, true); err != nil {
		c.logWarn("slew send failed", "direction", direction, "error", err)
	}
	return nil
}

// Stop cancels any active pulse, releases both axes, and requests an
// abort. All sends are best-effort.
func (c *Controller) Stop() {
	c.logInfo("stop motion")
	c.cancelPulse()

	for _, msg := range []indigo.Message{
		indigo.NewSwitchVector(c.cfg.Device, propMotionDec,
			indigo.Sw("NORTH", false), indigo.Sw("SOUTH", false)),
		indigo.NewSwitchVector(c.cfg.Device, propMotionRA,
			indigo.Sw("WEST", false), indigo.Sw("EAST", false)),
		indigo.NewSwitchVector(c.cfg.Device, propAbort,
			indigo.Sw("ABORT_MOTION", true)),
	} {
		if err := c.client.Send(msg, true); err != nil {
			c.logWarn("stop send failed", "vector", msg.Name, "error", err)
		}
	}
}

// Park writes the park switch pair.
func (c *Controller) Park() {
	c.logInfo("park")
	err := c.client.Send(indigo.NewSwitchVector(c.cfg.Device, propPark,
		indigo.Sw("PARKED", true), indigo.Sw("UNPARKED", false)), true)
	if err != nil {
		c.logWarn("park send failed", "error", err)
	}
}

// Unpark writes the park switch pair inverted.
func (c *Controller) Unpark() {
	c.logInfo("unpark")
	err := c.client.Send(indigo.NewSwitchVector(c.cfg.Device, propPark,
		indigo.Sw("PARKED", false), indigo.Sw("UNPARKED", true)), true)
	if err != nil {
		c.logWarn("unpark send failed", "error", err)
	}
}

// SlewTo commands an agent-mediated slew to absolute coordinates.
// Best-effort, like the directional commands.
func (c *Controller) SlewTo(raHours, decDegrees float64) {
	err := c.client.Send(indigo.NewNumberVector(c.cfg.Device, propAgentEq,
		indigo.Num("RA", raHours),
		indigo.Num("DEC", decDegrees),
	), true)
	if err != nil {
		c.logWarn("slew-to coordinates failed", "error", err)
		return
	}
	err = c.client.Send(indigo.NewSwitchVector(c.cfg.Device, propStartProcess,
		indigo.Sw("SLEW", true)), true)
	if err != nil {
		c.logWarn("slew-to start failed", "error", err)
		return
	}
	c.logInfo("slew to target", "ra", raHours, "dec", decDegrees)
}

// Status returns the derived state label.
func (c *Controller) Status() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.statusLocked()
}

// statusLocked derives the status label. Caller must hold stateMu.
func (c *Controller) statusLocked() string {
	switch {
	case c.parked:
		return StatusParked
	case c.movingRA || c.movingDec:
		return StatusSlewing
	default:
		return StatusIdle
	}
}

// Coordinates returns the cached pointing solution with formatted
// strings. When emit is true the same payload is also pushed to the
// status sink.
func (c *Controller) Coordinates(emit bool) Coordinates {
	c.stateMu.RLock()
	coords := c.coordinatesLocked()
	c.stateMu.RUnlock()

	if emit {
		c.publish("mount_coordinates", coords)
	}
	return coords
}

// coordinatesLocked builds the snapshot. Caller must hold stateMu.
func (c *Controller) coordinatesLocked() Coordinates {
	return Coordinates{
		RA:        c.raHours,
		Dec:       c.decDeg,
		Alt:       c.altDeg,
		Az:        c.azDeg,
		RAString:  FormatRA(c.raHours),
		DecString: FormatDec(c.decDeg),
	}
}

// SlewRate returns the device slew rate last reported by the mount.
func (c *Controller) SlewRate() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.slewRate
}

// HandleNumberVector ingests coordinate updates for the configured
// device. Cached floats change only when the reported value differs,
// and a coordinate change re-emits the coordinate payload. Status is
// re-emitted after every numeric event since motion may have ended.
//
// NewController registers this with the client; it is exported so a
// caller sharing one client across devices can compose it with other
// handlers at registration time.
func (c *Controller) HandleNumberVector(v indigo.PropertyVector) {
	if v.Device != c.cfg.Device {
		return
	}

	c.stateMu.Lock()
	changed := false

	switch v.Name {
	case propAgentEq, propEq:
		if ra, ok := v.Number("RA"); ok {
			if c.raHours == nil || *c.raHours != ra {
				c.raHours = &ra
				changed = true
			}
		}
		if dec, ok := v.Number("DEC"); ok {
			if c.decDeg == nil || *c.decDeg != dec {
				c.decDeg = &dec
				changed = true
			}
		}
	case propHorizontal:
		if alt, ok := v.Number("ALT"); ok {
			if c.altDeg == nil || *c.altDeg != alt {
				c.altDeg = &alt
				changed = true
			}
		}
		if az, ok := v.Number("AZ"); ok {
			if c.azDeg == nil || *c.azDeg != az {
				c.azDeg = &az
				changed = true
			}
		}
	}

	coords := c.coordinatesLocked()
	status := c.statusLocked()
	c.stateMu.Unlock()

	if changed {
		c.publish("mount_coordinates", coords)
	}
	c.publish("mount_status", status)
}

// HandleSwitchVector ingests slew rate, motion, and park updates for
// the configured device, then re-emits status.
func (c *Controller) HandleSwitchVector(v indigo.PropertyVector) {
	if v.Device != c.cfg.Device {
		return
	}

	c.stateMu.Lock()

	switch v.Name {
	case propSlewRate:
		for _, rate := range []string{rateGuide, rateCentering, rateFind, rateMax} {
			if v.Switch(rate) {
				c.slewRate = rate
				break
			}
		}
	case propMotionRA:
		c.movingRA = v.Switch("WEST") || v.Switch("EAST")
	case propMotionDec:
		c.movingDec = v.Switch("NORTH") || v.Switch("SOUTH")
	case propPark:
		c.parked = v.Switch("PARKED")
	}

	status := c.statusLocked()
	c.stateMu.Unlock()

	c.publish("mount_status", status)
}

// motionVector builds the on/off switch vector for a direction's axis.
// Off clears both members of the pair.
func (c *Controller) motionVector(direction Direction, on bool) (indigo.Message, bool) {
	switch direction {
	case East, West:
		return indigo.NewSwitchVector(c.cfg.Device, propMotionRA,
			indigo.Sw("WEST", on && direction == West),
			indigo.Sw("EAST", on && direction == East),
		), true
	case North, South:
		return indigo.NewSwitchVector(c.cfg.Device, propMotionDec,
			indigo.Sw("NORTH", on && direction == North),
			indigo.Sw("SOUTH", on && direction == South),
		), true
	default:
		return indigo.Message{}, false
	}
}

// setSlewRate writes the slew rate switch group for a user rate token.
func (c *Controller) setSlewRate(rate string) {
	want := mapRate(rate)
	err := c.client.Send(indigo.NewSwitchVector(c.cfg.Device, propSlewRate,
		indigo.Sw(rateGuide, want == rateGuide),
		indigo.Sw(rateCentering, want == rateCentering),
		indigo.Sw(rateFind, want == rateFind),
		indigo.Sw(rateMax, want == rateMax),
	), true)
	if err != nil {
		c.logWarn("slew rate send failed", "rate", want, "error", err)
	}
}

// StartMonitor launches the 1 Hz property re-request loop.
// Calling it while already running is a no-op.
func (c *Controller) StartMonitor() {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return
	}
	c.running = true

	c.wg.Add(1)
	go c.pollLoop()
}

// pollLoop re-requests the tracked properties each period so the cache
// self-heals after missed or reordered events, and redials the device
// session when the read loop has marked it disconnected.
func (c *Controller) pollLoop() {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-c.done.Done()
		cancel()
	}()

	names := []string{
		propAgentEq,
		propEq,
		propHorizontal,
		propSlewRate,
		propMotionRA,
		propMotionDec,
		propPark,
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if !c.client.IsConnected() {
			c.logWarn("device session lost, reconnecting")
			if err := c.client.Connect(ctx); err != nil {
				c.logWarn("reconnect failed", "error", err)
			} else {
				c.logInfo("device session re-established")
			}
		}

		for _, name := range names {
			if err := c.client.Send(indigo.GetProperties(c.cfg.Device, name), true); err != nil {
				c.logDebug("property poll failed", "name", name, "error", err)
			}
		}

		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
		}
	}
}

// isClosed reports whether Shutdown has been initiated.
func (c *Controller) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// publish pushes an event to the sink if one is attached.
func (c *Controller) publish(event string, payload any) {
	if c.sink != nil {
		c.sink.Publish(event, payload)
	}
}

// Shutdown stops the poller, halts motion, and closes the client.
// Idempotent.
func (c *Controller) Shutdown() {
	c.done.Close()

	c.Stop()

	if err := c.client.Close(); err != nil {
		c.logWarn("closing protocol client", "error", err)
	}

	c.wg.Wait()

	c.runMu.Lock()
	c.running = false
	c.runMu.Unlock()

	c.logInfo("mount controller shut down")
}

// SetLogger sets the logger for this controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
