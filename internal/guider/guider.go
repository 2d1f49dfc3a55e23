package guider

import (
	"image"
	_ "image/png" // preview sources may serve PNG
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/altair-obs/helioscope/internal/mount"
)

// Loop state labels published with each status event.
const (
	StateIdle    = "IDLE"
	StateRun     = "RUN"
	StateSearch  = "SEARCH"
	StateNoFrame = "NO_FRAME"
	StateError   = "ERROR"
)

// minTargetFPS floors the pacing rate so a misconfigured target can
// never stall the loop entirely.
const minTargetFPS = 0.5

// Mount is the slice of the mount controller the guider needs.
type Mount interface {
	Nudge(direction mount.Direction, durationMs int, rate string) error
}

// StatusSink receives guider status and overlay events.
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

// Config holds the guiding tunables. All fields are read-only once the
// guider is created.
type Config struct {
	// URL is the preview frame source.
	URL string

	// FetchTimeout bounds one frame fetch. Default: 1s.
	FetchTimeout time.Duration

	// TargetFPS is the loop pacing rate.
	TargetFPS float64

	// DownscaleWidth is the fixed analysis width in pixels.
	DownscaleWidth int

	// BlurSize is the smoothing kernel size; <=1 disables blurring.
	BlurSize int

	// MinArea rejects detected regions smaller than this many pixels.
	MinArea int

	// LockRadius is the lock detection radius in pixels.
	LockRadius float64

	// LockHoldFrames is the streak length required to hold lock.
	LockHoldFrames int

	// Deadband suppresses corrections while r is within this radius.
	Deadband float64

	// GainMsPerPx maps error pixels to pulse milliseconds.
	GainMsPerPx float64

	// MinPulseMs and MaxPulseMs bound one corrective pulse.
	MinPulseMs int
	MaxPulseMs int

	// AxisInterval is the per-axis refractory period between pulses.
	AxisInterval time.Duration

	// JPEGQuality is the overlay encode quality.
	JPEGQuality int

	// FlipRA and FlipDec invert the axis direction mapping for optical
	// trains that mirror an axis. Unflipped: dx>0 nudges east, dy>0
	// nudges south.
	FlipRA  bool
	FlipDec bool
}

// Status is one loop iteration's published state. Error fields are nil
// when no target was measured.
type Status struct {
	State   string   `json:"status"`
	FPS     float64  `json:"fps"`
	Locked  bool     `json:"locked"`
	DX      *float64 `json:"dx"`
	DY      *float64 `json:"dy"`
	R       *float64 `json:"r"`
	Session string   `json:"session,omitempty"`
}

// Pulse records one corrective nudge issued to the mount.
type Pulse struct {
	Session    string `json:"session"`
	Direction  string `json:"direction"`
	DurationMs int    `json:"duration_ms"`
}

// correction is one decided pulse for an axis.
type correction struct {
	direction  mount.Direction
	durationMs int
}

// Guider runs the closed-loop centering controller.
type Guider struct {
	cfg   Config
	mount Mount
	sink  StatusSink
	http  *http.Client

	mu          sync.Mutex
	running     bool
	stop        chan struct{}
	loopDone    chan struct{}
	session     string
	fps         float64
	lockStreak  int
	locked      bool
	lastPulse   map[string]time.Time
	lastStatus  Status
	lastOverlay string

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a guider. The loop does not run until Start.
func New(mnt Mount, sink StatusSink, cfg Config) *Guider {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = time.Second
	}
	return &Guider{
		cfg:        cfg,
		mount:      mnt,
		sink:       sink,
		http:       &http.Client{Timeout: cfg.FetchTimeout},
		lastPulse:  map[string]time.Time{},
		lastStatus: Status{State: StateIdle},
	}
}

// Start launches the guiding loop. Each run gets a fresh session ID;
// starting while already running is a logged no-op.
func (g *Guider) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		g.logWarn("guider already running")
		return
	}
	g.running = true
	g.session = uuid.NewString()
	g.lockStreak = 0
	g.locked = false
	g.stop = make(chan struct{})
	g.loopDone = make(chan struct{})
	stop, done, session := g.stop, g.loopDone, g.session
	g.mu.Unlock()

	g.logInfo("guider starting", "source", g.cfg.URL, "session", session)
	go g.loop(stop, done)
}

// Stop signals the loop to end and waits for it to finish.
// Stopping an idle guider is a no-op.
func (g *Guider) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	stop, done := g.stop, g.loopDone
	g.mu.Unlock()

	close(stop)
	<-done
	g.logInfo("guider stopped")
}

// Running reports whether the loop is active.
func (g *Guider) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Session returns the most recent session ID, or "" before the first
// Start.
func (g *Guider) Session() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Status returns the most recent published status.
func (g *Guider) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastStatus
}

// Overlay returns the most recent overlay data URL, or "" before the
// first frame.
func (g *Guider) Overlay() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastOverlay
}

// loop is the paced guiding cycle: fetch, detect, overlay, correct,
// report, sleep the remainder of the frame budget.
func (g *Guider) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := g.cfg.TargetFPS
	if fps < minTargetFPS {
		fps = minTargetFPS
	}
	frameBudget := time.Duration(float64(time.Second) / fps)

	frames := 0
	fpsWindow := time.Now()

	for {
		select {
		case <-stop:
			g.publishStatus(StateIdle, nil)
			return
		default:
		}

		iterStart := time.Now()
		g.iterate()

		frames++
		if elapsed := time.Since(fpsWindow); elapsed >= time.Second {
			g.mu.Lock()
			g.fps = float64(frames) / elapsed.Seconds()
			g.mu.Unlock()
			fpsWindow = time.Now()
			frames = 0
		}

		if remainder := frameBudget - time.Since(iterStart); remainder > 0 {
			select {
			case <-stop:
				g.publishStatus(StateIdle, nil)
				return
			case <-time.After(remainder):
			}
		}
	}
}

// iterate runs one fetch-detect-correct cycle.
func (g *Guider) iterate() {
	defer func() {
		if r := recover(); r != nil {
			g.logError("guider iteration panic", "panic", r)
			g.publishStatus(StateError, nil)
		}
	}()

	frame, err := g.fetchFrame()
	if err != nil {
		g.logDebug("frame fetch failed", "error", err)
		g.publishStatus(StateNoFrame, nil)
		return
	}

	det := Detect(frame, g.cfg.DownscaleWidth, g.cfg.BlurSize, g.cfg.MinArea)

	if overlay, err := renderOverlay(det, g.cfg.LockRadius, g.cfg.JPEGQuality); err == nil {
		g.mu.Lock()
		g.lastOverlay = overlay
		g.mu.Unlock()
		g.publish("guiding_overlay", overlay)
	} else {
		g.logWarn("overlay encode failed", "error", err)
	}

	if !det.Found {
		g.publishStatus(StateSearch, nil)
		return
	}

	for _, c := range g.decide(det.DX, det.DY, det.R, time.Now()) {
		if err := g.mount.Nudge(c.direction, c.durationMs, "solar"); err != nil {
			g.logWarn("corrective nudge failed",
				"direction", c.direction, "error", err)
			continue
		}
		g.publish("guide_pulse", Pulse{
			Session:    g.Session(),
			Direction:  string(c.direction),
			DurationMs: c.durationMs,
		})
	}
	g.publishStatus(StateRun, &det)
}

// fetchFrame pulls and decodes one preview frame.
func (g *Guider) fetchFrame() (image.Image, error) {
	resp, err := g.http.Get(g.cfg.URL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &FrameError{Status: resp.StatusCode}
	}

	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// decide updates lock state and returns the pulses owed for this error
// vector: nothing inside the deadband, otherwise up to one pulse per
// axis whose refractory interval has elapsed. Pulse duration scales
// with the radial error and is clamped to the configured bounds.
func (g *Guider) decide(dx, dy, r float64, now time.Time) []correction {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r <= g.cfg.LockRadius {
		if g.lockStreak < g.cfg.LockHoldFrames {
			g.lockStreak++
		}
	} else if g.lockStreak > 0 {
		g.lockStreak--
	}
	g.locked = g.lockStreak >= g.cfg.LockHoldFrames

	if r <= g.cfg.Deadband {
		return nil
	}

	ms := int(g.cfg.GainMsPerPx * r)
	if ms < g.cfg.MinPulseMs {
		ms = g.cfg.MinPulseMs
	}
	if ms > g.cfg.MaxPulseMs {
		ms = g.cfg.MaxPulseMs
	}

	var out []correction

	if math.Abs(dx) > g.cfg.Deadband &&
		now.Sub(g.lastPulse["ra"]) >= g.cfg.AxisInterval {
		dir := mount.East
		if (dx > 0) == g.cfg.FlipRA {
			dir = mount.West
		}
		out = append(out, correction{direction: dir, durationMs: ms})
		g.lastPulse["ra"] = now
	}

	if math.Abs(dy) > g.cfg.Deadband &&
		now.Sub(g.lastPulse["dec"]) >= g.cfg.AxisInterval {
		dir := mount.South
		if (dy > 0) == g.cfg.FlipDec {
			dir = mount.North
		}
		out = append(out, correction{direction: dir, durationMs: ms})
		g.lastPulse["dec"] = now
	}

	return out
}

// publishStatus builds and records the status payload, then pushes it
// to the sink. det may be nil when no target was measured.
func (g *Guider) publishStatus(state string, det *Detection) {
	g.mu.Lock()
	status := Status{
		State:   state,
		FPS:     math.Round(g.fps*100) / 100,
		Locked:  g.locked,
		Session: g.session,
	}
	if !g.running {
		status.State = StateIdle
	}
	if det != nil {
		dx, dy, r := det.DX, det.DY, det.R
		status.DX, status.DY, status.R = &dx, &dy, &r
	}
	g.lastStatus = status
	g.mu.Unlock()

	g.publish("guiding_status", status)
}

func (g *Guider) publish(event string, payload any) {
	if g.sink != nil {
		g.sink.Publish(event, payload)
	}
}

// SetLogger sets the logger for this guider.
func (g *Guider) SetLogger(logger Logger) {
	g.loggerMu.Lock()
	g.logger = logger
	g.loggerMu.Unlock()
}

func (g *Guider) logDebug(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	l := g.logger
	g.loggerMu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (g *Guider) logInfo(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	l := g.logger
	g.loggerMu.RUnlock()
	if l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (g *Guider) logWarn(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	l := g.logger
	g.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (g *Guider) logError(msg string, keysAndValues ...any) {
	g.loggerMu.RLock()
	l := g.logger
	g.loggerMu.RUnlock()
	if l != nil {
		l.Error(msg, keysAndValues...)
	}
}
