package tracker

import (
	"sync"
	"time"
)

// defaultInterval is the relay period between slew commands.
const defaultInterval = 5 * time.Second

// Position is one target position sample.
type Position struct {
	RAHours      float64
	DecDeg       float64
	AltDeg       float64
	AboveHorizon bool
}

// PositionSource supplies target positions for an instant.
type PositionSource interface {
	Position(now time.Time) (Position, error)
}

// Mount is the slice of the mount controller the tracker needs.
type Mount interface {
	SlewTo(raHours, decDegrees float64)
}

// StatusSink receives tracking status events.
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

// Tracker periodically slews the mount to a position source's target.
type Tracker struct {
	mount    Mount
	source   PositionSource
	sink     StatusSink
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a tracker. The relay loop does not run until Start.
func New(mnt Mount, source PositionSource, sink StatusSink, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Tracker{
		mount:    mnt,
		source:   source,
		sink:     sink,
		interval: interval,
	}
}

// Start launches the relay loop. Starting while running is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		t.logWarn("tracking already active")
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	t.logInfo("solar tracking started")
	t.publishLog("solar tracking started")
	go t.loop(stop, done)
}

// Stop signals the loop to end and waits for it to finish.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done
	t.logInfo("solar tracking stopped")
	t.publishLog("solar tracking stopped")
}

// Running reports whether the relay loop is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		t.relayOnce()

		select {
		case <-stop:
			return
		case <-time.After(t.interval):
		}
	}
}

// relayOnce samples the source and slews the mount toward it, unless
// the target is below the horizon.
func (t *Tracker) relayOnce() {
	pos, err := t.source.Position(time.Now())
	if err != nil {
		t.logError("position source failed", "error", err)
		t.publishLog("tracking error: " + err.Error())
		return
	}

	if !pos.AboveHorizon {
		t.logDebug("target below horizon", "alt", pos.AltDeg)
		t.publishLog("target is below the horizon")
		return
	}

	t.mount.SlewTo(pos.RAHours, pos.DecDeg)
	t.logDebug("relayed target", "ra", pos.RAHours, "dec", pos.DecDeg, "alt", pos.AltDeg)
}

func (t *Tracker) publishLog(msg string) {
	if t.sink != nil {
		t.sink.Publish("server_log", msg)
	}
}

// SetLogger sets the logger for this tracker.
func (t *Tracker) SetLogger(logger Logger) {
	t.loggerMu.Lock()
	t.logger = logger
	t.loggerMu.Unlock()
}

func (t *Tracker) logDebug(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (t *Tracker) logInfo(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (t *Tracker) logWarn(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (t *Tracker) logError(msg string, keysAndValues ...any) {
	t.loggerMu.RLock()
	l := t.logger
	t.loggerMu.RUnlock()
	if l != nil {
		l.Error(msg, keysAndValues...)
	}
}
