package actuator

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Dome position classification thresholds (degrees).
const (
	// domeOpenThreshold: at or above this angle the dome reads Open.
	domeOpenThreshold = 170

	// domeClosedThreshold: at or below this angle the dome reads Closed.
	domeClosedThreshold = 10

	// defaultPollInterval is the status poll period.
	defaultPollInterval = 5 * time.Second

	// defaultRetryDelay is the poll loop backoff once the client is
	// blocked by its failure cap.
	defaultRetryDelay = 10 * time.Second
)

// Etalon servo range.
const (
	etalonMin = 0
	etalonMax = 180
)

// DomeState classifies the dome position.
type DomeState int

// Dome states.
const (
	DomeUnknown DomeState = iota
	DomeOpen
	DomeClosed
	DomeMoving
)

// String returns the display form of the dome state.
func (d DomeState) String() string {
	switch d {
	case DomeOpen:
		return "OPEN"
	case DomeClosed:
		return "CLOSED"
	case DomeMoving:
		return "MOVING"
	default:
		return "UNKNOWN"
	}
}

// State is a snapshot of the actuator board.
// Snapshots are copied out whole so readers never observe a torn
// multi-field update.
type State struct {
	Dome        DomeState `json:"dome"`
	DomeLabel   string    `json:"dome_label"`
	DomeRaw     int       `json:"dome_raw"`
	Etalon1     int       `json:"etalon1"`
	Etalon2     int       `json:"etalon2"`
	Connected   bool      `json:"connected"`
	LastUpdated time.Time `json:"last_updated"`
}

// StatusSink receives actuator state snapshots and log lines.
type StatusSink interface {
	Publish(event string, payload any)
}

// Board exposes the public dome/etalon operations and owns the state
// poll loop.
//
// Thread Safety: all methods are safe for concurrent use. State is
// mutated only by Board itself; other components read it via State().
type Board struct {
	client *Client
	sink   StatusSink

	pollInterval time.Duration
	retryDelay   time.Duration

	stateMu sync.RWMutex
	state   State

	running  bool
	runMu    sync.Mutex
	done     *closeOnce
	wg       sync.WaitGroup

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBoard creates a Board over the given client.
//
// Parameters:
//   - client: Connected-on-demand board client (Board takes ownership)
//   - sink: Status sink for state snapshots; may be nil
//   - pollInterval: Status poll period (0 for default 5s)
//   - retryDelay: Poll backoff when the client is capped (0 for default 10s)
func NewBoard(client *Client, sink StatusSink, pollInterval, retryDelay time.Duration) *Board {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	b := &Board{
		client:       client,
		sink:         sink,
		pollInterval: pollInterval,
		retryDelay:   retryDelay,
		done:         newCloseOnce(),
		state: State{
			Dome:      DomeUnknown,
			DomeLabel: DomeUnknown.String(),
			Etalon1:   90,
			Etalon2:   90,
		},
	}

	client.SetOnUnreachable(func(failures int) {
		b.logWarn("servo board unreachable", "failures", failures)
		if b.sink != nil {
			b.sink.Publish("server_log",
				fmt.Sprintf("servo board unreachable after %d retries", failures))
		}
	})

	return b
}

// SetDome commands the dome to open or close.
//
// Parameters:
//   - cmd: "open" or "close"
//
// Returns:
//   - bool: true if the board acknowledged with a "dome:" response
func (b *Board) SetDome(cmd string) bool {
	var angle int
	switch cmd {
	case "open":
		angle = etalonMax
	case "close":
		angle = etalonMin
	default:
		b.logWarn("rejected dome command", "cmd", cmd)
		return false
	}

	resp := b.client.Send(fmt.Sprintf("dome %d", angle))
	if !strings.HasPrefix(resp, "dome:") {
		return false
	}

	b.stateMu.Lock()
	if cmd == "open" {
		b.state.Dome = DomeOpen
	} else {
		b.state.Dome = DomeClosed
	}
	b.state.DomeLabel = b.state.Dome.String()
	b.state.Connected = true
	b.state.LastUpdated = time.Now()
	b.stateMu.Unlock()

	b.publishState()
	return true
}

// SetEtalon commands one etalon servo to an absolute angle.
//
// Parameters:
//   - index: Etalon number, 1 or 2
//   - value: Target angle in degrees, 0-180
//
// Returns:
//   - bool: true if the board acknowledged with an "et<index>:" response
func (b *Board) SetEtalon(index, value int) bool {
	if index != 1 && index != 2 {
		b.logWarn("rejected etalon command", "index", index)
		return false
	}
	if value < etalonMin || value > etalonMax {
		b.logWarn("rejected etalon command", "index", index, "value", value)
		return false
	}

	resp := b.client.Send(fmt.Sprintf("et%d %d", index, value))
	if !strings.HasPrefix(resp, fmt.Sprintf("et%d:", index)) {
		return false
	}

	b.stateMu.Lock()
	if index == 1 {
		b.state.Etalon1 = value
	} else {
		b.state.Etalon2 = value
	}
	b.state.Connected = true
	b.state.LastUpdated = time.Now()
	b.stateMu.Unlock()

	b.publishState()
	return true
}

// State returns a copy of the current board state.
func (b *Board) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// StartMonitor launches the background status poll loop.
// Calling it while already running is a no-op.
func (b *Board) StartMonitor() {
	b.runMu.Lock()
	defer b.runMu.Unlock()
	if b.running {
		return
	}
	b.running = true

	b.wg.Add(1)
	go b.pollLoop()
}

// pollLoop issues a status query each period and refreshes state.
// While the client is capped by consecutive failures, the loop backs off
// for retryDelay before rearming connection attempts.
func (b *Board) pollLoop() {
	defer b.wg.Done()

	for {
		if b.client.Blocked() {
			select {
			case <-b.done.Done():
				return
			case <-time.After(b.retryDelay):
			}
			b.client.AllowRetry()
			continue
		}

		b.pollOnce()

		select {
		case <-b.done.Done():
			return
		case <-time.After(b.pollInterval):
		}
	}
}

// pollOnce queries board status and updates state from the reply.
func (b *Board) pollOnce() {
	resp := b.client.Send("status")
	if resp == "" {
		b.stateMu.Lock()
		b.state.Connected = false
		b.stateMu.Unlock()
		return
	}

	b.stateMu.Lock()
	for _, line := range strings.Split(resp, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			continue
		}

		switch key {
		case "dome":
			b.state.DomeRaw = n
			b.state.Dome = ClassifyDome(n)
			b.state.DomeLabel = domeLabel(b.state.Dome, n)
		case "et1":
			b.state.Etalon1 = n
		case "et2":
			b.state.Etalon2 = n
		}
	}
	b.state.Connected = true
	b.state.LastUpdated = time.Now()
	b.stateMu.Unlock()

	b.publishState()
}

// ClassifyDome maps a raw dome angle to its state.
func ClassifyDome(angle int) DomeState {
	switch {
	case angle >= domeOpenThreshold:
		return DomeOpen
	case angle <= domeClosedThreshold:
		return DomeClosed
	default:
		return DomeMoving
	}
}

// domeLabel renders the display label, including the angle while moving.
func domeLabel(state DomeState, angle int) string {
	if state == DomeMoving {
		return fmt.Sprintf("MOVING (%d°)", angle)
	}
	return state.String()
}

// publishState pushes the current snapshot to the sink.
func (b *Board) publishState() {
	if b.sink == nil {
		return
	}
	b.sink.Publish("actuator_state", b.State())
}

// Shutdown stops the poll loop and closes the client. Idempotent.
func (b *Board) Shutdown() {
	b.done.Close()
	b.wg.Wait()

	b.runMu.Lock()
	b.running = false
	b.runMu.Unlock()

	if err := b.client.Close(); err != nil {
		b.logWarn("closing board client", "error", err)
	}
}

// SetLogger sets the logger for this board.
func (b *Board) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Board) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	l := b.logger
	b.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, keysAndValues...)
	}
}
