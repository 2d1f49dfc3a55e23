package actuator

import (
	"bytes"
	"net"
	"strings"
	"sync"
	"time"
)

// Default timeouts and limits for board communication.
const (
	// defaultConnectTimeout is the dial timeout.
	defaultConnectTimeout = 3 * time.Second

	// defaultResponseTimeout bounds a single request/response exchange.
	defaultResponseTimeout = 3 * time.Second

	// defaultIdleTimeout closes the socket after this much silence.
	defaultIdleTimeout = 20 * time.Second

	// defaultWatchInterval is the idle watcher wake period.
	defaultWatchInterval = 5 * time.Second

	// defaultMaxFailures caps consecutive connection failures before the
	// client stops auto-retrying.
	defaultMaxFailures = 3

	// defaultLogInterval rate-limits connection failure logging.
	defaultLogInterval = 15 * time.Second

	// responseChunkSize is the receive buffer size per read call.
	responseChunkSize = 1024
)

// ClientConfig holds board connection configuration.
type ClientConfig struct {
	// Address is the board in host:port form.
	Address string

	// ConnectTimeout is the dial timeout. Default: 3s.
	ConnectTimeout time.Duration

	// ResponseTimeout bounds a request/response exchange. Default: 3s.
	ResponseTimeout time.Duration

	// IdleTimeout closes the socket after this much silence. Default: 20s.
	IdleTimeout time.Duration

	// WatchInterval is the idle watcher period. Default: 5s.
	WatchInterval time.Duration

	// MaxFailures caps consecutive connect failures. Default: 3.
	MaxFailures int

	// LogInterval rate-limits failure logging. Default: 15s.
	LogInterval time.Duration
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client is a persistent request/response client for the servo board.
//
// A single mutex guards the socket for the full exchange, so a command
// and its reply are never interleaved with another goroutine's traffic.
// The socket is opened lazily on the first send after a disconnect and
// closed by a background watcher once idle.
type Client struct {
	cfg ClientConfig

	// mu guards conn, lastUsed, and the failure bookkeeping for the full
	// request/response exchange.
	mu          sync.Mutex
	conn        net.Conn
	lastUsed    time.Time
	failCount   int
	lastFailLog time.Time
	warnSent    bool

	// onUnreachable fires once when the failure cap is first reached.
	onUnreachable func(failures int)

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

// NewClient creates a board client and starts its idle watcher.
// No connection is made until the first Send.
func NewClient(cfg ClientConfig) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ResponseTimeout <= 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.WatchInterval <= 0 {
		cfg.WatchInterval = defaultWatchInterval
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = defaultMaxFailures
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = defaultLogInterval
	}

	c := &Client{
		cfg:  cfg,
		done: newCloseOnce(),
	}

	c.wg.Add(1)
	go c.idleWatcher()

	return c
}

// SetOnUnreachable registers a callback fired exactly once when the
// consecutive failure cap is reached. The flag rearms after a
// successful connection.
func (c *Client) SetOnUnreachable(fn func(failures int)) {
	c.mu.Lock()
	c.onUnreachable = fn
	c.mu.Unlock()
}

// Send writes one command line and returns the trimmed single-line
// response. Any failure during connect, write, or read tears down the
// socket and returns an empty string.
//
// Parameters:
//   - command: Command without trailing newline (e.g. "dome 180")
//
// Returns:
//   - string: Trimmed response line, or "" on any failure
func (c *Client) Send(command string) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return ""
	}

	if c.conn == nil {
		if !c.connectLocked() {
			return ""
		}
	}

	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		c.teardownLocked("set deadline failed", err)
		return ""
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		c.teardownLocked("send failed", err)
		return ""
	}

	// Read until a newline is seen. Multi-line replies (status) arrive
	// in a single write from the board, so the full payload is captured.
	var buf bytes.Buffer
	chunk := make([]byte, responseChunkSize)
	for {
		n, err := c.conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if bytes.Contains(buf.Bytes(), []byte{'\n'}) {
				break
			}
		}
		if err != nil {
			c.teardownLocked("receive failed", err)
			return ""
		}
	}

	c.lastUsed = time.Now()
	return strings.TrimSpace(buf.String())
}

// Connected reports whether a live socket is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// FailCount returns the consecutive connection failure count.
func (c *Client) FailCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failCount
}

// Blocked reports whether the failure cap is reached, in which case
// sends no longer auto-retry until AllowRetry is called.
func (c *Client) Blocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failCount >= c.cfg.MaxFailures
}

// AllowRetry rearms connection attempts after the poll loop's backoff
// delay has elapsed. The unreachable warning stays suppressed until a
// connection succeeds.
func (c *Client) AllowRetry() {
	c.mu.Lock()
	if c.failCount >= c.cfg.MaxFailures {
		c.failCount = c.cfg.MaxFailures - 1
	}
	c.mu.Unlock()
}

// connectLocked dials the board. Caller must hold mu.
// Returns true when a live socket is held on exit.
func (c *Client) connectLocked() bool {
	if c.failCount >= c.cfg.MaxFailures {
		return false // Capped; wait for AllowRetry
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := net.DialTimeout("tcp", c.cfg.Address, c.cfg.ConnectTimeout)
	if err != nil {
		c.failCount++

		now := time.Now()
		if now.Sub(c.lastFailLog) > c.cfg.LogInterval {
			c.logWarn("connection attempt failed",
				"address", c.cfg.Address,
				"failures", c.failCount,
				"error", err,
			)
			c.lastFailLog = now
		}

		if c.failCount >= c.cfg.MaxFailures && !c.warnSent {
			c.warnSent = true
			if c.onUnreachable != nil {
				// Release the lock around the callback so sinks can
				// call back into the client without deadlocking.
				fn := c.onUnreachable
				failures := c.failCount
				c.mu.Unlock()
				fn(failures)
				c.mu.Lock()
			}
		}
		return false
	}

	c.conn = conn
	c.lastUsed = time.Now()
	c.failCount = 0
	c.warnSent = false
	c.logInfo("connected to servo board", "address", c.cfg.Address)
	return true
}

// teardownLocked closes and clears the socket after an exchange failure.
// Caller must hold mu.
func (c *Client) teardownLocked(msg string, err error) {
	c.logWarn(msg, "error", err)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// idleWatcher wakes periodically and closes the socket if no traffic
// occurred within the idle window.
func (c *Client) idleWatcher() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.WatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != nil && time.Since(c.lastUsed) > c.cfg.IdleTimeout {
				c.conn.Close()
				c.conn = nil
				c.logDebug("closed idle socket")
			}
			c.mu.Unlock()
		}
	}
}

// isClosed returns true if Close has been called. Caller must hold mu
// or tolerate a stale answer.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close stops the idle watcher and releases the socket.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
