package indigo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

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

// Default timeouts and buffer sizes for device server communication.
const (
	// defaultConnectTimeout is the maximum time to wait for one dial.
	defaultConnectTimeout = 10 * time.Second

	// defaultRetryInterval is the delay between connection attempts.
	defaultRetryInterval = 5 * time.Second

	// defaultMaxRetries bounds connection attempts.
	defaultMaxRetries = 10

	// readWait bounds each blocking read; the loop re-checks shutdown
	// after every expiry, so Close never waits on a silent peer.
	readWait = 1 * time.Second

	// writeTimeout is the deadline for a single line write.
	writeTimeout = 5 * time.Second

	// readChunkSize is the size of the receive buffer per read call.
	readChunkSize = 4096
)

// ConnectionState describes the client's session state.
type ConnectionState int32

// Connection states.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase name of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config holds device server connection configuration.
type Config struct {
	// Address is the device server in host:port form.
	Address string

	// MaxRetries bounds Connect attempts. Default: 10.
	MaxRetries int

	// RetryInterval is the fixed delay between attempts. Default: 5s.
	RetryInterval time.Duration

	// ConnectTimeout is the per-attempt dial timeout. Default: 10s.
	ConnectTimeout time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	LinesRx      uint64
	MessagesTx   uint64
	ParseErrors  uint64
	UnknownKinds uint64
	LastActivity time.Time
	State        ConnectionState
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Handler processes one dispatched property vector.
type Handler func(PropertyVector)

// Client is a persistent line-delimited JSON client for the INDIGO device
// server.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Send serialises writes so a message is always one atomic line.
//
// Reconnection:
//   - Connect retries up to MaxRetries with a fixed delay, then gives up.
//   - A lost session stops the read loop and reports Disconnected; the
//     owning component decides when to call Connect again.
type Client struct {
	cfg Config

	// Connection state
	connMu sync.Mutex
	conn   net.Conn
	state  atomic.Int32

	// Write serialisation
	sendMu sync.Mutex

	// Handler registry keyed by message kind; last registration wins.
	handlers  map[string]Handler
	handlerMu sync.RWMutex

	// Shutdown coordination
	done *closeOnce
	wg   sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	linesRx      atomic.Uint64
	messagesTx   atomic.Uint64
	parseErrors  atomic.Uint64
	unknownKinds atomic.Uint64
	lastActivity atomic.Int64 // Unix timestamp
}

// NewClient creates a client for the given device server address.
// The client starts disconnected; call Connect to establish the session.
func NewClient(cfg Config) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = defaultRetryInterval
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	return &Client{
		cfg:      cfg,
		handlers: make(map[string]Handler),
		done:     newCloseOnce(),
	}
}

// Connect establishes the TCP session, retrying up to the configured
// attempt budget with a fixed inter-attempt delay. On success it spawns
// the dedicated read loop and returns nil. Calling Connect on an
// already-established session is a no-op, so a supervisor can invoke it
// unconditionally.
//
// Parameters:
//   - ctx: Context for cancellation between attempts
//
// Returns:
//   - error: ErrConnectionFailed after the retry budget is exhausted,
//     ErrClosed if Close was called, or ctx.Err on cancellation
func (c *Client) Connect(ctx context.Context) error {
	if c.IsConnected() {
		return nil
	}

	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		select {
		case <-c.done.Done():
			c.state.Store(int32(StateDisconnected))
			return ErrClosed
		case <-ctx.Done():
			c.state.Store(int32(StateDisconnected))
			return ctx.Err()
		default:
		}

		c.state.Store(int32(StateConnecting))
		c.logInfo("connecting to device server",
			"address", c.cfg.Address,
			"attempt", attempt,
			"max_retries", c.cfg.MaxRetries,
		)

		dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		var dialer net.Dialer
		conn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Address)
		cancel()

		if err == nil {
			c.connMu.Lock()
			c.conn = conn
			c.connMu.Unlock()
			c.state.Store(int32(StateConnected))
			c.lastActivity.Store(time.Now().Unix())

			c.wg.Add(1)
			go c.readLoop(conn)

			c.logInfo("connected to device server", "address", c.cfg.Address)
			return nil
		}

		lastErr = err
		c.state.Store(int32(StateDisconnected))
		c.logWarn("connection attempt failed",
			"attempt", attempt,
			"error", err,
			"retry_in", c.cfg.RetryInterval.String(),
		)

		if attempt == c.cfg.MaxRetries {
			break
		}

		select {
		case <-c.done.Done():
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}

	return fmt.Errorf("%w: %d attempts: %w", ErrConnectionFailed, c.cfg.MaxRetries, lastErr)
}

// Send serialises a message to one JSON object terminated by '\n' and
// writes it atomically.
//
// When the client is not connected, quiet sends are a silent no-op and
// return nil; loud sends (quiet=false) return ErrNotConnected. Write
// failures mark the session disconnected.
//
// Parameters:
//   - msg: Message to serialise (one JSON object on the wire)
//   - quiet: Suppress the not-connected error for best-effort sends
//
// Returns:
//   - error: nil on success or suppressed no-op, otherwise the failure
func (c *Client) Send(msg Message, quiet bool) error {
	if c.State() != StateConnected {
		if quiet {
			return nil
		}
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	data = append(data, '\n')

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		if quiet {
			return nil
		}
		return ErrNotConnected
	}

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrSendFailed, err)
	}

	if _, err := conn.Write(data); err != nil {
		c.state.Store(int32(StateDisconnected))
		if !quiet {
			c.logError("send failed", err)
		}
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.messagesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// On registers the callback for a message kind. Exactly one callback is
// held per kind; registering again replaces the previous one.
func (c *Client) On(kind string, handler Handler) {
	c.handlerMu.Lock()
	c.handlers[kind] = handler
	c.handlerMu.Unlock()
}

// readLoop accumulates bytes, splits on newlines, and dispatches each
// complete line. A zero-length read or socket error ends the session.
func (c *Client) readLoop(conn net.Conn) {
	defer c.wg.Done()

	var pending []byte
	chunk := make([]byte, readChunkSize)

	for {
		select {
		case <-c.done.Done():
			return
		default:
		}

		// Bounded wait so shutdown is observed even on a silent peer.
		if err := conn.SetReadDeadline(time.Now().Add(readWait)); err != nil {
			c.logError("set read deadline failed", err)
			c.endSession(conn)
			return
		}

		n, err := conn.Read(chunk)
		if n > 0 {
			pending = append(pending, chunk[:n]...)
			pending = c.dispatchLines(pending)
			c.lastActivity.Store(time.Now().Unix())
		}

		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue // No data this cycle, re-check shutdown
			}

			if !c.isClosed() {
				c.logWarn("session ended", "error", err)
			}
			c.endSession(conn)
			return
		}

		if n == 0 {
			// Zero-length read: remote closed the connection.
			c.logInfo("connection closed by remote")
			c.endSession(conn)
			return
		}
	}
}

// dispatchLines parses and dispatches every complete line in buf,
// returning the unconsumed remainder.
func (c *Client) dispatchLines(buf []byte) []byte {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			return buf
		}

		line := buf[:idx]
		buf = buf[idx+1:]

		if len(line) == 0 {
			continue
		}
		c.linesRx.Add(1)
		c.dispatch(line)
	}
}

// dispatch parses one line and invokes the handler registered for its
// kind. Parse failures and unhandled kinds are logged, never fatal.
func (c *Client) dispatch(line []byte) {
	vec, err := ParseLine(line)
	if err != nil {
		c.parseErrors.Add(1)
		c.logWarn("failed to parse message", "error", err, "line", string(line))
		return
	}

	c.handlerMu.RLock()
	handler := c.handlers[vec.Kind]
	c.handlerMu.RUnlock()

	if handler == nil {
		c.unknownKinds.Add(1)
		c.logDebug("unhandled message kind",
			"kind", vec.Kind,
			"device", vec.Device,
			"name", vec.Name,
		)
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				c.logError("handler panic", fmt.Errorf("%v", r))
			}
		}()
		handler(vec)
	}()
}

// endSession marks the client disconnected and releases the socket.
func (c *Client) endSession(conn net.Conn) {
	c.state.Store(int32(StateDisconnected))

	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()

	conn.Close()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected returns true if the session is established.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		LinesRx:      c.linesRx.Load(),
		MessagesTx:   c.messagesTx.Load(),
		ParseErrors:  c.parseErrors.Load(),
		UnknownKinds: c.unknownKinds.Load(),
		LastActivity: time.Unix(c.lastActivity.Load(), 0),
		State:        c.State(),
	}
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// Close signals the read loop to stop and releases the socket.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()
	c.state.Store(int32(StateDisconnected))

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.logInfo("client closed")
	return nil
}

// logDebug logs a debug message if a logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if a logger is set.
func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

// logError logs an error if a logger is set.
func (c *Client) logError(msg string, err error) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, "error", err)
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
