// Package client is the chat client: one persistent WebSocket to the relay,
// with automatic reconnect and request/reply correlation over it.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/persona-relay/internal/protocol"
	"github.com/coder/websocket"
)

const (
	defaultRequestTimeout   = 15 * time.Second
	defaultReconnectBackoff = time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
)

// State is the connection lifecycle.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config configures a Client.
type Config struct {
	URL        string
	Credential string

	RequestTimeout   time.Duration
	ReconnectBackoff time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects. 0 retries
	// forever.
	MaxReconnectAttempts int
	HandshakeTimeout     time.Duration

	Logger *slog.Logger
}

// Client owns one connection and the requests pending on it. All methods
// are safe for concurrent use.
type Client struct {
	cfg    Config
	logger *slog.Logger
	nextID atomic.Uint64

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	gen        uint64
	credential string
	connecting *connectAttempt
	pending    map[uint64]*pending
	reconnect  *time.Timer
	attempts   int
	// recovering is set from an unexpected loss until a dial succeeds.
	// Any failed attempt in that window re-arms the backoff timer,
	// including attempts started by Connect.
	recovering bool
	stopped    bool // explicit disconnect; suppresses reconnect
	closed     bool
}

type connectAttempt struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// New creates a client. It does not connect.
func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "chat-client"),
		credential: cfg.Credential,
		pending:    make(map[uint64]*pending),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending returns the number of requests awaiting a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Connect opens the connection and waits for the server's welcome. It is a
// no-op when already open, and concurrent callers share one attempt. An
// empty credential reuses the last one given. A failed Connect only
// schedules a reconnect when it ran while recovering from a lost connection.
func (c *Client) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if credential != "" {
		c.credential = credential
	}
	c.stopped = false
	if c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	attempt := c.connecting
	if attempt == nil {
		attempt = c.beginAttemptLocked()
		cred := c.credential
		go c.dial(attempt, cred)
	}
	c.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) beginAttemptLocked() *connectAttempt {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	attempt := &connectAttempt{ctx: ctx, cancel: cancel, done: make(chan struct{})}
	c.connecting = attempt
	c.state = StateConnecting
	return attempt
}

// dial runs one connection attempt to completion and publishes the result.
func (c *Client) dial(attempt *connectAttempt, credential string) {
	defer attempt.cancel()
	conn, err := c.handshake(attempt.ctx, credential)

	c.mu.Lock()
	c.connecting = nil
	if err == nil && (c.closed || c.stopped) {
		c.state = StateClosed
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		attempt.err = &ConnectionError{Op: "connect", Err: ErrConnectionLost}
		close(attempt.done)
		return
	}
	if err != nil {
		c.state = StateClosed
		if errors.Is(err, ErrInvalidCredential) {
			c.recovering = false
		}
		retry := c.recovering && !c.closed && !c.stopped
		c.mu.Unlock()
		attempt.err = err
		close(attempt.done)
		if retry {
			c.logger.Warn("reconnect failed", "error", err)
			c.scheduleReconnect()
		}
		return
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.recovering = false
	c.mu.Unlock()

	c.logger.Info("connected", "url", c.cfg.URL, "generation", gen)
	close(attempt.done)
	go c.readLoop(conn, gen)
}

// handshake dials with the credential as a query parameter and waits for
// the welcome frame. The server only sends it after verifying the
// credential; a rejected credential arrives as close code 4001 or 4002.
func (c *Client) handshake(ctx context.Context, credential string) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Err: fmt.Errorf("parse url: %w", err)}
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			_ = conn.CloseNow()
			if isCredentialClose(err) {
				return nil, &ConnectionError{Op: "handshake", Err: ErrInvalidCredential}
			}
			return nil, &ConnectionError{Op: "handshake", Err: err}
		}
		env, err := protocol.Parse(data)
		if err != nil {
			c.logger.Warn("unparseable frame during handshake", "error", err)
			continue
		}
		if env.Type == protocol.TypeWelcome {
			c.logger.Debug("welcome received", "text", env.Text)
			return conn, nil
		}
		c.logger.Debug("frame before welcome ignored", "type", env.Type)
	}
}

func isCredentialClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case protocol.CloseMissingCredential, protocol.CloseInvalidCredential:
		return true
	}
	return false
}

// readLoop demultiplexes inbound frames until the connection ends.
func (c *Client) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			c.connectionLost(conn, gen, err)
			return
		}

		env, err := protocol.Parse(data)
		if err != nil {
			c.logger.Warn("unparseable frame dropped", "error", err)
			continue
		}

		switch env.Type {
		case protocol.TypeWelcome:
			c.logger.Info("server welcome", "text", env.Text)
		case protocol.TypeAIResponse:
			id, _ := env.CorrelationID()
			c.settle(id, env.Text, nil)
		case protocol.TypeError:
			id, ok := env.CorrelationID()
			if !ok {
				c.logger.Warn("server error", "message", env.Text)
				continue
			}
			c.settle(id, "", &RemoteError{ID: id, Message: env.Text})
		default:
			c.logger.Warn("unexpected frame dropped", "type", env.Type)
		}
	}
}

func (c *Client) connectionLost(conn *websocket.Conn, gen uint64, cause error) {
	c.mu.Lock()
	if c.conn != conn || c.gen != gen {
		// Already torn down by Disconnect.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateClosed
	lost := c.takePendingLocked(func(p *pending) bool { return p.gen == gen })
	retry := !c.stopped && !c.closed && !isCredentialClose(cause)
	c.recovering = retry
	c.mu.Unlock()

	for _, p := range lost {
		p.call.finish("", ErrConnectionLost)
	}
	c.logger.Warn("connection lost", "status", websocket.CloseStatus(cause), "pending", len(lost), "error", cause)

	if retry {
		c.scheduleReconnect()
	} else if isCredentialClose(cause) {
		c.logger.Error("credential rejected, not reconnecting")
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.stopped || c.reconnect != nil || c.connecting != nil || c.state == StateOpen {
		return
	}
	if limit := c.cfg.MaxReconnectAttempts; limit > 0 && c.attempts >= limit {
		c.logger.Error("giving up reconnecting", "attempts", c.attempts)
		return
	}
	c.attempts++
	c.logger.Info("reconnect scheduled", "in", c.cfg.ReconnectBackoff, "attempt", c.attempts)
	c.reconnect = time.AfterFunc(c.cfg.ReconnectBackoff, c.runReconnect)
}

func (c *Client) runReconnect() {
	c.mu.Lock()
	c.reconnect = nil
	// A Connect already in flight re-arms the timer if it fails.
	if c.closed || c.stopped || c.state == StateOpen || c.connecting != nil {
		c.mu.Unlock()
		return
	}
	attempt := c.beginAttemptLocked()
	cred := c.credential
	c.mu.Unlock()

	// dial re-arms the timer itself on a retriable failure.
	c.dial(attempt, cred)
	if errors.Is(attempt.err, ErrInvalidCredential) {
		c.logger.Error("reconnect rejected: invalid credential")
	}
}

// Disconnect closes the connection with a normal closure and stops
// automatic reconnects. Pending requests fail with ErrConnectionLost.
func (c *Client) Disconnect() error {
	return c.shutdown(false)
}

// Close disconnects and makes the client unusable.
func (c *Client) Close() error {
	return c.shutdown(true)
}

func (c *Client) shutdown(final bool) error {
	c.mu.Lock()
	c.stopped = true
	c.recovering = false
	if final {
		c.closed = true
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.connecting != nil {
		c.connecting.cancel()
	}
	conn := c.conn
	c.conn = nil
	if c.connecting == nil {
		c.state = StateClosed
	}
	lost := c.takePendingLocked(func(*pending) bool { return true })
	c.mu.Unlock()

	for _, p := range lost {
		p.call.finish("", ErrConnectionLost)
	}
	if conn == nil {
		return nil
	}
	if err := conn.Close(websocket.StatusNormalClosure, "client disconnect"); err != nil {
		c.logger.Debug("close returned error", "error", err)
	}
	c.logger.Info("disconnected")
	return nil
}
