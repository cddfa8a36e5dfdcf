// Package chat routes chat requests arriving on WebSocket connections to a
// text-generation backend and sends back exactly one reply per request.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/persona-relay/internal/backend"
	"github.com/ashureev/persona-relay/internal/characters"
	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/ashureev/persona-relay/internal/protocol"
)

// Reply texts sent to clients.
const (
	ErrorText           = "Error processing your request."
	NoResponseText      = "Sorry, no response generated."
	InvalidRequestText  = "Invalid request: text is required."
	UnsupportedTypeText = "Unsupported message type."
	MissingIDText       = "Invalid request: id is required."
)

const (
	defaultBackendTimeout = 60 * time.Second
	transcriptTimeout     = 5 * time.Second
)

// State is the lifecycle of a Conversation.
type State int

const (
	StateUninitialized State = iota
	StateSessionActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "UNINITIALIZED"
	case StateSessionActive:
		return "SESSION_ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// TranscriptWriter persists confirmed exchanges.
type TranscriptWriter interface {
	AppendTurns(ctx context.Context, principalID, characterID string, turns ...domain.Turn) error
}

// RouterConfig wires a Router to its collaborators.
type RouterConfig struct {
	Prompts          characters.PromptLoader
	Backend          backend.Generator
	Transcripts      TranscriptWriter // optional
	BackendTimeout   time.Duration
	WriteTimeout     time.Duration
	MaxTurns         int
	DefaultCharacter string
	Logger           *slog.Logger
}

// Router opens a Conversation per connection.
type Router struct {
	cfg RouterConfig
}

// NewRouter creates a router.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Prompts == nil {
		cfg.Prompts = characters.StaticLoader{}
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = defaultBackendTimeout
	}
	if cfg.DefaultCharacter == "" {
		cfg.DefaultCharacter = "DEFAULT"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{cfg: cfg}
}

// Open starts routing for one connection. Replies are written through w.
func (r *Router) Open(principal, connID string, w FrameWriter) *Conversation {
	logger := r.cfg.Logger.With("conn_id", connID, "principal", principal)
	ctx, cancel := context.WithCancel(context.Background())
	return &Conversation{
		cfg:        r.cfg,
		principal:  principal,
		connID:     connID,
		dispatcher: NewDispatcher(w, r.cfg.WriteTimeout, logger),
		session:    NewSession(r.cfg.MaxTurns),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Conversation is the per-connection router state. Handle must be called
// from a single goroutine in frame arrival order; backend calls run
// concurrently and may complete out of order.
type Conversation struct {
	cfg        RouterConfig
	principal  string
	connID     string
	dispatcher *Dispatcher
	session    *Session

	mu    sync.Mutex
	state State
	wg    sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// State returns the lifecycle state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session exposes the conversation's session.
func (c *Conversation) Session() *Session {
	return c.session
}

// Dispatcher returns the reply dispatcher for this connection.
func (c *Conversation) Dispatcher() *Dispatcher {
	return c.dispatcher
}

// Handle routes one inbound envelope. Every request carrying an id gets
// exactly one ai_response or error frame back.
func (c *Conversation) Handle(ctx context.Context, env protocol.Envelope) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		c.logger.Debug("frame after close dropped", "type", env.Type)
		return
	}
	c.mu.Unlock()

	id, ok := env.CorrelationID()
	if !ok {
		c.logger.Warn("frame without id", "type", env.Type)
		if env.Type == protocol.TypeRequest {
			if err := c.dispatcher.Notify(ctx, protocol.NewError(nil, MissingIDText)); err != nil {
				c.logger.Debug("failed to send id-less error", "error", err)
			}
		}
		return
	}
	reply := c.dispatcher.Begin(id)

	if env.Type != protocol.TypeRequest {
		c.logger.Warn("unsupported frame type", "type", env.Type, "id", id)
		reply.Fail(ctx, UnsupportedTypeText)
		return
	}
	text := strings.TrimSpace(env.Text)
	if text == "" {
		reply.Fail(ctx, InvalidRequestText)
		return
	}

	character := env.Character
	if character == "" {
		character = c.cfg.DefaultCharacter
	}
	if !c.session.Active() || c.session.Character() != character {
		prompt := c.cfg.Prompts.LoadPrompt(ctx, character)
		c.session.Reset(character, prompt)
		c.logger.Info("session started", "character", character)
	}

	snapshot, epoch := c.session.AppendUser(env.Text)

	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateSessionActive
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.generate(reply, character, env.Text, snapshot, epoch)
	}()
}

func (c *Conversation) generate(reply *Reply, character, userText string, history []domain.Turn, epoch uint64) {
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.BackendTimeout)
	defer cancel()

	text, err := c.cfg.Backend.Generate(ctx, history)
	if err == nil && strings.TrimSpace(text) == "" {
		err = backend.ErrEmptyReply
	}
	if err != nil {
		c.logger.Error("backend call failed", "id", reply.ID(), "character", character, "error", err)
		msg := ErrorText
		if errors.Is(err, backend.ErrEmptyReply) {
			msg = NoResponseText
		}
		reply.Fail(c.ctx, msg)
		return
	}

	if !c.session.AppendAssistant(epoch, text) {
		c.logger.Debug("reply for superseded session not recorded", "id", reply.ID())
	}

	if c.cfg.Transcripts != nil {
		tctx, tcancel := context.WithTimeout(context.Background(), transcriptTimeout)
		err := c.cfg.Transcripts.AppendTurns(tctx, c.principal, character,
			domain.UserTurn(userText), domain.AssistantTurn(text))
		tcancel()
		if err != nil {
			c.logger.Warn("failed to persist transcript", "id", reply.ID(), "error", err)
		}
	}

	reply.Succeed(c.ctx, text)
}

// Close stops routing, cancels in-flight backend calls and waits for them
// to finish. It is safe to call more than once.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Debug("conversation closed")
}
