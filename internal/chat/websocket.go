package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/ashureev/persona-relay/internal/protocol"
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// HandlerConfig configures the chat WebSocket endpoint.
type HandlerConfig struct {
	Router        *Router
	Verifier      identity.Verifier
	Registry      *Registry
	AllowedOrigin string
	IsDev         bool
	ReadLimit     int64
	Logger        *slog.Logger
}

// WebSocketHandler authenticates chat connections and feeds their frames
// to a Conversation.
type WebSocketHandler struct {
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewWebSocketHandler creates the handler.
func NewWebSocketHandler(cfg HandlerConfig) *WebSocketHandler {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{cfg: cfg, logger: logger}
}

// wsFrameWriter writes envelopes as text frames. websocket.Conn serializes
// concurrent writers.
type wsFrameWriter struct {
	conn *websocket.Conn
}

func (w *wsFrameWriter) WriteEnvelope(ctx context.Context, env protocol.Envelope) error {
	data, err := protocol.Marshal(env)
	if err != nil {
		return err
	}
	return w.conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "ip", identity.IPFromRequest(r))
		return
	}
	if h.cfg.ReadLimit > 0 {
		ws.SetReadLimit(h.cfg.ReadLimit)
	}

	token := identity.TokenFromRequest(r)
	if token == "" {
		h.logger.Warn("Chat connection without credential", "ip", identity.IPFromRequest(r))
		_ = ws.Close(protocol.CloseMissingCredential, "Unauthorized: No token")
		return
	}
	principal, err := h.cfg.Verifier.Verify(token)
	if err != nil {
		h.logger.Warn("Chat credential rejected", "ip", identity.IPFromRequest(r), "error", err)
		_ = ws.Close(protocol.CloseInvalidCredential, "Unauthorized: Invalid token")
		return
	}

	connID := uuid.NewString()
	logger := h.logger.With("conn_id", connID, "principal", principal)
	logger.Info("Chat connection opened", "ip", identity.IPFromRequest(r))

	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.cfg.Registry.Register(principal, connID, ws)
	defer h.cfg.Registry.Unregister(principal, connID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writer := &wsFrameWriter{conn: ws}
	conv := h.cfg.Router.Open(principal, connID, writer)
	defer conv.Close()

	if err := conv.Dispatcher().Notify(ctx, protocol.NewWelcome(protocol.WelcomeText)); err != nil {
		logger.Debug("Failed to send welcome", "error", err)
		return
	}

	h.readLoop(ctx, ws, conv, logger)
	logger.Info("Chat connection closed")
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, conv *Conversation, logger *slog.Logger) {
	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			switch {
			case websocket.CloseStatus(err) != -1:
				logger.Debug("WebSocket closed by client", "status", websocket.CloseStatus(err))
			case errors.Is(err, context.Canceled):
			default:
				logger.Warn("WebSocket read error", "error", err)
			}
			return
		}
		if typ != websocket.MessageText {
			logger.Warn("Non-text frame dropped")
			continue
		}

		env, err := protocol.Parse(data)
		if err != nil {
			logger.Warn("Unparseable frame dropped", "error", err)
			continue
		}
		conv.Handle(ctx, env)
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.cfg.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.cfg.AllowedOrigin == "*" {
		return true
	}
	if origin == h.cfg.AllowedOrigin {
		return true
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.cfg.AllowedOrigin)
	return false
}
