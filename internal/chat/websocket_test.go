package chat

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/persona-relay/internal/characters"
	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/ashureev/persona-relay/internal/protocol"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wsSecret = "ws-test-secret"

func newChatServer(t *testing.T) (*httptest.Server, *Registry) {
	t.Helper()
	registry := NewRegistry()
	h := NewWebSocketHandler(HandlerConfig{
		Router: NewRouter(RouterConfig{
			Prompts: characters.NewLoader(nil, nil, nil),
			Backend: echoBackend(),
		}),
		Verifier: identity.NewJWTVerifier(wsSecret),
		Registry: registry,
		IsDev:    true,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, registry
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	env, err := protocol.Parse(data)
	require.NoError(t, err)
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, env protocol.Envelope) {
	t.Helper()
	data, err := protocol.Marshal(env)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readCloseStatus(t *testing.T, conn *websocket.Conn) websocket.StatusCode {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	return websocket.CloseStatus(err)
}

func TestWebSocketRejectsMissingCredential(t *testing.T) {
	t.Parallel()

	srv, _ := newChatServer(t)
	conn := dial(t, srv, "")
	assert.Equal(t, protocol.CloseMissingCredential, readCloseStatus(t, conn))
}

func TestWebSocketRejectsInvalidCredential(t *testing.T) {
	t.Parallel()

	srv, _ := newChatServer(t)
	conn := dial(t, srv, "not-a-token")
	assert.Equal(t, protocol.CloseInvalidCredential, readCloseStatus(t, conn))
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	t.Parallel()

	srv, registry := newChatServer(t)
	token, err := identity.Issue(wsSecret, "user-1", time.Minute)
	require.NoError(t, err)
	conn := dial(t, srv, token)

	welcome := readEnvelope(t, conn)
	assert.Equal(t, protocol.TypeWelcome, welcome.Type)
	assert.Equal(t, protocol.WelcomeText, welcome.Text)
	assert.Equal(t, 1, registry.Count())

	// Garbage is dropped without a reply; the next request still works.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{nope")))
	cancel()

	writeEnvelope(t, conn, protocol.NewRequest(41, "hi there", "buzzwordBot"))
	reply := readEnvelope(t, conn)
	requireReply(t, reply, protocol.TypeAIResponse, 41, "echo: hi there")

	writeEnvelope(t, conn, protocol.NewRequest(42, "", "buzzwordBot"))
	requireReply(t, readEnvelope(t, conn), protocol.TypeError, 42, InvalidRequestText)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketOriginCheck(t *testing.T) {
	t.Parallel()

	h := NewWebSocketHandler(HandlerConfig{AllowedOrigin: "https://game.example"})
	req := httptest.NewRequest("GET", "/ws/chat", nil)
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))

	req.Header.Set("Origin", "https://game.example")
	assert.True(t, h.checkOrigin(req))
}
