package client_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/persona-relay/internal/backend"
	"github.com/ashureev/persona-relay/internal/characters"
	"github.com/ashureev/persona-relay/internal/chat"
	"github.com/ashureev/persona-relay/internal/client"
	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e2eSecret = "e2e-secret"

func startRelay(t *testing.T, gen backend.Generator) (string, *chat.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := chat.NewRegistry()
	h := chat.NewWebSocketHandler(chat.HandlerConfig{
		Router: chat.NewRouter(chat.RouterConfig{
			Prompts: characters.NewLoader(nil, nil, logger),
			Backend: gen,
			Logger:  logger,
		}),
		Verifier: identity.NewJWTVerifier(e2eSecret),
		Registry: registry,
		IsDev:    true,
		Logger:   logger,
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), registry
}

func TestRelayEndToEnd(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var prompts []string
	gen := backend.GeneratorFunc(func(_ context.Context, h []domain.Turn) (string, error) {
		mu.Lock()
		prompts = append(prompts, h[0].Text)
		mu.Unlock()
		return fmt.Sprintf("%d turns, last %q", len(h), h[len(h)-1].Text), nil
	})
	url, _ := startRelay(t, gen)

	token, err := identity.Issue(e2eSecret, "player-1", time.Minute)
	require.NoError(t, err)
	c := client.New(client.Config{URL: url, Credential: token, RequestTimeout: 2 * time.Second,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() { _ = c.Close() })

	reply, err := c.Send(context.Background(), "who are you", "angrySkeleton")
	require.NoError(t, err)
	assert.Equal(t, `2 turns, last "who are you"`, reply)

	reply, err = c.Send(context.Background(), "and now", "angrySkeleton")
	require.NoError(t, err)
	assert.Equal(t, `4 turns, last "and now"`, reply, "history carries the previous exchange")

	_, err = c.Send(context.Background(), "   ", "angrySkeleton")
	var remote *client.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, chat.InvalidRequestText, remote.Message)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, prompts)
	assert.Contains(t, prompts[0], "sarcastic")
}

func TestRelayRejectsBadCredential(t *testing.T) {
	t.Parallel()

	url, registry := startRelay(t, backend.GeneratorFunc(func(context.Context, []domain.Turn) (string, error) {
		return "unused", nil
	}))

	token, err := identity.Issue("wrong-secret", "player-1", time.Minute)
	require.NoError(t, err)
	c := client.New(client.Config{URL: url, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() { _ = c.Close() })

	err = c.Connect(context.Background(), token)
	require.ErrorIs(t, err, client.ErrInvalidCredential)
	assert.Zero(t, registry.Count())
}

func TestRelayServerShutdownTriggersReconnect(t *testing.T) {
	t.Parallel()

	url, registry := startRelay(t, backend.GeneratorFunc(func(_ context.Context, h []domain.Turn) (string, error) {
		return "ok", nil
	}))
	token, err := identity.Issue(e2eSecret, "player-2", time.Minute)
	require.NoError(t, err)
	c := client.New(client.Config{URL: url, Credential: token, ReconnectBackoff: 20 * time.Millisecond,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background(), ""))
	require.Eventually(t, func() bool { return registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	registry.CloseAll("restarting")

	require.Eventually(t, func() bool {
		return registry.Count() == 1 && c.State() == client.StateOpen
	}, 3*time.Second, 10*time.Millisecond)

	reply, err := c.Send(context.Background(), "still there?", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)
}
