package chat

import (
	"testing"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	s := NewSession(0)
	assert.False(t, s.Active())

	s.Reset("angrySkeleton", "Be blunt.")
	require.True(t, s.Active())
	assert.Equal(t, "angrySkeleton", s.Character())

	snapshot, epoch := s.AppendUser("hi")
	assert.Equal(t, []domain.Turn{domain.SystemTurn("Be blunt."), domain.UserTurn("hi")}, snapshot)

	require.True(t, s.AppendAssistant(epoch, "Go away."))
	assert.Equal(t, []domain.Turn{
		domain.SystemTurn("Be blunt."),
		domain.UserTurn("hi"),
		domain.AssistantTurn("Go away."),
	}, s.History())
}

func TestSessionSnapshotIsCopy(t *testing.T) {
	t.Parallel()

	s := NewSession(0)
	s.Reset("c", "p")
	snapshot, _ := s.AppendUser("one")
	snapshot[1].Text = "mutated"
	assert.Equal(t, "one", s.History()[1].Text)
}

func TestSessionResetDropsStaleReply(t *testing.T) {
	t.Parallel()

	s := NewSession(0)
	s.Reset("a", "prompt a")
	_, epoch := s.AppendUser("question for a")

	s.Reset("b", "prompt b")
	assert.False(t, s.AppendAssistant(epoch, "answer from a"))
	assert.Equal(t, []domain.Turn{domain.SystemTurn("prompt b")}, s.History())
}

func TestSessionTrimKeepsSystemTurn(t *testing.T) {
	t.Parallel()

	s := NewSession(3)
	s.Reset("c", "sys")
	for _, q := range []string{"q1", "q2", "q3"} {
		_, epoch := s.AppendUser(q)
		require.True(t, s.AppendAssistant(epoch, "a-"+q))
	}

	h := s.History()
	require.NotEmpty(t, h)
	assert.Equal(t, domain.SystemTurn("sys"), h[0])
	assert.LessOrEqual(t, len(h)-1, 3)
	assert.Equal(t, domain.RoleUser, h[1].Role, "dialogue never starts with an assistant turn")
	assert.Equal(t, domain.AssistantTurn("a-q3"), h[len(h)-1])
}

func TestSessionTrimSingleTurnWindow(t *testing.T) {
	t.Parallel()

	s := NewSession(1)
	s.Reset("c", "sys")

	snapshot, epoch := s.AppendUser("q1")
	assert.Equal(t, []domain.Turn{domain.SystemTurn("sys"), domain.UserTurn("q1")}, snapshot)

	require.True(t, s.AppendAssistant(epoch, "a1"))
	assert.Equal(t, []domain.Turn{domain.SystemTurn("sys")}, s.History(),
		"a lone assistant turn is not kept")

	snapshot, _ = s.AppendUser("q2")
	assert.Equal(t, []domain.Turn{domain.SystemTurn("sys"), domain.UserTurn("q2")}, snapshot)
}
