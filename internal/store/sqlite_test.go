package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCharacterUpsertAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)

	missing, err := repo.GetCharacter(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.UpsertCharacter(ctx, &domain.Character{
		ID:           "angrySkeleton",
		Name:         "Angry Skeleton",
		SystemPrompt: "Respond with short, angry remarks.",
	}))
	require.NoError(t, repo.UpsertCharacter(ctx, &domain.Character{
		ID:           "angrySkeleton",
		Name:         "Angry Skeleton",
		SystemPrompt: "Be blunt.",
	}))

	got, err := repo.GetCharacter(ctx, "angrySkeleton")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Be blunt.", got.SystemPrompt)
	assert.Equal(t, "Angry Skeleton", got.DisplayName())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestUpsertCharacterRejectsEmptyID(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	require.Error(t, repo.UpsertCharacter(context.Background(), &domain.Character{SystemPrompt: "x"}))
}

func TestListCharactersOrdered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)

	for _, id := range []string{"zed", "alpha", "mid"} {
		require.NoError(t, repo.UpsertCharacter(ctx, &domain.Character{ID: id, SystemPrompt: id}))
	}

	list, err := repo.ListCharacters(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "mid", list[1].ID)
	assert.Equal(t, "zed", list[2].ID)
}

func TestTranscriptAppendAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)

	require.NoError(t, repo.AppendTurns(ctx, "u1", "angrySkeleton",
		domain.UserTurn("hello"), domain.AssistantTurn("Ugh, what now.")))
	require.NoError(t, repo.AppendTurns(ctx, "u1", "angrySkeleton",
		domain.UserTurn("again"), domain.AssistantTurn("Go away.")))
	require.NoError(t, repo.AppendTurns(ctx, "u1", "buzzwordBot", domain.UserTurn("other")))
	require.NoError(t, repo.AppendTurns(ctx, "u2", "angrySkeleton", domain.UserTurn("stranger")))

	all, err := repo.ListTurns(ctx, "u1", "angrySkeleton", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, domain.RoleUser, all[0].Role)
	assert.Equal(t, "hello", all[0].Text)
	assert.Equal(t, "Go away.", all[3].Text)

	recent, err := repo.ListTurns(ctx, "u1", "angrySkeleton", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "again", recent[0].Text)
	assert.Equal(t, "Go away.", recent[1].Text)
}

func TestAppendTurnsRejectsInvalidRoleAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)

	err := repo.AppendTurns(ctx, "u1", "c", domain.UserTurn("ok"), domain.Turn{Role: "narrator", Text: "no"})
	require.Error(t, err)

	turns, err := repo.ListTurns(ctx, "u1", "c", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestCleanupTranscripts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newTestStore(t)

	require.NoError(t, repo.AppendTurns(ctx, "u1", "c", domain.UserTurn("a"), domain.AssistantTurn("b")))

	deleted, err := repo.CleanupTranscripts(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.CleanupTranscripts(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestPing(t *testing.T) {
	t.Parallel()
	repo := newTestStore(t)
	require.NoError(t, repo.Ping(context.Background()))
}
