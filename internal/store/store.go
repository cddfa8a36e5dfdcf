// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/persona-relay/internal/domain"
)

// Repository defines the interface for persisting characters and transcripts.
type Repository interface {
	// GetCharacter retrieves a character by ID. Returns nil, nil if absent.
	GetCharacter(ctx context.Context, id string) (*domain.Character, error)

	// UpsertCharacter creates or updates a character record.
	UpsertCharacter(ctx context.Context, character *domain.Character) error

	// ListCharacters returns all characters ordered by ID.
	ListCharacters(ctx context.Context) ([]*domain.Character, error)

	// AppendTurns appends confirmed turns to a principal's transcript for a character.
	AppendTurns(ctx context.Context, principalID, characterID string, turns ...domain.Turn) error

	// ListTurns returns up to limit most recent turns, oldest first.
	// A limit <= 0 returns the full transcript.
	ListTurns(ctx context.Context, principalID, characterID string, limit int) ([]domain.StoredTurn, error)

	// CleanupTranscripts removes transcript entries older than ttl.
	CleanupTranscripts(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
