package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/persona-relay/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db           *sql.DB
	transcriptMu sync.Mutex // serializes transcript writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS characters (
		character_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transcripts (
		turn_id INTEGER PRIMARY KEY AUTOINCREMENT,
		principal_id TEXT NOT NULL,
		character_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcripts_owner ON transcripts(principal_id, character_id, turn_id);
	CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetCharacter retrieves a character by ID.
func (s *SQLiteStore) GetCharacter(ctx context.Context, id string) (*domain.Character, error) {
	query := `SELECT character_id, name, system_prompt, updated_at FROM characters WHERE character_id = ?`

	var c domain.Character
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Name, &c.SystemPrompt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan character row: %w", err)
	}
	c.UpdatedAt = time.Unix(updatedAt, 0)
	return &c, nil
}

// UpsertCharacter creates or updates a character record.
func (s *SQLiteStore) UpsertCharacter(ctx context.Context, c *domain.Character) error {
	if c.ID == "" {
		return fmt.Errorf("upsert character: empty id")
	}
	query := `
	INSERT INTO characters (character_id, name, system_prompt, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(character_id) DO UPDATE SET
		name = excluded.name,
		system_prompt = excluded.system_prompt,
		updated_at = excluded.updated_at`

	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.SystemPrompt, updatedAt.Unix()); err != nil {
		return fmt.Errorf("upsert character: %w", err)
	}
	return nil
}

// ListCharacters returns all characters ordered by ID.
func (s *SQLiteStore) ListCharacters(ctx context.Context) ([]*domain.Character, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT character_id, name, system_prompt, updated_at FROM characters ORDER BY character_id`)
	if err != nil {
		return nil, fmt.Errorf("query characters: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close character rows", "error", closeErr)
		}
	}()

	var characters []*domain.Character
	for rows.Next() {
		var c domain.Character
		var updatedAt int64
		if err := rows.Scan(&c.ID, &c.Name, &c.SystemPrompt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan character row: %w", err)
		}
		c.UpdatedAt = time.Unix(updatedAt, 0)
		characters = append(characters, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate characters: %w", err)
	}
	return characters, nil
}

// AppendTurns appends turns in a single transaction so an exchange is
// either fully recorded or not at all.
func (s *SQLiteStore) AppendTurns(ctx context.Context, principalID, characterID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transcript tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("failed to roll back transcript tx", "error", rbErr)
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transcripts (principal_id, character_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transcript insert: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			slog.Warn("failed to close transcript statement", "error", closeErr)
		}
	}()

	now := time.Now().Unix()
	for _, turn := range turns {
		if !turn.Role.Valid() {
			return fmt.Errorf("append turn: invalid role %q", turn.Role)
		}
		if _, err := stmt.ExecContext(ctx, principalID, characterID, string(turn.Role), turn.Text, now); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transcript tx: %w", err)
	}
	return nil
}

// ListTurns returns up to limit most recent turns, oldest first.
func (s *SQLiteStore) ListTurns(ctx context.Context, principalID, characterID string, limit int) ([]domain.StoredTurn, error) {
	query := `
		SELECT principal_id, character_id, role, content, created_at FROM (
			SELECT turn_id, principal_id, character_id, role, content, created_at
			FROM transcripts
			WHERE principal_id = ? AND character_id = ?
			ORDER BY turn_id DESC
			LIMIT ?
		) ORDER BY turn_id ASC`

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, query, principalID, characterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var turns []domain.StoredTurn
	for rows.Next() {
		var t domain.StoredTurn
		var role string
		var createdAt int64
		if err := rows.Scan(&t.PrincipalID, &t.CharacterID, &role, &t.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		t.Role = domain.Role(role)
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript: %w", err)
	}
	return turns, nil
}

// CleanupTranscripts removes transcript entries older than ttl.
func (s *SQLiteStore) CleanupTranscripts(ctx context.Context, ttl time.Duration) (int64, error) {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM transcripts WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup transcripts: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
