package characters

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/persona-relay/internal/domain"
)

// PromptLoader resolves a character id to its system prompt. It never
// fails: unknown ids resolve to NeutralPrompt.
type PromptLoader interface {
	LoadPrompt(ctx context.Context, characterID string) string
}

// CharacterSource is the persistent lookup a Loader consults first.
type CharacterSource interface {
	GetCharacter(ctx context.Context, id string) (*domain.Character, error)
}

// Loader looks characters up in the store, then the catalog, then falls
// back to NeutralPrompt.
type Loader struct {
	source  CharacterSource
	catalog *Catalog
	logger  *slog.Logger
}

// NewLoader creates a Loader. source may be nil.
func NewLoader(source CharacterSource, catalog *Catalog, logger *slog.Logger) *Loader {
	if catalog == nil {
		catalog = NewCatalog()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{source: source, catalog: catalog, logger: logger}
}

// LoadPrompt implements PromptLoader.
func (l *Loader) LoadPrompt(ctx context.Context, characterID string) string {
	if l.source != nil {
		ch, err := l.source.GetCharacter(ctx, characterID)
		switch {
		case err != nil:
			l.logger.Warn("character lookup failed, using catalog", "character", characterID, "error", err)
		case ch != nil && strings.TrimSpace(ch.SystemPrompt) != "":
			return ch.SystemPrompt
		}
	}
	if ch, ok := l.catalog.Get(characterID); ok {
		return ch.SystemPrompt
	}
	return NeutralPrompt
}

// StaticLoader maps ids to prompts without a store. Handy in tests.
type StaticLoader map[string]string

// LoadPrompt implements PromptLoader.
func (s StaticLoader) LoadPrompt(_ context.Context, characterID string) string {
	if p, ok := s[characterID]; ok {
		return p
	}
	return NeutralPrompt
}
