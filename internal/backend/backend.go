// Package backend adapts text-generation providers to a single Generator
// interface.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/persona-relay/internal/config"
	"github.com/ashureev/persona-relay/internal/domain"
)

// ErrEmptyReply is returned when a provider answers with no text.
var ErrEmptyReply = errors.New("backend returned an empty reply")

// Generator produces the next assistant reply for a conversation history.
// The history starts with the system turn.
type Generator interface {
	Generate(ctx context.Context, history []domain.Turn) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, history []domain.Turn) (string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, history []domain.Turn) (string, error) {
	return f(ctx, history)
}

// Options configures a provider.
type Options struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

// New returns the provider named by cfg.Provider.
func New(ctx context.Context, cfg config.BackendConfig) (Generator, error) {
	opts := Options{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BaseURL:   cfg.BaseURL,
		MaxTokens: cfg.MaxTokens,
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(opts), nil
	case "anthropic":
		return NewAnthropic(opts), nil
	case "gemini":
		return NewGemini(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Provider)
	}
}

// splitSystem separates the leading system prompt from the dialogue turns.
// Any later system turns are folded into the prompt.
func splitSystem(history []domain.Turn) (string, []domain.Turn) {
	var system []string
	dialogue := make([]domain.Turn, 0, len(history))
	for _, t := range history {
		if t.Role == domain.RoleSystem {
			system = append(system, t.Text)
			continue
		}
		dialogue = append(dialogue, t)
	}
	return strings.Join(system, "\n\n"), dialogue
}

func checkReply(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}
