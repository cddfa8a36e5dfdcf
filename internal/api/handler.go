// Package api provides the REST endpoints of the persona relay.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Repository is the storage the API reads from.
type Repository interface {
	GetCharacter(ctx context.Context, id string) (*domain.Character, error)
	ListCharacters(ctx context.Context) ([]*domain.Character, error)
	ListTurns(ctx context.Context, principalID, characterID string, limit int) ([]domain.StoredTurn, error)
	Ping(ctx context.Context) error
}

// Catalog is the in-memory character set.
type Catalog interface {
	Get(id string) (domain.Character, bool)
	List() []domain.Character
}

// ConnectionCounter reports open chat connections.
type ConnectionCounter interface {
	Count() int
}

// Handler serves the REST API.
type Handler struct {
	repo               Repository
	catalog            Catalog
	conns              ConnectionCounter
	healthCheckTimeout time.Duration
}

// NewHandler creates a Handler. conns may be nil.
func NewHandler(repo Repository, catalog Catalog, conns ConnectionCounter) *Handler {
	return &Handler{
		repo:               repo,
		catalog:            catalog,
		conns:              conns,
		healthCheckTimeout: 5 * time.Second,
	}
}

// RegisterPublic registers routes that need no credential.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/api/characters", h.ListCharacters)
	r.Get("/api/characters/{id}", h.GetCharacter)
}

// RegisterAuthenticated registers routes that expect a principal in the
// request context.
func (h *Handler) RegisterAuthenticated(r chi.Router) {
	r.Get("/api/history/{character}", h.History)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
