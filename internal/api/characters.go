package api

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/ashureev/persona-relay/internal/domain"
	"github.com/ashureev/persona-relay/internal/identity"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type characterView struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

func viewOf(c domain.Character) characterView {
	return characterView{ID: c.ID, Name: c.DisplayName(), Prompt: c.SystemPrompt}
}

// ListCharacters returns the union of stored and catalog characters. Stored
// records win on id collisions.
func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	byID := make(map[string]characterView)
	if h.catalog != nil {
		for _, c := range h.catalog.List() {
			byID[c.ID] = viewOf(c)
		}
	}

	stored, err := h.repo.ListCharacters(r.Context())
	if err != nil {
		slog.Error("Failed to list characters", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list characters")
		return
	}
	for _, c := range stored {
		byID[c.ID] = viewOf(*c)
	}

	out := make([]characterView, 0, len(byID))
	for _, v := range byID {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	JSON(w, http.StatusOK, map[string]interface{}{"characters": out})
}

// GetCharacter returns one character.
func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stored, err := h.repo.GetCharacter(r.Context(), id)
	if err != nil {
		slog.Error("Failed to get character", "error", err, "character", id)
		Error(w, http.StatusInternalServerError, "failed to get character")
		return
	}
	if stored != nil {
		JSON(w, http.StatusOK, viewOf(*stored))
		return
	}
	if h.catalog != nil {
		if c, ok := h.catalog.Get(id); ok {
			JSON(w, http.StatusOK, viewOf(c))
			return
		}
	}
	Error(w, http.StatusNotFound, "character not found")
}

// History returns the caller's confirmed exchanges with a character,
// oldest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	principal := identity.PrincipalFromContext(r.Context())
	if principal == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	character := chi.URLParam(r, "character")

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	turns, err := h.repo.ListTurns(r.Context(), principal, character, limit)
	if err != nil {
		slog.Error("Failed to list transcript", "error", err, "principal", principal, "character", character)
		Error(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if turns == nil {
		turns = []domain.StoredTurn{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"character": character,
		"turns":     turns,
	})
}
