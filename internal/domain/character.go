package domain

import "time"

// Character is a named persona selecting a system prompt for the backend.
type Character struct {
	ID           string    `json:"id" yaml:"id"`
	Name         string    `json:"name,omitempty" yaml:"name"`
	SystemPrompt string    `json:"system_prompt" yaml:"prompt"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// DisplayName returns the character's name, falling back to its ID.
func (c *Character) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
