// Package domain contains core domain types for the persona relay.
package domain

import "time"

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Turn is a single role-tagged entry in a conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SystemTurn returns a system turn carrying prompt.
func SystemTurn(prompt string) Turn {
	return Turn{Role: RoleSystem, Text: prompt}
}

// UserTurn returns a user turn carrying text.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantTurn returns an assistant turn carrying text.
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// StoredTurn is a transcript entry persisted for a principal and character.
type StoredTurn struct {
	PrincipalID string    `json:"principal_id"`
	CharacterID string    `json:"character_id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
}
