// Package protocol defines the JSON envelopes exchanged over the chat socket.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
)

// Type discriminates envelope kinds.
type Type string

const (
	TypeRequest    Type = "request"
	TypeAIResponse Type = "ai_response"
	TypeError      Type = "error"
	TypeWelcome    Type = "welcome"
)

// Close codes used when the server rejects a connection after upgrade.
const (
	CloseMissingCredential websocket.StatusCode = 4001
	CloseInvalidCredential websocket.StatusCode = 4002
)

// WelcomeText is sent to every authenticated connection.
const WelcomeText = "Welcome to the server!"

var (
	// ErrMalformed is returned for frames that are not a JSON envelope.
	ErrMalformed = errors.New("malformed envelope")
	// ErrUnknownType is returned for envelopes with an unrecognized type.
	ErrUnknownType = errors.New("unknown envelope type")
	// ErrMissingID is returned for reply envelopes that must carry an id.
	ErrMissingID = errors.New("envelope missing id")
)

// Envelope is the wire message in both directions.
type Envelope struct {
	Type      Type    `json:"type"`
	ID        *uint64 `json:"id,omitempty"`
	Text      string  `json:"text"`
	Character string  `json:"character,omitempty"`
}

// HasID reports whether the envelope carries a correlation id.
func (e Envelope) HasID() bool {
	return e.ID != nil
}

// CorrelationID returns the id, or 0 and false when absent.
func (e Envelope) CorrelationID() (uint64, bool) {
	if e.ID == nil {
		return 0, false
	}
	return *e.ID, true
}

// NewRequest builds a client request envelope.
func NewRequest(id uint64, text, character string) Envelope {
	return Envelope{Type: TypeRequest, ID: &id, Text: text, Character: character}
}

// NewAIResponse builds a successful reply envelope.
func NewAIResponse(id uint64, text string) Envelope {
	return Envelope{Type: TypeAIResponse, ID: &id, Text: text}
}

// NewError builds an error envelope. id may be nil when the failure cannot
// be attributed to a request.
func NewError(id *uint64, text string) Envelope {
	env := Envelope{Type: TypeError, Text: text}
	if id != nil {
		v := *id
		env.ID = &v
	}
	return env
}

// NewWelcome builds the informational greeting sent after authentication.
func NewWelcome(text string) Envelope {
	return Envelope{Type: TypeWelcome, Text: text}
}

// Parse classifies a raw frame into one of the known envelope kinds.
// Frames that do not fit a kind are rejected up front.
func Parse(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformed)
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case TypeRequest, TypeWelcome, TypeError:
		return env, nil
	case TypeAIResponse:
		if env.ID == nil {
			return Envelope{}, fmt.Errorf("%w: %s", ErrMissingID, env.Type)
		}
		return env, nil
	case "":
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Marshal encodes an envelope for the wire.
func Marshal(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}
