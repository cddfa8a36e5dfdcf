package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassifiesKnownKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want Type
		id   uint64
	}{
		{"request", `{"type":"request","id":1,"text":"hello","character":"angrySkeleton"}`, TypeRequest, 1},
		{"ai_response", `{"type":"ai_response","id":7,"text":"Ugh, what now."}`, TypeAIResponse, 7},
		{"error with id", `{"type":"error","id":3,"text":"boom"}`, TypeError, 3},
		{"welcome", `{"type":"welcome","text":"Welcome to the server!"}`, TypeWelcome, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Parse([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, env.Type)
			id, ok := env.CorrelationID()
			if tt.id == 0 {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.id, id)
		})
	}
}

func TestParseRejectsUnrecognizedShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"raw text", `Hi Arsenius`, ErrMalformed},
		{"empty", ``, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"no type", `{"text":"hi"}`, ErrMalformed},
		{"bad json", `{"type":`, ErrMalformed},
		{"unknown type", `{"type":"chat","text":"hi"}`, ErrUnknownType},
		{"ai_response without id", `{"type":"ai_response","text":"hi"}`, ErrMissingID},
		{"negative id", `{"type":"request","id":-1,"text":"hi"}`, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestErrorEnvelopeOmitsMissingID(t *testing.T) {
	t.Parallel()

	data, err := Marshal(NewError(nil, "Error processing your request."))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "id")
	assert.Equal(t, "error", raw["type"])
}

func TestNewErrorCopiesID(t *testing.T) {
	t.Parallel()

	id := uint64(5)
	env := NewError(&id, "x")
	id = 6

	got, ok := env.CorrelationID()
	require.True(t, ok)
	assert.Equal(t, uint64(5), got)
}
