package client

import (
	"context"
	"errors"
)

// DefaultFallback is shown for failures without a more specific message.
const DefaultFallback = "Sorry, I couldn't process that. Please try again."

// FallbackMessage turns a request failure into text fit for display.
func FallbackMessage(err error) string {
	if err == nil {
		return ""
	}

	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}

	switch {
	case errors.Is(err, ErrInvalidCredential):
		return "Your session has expired. Please sign in again."
	case errors.Is(err, ErrRequestTimeout):
		return "They're taking too long to answer. Please try again."
	case errors.Is(err, ErrSlotBusy):
		return "Still thinking about your last message..."
	case errors.Is(err, ErrConnectionLost):
		return "Connection lost. Reconnecting..."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled."
	}

	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return "Can't reach the chat server right now."
	}
	return DefaultFallback
}
