package client

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionLost settles requests whose connection closed before a
	// reply arrived.
	ErrConnectionLost = errors.New("connection lost")
	// ErrRequestTimeout settles requests that got no reply in time.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrInvalidCredential is returned when the server rejects the
	// credential. It is never retried automatically.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrClientClosed is returned after Close.
	ErrClientClosed = errors.New("client closed")
	// ErrSlotBusy is returned by Dialogue.Ask while a request is in flight.
	ErrSlotBusy = errors.New("dialogue slot busy")
)

// ConnectionError reports a failure to establish or use the transport.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("chat %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// RemoteError is an error envelope the server sent for a request.
type RemoteError struct {
	ID      uint64
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error for request %d: %s", e.ID, e.Message)
}
