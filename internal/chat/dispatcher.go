package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/persona-relay/internal/protocol"
)

const defaultWriteTimeout = 10 * time.Second

// FrameWriter sends one envelope to the peer. Implementations must be safe
// for concurrent use.
type FrameWriter interface {
	WriteEnvelope(ctx context.Context, env protocol.Envelope) error
}

// Dispatcher sends replies for accepted requests on one connection.
type Dispatcher struct {
	w            FrameWriter
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewDispatcher creates a dispatcher writing through w.
func NewDispatcher(w FrameWriter, writeTimeout time.Duration, logger *slog.Logger) *Dispatcher {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{w: w, writeTimeout: writeTimeout, logger: logger}
}

// Begin returns the reply handle for request id.
func (d *Dispatcher) Begin(id uint64) *Reply {
	return &Reply{d: d, id: id}
}

// Notify sends an envelope that does not answer a request.
func (d *Dispatcher) Notify(ctx context.Context, env protocol.Envelope) error {
	return d.write(ctx, env)
}

func (d *Dispatcher) write(ctx context.Context, env protocol.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, d.writeTimeout)
	defer cancel()
	if err := d.w.WriteEnvelope(ctx, env); err != nil {
		d.logger.Debug("reply write failed", "type", env.Type, "error", err)
		return err
	}
	return nil
}

// Reply settles one request. Only the first Succeed or Fail sends a frame.
type Reply struct {
	d    *Dispatcher
	id   uint64
	once sync.Once
}

// ID returns the request id this reply answers.
func (r *Reply) ID() uint64 {
	return r.id
}

// Succeed sends an ai_response. It reports whether this call settled the
// request.
func (r *Reply) Succeed(ctx context.Context, text string) bool {
	return r.settle(ctx, protocol.NewAIResponse(r.id, text))
}

// Fail sends an error envelope carrying the request id.
func (r *Reply) Fail(ctx context.Context, message string) bool {
	id := r.id
	return r.settle(ctx, protocol.NewError(&id, message))
}

func (r *Reply) settle(ctx context.Context, env protocol.Envelope) bool {
	settled := false
	r.once.Do(func() {
		settled = true
		// A failed write means the connection is gone; the client settles
		// the request as lost on its side.
		_ = r.d.write(ctx, env)
	})
	return settled
}
