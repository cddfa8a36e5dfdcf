package client

import (
	"context"
	"time"

	"github.com/ashureev/persona-relay/internal/protocol"
	"github.com/coder/websocket"
)

// Call is one in-flight request. It settles exactly once.
type Call struct {
	ID        uint64
	Text      string
	Character string

	done  chan struct{}
	reply string
	err   error
}

// Done is closed when the call settles.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result waits for the call to settle and returns its outcome.
func (c *Call) Result() (string, error) {
	<-c.done
	return c.reply, c.err
}

func (c *Call) finish(reply string, err error) {
	c.reply = reply
	c.err = err
	close(c.done)
}

type pending struct {
	call  *Call
	gen   uint64
	timer *time.Timer
}

// Send issues a request and waits for its reply.
func (c *Client) Send(ctx context.Context, text, character string) (string, error) {
	return c.Go(ctx, text, character).Result()
}

// Go issues a request and returns without waiting. The connection is
// opened with the stored credential if needed. The call settles with the
// reply text, a *RemoteError, ErrRequestTimeout, ErrConnectionLost, a
// *ConnectionError, or ctx's error.
func (c *Client) Go(ctx context.Context, text, character string) *Call {
	call := &Call{Text: text, Character: character, done: make(chan struct{})}

	if err := c.Connect(ctx, ""); err != nil {
		call.finish("", err)
		return call
	}

	c.mu.Lock()
	if c.state != StateOpen || c.conn == nil {
		c.mu.Unlock()
		call.finish("", &ConnectionError{Op: "send", Err: ErrConnectionLost})
		return call
	}
	id := c.nextID.Add(1)
	call.ID = id
	p := &pending{call: call, gen: c.gen}
	c.pending[id] = p
	p.timer = time.AfterFunc(c.cfg.RequestTimeout, func() {
		if c.settle(id, "", ErrRequestTimeout) {
			c.logger.Warn("request timed out", "id", id)
		}
	})
	conn := c.conn
	c.mu.Unlock()

	data, err := protocol.Marshal(protocol.NewRequest(id, text, character))
	if err != nil {
		c.settle(id, "", err)
		return call
	}

	// Write under its own deadline: cancelling a write context closes the
	// whole connection.
	wctx, cancel := context.WithTimeout(context.Background(), defaultWriteTimeout)
	err = conn.Write(wctx, websocket.MessageText, data)
	cancel()
	if err != nil {
		c.settle(id, "", &ConnectionError{Op: "write", Err: err})
		return call
	}

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				c.settle(id, "", ctx.Err())
			case <-call.done:
			}
		}()
	}
	return call
}

// settle completes the pending request id. Removal happens under the lock,
// so whichever of reply, timeout, cancellation or connection loss gets here
// first wins and the rest are no-ops.
func (c *Client) settle(id uint64, reply string, err error) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
		p.timer.Stop()
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("reply for unknown or settled request discarded", "id", id)
		return false
	}
	p.call.finish(reply, err)
	return true
}

// takePendingLocked removes and returns the pending entries that match.
// Caller holds c.mu.
func (c *Client) takePendingLocked(match func(*pending) bool) []*pending {
	var out []*pending
	for id, p := range c.pending {
		if !match(p) {
			continue
		}
		delete(c.pending, id)
		p.timer.Stop()
		out = append(out, p)
	}
	return out
}
