package client

import (
	"context"
	"sync"
	"sync/atomic"
)

// Dialogue is a caller slot with at most one outstanding request, such as
// one NPC conversation in a game zone.
type Dialogue struct {
	client *Client
	busy   atomic.Bool

	mu        sync.Mutex
	character string
}

// NewDialogue binds a slot to client and character.
func NewDialogue(c *Client, character string) *Dialogue {
	return &Dialogue{client: c, character: character}
}

// Character returns the slot's character.
func (d *Dialogue) Character() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.character
}

// SetCharacter changes the character used by later asks.
func (d *Dialogue) SetCharacter(character string) {
	d.mu.Lock()
	d.character = character
	d.mu.Unlock()
}

// Busy reports whether an ask is in flight.
func (d *Dialogue) Busy() bool {
	return d.busy.Load()
}

// Ask sends text and waits for the reply. It returns ErrSlotBusy without
// sending anything while an earlier ask is still outstanding.
func (d *Dialogue) Ask(ctx context.Context, text string) (string, error) {
	if !d.busy.CompareAndSwap(false, true) {
		return "", ErrSlotBusy
	}
	defer d.busy.Store(false)
	return d.client.Send(ctx, text, d.Character())
}
