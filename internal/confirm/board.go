package confirm

import (
	"sync"

	"rungchat/internal/logging"
)

// Board tracks the confirmations presented in one conversation.
type Board struct {
	mu    sync.Mutex
	items map[string]*Confirmation
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{items: make(map[string]*Confirmation)}
}

// Present registers c so it can be looked up by ID.
func (b *Board) Present(c *Confirmation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[c.ID] = c
	logging.Confirm("presented %s confirmation %s with %d options", c.Kind, c.ID, len(c.Options))
}

// Get returns the confirmation with id.
func (b *Board) Get(id string) (*Confirmation, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.items[id]
	return c, ok
}

// SupersedeAll expires every still-presented confirmation and returns the
// ones that changed. Expired entries stay on the board so a late activation
// reports ErrSuperseded instead of an unknown ID.
func (b *Board) SupersedeAll() []*Confirmation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var changed []*Confirmation
	for id, c := range b.items {
		if c.Supersede() {
			changed = append(changed, c)
			logging.Confirm("superseded confirmation %s", id)
		}
	}
	return changed
}

// Reset forgets all confirmations without changing their state.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = make(map[string]*Confirmation)
}
