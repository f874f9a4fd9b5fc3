package receiver

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/avr-controller/internal/model"
)

// stateTTL is how long a fetched state is served without asking the receiver again.
const stateTTL = 250 * time.Millisecond

type stateCache struct {
	mu        sync.Mutex
	state     model.ReceiverState
	fetchedAt time.Time
	ttl       time.Duration
}

func newStateCache(ttl time.Duration) *stateCache {
	return &stateCache{state: model.DefaultState(), ttl: ttl}
}

func (c *stateCache) read() model.ReceiverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// isFresh reports whether the last fetch happened within the TTL. A cache that has
// never been written is never fresh.
func (c *stateCache) isFresh(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchedAt.IsZero() {
		return false
	}
	return now.Sub(c.fetchedAt) <= c.ttl
}

func (c *stateCache) write(state model.ReceiverState, at time.Time) {
	c.mu.Lock()
	c.state = state
	c.fetchedAt = at
	c.mu.Unlock()
}

// update applies an optimistic change after a successful command. The fetch
// timestamp is left alone.
func (c *stateCache) update(fn func(*model.ReceiverState)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}
