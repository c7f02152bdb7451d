package storage

import (
	"sync"
	"time"
)

// OfferState is the mutable per-offer-instance lifecycle input: when the
// offer joined its campaign and whether it is a queued replacement awaiting
// promotion.
type OfferState struct {
	AddedAt time.Time
	Queued  bool
}

// OfferStateCache holds offer lifecycle state in memory, keyed by product
// ID. Seeded from the product snapshot at startup and mutated by add /
// promote events.
type OfferStateCache struct {
	mu     sync.RWMutex
	states map[string]OfferState
}

func NewOfferStateCache() *OfferStateCache {
	return &OfferStateCache{states: map[string]OfferState{}}
}

func (c *OfferStateCache) Get(id string) (OfferState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.states[id]
	return st, ok
}

func (c *OfferStateCache) Put(id string, st OfferState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = st
}

// Seed records state for any offer not already tracked; existing entries are
// kept so a snapshot rebuild does not reset add times.
func (c *OfferStateCache) Seed(id string, st OfferState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.states[id]; !ok {
		c.states[id] = st
	}
}

// Promote clears the queued flag and restarts the offer's clock.
func (c *OfferStateCache) Promote(id string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[id] = OfferState{AddedAt: now}
}

func (c *OfferStateCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, id)
}
