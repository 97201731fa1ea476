package relay

import (
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

// RedeliveryGuard suppresses JetStream redeliveries on the consume side.
// Message ids land in the "current" bloom filter; lookups check both
// "current" and "previous", and periodic rotation swaps them to keep the
// memory bounded while ids stay visible for at least one full window.
// A false positive drops a fresh message, which the publish-side
// duplicate window and the storage-level dedup both tolerate.
type RedeliveryGuard struct {
	current  *bloom.BloomFilter
	previous *bloom.BloomFilter
	mu       sync.RWMutex
	window   time.Duration
	capacity uint
	fpRate   float64
}

// NewRedeliveryGuard creates a RedeliveryGuard with the given sliding
// window duration, expected capacity (messages per window), and false
// positive rate.
//
// Typical defaults:
//   - window: 10 minutes
//   - capacity: 1,000,000
//   - fpRate: 0.0001 (0.01%)
func NewRedeliveryGuard(window time.Duration, capacity uint, fpRate float64) *RedeliveryGuard {
	return &RedeliveryGuard{
		current:  bloom.NewWithEstimates(capacity, fpRate),
		previous: bloom.NewWithEstimates(capacity, fpRate),
		window:   window,
		capacity: capacity,
		fpRate:   fpRate,
	}
}

// Seen checks whether the message id exists in either filter. If found,
// it returns true (likely redelivery). If not found, it adds the id to
// the current filter and returns false. Empty ids always pass through.
//
// This method is safe for concurrent use.
func (g *RedeliveryGuard) Seen(msgID string) bool {
	if msgID == "" {
		return false
	}
	data := []byte(msgID)

	g.mu.RLock()
	if g.current.Test(data) || g.previous.Test(data) {
		g.mu.RUnlock()
		return true
	}
	g.mu.RUnlock()

	g.mu.Lock()
	// Double-check after acquiring write lock to avoid race where
	// another goroutine added the same id between RUnlock and Lock.
	if g.current.Test(data) || g.previous.Test(data) {
		g.mu.Unlock()
		return true
	}
	g.current.Add(data)
	g.mu.Unlock()

	return false
}

// Rotate swaps the current filter to previous and creates a fresh current
// filter. Call it every window/2 so ids stay visible for at least one
// full window duration.
func (g *RedeliveryGuard) Rotate() {
	g.mu.Lock()
	g.previous = g.current
	g.current = bloom.NewWithEstimates(g.capacity, g.fpRate)
	g.mu.Unlock()
}

// Window returns the configured guard window duration.
func (g *RedeliveryGuard) Window() time.Duration {
	return g.window
}
