package framecache

import "github.com/user/framedeck/pkg/ports"

// eventBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind loses events rather than stalling the cache.
const eventBuffer = 64

// Subscribe registers a listener for batch lifecycle events. The
// returned cancel function unregisters it and closes the channel.
// Delivery is best-effort; use events for diagnostics, not control
// flow.
func (c *Cache) Subscribe() (<-chan ports.BatchEvent, func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan ports.BatchEvent, eventBuffer)
	c.subs[id] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// emitLocked fans an event out to all subscribers without blocking.
func (c *Cache) emitLocked(ev ports.BatchEvent) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
