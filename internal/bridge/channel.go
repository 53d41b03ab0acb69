package bridge

import "sync"

// Channel is a broadcast transport: every published frame reaches every
// subscriber, including the publisher. This mirrors a page-wide message
// bus, which offers no addressing or delivery guarantees.
type Channel interface {
	Publish(msg Message) error
	Subscribe() (<-chan Message, func())
}

// MemoryChannel is an in-process Channel for tests and for running the
// page and agent in one program.
type MemoryChannel struct {
	mu   sync.Mutex
	subs map[int]chan Message
	next int
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{subs: make(map[int]chan Message)}
}

func (c *MemoryChannel) Publish(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		// Drop frames for slow subscribers rather than block the bus.
		select {
		case sub <- msg:
		default:
		}
	}
	return nil
}

func (c *MemoryChannel) Subscribe() (<-chan Message, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	sub := make(chan Message, 16)
	c.subs[id] = sub
	return sub, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if s, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(s)
		}
	}
}
