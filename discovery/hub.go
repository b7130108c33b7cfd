package discovery

import (
	"context"
	"sync"

	"github.com/smallnest/chanx"
)

// Hub fans events out to subscribers. Each subscriber has an unbounded
// buffer, so a slow consumer never blocks publishers.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
	size   int
}

// NewHub creates a Hub whose subscriber buffers start at initCapacity
func NewHub(initCapacity int) *Hub {
	if initCapacity <= 0 {
		initCapacity = 64
	}
	return &Hub{subs: make(map[uint64]*Subscription), size: initCapacity}
}

// Subscription receives every event published after it was created
type Subscription struct {
	id   uint64
	hub  *Hub
	ch   *chanx.UnboundedChan[Event]
	once sync.Once
}

// Events returns the delivery channel. It is closed after Close or when the
// hub closes, once buffered events were drained.
func (s *Subscription) Events() <-chan Event {
	return s.ch.Out
}

// Len returns the number of buffered events
func (s *Subscription) Len() int {
	return s.ch.Len()
}

// Close detaches the subscription
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribe registers a new subscriber. Subscribing to a closed hub yields a
// subscription whose channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription{
		hub: h,
		ch:  chanx.NewUnboundedChan[Event](context.Background(), h.size),
	}
	if h.closed {
		sub.once.Do(func() { close(sub.ch.In) })
		return sub
	}
	h.nextID++
	sub.id = h.nextID
	h.subs[sub.id] = sub
	return sub
}

// Publish delivers events to every subscriber in order
func (h *Hub) Publish(events ...Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for _, sub := range h.subs {
		for _, e := range events {
			sub.ch.In <- e
		}
	}
}

// Close closes every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch.In) })
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub.id)
	sub.once.Do(func() { close(sub.ch.In) })
}
