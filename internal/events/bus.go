package events

import (
	"log"
	"sync"
)

// Handler receives events of any topic.
type Handler func(Event)

type subscription struct {
	id uint64
	fn Handler
}

// Bus is an in-process, synchronous fan-out hub.
//
// Publish delivers to the subscribers registered at the time of the call, in
// subscription order, on the publishing goroutine. A panicking handler is
// logged and skipped.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Topic][]subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Topic][]subscription)}
}

// Subscribe registers a handler bound to the topic of E and returns a
// function that removes it. The returned function is idempotent.
func Subscribe[E Payload](b *Bus, handler func(E)) (unsubscribe func()) {
	var zero E
	return b.On(zero.Topic(), func(e Event) {
		if v, ok := e.(E); ok {
			handler(v)
		}
	})
}

// On registers an untyped handler for topic. Handlers run synchronously on
// the publisher's goroutine, so one that blocks on the publisher stalls it.
func (b *Bus) On(topic Topic, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, fn: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[topic]
	for i, s := range subs {
		if s.id == id {
			// Copy rather than shift in place: in-flight publishes hold the old slice.
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[topic] = next
			return
		}
	}
}

// UnsubscribeAll removes every handler of the given topics, or of all topics
// when none are given.
func (b *Bus) UnsubscribeAll(topics ...Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(topics) == 0 {
		b.subs = make(map[Topic][]subscription)
		return
	}
	for _, t := range topics {
		delete(b.subs, t)
	}
}

// Publish delivers e to the current subscribers of its topic.
func (b *Bus) Publish(e Event) {
	topic := e.Topic()

	b.mu.RLock()
	subs := b.subs[topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(topic, s, e)
	}
}

// PublishAll publishes events in order.
func (b *Bus) PublishAll(evts []Event) {
	for _, e := range evts {
		b.Publish(e)
	}
}

// Count returns the number of subscribers of topic.
func (b *Bus) Count(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) deliver(topic Topic, s subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[events] subscriber %d on %s panicked: %v", s.id, topic, r)
		}
	}()
	s.fn(e)
}
