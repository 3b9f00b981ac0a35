// Package eventbus fans session events out to live subscribers such as the
// SSE endpoint and the interactive editor.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/jxucoder/latexgen/pkg/model"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Bus provides pub/sub for session events.
type Bus interface {
	Subscribe(sessionID string) (<-chan *model.Event, func())
	Publish(event *model.Event)
}

// InMemoryBus is the default Bus. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type InMemoryBus struct {
	mu      sync.RWMutex
	subs    map[string][]chan *model.Event
	buffer  int
	dropped atomic.Int64
}

// New creates an InMemoryBus. A non-positive buffer selects DefaultBuffer.
func New(buffer int) *InMemoryBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &InMemoryBus{
		subs:   make(map[string][]chan *model.Event),
		buffer: buffer,
	}
}

// Subscribe returns a channel of events for sessionID and a cancel func that
// unsubscribes and closes the channel. Cancel is safe to call more than once.
func (b *InMemoryBus) Subscribe(sessionID string) (<-chan *model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Event, b.buffer)
	b.subs[sessionID] = append(b.subs[sessionID], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(sessionID, ch) })
	}
}

func (b *InMemoryBus) remove(sessionID string, ch chan *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sessionID]
	for i, s := range subs {
		if s == ch {
			b.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
			return
		}
	}
}

// Publish delivers event to every subscriber of event.SessionID.
func (b *InMemoryBus) Publish(event *model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers reports how many live subscribers a session has.
func (b *InMemoryBus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *InMemoryBus) Dropped() int64 {
	return b.dropped.Load()
}
