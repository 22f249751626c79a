package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

const subscriberBufSize = 256

// Event is one message fanned out to SSE and WebSocket clients. Key
// identifies the subject within a feed (a tab ID for badge events).
type Event struct {
	Feed    string          `json:"feed"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

type subscriber struct {
	ch     chan Event
	filter map[string]bool
}

// Broker fans out events to all subscribed clients. Retained events are
// replayed to new subscribers so a client that connects late still sees the
// current value for every key.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	retained    map[string]Event
	nextID      atomic.Int64
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]subscriber),
		retained:    make(map[string]Event),
	}
}

// Subscribe registers a new client. A nil filter accepts every feed. Retained
// events matching the filter are queued on the returned channel before any
// live event. The channel is buffered; slow consumers have events dropped.
func (b *Broker) Subscribe(filter map[string]bool) (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)

	b.mu.Lock()
	for _, evt := range b.retained {
		if filter != nil && !filter[evt.Feed] {
			continue
		}
		select {
		case ch <- evt:
		default:
		}
	}
	b.subscribers[id] = subscriber{ch: ch, filter: filter}
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: slow clients
// have events dropped.
func (b *Broker) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.fanOut(evt)
}

// PublishRetained publishes evt and keeps it as the current value for its
// feed and key.
func (b *Broker) PublishRetained(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retained[retainKey(evt.Feed, evt.Key)] = evt
	b.fanOut(evt)
}

// PublishJSON marshals v as the payload of a retained event.
func (b *Broker) PublishJSON(feed, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("relay: marshal %s event: %w", feed, err)
	}
	b.PublishRetained(Event{Feed: feed, Key: key, Payload: data})
	return nil
}

// Forget drops the retained value for feed and key.
func (b *Broker) Forget(feed, key string) {
	b.mu.Lock()
	delete(b.retained, retainKey(feed, key))
	b.mu.Unlock()
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Retained returns the current retained events.
func (b *Broker) Retained() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, 0, len(b.retained))
	for _, evt := range b.retained {
		out = append(out, evt)
	}
	return out
}

func (b *Broker) fanOut(evt Event) {
	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter[evt.Feed] {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

func retainKey(feed, key string) string {
	return feed + "\x00" + key
}
