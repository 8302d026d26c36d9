package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const subscriberBufferSize = 32

// Dispatcher delivers every published event to every current subscriber.
// Sends never block: a subscriber whose buffer is full skips the event and
// reconciles from its next full snapshot.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	bufferSize  int
}

type subscriber struct {
	id     string
	stream chan Event
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]*subscriber),
		bufferSize:  subscriberBufferSize,
	}
}

// Subscribe registers a viewer on the shared channel. The returned cleanup is
// idempotent and also runs when ctx is cancelled.
func (d *Dispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	sub := &subscriber{
		id:     uuid.NewString(),
		stream: make(chan Event, d.bufferSize),
	}
	d.mu.Lock()
	d.subscribers[sub.id] = sub
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, sub.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish fans the event out to all current subscribers without blocking.
func (d *Dispatcher) Publish(event Event) {
	if event == nil || event.Kind() == "" {
		return
	}
	d.mu.RLock()
	targets := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		targets = append(targets, sub)
	}
	d.mu.RUnlock()
	for _, sub := range targets {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports how many viewers are currently attached.
func (d *Dispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
