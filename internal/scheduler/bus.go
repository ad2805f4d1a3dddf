package scheduler

import "sync"

// EventKind names the two event kinds a completed job publishes (§4.5).
type EventKind string

const (
	EventCollectorCompleted EventKind = "collector:completed"
	EventHarvesterCompleted EventKind = "harvester:completed"
)

// Event is the payload published on the "component:event" topic.
type Event struct {
	Kind          EventKind
	ComponentName string
	Timestamp     int64 // unix nanos; avoids a time.Now() capture inside the bus itself
}

// EventHandler receives published events.
type EventHandler func(Event)

// Bus is a minimal in-process pub/sub, grounded on the teacher's
// system/core/bus.go (Bus.SubscribeEvent/PublishEvent): a sync.RWMutex-
// guarded subscriber slice. Unlike the teacher's Bus, this one has a single
// topic ("component:event") since that is all the scheduler needs (§4.5).
type Bus struct {
	mu   sync.RWMutex
	subs []EventHandler
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler invoked for every published event.
func (b *Bus) Subscribe(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, h)
}

// Publish fans an event out to every subscriber, synchronously. Event
// propagation is at-least-once (§5): a handler panic in one subscriber does
// not prevent others from running.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	subs := append([]EventHandler(nil), b.subs...)
	b.mu.RUnlock()

	for _, h := range subs {
		func() {
			defer func() { _ = recover() }()
			h(evt)
		}()
	}
}
