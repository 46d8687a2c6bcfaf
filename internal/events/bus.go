// Package events is the in-process change-notification bus shared by all
// storage backends.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/devloghq/devlog/internal/model"
)

// Type identifies what happened to a record.
type Type string

const (
	EventCreated Type = "created"
	EventUpdated Type = "updated"
	EventDeleted Type = "deleted"
)

// Event is delivered to subscribers on every entry mutation.
type Event struct {
	Type      Type         `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Entry     *model.Entry `json:"data,omitempty"`
}

// Callback receives events synchronously. A panicking callback is isolated
// and never prevents delivery to the remaining subscribers.
type Callback func(Event)

// Bus is a reference-counted publish/subscribe hub. The backend watch
// strategy (poll, native notify, or none) starts when the first subscriber
// registers and stops when the last one leaves. Delivery is best-effort and
// in-process: there is no persistence or replay.
type Bus struct {
	mu       sync.Mutex
	subs     map[int]Callback
	nextID   int
	watching bool

	startWatch func() error
	stopWatch  func()
	log        zerolog.Logger
}

// NewBus creates a bus. startWatch and stopWatch may be nil for backends
// whose watch strategy is a no-op.
func NewBus(log zerolog.Logger, startWatch func() error, stopWatch func()) *Bus {
	return &Bus{
		subs:       map[int]Callback{},
		startWatch: startWatch,
		stopWatch:  stopWatch,
		log:        log,
	}
}

// Subscribe registers cb and returns an unsubscribe function that is safe
// to call more than once.
func (b *Bus) Subscribe(cb Callback) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = cb
	needStart := !b.watching && b.startWatch != nil
	if needStart {
		b.watching = true
	}
	b.mu.Unlock()

	if needStart {
		if err := b.startWatch(); err != nil {
			// Leave the watch stopped so the next Subscribe retries.
			b.mu.Lock()
			b.watching = false
			b.mu.Unlock()
			b.log.Warn().Err(err).Msg("change watch failed to start")
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			lastOut := len(b.subs) == 0 && b.watching
			if lastOut {
				b.watching = false
			}
			b.mu.Unlock()
			if lastOut && b.stopWatch != nil {
				b.stopWatch()
			}
		})
	}
}

// Publish invokes every subscriber synchronously, isolating each call.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	cbs := make([]Callback, 0, len(b.subs))
	for _, cb := range b.subs {
		cbs = append(cbs, cb)
	}
	b.mu.Unlock()

	for _, cb := range cbs {
		b.invoke(cb, evt)
	}
}

func (b *Bus) invoke(cb Callback, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().Interface("panic", r).Str("event", string(evt.Type)).Msg("subscriber panicked")
		}
	}()
	cb(evt)
}

// SubscriberCount reports the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close drops all subscriptions and stops the watch if it was running.
// Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	wasWatching := b.watching
	b.watching = false
	b.subs = map[int]Callback{}
	b.mu.Unlock()
	if wasWatching && b.stopWatch != nil {
		b.stopWatch()
	}
}
