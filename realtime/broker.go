// Package realtime turns store change notifications into standing-query
// snapshots delivered to subscribers.
package realtime

import (
	"sync"
)

// Source hands out change watches for one collection key.
type Source interface {
	Watch(collection, key string) *Watch
}

// Broker fans change notifications out to in-process watches.
// It implements storage.Notifier.
type Broker struct {
	mu      sync.RWMutex
	watches map[string]map[*Watch]struct{}
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		watches: make(map[string]map[*Watch]struct{}),
	}
}

// Watch is a coalescing change signal for one topic.
type Watch struct {
	broker  *Broker
	topic   string
	changes chan struct{}
	once    sync.Once
}

// Changes fires at least once after any number of notifications since the
// last receive. It is never closed.
func (w *Watch) Changes() <-chan struct{} {
	return w.changes
}

// Cancel unregisters the watch. Safe to call more than once.
func (w *Watch) Cancel() {
	w.once.Do(func() {
		w.broker.remove(w)
	})
}

func (w *Watch) signal() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func topicFor(collection, key string) string {
	return collection + "/" + key
}

// Watch registers interest in changes to collection records touching key.
func (b *Broker) Watch(collection, key string) *Watch {
	w := &Watch{
		broker:  b,
		topic:   topicFor(collection, key),
		changes: make(chan struct{}, 1),
	}

	b.mu.Lock()
	set, ok := b.watches[w.topic]
	if !ok {
		set = make(map[*Watch]struct{})
		b.watches[w.topic] = set
	}
	set[w] = struct{}{}
	b.mu.Unlock()

	return w
}

// Notify signals every watch registered on collection for any of keys.
func (b *Broker) Notify(collection string, keys ...string) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, key := range keys {
		for w := range b.watches[topicFor(collection, key)] {
			w.signal()
		}
	}
}

// WatchCount returns the number of live watches, for diagnostics.
func (b *Broker) WatchCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, set := range b.watches {
		n += len(set)
	}
	return n
}

func (b *Broker) remove(w *Watch) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.watches[w.topic]
	if !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(b.watches, w.topic)
	}
}
