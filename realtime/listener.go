package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultFetchTimeout bounds each snapshot fetch.
const DefaultFetchTimeout = 10 * time.Second

// Query describes a standing query: the watch topic that invalidates it and
// the function that re-reads the full result set.
type Query[T any] struct {
	Collection string
	Key        string
	Fetch      func(ctx context.Context) (T, error)

	// FetchTimeout overrides DefaultFetchTimeout when positive.
	FetchTimeout time.Duration
}

// Listener delivers a fresh snapshot of a Query after every relevant change.
// Snapshots are fetched and delivered on a single goroutine, so two
// deliveries for the same listener never overlap.
type Listener[T any] struct {
	query      Query[T]
	watch      *Watch
	onSnapshot func(T)
	onError    func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

// Listen starts a listener. The first snapshot is fetched immediately; the
// watch is registered before that fetch so no change is missed in between.
// onError may be nil.
func Listen[T any](src Source, query Query[T], onSnapshot func(T), onError func(error)) (*Listener[T], error) {
	if src == nil {
		return nil, errors.New("realtime: source is required")
	}
	if query.Collection == "" || query.Key == "" {
		return nil, errors.New("realtime: query collection and key are required")
	}
	if query.Fetch == nil {
		return nil, errors.New("realtime: query fetch function is required")
	}
	if onSnapshot == nil {
		return nil, errors.New("realtime: snapshot callback is required")
	}
	if query.FetchTimeout <= 0 {
		query.FetchTimeout = DefaultFetchTimeout
	}
	if onError == nil {
		onError = func(error) {}
	}

	l := &Listener[T]{
		query:      query,
		watch:      src.Watch(query.Collection, query.Key),
		onSnapshot: onSnapshot,
		onError:    onError,
		done:       make(chan struct{}),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	l.wg.Add(1)
	go l.loop()

	return l, nil
}

// Close stops the listener and waits for an in-flight delivery to return.
// No callback runs after Close returns. Close is idempotent but must not be
// called from inside the snapshot or error callback.
func (l *Listener[T]) Close() {
	l.closeOnce.Do(func() {
		l.cancel()
		l.watch.Cancel()
		l.wg.Wait()
		close(l.done)
	})
}

// Done is closed once the listener has fully stopped.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

func (l *Listener[T]) loop() {
	defer l.wg.Done()

	l.refresh()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-l.watch.Changes():
			l.refresh()
		}
	}
}

func (l *Listener[T]) refresh() {
	fetchCtx, cancel := context.WithTimeout(l.ctx, l.query.FetchTimeout)
	snapshot, err := l.query.Fetch(fetchCtx)
	cancel()

	// A close that raced with the fetch wins over delivery.
	if l.ctx.Err() != nil {
		return
	}
	if err != nil {
		l.onError(err)
		return
	}
	l.onSnapshot(snapshot)
}
