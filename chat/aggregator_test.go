package chat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"marketchat/auth"
	"marketchat/realtime"
)

func TestSubscribeDeliversInitialAndUpdatedSnapshots(t *testing.T) {
	store, broker := newTestStore(t)
	sender := NewSender(store, false)
	tracker := NewReadTracker(store)
	aggregator := NewAggregator(store, broker, time.UTC)

	mustSend(t, sender, carol, "bob", "older")

	updates := make(chan []Conversation, 16)
	sub, err := aggregator.Subscribe(bob, func(c []Conversation) { updates <- c })
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	initial := waitFor(t, updates, func(c []Conversation) bool { return len(c) == 1 })
	if initial[0].CounterpartyID != "carol" || !initial[0].Unread {
		t.Fatalf("unexpected initial snapshot: %+v", initial)
	}

	mustSend(t, sender, alice, "bob", "newest")
	next := waitFor(t, updates, func(c []Conversation) bool { return len(c) == 2 })
	if next[0].CounterpartyID != "alice" || next[0].LastMessage != "newest" || !next[0].Unread {
		t.Fatalf("expected alice conversation first and unread, got %+v", next)
	}

	if _, err := tracker.MarkRead(t.Context(), bob, "alice", "bob"); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	read := waitFor(t, updates, func(c []Conversation) bool {
		return len(c) == 2 && c[0].CounterpartyID == "alice" && !c[0].Unread
	})
	if !read[1].Unread {
		t.Fatalf("carol conversation must stay unread")
	}

	latest := sub.Latest()
	if len(latest) != 2 || latest[0].Unread {
		t.Fatalf("Latest() does not match last delivery: %+v", latest)
	}
}

func TestSubscribeIgnoresOtherUsers(t *testing.T) {
	store, broker := newTestStore(t)
	sender := NewSender(store, false)
	aggregator := NewAggregator(store, broker, time.UTC)

	var (
		mu    sync.Mutex
		count int
	)
	first := make(chan struct{}, 1)
	sub, err := aggregator.Subscribe(carol, func([]Conversation) {
		mu.Lock()
		count++
		mu.Unlock()
		select {
		case first <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	select {
	case <-first:
	case <-time.After(3 * time.Second):
		t.Fatalf("no initial snapshot")
	}

	mustSend(t, sender, alice, "bob", "not for carol")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Fatalf("expected only the initial snapshot, got %d deliveries", count)
	}
}

func TestSubscriptionCloseStopsUpdates(t *testing.T) {
	store, broker := newTestStore(t)
	sender := NewSender(store, false)
	aggregator := NewAggregator(store, broker, time.UTC)

	updates := make(chan []Conversation, 16)
	sub, err := aggregator.Subscribe(bob, func(c []Conversation) { updates <- c })
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	waitFor(t, updates, func([]Conversation) bool { return true })

	sub.Close()
	sub.Close()
	if n := broker.WatchCount(); n != 0 {
		t.Fatalf("expected watch released, %d still registered", n)
	}

	mustSend(t, sender, alice, "bob", "after close")
	select {
	case c := <-updates:
		t.Fatalf("unexpected delivery after Close: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscribeReportsFetchErrors(t *testing.T) {
	store, broker := newTestStore(t)
	faulty := &faultyStore{Store: store, queryErr: errors.New("offline")}
	aggregator := NewAggregator(faulty, broker, time.UTC)

	errs := make(chan error, 4)
	aggregator.OnError = func(userID string, err error) {
		if userID == "bob" {
			errs <- err
		}
	}

	sub, err := aggregator.Subscribe(bob, func([]Conversation) {
		t.Errorf("no snapshot expected while the store is failing")
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}
	defer sub.Close()

	got := waitFor(t, errs, func(error) bool { return true })
	if !errors.Is(got, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", got)
	}
}

func TestSubscribeValidation(t *testing.T) {
	store, broker := newTestStore(t)
	aggregator := NewAggregator(store, broker, time.UTC)

	if _, err := aggregator.Subscribe(auth.Session{}, func([]Conversation) {}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := aggregator.Subscribe(bob, nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := aggregator.Conversations(t.Context(), auth.Session{}); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if n := broker.WatchCount(); n != 0 {
		t.Fatalf("rejected subscriptions must not register watches, got %d", n)
	}
}

var _ realtime.Source = (*realtime.Broker)(nil)
