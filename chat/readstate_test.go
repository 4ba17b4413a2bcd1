package chat

import (
	"errors"
	"testing"
	"time"

	"marketchat/auth"
)

func TestMarkReadOnlyTouchesOneDirection(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, false)
	tracker := NewReadTracker(store)

	mustSend(t, sender, alice, "bob", "one")
	mustSend(t, sender, alice, "bob", "two")
	reply := mustSend(t, sender, bob, "alice", "three")

	marked, err := tracker.MarkRead(t.Context(), bob, "alice", "bob")
	if err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}
	if marked != 2 {
		t.Fatalf("expected 2 messages marked, got %d", marked)
	}

	unread, err := store.UnreadMessages(t.Context(), "alice", "bob")
	if err != nil {
		t.Fatalf("UnreadMessages() error: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread alice->bob messages, got %d", len(unread))
	}

	stored, err := store.GetMessage(t.Context(), reply)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if stored.Read {
		t.Fatalf("bob->alice message must stay unread")
	}

	again, err := tracker.MarkRead(t.Context(), bob, "alice", "bob")
	if err != nil || again != 0 {
		t.Fatalf("second MarkRead should be a no-op, got %d, %v", again, err)
	}
}

func TestMarkReadClearsUnreadConversation(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, false)
	tracker := NewReadTracker(store)
	aggregator := NewAggregator(store, nil, time.UTC)

	mustSend(t, sender, alice, "bob", "ping")

	before, err := aggregator.Conversations(t.Context(), bob)
	if err != nil {
		t.Fatalf("Conversations() error: %v", err)
	}
	if len(before) != 1 || !before[0].Unread {
		t.Fatalf("expected one unread conversation, got %+v", before)
	}

	if _, err := tracker.MarkRead(t.Context(), bob, "alice", "bob"); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}

	after, err := aggregator.Conversations(t.Context(), bob)
	if err != nil {
		t.Fatalf("Conversations() error: %v", err)
	}
	for _, c := range after {
		if c.CounterpartyID == "alice" && c.Unread {
			t.Fatalf("conversation with alice still unread after MarkRead")
		}
	}
}

func TestMarkReadPartialFailure(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, false)
	first := mustSend(t, sender, alice, "bob", "one")
	second := mustSend(t, sender, alice, "bob", "two")

	faulty := &faultyStore{
		Store:    store,
		markErrs: map[string]error{first: errors.New("network unreachable")},
	}
	tracker := NewReadTracker(faulty)

	marked, err := tracker.MarkRead(t.Context(), bob, "alice", "bob")
	if marked != 1 {
		t.Fatalf("expected 1 message marked, got %d", marked)
	}

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialFailureError, got %T: %v", err, err)
	}
	if partial.Attempted != 2 || partial.Failed != 1 {
		t.Fatalf("unexpected partial failure counts: %+v", partial)
	}
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("partial failure must unwrap to ErrStoreUnavailable")
	}

	ok, err := store.GetMessage(t.Context(), second)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if !ok.Read {
		t.Fatalf("successful update must stay applied")
	}
	failed, err := store.GetMessage(t.Context(), first)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if failed.Read {
		t.Fatalf("failed update must leave the message unread")
	}
}

func TestMarkReadErrors(t *testing.T) {
	store, _ := newTestStore(t)
	faulty := &faultyStore{Store: store}
	tracker := NewReadTracker(faulty)

	if _, err := tracker.MarkRead(t.Context(), anonymous(), "alice", "bob"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if faulty.queryCalls != 0 {
		t.Fatalf("unauthenticated MarkRead must not query the store")
	}

	if _, err := tracker.MarkRead(t.Context(), bob, "", "bob"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	faulty.setQueryErr(errors.New("timeout"))
	if _, err := tracker.MarkRead(t.Context(), bob, "alice", "bob"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestMarkReadRejectsNonReceiver(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, false)
	tracker := NewReadTracker(store)

	sent := mustSend(t, sender, alice, "bob", "for bob only")

	for _, session := range []auth.Session{carol, alice} {
		marked, err := tracker.MarkRead(t.Context(), session, "alice", "bob")
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", session.UserID, err)
		}
		if marked != 0 {
			t.Fatalf("%s: expected nothing marked, got %d", session.UserID, marked)
		}
	}

	stored, err := store.GetMessage(t.Context(), sent)
	if err != nil {
		t.Fatalf("GetMessage() error: %v", err)
	}
	if stored.Read {
		t.Fatalf("message must stay unread until bob opens the conversation")
	}
}
