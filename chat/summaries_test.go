package chat

import (
	"errors"
	"testing"
	"time"
)

func TestSummariesListAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, false)
	summaries := NewSummaries(store, false)

	mustSend(t, sender, alice, "bob", "hi")
	mustSend(t, sender, bob, "alice", "hey")
	mustSend(t, sender, carol, "alice", "offer")

	chats, err := summaries.List(t.Context(), alice)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(chats) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(chats))
	}
	if chats[0].ChatID != "carol_alice" {
		t.Fatalf("expected newest summary first, got %q", chats[0].ChatID)
	}

	if err := summaries.Delete(t.Context(), alice, "bob"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if err := summaries.Delete(t.Context(), alice, "bob"); err != nil {
		t.Fatalf("Delete() must be idempotent: %v", err)
	}

	chats, err = summaries.List(t.Context(), alice)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(chats) != 1 || chats[0].ChatID != "carol_alice" {
		t.Fatalf("expected only carol summary left, got %+v", chats)
	}

	conversations, err := NewAggregator(store, nil, time.UTC).Conversations(t.Context(), alice)
	if err != nil {
		t.Fatalf("Conversations() error: %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("deleting summaries must keep messages, got %d conversations", len(conversations))
	}
}

func TestSummariesDeleteCanonical(t *testing.T) {
	store, _ := newTestStore(t)
	sender := NewSender(store, true)
	summaries := NewSummaries(store, true)

	mustSend(t, sender, bob, "alice", "hey")
	if err := summaries.Delete(t.Context(), bob, "alice"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	chats, err := summaries.List(t.Context(), alice)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("expected no summaries, got %+v", chats)
	}
}

func TestSummariesValidation(t *testing.T) {
	store, _ := newTestStore(t)
	summaries := NewSummaries(store, false)

	if _, err := summaries.List(t.Context(), anonymous()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if err := summaries.Delete(t.Context(), alice, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
