package chat

import (
	"context"
	"log"

	"marketchat/auth"
	"marketchat/realtime"
	"marketchat/storage"
)

// Threads serves the message history between the session user and one counterparty.
type Threads struct {
	store  Store
	source realtime.Source

	// OnError receives snapshot fetch failures. Defaults to logging.
	OnError func(userID, counterpartyID string, err error)
}

// NewThreads creates a Threads service.
func NewThreads(store Store, source realtime.Source) *Threads {
	return &Threads{
		store:  store,
		source: source,
		OnError: func(userID, counterpartyID string, err error) {
			log.Printf("chat: thread snapshot failed user=%s counterparty=%s: %v", userID, counterpartyID, err)
		},
	}
}

// Thread returns the messages exchanged with counterpartyID, oldest first.
func (t *Threads) Thread(ctx context.Context, session auth.Session, counterpartyID string) ([]storage.Message, error) {
	if !session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if counterpartyID == "" {
		return nil, validationError("counterparty is required")
	}
	messages, err := t.store.MessagesBetween(ctx, session.UserID, counterpartyID)
	if err != nil {
		return nil, storeError("query thread", err)
	}
	return messages, nil
}

// ThreadSubscription is a live thread view. Close releases the standing query.
type ThreadSubscription struct {
	listener *realtime.Listener[[]storage.Message]
}

// Close stops further updates. It is idempotent.
func (s *ThreadSubscription) Close() {
	s.listener.Close()
}

// Subscribe delivers the full thread with counterpartyID after every change
// to the session user's messages.
func (t *Threads) Subscribe(session auth.Session, counterpartyID string, onUpdate func([]storage.Message)) (*ThreadSubscription, error) {
	if !session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if counterpartyID == "" {
		return nil, validationError("counterparty is required")
	}
	if onUpdate == nil {
		return nil, validationError("update callback is required")
	}

	userID := session.UserID
	listener, err := realtime.Listen(t.source, realtime.Query[[]storage.Message]{
		Collection: storage.CollectionMessages,
		Key:        userID,
		Fetch: func(ctx context.Context) ([]storage.Message, error) {
			messages, err := t.store.MessagesBetween(ctx, userID, counterpartyID)
			if err != nil {
				return nil, storeError("query thread", err)
			}
			return messages, nil
		},
	}, onUpdate, func(err error) {
		if t.OnError != nil {
			t.OnError(userID, counterpartyID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	return &ThreadSubscription{listener: listener}, nil
}
