package chat

import (
	"context"
	"log"
	"sync"
	"time"

	"marketchat/auth"
	"marketchat/realtime"
	"marketchat/storage"
)

// Aggregator maintains live conversation lists over the message store.
type Aggregator struct {
	store    Store
	source   realtime.Source
	location *time.Location

	// OnError receives snapshot fetch failures. Defaults to logging.
	OnError func(userID string, err error)
}

// NewAggregator creates an Aggregator. Display times are rendered in loc.
func NewAggregator(store Store, source realtime.Source, loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		store:    store,
		source:   source,
		location: loc,
		OnError: func(userID string, err error) {
			log.Printf("chat: conversation snapshot failed user=%s: %v", userID, err)
		},
	}
}

// Conversations computes the conversation list once, without subscribing.
func (a *Aggregator) Conversations(ctx context.Context, session auth.Session) ([]Conversation, error) {
	if !session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	messages, err := a.store.MessagesForParticipant(ctx, session.UserID)
	if err != nil {
		return nil, storeError("query messages", err)
	}
	return Aggregate(session.UserID, messages, a.location), nil
}

// Subscribe registers a standing query over every message involving the
// session user. onUpdate receives the full recomputed list after every change,
// one call at a time. The caller must Close the subscription.
func (a *Aggregator) Subscribe(session auth.Session, onUpdate func([]Conversation)) (*Subscription, error) {
	if !session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if onUpdate == nil {
		return nil, validationError("update callback is required")
	}

	userID := session.UserID
	sub := &Subscription{}
	listener, err := realtime.Listen(a.source, realtime.Query[[]storage.Message]{
		Collection: storage.CollectionMessages,
		Key:        userID,
		Fetch: func(ctx context.Context) ([]storage.Message, error) {
			messages, err := a.store.MessagesForParticipant(ctx, userID)
			if err != nil {
				return nil, storeError("query messages", err)
			}
			return messages, nil
		},
	}, func(messages []storage.Message) {
		conversations := Aggregate(userID, messages, a.location)
		sub.setLatest(conversations)
		onUpdate(conversations)
	}, func(err error) {
		if a.OnError != nil {
			a.OnError(userID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	sub.closer = listener.Close
	return sub, nil
}

// Subscription is a live conversation list. Close releases the standing query.
type Subscription struct {
	closer func()

	mu     sync.RWMutex
	latest []Conversation
}

// Close stops further updates. It is idempotent and must not be called from
// inside the update callback.
func (s *Subscription) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Latest returns the most recently delivered conversation list.
func (s *Subscription) Latest() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, len(s.latest))
	copy(out, s.latest)
	return out
}

func (s *Subscription) setLatest(conversations []Conversation) {
	s.mu.Lock()
	s.latest = conversations
	s.mu.Unlock()
}
