package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketchat/auth"
	"marketchat/realtime"
	"marketchat/storage"
)

var (
	alice = auth.Session{UserID: "alice"}
	bob   = auth.Session{UserID: "bob"}
	carol = auth.Session{UserID: "carol"}
)

func newTestStore(t *testing.T) (*storage.Store, *realtime.Broker) {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	broker := realtime.NewBroker()
	store.SetNotifier(broker)
	return store, broker
}

func mustSend(t *testing.T, sender *Sender, from auth.Session, to, body string) string {
	t.Helper()
	id, err := sender.Send(t.Context(), from, to, body)
	if err != nil {
		t.Fatalf("send %s->%s: %v", from.UserID, to, err)
	}
	return id
}

// faultyStore wraps a real store and injects failures per operation.
type faultyStore struct {
	Store

	mu          sync.Mutex
	appendErr   error
	upsertErr   error
	queryErr    error
	markErrs    map[string]error
	appendCalls int
	upsertCalls int
	queryCalls  int
}

func (f *faultyStore) AppendMessage(ctx context.Context, message storage.Message) (storage.Message, error) {
	f.mu.Lock()
	f.appendCalls++
	err := f.appendErr
	f.mu.Unlock()
	if err != nil {
		return storage.Message{}, err
	}
	return f.Store.AppendMessage(ctx, message)
}

func (f *faultyStore) UpsertChat(ctx context.Context, chatID string, patch storage.ChatPatch) error {
	f.mu.Lock()
	f.upsertCalls++
	err := f.upsertErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.UpsertChat(ctx, chatID, patch)
}

func (f *faultyStore) UnreadMessages(ctx context.Context, senderID, receiverID string) ([]storage.Message, error) {
	f.mu.Lock()
	f.queryCalls++
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.UnreadMessages(ctx, senderID, receiverID)
}

func (f *faultyStore) MessagesForParticipant(ctx context.Context, userID string) ([]storage.Message, error) {
	f.mu.Lock()
	f.queryCalls++
	err := f.queryErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.MessagesForParticipant(ctx, userID)
}

func (f *faultyStore) MarkMessageRead(ctx context.Context, messageID string) error {
	f.mu.Lock()
	err := f.markErrs[messageID]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.MarkMessageRead(ctx, messageID)
}

func (f *faultyStore) setQueryErr(err error) {
	f.mu.Lock()
	f.queryErr = err
	f.mu.Unlock()
}

func waitFor[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case v := <-ch:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for matching update")
			var zero T
			return zero
		}
	}
}

func anonymous() auth.Session {
	return auth.Session{}
}
