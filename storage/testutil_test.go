package storage

import (
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

type notification struct {
	collection string
	keys       []string
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *recordingNotifier) Notify(collection string, keys ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{collection: collection, keys: append([]string(nil), keys...)})
}

func (n *recordingNotifier) snapshot() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

func mustAppend(t *testing.T, store *Store, sender, receiver, body string) Message {
	t.Helper()

	msg, err := store.AppendMessage(t.Context(), Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Body:       body,
	})
	if err != nil {
		t.Fatalf("append %s->%s: %v", sender, receiver, err)
	}
	return msg
}
