package api

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketchat/auth"
	"marketchat/chat"
	"marketchat/realtime"
	"marketchat/storage"
)

type testEnv struct {
	server *httptest.Server
	store  *storage.Store
	tokens *auth.Authenticator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	broker := realtime.NewBroker()
	store.SetNotifier(broker)

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tokens := auth.NewAuthenticator(privateKey, "marketchat-test", time.Hour)

	router := NewRouter(Dependencies{
		Sender:       chat.NewSender(store, false),
		Aggregator:   chat.NewAggregator(store, broker, time.UTC),
		Reads:        chat.NewReadTracker(store),
		Threads:      chat.NewThreads(store, broker),
		Summaries:    chat.NewSummaries(store, false),
		Profiles:     store,
		Tokens:       tokens,
		PingInterval: time.Second,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testEnv{server: server, store: store, tokens: tokens}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(userID)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return token
}

// do sends a request as userID (anonymous when empty) and decodes a JSON
// response into out when out is non-nil.
func (e *testEnv) do(t *testing.T, method, path, userID string, body any, out any) int {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
