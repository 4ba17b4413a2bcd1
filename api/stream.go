package api

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"marketchat/auth"
	"marketchat/chat"
	"marketchat/models"
	"marketchat/storage"
)

const (
	defaultPingInterval = 30 * time.Second
	writeWait           = 10 * time.Second
	maxInboundBytes     = 4 * 1024
)

// conversationStream pushes the full conversation list after every change.
func (h *handler) conversationStream(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	stream := h.newStream(conn)
	defer stream.close()

	ctx := r.Context()
	sub, err := h.deps.Aggregator.Subscribe(session, func(conversations []chat.Conversation) {
		stream.write(models.StreamFrame{
			Type: models.FrameConversations,
			Data: h.conversationModels(ctx, conversations),
		})
	})
	if err != nil {
		stream.writeError(err)
		return
	}
	defer sub.Close()

	stream.run(ctx)
}

// threadStream pushes the thread with one counterparty after every change and
// marks incoming messages read while the thread is open.
func (h *handler) threadStream(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	counterpartyID := chi.URLParam(r, "counterpartyID")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	stream := h.newStream(conn)
	defer stream.close()

	ctx := r.Context()
	sub, err := h.deps.Threads.Subscribe(session, counterpartyID, func(messages []storage.Message) {
		stream.write(models.StreamFrame{
			Type: models.FrameThread,
			Data: toMessageModels(messages),
		})
		if hasUnreadFrom(messages, counterpartyID, session.UserID) {
			if _, err := h.deps.Reads.MarkRead(ctx, session, counterpartyID, session.UserID); err != nil {
				log.Printf("api: mark read on open thread failed user=%s counterparty=%s: %v", session.UserID, counterpartyID, err)
			}
		}
	})
	if err != nil {
		stream.writeError(err)
		return
	}
	defer sub.Close()

	stream.run(ctx)
}

func hasUnreadFrom(messages []storage.Message, senderID, receiverID string) bool {
	for _, m := range messages {
		if !m.Read && m.SenderID == senderID && m.ReceiverID == receiverID {
			return true
		}
	}
	return false
}

// wsStream serializes writes to one websocket connection.
type wsStream struct {
	conn         *websocket.Conn
	pingInterval time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (h *handler) newStream(conn *websocket.Conn) *wsStream {
	interval := h.deps.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	return &wsStream{conn: conn, pingInterval: interval}
}

func (s *wsStream) write(frame models.StreamFrame) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(frame); err != nil {
		log.Printf("api: websocket write failed remote=%s: %v", s.conn.RemoteAddr(), err)
	}
}

func (s *wsStream) writeError(err error) {
	s.write(models.StreamFrame{Type: models.FrameError, Error: err.Error()})
}

// run blocks until the client goes away or ctx ends. Inbound messages are
// discarded; the read loop exists to process control frames.
func (s *wsStream) run(ctx context.Context) {
	pongWait := 2 * s.pingInterval
	s.conn.SetReadLimit(maxInboundBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := s.conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			_ = s.writeControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsStream) writeControl(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func (s *wsStream) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, candidate := range allowed {
			if strings.EqualFold(candidate, u.Scheme+"://"+u.Host) {
				return true
			}
		}
		return false
	}
}
