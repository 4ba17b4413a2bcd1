package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"marketchat/auth"
	"marketchat/chat"
	"marketchat/storage"
)

// SessionVerifier turns a bearer token into a session.
type SessionVerifier interface {
	Session(token string) (auth.Session, error)
}

// Profiles stores display names.
type Profiles interface {
	UpsertUser(ctx context.Context, user storage.User) error
	GetUser(ctx context.Context, userID string) (*storage.User, error)
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Sender     *chat.Sender
	Aggregator *chat.Aggregator
	Reads      *chat.ReadTracker
	Threads    *chat.Threads
	Summaries  *chat.Summaries
	Profiles   Profiles
	Tokens     SessionVerifier

	AllowedOrigins []string
	// PingInterval overrides the websocket keepalive period when positive.
	PingInterval time.Duration
}

// NewRouter builds the HTTP handler with all routes mounted.
func NewRouter(deps Dependencies) http.Handler {
	h := newHandler(deps)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(deps.Tokens))

		r.Route("/api", func(r chi.Router) {
			r.Post("/messages", h.sendMessage)

			r.Get("/conversations", h.listConversations)
			r.Get("/conversations/{counterpartyID}/messages", h.threadMessages)
			r.Post("/conversations/{counterpartyID}/read", h.markRead)

			r.Get("/chats", h.listChats)
			r.Delete("/chats/{counterpartyID}", h.deleteChat)

			r.Put("/profile", h.updateProfile)
			r.Get("/users/{userID}", h.getUser)
		})

		r.Get("/ws/conversations", h.conversationStream)
		r.Get("/ws/threads/{counterpartyID}", h.threadStream)
	})

	return r
}
