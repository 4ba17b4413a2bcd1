package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"marketchat/auth"
	"marketchat/chat"
	"marketchat/models"
	"marketchat/storage"
)

type handler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
}

func newHandler(deps Dependencies) *handler {
	return &handler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.AllowedOrigins),
		},
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req models.SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session := auth.FromContext(r.Context())
	messageID, err := h.deps.Sender.Send(r.Context(), session, req.ReceiverID, req.Body)
	if err != nil && messageID != "" {
		// Stored, but the summary is stale. Resending would duplicate the message.
		log.Printf("api: message stored without summary update message_id=%s: %v", messageID, err)
		writeJSON(w, http.StatusCreated, models.SendMessageResponse{
			MessageID: messageID,
			Warning:   "chat summary not updated",
		})
		return
	}
	if err != nil {
		writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.SendMessageResponse{MessageID: messageID})
}

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	conversations, err := h.deps.Aggregator.Conversations(r.Context(), session)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.conversationModels(r.Context(), conversations))
}

func (h *handler) threadMessages(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	messages, err := h.deps.Threads.Thread(r.Context(), session, chi.URLParam(r, "counterpartyID"))
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageModels(messages))
}

// markRead flips the counterparty's messages to the session user to read.
// Store failures are logged and still answered with 202: the client's read
// flow never waits on them.
func (h *handler) markRead(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	counterpartyID := chi.URLParam(r, "counterpartyID")

	marked, err := h.deps.Reads.MarkRead(r.Context(), session, counterpartyID, session.UserID)
	if err != nil && !errors.Is(err, chat.ErrStoreUnavailable) {
		writeChatError(w, err)
		return
	}

	resp := models.MarkReadResponse{Marked: marked}
	if err != nil {
		log.Printf("api: mark read failed user=%s counterparty=%s: %v", session.UserID, counterpartyID, err)
		var partial *chat.PartialFailureError
		if errors.As(err, &partial) {
			resp.Failed = partial.Failed
		}
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (h *handler) listChats(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	chats, err := h.deps.Summaries.List(r.Context(), session)
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toChatSummaryModels(chats))
}

func (h *handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	session := auth.FromContext(r.Context())
	if err := h.deps.Summaries.Delete(r.Context(), session, chi.URLParam(r, "counterpartyID")); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	session := auth.FromContext(r.Context())
	if err := h.deps.Profiles.UpsertUser(r.Context(), storage.User{UserID: session.UserID, DisplayName: name}); err != nil {
		log.Printf("api: update profile failed user=%s: %v", session.UserID, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, models.User{UserID: session.UserID, DisplayName: name})
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	writeJSON(w, http.StatusOK, models.User{
		UserID:      userID,
		DisplayName: h.displayName(r.Context(), userID),
	})
}

// displayName returns the stored profile name, or UnknownUserName.
func (h *handler) displayName(ctx context.Context, userID string) string {
	user, err := h.deps.Profiles.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("api: profile lookup failed user=%s: %v", userID, err)
		}
		return models.UnknownUserName
	}
	return user.DisplayName
}

func (h *handler) conversationModels(ctx context.Context, conversations []chat.Conversation) []models.Conversation {
	out := make([]models.Conversation, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, toConversationModel(c, h.displayName(ctx, c.CounterpartyID)))
	}
	return out
}
