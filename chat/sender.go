package chat

import (
	"context"

	"marketchat/auth"
	"marketchat/storage"
)

// SummaryKey returns the chat summary ID for a send from senderID to receiverID.
//
// The default key is "{sender}_{receiver}", so A->B and B->A sends maintain two
// separate summaries; existing data is keyed that way. With canonical set, the
// pair is ordered first and both directions share one summary.
func SummaryKey(senderID, receiverID string, canonical bool) string {
	if canonical && receiverID < senderID {
		senderID, receiverID = receiverID, senderID
	}
	return senderID + "_" + receiverID
}

// Sender appends messages and keeps the per-pair chat summary current.
type Sender struct {
	store                Store
	canonicalSummaryKeys bool
}

// NewSender creates a Sender. canonicalSummaryKeys selects the SummaryKey policy.
func NewSender(store Store, canonicalSummaryKeys bool) *Sender {
	return &Sender{store: store, canonicalSummaryKeys: canonicalSummaryKeys}
}

// Send stores a message from the session user to receiverID and returns its ID.
//
// If the message is stored but the summary upsert fails, the ID is returned
// together with an ErrStoreUnavailable error: the message is durable and
// resending it would duplicate it.
func (s *Sender) Send(ctx context.Context, session auth.Session, receiverID, body string) (string, error) {
	if !session.Authenticated() {
		return "", ErrUnauthenticated
	}
	if body == "" {
		return "", validationError("message body is required")
	}
	if receiverID == "" {
		return "", validationError("receiver is required")
	}
	if receiverID == session.UserID {
		return "", validationError("cannot message yourself")
	}

	message, err := s.store.AppendMessage(ctx, storage.Message{
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		Body:       body,
	})
	if err != nil {
		return "", storeError("append message", err)
	}

	lastMessage := message.Body
	updatedAt := message.CreatedAt
	chatID := SummaryKey(message.SenderID, message.ReceiverID, s.canonicalSummaryKeys)
	if err := s.store.UpsertChat(ctx, chatID, storage.ChatPatch{
		LastMessage:  &lastMessage,
		UpdatedAt:    &updatedAt,
		Participants: []string{message.SenderID, message.ReceiverID},
	}); err != nil {
		return message.MessageID, storeError("update chat summary "+chatID, err)
	}

	return message.MessageID, nil
}
