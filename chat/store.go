package chat

import (
	"context"

	"marketchat/storage"
)

// Store is the document store the chat services run against.
// *storage.Store implements it.
type Store interface {
	AppendMessage(ctx context.Context, message storage.Message) (storage.Message, error)
	MessagesForParticipant(ctx context.Context, userID string) ([]storage.Message, error)
	MessagesBetween(ctx context.Context, userA, userB string) ([]storage.Message, error)
	UnreadMessages(ctx context.Context, senderID, receiverID string) ([]storage.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
	UpsertChat(ctx context.Context, chatID string, patch storage.ChatPatch) error
	ChatsForParticipant(ctx context.Context, userID string) ([]storage.ChatSummary, error)
	DeleteChat(ctx context.Context, chatID string) error
}

var _ Store = (*storage.Store)(nil)
