package api

import (
	"marketchat/chat"
	"marketchat/models"
	"marketchat/storage"
)

func toMessageModel(m storage.Message) models.Message {
	return models.Message{
		MessageID:  m.MessageID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Body:       m.Body,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.Read,
	}
}

func toMessageModels(messages []storage.Message) []models.Message {
	out := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, toMessageModel(m))
	}
	return out
}

func toConversationModel(c chat.Conversation, name string) models.Conversation {
	return models.Conversation{
		CounterpartyID:   c.CounterpartyID,
		CounterpartyName: name,
		LastMessageID:    c.LastMessageID,
		LastMessage:      c.LastMessage,
		Timestamp:        c.Timestamp.UnixMilli(),
		DisplayTime:      c.DisplayTime,
		Unread:           c.Unread,
	}
}

func toChatSummaryModels(chats []storage.ChatSummary) []models.ChatSummary {
	out := make([]models.ChatSummary, 0, len(chats))
	for _, c := range chats {
		out = append(out, models.ChatSummary{
			ChatID:       c.ChatID,
			LastMessage:  c.LastMessage,
			UpdatedAt:    c.UpdatedAt,
			Participants: c.Participants,
		})
	}
	return out
}
