package models

// Conversation is one row of the aggregated conversation list.
type Conversation struct {
	CounterpartyID   string `json:"counterparty_id"`
	CounterpartyName string `json:"counterparty_name,omitempty"`
	LastMessageID    string `json:"last_message_id"`
	LastMessage      string `json:"last_message"`
	Timestamp        int64  `json:"timestamp"`
	DisplayTime      string `json:"display_time"`
	Unread           bool   `json:"unread"`
}

// ChatSummary is a denormalized per-pair summary record.
type ChatSummary struct {
	ChatID       string   `json:"chat_id"`
	LastMessage  string   `json:"last_message"`
	UpdatedAt    int64    `json:"updated_at"`
	Participants []string `json:"participants"`
}
