package models

// Message is a stored chat message as returned by the API.
type Message struct {
	MessageID  string `json:"message_id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	CreatedAt  int64  `json:"created_at"`
	IsRead     bool   `json:"is_read"`
}

// SendMessageRequest is the body of POST /api/messages.
type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
}

// SendMessageResponse carries the store-assigned message ID.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
	// Warning is set when the message was stored but its chat summary was not updated.
	Warning string `json:"warning,omitempty"`
}

// MarkReadResponse reports how many messages were flipped to read.
type MarkReadResponse struct {
	Marked int `json:"marked"`
	Failed int `json:"failed,omitempty"`
}
