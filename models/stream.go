package models

// Websocket frame types.
const (
	FrameConversations = "conversations"
	FrameThread        = "thread"
	FrameError         = "error"
)

// StreamFrame is one websocket push. Data holds a full snapshot.
type StreamFrame struct {
	Type  string `json:"type"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
