package chat

import (
	"sort"
	"time"

	"marketchat/storage"
)

// DisplayTimeLayout renders conversation timestamps as MM-DD HH:MM.
const DisplayTimeLayout = "01-02 15:04"

// Conversation is the per-counterparty projection of a user's messages.
// It is rebuilt from scratch for every snapshot and never stored.
type Conversation struct {
	CounterpartyID string
	LastMessageID  string
	LastMessage    string
	Timestamp      time.Time
	DisplayTime    string
	Unread         bool
}

// FormatDisplayTime formats a store timestamp for the conversation list.
func FormatDisplayTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DisplayTimeLayout)
}

// Aggregate groups messages into one conversation per counterparty of userID.
//
// Messages are ranked newest first with a stable sort, so among equal
// timestamps the input order decides; the first message seen for a
// counterparty wins. Unread reflects only that winning message.
func Aggregate(userID string, messages []storage.Message, loc *time.Location) []Conversation {
	ranked := make([]storage.Message, len(messages))
	copy(ranked, messages)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].CreatedAt > ranked[j].CreatedAt
	})

	seen := make(map[string]struct{}, len(ranked))
	conversations := make([]Conversation, 0)
	for _, msg := range ranked {
		counterparty, ok := counterpartyOf(userID, msg)
		if !ok {
			continue
		}
		if _, dup := seen[counterparty]; dup {
			continue
		}
		seen[counterparty] = struct{}{}

		ts := time.UnixMilli(msg.CreatedAt)
		conversations = append(conversations, Conversation{
			CounterpartyID: counterparty,
			LastMessageID:  msg.MessageID,
			LastMessage:    msg.Body,
			Timestamp:      ts,
			DisplayTime:    FormatDisplayTime(ts, loc),
			Unread:         !msg.Read && msg.ReceiverID == userID,
		})
	}

	return conversations
}

// counterpartyOf returns the participant of msg that is not userID. Messages
// that do not involve userID, or only involve userID, have no counterparty.
func counterpartyOf(userID string, msg storage.Message) (string, bool) {
	participants := msg.Participants
	if len(participants) == 0 {
		participants = []string{msg.SenderID, msg.ReceiverID}
	}

	involved := false
	counterparty := ""
	for _, p := range participants {
		if p == userID {
			involved = true
			continue
		}
		if counterparty == "" && p != "" {
			counterparty = p
		}
	}
	if !involved || counterparty == "" {
		return "", false
	}
	return counterparty, true
}
