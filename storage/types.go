package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNotFound indicates a requested row does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

// Message is the stored representation of one chat message.
type Message struct {
	MessageID    string
	Seq          int64
	Body         string
	SenderID     string
	ReceiverID   string
	Participants []string
	CreatedAt    int64
	Read         bool
}

// HasParticipant reports whether userID is in the message participant set.
func (m Message) HasParticipant(userID string) bool {
	for _, p := range m.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatSummary is the denormalized latest-message record for a participant pair.
type ChatSummary struct {
	ChatID       string
	LastMessage  string
	UpdatedAt    int64
	Participants []string
}

// ChatPatch is a merge patch for a chat summary. Nil fields keep the stored value.
type ChatPatch struct {
	LastMessage  *string
	UpdatedAt    *int64
	Participants []string
}

// User is a stored display profile.
type User struct {
	UserID      string
	DisplayName string
	CreatedAt   int64
	UpdatedAt   int64
}

type scanner interface {
	Scan(dest ...any) error
}

// participantSet normalizes a participant list: empty IDs dropped, duplicates
// kept once, sorted so the stored JSON is stable.
func participantSet(ids ...string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func encodeParticipants(ids []string) (string, error) {
	raw, err := json.Marshal(participantSet(ids...))
	if err != nil {
		return "", fmt.Errorf("encode participants: %w", err)
	}
	return string(raw), nil
}

func decodeParticipants(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return ids, nil
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
