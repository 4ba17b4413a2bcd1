package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// UpsertChat creates or merges a chat summary. Fields left nil in the patch
// keep their stored values; a nil Participants slice keeps stored participants.
func (s *Store) UpsertChat(ctx context.Context, chatID string, patch ChatPatch) error {
	if chatID == "" {
		return errors.New("chat_id is required")
	}

	var participants sql.NullString
	if patch.Participants != nil {
		encoded, err := encodeParticipants(patch.Participants)
		if err != nil {
			return err
		}
		participants = sql.NullString{String: encoded, Valid: true}
	}

	var lastMessage sql.NullString
	if patch.LastMessage != nil {
		lastMessage = sql.NullString{String: *patch.LastMessage, Valid: true}
	}
	var updatedAt sql.NullInt64
	if patch.UpdatedAt != nil {
		updatedAt = sql.NullInt64{Int64: *patch.UpdatedAt, Valid: true}
	}

	var stored string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO chats (chat_id, last_message, updated_at, participants)
		VALUES (?, COALESCE(?, ''), COALESCE(?, 0), COALESCE(?, '[]'))
		ON CONFLICT(chat_id) DO UPDATE SET
			last_message = COALESCE(?, chats.last_message),
			updated_at   = COALESCE(?, chats.updated_at),
			participants = COALESCE(?, chats.participants)
		RETURNING participants`,
		chatID, lastMessage, updatedAt, participants,
		lastMessage, updatedAt, participants,
	).Scan(&stored)
	if err != nil {
		return fmt.Errorf("upsert chat %q: %w", chatID, err)
	}

	keys, err := decodeParticipants(stored)
	if err != nil {
		return err
	}
	s.notifier.Notify(CollectionChats, keys...)
	return nil
}

// GetChat fetches one chat summary by ID.
func (s *Store) GetChat(ctx context.Context, chatID string) (*ChatSummary, error) {
	if chatID == "" {
		return nil, errors.New("chat_id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, last_message, updated_at, participants
		FROM chats
		WHERE chat_id = ?`,
		chatID,
	)

	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get chat %q: %w", chatID, err)
	}
	return chat, nil
}

// ChatsForParticipant lists chat summaries containing userID, newest first.
func (s *Store) ChatsForParticipant(ctx context.Context, userID string) ([]ChatSummary, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, last_message, updated_at, participants
		FROM chats
		WHERE EXISTS (
			SELECT 1 FROM json_each(chats.participants)
			WHERE json_each.value = ?
		)
		ORDER BY updated_at DESC, chat_id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats for participant %q: %w", userID, err)
	}
	defer rows.Close()

	chats := make([]ChatSummary, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat rows: %w", err)
	}

	return chats, nil
}

// DeleteChat removes a chat summary. Deleting a missing summary succeeds.
// Messages are never touched.
func (s *Store) DeleteChat(ctx context.Context, chatID string) error {
	if chatID == "" {
		return errors.New("chat_id is required")
	}

	var stored string
	err := s.db.QueryRowContext(ctx,
		`DELETE FROM chats WHERE chat_id = ? RETURNING participants`,
		chatID,
	).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete chat %q: %w", chatID, err)
	}

	keys, err := decodeParticipants(stored)
	if err != nil {
		return err
	}
	s.notifier.Notify(CollectionChats, keys...)
	return nil
}

func scanChat(row scanner) (*ChatSummary, error) {
	var (
		chat            ChatSummary
		rawParticipants string
	)
	if err := row.Scan(&chat.ChatID, &chat.LastMessage, &chat.UpdatedAt, &rawParticipants); err != nil {
		return nil, err
	}

	participants, err := decodeParticipants(rawParticipants)
	if err != nil {
		return nil, err
	}
	chat.Participants = participants
	return &chat, nil
}
