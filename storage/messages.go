package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const messageColumns = `
			seq,
			message_id,
			body,
			sender_id,
			receiver_id,
			participants,
			created_at,
			is_read`

// AppendMessage inserts a new message. The store assigns MessageID, Seq and
// CreatedAt and forces Read to false; the stored record is returned.
func (s *Store) AppendMessage(ctx context.Context, message Message) (Message, error) {
	if message.SenderID == "" {
		return Message{}, errors.New("sender_id is required")
	}
	if message.ReceiverID == "" {
		return Message{}, errors.New("receiver_id is required")
	}
	if message.Body == "" {
		return Message{}, errors.New("body is required")
	}

	message.MessageID = uuid.NewString()
	message.Participants = participantSet(message.SenderID, message.ReceiverID)
	message.CreatedAt = s.nextTimestamp()
	message.Read = false

	participants, err := encodeParticipants(message.Participants)
	if err != nil {
		return Message{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (
			message_id,
			body,
			sender_id,
			receiver_id,
			participants,
			created_at,
			is_read
		) VALUES (?, ?, ?, ?, ?, ?, 0)`,
		message.MessageID,
		message.Body,
		message.SenderID,
		message.ReceiverID,
		participants,
		message.CreatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message %q: %w", message.MessageID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("read seq for message %q: %w", message.MessageID, err)
	}
	message.Seq = seq

	s.notifier.Notify(CollectionMessages, message.Participants...)
	return message, nil
}

// MessagesForParticipant returns every message whose participant set contains
// userID, in store insertion order.
func (s *Store) MessagesForParticipant(ctx context.Context, userID string) ([]Message, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+messageColumns+`
		FROM messages
		WHERE EXISTS (
			SELECT 1 FROM json_each(messages.participants)
			WHERE json_each.value = ?
		)
		ORDER BY seq ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages for participant %q: %w", userID, err)
	}
	return collectMessages(rows)
}

// UnreadMessages returns unread messages sent by senderID to receiverID.
func (s *Store) UnreadMessages(ctx context.Context, senderID, receiverID string) ([]Message, error) {
	if senderID == "" || receiverID == "" {
		return nil, errors.New("sender_id and receiver_id are required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+messageColumns+`
		FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND is_read = 0
		ORDER BY seq ASC`,
		senderID,
		receiverID,
	)
	if err != nil {
		return nil, fmt.Errorf("query unread messages %q -> %q: %w", senderID, receiverID, err)
	}
	return collectMessages(rows)
}

// MessagesBetween returns messages exchanged by two users ordered by creation time.
func (s *Store) MessagesBetween(ctx context.Context, userA, userB string) ([]Message, error) {
	if userA == "" || userB == "" {
		return nil, errors.New("both user IDs are required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT`+messageColumns+`
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
			OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, seq ASC`,
		userA, userB,
		userB, userA,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages between %q and %q: %w", userA, userB, err)
	}
	return collectMessages(rows)
}

// GetMessage fetches one message by ID.
func (s *Store) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	if messageID == "" {
		return nil, errors.New("message_id is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT`+messageColumns+`
		FROM messages
		WHERE message_id = ?`,
		messageID,
	)

	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message %q: %w", messageID, err)
	}
	return message, nil
}

// MarkMessageRead sets the read flag. Repeating it on a read message is a no-op.
func (s *Store) MarkMessageRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return errors.New("message_id is required")
	}

	var rawParticipants string
	err := s.db.QueryRowContext(ctx,
		`UPDATE messages
		SET is_read = 1
		WHERE message_id = ? AND is_read = 0
		RETURNING participants`,
		messageID,
	).Scan(&rawParticipants)
	if err == nil {
		participants, decodeErr := decodeParticipants(rawParticipants)
		if decodeErr != nil {
			return decodeErr
		}
		s.notifier.Notify(CollectionMessages, participants...)
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("mark message %q read: %w", messageID, err)
	}

	// Nothing changed: either already read or missing.
	var exists int
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM messages WHERE message_id = ?)`,
		messageID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check message %q: %w", messageID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return messages, nil
}

func scanMessage(row scanner) (*Message, error) {
	var (
		message         Message
		rawParticipants string
		isRead          int
	)

	if err := row.Scan(
		&message.Seq,
		&message.MessageID,
		&message.Body,
		&message.SenderID,
		&message.ReceiverID,
		&rawParticipants,
		&message.CreatedAt,
		&isRead,
	); err != nil {
		return nil, err
	}

	participants, err := decodeParticipants(rawParticipants)
	if err != nil {
		return nil, err
	}
	message.Participants = participants
	message.Read = isRead == 1

	return &message, nil
}
