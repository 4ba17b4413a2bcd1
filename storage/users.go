package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertUser creates a profile or updates its display name.
func (s *Store) UpsertUser(ctx context.Context, user User) error {
	if user.UserID == "" {
		return errors.New("user_id is required")
	}
	user.DisplayName = strings.TrimSpace(user.DisplayName)
	if user.DisplayName == "" {
		return errors.New("display_name is required")
	}

	now := nowUnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (user_id, display_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at   = excluded.updated_at`,
		user.UserID,
		user.DisplayName,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", user.UserID, err)
	}

	s.notifier.Notify(CollectionUsers, user.UserID)
	return nil
}

// GetUser fetches a profile by user ID.
func (s *Store) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, display_name, created_at, updated_at
		FROM users
		WHERE user_id = ?`,
		userID,
	).Scan(&user.UserID, &user.DisplayName, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %q: %w", userID, err)
	}

	return &user, nil
}
