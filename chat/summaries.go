package chat

import (
	"context"

	"marketchat/auth"
	"marketchat/storage"
)

// Summaries exposes the denormalized per-pair chat summary records.
type Summaries struct {
	store                Store
	canonicalSummaryKeys bool
}

// NewSummaries creates a Summaries service using the same key policy as the Sender.
func NewSummaries(store Store, canonicalSummaryKeys bool) *Summaries {
	return &Summaries{store: store, canonicalSummaryKeys: canonicalSummaryKeys}
}

// List returns summaries that include the session user, newest first.
func (s *Summaries) List(ctx context.Context, session auth.Session) ([]storage.ChatSummary, error) {
	if !session.Authenticated() {
		return nil, ErrUnauthenticated
	}
	chats, err := s.store.ChatsForParticipant(ctx, session.UserID)
	if err != nil {
		return nil, storeError("query chat summaries", err)
	}
	return chats, nil
}

// Delete removes the summary record(s) between the session user and
// counterpartyID. It is summary-only: the underlying messages are kept, so
// the pair still appears in aggregated conversation lists.
func (s *Summaries) Delete(ctx context.Context, session auth.Session, counterpartyID string) error {
	if !session.Authenticated() {
		return ErrUnauthenticated
	}
	if counterpartyID == "" {
		return validationError("counterparty is required")
	}

	keys := []string{SummaryKey(session.UserID, counterpartyID, s.canonicalSummaryKeys)}
	if !s.canonicalSummaryKeys {
		keys = append(keys, SummaryKey(counterpartyID, session.UserID, false))
	}

	for _, key := range keys {
		if err := s.store.DeleteChat(ctx, key); err != nil {
			return storeError("delete chat summary "+key, err)
		}
	}
	return nil
}
