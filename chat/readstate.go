package chat

import (
	"context"

	"marketchat/auth"
)

// ReadTracker flips unread messages to read when a conversation is opened.
type ReadTracker struct {
	store Store
}

// NewReadTracker creates a ReadTracker.
func NewReadTracker(store Store) *ReadTracker {
	return &ReadTracker{store: store}
}

// MarkRead marks every unread message from senderID to receiverID as read and
// returns how many updates succeeded. Only the receiver may mark a
// conversation read. Each message is updated independently;
// when some fail the rest stay applied and a *PartialFailureError is returned.
func (r *ReadTracker) MarkRead(ctx context.Context, session auth.Session, senderID, receiverID string) (int, error) {
	if !session.Authenticated() {
		return 0, ErrUnauthenticated
	}
	if senderID == "" || receiverID == "" {
		return 0, validationError("sender and receiver are required")
	}
	if receiverID != session.UserID {
		return 0, validationError("only the receiver can mark messages read")
	}

	unread, err := r.store.UnreadMessages(ctx, senderID, receiverID)
	if err != nil {
		return 0, storeError("query unread messages", err)
	}
	if len(unread) == 0 {
		return 0, nil
	}

	var errs []error
	for _, msg := range unread {
		if err := r.store.MarkMessageRead(ctx, msg.MessageID); err != nil {
			errs = append(errs, storeError("mark message "+msg.MessageID+" read", err))
		}
	}

	marked := len(unread) - len(errs)
	if len(errs) > 0 {
		return marked, &PartialFailureError{
			Attempted: len(unread),
			Failed:    len(errs),
			Errs:      errs,
		}
	}
	return marked, nil
}
