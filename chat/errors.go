package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an operation runs without a session user.
	ErrUnauthenticated = errors.New("chat: unauthenticated")
	// ErrValidation marks rejected input. Nothing is written.
	ErrValidation = errors.New("chat: validation failed")
	// ErrStoreUnavailable wraps every transport or backend failure of the store.
	ErrStoreUnavailable = errors.New("chat: store unavailable")
)

// PartialFailureError reports a bulk read-state update where some of the
// independent per-message updates failed. Successful updates are kept.
type PartialFailureError struct {
	Attempted int
	Failed    int
	Errs      []error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("chat: %d of %d read-state updates failed: %v", e.Failed, e.Attempted, errors.Join(e.Errs...))
}

// Unwrap exposes the per-message causes, so errors.Is(err, ErrStoreUnavailable) holds.
func (e *PartialFailureError) Unwrap() []error {
	return e.Errs
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func storeError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
