package storage

import (
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

var errDiskIO = errors.New("disk I/O error")

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return newStore(db), mock
}

func TestAppendMessageWrapsDriverError(t *testing.T) {
	store, mock := newMockStore(t)
	notifier := &recordingNotifier{}
	store.SetNotifier(notifier)

	mock.ExpectExec("INSERT INTO messages").WillReturnError(errDiskIO)

	_, err := store.AppendMessage(t.Context(), Message{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	if !errors.Is(err, errDiskIO) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if len(notifier.snapshot()) != 0 {
		t.Fatalf("failed writes must not notify")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendMessageUsesInsertIDAsSeq(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO messages").
		WithArgs(sqlmock.AnyArg(), "hi", "alice", "bob", `["alice","bob"]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	msg, err := store.AppendMessage(t.Context(), Message{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if msg.Seq != 42 {
		t.Fatalf("expected seq 42, got %d", msg.Seq)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnreadMessagesWrapsQueryError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM messages").WithArgs("alice", "bob").WillReturnError(errDiskIO)

	if _, err := store.UnreadMessages(t.Context(), "alice", "bob"); !errors.Is(err, errDiskIO) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
}

func TestMarkMessageReadWrapsUpdateError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("UPDATE messages").WithArgs("m-1").WillReturnError(errDiskIO)

	err := store.MarkMessageRead(t.Context(), "m-1")
	if !errors.Is(err, errDiskIO) {
		t.Fatalf("expected wrapped driver error, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("driver failures must not look like missing rows")
	}
}
