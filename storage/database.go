package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultDBFileName is the SQLite filename under app data dir.
	DefaultDBFileName = "marketchat.db"
	// DefaultWALCheckpointInterval controls periodic WAL truncation.
	DefaultWALCheckpointInterval = 24 * time.Hour
)

const (
	// CollectionMessages names the message collection in change notifications.
	CollectionMessages = "messages"
	// CollectionChats names the chat summary collection in change notifications.
	CollectionChats = "chats"
	// CollectionUsers names the profile collection in change notifications.
	CollectionUsers = "users"
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS users (
  user_id      TEXT PRIMARY KEY,
  display_name TEXT NOT NULL,
  created_at   INTEGER NOT NULL,
  updated_at   INTEGER NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS messages (
  seq          INTEGER PRIMARY KEY AUTOINCREMENT,
  message_id   TEXT NOT NULL UNIQUE,
  body         TEXT NOT NULL,
  sender_id    TEXT NOT NULL,
  receiver_id  TEXT NOT NULL,
  participants TEXT NOT NULL,
  created_at   INTEGER NOT NULL,
  is_read      INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1))
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_unread
ON messages (sender_id, receiver_id, is_read);
`,
	`
CREATE INDEX IF NOT EXISTS idx_messages_receiver_time
ON messages (receiver_id, created_at);
`,
	`
CREATE TABLE IF NOT EXISTS chats (
  chat_id      TEXT PRIMARY KEY,
  last_message TEXT NOT NULL DEFAULT '',
  updated_at   INTEGER NOT NULL DEFAULT 0,
  participants TEXT NOT NULL DEFAULT '[]'
);
`,
	`
CREATE INDEX IF NOT EXISTS idx_chats_updated_at
ON chats (updated_at DESC, chat_id);
`,
}

// Notifier receives one call per committed write with the touched collection
// and the user IDs whose standing queries may now match different records.
type Notifier interface {
	Notify(collection string, keys ...string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, ...string) {}

// Store is a document-style store over a SQLite connection.
type Store struct {
	db       *sql.DB
	notifier Notifier

	now           func() time.Time
	clockMu       sync.Mutex
	lastTimestamp int64

	walCheckpointInterval time.Duration
	walCheckpointStop     chan struct{}
	walCheckpointWG       sync.WaitGroup
	closeOnce             sync.Once
}

// Open opens (or creates) the database under the given data directory and runs migrations.
func Open(dataDir string) (*Store, string, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, "", fmt.Errorf("create storage directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DefaultDBFileName)
	store, err := OpenPath(dbPath)
	if err != nil {
		return nil, "", err
	}

	return store, dbPath, nil
}

// OpenPath opens SQLite at an explicit path and runs schema migrations.
func OpenPath(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(dbPath))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	store := newStore(db)
	store.walCheckpointInterval = DefaultWALCheckpointInterval
	store.walCheckpointStop = make(chan struct{})

	if err := store.enableWALMode(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.applyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.seedClock(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := store.checkpointWAL(); err != nil {
		_ = db.Close()
		return nil, err
	}
	store.startWALCheckpointLoop()

	return store, nil
}

func newStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		notifier: nopNotifier{},
		now:      time.Now,
	}
}

// SetNotifier installs the change listener invoked after every committed write.
// It must be called before the store is shared between goroutines.
func (s *Store) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Close closes the SQLite connection. Operations after Close return errors.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var closeErr error
	s.closeOnce.Do(func() {
		if s.walCheckpointStop != nil {
			close(s.walCheckpointStop)
			s.walCheckpointWG.Wait()
		}
		closeErr = s.db.Close()
	})
	return closeErr
}

// nextTimestamp returns a unix-millisecond timestamp strictly greater than any
// previously assigned by this store.
func (s *Store) nextTimestamp() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	ts := s.now().UnixMilli()
	if ts <= s.lastTimestamp {
		ts = s.lastTimestamp + 1
	}
	s.lastTimestamp = ts
	return ts
}

// seedClock starts the message clock after the newest stored timestamp so a
// restart with a lagging wall clock cannot reorder a conversation.
func (s *Store) seedClock() error {
	var latest int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(created_at), 0) FROM messages`).Scan(&latest); err != nil {
		return fmt.Errorf("read latest message timestamp: %w", err)
	}
	s.clockMu.Lock()
	if latest > s.lastTimestamp {
		s.lastTimestamp = latest
	}
	s.clockMu.Unlock()
	return nil
}

func (s *Store) applyMigrations() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	if version >= len(migrations) {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := version; i < len(migrations); i++ {
		if _, err := tx.Exec(migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d;", i+1)); err != nil {
			return fmt.Errorf("set schema version %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration transaction: %w", err)
	}

	return nil
}

func (s *Store) enableWALMode() error {
	var journalMode string
	if err := s.db.QueryRow("PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		return fmt.Errorf("enable WAL mode: unexpected journal mode %q", journalMode)
	}
	return nil
}

func (s *Store) checkpointWAL() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE);"); err != nil {
		return fmt.Errorf("wal checkpoint truncate: %w", err)
	}
	return nil
}

func (s *Store) startWALCheckpointLoop() {
	interval := s.walCheckpointInterval
	if interval <= 0 || s.walCheckpointStop == nil {
		return
	}

	s.walCheckpointWG.Add(1)
	go func() {
		defer s.walCheckpointWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.checkpointWAL()
			case <-s.walCheckpointStop:
				return
			}
		}
	}()
}
