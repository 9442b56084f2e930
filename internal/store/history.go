// Package store keeps a local SQLite history of conversations.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rungchat/internal/logging"
	"rungchat/internal/transcript"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	sender TEXT NOT NULL,
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	duration REAL,
	created_at INTEGER NOT NULL,
	UNIQUE(conversation_id, message_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
`

// Entry is one recorded message.
type Entry struct {
	ConversationID  string
	MessageID       string
	Sender          transcript.Sender
	Kind            transcript.Kind
	Text            string
	DurationSeconds *float64
	CreatedAt       time.Time
}

// Conversation summarizes one recorded conversation.
type Conversation struct {
	ID       string
	Messages int
	Started  time.Time
	Last     time.Time
}

// History is the SQLite-backed message history.
type History struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens or creates the history database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*History, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	h := &History{db: db, path: path}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("history ready at %s (schema v%d)", path, schemaVersion)
	return h, nil
}

func (h *History) migrate() error {
	var version int
	if err := h.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("history schema v%d is newer than supported v%d", version, schemaVersion)
	}
	if _, err := h.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	if _, err := h.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}

// Path returns the database path.
func (h *History) Path() string {
	return h.path
}

// Close closes the database.
func (h *History) Close() error {
	logging.Store("closing history")
	return h.db.Close()
}

// Record stores one message. Recording the same message twice is a no-op.
func (h *History) Record(e Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var dur sql.NullFloat64
	if e.DurationSeconds != nil {
		dur = sql.NullFloat64{Float64: *e.DurationSeconds, Valid: true}
	}
	_, err := h.db.Exec(
		`INSERT OR IGNORE INTO messages
		 (conversation_id, message_id, sender, kind, text, duration, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ConversationID, e.MessageID, string(e.Sender), string(e.Kind), e.Text, dur, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("failed to record message %s: %v", e.MessageID, err)
		return err
	}
	return nil
}

// Recent returns up to limit messages, oldest first, from the latest
// recorded messages across all conversations. A conversationID narrows the
// result to that conversation.
func (h *History) Recent(conversationID string, limit int) ([]Entry, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT conversation_id, message_id, sender, kind, text, duration, created_at
		FROM messages`
	args := []any{}
	if conversationID != "" {
		query += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := h.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var sender, kind string
		var dur sql.NullFloat64
		var created int64
		if err := rows.Scan(&e.ConversationID, &e.MessageID, &sender, &kind, &e.Text, &dur, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		e.Sender = transcript.Sender(sender)
		e.Kind = transcript.Kind(kind)
		if dur.Valid {
			e.DurationSeconds = transcript.Seconds(dur.Float64)
		}
		e.CreatedAt = time.Unix(0, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Conversations lists recorded conversations, most recent first.
func (h *History) Conversations() ([]Conversation, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rows, err := h.db.Query(
		`SELECT conversation_id, COUNT(*), MIN(created_at), MAX(created_at)
		 FROM messages
		 GROUP BY conversation_id
		 ORDER BY MAX(created_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var first, last int64
		if err := rows.Scan(&c.ID, &c.Messages, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		c.Started = time.Unix(0, first)
		c.Last = time.Unix(0, last)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Recorder writes the messages appended to a log into the history.
type Recorder struct {
	history     *History
	unsubscribe func()

	mu             sync.Mutex
	conversationID string
}

// NewRecorder starts recording log under a fresh conversation ID. Loading
// placeholders are not recorded. A Clear starts a new conversation.
func NewRecorder(h *History, log *transcript.Log) *Recorder {
	r := &Recorder{history: h, conversationID: uuid.NewString()}
	r.unsubscribe = log.Subscribe(func(ev transcript.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch ev.Type {
		case transcript.Cleared:
			r.conversationID = uuid.NewString()
			logging.Store("conversation cleared, now recording %s", r.conversationID)
		case transcript.Appended:
			if ev.Message.Kind == transcript.KindLoading {
				return
			}
			_ = h.Record(Entry{
				ConversationID:  r.conversationID,
				MessageID:       ev.Message.ID,
				Sender:          ev.Message.Sender,
				Kind:            ev.Message.Kind,
				Text:            ev.Message.Text,
				DurationSeconds: ev.Message.DurationSeconds,
				CreatedAt:       ev.Message.CreatedAt,
			})
		}
	})
	logging.Store("recording conversation %s", r.conversationID)
	return r
}

// ConversationID returns the ID messages are currently recorded under.
func (r *Recorder) ConversationID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conversationID
}

// Stop stops recording.
func (r *Recorder) Stop() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}
