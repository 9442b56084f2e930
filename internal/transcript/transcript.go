// Package transcript holds the ordered message log of a conversation.
package transcript

import (
	"fmt"
	"sync"
	"time"

	"rungchat/internal/confirm"

	"github.com/google/uuid"
)

// Sender of a message.
type Sender string

const (
	User Sender = "user"
	Bot  Sender = "bot"
)

// Kind of a message.
type Kind string

const (
	KindText    Kind = "text"
	KindCode    Kind = "code"
	KindLoading Kind = "loading"
	KindOptions Kind = "options"
)

// Message is one entry of the log. Messages do not change after they are
// appended, except the text of a loading placeholder.
type Message struct {
	ID              string
	Sender          Sender
	Kind            Kind
	Text            string
	Options         []string
	DurationSeconds *float64
	Confirmation    *confirm.Confirmation
	CreatedAt       time.Time
}

// DurationLabel formats the duration badge, or "" when there is none.
func (m Message) DurationLabel() string {
	if m.DurationSeconds == nil {
		return ""
	}
	return fmt.Sprintf("%.2fs", *m.DurationSeconds)
}

// Seconds is a helper for building DurationSeconds.
func Seconds(s float64) *float64 {
	return &s
}

// EventType names a log change.
type EventType string

const (
	Appended EventType = "appended"
	Updated  EventType = "updated"
	Removed  EventType = "removed"
	Cleared  EventType = "cleared"
)

// Event describes one change. Message is the zero value for Cleared.
type Event struct {
	Type    EventType
	Message Message
}

// Log is an ordered, concurrency-safe message log. Subscribers are called
// synchronously in mutation order, outside the log lock. A subscriber must
// not mutate the log it is subscribed to.
type Log struct {
	mu       sync.Mutex
	messages []Message
	subs     map[int]func(Event)
	nextSub  int

	deliverMu sync.Mutex
	now       func() time.Time
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{subs: make(map[int]func(Event)), now: time.Now}
}

// Subscribe registers fn for every subsequent event. The returned function
// removes the subscription.
func (l *Log) Subscribe(fn func(Event)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}

// emit must be called with l.mu held. It releases l.mu.
func (l *Log) emit(ev Event) {
	subs := make([]func(Event), 0, len(l.subs))
	for i := 0; i < l.nextSub; i++ {
		if fn, ok := l.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	l.deliverMu.Lock()
	l.mu.Unlock()
	defer l.deliverMu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// Append adds m and returns it with ID and CreatedAt filled in.
func (l *Log) Append(m Message) Message {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	l.mu.Lock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now()
	}
	l.messages = append(l.messages, m)
	l.emit(Event{Type: Appended, Message: m})
	return m
}

// AppendPlaceholder adds a bot loading message and returns its ID.
func (l *Log) AppendPlaceholder(text string) string {
	return l.Append(Message{Sender: Bot, Kind: KindLoading, Text: text}).ID
}

// UpdatePlaceholder changes the text of a loading message if it is still present.
func (l *Log) UpdatePlaceholder(id, text string) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 || l.messages[i].Kind != KindLoading {
		l.mu.Unlock()
		return false
	}
	l.messages[i].Text = text
	l.emit(Event{Type: Updated, Message: l.messages[i]})
	return true
}

// Remove deletes a loading message. Other kinds are never removed.
func (l *Log) Remove(id string) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 || l.messages[i].Kind != KindLoading {
		l.mu.Unlock()
		return false
	}
	m := l.messages[i]
	l.messages = append(l.messages[:i:i], l.messages[i+1:]...)
	l.emit(Event{Type: Removed, Message: m})
	return true
}

// Touch re-announces a message whose attached confirmation changed state.
func (l *Log) Touch(id string) bool {
	l.mu.Lock()
	i := l.indexLocked(id)
	if i < 0 {
		l.mu.Unlock()
		return false
	}
	l.emit(Event{Type: Updated, Message: l.messages[i]})
	return true
}

// Contains reports whether a message with id is in the log.
func (l *Log) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.indexLocked(id) >= 0
}

// Get returns the message with id.
func (l *Log) Get(id string) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.indexLocked(id)
	if i < 0 {
		return Message{}, false
	}
	return l.messages[i], true
}

// Messages returns a snapshot of the log.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Clear removes every message, placeholders included.
func (l *Log) Clear() {
	l.mu.Lock()
	l.messages = nil
	l.emit(Event{Type: Cleared})
}

func (l *Log) indexLocked(id string) int {
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].ID == id {
			return i
		}
	}
	return -1
}
