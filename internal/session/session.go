// Package session holds the mutable state of one conversation: the pending
// attachment, the last user utterance and the in-flight request marker.
package session

import (
	"errors"
	"sync"
	"time"

	"rungchat/internal/logging"

	"golang.org/x/sync/semaphore"
)

// ErrBusy is returned by Begin while another primary request is outstanding.
var ErrBusy = errors.New("a request is already in flight")

// Attachment is a file the user attached to the next message.
type Attachment struct {
	Name string
	Data []byte
}

// PendingRequest identifies the request currently in flight.
type PendingRequest struct {
	Endpoint    string
	IndicatorID string
	StartedAt   time.Time
}

// State is owned by one conversation and passed by reference to the dispatcher.
type State struct {
	inflight *semaphore.Weighted

	mu            sync.Mutex
	attachment    *Attachment
	lastUtterance string
	pending       *PendingRequest
}

// New creates an empty session state.
func New() *State {
	return &State{inflight: semaphore.NewWeighted(1)}
}

// Attach stores a as the pending attachment, replacing any previous one.
func (s *State) Attach(a Attachment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment != nil {
		logging.SessionDebug("replacing pending attachment %s with %s", s.attachment.Name, a.Name)
	}
	s.attachment = &a
}

// HasAttachment reports whether an attachment is pending.
func (s *State) HasAttachment() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attachment != nil
}

// PeekAttachment returns the pending attachment without clearing it.
func (s *State) PeekAttachment() (Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return Attachment{}, false
	}
	return *s.attachment, true
}

// TakeAttachment returns the pending attachment and clears the slot.
func (s *State) TakeAttachment() (Attachment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attachment == nil {
		return Attachment{}, false
	}
	a := *s.attachment
	s.attachment = nil
	return a, true
}

// ClearAttachment empties the slot. It is idempotent.
func (s *State) ClearAttachment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attachment = nil
}

// SetLastUtterance records the most recent user text.
func (s *State) SetLastUtterance(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUtterance = text
}

// LastUtterance returns the most recent user text.
func (s *State) LastUtterance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUtterance
}

// Begin marks a primary request to endpoint as in flight.
func (s *State) Begin(endpoint string) error {
	if !s.inflight.TryAcquire(1) {
		logging.Get(logging.CategorySession).Warn("rejected %s: request already in flight", endpoint)
		return ErrBusy
	}
	s.mu.Lock()
	s.pending = &PendingRequest{Endpoint: endpoint, StartedAt: time.Now()}
	s.mu.Unlock()
	logging.SessionDebug("in flight: %s", endpoint)
	return nil
}

// BindIndicator records which placeholder the in-flight request owns.
func (s *State) BindIndicator(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.IndicatorID = id
	}
}

// Pending returns the in-flight request, if any.
func (s *State) Pending() (PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return PendingRequest{}, false
	}
	return *s.pending, true
}

// End clears the in-flight marker. Calling End without Begin is a no-op.
func (s *State) End() {
	s.mu.Lock()
	had := s.pending != nil
	s.pending = nil
	s.mu.Unlock()
	if had {
		s.inflight.Release(1)
	}
}

// Busy reports whether a primary request is in flight.
func (s *State) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}
