package usage

import (
	"context"
	"encoding/json"
	"time"

	"rungchat/internal/backend"
)

// Backend is the set of backend calls a Meter can wrap.
type Backend interface {
	Chat(ctx context.Context, message string) (backend.Reply, error)
	Attach(ctx context.Context, message, fileName string, data []byte) (backend.Reply, error)
	ConfirmIntention(ctx context.Context, intention, originalQuestion string) (backend.Reply, error)
	ProcessUDTAttachment(ctx context.Context, action string, udtDefinition json.RawMessage, originalFilename string) (backend.Reply, error)
	GenerateRung(ctx context.Context, code, filename string) (backend.Reply, error)
	UploadDocument(ctx context.Context, fileName string, data []byte) (backend.UploadResult, error)
}

// Meter forwards calls to a Backend and records each one in a Tracker.
type Meter struct {
	next    Backend
	tracker *Tracker
}

// NewMeter wraps next.
func NewMeter(next Backend, tracker *Tracker) *Meter {
	return &Meter{next: next, tracker: tracker}
}

func (m *Meter) Chat(ctx context.Context, message string) (backend.Reply, error) {
	start := time.Now()
	r, err := m.next.Chat(ctx, message)
	m.record(backend.EndpointChat, r, err, start)
	return r, err
}

func (m *Meter) Attach(ctx context.Context, message, fileName string, data []byte) (backend.Reply, error) {
	start := time.Now()
	r, err := m.next.Attach(ctx, message, fileName, data)
	m.record(backend.EndpointAttach, r, err, start)
	return r, err
}

func (m *Meter) ConfirmIntention(ctx context.Context, intention, originalQuestion string) (backend.Reply, error) {
	start := time.Now()
	r, err := m.next.ConfirmIntention(ctx, intention, originalQuestion)
	m.record(backend.EndpointConfirmIntention, r, err, start)
	return r, err
}

func (m *Meter) ProcessUDTAttachment(ctx context.Context, action string, udtDefinition json.RawMessage, originalFilename string) (backend.Reply, error) {
	start := time.Now()
	r, err := m.next.ProcessUDTAttachment(ctx, action, udtDefinition, originalFilename)
	m.record(backend.EndpointProcessUDT, r, err, start)
	return r, err
}

func (m *Meter) GenerateRung(ctx context.Context, code, filename string) (backend.Reply, error) {
	start := time.Now()
	r, err := m.next.GenerateRung(ctx, code, filename)
	m.record(backend.EndpointGenerateRung, r, err, start)
	return r, err
}

func (m *Meter) UploadDocument(ctx context.Context, fileName string, data []byte) (backend.UploadResult, error) {
	start := time.Now()
	res, err := m.next.UploadDocument(ctx, fileName, data)
	switch {
	case err != nil:
		m.tracker.Track(backend.EndpointUploadDocument, "transport", true, 0, time.Since(start))
	case res.OK():
		m.tracker.Track(backend.EndpointUploadDocument, "structured", false, 0, time.Since(start))
	default:
		m.tracker.Track(backend.EndpointUploadDocument, "failure", true, 0, time.Since(start))
	}
	return res, err
}

func (m *Meter) record(endpoint string, r backend.Reply, err error, start time.Time) {
	wall := time.Since(start)
	if err != nil {
		m.tracker.Track(endpoint, "transport", true, 0, wall)
		return
	}
	switch v := r.(type) {
	case *backend.Structured:
		var server float64
		if v.Body.Duration != nil {
			server = *v.Body.Duration
		}
		m.tracker.Track(endpoint, "structured", false, server, wall)
	case *backend.Binary:
		m.tracker.Track(endpoint, "binary", false, 0, wall)
	default:
		m.tracker.Track(endpoint, "failure", true, 0, wall)
	}
}
