package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"rungchat/internal/backend"
	"rungchat/internal/logging"
	"rungchat/internal/transcript"
)

// SaveState is the state of a code message's save control.
type SaveState int

const (
	SaveIdle SaveState = iota
	SaveSaving
	SaveDone
	SaveFailed
)

// Label is the text the control shows.
func (s SaveState) Label() string {
	switch s {
	case SaveSaving:
		return "Saving..."
	case SaveDone:
		return "Downloaded!"
	case SaveFailed:
		return "Error"
	default:
		return "Save"
	}
}

// SaveControl is the per-message save button. After an outcome it reverts
// to idle on its own.
type SaveControl struct {
	revert   time.Duration
	onChange func()

	mu    sync.Mutex
	state SaveState
	timer *time.Timer
}

func newSaveControl(revert time.Duration, onChange func()) *SaveControl {
	return &SaveControl{revert: revert, onChange: onChange}
}

// State returns the current state.
func (s *SaveControl) State() SaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// start moves idle -> saving. It fails while a save is running or an
// outcome is still shown.
func (s *SaveControl) start() bool {
	s.mu.Lock()
	if s.state != SaveIdle {
		s.mu.Unlock()
		return false
	}
	s.state = SaveSaving
	s.mu.Unlock()
	s.notify()
	return true
}

// settle records the outcome and schedules the revert to idle.
func (s *SaveControl) settle(err error) {
	s.mu.Lock()
	if err != nil {
		s.state = SaveFailed
	} else {
		s.state = SaveDone
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.revert, func() {
		s.mu.Lock()
		s.state = SaveIdle
		s.timer = nil
		s.mu.Unlock()
		s.notify()
	})
	s.mu.Unlock()
	s.notify()
}

// Stop cancels a pending revert.
func (s *SaveControl) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *SaveControl) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// SaveControlFor returns the save control of a message, creating it on first use.
func (d *Dispatcher) SaveControlFor(messageID string) *SaveControl {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.saves[messageID]
	if !ok {
		sc = newSaveControl(d.opts.SaveRevert, func() { d.log.Touch(messageID) })
		d.saves[messageID] = sc
	}
	return sc
}

// SaveStateOf reports the save state of a message without creating a control.
func (d *Dispatcher) SaveStateOf(messageID string) SaveState {
	d.mu.Lock()
	sc, ok := d.saves[messageID]
	d.mu.Unlock()
	if !ok {
		return SaveIdle
	}
	return sc.State()
}

// ErrSaveInProgress is returned when a save control is not idle.
var ErrSaveInProgress = errors.New("save already in progress")

// ErrNotCode is returned when persisting a message that holds no code.
var ErrNotCode = errors.New("message holds no code")

// PersistMessage persists the code of a transcript message and drives that
// message's save control. A failure is reported through the control and the
// returned error only; no transcript message is appended.
func (d *Dispatcher) PersistMessage(ctx context.Context, messageID string) (Result, error) {
	m, ok := d.log.Get(messageID)
	if !ok || m.Kind != transcript.KindCode {
		return Result{}, ErrNotCode
	}
	sc := d.SaveControlFor(messageID)
	if !sc.start() {
		return Result{}, ErrSaveInProgress
	}
	res, err := d.PersistGeneratedArtifact(ctx, m.Text, "")
	sc.settle(err)
	return res, err
}

// PersistGeneratedArtifact converts code into an artifact on the backend and
// offers it. An empty filename gets a timestamped default.
func (d *Dispatcher) PersistGeneratedArtifact(ctx context.Context, code, filename string) (Result, error) {
	code = StripCDATA(code)
	if filename == "" {
		filename = DefaultRungFilename(d.opts.Clock())
	}

	logging.Dispatch("generate_rung_from_saved_code: %s", filename)
	start := time.Now()
	reply, err := d.backend.GenerateRung(ctx, code, filename)
	if err != nil {
		logging.Audit().RequestEnd(backend.EndpointGenerateRung, "transport", time.Since(start), err)
		return Result{}, err
	}
	switch r := reply.(type) {
	case *backend.Binary:
		logging.Audit().RequestEnd(backend.EndpointGenerateRung, "binary", time.Since(start), nil)
		action := r.SaveAction()
		action.Filename = filename
		if action.MIMEType == "" || action.MIMEType == "application/octet-stream" {
			action.MIMEType = "application/xml"
		}
		path, err := d.saver.Offer(ctx, action)
		if err != nil {
			return Result{}, &backend.Failure{Kind: backend.FailureSave, Message: err.Error()}
		}
		logging.Audit().ArtifactSaved(path, len(action.Data))
		return Result{SavedPath: path}, nil
	case *backend.Failure:
		logging.Audit().RequestEnd(backend.EndpointGenerateRung, "failure", time.Since(start), r)
		return Result{}, r
	default:
		return Result{}, &backend.Failure{Kind: backend.FailureSave, Message: fmt.Sprintf("unexpected reply %T", reply)}
	}
}

// StripCDATA removes CDATA wrappers from displayed code.
func StripCDATA(code string) string {
	return strings.NewReplacer("<![CDATA[", "", "]]>", "").Replace(code)
}

// DefaultRungFilename is the client-side name for a persisted rung.
func DefaultRungFilename(t time.Time) string {
	return "generated_rung_" + t.UTC().Format("20060102150405") + ".L5X"
}

// UploadOutcome is the result of a document upload.
type UploadOutcome struct {
	OK      bool
	Message string
}

// UploadDocument uploads a reference document for retrieval-augmented
// generation. It does not touch the transcript.
func (d *Dispatcher) UploadDocument(ctx context.Context, name string, data []byte) (UploadOutcome, error) {
	logging.Dispatch("upload_std_document: %s (%d bytes)", name, len(data))
	res, err := d.backend.UploadDocument(ctx, name, data)
	if err != nil {
		logging.Audit().DocumentUpload(name, false, reason(err))
		return UploadOutcome{Message: "Network error: " + reason(err)}, err
	}
	if res.OK() {
		logging.Audit().DocumentUpload(name, true, res.Message)
		return UploadOutcome{OK: true, Message: res.Message}, nil
	}
	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("Failed to upload %q.", name)
	}
	logging.Audit().DocumentUpload(name, false, msg)
	return UploadOutcome{Message: msg}, &backend.Failure{Kind: backend.FailureProtocol, Status: res.HTTPStatus, Message: msg}
}
