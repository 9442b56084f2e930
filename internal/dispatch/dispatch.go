// Package dispatch drives one conversation: it turns user actions into
// backend requests and their replies into transcript messages, confirmations
// and offered artifacts.
//
// Every operation blocks until its terminal message is in the log. Each one
// owns a single status indicator, removed before that terminal message is
// appended. If the indicator is already gone when the reply arrives (the log
// was cleared), the reply is stale and is dropped.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"rungchat/internal/backend"
	"rungchat/internal/confirm"
	"rungchat/internal/logging"
	"rungchat/internal/session"
	"rungchat/internal/status"
	"rungchat/internal/transcript"
	"rungchat/internal/transfer"
)

var (
	// ErrEmptyMessage is returned by SendChat with no text and no attachment.
	ErrEmptyMessage = errors.New("message is empty and no file is attached")
	// ErrUnknownConfirmation is returned by Choose for an ID not on the board.
	ErrUnknownConfirmation = errors.New("unknown confirmation")
)

// Backend is the subset of the backend client the dispatcher uses.
type Backend interface {
	Chat(ctx context.Context, message string) (backend.Reply, error)
	Attach(ctx context.Context, message, fileName string, data []byte) (backend.Reply, error)
	ConfirmIntention(ctx context.Context, intention, originalQuestion string) (backend.Reply, error)
	ProcessUDTAttachment(ctx context.Context, action string, udtDefinition json.RawMessage, originalFilename string) (backend.Reply, error)
	GenerateRung(ctx context.Context, code, filename string) (backend.Reply, error)
	UploadDocument(ctx context.Context, fileName string, data []byte) (backend.UploadResult, error)
}

// Options tunes timing.
type Options struct {
	ThinkingDelay time.Duration
	SaveRevert    time.Duration
	Clock         func() time.Time
}

// DefaultOptions returns the standard timing.
func DefaultOptions() Options {
	return Options{
		ThinkingDelay: status.DefaultDelay,
		SaveRevert:    3 * time.Second,
		Clock:         time.Now,
	}
}

// Result describes how an operation ended.
type Result struct {
	// Message is the terminal message appended, nil when the reply was stale.
	Message *transcript.Message
	// Confirmation is set when the reply presented options.
	Confirmation *confirm.Confirmation
	// SavedPath is where an offered artifact was written.
	SavedPath string
	// Stale is true when the reply was discarded.
	Stale bool
}

// Dispatcher runs the request flows of one conversation.
type Dispatcher struct {
	backend Backend
	log     *transcript.Log
	state   *session.State
	board   *confirm.Board
	saver   transfer.Saver
	opts    Options

	mu         sync.Mutex
	confirmMsg map[string]string // confirmation ID -> message ID
	saves      map[string]*SaveControl
}

// New creates a dispatcher.
func New(b Backend, log *transcript.Log, state *session.State, saver transfer.Saver, opts Options) *Dispatcher {
	def := DefaultOptions()
	if opts.ThinkingDelay <= 0 {
		opts.ThinkingDelay = def.ThinkingDelay
	}
	if opts.SaveRevert <= 0 {
		opts.SaveRevert = def.SaveRevert
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	return &Dispatcher{
		backend:    b,
		log:        log,
		state:      state,
		board:      confirm.NewBoard(),
		saver:      saver,
		opts:       opts,
		confirmMsg: make(map[string]string),
		saves:      make(map[string]*SaveControl),
	}
}

// Log returns the conversation's message log.
func (d *Dispatcher) Log() *transcript.Log {
	return d.log
}

// State returns the conversation's session state.
func (d *Dispatcher) State() *session.State {
	return d.state
}

// SendChat sends free text. A pending attachment routes the call to the
// attach flow.
func (d *Dispatcher) SendChat(ctx context.Context, text string) (Result, error) {
	text = strings.TrimSpace(text)
	if d.state.HasAttachment() {
		return d.runAttach(ctx, text)
	}
	if text == "" {
		return Result{}, ErrEmptyMessage
	}

	if err := d.state.Begin(backend.EndpointChat); err != nil {
		return Result{}, err
	}
	defer d.state.End()

	d.supersedePresented()
	d.state.SetLastUtterance(text)
	d.log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: text})

	ind := d.openIndicator(status.Analyzing, status.Thinking)
	logging.Dispatch("chat: sending %d chars", len(text))
	reply, err := d.backend.Chat(ctx, text)
	return d.finish(ctx, ind, reply, err, flow{errPrefix: "Error: ", confirmations: true, originalQuestion: text})
}

// SendWithAttachment stores a as the pending attachment and runs the attach flow.
func (d *Dispatcher) SendWithAttachment(ctx context.Context, text string, a session.Attachment) (Result, error) {
	d.state.Attach(a)
	return d.runAttach(ctx, strings.TrimSpace(text))
}

func (d *Dispatcher) runAttach(ctx context.Context, text string) (Result, error) {
	if err := d.state.Begin(backend.EndpointAttach); err != nil {
		return Result{}, err
	}
	defer d.state.End()

	a, ok := d.state.TakeAttachment()
	if !ok {
		return Result{}, ErrEmptyMessage
	}

	d.supersedePresented()
	d.state.SetLastUtterance(text)
	d.log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: attachUserText(text, a.Name)})

	ind := d.openIndicator(status.Analyzing, status.Thinking)
	start := d.opts.Clock()
	logging.Dispatch("attach: sending %s (%d bytes)", a.Name, len(a.Data))
	reply, err := d.backend.Attach(ctx, text, a.Name, a.Data)

	bin, isBinary := reply.(*backend.Binary)
	if err != nil || !isBinary {
		return d.finish(ctx, ind, reply, err, flow{errPrefix: "Error: ", confirmations: true, originalQuestion: text})
	}

	if !ind.Close() {
		logging.Dispatch("attach: placeholder gone, discarding binary reply")
		d.auditEnd("stale", nil)
		return Result{Stale: true}, nil
	}
	d.auditEnd("binary", nil)
	action := bin.SaveAction()
	path, err := d.saver.Offer(ctx, action)
	if err != nil {
		return d.appendError("Error: ", err)
	}
	logging.Audit().ArtifactSaved(path, len(action.Data))
	elapsed := d.opts.Clock().Sub(start).Seconds()
	m := d.log.Append(transcript.Message{
		Sender:          transcript.Bot,
		Kind:            transcript.KindText,
		Text:            `For the uploaded excel, "` + action.Filename + `" has been generated. Download will begin shortly...`,
		DurationSeconds: transcript.Seconds(elapsed),
	})
	logging.Dispatch("attach: artifact %s offered at %s", action.Filename, path)
	return Result{Message: &m, SavedPath: path}, nil
}

func attachUserText(text, name string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(name), ".xlsx"):
		return "Attached Excel file: " + name + ". Processing..."
	case text != "":
		return text
	default:
		return "Attached: " + name
	}
}

// ResolveConfirmedIntention sends the intention the user picked.
func (d *Dispatcher) ResolveConfirmedIntention(ctx context.Context, intention, originalQuestion string) (Result, error) {
	if err := d.state.Begin(backend.EndpointConfirmIntention); err != nil {
		return Result{}, err
	}
	defer d.state.End()

	d.log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "Yes, " + intention})

	ind := d.openIndicator(status.Thinking, "")
	logging.Dispatch("confirm_intention: %q", intention)
	reply, err := d.backend.ConfirmIntention(ctx, intention, originalQuestion)
	return d.finish(ctx, ind, reply, err, flow{errPrefix: "Error: ", confirmations: true, originalQuestion: originalQuestion})
}

// ResolveAttachmentAction sends the handling the user picked for an attached
// UDT. udtDefinition is forwarded verbatim.
func (d *Dispatcher) ResolveAttachmentAction(ctx context.Context, action string, udtDefinition json.RawMessage, originalFilename string) (Result, error) {
	return d.resolveAttachment(ctx, action, confirm.Context{
		UDTName:          udtNameOf(udtDefinition),
		UDTDefinition:    udtDefinition,
		OriginalFilename: originalFilename,
	})
}

func (d *Dispatcher) resolveAttachment(ctx context.Context, action string, uc confirm.Context) (Result, error) {
	if err := d.state.Begin(backend.EndpointProcessUDT); err != nil {
		return Result{}, err
	}
	defer d.state.End()

	d.log.Append(transcript.Message{Sender: transcript.User, Kind: transcript.KindText, Text: "User has chosen: " + capitalize(action)})

	ind := d.openIndicator("Processing '"+action+"' for UDT '"+uc.UDTName+"'...", "")
	logging.Dispatch("process_udt_attachment: %s for %s", action, uc.UDTName)
	reply, err := d.backend.ProcessUDTAttachment(ctx, action, uc.UDTDefinition, uc.OriginalFilename)
	return d.finish(ctx, ind, reply, err, flow{errPrefix: "Error processing UDT attachment action: ", downloadAlways: true})
}

func udtNameOf(def json.RawMessage) string {
	var v struct {
		Name string `json:"name"`
	}
	if json.Unmarshal(def, &v) == nil && v.Name != "" {
		return v.Name
	}
	return "UnknownUDT"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Choose activates option index of a presented confirmation. Only the first
// activation of a confirmation reaches the backend.
func (d *Dispatcher) Choose(ctx context.Context, confirmationID string, index int) error {
	c, ok := d.board.Get(confirmationID)
	if !ok {
		return ErrUnknownConfirmation
	}
	if d.state.Busy() {
		return session.ErrBusy
	}
	return c.Activate(ctx, index)
}

// Confirmation returns a confirmation presented in this conversation.
func (d *Dispatcher) Confirmation(id string) (*confirm.Confirmation, bool) {
	return d.board.Get(id)
}

// Presented returns the most recent confirmation still awaiting a choice.
func (d *Dispatcher) Presented() (*confirm.Confirmation, bool) {
	msgs := d.log.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if c := msgs[i].Confirmation; c != nil && c.State() == confirm.Presented {
			return c, true
		}
	}
	return nil, false
}

// Clear empties the transcript. Requests in flight find their placeholder
// gone and drop their reply.
func (d *Dispatcher) Clear() {
	d.board.SupersedeAll()
	d.board.Reset()

	d.mu.Lock()
	d.confirmMsg = make(map[string]string)
	saves := d.saves
	d.saves = make(map[string]*SaveControl)
	d.mu.Unlock()
	for _, sc := range saves {
		sc.Stop()
	}

	n := d.log.Len()
	d.log.Clear()
	logging.Dispatch("transcript cleared")
	logging.Audit().TranscriptClear(n)
}

// Close stops pending save-control timers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	saves := d.saves
	d.saves = make(map[string]*SaveControl)
	d.mu.Unlock()
	for _, sc := range saves {
		sc.Stop()
	}
}

func (d *Dispatcher) openIndicator(phase1, phase2 string) *status.Indicator {
	ind := status.Open(d.log, phase1, phase2, d.opts.ThinkingDelay)
	d.state.BindIndicator(ind.ID())
	if p, ok := d.state.Pending(); ok {
		logging.Audit().RequestStart(p.Endpoint)
	}
	return ind
}

// auditEnd records how the in-flight request ended.
func (d *Dispatcher) auditEnd(outcome string, err error) {
	if p, ok := d.state.Pending(); ok {
		logging.Audit().RequestEnd(p.Endpoint, outcome, time.Since(p.StartedAt), err)
	}
}

// supersedePresented expires confirmations the user moved past.
func (d *Dispatcher) supersedePresented() {
	for _, c := range d.board.SupersedeAll() {
		logging.Audit().ConfirmSuperseded(c.ID)
		if id, ok := d.messageFor(c.ID); ok {
			d.log.Touch(id)
		}
	}
}

func (d *Dispatcher) messageFor(confirmationID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.confirmMsg[confirmationID]
	return id, ok
}
