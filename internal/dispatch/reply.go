package dispatch

import (
	"context"
	"errors"
	"fmt"

	"rungchat/internal/backend"
	"rungchat/internal/confirm"
	"rungchat/internal/logging"
	"rungchat/internal/status"
	"rungchat/internal/transcript"
	"rungchat/internal/transfer"
)

// flow describes how a structured reply is turned into messages.
type flow struct {
	errPrefix        string
	confirmations    bool // the reply may present options
	downloadAlways   bool // offer a download even when confirmation was requested
	originalQuestion string
}

// finish closes the indicator and appends the terminal message for reply.
func (d *Dispatcher) finish(ctx context.Context, ind *status.Indicator, reply backend.Reply, err error, f flow) (Result, error) {
	if !ind.Close() {
		logging.Dispatch("placeholder %s gone, discarding reply", ind.ID())
		d.auditEnd("stale", nil)
		return Result{Stale: true}, nil
	}
	if err != nil {
		d.auditEnd("transport", err)
		return d.appendError(f.errPrefix, err)
	}

	switch r := reply.(type) {
	case *backend.Structured:
		d.auditEnd("structured", nil)
		return d.handleStructured(ctx, r.Body, f)
	case *backend.Failure:
		d.auditEnd("failure", r)
		return d.appendError(f.errPrefix, r)
	default:
		return d.appendError(f.errPrefix, &backend.Failure{Kind: backend.FailureMalformed, Message: fmt.Sprintf("unexpected reply %T", reply)})
	}
}

func (d *Dispatcher) handleStructured(ctx context.Context, body backend.ReplyBody, f flow) (Result, error) {
	var spec *confirm.Spec
	if f.confirmations {
		var err error
		spec, err = confirm.Parse(body.RequiresConfirmation, body.ConfirmationData)
		if err != nil {
			logging.Get(logging.CategoryConfirm).Warn("degrading to plain text: %v", err)
			spec = nil
		}
	}

	kind := transcript.KindText
	if body.IsCode {
		kind = transcript.KindCode
	}
	msg := transcript.Message{
		Sender:          transcript.Bot,
		Kind:            kind,
		Text:            body.Text,
		DurationSeconds: body.Duration,
	}

	var c *confirm.Confirmation
	if spec != nil {
		var cid string
		c = confirm.New(*spec, d.resolverFor(*spec, f.originalQuestion, &cid))
		cid = c.ID
		msg.Kind = transcript.KindOptions
		msg.Options = c.Labels()
		msg.Confirmation = c
		if msg.Text == "" {
			msg.Text = spec.Prompt
		}
	}

	appended := d.log.Append(msg)
	res := Result{Message: &appended, Confirmation: c}
	if c != nil {
		d.mu.Lock()
		d.confirmMsg[c.ID] = appended.ID
		d.mu.Unlock()
		d.board.Present(c)
		logging.Audit().ConfirmPresented(c.ID, string(spec.Kind), len(msg.Options))
	}

	suppressed := spec != nil || (body.RequiresConfirmation && !f.downloadAlways)
	if body.Download == nil {
		return res, nil
	}
	if suppressed {
		logging.Get(logging.CategoryTransfer).Debug("download suppressed pending confirmation")
		return res, nil
	}

	action, err := transfer.Resolve(body.Download.Artifact())
	if err != nil {
		return d.appendErrorWith(res, "Error: ", err)
	}
	path, err := d.saver.Offer(ctx, action)
	if err != nil {
		return d.appendErrorWith(res, "Error: ", err)
	}
	logging.Dispatch("offered %s at %s", action.Filename, path)
	logging.Audit().ArtifactSaved(path, len(action.Data))
	res.SavedPath = path
	return res, nil
}

// resolverFor routes an activated option to the matching flow. The message
// carrying the confirmation is re-announced first so its options render disabled.
func (d *Dispatcher) resolverFor(spec confirm.Spec, originalQuestion string, confirmationID *string) confirm.ResolveFunc {
	announce := func() {
		if id, ok := d.messageFor(*confirmationID); ok {
			d.log.Touch(id)
		}
	}
	switch spec.Kind {
	case confirm.KindAttachment:
		uc := spec.Context
		return func(ctx context.Context, opt confirm.Option) error {
			announce()
			logging.Audit().ConfirmResolved(*confirmationID, opt.Action)
			_, err := d.resolveAttachment(ctx, opt.Action, uc)
			return err
		}
	default:
		return func(ctx context.Context, opt confirm.Option) error {
			announce()
			logging.Audit().ConfirmResolved(*confirmationID, opt.Action)
			_, err := d.ResolveConfirmedIntention(ctx, opt.Action, originalQuestion)
			return err
		}
	}
}

func (d *Dispatcher) appendError(prefix string, err error) (Result, error) {
	return d.appendErrorWith(Result{}, prefix, err)
}

// appendErrorWith appends the error message and keeps what res already holds.
func (d *Dispatcher) appendErrorWith(res Result, prefix string, err error) (Result, error) {
	m := d.log.Append(transcript.Message{Sender: transcript.Bot, Kind: transcript.KindText, Text: prefix + reason(err)})
	logging.Get(logging.CategoryDispatch).Warn("%s%v", prefix, err)
	res.Message = &m
	return res, err
}

// reason is the user-facing text of err.
func reason(err error) string {
	var te *backend.TransportError
	if errors.As(err, &te) {
		return te.Err.Error()
	}
	var f *backend.Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return err.Error()
}
