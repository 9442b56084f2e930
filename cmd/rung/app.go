package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"rungchat/internal/backend"
	"rungchat/internal/config"
	"rungchat/internal/dispatch"
	"rungchat/internal/session"
	"rungchat/internal/store"
	"rungchat/internal/transcript"
	"rungchat/internal/transfer"
	"rungchat/internal/usage"

	"go.uber.org/zap"
)

// app wires one conversation: backend client, dispatcher and optional history.
type app struct {
	cfg      *config.Config
	client   *backend.Client
	disp     *dispatch.Dispatcher
	history  *store.History
	recorder *store.Recorder
	tracker  *usage.Tracker
}

// notifyingSaver reports every written artifact.
type notifyingSaver struct {
	transfer.Saver
	onSaved func(path string)
}

func (s notifyingSaver) Offer(ctx context.Context, action transfer.SaveAction) (string, error) {
	path, err := s.Saver.Offer(ctx, action)
	if err == nil && s.onSaved != nil {
		s.onSaved(path)
	}
	return path, err
}

// newApp builds the conversation. onSaved, if set, is called with the path of
// every artifact written.
func newApp(c *config.Config, onSaved func(path string)) (*app, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL:   c.Backend.BaseURL,
		Timeout:   c.GetBackendTimeout(),
		UserAgent: "rung/" + c.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	var tracker *usage.Tracker
	var b dispatch.Backend = client
	if c.Usage.Enabled {
		if tracker, err = usage.NewTracker(c.Usage.Path); err != nil {
			logger.Warn("usage statistics disabled", zap.String("path", c.Usage.Path), zap.Error(err))
		} else {
			b = usage.NewMeter(client, tracker)
		}
	}

	log := transcript.NewLog()
	saver := notifyingSaver{Saver: transfer.NewDirSaver(c.Downloads.Dir), onSaved: onSaved}
	disp := dispatch.New(b, log, session.New(), saver, dispatch.Options{
		ThinkingDelay: c.GetThinkingDelay(),
		SaveRevert:    c.GetSaveRevert(),
	})

	a := &app{cfg: c, client: client, disp: disp, tracker: tracker}
	if c.History.Enabled {
		h, err := store.Open(c.History.DatabasePath)
		if err != nil {
			// History is optional; the conversation still works without it.
			logger.Warn("history disabled", zap.String("path", c.History.DatabasePath), zap.Error(err))
		} else {
			a.history = h
			a.recorder = store.NewRecorder(h, log)
		}
	}
	return a, nil
}

func (a *app) close() {
	a.disp.Close()
	if a.recorder != nil {
		a.recorder.Stop()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	if a.tracker != nil {
		if err := a.tracker.Close(); err != nil {
			logger.Warn("failed to save usage statistics", zap.Error(err))
		}
	}
}

// printTranscript writes every settled message appended to the log to w.
// Status placeholders are skipped. The returned function stops printing.
func printTranscript(w io.Writer, log *transcript.Log) func() {
	return log.Subscribe(func(ev transcript.Event) {
		if ev.Type != transcript.Appended || ev.Message.Kind == transcript.KindLoading {
			return
		}
		fmt.Fprint(w, formatMessage(ev.Message))
	})
}

// formatMessage renders a message as plain text.
func formatMessage(m transcript.Message) string {
	var b strings.Builder
	if m.Sender == transcript.User {
		b.WriteString("> ")
		b.WriteString(m.Text)
		b.WriteString("\n")
		return b.String()
	}

	switch m.Kind {
	case transcript.KindCode:
		b.WriteString("```\n")
		b.WriteString(m.Text)
		b.WriteString("\n```\n")
	case transcript.KindOptions:
		b.WriteString(m.Text)
		b.WriteString("\n")
		for i, opt := range m.Options {
			fmt.Fprintf(&b, "  %d) %s\n", i+1, opt)
		}
	default:
		b.WriteString(m.Text)
		b.WriteString("\n")
	}
	if label := m.DurationLabel(); label != "" {
		fmt.Fprintf(&b, "(%s)\n", label)
	}
	return b.String()
}
