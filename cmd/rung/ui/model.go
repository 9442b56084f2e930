package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rungchat/internal/backend"
	"rungchat/internal/config"
	"rungchat/internal/dispatch"
	"rungchat/internal/logging"
	"rungchat/internal/session"
	"rungchat/internal/transcript"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	headerHeight  = 2
	footerHeight  = 1
	inputHeight   = 5
	inputPrompt   = "Ask for a rung... (Enter to send, Alt+Enter for newline, /help for commands)"
	helpText      = "/attach <file>  /detach  /upload <file>  /save  /choose <n>  /clear  /quit  |  ↑/↓ pick, Ctrl+S save, Ctrl+L clear"
	maxNoticeRune = 200
)

// Options configures a Model.
type Options struct {
	Dispatcher     *dispatch.Dispatcher
	Theme          string
	RenderMarkdown bool
	BackendURL     string
	Version        string
}

// logChangedMsg reports that the transcript changed.
type logChangedMsg struct{}

// opDoneMsg ends a dispatcher operation started from the UI.
type opDoneMsg struct {
	op  string
	err error
}

// saveDoneMsg ends a save started from the UI. Saves run beside the primary
// request and leave busy alone.
type saveDoneMsg struct {
	err error
}

// SavedMsg reports an artifact written to disk.
type SavedMsg struct {
	Path string
}

// ConfigReloadedMsg carries a config reloaded from disk.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// Model is the chat screen.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc

	disp        *dispatch.Dispatcher
	activity    chan struct{}
	unsubscribe func()

	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	styles   Styles

	renderMarkdown bool
	backendURL     string
	version        string

	width    int
	height   int
	ready    bool
	busy     bool
	selected int
	notice   string
	isError  bool
}

// New creates the chat model and subscribes it to the conversation log.
func New(o Options) Model {
	styles := NewStyles(ThemeByName(o.Theme))

	ta := textarea.New()
	ta.Placeholder = inputPrompt
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 8192
	ta.ShowLineNumbers = false
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	// Coalescing: one pending signal is enough to re-render from a snapshot.
	activity := make(chan struct{}, 1)
	unsubscribe := o.Dispatcher.Log().Subscribe(func(transcript.Event) {
		select {
		case activity <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		ctx:            ctx,
		cancel:         cancel,
		disp:           o.Dispatcher,
		activity:       activity,
		unsubscribe:    unsubscribe,
		textarea:       ta,
		viewport:       viewport.New(80, 20),
		spinner:        sp,
		styles:         styles,
		renderMarkdown: o.RenderMarkdown,
		backendURL:     o.BackendURL,
		version:        o.Version,
		width:          80,
	}
	m.renderer = newRenderer(styles.Theme, 76)
	return m
}

func newRenderer(theme Theme, wrap int) *glamour.TermRenderer {
	if wrap < 20 {
		wrap = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.Name),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		logging.Get(logging.CategoryUI).Warn("markdown renderer unavailable: %v", err)
		return nil
	}
	return r
}

// Close cancels running operations and stops listening to the log.
func (m Model) Close() {
	m.cancel()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m Model) waitForActivity() tea.Cmd {
	ch := m.activity
	return func() tea.Msg {
		<-ch
		return logChangedMsg{}
	}
}

// Init starts the cursor blink, the spinner and the log listener.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.waitForActivity(),
	)
}

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case logChangedMsg:
		m.refresh()
		return m, m.waitForActivity()

	case opDoneMsg:
		m.busy = false
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			logging.Get(logging.CategoryUI).Warn("%s failed: %v", msg.op, msg.err)
			if !shownInTranscript(msg.err) {
				m.setNotice(msg.err.Error(), true)
			}
		}
		m.selected = 0
		m.refresh()
		return m, nil

	case saveDoneMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			logging.Get(logging.CategoryUI).Warn("save failed: %v", msg.err)
			m.setNotice("Save failed: "+msg.err.Error(), true)
		}
		m.refresh()
		return m, nil

	case uploadDoneMsg:
		m.setNotice(msg.message, !msg.ok)
		return m, nil

	case SavedMsg:
		m.setNotice("Saved "+msg.Path, false)
		return m, nil

	case ConfigReloadedMsg:
		m.applyConfig(msg.Config)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.hasPlaceholder() {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.Close()
		return m, tea.Quit

	case "esc":
		m.notice = ""
		return m, nil

	case "ctrl+l":
		m.disp.Clear()
		m.setNotice("Conversation cleared", false)
		return m, nil

	case "ctrl+s":
		return m.saveLatestCode()

	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case "up", "down":
		if c, ok := m.disp.Presented(); ok && strings.TrimSpace(m.textarea.Value()) == "" {
			n := len(c.Options)
			if msg.String() == "up" {
				m.selected = (m.selected - 1 + n) % n
			} else {
				m.selected = (m.selected + 1) % n
			}
			m.refresh()
			return m, nil
		}

	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// submit handles Enter: a slash command, a choice among presented options
// or a chat message.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.textarea.Value())
	if strings.HasPrefix(text, "/") {
		m.textarea.Reset()
		return m.runCommand(text)
	}

	if text == "" {
		if c, ok := m.disp.Presented(); ok {
			return m.choose(c.ID, m.selected)
		}
		if !m.disp.State().HasAttachment() {
			return m, nil
		}
	}

	if m.busy {
		m.setNotice("Waiting for the current reply...", true)
		return m, nil
	}
	m.textarea.Reset()
	m.notice = ""
	return m.start("send", func(ctx context.Context) error {
		_, err := m.disp.SendChat(ctx, text)
		return err
	})
}

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch fields[0] {
	case "/quit", "/exit":
		m.Close()
		return m, tea.Quit

	case "/help":
		m.setNotice(helpText, false)

	case "/clear":
		m.disp.Clear()
		m.setNotice("Conversation cleared", false)

	case "/attach":
		if arg == "" {
			m.setNotice("Usage: /attach <file>", true)
			return m, nil
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			m.setNotice(err.Error(), true)
			return m, nil
		}
		name := filepath.Base(arg)
		m.disp.State().Attach(session.Attachment{Name: name, Data: data})
		m.setNotice(fmt.Sprintf("Attached %s. Press Enter to send it with an optional message.", name), false)

	case "/detach":
		m.disp.State().ClearAttachment()
		m.setNotice("Attachment removed", false)

	case "/upload":
		if arg == "" {
			m.setNotice("Usage: /upload <file>", true)
			return m, nil
		}
		return m.upload(arg)

	case "/save":
		return m.saveLatestCode()

	case "/choose":
		c, ok := m.disp.Presented()
		if !ok {
			m.setNotice("No options to choose from", true)
			return m, nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(c.Options) {
			m.setNotice(fmt.Sprintf("Choose a number from 1 to %d", len(c.Options)), true)
			return m, nil
		}
		return m.choose(c.ID, n-1)

	default:
		m.setNotice("Unknown command "+fields[0]+". Type /help.", true)
	}
	return m, nil
}

func (m Model) choose(confirmationID string, index int) (tea.Model, tea.Cmd) {
	if m.busy {
		m.setNotice("Waiting for the current reply...", true)
		return m, nil
	}
	return m.start("choose", func(ctx context.Context) error {
		return m.disp.Choose(ctx, confirmationID, index)
	})
}

func (m Model) saveLatestCode() (tea.Model, tea.Cmd) {
	id, ok := m.latestCode()
	if !ok {
		m.setNotice("No code to save", true)
		return m, nil
	}
	// Saving runs beside a chat request; the save control is its own indicator.
	disp := m.disp
	ctx := m.ctx
	return m, func() tea.Msg {
		_, err := disp.PersistMessage(ctx, id)
		return saveDoneMsg{err: err}
	}
}

type uploadDoneMsg struct {
	ok      bool
	message string
}

func (m Model) upload(path string) (tea.Model, tea.Cmd) {
	data, err := os.ReadFile(path)
	if err != nil {
		m.setNotice(err.Error(), true)
		return m, nil
	}
	name := filepath.Base(path)
	m.setNotice(fmt.Sprintf("Uploading %q...", name), false)
	disp := m.disp
	ctx := m.ctx
	return m, func() tea.Msg {
		out, _ := disp.UploadDocument(ctx, name, data)
		return uploadDoneMsg{ok: out.OK, message: out.Message}
	}
}

// start runs fn off the UI goroutine and marks the model busy until it ends.
func (m Model) start(op string, fn func(ctx context.Context) error) (tea.Model, tea.Cmd) {
	m.busy = true
	ctx := m.ctx
	return m, func() tea.Msg {
		return opDoneMsg{op: op, err: fn(ctx)}
	}
}

// shownInTranscript reports whether a flow already appended err as a message.
func shownInTranscript(err error) bool {
	var f *backend.Failure
	var te *backend.TransportError
	return errors.As(err, &f) || errors.As(err, &te)
}

func (m *Model) setNotice(text string, isError bool) {
	if r := []rune(text); len(r) > maxNoticeRune {
		text = string(r[:maxNoticeRune]) + "..."
	}
	m.notice = text
	m.isError = isError
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	vpHeight := height - headerHeight - footerHeight - inputHeight
	if vpHeight < 1 {
		vpHeight = 1
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.textarea.SetWidth(width - 4)
	m.renderer = newRenderer(m.styles.Theme, width-6)
	m.ready = true
	m.refresh()
}

func (m *Model) applyConfig(c *config.Config) {
	if c == nil {
		return
	}
	m.styles = NewStyles(ThemeByName(c.UX.Theme))
	m.spinner.Style = m.styles.Spinner
	m.renderMarkdown = c.UX.RenderMarkdown
	m.renderer = newRenderer(m.styles.Theme, m.width-6)
	m.setNotice("Configuration reloaded", false)
	m.refresh()
}

// refresh re-renders the transcript into the viewport.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderTranscript(m.disp.Log().Messages()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) hasPlaceholder() bool {
	for _, msg := range m.disp.Log().Messages() {
		if msg.Kind == transcript.KindLoading {
			return true
		}
	}
	return false
}

func (m Model) latestCode() (string, bool) {
	msgs := m.disp.Log().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Kind == transcript.KindCode {
			return msgs[i].ID, true
		}
	}
	return "", false
}
