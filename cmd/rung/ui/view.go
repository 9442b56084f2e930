package ui

import (
	"fmt"
	"strings"

	"rungchat/internal/confirm"
	"rungchat/internal/transcript"

	"github.com/charmbracelet/lipgloss"
)

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.renderHeader(),
		m.styles.Content.Render(m.viewport.View()),
		m.styles.Input.Render(m.textarea.View()),
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	title := m.styles.Header.Render(" rung ")
	version := m.styles.Badge.Render("v" + m.version)

	var status string
	if m.busy {
		status = m.spinner.View() + " " + m.styles.Muted.Render("waiting for "+m.backendURL)
	} else {
		status = m.styles.Success.Render("Ready") + m.styles.Muted.Render("  "+m.backendURL)
	}
	line := lipgloss.JoinHorizontal(lipgloss.Center, title, " ", version, "  ", status)
	return lipgloss.JoinVertical(lipgloss.Left, line, m.styles.RenderDivider(m.width))
}

func (m Model) renderFooter() string {
	var parts []string
	if a, ok := m.disp.State().PeekAttachment(); ok {
		parts = append(parts, m.styles.Warning.Render("attached: "+a.Name))
	}
	switch {
	case m.notice != "" && m.isError:
		parts = append(parts, m.styles.Error.Render(m.notice))
	case m.notice != "":
		parts = append(parts, m.styles.Muted.Render(m.notice))
	default:
		parts = append(parts, m.styles.Muted.Render("/help for commands  Ctrl+C to exit"))
	}
	return m.styles.Footer.Render(strings.Join(parts, "  "))
}

// renderTranscript renders every message of the log.
func (m Model) renderTranscript(msgs []transcript.Message) string {
	if len(msgs) == 0 {
		return m.styles.Muted.Render("Describe the rung you need, or /attach an Excel plan or L5X file.")
	}
	var live string
	if c, ok := m.disp.Presented(); ok {
		live = c.ID
	}

	blocks := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		blocks = append(blocks, m.renderMessage(msg, live))
	}
	return strings.Join(blocks, "\n\n")
}

func (m Model) renderMessage(msg transcript.Message, liveConfirmation string) string {
	if msg.Sender == transcript.User {
		return m.styles.UserLabel.Render("You") + "\n" + m.styles.UserText.Render(msg.Text)
	}

	var body string
	switch msg.Kind {
	case transcript.KindLoading:
		return m.spinner.View() + " " + m.styles.Loading.Render(msg.Text)

	case transcript.KindCode:
		body = m.renderCode(msg.Text)
		save := m.disp.SaveStateOf(msg.ID)
		label := m.styles.SaveButton.Render("[" + save.Label() + "]")
		body += "\n" + label + m.styles.Muted.Render(" Ctrl+S")

	case transcript.KindOptions:
		body = m.styles.BotText.Render(msg.Text) + "\n" + m.renderOptions(msg, liveConfirmation)

	default:
		body = m.renderText(msg.Text)
	}

	out := m.styles.BotLabel.Render("Assistant") + "\n" + body
	if label := msg.DurationLabel(); label != "" {
		out += "\n" + m.styles.Duration.Render(label)
	}
	return out
}

func (m Model) renderOptions(msg transcript.Message, liveConfirmation string) string {
	c := msg.Confirmation
	chosen := -1
	disabled := true
	if c != nil {
		chosen = c.Chosen()
		disabled = c.Disabled()
	}
	live := c != nil && c.ID == liveConfirmation

	lines := make([]string, len(msg.Options))
	for i, opt := range msg.Options {
		text := fmt.Sprintf("%d. %s", i+1, opt)
		switch {
		case i == chosen:
			lines[i] = m.styles.OptionChosen.Render("✓ " + text)
		case disabled:
			lines[i] = m.styles.OptionDisabled.Render("  " + text)
		case live && i == m.selected:
			lines[i] = m.styles.OptionSelected.Render("› " + text)
		default:
			lines[i] = m.styles.Option.Render("  " + text)
		}
	}
	if c != nil && c.State() == confirm.Superseded {
		lines = append(lines, m.styles.Muted.Render("  (expired)"))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderCode(code string) string {
	if m.renderMarkdown && m.renderer != nil {
		out, err := m.renderer.Render("```xml\n" + code + "\n```")
		if err == nil {
			return strings.TrimRight(out, "\n")
		}
	}
	return m.styles.CodeBlock.Render(code)
}

func (m Model) renderText(text string) string {
	if m.renderMarkdown && m.renderer != nil {
		out, err := m.renderer.Render(text)
		if err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return m.styles.BotText.Render(text)
}
