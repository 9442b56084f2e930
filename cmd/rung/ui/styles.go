// Package ui is the interactive chat interface of rung.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	// Light mode
	LightBackground = lipgloss.Color("#f5f5f2")
	LightForeground = lipgloss.Color("#1d2430")
	LightPrimary    = lipgloss.Color("#1f4e79") // panel blue
	LightAccent     = lipgloss.Color("#2e7d32") // energized green
	LightMuted      = lipgloss.Color("#8a8f98")
	LightBorder     = lipgloss.Color("#d0d4da")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark mode
	DarkBackground = lipgloss.Color("#12161c")
	DarkForeground = lipgloss.Color("#e8eaed")
	DarkPrimary    = lipgloss.Color("#66bb6a")
	DarkAccent     = lipgloss.Color("#4fc3f7")
	DarkMuted      = lipgloss.Color("#6b7380")
	DarkBorder     = lipgloss.Color("#2c3440")
	DarkCard       = lipgloss.Color("#1a2028")

	// Same in both modes
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#43a047")
	Warning     = lipgloss.Color("#ffb300")
)

// Theme holds the current color scheme.
type Theme struct {
	Name       string
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme.
func LightTheme() Theme {
	return Theme{
		Name:       "light",
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
	}
}

// DarkTheme returns the dark mode theme.
func DarkTheme() Theme {
	return Theme{
		Name:       "dark",
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// ThemeByName returns the named theme, dark for anything unknown.
func ThemeByName(name string) Theme {
	if strings.EqualFold(name, "light") {
		return LightTheme()
	}
	return DarkTheme()
}

// Styles holds the styled components of the chat screen.
type Styles struct {
	Theme Theme

	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style
	Badge   lipgloss.Style
	Divider lipgloss.Style
	Input   lipgloss.Style

	Muted   lipgloss.Style
	Error   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style

	UserLabel lipgloss.Style
	UserText  lipgloss.Style
	BotLabel  lipgloss.Style
	BotText   lipgloss.Style
	CodeBlock lipgloss.Style
	Loading   lipgloss.Style
	Duration  lipgloss.Style

	Option         lipgloss.Style
	OptionSelected lipgloss.Style
	OptionDisabled lipgloss.Style
	OptionChosen   lipgloss.Style

	SaveButton lipgloss.Style
	Spinner    lipgloss.Style
}

// NewStyles builds the styles for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),
		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 1),
		Content: lipgloss.NewStyle().
			Padding(0, 1),
		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),
		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),
		Input: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Accent).
			Padding(0, 1),

		Muted:   lipgloss.NewStyle().Foreground(theme.Muted),
		Error:   lipgloss.NewStyle().Foreground(Destructive).Bold(true),
		Success: lipgloss.NewStyle().Foreground(Success).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(Warning),

		UserLabel: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),
		UserText: lipgloss.NewStyle().
			Foreground(theme.Foreground),
		BotLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),
		BotText: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Primary),
		CodeBlock: lipgloss.NewStyle().
			Background(theme.Card).
			Foreground(theme.Foreground).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border),
		Loading: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),
		Duration: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Option: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2),
		OptionSelected: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true).
			PaddingLeft(2),
		OptionDisabled: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Strikethrough(true).
			PaddingLeft(2),
		OptionChosen: lipgloss.NewStyle().
			Foreground(Success).
			PaddingLeft(2),

		SaveButton: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),
		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),
	}
}

// RenderDivider returns a horizontal divider.
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
