// Package notify renders short user-facing notices in the terminal.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/amirbrooks/tasker-voice/internal/voice"
)

// Notifier writes one styled line per notice. It is safe for concurrent use.
type Notifier struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[voice.Severity]lipgloss.Style
	text   lipgloss.Style
	accent lipgloss.Style
}

func New(w io.Writer, theme Theme) *Notifier {
	n := &Notifier{w: w}
	n.SetTheme(theme)
	return n
}

// SetTheme swaps the palette used for subsequent notices.
func (n *Notifier) SetTheme(theme Theme) {
	r := lipgloss.NewRenderer(n.w)
	p := theme.Palette()
	styles := map[voice.Severity]lipgloss.Style{
		voice.SeveritySuccess: r.NewStyle().Foreground(p.Success).Bold(true),
		voice.SeverityInfo:    r.NewStyle().Foreground(p.Info).Bold(true),
		voice.SeverityWarning: r.NewStyle().Foreground(p.Warning).Bold(true),
		voice.SeverityDanger:  r.NewStyle().Foreground(p.Danger).Bold(true),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.styles = styles
	n.text = r.NewStyle().Foreground(p.Muted)
	n.accent = r.NewStyle().Foreground(p.Accent).Bold(true)
}

func icon(sev voice.Severity) string {
	switch sev {
	case voice.SeveritySuccess:
		return "✓"
	case voice.SeverityWarning:
		return "!"
	case voice.SeverityDanger:
		return "✗"
	default:
		return "•"
	}
}

func (n *Notifier) Notify(message string, severity voice.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	style, ok := n.styles[severity]
	if !ok {
		style = n.styles[voice.SeverityInfo]
	}
	fmt.Fprintf(n.w, "%s %s\n", style.Render(icon(severity)), message)
}

// Status prints a muted status line such as the microphone state.
func (n *Notifier) Status(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, n.text.Render(text))
}

// Heading prints a line in the theme's accent color.
func (n *Notifier) Heading(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, n.accent.Render(text))
}
