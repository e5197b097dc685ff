package notify

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme names a color palette for terminal output.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeForest Theme = "forest"
	ThemeOcean  Theme = "ocean"
)

// Themes lists the themes in cycling order.
var Themes = []Theme{ThemeLight, ThemeDark, ThemeForest, ThemeOcean}

// ParseTheme returns the named theme and whether the name was valid. Unknown
// names fall back to ThemeLight.
func ParseTheme(name string) (Theme, bool) {
	t := Theme(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Themes {
		if t == known {
			return t, true
		}
	}
	return ThemeLight, false
}

// Next returns the theme after t, wrapping around.
func (t Theme) Next() Theme {
	for i, known := range Themes {
		if known == t {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return ThemeLight
}

// Title is the display name of the theme.
func (t Theme) Title() string {
	s := string(t)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Palette holds the colors a theme uses for each notice severity.
type Palette struct {
	Accent  lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Info    lipgloss.Color
	Warning lipgloss.Color
	Danger  lipgloss.Color
}

func (t Theme) Palette() Palette {
	switch t {
	case ThemeDark:
		return Palette{Accent: "141", Muted: "245", Success: "78", Info: "117", Warning: "221", Danger: "203"}
	case ThemeForest:
		return Palette{Accent: "71", Muted: "108", Success: "34", Info: "72", Warning: "178", Danger: "160"}
	case ThemeOcean:
		return Palette{Accent: "39", Muted: "67", Success: "37", Info: "33", Warning: "179", Danger: "167"}
	default:
		return Palette{Accent: "62", Muted: "8", Success: "2", Info: "12", Warning: "3", Danger: "1"}
	}
}
