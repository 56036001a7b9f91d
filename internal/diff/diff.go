// Package diff renders the change a batch made to a document.
package diff

import (
	"strings"

	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/lipgloss"
)

// Unified returns a unified diff of before and after labeled with path, or
// an empty string when nothing changed.
func Unified(path, before, after string) string {
	if before == after {
		return ""
	}
	return udiff.Unified("a/"+path, "b/"+path, ensureNewline(before), ensureNewline(after))
}

// Stats counts the added and removed lines of before and after.
func Stats(before, after string) (additions, removals int) {
	for _, line := range strings.Split(Unified("x", before, after), "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			additions++
		case strings.HasPrefix(line, "-"):
			removals++
		}
	}
	return additions, removals
}

var (
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1A7F37", Dark: "#3FB950"})
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"})
	hunkStyle    = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#0969DA", Dark: "#58A6FF"})
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// Colorize styles a unified diff for the terminal.
func Colorize(unified string) string {
	if unified == "" {
		return ""
	}
	lines := strings.Split(strings.TrimSuffix(unified, "\n"), "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			lines[i] = headerStyle.Render(line)
		case strings.HasPrefix(line, "@@"):
			lines[i] = hunkStyle.Render(line)
		case strings.HasPrefix(line, "+"):
			lines[i] = addedStyle.Render(line)
		case strings.HasPrefix(line, "-"):
			lines[i] = removedStyle.Render(line)
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
