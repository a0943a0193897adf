package play

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/mattn/go-runewidth"
)

var (
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	playingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))  // Green
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // Bright red
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")) // Gray
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("250"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	searchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	promptStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	confirmStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	menuStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
)

var noticeStyles = map[mixer.Severity]lipgloss.Style{
	mixer.SeveritySuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
	mixer.SeverityWarning: lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
	mixer.SeverityDanger:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	mixer.SeverityInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color("111")),
}

const (
	defaultWidth = 90
	nameWidth    = 36
)

func (m model) View() string {
	if m.helpView {
		return renderHelp()
	}

	var b strings.Builder
	b.WriteString("\n  ")
	b.WriteString(headerStyle.Render("mixdeck"))
	b.WriteString(helpStyle.Render(fmt.Sprintf("  %d tracks • %d playing • %d paused • %d looping • master %d%%",
		m.stats.All, m.stats.Playing, m.stats.Paused, m.stats.Looping, m.state.MasterVolume)))
	b.WriteString("\n  ")
	switch {
	case m.filterFocused:
		b.WriteString(searchStyle.Render("Filter: [" + m.filter + "_]"))
	case m.filter != "":
		b.WriteString(searchStyle.Render("Filter: [" + m.filter + "]"))
	default:
		b.WriteString(helpStyle.Render("/ to filter"))
	}
	b.WriteString("\n\n")

	width := m.width
	if width < 10 {
		width = defaultWidth
	}

	if len(m.state.Tracks) == 0 {
		b.WriteString("  No tracks loaded. Pass files or directories to mixdeck play.\n")
	} else if m.filter != "" {
		if len(m.visible) == 0 {
			b.WriteString("  No matches for \"" + m.filter + "\"\n")
		}
		for i, t := range m.visible {
			b.WriteString(m.renderTrack(t, i == m.cursor))
		}
	} else {
		m.renderGrouped(&b)
	}

	b.WriteString("\n  ")
	b.WriteString(headerStyle.Render(strings.Repeat("─", min(width-4, defaultWidth))))
	b.WriteString("\n  ")
	switch m.prompt {
	case promptGroupName:
		b.WriteString(promptStyle.Render("New group name: " + m.input + "_"))
	case promptRemove:
		if t, ok := m.selected(); ok {
			b.WriteString(confirmStyle.Render(fmt.Sprintf("Remove %s? [y/n]", t.File.Name)))
		}
	case promptReset:
		b.WriteString(confirmStyle.Render("Delete all groups and reset every track? [y/n]"))
	default:
		if m.notice != nil {
			style, ok := noticeStyles[m.notice.Severity]
			if !ok {
				style = helpStyle
			}
			b.WriteString(style.Render(m.notice.Message))
		}
	}
	b.WriteString("\n  ")
	b.WriteString(helpStyle.Render("h help • space play/pause all • enter play/pause • ↑/↓ select • q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m model) renderGrouped(b *strings.Builder) {
	selectedID := -1
	if t, ok := m.selected(); ok {
		selectedID = t.ID
	}
	for _, g := range m.state.Groups {
		b.WriteString(renderGroupHeader(g))
		if g.Collapsed {
			continue
		}
		for _, t := range m.members(&g.ID) {
			b.WriteString(m.renderTrack(t, t.ID == selectedID))
		}
	}
	ungrouped := m.members(nil)
	b.WriteString("  " + headerStyle.Render(fmt.Sprintf("Ungrouped (%d)", len(ungrouped))) + "\n")
	for _, t := range ungrouped {
		b.WriteString(m.renderTrack(t, t.ID == selectedID))
	}
}

func renderGroupHeader(g mixer.GroupState) string {
	style := headerStyle
	if hex, err := mixutil.ColorHex(g.Color); err == nil {
		style = style.Foreground(lipgloss.Color(hex))
	}
	marker := "▾"
	if g.Collapsed {
		marker = "▸"
	}
	line := fmt.Sprintf("%s %s (%d)", marker, g.Name, g.Count)
	if g.Mode != mixer.PlaylistNone {
		line += fmt.Sprintf(" [%s playlist]", g.Mode)
	}
	if g.AllMuted {
		line += " [muted]"
	}
	return "  " + style.Render(line) + "\n"
}

func (m model) renderTrack(t mixer.TrackState, selected bool) string {
	status := "■"
	switch {
	case t.Failed:
		status = "✗"
	case t.Playing:
		status = "▶"
	case t.Position > 0 && t.Position < t.Duration:
		status = "⏸"
	}

	var flags []string
	if t.Muted {
		flags = append(flags, "muted")
	}
	if t.Loop {
		flags = append(flags, "loop")
	}
	if t.Boosted {
		flags = append(flags, "boost")
	}

	name := runewidth.FillRight(runewidth.Truncate(t.File.Name, nameWidth, "…"), nameWidth)
	row := fmt.Sprintf("  %s %s  %5s / %-5s  %3d%%  %s", status, name,
		mixutil.FormatDuration(t.Position), mixutil.FormatDuration(t.Duration), t.Volume, strings.Join(flags, " "))

	switch {
	case selected:
		return selectedStyle.Render(row) + "\n"
	case t.Failed:
		return failedStyle.Render(row) + "\n"
	case t.Muted:
		return mutedStyle.Render(row) + "\n"
	case t.Playing:
		return playingStyle.Render(row) + "\n"
	}
	return row + "\n"
}

func renderHelp() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(menuStyle.Render("  mixdeck - Keyboard Shortcuts"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("  Transport"))
	b.WriteString("\n")
	b.WriteString("    space     Play or pause everything\n")
	b.WriteString("    enter     Play/pause selected track\n")
	b.WriteString("    s         Stop selected track\n")
	b.WriteString("    l         Toggle loop\n")
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("  Volume"))
	b.WriteString("\n")
	b.WriteString("    +/-       Volume up/down\n")
	b.WriteString("    0         Reset volume\n")
	b.WriteString("    m         Mute selected track\n")
	b.WriteString("    M         Mute selected track's group\n")
	b.WriteString("    </>       Master volume down/up\n")
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("  Groups"))
	b.WriteString("\n")
	b.WriteString("    n         New group\n")
	b.WriteString("    g         Move track to the next group\n")
	b.WriteString("    c         Continuous playlist of the track's group\n")
	b.WriteString("    L         Loop playlist of the track's group\n")
	b.WriteString("    z         Collapse/expand the track's group\n")
	b.WriteString("\n")

	b.WriteString(headerStyle.Render("  Session"))
	b.WriteString("\n")
	b.WriteString("    /         Filter by name\n")
	b.WriteString("    x         Remove selected track\n")
	b.WriteString("    y         Copy backup to clipboard\n")
	b.WriteString("    e         Export backup to a file\n")
	b.WriteString("    R         Reset all groups and settings\n")
	b.WriteString("    q/esc     Quit\n")
	b.WriteString("\n")

	b.WriteString(helpStyle.Render("  Press any key to close"))
	b.WriteString("\n")
	return b.String()
}
