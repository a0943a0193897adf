package play

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/backup"
)

const (
	volumeStep   = 5
	tickInterval = 500 * time.Millisecond
)

type tickMsg time.Time

type errMsg struct{ err error }

// noticeMsg shows a notice that did not come from the session.
type noticeMsg mixer.Notice

type promptMode int

const (
	promptNone promptMode = iota
	promptGroupName
	promptRemove
	promptReset
)

type model struct {
	ctx     context.Context
	session *mixer.Session
	changes *bridge

	state   mixer.State
	stats   mixer.Stats
	visible []mixer.TrackState
	cursor  int
	width   int
	height  int

	notice   *mixer.Notice
	helpView bool

	filter        string
	filterFocused bool

	prompt promptMode
	input  string

	now            func() time.Time
	writeClipboard func(string) error
	writeFile      func(name string, data []byte) error
}

func newModel(ctx context.Context, session *mixer.Session, changes *bridge) model {
	m := model{
		ctx:            ctx,
		session:        session,
		changes:        changes,
		now:            time.Now,
		writeClipboard: clipboard.WriteAll,
		writeFile: func(name string, data []byte) error {
			return os.WriteFile(name, data, 0644)
		},
	}
	m = m.takeNotices().refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.changes.wait(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refresh re-reads the session and rebuilds the selectable rows: grouped
// members of expanded groups in group order, then ungrouped tracks. An
// active filter shows a flat list instead.
func (m model) refresh() model {
	m.state = m.session.Snapshot()
	m.stats = m.session.Stats()

	if m.filter != "" {
		m.visible = m.session.Filter(m.filter, mixer.StatusAny)
	} else {
		var visible []mixer.TrackState
		for _, g := range m.state.Groups {
			if g.Collapsed {
				continue
			}
			visible = append(visible, m.members(&g.ID)...)
		}
		m.visible = append(visible, m.members(nil)...)
	}

	if m.cursor >= len(m.visible) {
		m.cursor = len(m.visible) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

func (m model) members(groupID *int) []mixer.TrackState {
	var out []mixer.TrackState
	for _, t := range m.state.Tracks {
		switch {
		case groupID == nil && t.GroupID == nil:
			out = append(out, t)
		case groupID != nil && t.GroupID != nil && *t.GroupID == *groupID:
			out = append(out, t)
		}
	}
	return out
}

func (m model) takeNotices() model {
	if m.changes == nil {
		return m
	}
	if ns := m.changes.drain(); len(ns) > 0 {
		last := ns[len(ns)-1]
		m.notice = &last
	}
	return m
}

func (m model) selected() (mixer.TrackState, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return mixer.TrackState{}, false
	}
	return m.visible[m.cursor], true
}

func (m model) groupByID(id int) (mixer.GroupState, bool) {
	for _, g := range m.state.Groups {
		if g.ID == id {
			return g, true
		}
	}
	return mixer.GroupState{}, false
}

// act runs f off the UI loop. Output resumes can block, and every result
// comes back through the bridge anyway.
func act(f func() error) tea.Cmd {
	return func() tea.Msg {
		if err := f(); err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func notice(sev mixer.Severity, format string, args ...any) tea.Cmd {
	return func() tea.Msg {
		return noticeMsg{Severity: sev, Message: fmt.Sprintf(format, args...)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case changedMsg:
		m = m.takeNotices().refresh()
		return m, m.changes.wait()

	case tickMsg:
		if m.stats.Playing > 0 {
			m = m.refresh()
		}
		return m, tickCmd()

	case errMsg:
		m.notice = &mixer.Notice{Severity: mixer.SeverityDanger, Message: msg.err.Error()}

	case noticeMsg:
		n := mixer.Notice(msg)
		m.notice = &n
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.helpView {
		m.helpView = false
		return m, nil
	}
	if m.prompt != promptNone {
		return m.handlePrompt(msg)
	}
	if m.filterFocused {
		return m.handleFilter(msg)
	}

	s := m.session
	t, hasTrack := m.selected()

	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.filter != "" {
			m.filter = ""
			return m.refresh(), nil
		}
		return m, tea.Quit
	case "h", "?":
		m.helpView = true
	case "/":
		m.filterFocused = true
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case " ":
		return m, act(func() error {
			_, _, err := s.ToggleAll(m.ctx)
			return err
		})
	case "n":
		m.prompt = promptGroupName
		m.input = ""
	case "R":
		m.prompt = promptReset
	case "<":
		return m, act(func() error { s.SetMasterVolume(s.MasterVolume() - volumeStep); return nil })
	case ">":
		return m, act(func() error { s.SetMasterVolume(s.MasterVolume() + volumeStep); return nil })
	case "y":
		return m, m.copyBackup()
	case "e":
		return m, m.exportBackup()
	}

	if !hasTrack {
		return m, nil
	}

	switch key {
	case "enter":
		if t.Playing {
			return m, act(func() error { return s.PauseTrack(t.ID) })
		}
		return m, act(func() error { return s.PlayTrack(m.ctx, t.ID) })
	case "s":
		return m, act(func() error { return s.StopTrack(t.ID) })
	case "m":
		return m, act(func() error { _, err := s.ToggleMute(t.ID); return err })
	case "l":
		return m, act(func() error { return s.SetLoop(t.ID, !t.Loop) })
	case "+", "=":
		return m, act(func() error { _, err := s.SetVolume(t.ID, t.Volume+volumeStep); return err })
	case "-", "_":
		return m, act(func() error { _, err := s.SetVolume(t.ID, t.Volume-volumeStep); return err })
	case "0":
		return m, act(func() error { return s.ResetVolume(t.ID) })
	case "g":
		next := m.nextGroup(t.GroupID)
		return m, act(func() error { return s.SetTrackGroup(t.ID, next) })
	case "x", "delete":
		m.prompt = promptRemove
	case "M", "c", "L", "z":
		if t.GroupID == nil {
			return m, notice(mixer.SeverityWarning, "%s is not in a group", t.File.Name)
		}
		gid := *t.GroupID
		switch key {
		case "M":
			return m, act(func() error { _, err := s.ToggleGroupMute(gid); return err })
		case "c":
			return m, act(func() error { return s.StartPlaylist(m.ctx, gid, mixer.PlaylistContinuous) })
		case "L":
			return m, act(func() error { return s.StartPlaylist(m.ctx, gid, mixer.PlaylistLoop) })
		case "z":
			return m, act(func() error { _, err := s.ToggleGroupCollapse(gid); return err })
		}
	}
	return m, nil
}

// nextGroup cycles ungrouped -> first group -> ... -> last group -> ungrouped.
func (m model) nextGroup(current *int) *int {
	groups := m.state.Groups
	if len(groups) == 0 {
		return nil
	}
	if current == nil {
		id := groups[0].ID
		return &id
	}
	for i, g := range groups {
		if g.ID == *current && i+1 < len(groups) {
			id := groups[i+1].ID
			return &id
		}
	}
	return nil
}

func (m model) handlePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.session
	mode := m.prompt

	if mode == promptGroupName {
		switch msg.String() {
		case "esc":
			m.prompt = promptNone
		case "enter":
			m.prompt = promptNone
			name := m.input
			return m, act(func() error {
				_, err := s.CreateGroup(name)
				return err
			})
		case "backspace":
			if r := []rune(m.input); len(r) > 0 {
				m.input = string(r[:len(r)-1])
			}
		default:
			m.input += typed(msg)
		}
		return m, nil
	}

	m.prompt = promptNone
	switch msg.String() {
	case "y", "Y":
		switch mode {
		case promptRemove:
			if t, ok := m.selected(); ok {
				return m, act(func() error { return s.RemoveTrack(t.ID) })
			}
		case promptReset:
			return m, act(func() error { s.FactoryReset(); return nil })
		}
	}
	return m, nil
}

func (m model) handleFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.filter != "" {
			m.filter = ""
		} else {
			m.filterFocused = false
		}
	case "enter":
		m.filterFocused = false
	case "up":
		m.filterFocused = false
		if m.cursor > 0 {
			m.cursor--
		}
	case "down":
		m.filterFocused = false
		if m.cursor < len(m.visible)-1 {
			m.cursor++
		}
	case "backspace":
		if r := []rune(m.filter); len(r) > 0 {
			m.filter = string(r[:len(r)-1])
		}
	case "ctrl+u":
		m.filter = ""
	default:
		m.filter += typed(msg)
	}
	return m.refresh(), nil
}

// typed returns the printable text of a key press.
func typed(msg tea.KeyMsg) string {
	switch msg.Type {
	case tea.KeySpace:
		return " "
	case tea.KeyRunes:
		return string(msg.Runes)
	}
	return ""
}

func (m model) encodedBackup() ([]byte, error) {
	var buf bytes.Buffer
	if err := backup.Encode(&buf, m.session.ExportBackup()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m model) copyBackup() tea.Cmd {
	return func() tea.Msg {
		data, err := m.encodedBackup()
		if err == nil {
			err = m.writeClipboard(string(data))
		}
		if err != nil {
			return errMsg{fmt.Errorf("copy backup: %w", err)}
		}
		return noticeMsg{Severity: mixer.SeveritySuccess, Message: "Backup copied to clipboard"}
	}
}

func (m model) exportBackup() tea.Cmd {
	return func() tea.Msg {
		data, err := m.encodedBackup()
		if err != nil {
			return errMsg{fmt.Errorf("export backup: %w", err)}
		}
		name := backup.FileName(m.now())
		if err := m.writeFile(name, data); err != nil {
			return errMsg{fmt.Errorf("export backup: %w", err)}
		}
		return noticeMsg{Severity: mixer.SeveritySuccess, Message: "Backup saved to " + name}
	}
}
