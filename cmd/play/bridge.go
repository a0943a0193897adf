package play

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gigurra/mixdeck/cmd/mixer"
)

type changedMsg struct{}

// bridge carries session changes into the bubbletea loop. The session
// delivers on whichever goroutine mutated it, often from inside Update, so
// bridge only records that something changed and wakes one waiting
// command.
type bridge struct {
	signal chan struct{}

	mu      sync.Mutex
	notices []mixer.Notice
}

func newBridge() *bridge {
	return &bridge{signal: make(chan struct{}, 1)}
}

func (b *bridge) Render(mixer.Change) {
	b.poke()
}

func (b *bridge) Notify(n mixer.Notice) {
	b.mu.Lock()
	b.notices = append(b.notices, n)
	b.mu.Unlock()
	b.poke()
}

func (b *bridge) poke() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// wait blocks until the next change.
func (b *bridge) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.signal
		return changedMsg{}
	}
}

// drain returns and forgets the notices received so far.
func (b *bridge) drain() []mixer.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.notices
	b.notices = nil
	return n
}
