package play

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"github.com/gigurra/mixdeck/cmd/common/config"
	"github.com/gigurra/mixdeck/cmd/mixer"
)

// notifiers fans a notice out to several sinks in order.
type notifiers []mixer.Notifier

func (ns notifiers) Notify(n mixer.Notice) {
	for _, sink := range ns {
		sink.Notify(n)
	}
}

func printNotifier(w io.Writer) mixer.Notifier {
	return mixer.NotifierFunc(func(n mixer.Notice) {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
	})
}

// desktopNotifier raises OS notifications for notices the config allows,
// at most one per cooldown.
type desktopNotifier struct {
	cfg  *config.NotificationConfig
	send func(title, message string) error
	now  func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newDesktopNotifier(cfg *config.NotificationConfig) *desktopNotifier {
	return &desktopNotifier{
		cfg: cfg,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		now: time.Now,
	}
}

func (d *desktopNotifier) Notify(n mixer.Notice) {
	if !d.cfg.Allows(n.Severity) {
		return
	}
	d.mu.Lock()
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.cfg.Cooldown() {
		d.mu.Unlock()
		return
	}
	d.last = now
	d.mu.Unlock()

	// Notification daemons can be slow; never hold up the session.
	go func() {
		if err := d.send("mixdeck", n.Message); err != nil {
			slog.Debug("desktop notification failed", "error", err)
		}
	}()
}
