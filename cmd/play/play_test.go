package play

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gigurra/mixdeck/cmd/common/config"
	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/gigurra/mixdeck/cmd/mixer/mixertest"
)

func TestConfirmMissing(t *testing.T) {
	missing := []backup.Missing{{Key: "bass.wav", Name: "bass.wav"}}

	tests := []struct {
		name        string
		input       string
		force       bool
		interactive bool
		expected    bool
	}{
		{"forced", "", true, false, true},
		{"no terminal", "y\n", false, false, false},
		{"yes", "y\n", false, true, true},
		{"YES", "YES\n", false, true, true},
		{"default no", "\n", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got := confirmMissing(strings.NewReader(tt.input), &out, tt.force, tt.interactive)(missing)
			if got != tt.expected {
				t.Errorf("confirm = %v, want %v", got, tt.expected)
			}
			if !tt.force && !strings.Contains(out.String(), "bass.wav") {
				t.Errorf("prompt %q should list the missing file", out.String())
			}
		})
	}
}

func TestDesktopNotifier(t *testing.T) {
	sent := make(chan string, 4)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := newDesktopNotifier(&config.NotificationConfig{Enabled: true, MinSeverity: "warning", CooldownSeconds: 2})
	d.now = func() time.Time { return now }
	d.send = func(title, message string) error {
		sent <- message
		return nil
	}

	expect := func(want string) {
		t.Helper()
		select {
		case got := <-sent:
			if got != want {
				t.Errorf("sent %q, want %q", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("no notification, want %q", want)
		}
	}

	d.Notify(mixer.Notice{Severity: mixer.SeverityInfo, Message: "quiet"})
	d.Notify(mixer.Notice{Severity: mixer.SeverityDanger, Message: "first"})
	expect("first")

	now = now.Add(time.Second)
	d.Notify(mixer.Notice{Severity: mixer.SeverityDanger, Message: "too soon"})

	now = now.Add(2 * time.Second)
	d.Notify(mixer.Notice{Severity: mixer.SeverityWarning, Message: "second"})
	expect("second")

	select {
	case got := <-sent:
		t.Errorf("unexpected notification %q", got)
	default:
	}
}

func TestRunHeadless_ReturnsWhenEverythingEnded(t *testing.T) {
	out := mixertest.NewOutput()
	s := mixer.NewSession(out, mixer.Options{})
	defer s.Close()
	for _, n := range []string{"kick.wav", "bass.wav"} {
		if _, err := s.AddTrack(mixer.FileInfo{Name: n, Size: 1, MIMEType: "audio/wav"}, nil); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- runHeadless(context.Background(), s, &buf, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for !out.Transport("kick.wav").Playing() || !out.Transport("bass.wav").Playing() {
		if time.Now().After(deadline) {
			t.Fatal("tracks never started")
		}
		time.Sleep(time.Millisecond)
	}
	out.Transport("kick.wav").End()
	out.Transport("bass.wav").End()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runHeadless() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runHeadless() did not return after every track ended")
	}
	if got := buf.String(); !strings.Contains(got, "kick.wav") || !strings.Contains(got, "2 track(s)") {
		t.Errorf("output = %q", got)
	}
}

func TestRunHeadless_NothingToPlay(t *testing.T) {
	s := mixer.NewSession(mixertest.NewOutput(), mixer.Options{})
	defer s.Close()

	var buf bytes.Buffer
	if err := runHeadless(context.Background(), s, &buf, time.Millisecond); err != nil {
		t.Fatalf("runHeadless() error: %v", err)
	}
	if !strings.Contains(buf.String(), "Nothing to play") {
		t.Errorf("output = %q", buf.String())
	}
}
