package mixer

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"
)

func TestAddTrack_Validation(t *testing.T) {
	tests := []struct {
		name string
		file FileInfo
		want error
	}{
		{"not audio", FileInfo{Name: "notes.txt", Size: 10, MIMEType: "text/plain"}, ErrInvalidFileType},
		{"no mime", FileInfo{Name: "kick", Size: 10}, ErrInvalidFileType},
		{"too large", FileInfo{Name: "huge.wav", Size: MaxFileSize + 1, MIMEType: "audio/wav"}, ErrFileTooLarge},
		{"at limit", FileInfo{Name: "big.wav", Size: MaxFileSize, MIMEType: "audio/wav"}, nil},
		{"upper case mime", FileInfo{Name: "a.mp3", Size: 10, MIMEType: "Audio/MPEG"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.s.AddTrack(tt.file, []byte("x"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("AddTrack() error = %v, want %v", err, tt.want)
			}
			loaded := len(h.s.Snapshot().Tracks)
			if tt.want != nil && loaded != 0 {
				t.Errorf("rejected file left %d tracks", loaded)
			}
			if tt.want != nil && len(h.out.transports) != 0 {
				t.Errorf("rejected file opened a transport")
			}
			if tt.want != nil && h.rec.lastNotice().Severity != SeverityWarning {
				t.Errorf("rejection notice = %+v, want warning", h.rec.lastNotice())
			}
			if tt.want == nil && loaded != 1 {
				t.Errorf("accepted file left %d tracks, want 1", loaded)
			}
		})
	}
}

func TestAddTrack_IDsNeverReused(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav")
	if err := h.s.RemoveTrack(ids[1]); err != nil {
		t.Fatal(err)
	}
	h.s.FactoryReset()
	next := h.load("c.wav")
	if next[0] != 2 {
		t.Errorf("new track id = %d, want 2", next[0])
	}
}

func TestAddTrack_OpenFailureKeepsFailedTrack(t *testing.T) {
	h := newHarness(t)
	h.out.failOpen["broken.wav"] = true
	ids := h.load("ok.wav", "broken.wav")

	st := h.track(ids[1])
	if !st.Failed {
		t.Fatalf("track with broken media should be failed")
	}
	if h.rec.lastNotice().Severity != SeverityDanger {
		t.Errorf("notice = %+v, want danger", h.rec.lastNotice())
	}

	if err := h.s.PlayTrack(context.Background(), ids[1]); err != nil {
		t.Fatalf("PlayTrack() on failed track error: %v", err)
	}
	if h.track(ids[1]).Playing {
		t.Errorf("failed track started playing")
	}

	n, err := h.s.PlayAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("PlayAll() = %d, want 1", n)
	}

	if err := h.s.RemoveTrack(ids[1]); err != nil {
		t.Errorf("RemoveTrack() on failed track error: %v", err)
	}
}

func TestRemoveTrack_StopsAndSignalsEmpty(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav")
	if err := h.s.PlayTrack(context.Background(), ids[0]); err != nil {
		t.Fatal(err)
	}
	tr := h.transport("a.wav")

	if err := h.s.RemoveTrack(ids[0]); err != nil {
		t.Fatal(err)
	}
	if tr.playing || !tr.closed {
		t.Errorf("transport playing=%v closed=%v, want stopped and closed", tr.playing, tr.closed)
	}
	if h.rec.count(ChangeEmpty) != 1 {
		t.Errorf("empty signal emitted %d times, want 1", h.rec.count(ChangeEmpty))
	}
	if err := h.s.RemoveTrack(ids[0]); !errors.Is(err, ErrTrackNotFound) {
		t.Errorf("second RemoveTrack() error = %v, want %v", err, ErrTrackNotFound)
	}
}

func TestVolume_EffectiveGainProperty(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav", "c.wav")
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 2000; i++ {
		id := ids[rng.IntN(len(ids))]
		switch rng.IntN(4) {
		case 0, 1:
			if _, err := h.s.SetVolume(id, rng.IntN(400)-100); err != nil {
				t.Fatal(err)
			}
		case 2:
			if _, err := h.s.ToggleMute(id); err != nil {
				t.Fatal(err)
			}
		case 3:
			if err := h.s.ResetVolume(id); err != nil {
				t.Fatal(err)
			}
		}

		for _, id := range ids {
			st := h.track(id)
			if st.Volume < MinVolume || st.Volume > MaxVolume {
				t.Fatalf("step %d: volume %d out of range", i, st.Volume)
			}
			want := float64(st.Volume) / 100
			if st.Muted {
				want = 0
			}
			got := h.transport(st.File.Name).gain.level()
			if !approx(got, want) {
				t.Fatalf("step %d: track %d gain = %v, want %v (volume %d, muted %v)", i, id, got, want, st.Volume, st.Muted)
			}
		}
	}
}

func TestSetVolume_ClampsAndFlagsBoost(t *testing.T) {
	tests := []struct {
		input    int
		expected int
		boosted  bool
	}{
		{-5, 0, false},
		{0, 0, false},
		{100, 100, false},
		{101, 101, true},
		{150, 150, true},
		{250, 200, true},
	}

	for _, tt := range tests {
		h := newHarness(t)
		ids := h.load("a.wav")
		got, err := h.s.SetVolume(ids[0], tt.input)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.expected {
			t.Errorf("SetVolume(%d) = %d, want %d", tt.input, got, tt.expected)
		}
		if st := h.track(ids[0]); st.Boosted != tt.boosted {
			t.Errorf("SetVolume(%d) boosted = %v, want %v", tt.input, st.Boosted, tt.boosted)
		}
	}
}

func TestToggleMute_TwiceRestoresGain(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav")
	if _, err := h.s.SetVolume(ids[0], 140); err != nil {
		t.Fatal(err)
	}
	before := h.transport("a.wav").gain.level()

	muted, _ := h.s.ToggleMute(ids[0])
	if !muted || h.transport("a.wav").gain.level() != 0 {
		t.Fatalf("after first toggle muted=%v gain=%v", muted, h.transport("a.wav").gain.level())
	}
	muted, _ = h.s.ToggleMute(ids[0])
	if muted {
		t.Fatalf("after second toggle still muted")
	}
	if got := h.transport("a.wav").gain.level(); !approx(got, before) {
		t.Errorf("gain = %v, want %v", got, before)
	}
	if st := h.track(ids[0]); st.Volume != 140 {
		t.Errorf("volume = %d, want 140", st.Volume)
	}
}

func TestSetVolume_MutedKeepsSilence(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav")
	_, _ = h.s.ToggleMute(ids[0])
	_, _ = h.s.SetVolume(ids[0], 180)
	if got := h.transport("a.wav").gain.level(); got != 0 {
		t.Errorf("gain = %v, want 0 while muted", got)
	}
	if st := h.track(ids[0]); st.Volume != 180 {
		t.Errorf("volume = %d, want 180", st.Volume)
	}
}

func TestResetAllVolumes(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav")
	_, _ = h.s.SetVolume(ids[0], 20)
	_, _ = h.s.SetVolume(ids[1], 190)

	if n := h.s.ResetAllVolumes(); n != 2 {
		t.Errorf("ResetAllVolumes() = %d, want 2", n)
	}
	for _, id := range ids {
		if st := h.track(id); st.Volume != DefaultVolume || !approx(st.Gain, 1) {
			t.Errorf("track %d volume=%d gain=%v, want 100 and 1", id, st.Volume, st.Gain)
		}
	}
}

func TestSetMasterVolume(t *testing.T) {
	h := newHarness(t)
	if got := h.s.SetMasterVolume(250); got != MaxVolume {
		t.Errorf("SetMasterVolume(250) = %d, want %d", got, MaxVolume)
	}
	if !approx(h.out.masterGain, 2) {
		t.Errorf("master gain = %v, want 2", h.out.masterGain)
	}
	h.s.SetMasterVolume(50)
	if h.s.Snapshot().MasterVolume != 50 || !approx(h.out.masterGain, 0.5) {
		t.Errorf("master = %d gain = %v, want 50 and 0.5", h.s.Snapshot().MasterVolume, h.out.masterGain)
	}
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav", "c.wav", "d.wav")
	ctx := context.Background()
	_ = h.s.PlayTrack(ctx, ids[0])
	_ = h.s.SetLoop(ids[0], true)
	h.transport("b.wav").pos = 2 * time.Second
	_ = h.s.PlayTrack(ctx, ids[3])
	h.transport("d.wav").end()

	got := h.s.Stats()
	want := Stats{All: 4, Playing: 1, Paused: 1, Stopped: 2, Looping: 1}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
}

func TestFilterAndNowPlaying(t *testing.T) {
	h := newHarness(t)
	ids := h.load("Kick.wav", "kick-2.wav", "bass.wav")
	_ = h.s.PlayTrack(context.Background(), ids[1])
	_ = h.s.SetLoop(ids[2], true)

	names := func(ts []TrackState) string {
		var out []string
		for _, st := range ts {
			out = append(out, st.File.Name)
		}
		return strings.Join(out, ",")
	}

	tests := []struct {
		query    string
		status   Status
		expected string
	}{
		{"", StatusAny, "Kick.wav,kick-2.wav,bass.wav"},
		{"KICK", StatusAny, "Kick.wav,kick-2.wav"},
		{"kick", StatusPlaying, "kick-2.wav"},
		{"", StatusStopped, "Kick.wav,bass.wav"},
		{"", StatusLooping, "bass.wav"},
		{"snare", StatusAny, ""},
	}
	for _, tt := range tests {
		if got := names(h.s.Filter(tt.query, tt.status)); got != tt.expected {
			t.Errorf("Filter(%q, %q) = %q, want %q", tt.query, tt.status, got, tt.expected)
		}
	}
	if got := names(h.s.NowPlaying()); got != "kick-2.wav" {
		t.Errorf("NowPlaying() = %q, want %q", got, "kick-2.wav")
	}
}

func TestCollaboratorsMayCallBack(t *testing.T) {
	h := newHarness(t)
	var seen []int
	h.s.opts.Renderer = RendererFunc(func(c Change) {
		if c.Kind == ChangeTrackAdded {
			seen = append(seen, len(h.s.Snapshot().Tracks))
		}
	})
	h.s.opts.Notifier = NotifierFunc(func(n Notice) {
		if strings.HasPrefix(n.Message, "Group") {
			_, _ = h.s.SetVolume(0, 55)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.load("a.wav", "b.wav")
		h.group("Drums")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collaborator callback deadlocked")
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("renderer saw %v, want [1 2]", seen)
	}
	if st := h.track(0); st.Volume != 55 {
		t.Errorf("volume set from notifier = %d, want 55", st.Volume)
	}
}
