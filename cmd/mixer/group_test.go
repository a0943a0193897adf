package mixer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateGroup(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		input    string
		expected string
		err      error
	}{
		{"Drums", "Drums", nil},
		{"  Bass  ", "Bass", nil},
		{"", "", ErrEmptyGroupName},
		{" \t ", "", ErrEmptyGroupName},
	}

	for _, tt := range tests {
		g, err := h.s.CreateGroup(tt.input)
		if !errors.Is(err, tt.err) {
			t.Errorf("CreateGroup(%q) error = %v, want %v", tt.input, err, tt.err)
			continue
		}
		if err != nil {
			continue
		}
		if g.Name != tt.expected {
			t.Errorf("CreateGroup(%q) name = %q, want %q", tt.input, g.Name, tt.expected)
		}
		if !strings.HasPrefix(g.Color, "hsl(") {
			t.Errorf("CreateGroup(%q) color = %q, want hsl()", tt.input, g.Color)
		}
		if g.Mode != PlaylistNone || g.CurrentIndex != -1 {
			t.Errorf("CreateGroup(%q) playlist = %s/%d, want none/-1", tt.input, g.Mode, g.CurrentIndex)
		}
	}
	if got := len(h.s.Snapshot().Groups); got != 2 {
		t.Errorf("groups = %d, want 2", got)
	}
}

func TestDeleteGroup_ReleasesEveryMember(t *testing.T) {
	for _, n := range []int{0, 1, 3, 7} {
		h := newHarness(t)
		var names []string
		for i := 0; i < n+2; i++ {
			names = append(names, string(rune('a'+i))+".wav")
		}
		ids := h.load(names...)
		keep := h.group("Keep", ids[n])
		gid := h.group("Doomed", ids[:n]...)

		released, err := h.s.DeleteGroup(gid)
		if err != nil {
			t.Fatal(err)
		}
		if released != n {
			t.Errorf("DeleteGroup() released %d, want %d", released, n)
		}

		snap := h.s.Snapshot()
		if len(snap.Tracks) != n+2 {
			t.Errorf("tracks = %d after delete, want %d", len(snap.Tracks), n+2)
		}
		for _, st := range snap.Tracks {
			if st.GroupID != nil && *st.GroupID == gid {
				t.Errorf("track %d still references deleted group %d", st.ID, gid)
			}
		}
		for _, st := range snap.Tracks[:n] {
			if st.GroupID != nil {
				t.Errorf("track %d group = %d, want ungrouped", st.ID, *st.GroupID)
			}
		}
		if st := h.track(ids[n]); st.GroupID == nil || *st.GroupID != keep {
			t.Errorf("member of another group was moved")
		}
		if snap.Ungrouped != n+1 {
			t.Errorf("ungrouped = %d, want %d", snap.Ungrouped, n+1)
		}
		if _, err := h.s.Group(gid); !errors.Is(err, ErrGroupNotFound) {
			t.Errorf("Group(%d) error = %v, want %v", gid, err, ErrGroupNotFound)
		}
	}
}

func TestSetTrackGroup_UpdatesBothPartitions(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav")
	drums := h.group("Drums", ids[0])
	bass := h.group("Bass")

	if err := h.s.SetTrackGroup(ids[0], &bass); err != nil {
		t.Fatal(err)
	}
	if got := h.groupState(drums).Count; got != 0 {
		t.Errorf("Drums count = %d, want 0", got)
	}
	if got := h.groupState(bass).Count; got != 1 {
		t.Errorf("Bass count = %d, want 1", got)
	}

	if err := h.s.SetTrackGroup(ids[0], nil); err != nil {
		t.Fatal(err)
	}
	if got := h.s.Snapshot().Ungrouped; got != 2 {
		t.Errorf("ungrouped = %d, want 2", got)
	}

	missing := 99
	if err := h.s.SetTrackGroup(ids[0], &missing); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("SetTrackGroup() to unknown group error = %v, want %v", err, ErrGroupNotFound)
	}
}

func TestGroupMembers_RegistryOrder(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav", "c.wav")
	gid := h.group("G", ids[2], ids[0])

	members, err := h.s.GroupMembers(gid)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].ID != ids[0] || members[1].ID != ids[2] {
		t.Errorf("GroupMembers() = %v, want registry order [%d %d]", members, ids[0], ids[2])
	}
}

func TestToggleGroupMute(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav", "c.wav")
	gid := h.group("G", ids[0], ids[1])
	_, _ = h.s.ToggleMute(ids[0])

	mute, err := h.s.ToggleGroupMute(gid)
	if err != nil {
		t.Fatal(err)
	}
	if !mute {
		t.Fatalf("partly muted group should mute all")
	}
	if !h.track(ids[0]).Muted || !h.track(ids[1]).Muted || h.track(ids[2]).Muted {
		t.Errorf("mute applied outside the group or not to all members")
	}
	if !h.groupState(gid).AllMuted {
		t.Errorf("group not reported all muted")
	}

	mute, _ = h.s.ToggleGroupMute(gid)
	if mute || h.track(ids[0]).Muted || h.track(ids[1]).Muted {
		t.Errorf("fully muted group should unmute all")
	}
	if h.transport("a.wav").gain.level() != 1 {
		t.Errorf("gain not restored after group unmute")
	}
}

func TestToggleGroupCollapse(t *testing.T) {
	h := newHarness(t)
	gid := h.group("G")
	if c, _ := h.s.ToggleGroupCollapse(gid); !c {
		t.Errorf("first toggle = false, want true")
	}
	if c, _ := h.s.ToggleGroupCollapse(gid); c {
		t.Errorf("second toggle = true, want false")
	}
}

func TestResetGroups(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav")
	gid := h.group("G", ids...)
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistLoop)

	h.s.ResetGroups()
	snap := h.s.Snapshot()
	if len(snap.Groups) != 0 || snap.Ungrouped != 2 {
		t.Errorf("after reset groups=%d ungrouped=%d", len(snap.Groups), snap.Ungrouped)
	}
	if g := h.group("Again"); g != 0 {
		t.Errorf("group id after reset = %d, want 0", g)
	}
}

func TestGroupPlayPauseStop(t *testing.T) {
	h := newHarness(t)
	ids := h.load("a.wav", "b.wav", "c.wav")
	gid := h.group("G", ids[0], ids[1])
	ctx := context.Background()

	if n, _ := h.s.PlayGroup(ctx, gid); n != 2 {
		t.Errorf("PlayGroup() = %d, want 2", n)
	}
	if h.track(ids[2]).Playing {
		t.Errorf("non-member started")
	}
	if n, _ := h.s.PauseGroup(gid); n != 2 {
		t.Errorf("PauseGroup() = %d, want 2", n)
	}
	h.clock.Advance(100 * time.Millisecond)
	if h.track(ids[0]).Playing || h.track(ids[1]).Playing {
		t.Errorf("members still playing after PauseGroup")
	}
	if _, err := h.s.PlayGroup(ctx, 42); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("PlayGroup(42) error = %v, want %v", err, ErrGroupNotFound)
	}
}

func TestParsePlaylistMode(t *testing.T) {
	tests := []struct {
		input    string
		expected PlaylistMode
		wantErr  bool
	}{
		{"continuous", PlaylistContinuous, false},
		{" LOOP ", PlaylistLoop, false},
		{"", PlaylistNone, false},
		{"shuffle", PlaylistNone, true},
	}
	for _, tt := range tests {
		got, err := ParsePlaylistMode(tt.input)
		if (err != nil) != tt.wantErr || got != tt.expected {
			t.Errorf("ParsePlaylistMode(%q) = %v, %v", tt.input, got, err)
		}
	}
}
