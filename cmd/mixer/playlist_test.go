package mixer

import (
	"context"
	"errors"
	"testing"
	"time"
)

// playlistHarness loads names into one group and returns the group id and
// track ids.
func playlistHarness(t *testing.T, names ...string) (*harness, int, []int) {
	t.Helper()
	h := newHarness(t)
	ids := h.load(names...)
	gid := h.group("Set", ids...)
	return h, gid, ids
}

// finishCurrent ends whichever member is playing and lets the advance delay
// pass.
func (h *harness) finishCurrent(names ...string) string {
	h.t.Helper()
	for _, name := range names {
		if tr := h.transport(name); tr.playing {
			tr.end()
			h.clock.Advance(300 * time.Millisecond)
			return name
		}
	}
	h.t.Fatalf("no member is playing")
	return ""
}

func TestContinuousPlaylist_PlaysEachOnceThenIdles(t *testing.T) {
	for _, k := range []int{1, 2, 5} {
		var names []string
		for i := 0; i < k; i++ {
			names = append(names, string(rune('a'+i))+".wav")
		}
		h, gid, _ := playlistHarness(t, names...)

		if err := h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous); err != nil {
			t.Fatal(err)
		}
		var order []string
		for i := 0; i < k; i++ {
			if mode := h.groupState(gid).Mode; mode != PlaylistContinuous {
				t.Fatalf("k=%d: mode = %s after %d tracks, want continuous", k, mode, i)
			}
			order = append(order, h.finishCurrent(names...))
		}

		if got := h.rec.count(ChangeTrackStarted); got != k {
			t.Errorf("k=%d: track started %d times, want %d", k, got, k)
		}
		for i := range names {
			if order[i] != names[i] {
				t.Errorf("k=%d: play order = %v, want %v", k, order, names)
				break
			}
		}
		g := h.groupState(gid)
		if g.Mode != PlaylistNone || g.CurrentIndex != -1 {
			t.Errorf("k=%d: final state %s/%d, want none/-1", k, g.Mode, g.CurrentIndex)
		}
		if n := h.rec.lastNotice(); n.Severity != SeveritySuccess {
			t.Errorf("k=%d: last notice = %+v, want success", k, n)
		}
		h.clock.Advance(time.Hour)
		if got := h.rec.count(ChangeTrackStarted); got != k {
			t.Errorf("k=%d: playback continued after finishing", k)
		}
	}
}

func TestLoopPlaylist_NeverIdlesOnItsOwn(t *testing.T) {
	names := []string{"a.wav", "b.wav", "c.wav"}
	h, gid, _ := playlistHarness(t, names...)
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistLoop)

	var order []string
	for i := 0; i < 10; i++ {
		order = append(order, h.finishCurrent(names...))
		if mode := h.groupState(gid).Mode; mode != PlaylistLoop {
			t.Fatalf("mode = %s after %d tracks, want loop", mode, i+1)
		}
	}
	if order[3] != "a.wav" || order[9] != "a.wav" {
		t.Errorf("loop did not wrap to the first member: %v", order)
	}
	if got := h.rec.count(ChangeTrackStarted); got != 11 {
		t.Errorf("track started %d times, want 11", got)
	}

	if err := h.s.StopPlaylist(gid); err != nil {
		t.Fatal(err)
	}
	if g := h.groupState(gid); g.Mode != PlaylistNone || g.CurrentIndex != -1 {
		t.Errorf("after stop %s/%d, want none/-1", g.Mode, g.CurrentIndex)
	}
}

func TestPlaylist_RestoresLoopFlags(t *testing.T) {
	for _, mode := range []PlaylistMode{PlaylistContinuous, PlaylistLoop} {
		h, gid, ids := playlistHarness(t, "a.wav", "b.wav", "c.wav")
		_ = h.s.SetLoop(ids[0], true)
		_ = h.s.SetLoop(ids[2], true)

		_ = h.s.StartPlaylist(context.Background(), gid, mode)
		for _, id := range ids {
			if h.track(id).Loop {
				t.Errorf("%s: track %d loop still on during playlist", mode, id)
			}
		}
		if mode == PlaylistLoop {
			for i := 0; i < 5; i++ {
				h.finishCurrent("a.wav", "b.wav", "c.wav")
			}
			_ = h.s.StopPlaylist(gid)
		} else {
			for i := 0; i < 3; i++ {
				h.finishCurrent("a.wav", "b.wav", "c.wav")
			}
		}

		for i, want := range []bool{true, false, true} {
			if got := h.track(ids[i]).Loop; got != want {
				t.Errorf("%s: track %d loop = %v, want %v", mode, ids[i], got, want)
			}
			if got := h.transport(h.track(ids[i]).File.Name).loop; got != want {
				t.Errorf("%s: transport %d loop = %v, want %v", mode, ids[i], got, want)
			}
		}
	}
}

func TestStartPlaylist_SameModeToggles(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	ctx := context.Background()
	_ = h.s.StartPlaylist(ctx, gid, PlaylistContinuous)
	if err := h.s.StartPlaylist(ctx, gid, PlaylistContinuous); err != nil {
		t.Fatal(err)
	}
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s, want none after second start", g.Mode)
	}
	h.transport("a.wav").end()
	h.clock.Advance(time.Second)
	if h.track(ids[1]).Playing {
		t.Errorf("stopped playlist advanced")
	}
}

func TestStartPlaylist_OtherModeRestarts(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	ctx := context.Background()
	_ = h.s.SetLoop(ids[1], true)
	_ = h.s.StartPlaylist(ctx, gid, PlaylistContinuous)
	h.finishCurrent("a.wav", "b.wav")
	h.transport("b.wav").pos = 4 * time.Second

	if err := h.s.StartPlaylist(ctx, gid, PlaylistLoop); err != nil {
		t.Fatal(err)
	}
	g := h.groupState(gid)
	if g.Mode != PlaylistLoop || g.CurrentIndex != 0 {
		t.Errorf("state %s/%d, want loop/0", g.Mode, g.CurrentIndex)
	}
	if !h.transport("a.wav").playing || h.transport("b.wav").playing || h.transport("b.wav").pos != 0 {
		t.Errorf("restart did not rewind members and start the first")
	}

	_ = h.s.StopPlaylist(gid)
	if !h.track(ids[1]).Loop {
		t.Errorf("loop flag captured by the first run was lost")
	}
}

func TestStartPlaylist_EmptyGroup(t *testing.T) {
	h := newHarness(t)
	gid := h.group("Empty")
	err := h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)
	if !errors.Is(err, ErrEmptyGroup) {
		t.Fatalf("StartPlaylist() error = %v, want %v", err, ErrEmptyGroup)
	}
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s, want none", g.Mode)
	}
	if err := h.s.StartPlaylist(context.Background(), 77, PlaylistLoop); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("StartPlaylist(77) error = %v, want %v", err, ErrGroupNotFound)
	}
}

func TestPlaylist_SkipsFailedFirstMember(t *testing.T) {
	h := newHarness(t)
	h.out.failOpen["a.wav"] = true
	ids := h.load("a.wav", "b.wav")
	gid := h.group("Set", ids...)

	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)
	if g := h.groupState(gid); g.CurrentIndex != 1 {
		t.Errorf("index = %d, want 1", g.CurrentIndex)
	}
	if !h.track(ids[1]).Playing {
		t.Errorf("first playable member not started")
	}
}

func TestPlaylist_DelayBeforeNextTrack(t *testing.T) {
	h, gid, _ := playlistHarness(t, "a.wav", "b.wav")
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)
	h.transport("a.wav").end()
	if g := h.groupState(gid); g.CurrentIndex != 1 {
		t.Errorf("index = %d right after end, want 1", g.CurrentIndex)
	}
	h.clock.Advance(299 * time.Millisecond)
	if h.transport("b.wav").playing {
		t.Fatalf("next track started before the advance delay")
	}
	h.clock.Advance(time.Millisecond)
	if !h.transport("b.wav").playing {
		t.Fatalf("next track not started after the advance delay")
	}
}

func TestPlaylist_NextTrackLoopForcedOffAtFireTime(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)
	h.transport("a.wav").end()
	_ = h.s.SetLoop(ids[1], true)
	h.clock.Advance(300 * time.Millisecond)

	if h.transport("b.wav").loop {
		t.Errorf("next member started with loop on")
	}
	h.transport("b.wav").end()
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s, want none", g.Mode)
	}
	if !h.track(ids[1]).Loop {
		t.Errorf("loop set during the run not restored")
	}
}

func TestPlaylist_SkipsVanishedMembers(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav", "c.wav", "d.wav")
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)

	_ = h.s.RemoveTrack(ids[1])
	_ = h.s.SetTrackGroup(ids[2], nil)

	if got := h.finishCurrent("a.wav"); got != "a.wav" {
		t.Fatalf("finished %s", got)
	}
	if !h.transport("d.wav").playing {
		t.Fatalf("playlist did not skip to d.wav")
	}
	if h.transport("c.wav").playing {
		t.Errorf("member moved out of the group was played")
	}
	h.finishCurrent("d.wav")
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s, want none", g.Mode)
	}
}

func TestPlaylist_RemovingCurrentAdvances(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistLoop)
	_ = h.s.RemoveTrack(ids[0])
	h.clock.Advance(300 * time.Millisecond)
	if !h.transport("b.wav").playing {
		t.Errorf("playlist stalled after its current track was removed")
	}
	_ = h.s.RemoveTrack(ids[1])
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s with no members left, want none", g.Mode)
	}
}

func TestPlaylist_StaleEndedIgnored(t *testing.T) {
	h, gid, _ := playlistHarness(t, "a.wav", "b.wav")
	ctx := context.Background()
	_ = h.s.StartPlaylist(ctx, gid, PlaylistContinuous)
	h.transport("a.wav").end()
	_ = h.s.StopPlaylist(gid)
	_ = h.s.StartPlaylist(ctx, gid, PlaylistLoop)

	h.clock.Advance(300 * time.Millisecond)
	if h.transport("b.wav").playing {
		t.Errorf("advance scheduled by the old run fired in the new one")
	}
	if !h.transport("a.wav").playing {
		t.Errorf("new run did not start its first member")
	}
}

func TestStopGroup_TearsDownPlaylist(t *testing.T) {
	h, gid, _ := playlistHarness(t, "a.wav", "b.wav")
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistLoop)
	h.transport("a.wav").pos = 2 * time.Second

	if n, err := h.s.StopGroup(gid); err != nil || n != 2 {
		t.Fatalf("StopGroup() = %d, %v", n, err)
	}
	if g := h.groupState(gid); g.Mode != PlaylistNone {
		t.Errorf("mode = %s, want none", g.Mode)
	}
	h.clock.Advance(100 * time.Millisecond)
	a := h.transport("a.wav")
	if a.playing || a.pos != 0 {
		t.Errorf("a.wav playing=%v pos=%v after StopGroup", a.playing, a.pos)
	}
	a.end()
	h.clock.Advance(time.Second)
	if h.transport("b.wav").playing {
		t.Errorf("stopped group kept advancing")
	}
}

func TestDeleteGroup_StopsPlaylist(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	_ = h.s.SetLoop(ids[1], true)
	_ = h.s.StartPlaylist(context.Background(), gid, PlaylistContinuous)
	if _, err := h.s.DeleteGroup(gid); err != nil {
		t.Fatal(err)
	}
	h.transport("a.wav").end()
	h.clock.Advance(time.Second)
	if h.transport("b.wav").playing {
		t.Errorf("deleted group kept advancing")
	}
	if !h.track(ids[1]).Loop {
		t.Errorf("loop flag not restored on delete")
	}
}

func TestPlaylist_StaleEndDoesNotAdvance(t *testing.T) {
	h, gid, ids := playlistHarness(t, "a.wav", "b.wav")
	ctx := context.Background()
	if err := h.s.StartPlaylist(ctx, gid, PlaylistContinuous); err != nil {
		t.Fatal(err)
	}
	a := h.transport("a.wav")
	staleGen := a.gen
	if err := h.s.PlayTrack(ctx, ids[0]); err != nil {
		t.Fatal(err)
	}
	a.onEvent(TransportEvent{Kind: TransportEnded, Generation: staleGen})
	h.clock.Advance(time.Second)

	if h.transport("b.wav").playing {
		t.Error("b.wav started while a.wav is still playing")
	}
	if !h.track(ids[0]).Playing {
		t.Error("a.wav should still be playing")
	}
}
