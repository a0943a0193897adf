package mixer

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/samber/lo"
)

// playlistRun is one activation of a group's sequencer. Members are fixed
// when the run starts; entries that later leave the group, fail or are
// removed are skipped when advancing.
type playlistRun struct {
	gen        uint64
	members    []int
	wasLooping map[int]bool
}

func playlistKey(groupID int) string {
	return "playlist:" + strconv.Itoa(groupID)
}

// StartPlaylist starts sequencing a group's tracks in registry order.
// Starting the mode that is already active stops it instead; starting the
// other mode replaces the running one.
func (s *Session) StartPlaylist(ctx context.Context, groupID int, mode PlaylistMode) error {
	if mode == PlaylistNone {
		return s.StopPlaylist(groupID)
	}
	if mode != PlaylistContinuous && mode != PlaylistLoop {
		return fmt.Errorf("unknown playlist mode %q", mode)
	}

	s.lock()
	g := s.groups.find(groupID)
	if g == nil {
		s.unlock()
		return fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	if g.mode == mode {
		s.stopPlaylistLocked(g)
		s.unlock()
		return nil
	}
	if g.mode != PlaylistNone {
		s.stopPlaylistLocked(g)
	}

	members := s.tracks.members(groupID)
	first := slices.IndexFunc(members, func(t *track) bool { return !t.failed })
	if first < 0 {
		s.notify(SeverityWarning, "Group %s has no playable tracks", g.name)
		s.unlock()
		return fmt.Errorf("%w: %s", ErrEmptyGroup, g.name)
	}

	for _, t := range members {
		s.resetPositionLocked(t)
	}
	s.runSeq++
	run := &playlistRun{
		gen:        s.runSeq,
		members:    lo.Map(members, func(t *track, _ int) int { return t.id }),
		wasLooping: make(map[int]bool, len(members)),
	}
	for _, t := range members {
		run.wasLooping[t.id] = t.loop
		t.loop = false
		t.transport.SetLoop(false)
	}
	g.mode = mode
	g.run = run
	g.index = first
	start := members[first]

	s.log.Info("playlist started", "group", g.name, "mode", mode, "tracks", len(members))
	if mode == PlaylistLoop {
		s.notify(SeverityInfo, "Loop playlist enabled for %s", g.name)
	} else {
		s.notify(SeverityInfo, "Continuous playlist enabled for %s", g.name)
	}
	s.emitGroup(ChangePlaylist, g)
	s.unlock()

	if err := s.resume(ctx); err != nil {
		s.lock()
		if g.run == run {
			s.stopPlaylistLocked(g)
		}
		s.unlock()
		return err
	}

	s.lock()
	defer s.unlock()
	if g.run == run && s.eligibleLocked(g, start.id) {
		s.startLocked(start)
	}
	return nil
}

// resetPositionLocked pauses and rewinds a track at once, without a fade.
func (s *Session) resetPositionLocked(t *track) {
	wasPlaying := t.playing
	t.halt = nil
	s.sched.cancel(trackKey(t.id))
	t.transport.Pause()
	if err := t.transport.Seek(0); err != nil {
		s.log.Warn("failed to rewind track", "track", t.id, "error", err)
	}
	t.playing = false
	t.ended = false
	if wasPlaying {
		s.emitTrack(ChangeTrackStopped, t)
	}
}

// StopPlaylist detaches a group's running playlist and restores the loop
// flags its members had when it started.
func (s *Session) StopPlaylist(groupID int) error {
	s.lock()
	defer s.unlock()
	g := s.groups.find(groupID)
	if g == nil {
		return fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	s.stopPlaylistLocked(g)
	return nil
}

func (s *Session) stopPlaylistLocked(g *group) {
	s.sched.cancel(playlistKey(g.id))
	run := g.run
	g.run = nil
	g.mode = PlaylistNone
	g.index = -1
	if run != nil {
		for _, id := range run.members {
			t := s.tracks.find(id)
			if t == nil {
				continue
			}
			t.loop = run.wasLooping[id]
			t.transport.SetLoop(t.loop)
			s.emitTrack(ChangeTrackUpdated, t)
		}
		s.log.Info("playlist stopped", "group", g.name)
	}
	s.emitGroup(ChangePlaylist, g)
}

func (s *Session) stopAllPlaylistsLocked() {
	for _, g := range s.groups.all() {
		if g.run != nil {
			s.stopPlaylistLocked(g)
		}
	}
}

func (s *Session) eligibleLocked(g *group, trackID int) bool {
	t := s.tracks.find(trackID)
	return t != nil && t.groupID == g.id && !t.failed
}

// nextEligibleLocked finds the first eligible run entry at or after from.
// Loop runs wrap around to the start.
func (s *Session) nextEligibleLocked(g *group, from int) (int, bool) {
	n := len(g.run.members)
	limit := n - from
	if g.mode == PlaylistLoop {
		limit = n
	}
	for i := 0; i < limit; i++ {
		idx := (from + i) % n
		if s.eligibleLocked(g, g.run.members[idx]) {
			return idx, true
		}
	}
	return -1, false
}

// onTrackEndedLocked advances every playlist the ended track belongs to.
func (s *Session) onTrackEndedLocked(t *track) {
	for _, g := range s.groups.all() {
		if g.run == nil {
			continue
		}
		idx := slices.Index(g.run.members, t.id)
		if idx < 0 {
			continue
		}
		s.advanceLocked(g, idx+1)
	}
}

func (s *Session) advanceLocked(g *group, from int) {
	next, ok := s.nextEligibleLocked(g, from)
	if !ok {
		name := g.name
		mode := g.mode
		s.stopPlaylistLocked(g)
		if mode == PlaylistContinuous {
			s.notify(SeveritySuccess, "Playlist %s finished", name)
		} else {
			s.notify(SeverityWarning, "Playlist %s stopped, no playable tracks left", name)
		}
		return
	}
	g.index = next
	s.emitGroup(ChangePlaylist, g)

	gid, gen, trackID := g.id, g.run.gen, g.run.members[next]
	s.sched.schedule(playlistKey(gid), s.opts.AdvanceDelay, func() {
		s.advanceTo(gid, gen, trackID)
	})
}

// advanceTo runs when the advance delay has passed. Nothing happens if the
// run it was scheduled for is no longer the group's current run.
func (s *Session) advanceTo(groupID int, gen uint64, trackID int) {
	if err := s.out.Resume(context.Background()); err != nil {
		s.log.Warn("failed to resume output for playlist", "group", groupID, "error", err)
	}

	s.lock()
	defer s.unlock()
	g := s.groups.find(groupID)
	if g == nil || g.run == nil || g.run.gen != gen {
		return
	}
	if !s.eligibleLocked(g, trackID) {
		idx := slices.Index(g.run.members, trackID)
		s.advanceLocked(g, idx+1)
		return
	}
	t := s.tracks.find(trackID)
	t.loop = false
	t.transport.SetLoop(false)
	s.startLocked(t)
}

// playlistTrackRemovedLocked keeps a playlist moving when the entry it is
// currently playing is removed.
func (s *Session) playlistTrackRemovedLocked(t *track, wasPlaying bool) {
	for _, g := range s.groups.all() {
		if g.run == nil {
			continue
		}
		idx := slices.Index(g.run.members, t.id)
		if idx < 0 || idx != g.index || !wasPlaying {
			continue
		}
		s.advanceLocked(g, idx+1)
	}
}

// PlayGroup starts every member of a group.
func (s *Session) PlayGroup(ctx context.Context, groupID int) (int, error) {
	s.lock()
	if s.groups.find(groupID) == nil {
		s.unlock()
		return 0, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	s.unlock()

	if err := s.resume(ctx); err != nil {
		return 0, err
	}

	s.lock()
	defer s.unlock()
	return s.playBatchLocked(s.tracks.members(groupID)), nil
}

// PauseGroup fades out and pauses every member of a group.
func (s *Session) PauseGroup(groupID int) (int, error) {
	s.lock()
	defer s.unlock()
	if s.groups.find(groupID) == nil {
		return 0, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	members := s.tracks.members(groupID)
	s.haltLocked(s.nextBatchKey(), members, false)
	return len(members), nil
}

// StopGroup ends the group's playlist first, then fades out and rewinds
// every member.
func (s *Session) StopGroup(groupID int) (int, error) {
	s.lock()
	defer s.unlock()
	g := s.groups.find(groupID)
	if g == nil {
		return 0, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	s.stopPlaylistLocked(g)
	members := s.tracks.members(groupID)
	s.haltLocked(s.nextBatchKey(), members, true)
	return len(members), nil
}
