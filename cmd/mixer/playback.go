package mixer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
)

func trackKey(id int) string {
	return "track:" + strconv.Itoa(id)
}

// PlayTrack fades a track in from the gain floor and starts its transport.
// Failed tracks are ignored.
func (s *Session) PlayTrack(ctx context.Context, id int) error {
	s.lock()
	t := s.tracks.find(id)
	if t == nil {
		s.unlock()
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	failed := t.failed
	s.unlock()
	if failed {
		return nil
	}

	if err := s.resume(ctx); err != nil {
		return err
	}

	s.lock()
	defer s.unlock()
	// The track may have gone away while the output was resuming.
	t = s.tracks.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	if !t.failed {
		s.startLocked(t)
	}
	return nil
}

func (s *Session) resume(ctx context.Context) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	if err := s.out.Resume(ctx); err != nil {
		s.lock()
		s.notify(SeverityDanger, "Could not start audio output: %v", err)
		s.unlock()
		return fmt.Errorf("resume output: %w", err)
	}
	return nil
}

// startLocked voids any pending halt, restarts the fade-in and plays.
func (s *Session) startLocked(t *track) {
	t.halt = nil
	s.sched.cancel(trackKey(t.id))

	g := t.transport.Gain()
	g.CancelRamps()
	g.SetValue(gainFloor)
	g.RampTo(t.effectiveGain(), s.opts.FadeDuration)

	if t.ended {
		if err := t.transport.Seek(0); err != nil {
			s.log.Warn("failed to rewind ended track", "track", t.id, "error", err)
		}
		t.ended = false
	}
	if err := t.transport.Play(); err != nil {
		s.markFailedLocked(t, err)
		return
	}
	t.playing = true
	s.log.Debug("track started", "track", t.id, "name", t.file.Name)
	s.emitTrack(ChangeTrackStarted, t)
}

// PauseTrack fades a track out, then pauses it once the settle delay has
// passed.
func (s *Session) PauseTrack(id int) error {
	return s.haltOne(id, false)
}

// StopTrack is PauseTrack followed by a rewind to the start.
func (s *Session) StopTrack(id int) error {
	return s.haltOne(id, true)
}

func (s *Session) haltOne(id int, rewind bool) error {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	s.haltLocked(trackKey(id), []*track{t}, rewind)
	return nil
}

// haltLocked starts the fade-out of every given track and schedules one
// shared completion under key. A track played again before the timer fires
// keeps playing; the rest of the batch is unaffected.
func (s *Session) haltLocked(key string, batch []*track, rewind bool) {
	if len(batch) == 0 {
		return
	}
	halts := make(map[int]*pendingHalt, len(batch))
	for _, t := range batch {
		g := t.transport.Gain()
		cur := g.Value()
		g.CancelRamps()
		g.SetValue(cur)
		g.RampTo(gainFloor, s.opts.FadeDuration)

		h := &pendingHalt{rewind: rewind}
		t.halt = h
		halts[t.id] = h
	}
	s.sched.schedule(key, s.opts.SettleDelay, func() {
		s.completeHalt(halts)
	})
}

func (s *Session) completeHalt(halts map[int]*pendingHalt) {
	s.lock()
	defer s.unlock()
	for _, t := range s.tracks.all() {
		h, ok := halts[t.id]
		if !ok || t.halt != h {
			continue
		}
		t.halt = nil
		t.transport.Pause()
		if h.rewind {
			if err := t.transport.Seek(0); err != nil {
				s.log.Warn("failed to rewind track", "track", t.id, "error", err)
			}
			t.ended = false
		}
		t.playing = false
		s.emitTrack(ChangeTrackStopped, t)
	}
}

func (s *Session) nextBatchKey() string {
	s.haltSeq++
	return "batch:" + strconv.FormatUint(s.haltSeq, 10)
}

// PlayAll starts every track that has not failed and returns how many were
// started.
func (s *Session) PlayAll(ctx context.Context) (int, error) {
	if err := s.resume(ctx); err != nil {
		return 0, err
	}
	s.lock()
	defer s.unlock()
	n := s.playBatchLocked(s.tracks.all())
	if n > 0 {
		s.notify(SeveritySuccess, "Playing %d track(s)", n)
	}
	return n, nil
}

func (s *Session) playBatchLocked(batch []*track) int {
	n := 0
	for _, t := range batch {
		if t.failed {
			continue
		}
		s.startLocked(t)
		n++
	}
	return n
}

// PauseAll fades out and pauses every playing track.
func (s *Session) PauseAll() int {
	s.lock()
	defer s.unlock()
	batch := lo.Filter(s.tracks.all(), func(t *track, _ int) bool { return t.playing })
	s.haltLocked(s.nextBatchKey(), batch, false)
	if len(batch) > 0 {
		s.notify(SeverityWarning, "%d track(s) paused", len(batch))
	}
	return len(batch)
}

// StopAll ends every active playlist, then fades out, pauses and rewinds
// every track that is playing or away from the start.
func (s *Session) StopAll() int {
	s.lock()
	defer s.unlock()
	s.stopAllPlaylistsLocked()
	batch := lo.Filter(s.tracks.all(), func(t *track, _ int) bool {
		return t.playing || t.transport.Position() > 0
	})
	s.haltLocked(s.nextBatchKey(), batch, true)
	if len(batch) > 0 {
		s.notify(SeverityDanger, "%d track(s) stopped", len(batch))
	}
	return len(batch)
}

// ToggleAll pauses everything if anything is playing, otherwise plays
// everything. It reports whether playback was started.
func (s *Session) ToggleAll(ctx context.Context) (started bool, n int, err error) {
	s.lock()
	playing := s.tracks.anyPlaying()
	s.unlock()
	if playing {
		return false, s.PauseAll(), nil
	}
	n, err = s.PlayAll(ctx)
	return true, n, err
}

// SetVolume stores a volume percentage, clamped to [0, 200], and applies it
// unless the track is muted. It returns the stored value.
func (s *Session) SetVolume(id, percent int) (int, error) {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return 0, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	t.volume = clampVolume(percent)
	if !t.muted {
		s.applyGainLocked(t)
	}
	s.emitTrack(ChangeTrackUpdated, t)
	return t.volume, nil
}

func (s *Session) ResetVolume(id int) error {
	_, err := s.SetVolume(id, DefaultVolume)
	return err
}

func (s *Session) ResetAllVolumes() int {
	s.lock()
	defer s.unlock()
	for _, t := range s.tracks.all() {
		t.volume = DefaultVolume
		s.applyGainLocked(t)
		s.emitTrack(ChangeTrackUpdated, t)
	}
	n := s.tracks.len()
	if n > 0 {
		s.notify(SeverityInfo, "Volume reset on %d track(s)", n)
	}
	return n
}

// applyGainLocked sets the gain to the track's effective level. A track
// fading out towards a halt is left alone.
func (s *Session) applyGainLocked(t *track) {
	if t.halt != nil {
		return
	}
	g := t.transport.Gain()
	g.CancelRamps()
	g.SetValue(t.effectiveGain())
}

// ToggleMute flips a track's mute flag and returns the new value.
func (s *Session) ToggleMute(id int) (bool, error) {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return false, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	t.muted = !t.muted
	s.applyGainLocked(t)
	s.emitTrack(ChangeTrackUpdated, t)
	return t.muted, nil
}

// ApplyMuteAll brings every gain in line with its track's volume and mute
// flag.
func (s *Session) ApplyMuteAll() {
	s.lock()
	defer s.unlock()
	s.applyMuteAllLocked()
}

func (s *Session) applyMuteAllLocked() {
	for _, t := range s.tracks.all() {
		s.applyGainLocked(t)
	}
}

// ToggleGroupMute unmutes every member if all of them are muted and mutes
// them all otherwise. It returns the resulting mute flag.
func (s *Session) ToggleGroupMute(groupID int) (bool, error) {
	s.lock()
	defer s.unlock()
	g := s.groups.find(groupID)
	if g == nil {
		return false, fmt.Errorf("%w: %d", ErrGroupNotFound, groupID)
	}
	members := s.tracks.members(groupID)
	mute := !lo.EveryBy(members, func(t *track) bool { return t.muted })
	for _, t := range members {
		t.muted = mute
		s.emitTrack(ChangeTrackUpdated, t)
	}
	s.applyMuteAllLocked()
	s.emitGroup(ChangeGroupUpdated, g)
	if mute {
		s.notify(SeverityWarning, "Group %s muted", g.name)
	} else {
		s.notify(SeverityInfo, "Group %s unmuted", g.name)
	}
	return mute, nil
}

// SetLoop sets a track's native loop flag. For a member of a running
// playlist the flag is what gets restored when the playlist stops.
func (s *Session) SetLoop(id int, enabled bool) error {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	t.loop = enabled
	t.transport.SetLoop(enabled)
	for _, g := range s.groups.all() {
		if g.run != nil && lo.Contains(g.run.members, id) {
			g.run.wasLooping[id] = enabled
		}
	}
	s.emitTrack(ChangeTrackUpdated, t)
	return nil
}

// SetMasterVolume sets the master bus gain as a percentage in [0, 200].
func (s *Session) SetMasterVolume(percent int) int {
	s.lock()
	defer s.unlock()
	s.master = clampVolume(percent)
	s.out.SetMasterGain(float64(s.master) / 100)
	s.emit(Change{Kind: ChangeMaster})
	return s.master
}

func (s *Session) MasterVolume() int {
	s.lock()
	defer s.unlock()
	return s.master
}

// SeekTrack moves a track to fraction of its duration.
func (s *Session) SeekTrack(id int, fraction float64) error {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	d := t.transport.Duration()
	if d <= 0 {
		return nil
	}
	fraction = min(max(fraction, 0), 1)
	if err := t.transport.Seek(time.Duration(fraction * float64(d))); err != nil {
		return fmt.Errorf("seek %s: %w", t.file.Name, err)
	}
	t.ended = false
	s.emitTrack(ChangeTrackUpdated, t)
	return nil
}
