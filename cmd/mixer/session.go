package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/samber/lo"
)

// Options configures a Session. Zero values fall back to DefaultOptions.
type Options struct {
	Clock    Clock
	Logger   *slog.Logger
	Renderer Renderer
	Notifier Notifier

	// FadeDuration is the length of the linear gain ramp on play, pause and stop.
	FadeDuration time.Duration
	// SettleDelay is how long pause and stop wait before halting the transport.
	SettleDelay time.Duration
	// AdvanceDelay is the pause between playlist entries.
	AdvanceDelay time.Duration
	MaxFileSize  int64

	Now  func() time.Time
	Rand *rand.Rand
}

func DefaultOptions() Options {
	return Options{
		FadeDuration: 300 * time.Millisecond,
		SettleDelay:  100 * time.Millisecond,
		AdvanceDelay: 300 * time.Millisecond,
		MaxFileSize:  MaxFileSize,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.FadeDuration <= 0 {
		o.FadeDuration = def.FadeDuration
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = def.SettleDelay
	}
	if o.AdvanceDelay <= 0 {
		o.AdvanceDelay = def.AdvanceDelay
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = def.MaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Renderer == nil {
		o.Renderer = nopRenderer{}
	}
	if o.Notifier == nil {
		o.Notifier = nopNotifier{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return o
}

// Session is one mixer: its tracks, its groups and the playback state that
// ties them to an Output. All methods are safe for concurrent use.
type Session struct {
	opts  Options
	log   *slog.Logger
	out   Output
	sched *scheduler

	mu         sync.Mutex
	tracks     *trackRegistry
	groups     *groupRegistry
	master     int
	runSeq     uint64
	haltSeq    uint64
	backupInfo *BackupInfo
	queue      []outbound
	delivering bool
	closed     bool
}

func NewSession(out Output, opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:   opts,
		log:    opts.Logger,
		out:    out,
		sched:  newScheduler(opts.Clock),
		tracks: newTrackRegistry(),
		groups: newGroupRegistry(),
		master: DefaultVolume,
	}
}

func (s *Session) lock() {
	s.mu.Lock()
}

// unlock releases the session lock, then delivers queued changes and
// notices. Collaborators may call back into the session while being
// notified; whatever they queue is delivered by the same loop, in order.
func (s *Session) unlock() {
	if s.delivering || len(s.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	for len(s.queue) > 0 {
		batch := s.queue
		s.queue = nil
		s.mu.Unlock()
		for _, o := range batch {
			if o.change != nil {
				s.opts.Renderer.Render(*o.change)
			}
			if o.notice != nil {
				s.opts.Notifier.Notify(*o.notice)
			}
		}
		s.mu.Lock()
	}
	s.delivering = false
	s.mu.Unlock()
}

func (s *Session) emit(c Change) {
	s.queue = append(s.queue, outbound{change: &c})
}

func (s *Session) emitTrack(kind ChangeKind, t *track) {
	st := t.state()
	s.emit(Change{Kind: kind, Track: &st})
}

func (s *Session) emitGroup(kind ChangeKind, g *group) {
	st := s.groupState(g)
	s.emit(Change{Kind: kind, Group: &st})
}

func (s *Session) emitCounts() {
	c := s.countsLocked()
	s.emit(Change{Kind: ChangeCounts, Counts: &c})
}

func (s *Session) notify(sev Severity, format string, args ...any) {
	s.queue = append(s.queue, outbound{notice: &Notice{Severity: sev, Message: fmt.Sprintf(format, args...)}})
}

// MaxFileSize is the largest file AddTrack accepts.
func (s *Session) MaxFileSize() int64 {
	return s.opts.MaxFileSize
}

// CheckFile validates a file before any of its data is read.
func (s *Session) CheckFile(file FileInfo) error {
	if !strings.HasPrefix(strings.ToLower(file.MIMEType), "audio/") {
		return fmt.Errorf("%w: %s (%s)", ErrInvalidFileType, file.Name, file.MIMEType)
	}
	if file.Size > s.opts.MaxFileSize {
		return fmt.Errorf("%w: %s is %s, limit is %s", ErrFileTooLarge,
			file.Name, mixutil.FormatFileSize(file.Size), mixutil.FormatFileSize(s.opts.MaxFileSize))
	}
	return nil
}

// AddTrack validates and loads a file. Media the output cannot open is
// still registered, marked failed.
func (s *Session) AddTrack(file FileInfo, data []byte) (TrackState, error) {
	if file.Size == 0 {
		file.Size = int64(len(data))
	}
	if err := s.CheckFile(file); err != nil {
		s.lock()
		s.notify(SeverityWarning, "%v", err)
		s.unlock()
		return TrackState{}, err
	}

	s.lock()
	id := s.tracks.reserveID()
	s.unlock()

	t := &track{
		id:      id,
		file:    file,
		volume:  DefaultVolume,
		groupID: NoGroup,
	}
	transport, err := s.out.Open(file, data, func(ev TransportEvent) {
		s.handleTransportEvent(id, ev)
	})
	if err != nil {
		s.log.Warn("failed to open audio", "track", id, "name", file.Name, "error", err)
		transport = &inertTransport{}
		t.failed = true
	}
	t.transport = transport
	t.transport.Gain().SetValue(t.effectiveGain())

	s.lock()
	defer s.unlock()
	s.tracks.add(t)
	s.log.Debug("track added", "track", id, "name", file.Name, "failed", t.failed)
	s.emitTrack(ChangeTrackAdded, t)
	s.emitCounts()
	if t.failed {
		s.notify(SeverityDanger, "Could not load %s", file.Name)
	}
	return t.state(), nil
}

// RemoveTrack stops a track, releases its transport and drops it from the
// registry.
func (s *Session) RemoveTrack(id int) error {
	s.lock()
	defer s.unlock()

	t := s.tracks.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	wasPlaying := t.playing
	t.halt = nil
	s.sched.cancel(trackKey(id))
	t.transport.Gain().CancelRamps()
	t.transport.Pause()
	t.playing = false
	if err := t.transport.Close(); err != nil {
		s.log.Warn("failed to close transport", "track", id, "error", err)
	}
	s.tracks.remove(id)
	s.log.Debug("track removed", "track", id, "name", t.file.Name)
	s.emitTrack(ChangeTrackRemoved, t)
	s.emitCounts()
	s.playlistTrackRemovedLocked(t, wasPlaying)
	if s.tracks.len() == 0 {
		s.emit(Change{Kind: ChangeEmpty})
	}
	return nil
}

// MarkFailed flags a track as failed. It is excluded from batch play until
// removed.
func (s *Session) MarkFailed(id int, cause error) {
	s.lock()
	defer s.unlock()
	if t := s.tracks.find(id); t != nil {
		s.markFailedLocked(t, cause)
	}
}

func (s *Session) markFailedLocked(t *track, cause error) {
	wasFailed := t.failed
	t.failed = true
	t.playing = false
	t.halt = nil
	s.log.Warn("track failed", "track", t.id, "name", t.file.Name, "error", cause)
	if wasFailed {
		return
	}
	s.emitTrack(ChangeTrackFailed, t)
	s.notify(SeverityDanger, "Error playing %s", t.file.Name)
}

func (s *Session) handleTransportEvent(id int, ev TransportEvent) {
	s.lock()
	defer s.unlock()

	t := s.tracks.find(id)
	if t == nil {
		return
	}
	if gen := t.transport.Generation(); ev.Generation != gen {
		s.log.Debug("dropping stale transport event", "track", id, "event", ev.Generation, "current", gen)
		return
	}
	switch ev.Kind {
	case TransportEnded:
		t.playing = false
		t.ended = true
		s.emitTrack(ChangeTrackStopped, t)
		s.onTrackEndedLocked(t)
	case TransportFailed:
		s.markFailedLocked(t, ev.Err)
	}
}

// Track returns a snapshot of one track.
func (s *Session) Track(id int) (TrackState, error) {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(id)
	if t == nil {
		return TrackState{}, fmt.Errorf("%w: %d", ErrTrackNotFound, id)
	}
	return t.state(), nil
}

// Group returns a snapshot of one group.
func (s *Session) Group(id int) (GroupState, error) {
	s.lock()
	defer s.unlock()
	g := s.groups.find(id)
	if g == nil {
		return GroupState{}, fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	return s.groupState(g), nil
}

// State is an immutable snapshot of a whole session.
type State struct {
	Tracks       []TrackState `json:"tracks"`
	Groups       []GroupState `json:"groups"`
	Ungrouped    int          `json:"ungrouped"`
	MasterVolume int          `json:"masterVolume"`
}

func (s *Session) Snapshot() State {
	s.lock()
	defer s.unlock()
	return State{
		Tracks:       lo.Map(s.tracks.all(), func(t *track, _ int) TrackState { return t.state() }),
		Groups:       lo.Map(s.groups.all(), func(g *group, _ int) GroupState { return s.groupState(g) }),
		Ungrouped:    s.tracks.countIn(NoGroup),
		MasterVolume: s.master,
	}
}

func (s *Session) groupState(g *group) GroupState {
	members := s.tracks.members(g.id)
	return GroupState{
		ID:           g.id,
		Name:         g.name,
		Color:        g.color,
		Collapsed:    g.collapsed,
		Mode:         g.mode,
		CurrentIndex: g.index,
		Count:        len(members),
		AllMuted:     len(members) > 0 && lo.EveryBy(members, func(t *track) bool { return t.muted }),
	}
}

func (s *Session) countsLocked() Counts {
	c := Counts{
		Ungrouped: s.tracks.countIn(NoGroup),
		Groups:    make(map[int]int, len(s.groups.all())),
	}
	for _, g := range s.groups.all() {
		c.Groups[g.id] = s.tracks.countIn(g.id)
	}
	return c
}

// Stats partitions the loaded tracks by playback status.
type Stats struct {
	All     int `json:"all"`
	Playing int `json:"playing"`
	Paused  int `json:"paused"`
	Stopped int `json:"stopped"`
	Looping int `json:"looping"`
}

func (s *Session) Stats() Stats {
	s.lock()
	defer s.unlock()
	var st Stats
	for _, t := range s.tracks.all() {
		st.All++
		switch trackStatus(t) {
		case StatusPlaying:
			st.Playing++
		case StatusPaused:
			st.Paused++
		default:
			st.Stopped++
		}
		if t.loop {
			st.Looping++
		}
	}
	return st
}

// Status is the playback status used by Stats and Filter.
type Status string

const (
	StatusAny     Status = ""
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
	StatusLooping Status = "looping"
)

func trackStatus(t *track) Status {
	switch {
	case t.playing:
		return StatusPlaying
	case !t.ended && t.transport.Position() > 0:
		return StatusPaused
	default:
		return StatusStopped
	}
}

// NowPlaying returns the playing tracks in registry order.
func (s *Session) NowPlaying() []TrackState {
	s.lock()
	defer s.unlock()
	return lo.FilterMap(s.tracks.all(), func(t *track, _ int) (TrackState, bool) {
		return t.state(), t.playing
	})
}

// Filter returns the tracks whose name contains query (case-insensitive)
// and that match status.
func (s *Session) Filter(query string, status Status) []TrackState {
	q := strings.ToLower(strings.TrimSpace(query))
	s.lock()
	defer s.unlock()
	return lo.FilterMap(s.tracks.all(), func(t *track, _ int) (TrackState, bool) {
		if q != "" && !strings.Contains(strings.ToLower(t.file.Name), q) {
			return TrackState{}, false
		}
		switch status {
		case StatusAny:
		case StatusLooping:
			if !t.loop {
				return TrackState{}, false
			}
		default:
			if trackStatus(t) != status {
				return TrackState{}, false
			}
		}
		return t.state(), true
	})
}

// Close cancels every pending action and releases all transports. The
// output itself is left to its owner.
func (s *Session) Close() error {
	s.sched.cancelAll()
	s.lock()
	defer s.unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, t := range s.tracks.all() {
		t.transport.Pause()
		if err := t.transport.Close(); err != nil {
			s.log.Warn("failed to close transport", "track", t.id, "error", err)
		}
	}
	return nil
}

// ctxErr lets blocking callers bail out before touching state.
func ctxErr(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
