package mixer

import (
	"time"

	"github.com/samber/lo"
)

const (
	// NoGroup marks a track as belonging to the ungrouped partition.
	NoGroup = -1

	DefaultVolume = 100
	MinVolume     = 0
	MaxVolume     = 200

	// MaxFileSize is the default size ceiling for loaded files (100 MiB).
	MaxFileSize int64 = 100 << 20

	// gainFloor is the near-silent level fades start from and end at.
	gainFloor = 0.01
)

type track struct {
	id        int
	file      FileInfo
	transport Transport

	volume  int
	muted   bool
	loop    bool
	groupID int
	playing bool
	ended   bool
	failed  bool

	// halt is the pending pause/stop issued against this track. A timer only
	// applies it if it is still the track's current halt when it fires.
	halt *pendingHalt
}

type pendingHalt struct {
	rewind bool
}

func (t *track) effectiveGain() float64 {
	if t.muted {
		return 0
	}
	return float64(t.volume) / 100
}

func (t *track) resetDefaults() {
	t.groupID = NoGroup
	t.volume = DefaultVolume
	t.muted = false
	t.loop = false
	t.transport.SetLoop(false)
}

// TrackState is an immutable snapshot of a track.
type TrackState struct {
	ID       int           `json:"id"`
	File     FileInfo      `json:"file"`
	Volume   int           `json:"volume"`
	Boosted  bool          `json:"boosted"`
	Muted    bool          `json:"muted"`
	Loop     bool          `json:"loop"`
	GroupID  *int          `json:"groupId"`
	Playing  bool          `json:"playing"`
	Failed   bool          `json:"failed"`
	Gain     float64       `json:"gain"`
	Position time.Duration `json:"position"`
	Duration time.Duration `json:"duration"`
}

func (t *track) state() TrackState {
	st := TrackState{
		ID:       t.id,
		File:     t.file,
		Volume:   t.volume,
		Boosted:  IsBoosted(t.volume),
		Muted:    t.muted,
		Loop:     t.loop,
		Playing:  t.playing,
		Failed:   t.failed,
		Gain:     t.effectiveGain(),
		Position: t.transport.Position(),
		Duration: t.transport.Duration(),
	}
	if t.groupID != NoGroup {
		gid := t.groupID
		st.GroupID = &gid
	}
	return st
}

// IsBoosted reports whether a volume percentage amplifies beyond unity.
func IsBoosted(percent int) bool {
	return percent > 100
}

func clampVolume(percent int) int {
	return min(max(percent, MinVolume), MaxVolume)
}

// trackRegistry owns the loaded tracks in insertion order.
type trackRegistry struct {
	tracks []*track
	nextID int
}

func newTrackRegistry() *trackRegistry {
	return &trackRegistry{}
}

func (r *trackRegistry) reserveID() int {
	id := r.nextID
	r.nextID++
	return id
}

func (r *trackRegistry) add(t *track) {
	r.tracks = append(r.tracks, t)
}

func (r *trackRegistry) remove(id int) *track {
	idx := lo.IndexOf(lo.Map(r.tracks, func(t *track, _ int) int { return t.id }), id)
	if idx < 0 {
		return nil
	}
	t := r.tracks[idx]
	r.tracks = append(r.tracks[:idx], r.tracks[idx+1:]...)
	return t
}

func (r *trackRegistry) find(id int) *track {
	t, ok := lo.Find(r.tracks, func(t *track) bool { return t.id == id })
	if !ok {
		return nil
	}
	return t
}

func (r *trackRegistry) all() []*track {
	return r.tracks
}

func (r *trackRegistry) len() int {
	return len(r.tracks)
}

// members returns the tracks of a partition in registry order. NoGroup
// selects the ungrouped partition.
func (r *trackRegistry) members(groupID int) []*track {
	return lo.Filter(r.tracks, func(t *track, _ int) bool { return t.groupID == groupID })
}

func (r *trackRegistry) countIn(groupID int) int {
	return lo.CountBy(r.tracks, func(t *track) bool { return t.groupID == groupID })
}

func (r *trackRegistry) anyPlaying() bool {
	return lo.SomeBy(r.tracks, func(t *track) bool { return t.playing })
}
