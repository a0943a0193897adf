package mixer

import (
	"fmt"
	"strings"

	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/samber/lo"
)

// PlaylistMode governs a group's sequencer.
type PlaylistMode string

const (
	PlaylistNone       PlaylistMode = "none"
	PlaylistContinuous PlaylistMode = "continuous"
	PlaylistLoop       PlaylistMode = "loop"
)

// ParsePlaylistMode converts a string to a PlaylistMode.
func ParsePlaylistMode(s string) (PlaylistMode, error) {
	switch PlaylistMode(strings.ToLower(strings.TrimSpace(s))) {
	case PlaylistNone, "":
		return PlaylistNone, nil
	case PlaylistContinuous:
		return PlaylistContinuous, nil
	case PlaylistLoop:
		return PlaylistLoop, nil
	}
	return PlaylistNone, fmt.Errorf("unknown playlist mode %q", s)
}

type group struct {
	id        int
	name      string
	color     string
	collapsed bool
	mode      PlaylistMode
	index     int

	run *playlistRun
}

// GroupState is an immutable snapshot of a group.
type GroupState struct {
	ID           int          `json:"id"`
	Name         string       `json:"name"`
	Color        string       `json:"color"`
	Collapsed    bool         `json:"collapsed"`
	Mode         PlaylistMode `json:"playlistMode"`
	CurrentIndex int          `json:"currentPlayingIndex"`
	Count        int          `json:"count"`
	AllMuted     bool         `json:"allMuted"`
}

// groupRegistry owns the groups in creation order.
type groupRegistry struct {
	groups []*group
	nextID int
}

func newGroupRegistry() *groupRegistry {
	return &groupRegistry{}
}

func (r *groupRegistry) create(name, color string) (*group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyGroupName
	}
	return r.insert(name, color), nil
}

// insert adds a group without validating its name. Used when rebuilding
// from a backup document.
func (r *groupRegistry) insert(name, color string) *group {
	g := &group{
		id:    r.nextID,
		name:  name,
		color: color,
		mode:  PlaylistNone,
		index: -1,
	}
	r.nextID++
	r.groups = append(r.groups, g)
	return g
}

func (r *groupRegistry) remove(id int) *group {
	g := r.find(id)
	if g == nil {
		return nil
	}
	r.groups = lo.Reject(r.groups, func(g *group, _ int) bool { return g.id == id })
	return g
}

func (r *groupRegistry) find(id int) *group {
	g, ok := lo.Find(r.groups, func(g *group) bool { return g.id == id })
	if !ok {
		return nil
	}
	return g
}

func (r *groupRegistry) findByName(name string) *group {
	g, ok := lo.Find(r.groups, func(g *group) bool { return g.name == name })
	if !ok {
		return nil
	}
	return g
}

func (r *groupRegistry) all() []*group {
	return r.groups
}

// reset discards every group and restarts id assignment.
func (r *groupRegistry) reset() {
	r.groups = nil
	r.nextID = 0
}

// CreateGroup adds a group with a generated pastel color.
func (s *Session) CreateGroup(name string) (GroupState, error) {
	s.lock()
	defer s.unlock()
	g, err := s.groups.create(name, mixutil.SoftColor(s.opts.Rand))
	if err != nil {
		s.notify(SeverityWarning, "Enter a name for the group")
		return GroupState{}, err
	}
	s.log.Debug("group created", "group", g.id, "name", g.name)
	s.emitGroup(ChangeGroupCreated, g)
	s.emitCounts()
	s.notify(SeveritySuccess, "Group %s created", g.name)
	return s.groupState(g), nil
}

// DeleteGroup stops the group's playlist, moves its members to the
// ungrouped partition and removes it. Tracks are never deleted. It returns
// the number of tracks released.
func (s *Session) DeleteGroup(id int) (int, error) {
	s.lock()
	defer s.unlock()
	g := s.groups.find(id)
	if g == nil {
		return 0, fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	s.stopPlaylistLocked(g)
	members := s.tracks.members(id)
	for _, t := range members {
		t.groupID = NoGroup
		s.emitTrack(ChangeTrackUpdated, t)
	}
	s.groups.remove(id)
	s.log.Debug("group deleted", "group", id, "name", g.name, "released", len(members))
	s.emitGroup(ChangeGroupDeleted, g)
	s.emitCounts()
	s.notify(SeverityInfo, "Group %s deleted", g.name)
	return len(members), nil
}

// SetTrackGroup moves a track to a group, or to the ungrouped partition
// when groupID is nil.
func (s *Session) SetTrackGroup(trackID int, groupID *int) error {
	s.lock()
	defer s.unlock()
	t := s.tracks.find(trackID)
	if t == nil {
		return fmt.Errorf("%w: %d", ErrTrackNotFound, trackID)
	}
	target := NoGroup
	if groupID != nil {
		if s.groups.find(*groupID) == nil {
			return fmt.Errorf("%w: %d", ErrGroupNotFound, *groupID)
		}
		target = *groupID
	}
	if t.groupID == target {
		return nil
	}
	prev := s.groups.find(t.groupID)
	t.groupID = target
	s.emitTrack(ChangeTrackUpdated, t)
	if prev != nil {
		s.emitGroup(ChangeGroupUpdated, prev)
	}
	if next := s.groups.find(target); next != nil {
		s.emitGroup(ChangeGroupUpdated, next)
	}
	s.emitCounts()
	return nil
}

// GroupMembers returns a group's tracks in registry order.
func (s *Session) GroupMembers(id int) ([]TrackState, error) {
	s.lock()
	defer s.unlock()
	if s.groups.find(id) == nil {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	return lo.Map(s.tracks.members(id), func(t *track, _ int) TrackState { return t.state() }), nil
}

// UngroupedTracks returns the tracks outside every group.
func (s *Session) UngroupedTracks() []TrackState {
	s.lock()
	defer s.unlock()
	return lo.Map(s.tracks.members(NoGroup), func(t *track, _ int) TrackState { return t.state() })
}

// ToggleGroupCollapse flips a group's collapsed flag and returns it.
func (s *Session) ToggleGroupCollapse(id int) (bool, error) {
	s.lock()
	defer s.unlock()
	g := s.groups.find(id)
	if g == nil {
		return false, fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	g.collapsed = !g.collapsed
	s.emitGroup(ChangeGroupUpdated, g)
	return g.collapsed, nil
}

// ResetGroups discards every group and moves all tracks to the ungrouped
// partition.
func (s *Session) ResetGroups() {
	s.lock()
	defer s.unlock()
	s.resetGroupsLocked()
	s.emit(Change{Kind: ChangeReset})
	s.emitCounts()
}

func (s *Session) resetGroupsLocked() {
	s.stopAllPlaylistsLocked()
	for _, t := range s.tracks.all() {
		t.groupID = NoGroup
	}
	s.groups.reset()
}
