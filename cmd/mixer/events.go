package mixer

// Severity tags a user-facing notice.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
	SeverityInfo    Severity = "info"
)

// Notice is a short status message for the user.
type Notice struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ChangeKind identifies what a Change describes.
type ChangeKind string

const (
	ChangeTrackAdded   ChangeKind = "track_added"
	ChangeTrackRemoved ChangeKind = "track_removed"
	ChangeTrackUpdated ChangeKind = "track_updated"
	ChangeTrackStarted ChangeKind = "track_started"
	ChangeTrackStopped ChangeKind = "track_stopped"
	ChangeTrackFailed  ChangeKind = "track_failed"
	ChangeGroupCreated ChangeKind = "group_created"
	ChangeGroupDeleted ChangeKind = "group_deleted"
	ChangeGroupUpdated ChangeKind = "group_updated"
	ChangePlaylist     ChangeKind = "playlist"
	ChangeCounts       ChangeKind = "counts"
	ChangeMaster       ChangeKind = "master"
	ChangeEmpty        ChangeKind = "empty"
	ChangeReset        ChangeKind = "reset"
	ChangeImported     ChangeKind = "imported"
)

// Change is emitted to the Renderer after every state-affecting mutation.
// Track and Group carry snapshots taken when the change happened.
type Change struct {
	Kind   ChangeKind  `json:"kind"`
	Track  *TrackState `json:"track,omitempty"`
	Group  *GroupState `json:"group,omitempty"`
	Counts *Counts     `json:"counts,omitempty"`
}

// Counts holds the derived partition sizes.
type Counts struct {
	Ungrouped int         `json:"ungrouped"`
	Groups    map[int]int `json:"groups"`
}

// Renderer produces or updates the visual representation of tracks and
// groups.
type Renderer interface {
	Render(Change)
}

// Notifier receives user-facing status messages.
type Notifier interface {
	Notify(Notice)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Change)

func (f RendererFunc) Render(c Change) { f(c) }

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

type nopRenderer struct{}

func (nopRenderer) Render(Change) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}

// outbound is a queued change or notice waiting for the session lock to be
// released.
type outbound struct {
	change *Change
	notice *Notice
}
