package mixer

import (
	"context"
	"time"
)

// FileInfo describes a loaded audio file. Only Name survives into backups.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

// TransportEventKind identifies facts a transport reports on its own.
type TransportEventKind int

const (
	// TransportEnded is reported when playback reaches the end of the media
	// and the transport is not looping.
	TransportEnded TransportEventKind = iota + 1
	// TransportFailed is reported when decoding or playback fails.
	TransportFailed
)

// TransportEvent is stamped with the transport's Generation at the time it
// happened. Events from before a later Play or Seek are stale.
type TransportEvent struct {
	Kind       TransportEventKind
	Err        error
	Generation uint64
}

// Gain is a track's gain parameter. Ramps are linear and run in the
// background; setting a value or cancelling drops any ramp in progress.
type Gain interface {
	Value() float64
	SetValue(v float64)
	RampTo(target float64, d time.Duration)
	CancelRamps()
}

// Transport is the playable media resource behind a track. The session is
// the only caller of its commands.
type Transport interface {
	Play() error
	Pause()
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	SetLoop(enabled bool)
	Gain() Gain
	// Generation increases on every Play and Seek.
	Generation() uint64
	Close() error
}

// Output is the shared audio output: it opens transports routed into its
// master bus and owns the master gain.
//
// Open must never invoke onEvent synchronously from a Transport method;
// events are delivered from the output's own goroutines.
type Output interface {
	Resume(ctx context.Context) error
	Open(file FileInfo, data []byte, onEvent func(TransportEvent)) (Transport, error)
	SetMasterGain(v float64)
	Close() error
}

// inertTransport stands in for media that could not be opened.
type inertTransport struct {
	gain inertGain
}

func (*inertTransport) Play() error              { return nil }
func (*inertTransport) Pause()                   {}
func (*inertTransport) Seek(time.Duration) error { return nil }
func (*inertTransport) Position() time.Duration  { return 0 }
func (*inertTransport) Duration() time.Duration  { return 0 }
func (*inertTransport) SetLoop(bool)             {}
func (t *inertTransport) Gain() Gain             { return &t.gain }
func (*inertTransport) Generation() uint64       { return 0 }
func (*inertTransport) Close() error             { return nil }

type inertGain struct{ v float64 }

func (g *inertGain) Value() float64                    { return g.v }
func (g *inertGain) SetValue(v float64)                { g.v = v }
func (g *inertGain) RampTo(v float64, _ time.Duration) { g.v = v }
func (g *inertGain) CancelRamps()                      {}
