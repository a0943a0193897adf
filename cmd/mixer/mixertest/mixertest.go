// Package mixertest provides an in-memory mixer.Output for testing code
// that drives a mixer.Session.
package mixertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer"
)

// DefaultDuration is the length reported by every opened transport.
const DefaultDuration = 3 * time.Second

// ErrUnplayable is what Open returns for names registered with FailOpen.
var ErrUnplayable = errors.New("unplayable media")

// Output records opened transports by file name.
type Output struct {
	mu         sync.Mutex
	transports map[string]*Transport
	failOpen   map[string]bool
	master     float64
	resumed    int
}

func NewOutput() *Output {
	return &Output{
		transports: map[string]*Transport{},
		failOpen:   map[string]bool{},
		master:     1,
	}
}

// FailOpen makes Open fail for the named file.
func (o *Output) FailOpen(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failOpen[name] = true
}

func (o *Output) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.resumed++
	return ctx.Err()
}

func (o *Output) Open(file mixer.FileInfo, _ []byte, onEvent func(mixer.TransportEvent)) (mixer.Transport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failOpen[file.Name] {
		return nil, ErrUnplayable
	}
	t := &Transport{onEvent: onEvent, duration: DefaultDuration}
	o.transports[file.Name] = t
	return t, nil
}

func (o *Output) SetMasterGain(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.master = v
}

// MasterGain returns the last value passed to SetMasterGain.
func (o *Output) MasterGain() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.master
}

func (o *Output) Close() error { return nil }

// Transport returns the transport opened for name, or nil.
func (o *Output) Transport(name string) *Transport {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transports[name]
}

// Transport is a fake mixer.Transport whose clock only moves when told to.
type Transport struct {
	mu       sync.Mutex
	onEvent  func(mixer.TransportEvent)
	playing  bool
	loop     bool
	closed   bool
	position time.Duration
	duration time.Duration
	gain     gain
	gen      uint64
}

func (t *Transport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errors.New("transport closed")
	}
	t.playing = true
	t.gen++
	return nil
}

func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
}

func (t *Transport) Seek(pos time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = pos
	t.gen++
	return nil
}

func (t *Transport) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Transport) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *Transport) Duration() time.Duration { return t.duration }

func (t *Transport) SetLoop(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop = enabled
}

func (t *Transport) Gain() mixer.Gain { return &t.gain }

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.playing = false
	return nil
}

// Playing reports whether the transport is advancing.
func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// Looping reports the transport's loop flag.
func (t *Transport) Looping() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loop
}

// End runs the transport to its end and reports it the way a real output
// does, from another goroutine. A looping transport wraps instead.
func (t *Transport) End() {
	t.mu.Lock()
	if t.loop {
		t.position = 0
		t.mu.Unlock()
		return
	}
	t.playing = false
	t.position = t.duration
	onEvent := t.onEvent
	gen := t.gen
	t.mu.Unlock()
	done := make(chan struct{})
	go func() {
		defer close(done)
		onEvent(mixer.TransportEvent{Kind: mixer.TransportEnded, Generation: gen})
	}()
	<-done
}

type gain struct {
	mu    sync.Mutex
	value float64
}

func (g *gain) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

func (g *gain) SetValue(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.value = v
}

// RampTo jumps straight to target.
func (g *gain) RampTo(target float64, _ time.Duration) { g.SetValue(target) }

func (g *gain) CancelRamps() {}
