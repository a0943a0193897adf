package mixer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"testing"
	"time"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward, firing due timers in order. Timers scheduled
// by callbacks fire too if they fall within the window.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now + d
	for {
		var due []*manualTimer
		for _, t := range c.timers {
			if !t.stopped && !t.fired && t.at <= target {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at < due[j].at })
		next := due[0]
		next.fired = true
		c.now = next.at
		c.mu.Unlock()
		next.f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type fakeGain struct {
	value   float64
	target  float64
	ramping bool
	rampDur time.Duration
}

func (g *fakeGain) Value() float64 { return g.value }

func (g *fakeGain) SetValue(v float64) {
	g.value = v
	g.ramping = false
}

func (g *fakeGain) RampTo(target float64, d time.Duration) {
	g.target = target
	g.rampDur = d
	g.ramping = true
}

func (g *fakeGain) CancelRamps() { g.ramping = false }

// level is where the gain settles once any ramp has finished.
func (g *fakeGain) level() float64 {
	if g.ramping {
		return g.target
	}
	return g.value
}

type fakeTransport struct {
	name     string
	out      *fakeOutput
	playing  bool
	loop     bool
	pos      time.Duration
	dur      time.Duration
	gain     fakeGain
	closed   bool
	playErr  error
	onEvent  func(TransportEvent)
	playHits int
	gen      uint64
}

func (t *fakeTransport) Play() error {
	if t.playErr != nil {
		return t.playErr
	}
	t.out.record("play:" + t.name)
	t.playing = true
	t.playHits++
	t.gen++
	return nil
}

func (t *fakeTransport) Pause() {
	t.playing = false
}

func (t *fakeTransport) Seek(pos time.Duration) error {
	t.pos = pos
	t.gen++
	return nil
}

func (t *fakeTransport) Generation() uint64 { return t.gen }

func (t *fakeTransport) Position() time.Duration { return t.pos }
func (t *fakeTransport) Duration() time.Duration { return t.dur }
func (t *fakeTransport) SetLoop(enabled bool)    { t.loop = enabled }
func (t *fakeTransport) Gain() Gain              { return &t.gain }

func (t *fakeTransport) Close() error {
	t.closed = true
	return nil
}

// end simulates the media reaching its end without looping.
func (t *fakeTransport) end() {
	t.playing = false
	t.pos = t.dur
	t.onEvent(TransportEvent{Kind: TransportEnded, Generation: t.gen})
}

type fakeOutput struct {
	mu         sync.Mutex
	log        []string
	transports map[string]*fakeTransport
	failOpen   map[string]bool
	resumeErr  error
	masterGain float64
}

func newFakeOutput() *fakeOutput {
	return &fakeOutput{
		transports: make(map[string]*fakeTransport),
		failOpen:   make(map[string]bool),
		masterGain: 1,
	}
}

func (o *fakeOutput) record(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.log = append(o.log, op)
}

func (o *fakeOutput) Resume(context.Context) error {
	o.record("resume")
	return o.resumeErr
}

func (o *fakeOutput) Open(file FileInfo, _ []byte, onEvent func(TransportEvent)) (Transport, error) {
	if o.failOpen[file.Name] {
		return nil, errors.New("corrupt media")
	}
	t := &fakeTransport{name: file.Name, out: o, dur: 10 * time.Second, onEvent: onEvent}
	o.transports[file.Name] = t
	return t, nil
}

func (o *fakeOutput) SetMasterGain(v float64) { o.masterGain = v }
func (o *fakeOutput) Close() error            { return nil }

// recorder collects every change and notice a session emits.
type recorder struct {
	mu      sync.Mutex
	changes []Change
	notices []Notice
}

func (r *recorder) Render(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) count(kind ChangeKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) lastNotice() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

type harness struct {
	t     *testing.T
	s     *Session
	out   *fakeOutput
	clock *manualClock
	rec   *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		out:   newFakeOutput(),
		clock: &manualClock{},
		rec:   &recorder{},
	}
	h.s = NewSession(h.out, Options{
		Clock:    h.clock,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Renderer: h.rec,
		Notifier: h.rec,
		Now:      func() time.Time { return time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC) },
	})
	t.Cleanup(func() { _ = h.s.Close() })
	return h
}

// load adds audio tracks by name and returns their ids.
func (h *harness) load(names ...string) []int {
	h.t.Helper()
	var ids []int
	for _, name := range names {
		st, err := h.s.AddTrack(FileInfo{Name: name, Size: 1024, MIMEType: "audio/wav"}, []byte("data"))
		if err != nil {
			h.t.Fatalf("AddTrack(%q) error: %v", name, err)
		}
		ids = append(ids, st.ID)
	}
	return ids
}

func (h *harness) group(name string, members ...int) int {
	h.t.Helper()
	g, err := h.s.CreateGroup(name)
	if err != nil {
		h.t.Fatalf("CreateGroup(%q) error: %v", name, err)
	}
	for _, id := range members {
		gid := g.ID
		if err := h.s.SetTrackGroup(id, &gid); err != nil {
			h.t.Fatalf("SetTrackGroup(%d, %d) error: %v", id, gid, err)
		}
	}
	return g.ID
}

func (h *harness) transport(name string) *fakeTransport {
	h.t.Helper()
	tr, ok := h.out.transports[name]
	if !ok {
		h.t.Fatalf("no transport for %q", name)
	}
	return tr
}

func (h *harness) track(id int) TrackState {
	h.t.Helper()
	st, err := h.s.Track(id)
	if err != nil {
		h.t.Fatalf("Track(%d) error: %v", id, err)
	}
	return st
}

func (h *harness) groupState(id int) GroupState {
	h.t.Helper()
	st, err := h.s.Group(id)
	if err != nil {
		h.t.Fatalf("Group(%d) error: %v", id, err)
	}
	return st
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
