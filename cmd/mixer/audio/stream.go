package audio

import (
	"errors"
	"sync"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gopxl/beep/v2"
)

// resampleQuality is the beep.Resample quality used when a file's sample
// rate differs from the output rate.
const resampleQuality = 4

var errClosed = errors.New("transport closed")

// bus sums every registered track into one stream and applies the master
// gain. It never drains, so the device keeps pulling silence when nothing
// plays.
type bus struct {
	mu     sync.Mutex
	tracks []*trackStream
	gain   float64
	buf    [][2]float64
}

func newBus() *bus {
	return &bus{gain: 1}
}

func (b *bus) Stream(samples [][2]float64) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range samples {
		samples[i] = [2]float64{}
	}
	if cap(b.buf) < len(samples) {
		b.buf = make([][2]float64, len(samples))
	}
	tmp := b.buf[:len(samples)]
	for _, t := range b.tracks {
		t.mixInto(samples, tmp)
	}
	if b.gain != 1 {
		for i := range samples {
			samples[i][0] *= b.gain
			samples[i][1] *= b.gain
		}
	}
	return len(samples), true
}

func (b *bus) Err() error {
	return nil
}

func (b *bus) add(t *trackStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tracks = append(b.tracks, t)
}

func (b *bus) remove(t *trackStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.tracks {
		if cur == t {
			b.tracks = append(b.tracks[:i], b.tracks[i+1:]...)
			return
		}
	}
}

func (b *bus) setGain(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gain = v
}

// trackStream is one decoded file on the bus. It implements mixer.Transport.
type trackStream struct {
	mu       sync.Mutex
	src      beep.StreamSeekCloser
	format   beep.Format
	rate     beep.SampleRate
	streamer beep.Streamer
	onEvent  func(mixer.TransportEvent)
	detach   func(*trackStream)

	paused bool
	loop   bool
	ended  bool
	closed bool
	gen    uint64

	gain      float64
	rampFrom  float64
	rampTo    float64
	rampLeft  int
	rampTotal int
}

func newTrackStream(src beep.StreamSeekCloser, format beep.Format, rate beep.SampleRate, onEvent func(mixer.TransportEvent)) *trackStream {
	t := &trackStream{
		src:     src,
		format:  format,
		rate:    rate,
		onEvent: onEvent,
		paused:  true,
		gain:    1,
	}
	t.resetStreamer()
	return t
}

// resetStreamer rebuilds the resampler, which buffers source samples and
// would replay stale audio after a seek.
func (t *trackStream) resetStreamer() {
	if t.format.SampleRate == t.rate {
		t.streamer = t.src
		return
	}
	t.streamer = beep.Resample(resampleQuality, t.format.SampleRate, t.rate, t.src)
}

// mixInto adds this track's next len(dst) samples into dst, using tmp as
// scratch space.
func (t *trackStream) mixInto(dst, tmp [][2]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused || t.ended || t.closed {
		return
	}
	filled := 0
	for filled < len(dst) {
		n, ok := t.streamer.Stream(tmp[filled:len(dst)])
		for i := filled; i < filled+n; i++ {
			g := t.nextGain()
			dst[i][0] += tmp[i][0] * g
			dst[i][1] += tmp[i][1] * g
		}
		filled += n
		if ok && n > 0 {
			continue
		}
		if ok {
			return
		}
		if err := t.src.Err(); err != nil {
			t.finish(mixer.TransportEvent{Kind: mixer.TransportFailed, Err: err})
			return
		}
		if !t.loop || t.src.Len() == 0 {
			t.finish(mixer.TransportEvent{Kind: mixer.TransportEnded})
			return
		}
		if err := t.src.Seek(0); err != nil {
			t.finish(mixer.TransportEvent{Kind: mixer.TransportFailed, Err: err})
			return
		}
		t.resetStreamer()
	}
}

func (t *trackStream) finish(ev mixer.TransportEvent) {
	t.ended = true
	t.paused = true
	ev.Generation = t.gen
	if t.onEvent != nil {
		go t.onEvent(ev)
	}
}

func (t *trackStream) nextGain() float64 {
	if t.rampLeft > 0 {
		t.rampLeft--
		progress := 1 - float64(t.rampLeft)/float64(t.rampTotal)
		t.gain = t.rampFrom + (t.rampTo-t.rampFrom)*progress
	}
	return t.gain
}

func (t *trackStream) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	if t.ended {
		if err := t.seekLocked(0); err != nil {
			return err
		}
	}
	t.gen++
	t.paused = false
	return nil
}

func (t *trackStream) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

func (t *trackStream) Seek(pos time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return errClosed
	}
	return t.seekLocked(pos)
}

func (t *trackStream) seekLocked(pos time.Duration) error {
	n := min(max(t.format.SampleRate.N(pos), 0), t.src.Len())
	if err := t.src.Seek(n); err != nil {
		return err
	}
	t.resetStreamer()
	t.ended = false
	t.gen++
	return nil
}

func (t *trackStream) Position() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.format.SampleRate.D(t.src.Position())
}

func (t *trackStream) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.format.SampleRate.D(t.src.Len())
}

func (t *trackStream) SetLoop(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loop = enabled
}

func (t *trackStream) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *trackStream) Gain() mixer.Gain {
	return (*trackGain)(t)
}

func (t *trackStream) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.paused = true
	detach := t.detach
	t.mu.Unlock()

	if detach != nil {
		detach(t)
	}
	return t.src.Close()
}

// trackGain exposes a track's gain with ramps advanced per output sample.
type trackGain trackStream

func (g *trackGain) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gain
}

func (g *trackGain) SetValue(v float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gain = v
	g.rampLeft = 0
}

func (g *trackGain) RampTo(target float64, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := g.rate.N(d)
	if n <= 0 {
		g.gain = target
		g.rampLeft = 0
		return
	}
	g.rampFrom = g.gain
	g.rampTo = target
	g.rampTotal = n
	g.rampLeft = n
}

func (g *trackGain) CancelRamps() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rampLeft = 0
}
