// Package audio renders mixer tracks through beep. Files are decoded from
// memory, resampled to the output rate and summed on a master bus that is
// played on the system speaker.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gopxl/beep/v2"
)

const DefaultSampleRate = beep.SampleRate(44100)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// device plays a streamer on some sink.
type device interface {
	start(rate beep.SampleRate, s beep.Streamer) error
	close() error
}

// Output implements mixer.Output.
type Output struct {
	mu      sync.Mutex
	rate    beep.SampleRate
	bus     *bus
	dev     device
	started bool
	closed  bool
}

// New creates an output at the given sample rate. The device is not opened
// until Resume.
func New(rate beep.SampleRate) *Output {
	return newOutput(rate, newDevice())
}

func newOutput(rate beep.SampleRate, dev device) *Output {
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &Output{
		rate: rate,
		bus:  newBus(),
		dev:  dev,
	}
}

// Resume opens the device and starts the master bus. Calling it again is a
// no-op.
func (o *Output) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}
	if o.closed {
		return errors.New("audio output closed")
	}
	if err := o.dev.start(o.rate, o.bus); err != nil {
		return err
	}
	o.started = true
	slog.Debug("audio output started", "sampleRate", int(o.rate), "device", AudioAvailable)
	return nil
}

func (o *Output) Open(file mixer.FileInfo, data []byte, onEvent func(mixer.TransportEvent)) (mixer.Transport, error) {
	src, format, err := decode(file, data)
	if err != nil {
		return nil, err
	}
	t := newTrackStream(src, format, o.rate, onEvent)
	t.detach = o.bus.remove
	o.bus.add(t)
	return t, nil
}

func (o *Output) SetMasterGain(v float64) {
	o.bus.setGain(v)
}

func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	if !o.started {
		return nil
	}
	return o.dev.close()
}
