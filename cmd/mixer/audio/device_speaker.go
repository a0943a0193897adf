//go:build (linux && cgo) || windows || darwin

package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// AudioAvailable indicates whether audio playback is supported in this build.
const AudioAvailable = true

type speakerDevice struct{}

func newDevice() device {
	return speakerDevice{}
}

func (speakerDevice) start(rate beep.SampleRate, s beep.Streamer) error {
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return err
	}
	speaker.Play(s)
	return nil
}

func (speakerDevice) close() error {
	speaker.Close()
	return nil
}
