//go:build !((linux && cgo) || windows || darwin)

package audio

import "github.com/gopxl/beep/v2"

// AudioAvailable indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries on this platform.
const AudioAvailable = false

// silentDevice accepts the bus but never pulls from it, so tracks keep
// their position and never end.
type silentDevice struct{}

func newDevice() device {
	return silentDevice{}
}

func (silentDevice) start(beep.SampleRate, beep.Streamer) error { return nil }

func (silentDevice) close() error { return nil }
