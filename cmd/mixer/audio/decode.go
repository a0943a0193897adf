package audio

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

type codec int

const (
	codecUnknown codec = iota
	codecMP3
	codecWAV
	codecVorbis
	codecFLAC
)

func codecFor(file mixer.FileInfo) codec {
	switch strings.ToLower(file.MIMEType) {
	case "audio/mpeg", "audio/mp3", "audio/mpeg3", "audio/x-mpeg-3":
		return codecMP3
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return codecWAV
	case "audio/ogg", "audio/vorbis", "audio/x-vorbis+ogg":
		return codecVorbis
	case "audio/flac", "audio/x-flac":
		return codecFLAC
	}
	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".mp3":
		return codecMP3
	case ".wav", ".wave":
		return codecWAV
	case ".ogg", ".oga":
		return codecVorbis
	case ".flac":
		return codecFLAC
	}
	return codecUnknown
}

// decode opens an in-memory file as a seekable stream.
func decode(file mixer.FileInfo, data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	switch codecFor(file) {
	case codecMP3:
		s, f, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode mp3 %s: %w", file.Name, err)
		}
		return s, f, nil
	case codecWAV:
		s, f, err := wav.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode wav %s: %w", file.Name, err)
		}
		return s, f, nil
	case codecVorbis:
		s, f, err := vorbis.Decode(nopCloser{bytes.NewReader(data)})
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode ogg %s: %w", file.Name, err)
		}
		return s, f, nil
	case codecFLAC:
		s, f, err := flac.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("decode flac %s: %w", file.Name, err)
		}
		return s, f, nil
	}
	return nil, beep.Format{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFormat, file.Name, file.MIMEType)
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
