// Package loader reads audio files from disk into a mixer session.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gigurra/mixdeck/cmd/mixer"
)

// Target receives loaded files. *mixer.Session implements it.
type Target interface {
	CheckFile(file mixer.FileInfo) error
	AddTrack(file mixer.FileInfo, data []byte) (mixer.TrackState, error)
}

// audioTypes lists the extensions the audio output can decode.
var audioTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".wave": "audio/wav",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".flac": "audio/flac",
}

// sniffLen is how much of a file DetectMIME looks at when the extension is
// not recognized.
const sniffLen = 512

// DetectMIME guesses a file's MIME type from its extension, falling back to
// content sniffing.
func DetectMIME(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		mt, _, err := mime.ParseMediaType(t)
		if err == nil {
			return mt
		}
		return t
	}
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

// IsAudioName reports whether a file name has a known audio extension.
func IsAudioName(name string) bool {
	_, ok := audioTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

// LoadFile validates a file by its metadata, then reads it and adds it to
// dst.
func LoadFile(ctx context.Context, dst Target, path string) (mixer.TrackState, error) {
	if err := ctx.Err(); err != nil {
		return mixer.TrackState{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return mixer.TrackState{}, err
	}
	if info.IsDir() {
		return mixer.TrackState{}, fmt.Errorf("%s is a directory", path)
	}

	head, err := readHead(path)
	if err != nil {
		return mixer.TrackState{}, err
	}
	file := mixer.FileInfo{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: DetectMIME(path, head),
	}
	if err := dst.CheckFile(file); err != nil {
		return mixer.TrackState{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return mixer.TrackState{}, err
	}
	file.Size = int64(len(data))
	return dst.AddTrack(file, data)
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:n], nil
}

// Result is the outcome of loading one path.
type Result struct {
	Path  string
	Track mixer.TrackState
	Err   error
}

// LoadPaths loads every given file and the files directly inside every
// given directory, in sorted order. Directory entries without an audio
// extension are skipped; explicitly named files are always attempted.
func LoadPaths(ctx context.Context, dst Target, paths []string) []Result {
	var results []Result
	for _, p := range paths {
		files, err := Expand(p)
		if err != nil {
			results = append(results, Result{Path: p, Err: err})
			continue
		}
		for _, f := range files {
			if ctx.Err() != nil {
				return results
			}
			st, err := LoadFile(ctx, dst, f)
			if err != nil {
				slog.Warn("failed to load audio", "path", f, "error", err)
			}
			results = append(results, Result{Path: f, Track: st, Err: err})
		}
	}
	return results
}

// Expand returns path itself for a file, or the audio files directly inside
// it, sorted, for a directory.
func Expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !IsAudioName(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}
