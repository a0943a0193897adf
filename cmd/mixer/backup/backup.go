// Package backup encodes and decodes mixer backup documents. A backup holds
// configuration only: groups and per-file settings keyed by file name, never
// audio data.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/lo"
)

const Version = "1.0"

// TimestampLayout is ISO-8601 with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

var ErrInvalidFormat = errors.New("invalid backup format")

type Group struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type AudioSetting struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	GroupName *string `json:"groupName"`
	Volume    int     `json:"volume"`
	IsMuted   bool    `json:"isMuted"`
	IsLoop    bool    `json:"isLoop"`
}

type Document struct {
	Version       string         `json:"version"`
	Timestamp     string         `json:"timestamp"`
	Groups        []Group        `json:"groups"`
	AudioSettings []AudioSetting `json:"audioSettings"`
}

// New returns an empty document stamped with now.
func New(now time.Time) *Document {
	return &Document{
		Version:       Version,
		Timestamp:     now.UTC().Format(TimestampLayout),
		Groups:        []Group{},
		AudioSettings: []AudioSetting{},
	}
}

// Key derives the identity used to match settings to files across
// sessions: the name followed by its lower-cased extension. Names without
// a dot use the whole name as extension. Keys are not unique.
func Key(name string) string {
	ext := name
	if i := strings.LastIndex(name, "."); i >= 0 {
		ext = name[i+1:]
	}
	return name + "_" + strings.ToLower(ext)
}

// Time parses the document timestamp.
func (d *Document) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, d.Timestamp)
}

// Validate checks the fields an import depends on.
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: empty document", ErrInvalidFormat)
	}
	if d.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidFormat)
	}
	if d.Groups == nil {
		return fmt.Errorf("%w: missing groups", ErrInvalidFormat)
	}
	if d.AudioSettings == nil {
		return fmt.Errorf("%w: missing audioSettings", ErrInvalidFormat)
	}
	return nil
}

// rawDocument keeps the required fields as raw JSON so that their presence
// and type can be checked before decoding.
type rawDocument struct {
	Version       json.RawMessage `json:"version"`
	Timestamp     string          `json:"timestamp"`
	Groups        json.RawMessage `json:"groups"`
	AudioSettings json.RawMessage `json:"audioSettings"`
}

// Decode reads a document and validates its shape.
func Decode(r io.Reader) (*Document, error) {
	var raw rawDocument
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	doc := &Document{Timestamp: raw.Timestamp}
	if len(raw.Version) == 0 {
		return nil, fmt.Errorf("%w: missing version", ErrInvalidFormat)
	}
	if err := json.Unmarshal(raw.Version, &doc.Version); err != nil {
		return nil, fmt.Errorf("%w: version must be a string", ErrInvalidFormat)
	}
	if err := decodeArray(raw.Groups, &doc.Groups); err != nil {
		return nil, fmt.Errorf("%w: groups: %v", ErrInvalidFormat, err)
	}
	if err := decodeArray(raw.AudioSettings, &doc.AudioSettings); err != nil {
		return nil, fmt.Errorf("%w: audioSettings: %v", ErrInvalidFormat, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeArray[T any](raw json.RawMessage, dst *[]T) error {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return errors.New("missing")
	}
	if !strings.HasPrefix(s, "[") {
		return errors.New("not an array")
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	if out == nil {
		out = []T{}
	}
	*dst = out
	return nil
}

// Encode writes a document as two-space indented JSON.
func Encode(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// FileName is the conventional download name for a backup taken at t.
func FileName(t time.Time) string {
	return "audio-backup-" + t.UTC().Format(time.DateOnly) + ".json"
}

// Missing is a backup entry with no loaded file to apply it to.
type Missing struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Plan is the reconciliation of a document against a set of loaded file
// names.
type Plan struct {
	Missing []Missing

	byKey map[string]AudioSetting
}

// NewPlan matches a document against the loaded file names.
func NewPlan(doc *Document, loadedNames []string) *Plan {
	loaded := lo.SliceToMap(loadedNames, func(name string) (string, struct{}) {
		return Key(name), struct{}{}
	})
	p := &Plan{byKey: make(map[string]AudioSetting, len(doc.AudioSettings))}
	for _, s := range doc.AudioSettings {
		if _, ok := p.byKey[s.Key]; !ok {
			p.byKey[s.Key] = s
		}
		if _, ok := loaded[s.Key]; !ok {
			p.Missing = append(p.Missing, Missing{Key: s.Key, Name: s.Name})
		}
	}
	return p
}

// Lookup returns the first setting whose key matches a loaded file name.
func (p *Plan) Lookup(name string) (AudioSetting, bool) {
	s, ok := p.byKey[Key(name)]
	return s, ok
}

// MissingNames lists the file names of the missing entries.
func (p *Plan) MissingNames() []string {
	return lo.Map(p.Missing, func(m Missing, _ int) string { return m.Name })
}
