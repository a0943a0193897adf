package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	mixbackup "github.com/gigurra/mixdeck/cmd/mixer/backup"
)

func writeBackup(t *testing.T, dir string) string {
	t.Helper()
	drums := "Drums"
	doc := mixbackup.New(time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC))
	doc.Groups = []mixbackup.Group{{Name: drums, Color: "hsl(200, 70%, 85%)"}}
	doc.AudioSettings = []mixbackup.AudioSetting{
		{Key: mixbackup.Key("kick.wav"), Name: "kick.wav", GroupName: &drums, Volume: 120, IsLoop: true},
		{Key: mixbackup.Key("bass.wav"), Name: "bass.wav", Volume: 80, IsMuted: true},
	}
	var buf bytes.Buffer
	if err := mixbackup.Encode(&buf, doc); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "audio-backup-2024-03-09.json")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunInspect(t *testing.T) {
	path := writeBackup(t, t.TempDir())

	var out bytes.Buffer
	if err := runInspect(&out, &InspectParams{File: path}); err != nil {
		t.Fatalf("runInspect() error: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Backup version 1.0", "Drums", "kick.wav", "bass.wav", "120%", "(ungrouped)"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunInspect_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(path, []byte(`{"groups": []}`), 0644)

	err := runInspect(&bytes.Buffer{}, &InspectParams{File: path})
	if !errors.Is(err, mixbackup.ErrInvalidFormat) {
		t.Errorf("runInspect() error = %v, want ErrInvalidFormat", err)
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeBackup(t, dir)
	doc, err := readDocument(path)
	if err != nil {
		t.Fatal(err)
	}

	res := Check(doc, []string{"kick.wav", "hat.wav"})
	if len(res.Matched) != 1 || res.Matched[0].Name != "kick.wav" {
		t.Errorf("Matched = %+v, want kick.wav", res.Matched)
	}
	if len(res.Missing) != 1 || res.Missing[0].Name != "bass.wav" {
		t.Errorf("Missing = %+v, want bass.wav", res.Missing)
	}
	if len(res.Unmatched) != 1 || res.Unmatched[0] != "hat.wav" {
		t.Errorf("Unmatched = %v, want hat.wav", res.Unmatched)
	}
}

func TestRunCheck(t *testing.T) {
	dir := t.TempDir()
	path := writeBackup(t, dir)
	audioDir := filepath.Join(dir, "audio")
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		t.Fatal(err)
	}
	for _, n := range []string{"kick.wav", "hat.wav", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(audioDir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	if err := runCheck(&out, &CheckParams{File: path, Paths: []string{audioDir}}); err != nil {
		t.Fatalf("runCheck() error: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "1 of 2 entries found, 1 missing") {
		t.Errorf("summary missing:\n%s", got)
	}
	if !strings.Contains(got, "- hat.wav") || strings.Contains(got, "notes.txt") {
		t.Errorf("unmatched list wrong:\n%s", got)
	}

	err := runCheck(&bytes.Buffer{}, &CheckParams{File: path, Paths: []string{audioDir}, Strict: true})
	if !errors.Is(err, errMissing) {
		t.Errorf("strict runCheck() error = %v, want errMissing", err)
	}
}
