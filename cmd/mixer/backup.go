package mixer

import (
	"fmt"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/samber/lo"
)

// ExportBackup snapshots groups and per-track settings. A member of a
// running playlist exports the loop flag it will get back when the
// playlist stops.
func (s *Session) ExportBackup() *backup.Document {
	s.lock()
	defer s.unlock()

	doc := backup.New(s.opts.Now())
	for _, g := range s.groups.all() {
		doc.Groups = append(doc.Groups, backup.Group{Name: g.name, Color: g.color})
	}
	for _, t := range s.tracks.all() {
		setting := backup.AudioSetting{
			Key:     backup.Key(t.file.Name),
			Name:    t.file.Name,
			Volume:  t.volume,
			IsMuted: t.muted,
			IsLoop:  s.userLoopLocked(t),
		}
		if g := s.groups.find(t.groupID); g != nil {
			name := g.name
			setting.GroupName = &name
		}
		doc.AudioSettings = append(doc.AudioSettings, setting)
	}
	return doc
}

func (s *Session) userLoopLocked(t *track) bool {
	for _, g := range s.groups.all() {
		if g.run == nil {
			continue
		}
		if loop, ok := g.run.wasLooping[t.id]; ok {
			return loop
		}
	}
	return t.loop
}

// ImportOptions controls ImportBackup.
type ImportOptions struct {
	// Source names where the document came from, for BackupStatus.
	Source string
	// Confirm is asked whether to proceed when the document references files
	// that are not loaded. A nil Confirm proceeds.
	Confirm func(missing []backup.Missing) bool
}

// ImportReport summarizes an import.
type ImportReport struct {
	GroupsCreated    int              `json:"groupsCreated"`
	TracksConfigured int              `json:"tracksConfigured"`
	TracksDefaulted  int              `json:"tracksDefaulted"`
	Missing          []backup.Missing `json:"missing"`
}

// BackupInfo describes the last imported backup.
type BackupInfo struct {
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Groups     int       `json:"groups"`
	Configured int       `json:"configured"`
	Total      int       `json:"total"`
}

// ImportBackup replaces all groups with the document's and applies its
// settings to the loaded tracks by derived key. Tracks without a matching
// entry are reset to defaults. Nothing is changed if the document is
// invalid, no tracks are loaded or Confirm declines.
func (s *Session) ImportBackup(doc *backup.Document, opts ImportOptions) (ImportReport, error) {
	if err := doc.Validate(); err != nil {
		s.notifyUnlocked(SeverityDanger, "Backup import failed: %v", err)
		return ImportReport{}, err
	}

	s.lock()
	if s.tracks.len() == 0 {
		s.notify(SeverityWarning, "Load audio files before importing a backup")
		s.unlock()
		return ImportReport{}, ErrNoTracksLoaded
	}
	plan := backup.NewPlan(doc, s.loadedNamesLocked())
	s.unlock()

	if len(plan.Missing) > 0 && opts.Confirm != nil && !opts.Confirm(plan.Missing) {
		return ImportReport{Missing: plan.Missing}, ErrImportAborted
	}

	s.lock()
	defer s.unlock()
	if s.tracks.len() == 0 {
		return ImportReport{}, ErrNoTracksLoaded
	}
	// Tracks may have come and gone while waiting for confirmation.
	plan = backup.NewPlan(doc, s.loadedNamesLocked())

	s.resetGroupsLocked()
	for _, g := range doc.Groups {
		s.groups.insert(g.Name, g.Color)
	}

	report := ImportReport{GroupsCreated: len(doc.Groups), Missing: plan.Missing}
	for _, t := range s.tracks.all() {
		setting, ok := plan.Lookup(t.file.Name)
		if !ok {
			t.resetDefaults()
			report.TracksDefaulted++
			continue
		}
		t.groupID = NoGroup
		if setting.GroupName != nil {
			if g := s.groups.findByName(*setting.GroupName); g != nil {
				t.groupID = g.id
			}
		}
		t.volume = clampVolume(setting.Volume)
		t.muted = setting.IsMuted
		t.loop = setting.IsLoop
		t.transport.SetLoop(t.loop)
		report.TracksConfigured++
	}
	s.applyMuteAllLocked()

	s.backupInfo = &BackupInfo{
		Source:     opts.Source,
		Groups:     report.GroupsCreated,
		Configured: report.TracksConfigured,
		Total:      s.tracks.len(),
	}
	if ts, err := doc.Time(); err == nil {
		s.backupInfo.Timestamp = ts
	}

	s.log.Info("backup imported",
		"source", opts.Source,
		"groups", report.GroupsCreated,
		"configured", report.TracksConfigured,
		"defaulted", report.TracksDefaulted,
		"missing", len(report.Missing),
	)
	s.emit(Change{Kind: ChangeImported})
	for _, g := range s.groups.all() {
		s.emitGroup(ChangeGroupCreated, g)
	}
	for _, t := range s.tracks.all() {
		s.emitTrack(ChangeTrackUpdated, t)
	}
	s.emitCounts()

	msg := fmt.Sprintf("Backup imported. %d group(s) created, %d track(s) configured", report.GroupsCreated, report.TracksConfigured)
	if len(report.Missing) > 0 {
		s.notify(SeverityWarning, "%s. %d track(s) missing", msg, len(report.Missing))
	} else {
		s.notify(SeveritySuccess, "%s", msg)
	}
	return report, nil
}

func (s *Session) loadedNamesLocked() []string {
	return lo.Map(s.tracks.all(), func(t *track, _ int) string { return t.file.Name })
}

func (s *Session) notifyUnlocked(sev Severity, format string, args ...any) {
	s.lock()
	s.notify(sev, format, args...)
	s.unlock()
}

// BackupStatus returns the last imported backup, or nil if none has been
// imported since the last factory reset.
func (s *Session) BackupStatus() *BackupInfo {
	s.lock()
	defer s.unlock()
	if s.backupInfo == nil {
		return nil
	}
	info := *s.backupInfo
	return &info
}

// FactoryReset stops every playlist, discards all groups and returns every
// track to its defaults.
func (s *Session) FactoryReset() {
	s.lock()
	defer s.unlock()
	s.resetGroupsLocked()
	for _, t := range s.tracks.all() {
		t.resetDefaults()
		s.emitTrack(ChangeTrackUpdated, t)
	}
	s.applyMuteAllLocked()
	s.backupInfo = nil
	s.log.Info("factory reset", "tracks", s.tracks.len())
	s.emit(Change{Kind: ChangeReset})
	s.emitCounts()
	s.notify(SeverityInfo, "Settings restored to factory defaults")
}
