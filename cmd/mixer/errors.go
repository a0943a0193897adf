package mixer

import "errors"

var (
	ErrInvalidFileType = errors.New("not an audio file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrEmptyGroupName  = errors.New("group name is empty")
	ErrTrackNotFound   = errors.New("track not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrEmptyGroup      = errors.New("group has no playable tracks")
	ErrNoTracksLoaded  = errors.New("no tracks loaded, load audio before importing a backup")
	ErrImportAborted   = errors.New("import aborted")
)
