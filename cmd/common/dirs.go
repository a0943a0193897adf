package common

import (
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

func CacheDir() string {
	return filepath.Join(cacheHome(), "mixdeck")
}

// LogDir is where commands that own the terminal write their logs.
func LogDir() string {
	return filepath.Join(CacheDir(), "logs")
}

// LogFile returns a size-rotated log writer for LogDir()/name.
func LogFile(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(LogDir(), name),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}

// https://specifications.freedesktop.org/basedir/latest/#variables
func cacheHome() string {
	dir := os.Getenv("XDG_CACHE_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".cache")
	}
	return dir
}
