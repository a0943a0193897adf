package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a dropped file must go without further writes
// before it is loaded.
const settleDelay = 250 * time.Millisecond

// Watch loads audio files created in or moved into dir until ctx is done.
// Every load result is passed to fn, which may be nil.
func Watch(ctx context.Context, dst Target, dir string, fn func(Result)) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path %s: %w", dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(absDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", absDir, err)
	}
	slog.Info("watching drop folder", "dir", absDir)

	go func() {
		defer func() { _ = watcher.Close() }()

		var mu sync.Mutex
		timers := make(map[string]*time.Timer)
		defer func() {
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		trigger := func(path string) {
			mu.Lock()
			defer mu.Unlock()
			if t, ok := timers[path]; ok {
				t.Stop()
			}
			timers[path] = time.AfterFunc(settleDelay, func() {
				mu.Lock()
				delete(timers, path)
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
				if info, err := os.Stat(path); err != nil || info.IsDir() {
					return
				}
				st, err := LoadFile(ctx, dst, path)
				if err != nil {
					slog.Warn("failed to load dropped file", "path", path, "error", err)
				} else {
					slog.Info("loaded dropped file", "path", path, "track", st.ID)
				}
				if fn != nil {
					fn(Result{Path: path, Track: st, Err: err})
				}
			})
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !IsAudioName(event.Name) {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
					trigger(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("drop folder watcher error", "error", err)
			}
		}
	}()
	return nil
}
