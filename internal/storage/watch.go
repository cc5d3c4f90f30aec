package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long the database file must stay quiet before
// a change is reported.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watch reports changes to the SQLite file at path (and its journal files)
// by calling onChange once per burst of writes. It returns after the watcher
// is set up; watching stops when ctx is done. onChange runs on the watcher
// goroutine and never after ctx is done; the returned channel closes once the
// watcher has stopped.
func Watch(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, onChange func()) (<-chan struct{}, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: SQLite replaces and recreates journal files.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Close()
		timer := time.NewTimer(debounce)
		timer.Stop()
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				if ctx.Err() != nil {
					return
				}
				onChange()
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(ev.Name, abs) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				timer.Reset(debounce)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("credential store watch error", "path", abs, "error", err)
			}
		}
	}()
	return done, nil
}
