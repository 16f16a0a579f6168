package watcher

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// LocalSource lists and reads files directly under a directory, matching
// only names that satisfy one of patterns (shell glob syntax, e.g.
// "*.txt"). An empty pattern list, or a list containing "*", matches
// everything.
type LocalSource struct {
	dir      string
	patterns []string
}

// NewLocalSource builds a LocalSource rooted at dir, creating it if absent.
func NewLocalSource(dir string, patterns []string) (*LocalSource, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("watcher: create watch directory %s: %w", dir, err)
	}
	return &LocalSource{dir: dir, patterns: patterns}, nil
}

func (s *LocalSource) List(_ context.Context) ([]Object, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("watcher: list %s: %w", s.dir, err)
	}

	var objects []Object
	for _, entry := range entries {
		if entry.IsDir() || !matchesPattern(entry.Name(), s.patterns) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		objects = append(objects, Object{
			Key:         filepath.Join(s.dir, entry.Name()),
			Name:        entry.Name(),
			Fingerprint: info.ModTime().UTC().Format(time.RFC3339Nano),
		})
	}
	return objects, nil
}

func (s *LocalSource) Read(_ context.Context, key string) ([]byte, string, error) {
	data, err := os.ReadFile(key)
	if err != nil {
		return nil, "", fmt.Errorf("watcher: read %s: %w", key, err)
	}
	return data, mime.TypeByExtension(filepath.Ext(key)), nil
}

func matchesPattern(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// RunLocal watches dir with fsnotify and runs w.Scan, debounced, whenever a
// file is created or written, plus on a periodic fallback interval in case
// an event is missed (network filesystems, editors that write via a
// rename dance fsnotify doesn't always catch cleanly). It returns nil when
// ctx is cancelled.
func RunLocal(ctx context.Context, w *Watcher, dir string, fallbackInterval time.Duration) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", dir, err)
	}

	scan := func() {
		if err := w.Scan(ctx); err != nil {
			w.log.WithError(err).Error("watcher: scan failed")
		}
	}
	scan()

	const debounce = 200 * time.Millisecond
	var timer *time.Timer

	fallback := time.NewTicker(fallbackInterval)
	defer fallback.Stop()

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, scan)
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Error("watcher: fsnotify error")
		case <-fallback.C:
			scan()
		}
	}
}
