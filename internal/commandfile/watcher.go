package commandfile

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Handler receives each command with a timestamp newer than the last one seen.
type Handler func(Command)

// Watcher follows a command file and reports new commands. It watches the parent
// directory because writers replace the file by rename.
type Watcher struct {
	mu      sync.Mutex
	path    string
	watcher *fsnotify.Watcher
	last    float64
}

// NewWatcher creates a Watcher for path.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: abs, watcher: fw}, nil
}

// Run delivers the current command, if any, then every subsequent one until ctx is done.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	defer w.watcher.Close()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	slog.Info("Watcher.Run: watching command file", "path", w.path)
	w.check(handle)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.check(handle)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Watcher.Run: watch error", "error", err)
		}
	}
}

func (w *Watcher) check(handle Handler) {
	cmd, err := Read(w.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Watcher.check: unreadable command file", "error", err)
		}
		return
	}
	w.mu.Lock()
	if cmd.Timestamp <= w.last {
		w.mu.Unlock()
		return
	}
	w.last = cmd.Timestamp
	w.mu.Unlock()
	handle(cmd)
}
