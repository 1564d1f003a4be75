package devserver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// skipDirs are never watched.
var skipDirs = []string{".git", "node_modules", "elm-stuff"}

// Watcher reports source changes in batches. A batch is delivered once no
// new event arrived for the debounce period.
type Watcher struct {
	root     string
	skip     []string
	debounce time.Duration
	onBatch  func([]string)

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	stopped bool
}

// NewWatcher watches root recursively. Directories in skip, given as absolute
// paths, are ignored along with .git and node_modules.
func NewWatcher(root string, skip []string, debounce time.Duration, onBatch func([]string)) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:     root,
		debounce: debounce,
		onBatch:  onBatch,
		fsw:      fsw,
		pending:  map[string]struct{}{},
	}
	for _, s := range skip {
		if abs, err := filepath.Abs(s); err == nil {
			w.skip = append(w.skip, abs)
		}
	}

	if err := w.addTree(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run dispatches events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(evt)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("File watcher error")
		}
	}
}

func (w *Watcher) handle(evt fsnotify.Event) {
	if evt.Op == fsnotify.Chmod || w.skipped(evt.Name) {
		return
	}

	if evt.Has(fsnotify.Create) {
		if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
			if err := w.addTree(evt.Name); err != nil {
				log.Warn().Err(err).Str("dir", evt.Name).Msg("Failed to watch directory")
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, evt.Name)
	if err != nil {
		return
	}

	log.Debug().Str("path", rel).Str("op", evt.Op.String()).Msg("Source changed")

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	w.startTimer()
}

// startTimer starts or restarts the debounce timer
// Must be called with lock held
func (w *Watcher) startTimer() {
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.stopped || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(w.pending))
	for p := range w.pending {
		batch = append(batch, p)
	}
	clear(w.pending)
	w.timer = nil
	w.mu.Unlock()

	slices.Sort(batch)
	w.onBatch(batch)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	_ = w.fsw.Close()
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// directories can vanish between the event and the walk
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && w.skipped(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// skipped reports whether p is inside an ignored directory.
func (w *Watcher) skipped(p string) bool {
	for _, s := range w.skip {
		if p == s || strings.HasPrefix(p, s+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(skipDirs, part) {
			return true
		}
	}
	return false
}
