// Package watcher turns fsnotify notifications below the managed folders into
// settled archive events.
package watcher

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mwantia/comicshelf/pkg/archive"
	"github.com/mwantia/comicshelf/pkg/log"
)

const minTick = 10 * time.Millisecond

// Watcher watches every directory below its roots. fsnotify is not recursive,
// so directories are added as they appear.
type Watcher struct {
	log   log.LoggerService
	delay time.Duration

	fs     *fsnotify.Watcher
	events chan Event
	quit   chan struct{}
	done   chan struct{}

	mutex    sync.Mutex
	dirs     map[string]struct{}
	debounce *Debouncer

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(delay time.Duration, logger log.LoggerService) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Watcher{
		log:      logger,
		delay:    delay,
		fs:       fw,
		events:   make(chan Event, 64),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		dirs:     make(map[string]struct{}),
		debounce: NewDebouncer(delay),
	}, nil
}

// Events delivers settled events. It is closed by Stop.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start launches the event loop.
func (w *Watcher) Start() {
	w.startOnce.Do(func() {
		go w.loop()
	})
}

// Stop closes the fsnotify watcher and waits for the event loop to exit.
// Unsettled events are dropped.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
		w.fs.Close()
		w.startOnce.Do(func() { close(w.done) })
		<-w.done
		close(w.events)
	})
}

// Watch adds root and every directory below it.
func (w *Watcher) Watch(root string) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("watch root is not a directory: " + root)
	}
	w.addTree(root, nil)
	w.log.Info("Watching '%s'", root)
	return nil
}

// Unwatch removes root and every directory below it.
func (w *Watcher) Unwatch(root string) error {
	root = filepath.Clean(root)
	w.mutex.Lock()
	defer w.mutex.Unlock()

	for dir := range w.dirs {
		if within(root, dir) {
			delete(w.dirs, dir)
			if err := w.fs.Remove(dir); err != nil {
				w.log.Debug("Unable to remove watch for '%s': %v", dir, err)
			}
		}
	}
	w.log.Info("Stopped watching '%s'", root)
	return nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return len(w.dirs)
}

func (w *Watcher) loop() {
	defer close(w.done)

	tick := w.delay / 4
	if tick < minTick {
		tick = minTick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.observe(event, time.Now())

		case now := <-ticker.C:
			w.mutex.Lock()
			due := w.debounce.Due(now)
			w.mutex.Unlock()

			for _, ev := range due {
				select {
				case w.events <- ev:
				case <-w.quit:
					return
				}
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("Watch error: %v", err)
		}
	}
}

func (w *Watcher) observe(event fsnotify.Event, now time.Time) {
	path := filepath.Clean(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			w.mutex.Lock()
			paired := w.debounce.Create(path, true, now)
			w.mutex.Unlock()

			// A moved-in directory relocates as a whole; anything else is
			// reported archive by archive.
			var found []string
			if paired {
				w.addTree(path, nil)
			} else {
				w.addTree(path, &found)
			}
			w.mutex.Lock()
			for _, archivePath := range found {
				w.debounce.Create(archivePath, false, now)
			}
			w.mutex.Unlock()
			return
		}
		if archive.IsArchive(path) {
			w.mutex.Lock()
			w.debounce.Create(path, false, now)
			w.mutex.Unlock()
		}

	case event.Has(fsnotify.Write):
		if archive.IsArchive(path) {
			w.mutex.Lock()
			w.debounce.Write(path, now)
			w.mutex.Unlock()
		}

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mutex.Lock()
		defer w.mutex.Unlock()

		dir := w.forgetTree(path)
		if !dir && !archive.IsArchive(path) {
			return
		}
		if event.Has(fsnotify.Rename) {
			w.debounce.Rename(path, dir, now)
		} else {
			w.debounce.Remove(path, dir, now)
		}
	}
}

// addTree watches dir and its subdirectories. When found is non-nil the
// archives met along the way are appended to it.
func (w *Watcher) addTree(root string, found *[]string) {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Debug("Skipping '%s': %v", p, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			w.mutex.Lock()
			_, seen := w.dirs[p]
			w.dirs[p] = struct{}{}
			w.mutex.Unlock()
			if !seen {
				if err := w.fs.Add(p); err != nil {
					w.log.Warn("Unable to watch '%s': %v", p, err)
				}
			}
			return nil
		}
		if found != nil && archive.IsArchive(p) {
			*found = append(*found, p)
		}
		return nil
	})
	if err != nil {
		w.log.Warn("Unable to walk '%s': %v", root, err)
	}
}

// forgetTree drops tracked directories at or below path and reports whether
// path itself was a tracked directory. The caller holds the mutex.
func (w *Watcher) forgetTree(path string) bool {
	_, isDir := w.dirs[path]
	if !isDir {
		return false
	}
	for dir := range w.dirs {
		if within(path, dir) {
			delete(w.dirs, dir)
			// Renamed directories keep their inotify watch under the new name.
			_ = w.fs.Remove(dir)
		}
	}
	return true
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}
