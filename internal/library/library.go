// Package library reconciles managed folders on disk with the catalog.
//
// It owns the full scan, the incremental filesystem event handling, online
// ingestion and every per-comic operation exposed to the API. Multi-step
// updates of one title run behind a lock keyed by that title; classification
// passes are serialized.
package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mwantia/comicshelf/internal/settings"
	"github.com/mwantia/comicshelf/pkg/cover"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/mwantia/comicshelf/pkg/log"
)

var (
	// ErrScanInProgress is returned when a scan is requested while one runs.
	ErrScanInProgress = errors.New("library: scan already in progress")
	// ErrInvalidPath is returned for paths outside the managed folders.
	ErrInvalidPath = errors.New("library: path outside managed folders")
)

// SettingsProvider supplies the managed folders.
type SettingsProvider interface {
	ManagedFolders() ([]string, error)
	Update(fn func(*settings.Settings) error) error
}

// FolderWatcher is told about managed folders as they come and go.
type FolderWatcher interface {
	Watch(root string) error
	Unwatch(root string) error
}

type Options struct {
	Store    store.CatalogStore
	Settings SettingsProvider
	Covers   *cover.Deriver
	Logger   log.LoggerService
	// Workers bounds concurrent cover derivation during a scan.
	Workers int
	Now     func() time.Time
}

type Library struct {
	store    store.CatalogStore
	settings SettingsProvider
	covers   *cover.Deriver
	log      log.LoggerService
	workers  int
	now      func() time.Time

	watchMu sync.RWMutex
	watcher FolderWatcher

	progress   Progress
	scanning   atomic.Bool
	locks      titleLocks
	classifyMu sync.Mutex
	background sync.WaitGroup
}

func New(opts Options) *Library {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Library{
		store:    opts.Store,
		settings: opts.Settings,
		covers:   opts.Covers,
		log:      opts.Logger,
		workers:  opts.Workers,
		now:      opts.Now,
	}
}

// SetWatcher attaches the watcher that follows managed folder changes.
func (l *Library) SetWatcher(w FolderWatcher) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	l.watcher = w
}

func (l *Library) folderWatcher() FolderWatcher {
	l.watchMu.RLock()
	defer l.watchMu.RUnlock()
	return l.watcher
}

// Progress returns the current scan progress.
func (l *Library) Progress() Snapshot {
	return l.progress.Snapshot()
}

// Covers returns the deriver serving cover files.
func (l *Library) Covers() *cover.Deriver {
	return l.covers
}

// Health reports whether the catalog store is reachable.
func (l *Library) Health(ctx context.Context) error {
	return l.store.Health(ctx)
}

// Wait blocks until background scans have finished.
func (l *Library) Wait() {
	l.background.Wait()
}

// TitleOf derives a comic title from an archive path.
func TitleOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (l *Library) managedFolders() ([]string, error) {
	folders, err := l.settings.ManagedFolders()
	if err != nil {
		return nil, err
	}
	for i, f := range folders {
		folders[i] = filepath.Clean(f)
	}
	return folders, nil
}

// sourceFolder returns the most specific managed folder containing path.
func sourceFolder(folders []string, path string) string {
	best := ""
	for _, f := range folders {
		if within(f, path) && len(f) > len(best) {
			best = f
		}
	}
	return best
}

// checkPath resolves path and ensures it lies below a managed folder.
func (l *Library) checkPath(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", ErrInvalidPath
	}
	folders, err := l.managedFolders()
	if err != nil {
		return "", err
	}
	if sourceFolder(folders, abs) == "" {
		return "", ErrInvalidPath
	}
	return abs, nil
}

func within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, string(filepath.Separator))+string(filepath.Separator))
}

// releaseLocal removes the covers of a comic and drops its local provenance.
// The caller holds the title lock.
func (l *Library) releaseLocal(ctx context.Context, title string) (bool, error) {
	comic, err := l.store.GetComic(ctx, title)
	if err != nil {
		return false, err
	}
	if err := l.covers.RemoveSet(comic.Covers()); err != nil {
		l.log.Warn("Unable to delete covers of '%s': %v", title, err)
	}
	if err := l.covers.Remove(title); err != nil {
		l.log.Warn("Unable to delete covers of '%s': %v", title, err)
	}
	return l.store.ReleaseLocal(ctx, title)
}
