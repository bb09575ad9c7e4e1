package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/mwantia/comicshelf/internal/settings"
	"github.com/mwantia/comicshelf/pkg/db/models"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

// FolderSpec describes a folder to create.
type FolderSpec struct {
	Name         string   `json:"name"`
	Auto         bool     `json:"auto"`
	NameIncludes []string `json:"name_includes"`
	TagIncludes  []string `json:"tag_includes"`
}

func (l *Library) Folders(ctx context.Context) ([]models.Folder, error) {
	return l.store.ListFolders(ctx)
}

func (l *Library) CreateFolder(ctx context.Context, spec FolderSpec) (*models.Folder, error) {
	folder := &models.Folder{
		Name:         spec.Name,
		Auto:         spec.Auto,
		NameIncludes: spec.NameIncludes,
		TagIncludes:  spec.TagIncludes,
	}
	if err := l.store.CreateFolder(ctx, folder); err != nil {
		return nil, err
	}
	if err := l.Classify(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}

func (l *Library) UpdateFolder(ctx context.Context, name string, patch store.FolderPatch) (*models.Folder, error) {
	folder, err := l.store.UpdateFolder(ctx, name, patch)
	if err != nil {
		return nil, err
	}
	if err := l.Classify(ctx); err != nil {
		return nil, err
	}
	return folder, nil
}

func (l *Library) DeleteFolder(ctx context.Context, name string) error {
	if err := l.store.DeleteFolder(ctx, name); err != nil {
		return err
	}
	return l.Classify(ctx)
}

// ManagedFolders returns the folders scanned and watched by the library.
func (l *Library) ManagedFolders() ([]string, error) {
	return l.managedFolders()
}

// AddManagedFolder starts managing dir: it is saved, watched and scanned in
// the background. It reports false when dir was already managed.
func (l *Library) AddManagedFolder(ctx context.Context, dir string) (bool, error) {
	dir, err := cleanDir(dir)
	if err != nil {
		return false, err
	}

	added := false
	err = l.settings.Update(func(s *settings.Settings) error {
		if slices.Contains(s.ManagedFolders, dir) {
			return nil
		}
		s.ManagedFolders = append(s.ManagedFolders, dir)
		added = true
		return nil
	})
	if err != nil || !added {
		return false, err
	}
	l.log.Info("Managing '%s'", dir)

	if w := l.folderWatcher(); w != nil {
		if err := w.Watch(dir); err != nil {
			l.log.Warn("Unable to watch '%s': %v", dir, err)
		}
	}
	if err := l.StartScan(ctx, dir); err != nil {
		l.log.Warn("Not scanning '%s' now: %v", dir, err)
	}
	return true, nil
}

// RemoveManagedFolder stops managing dir and releases every comic sourced
// from it. It returns how many comics were affected.
func (l *Library) RemoveManagedFolder(ctx context.Context, dir string) (int, error) {
	dir = filepath.Clean(dir)

	found := false
	err := l.settings.Update(func(s *settings.Settings) error {
		kept := s.ManagedFolders[:0]
		for _, f := range s.ManagedFolders {
			if filepath.Clean(f) == dir {
				found = true
				continue
			}
			kept = append(kept, f)
		}
		s.ManagedFolders = kept
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("managed folder '%s': %w", dir, store.ErrNotFound)
	}

	if w := l.folderWatcher(); w != nil {
		if err := w.Unwatch(dir); err != nil {
			l.log.Warn("Unable to unwatch '%s': %v", dir, err)
		}
	}

	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, comic := range comics {
		source := ""
		if comic.LocalSourceFolder != nil {
			source = *comic.LocalSourceFolder
		}
		if !within(dir, source) && !within(dir, *comic.LocalPath) {
			continue
		}
		if err := l.releaseTitle(ctx, comic.Title); err != nil {
			return released, err
		}
		released++
	}
	l.log.Info("Stopped managing '%s', released %d comic(s)", dir, released)
	return released, nil
}

func (l *Library) releaseTitle(ctx context.Context, title string) error {
	unlock := l.locks.Lock(title)
	defer unlock()

	_, err := l.releaseLocal(ctx, title)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// RelocateFolder replaces the managed folder oldDir with newDir and rewrites
// the paths of every comic below it. It returns how many comics moved.
func (l *Library) RelocateFolder(ctx context.Context, oldDir, newDir string) (int, error) {
	oldDir = filepath.Clean(oldDir)
	newDir, err := cleanDir(newDir)
	if err != nil {
		return 0, err
	}

	found := false
	err = l.settings.Update(func(s *settings.Settings) error {
		for i, f := range s.ManagedFolders {
			if filepath.Clean(f) == oldDir {
				s.ManagedFolders[i] = newDir
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("managed folder '%s': %w", oldDir, store.ErrNotFound)
	}

	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return 0, err
	}
	var moves []store.LocalMove
	for _, comic := range comics {
		if !within(oldDir, *comic.LocalPath) {
			continue
		}
		rel, err := filepath.Rel(oldDir, *comic.LocalPath)
		if err != nil {
			continue
		}
		source := newDir
		if comic.LocalSourceFolder != nil && filepath.Clean(*comic.LocalSourceFolder) != oldDir {
			source = *comic.LocalSourceFolder
		}
		moves = append(moves, store.LocalMove{
			Title:        comic.Title,
			Path:         filepath.Join(newDir, rel),
			SourceFolder: source,
		})
	}

	if len(moves) > 0 {
		titles := make([]string, 0, len(moves))
		for _, m := range moves {
			titles = append(titles, m.Title)
		}
		unlock := l.locks.Lock(titles...)
		err := l.store.RelocateLocal(ctx, moves)
		unlock()
		if err != nil {
			return 0, err
		}
	}

	if w := l.folderWatcher(); w != nil {
		if err := w.Unwatch(oldDir); err != nil {
			l.log.Warn("Unable to unwatch '%s': %v", oldDir, err)
		}
		if err := w.Watch(newDir); err != nil {
			l.log.Warn("Unable to watch '%s': %v", newDir, err)
		}
	}
	l.log.Info("Relocated '%s' to '%s', %d comic(s) updated", oldDir, newDir, len(moves))
	return len(moves), nil
}

func cleanDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("empty folder: %w", ErrInvalidPath)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%s: %w", dir, ErrInvalidPath)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory: %w", abs, ErrInvalidPath)
	}
	return abs, nil
}
