package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mwantia/comicshelf/internal/watcher"
	"github.com/mwantia/comicshelf/pkg/archive"
	"github.com/mwantia/comicshelf/pkg/db/models"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

// HandleEvent applies one settled filesystem event. Failures are logged and
// returned; the event is not retried.
func (l *Library) HandleEvent(ctx context.Context, ev watcher.Event) error {
	var err error
	switch {
	case ev.Op == watcher.Created && !ev.Dir:
		err = l.HandleCreated(ctx, ev.Path)
	case ev.Op == watcher.Deleted && ev.Dir:
		err = l.HandleDirDeleted(ctx, ev.Path)
	case ev.Op == watcher.Deleted:
		err = l.HandleDeleted(ctx, ev.Path)
	case ev.Op == watcher.Moved && ev.Dir:
		err = l.HandleDirMoved(ctx, ev.OldPath, ev.Path)
	case ev.Op == watcher.Moved:
		err = l.HandleMoved(ctx, ev.OldPath, ev.Path)
	default:
		return nil
	}
	if err != nil {
		l.log.Warn("Dropping %s event for '%s': %v", ev.Op, ev.Path, err)
	}
	return err
}

// HandleCreated adds or merges the archive at path, derives its covers and
// reclassifies the catalog.
func (l *Library) HandleCreated(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if !archive.IsArchive(path) {
		return nil
	}
	folders, err := l.managedFolders()
	if err != nil {
		return err
	}
	source := sourceFolder(folders, path)
	if source == "" {
		return fmt.Errorf("%s: %w", path, ErrInvalidPath)
	}

	title := TitleOf(path)
	res, err := l.addLocal(ctx, title, path, source)
	if err != nil {
		return err
	}
	l.log.Info("Created '%s' (%s)", title, res)

	if _, err := l.deriveCovers(ctx, title, path); err != nil {
		return err
	}
	return l.Classify(ctx)
}

// HandleDeleted releases the local provenance of the comic stored at path.
// A path that exists again by the time the event is handled is left alone.
func (l *Library) HandleDeleted(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err == nil {
		l.log.Debug("'%s' exists again, keeping its comic", path)
		return nil
	}
	comic, err := l.store.FindComicByPath(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		l.log.Debug("No comic recorded at '%s'", path)
		return nil
	}
	if err != nil {
		return err
	}

	unlock := l.locks.Lock(comic.Title)
	defer unlock()

	deleted, err := l.releaseLocal(ctx, comic.Title)
	if err != nil {
		return err
	}
	if deleted {
		l.log.Info("Deleted '%s'", comic.Title)
	} else {
		l.log.Info("Cleared local file of '%s', online record kept", comic.Title)
	}
	return nil
}

// HandleMoved follows an archive from oldPath to newPath. The title follows
// the file name, so a changed base name renames the comic, its covers and
// every tag and folder row in one step.
func (l *Library) HandleMoved(ctx context.Context, oldPath, newPath string) error {
	oldPath, newPath = filepath.Clean(oldPath), filepath.Clean(newPath)

	comic, err := l.store.FindComicByPath(ctx, oldPath)
	if errors.Is(err, store.ErrNotFound) {
		return l.HandleCreated(ctx, newPath)
	}
	if err != nil {
		return err
	}

	folders, err := l.managedFolders()
	if err != nil {
		return err
	}
	source := sourceFolder(folders, newPath)
	if source == "" || !archive.IsArchive(newPath) {
		return l.HandleDeleted(ctx, oldPath)
	}

	oldTitle, newTitle := comic.Title, TitleOf(newPath)
	if err := l.renameLocal(ctx, oldTitle, newTitle, newPath, source); err != nil {
		if errors.Is(err, store.ErrConflict) {
			if relErr := l.HandleDeleted(ctx, oldPath); relErr != nil {
				return relErr
			}
		}
		return err
	}
	l.log.Info("Moved '%s' to '%s'", oldTitle, newPath)

	if _, err := l.deriveCovers(ctx, newTitle, newPath); err != nil {
		return err
	}
	return l.Classify(ctx)
}

func (l *Library) renameLocal(ctx context.Context, oldTitle, newTitle, newPath, source string) error {
	unlock := l.locks.Lock(oldTitle, newTitle)
	defer unlock()

	comic, err := l.store.GetComic(ctx, oldTitle)
	if err != nil {
		return err
	}
	local := models.LocalInfo{Path: newPath, SourceFolder: source, Covers: comic.Covers()}

	if oldTitle == newTitle {
		return l.store.RenameComic(ctx, oldTitle, newTitle, local)
	}

	target, err := l.store.GetComic(ctx, newTitle)
	switch {
	case err == nil && target.HasLocal():
		return fmt.Errorf("comic '%s' already has a local file: %w", newTitle, store.ErrConflict)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return err
	}

	if local.Covers != nil {
		renamed, err := l.covers.Rename(oldTitle, newTitle)
		if err != nil {
			l.log.Warn("Unable to rename covers of '%s': %v", oldTitle, err)
			local.Covers = nil
		} else {
			local.Covers = &renamed
		}
	}

	if err := l.store.RenameComic(ctx, oldTitle, newTitle, local); err != nil {
		if local.Covers != nil {
			if _, rbErr := l.covers.Rename(newTitle, oldTitle); rbErr != nil {
				l.log.Warn("Unable to restore covers of '%s': %v", oldTitle, rbErr)
			}
		}
		return err
	}
	return nil
}

// HandleDirDeleted releases every comic stored below dir.
func (l *Library) HandleDirDeleted(ctx context.Context, dir string) error {
	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, comic := range comics {
		if within(dir, *comic.LocalPath) {
			errs = append(errs, l.HandleDeleted(ctx, *comic.LocalPath))
		}
	}
	return errors.Join(errs...)
}

// HandleDirMoved rewrites the paths of every comic stored below oldDir.
// Base names are unchanged, so titles stay the same.
func (l *Library) HandleDirMoved(ctx context.Context, oldDir, newDir string) error {
	folders, err := l.managedFolders()
	if err != nil {
		return err
	}
	if sourceFolder(folders, newDir) == "" {
		return l.HandleDirDeleted(ctx, oldDir)
	}

	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return err
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
		p := filepath.Join(newDir, rel)
		moves = append(moves, store.LocalMove{Title: comic.Title, Path: p, SourceFolder: sourceFolder(folders, p)})
	}
	if len(moves) == 0 {
		return nil
	}

	titles := make([]string, 0, len(moves))
	for _, m := range moves {
		titles = append(titles, m.Title)
	}
	unlock := l.locks.Lock(titles...)
	defer unlock()

	if err := l.store.RelocateLocal(ctx, moves); err != nil {
		return err
	}
	l.log.Info("Moved %d comic(s) from '%s' to '%s'", len(moves), oldDir, newDir)
	return nil
}
