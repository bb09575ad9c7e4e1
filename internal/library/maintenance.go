package library

import (
	"context"
	"errors"
	"os"
	"path"

	"github.com/mwantia/comicshelf/internal/settings"
)

// Cleanup releases every comic whose local file no longer exists and returns
// how many were affected.
func (l *Library) Cleanup(ctx context.Context) (int, error) {
	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, comic := range comics {
		if _, err := os.Stat(*comic.LocalPath); !errors.Is(err, os.ErrNotExist) {
			continue
		}
		l.log.Info("Local file of '%s' is gone", comic.Title)
		if err := l.releaseTitle(ctx, comic.Title); err != nil {
			return cleaned, err
		}
		cleaned++
	}
	l.log.Info("Cleanup finished, %d comic(s) released", cleaned)
	return cleaned, nil
}

// PruneCoverCache deletes cover files not referenced by any comic's
// thumbnail and returns how many were removed.
func (l *Library) PruneCoverCache(ctx context.Context) (int, error) {
	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(comics))
	for _, comic := range comics {
		if covers := comic.Covers(); covers != nil {
			keep[path.Base(covers.Thumbnail)] = struct{}{}
		}
	}

	removed, err := l.covers.Prune(keep)
	if err != nil {
		return removed, err
	}
	l.log.Info("Cover cache pruned, %d file(s) removed", removed)
	return removed, nil
}

// ClearAll empties the catalog, forgets every managed folder and deletes all
// cover files.
func (l *Library) ClearAll(ctx context.Context) error {
	if err := l.store.ClearAll(ctx); err != nil {
		return err
	}

	var folders []string
	err := l.settings.Update(func(s *settings.Settings) error {
		folders = s.ManagedFolders
		s.ManagedFolders = []string{}
		return nil
	})
	if err != nil {
		return err
	}
	if w := l.folderWatcher(); w != nil {
		for _, dir := range folders {
			if err := w.Unwatch(dir); err != nil {
				l.log.Warn("Unable to unwatch '%s': %v", dir, err)
			}
		}
	}

	if err := l.covers.RemoveAll(); err != nil {
		return err
	}
	l.log.Info("All data cleared")
	return nil
}
