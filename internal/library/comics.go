package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mwantia/comicshelf/pkg/archive"
	"github.com/mwantia/comicshelf/pkg/db/models"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

// TagAction selects whether a user tag edit adds or removes a tag.
type TagAction string

const (
	TagAdd    TagAction = "add"
	TagRemove TagAction = "remove"
)

func (l *Library) ListComics(ctx context.Context, query store.ComicQuery) ([]models.Comic, int64, error) {
	return l.store.ListComics(ctx, query)
}

func (l *Library) Stats(ctx context.Context) (*store.ComicStats, error) {
	return l.store.Stats(ctx)
}

// Comic returns one comic with its tags and folders.
func (l *Library) Comic(ctx context.Context, title string) (*models.Comic, error) {
	return l.store.GetComicDetails(ctx, title)
}

// SetFavorite sets or, with a nil favorite, toggles the flag of titles.
func (l *Library) SetFavorite(ctx context.Context, titles []string, favorite *bool) error {
	return l.store.SetFavorite(ctx, titles, favorite)
}

func (l *Library) SetDisplayName(ctx context.Context, title, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required: %w", store.ErrInvalid)
	}
	return l.store.SetDisplayName(ctx, title, name)
}

// SetTag records a user tag edit and reclassifies.
func (l *Library) SetTag(ctx context.Context, title, tag string, action TagAction) error {
	var tagType models.TagType
	switch action {
	case TagAdd:
		tagType = models.TagAdded
	case TagRemove:
		tagType = models.TagRemoved
	default:
		return fmt.Errorf("unknown tag action %q: %w", action, store.ErrInvalid)
	}

	unlock := l.locks.Lock(title)
	err := l.store.AttachTag(ctx, title, tag, tagType)
	unlock()
	if err != nil {
		return err
	}
	return l.Classify(ctx)
}

// AssignFolder adds titles to a manual folder.
func (l *Library) AssignFolder(ctx context.Context, titles []string, folderName string) error {
	folder, err := l.store.GetFolder(ctx, folderName)
	if err != nil {
		return err
	}
	if folder.Auto {
		return fmt.Errorf("folder '%s' is managed by its rules: %w", folder.Name, store.ErrInvalid)
	}
	return l.store.AssignFolder(ctx, titles, folder.ID)
}

// RemoveFromAllFolders drops every membership of titles. Auto-folders pick
// matching comics up again on the next pass.
func (l *Library) RemoveFromAllFolders(ctx context.Context, titles []string) error {
	return l.store.RemoveFromAllFolders(ctx, titles)
}

// DeleteComics removes the archives, covers and catalog rows of titles.
// Archives are only deleted when they lie below a managed folder.
func (l *Library) DeleteComics(ctx context.Context, titles []string) (int64, error) {
	var deleted int64
	for _, title := range titles {
		ok, err := l.deleteComic(ctx, title)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (l *Library) deleteComic(ctx context.Context, title string) (bool, error) {
	unlock := l.locks.Lock(title)
	defer unlock()

	comic, err := l.store.GetComic(ctx, title)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if comic.HasLocal() {
		if path, err := l.checkPath(*comic.LocalPath); err != nil {
			l.log.Warn("Not deleting '%s' outside managed folders", *comic.LocalPath)
		} else if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.log.Warn("Unable to delete '%s': %v", path, err)
		}
	}
	if err := l.covers.RemoveSet(comic.Covers()); err != nil {
		l.log.Warn("Unable to delete covers of '%s': %v", title, err)
	}

	n, err := l.store.DeleteComics(ctx, []string{title})
	if err != nil {
		return false, err
	}
	l.log.Info("Deleted '%s'", title)
	return n > 0, nil
}

// MergeComics moves the local file of localTitle onto the online comic
// onlineTitle.
func (l *Library) MergeComics(ctx context.Context, onlineTitle, localTitle string) error {
	unlock := l.locks.Lock(onlineTitle, localTitle)
	defer unlock()

	local, err := l.store.GetComic(ctx, localTitle)
	if err != nil {
		return err
	}
	if !local.HasLocal() {
		return fmt.Errorf("comic '%s' has no local file: %w", localTitle, store.ErrInvalid)
	}
	online, err := l.store.GetComic(ctx, onlineTitle)
	if err != nil {
		return err
	}
	if !online.HasOnline() || online.HasLocal() {
		return fmt.Errorf("comic '%s' is not an online-only comic: %w", onlineTitle, store.ErrInvalid)
	}

	var covers *models.CoverSet
	if local.Covers() != nil {
		renamed, err := l.covers.Rename(localTitle, onlineTitle)
		if err != nil {
			return err
		}
		covers = &renamed
	}
	if err := l.store.MergeComics(ctx, onlineTitle, localTitle, covers); err != nil {
		if covers != nil {
			l.covers.Rename(onlineTitle, localTitle)
		}
		return err
	}

	l.log.Info("Merged '%s' into '%s'", localTitle, onlineTitle)
	return l.Classify(ctx)
}

// Pages lists the images of a managed archive and records the page count.
func (l *Library) Pages(ctx context.Context, path string) ([]string, error) {
	path, err := l.checkPath(path)
	if err != nil {
		return nil, err
	}
	pages, err := archive.ListImages(path)
	if err != nil {
		return nil, err
	}
	if err := l.store.SetTotalPages(ctx, path, len(pages)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return pages, nil
}

// Page returns the bytes of one page of a managed archive.
func (l *Library) Page(ctx context.Context, path, name string) ([]byte, error) {
	path, err := l.checkPath(path)
	if err != nil {
		return nil, err
	}
	if !archive.IsImage(name) {
		return nil, fmt.Errorf("entry %q: %w", name, archive.ErrNotFound)
	}
	return archive.ReadEntry(path, name)
}

// UpdateProgress records the current page of the comic stored at path.
func (l *Library) UpdateProgress(ctx context.Context, path string, page int) error {
	path, err := l.checkPath(path)
	if err != nil {
		return err
	}
	if page < 0 {
		return fmt.Errorf("page %d: %w", page, store.ErrInvalid)
	}
	return l.store.SetCurrentPage(ctx, path, page)
}
