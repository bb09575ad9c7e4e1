package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/mwantia/comicshelf/pkg/archive"
	"github.com/mwantia/comicshelf/pkg/db/models"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/sourcegraph/conc/pool"
)

// ScanResult summarizes one full scan.
type ScanResult struct {
	Folders  int `json:"folders"`
	Found    int `json:"found"`
	Inserted int `json:"inserted"`
	Attached int `json:"attached"`
	Covered  int `json:"covered"`
	Failed   int `json:"failed"`
}

// Scan runs a full reconciliation pass and returns once it is done. A
// non-empty folder restricts the walk to that managed folder. A scan that is
// already running makes Scan fail with ErrScanInProgress.
func (l *Library) Scan(ctx context.Context, folder string) (*ScanResult, error) {
	if !l.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}
	return l.runScan(ctx, folder)
}

// StartScan runs Scan in the background.
func (l *Library) StartScan(ctx context.Context, folder string) error {
	if !l.scanning.CompareAndSwap(false, true) {
		return ErrScanInProgress
	}

	ctx = context.WithoutCancel(ctx)
	l.background.Add(1)
	go func() {
		defer l.background.Done()
		if _, err := l.runScan(ctx, folder); err != nil {
			l.log.Error("Scan failed: %v", err)
		}
	}()
	return nil
}

// runScan expects the scanning flag to be set and always clears it.
func (l *Library) runScan(ctx context.Context, folder string) (result *ScanResult, err error) {
	l.progress.begin("Starting scan...")
	defer func() {
		message := "Scan complete"
		if err != nil {
			message = fmt.Sprintf("Scan failed: %v", err)
		}
		l.progress.finish(message)
		l.scanning.Store(false)
	}()

	result = &ScanResult{}
	folders, err := l.managedFolders()
	if err != nil {
		return nil, fmt.Errorf("load managed folders: %w", err)
	}
	roots := folders
	if folder != "" {
		folder = filepath.Clean(folder)
		if !slices.Contains(folders, folder) {
			return nil, fmt.Errorf("%s: %w", folder, ErrInvalidPath)
		}
		roots = []string{folder}
	}
	if len(roots) == 0 {
		l.log.Info("No managed folders configured, nothing to scan")
		return result, nil
	}
	result.Folders = len(roots)

	l.log.Info("Scanning %d managed folder(s)", len(roots))
	paths := l.collectArchives(roots)
	result.Found = len(paths)

	known, err := l.store.LocalPaths(ctx)
	if err != nil {
		return nil, err
	}

	var fresh []string
	for _, p := range paths {
		if _, ok := known[p]; !ok {
			fresh = append(fresh, p)
		}
	}
	l.progress.stage(len(fresh), fmt.Sprintf("Found %d new archive(s)", len(fresh)))

	for _, p := range fresh {
		title := TitleOf(p)
		res, err := l.addLocal(ctx, title, p, sourceFolder(folders, p))
		if err != nil {
			return nil, fmt.Errorf("add '%s': %w", p, err)
		}
		switch res {
		case store.LocalInserted:
			result.Inserted++
		case store.LocalAttached:
			result.Attached++
		default:
			l.log.Debug("Title '%s' already has a local file, skipping '%s'", title, p)
		}
		l.progress.advance("Added " + title)
	}

	covered, failed, err := l.deriveMissingCovers(ctx)
	result.Covered, result.Failed = covered, failed
	if err != nil {
		return nil, err
	}

	l.progress.stage(0, "Classifying...")
	if err := l.Classify(ctx); err != nil {
		return nil, err
	}

	l.log.Info("Scan finished: %d found, %d inserted, %d attached, %d covers, %d failed",
		result.Found, result.Inserted, result.Attached, result.Covered, result.Failed)
	return result, nil
}

func (l *Library) collectArchives(roots []string) []string {
	var paths []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				l.log.Warn("Skipping '%s': %v", p, err)
				if d != nil && d.IsDir() && p != root {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && archive.IsArchive(p) {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			l.log.Warn("Unable to walk '%s': %v", root, err)
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

func (l *Library) addLocal(ctx context.Context, title, path, source string) (store.AddLocalResult, error) {
	unlock := l.locks.Lock(title)
	defer unlock()

	return l.store.AddLocal(ctx, title, models.LocalInfo{Path: path, SourceFolder: source}, l.now())
}

// deriveMissingCovers derives covers for every local comic whose recorded
// thumbnail is missing. Only the thumbnail is checked.
func (l *Library) deriveMissingCovers(ctx context.Context) (covered, failed int, err error) {
	comics, err := l.store.ListLocalComics(ctx)
	if err != nil {
		return 0, 0, err
	}

	var pending []models.Comic
	for _, comic := range comics {
		if !l.covers.Exists(comic.Covers()) {
			pending = append(pending, comic)
		}
	}
	l.progress.stage(len(pending), fmt.Sprintf("Generating %d cover(s)", len(pending)))
	if len(pending) == 0 {
		return 0, 0, nil
	}

	results := make(chan bool, len(pending))
	p := pool.New().WithErrors().WithMaxGoroutines(l.workers)
	for _, comic := range pending {
		p.Go(func() error {
			ok, err := l.deriveCovers(ctx, comic.Title, *comic.LocalPath)
			l.progress.advance("Cover for " + comic.Title)
			if err != nil {
				return err
			}
			results <- ok
			return nil
		})
	}
	err = p.Wait()
	close(results)

	for ok := range results {
		if ok {
			covered++
		} else {
			failed++
		}
	}
	return covered, failed, err
}

// deriveCovers extracts the first image of the archive and attaches all
// three renditions. Archive and image failures are logged and reported as
// false; only catalog failures are returned. An archive that no longer exists
// releases the local provenance of its comic.
func (l *Library) deriveCovers(ctx context.Context, title, path string) (bool, error) {
	unlock := l.locks.Lock(title)
	defer unlock()

	comic, err := l.store.GetComic(ctx, title)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !comic.HasLocal() || *comic.LocalPath != path {
		return false, nil
	}
	if l.covers.Exists(comic.Covers()) {
		return true, nil
	}

	entry, data, err := archive.FirstImage(path)
	if errors.Is(err, archive.ErrNotFound) {
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			l.log.Warn("Archive '%s' disappeared, releasing '%s'", path, title)
			if _, err := l.releaseLocal(ctx, title); err != nil {
				return false, err
			}
			return false, nil
		}
	}
	if err != nil {
		l.log.Warn("Unable to read cover of '%s': %v", path, err)
		return false, nil
	}
	set, err := l.covers.Derive(title, data)
	if err != nil {
		l.log.Warn("Unable to derive cover of '%s' from '%s': %v", path, entry, err)
		return false, nil
	}
	if err := l.store.AttachCovers(ctx, title, set); err != nil {
		l.covers.Remove(title)
		return false, err
	}
	return true, nil
}
