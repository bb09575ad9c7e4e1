package library_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/mwantia/comicshelf/internal/library"
	"github.com/mwantia/comicshelf/internal/settings"
	"github.com/mwantia/comicshelf/internal/testsupport"
	"github.com/mwantia/comicshelf/internal/watcher"
	"github.com/mwantia/comicshelf/pkg/cover"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

type fixture struct {
	lib    *library.Library
	store  *store.SQLiteStore
	covers *cover.Deriver
	root   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	base := t.TempDir()
	root := filepath.Join(base, "comics")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	provider := settings.NewProvider(filepath.Join(base, "settings.json"))
	if err := provider.Save([]string{root}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s := testsupport.NewStore(t)
	covers := cover.NewDeriver(filepath.Join(base, "covers"))
	lib := library.New(library.Options{
		Store:    s,
		Settings: provider,
		Covers:   covers,
		Workers:  2,
	})
	t.Cleanup(lib.Wait)
	return &fixture{lib: lib, store: s, covers: covers, root: root}
}

func (f *fixture) scan(t *testing.T) *library.ScanResult {
	t.Helper()

	res, err := f.lib.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	return res
}

func (f *fixture) coverFiles(t *testing.T, title string) map[string]time.Time {
	t.Helper()

	out := map[string]time.Time{}
	set := f.covers.Paths(title)
	for _, web := range []string{set.Thumbnail, set.Medium, set.Large} {
		info, err := os.Stat(f.covers.Resolve(web))
		if err != nil {
			continue
		}
		out[web] = info.ModTime()
	}
	return out
}

func TestScanIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testsupport.WriteArchive(t, f.root, "Foo_Bar.cbz", map[string][]byte{
		"002.jpg":   []byte("not decoded"),
		"001.jpg":   testsupport.PNG(t, 40, 60),
		"cover.png": []byte("not decoded"),
	})
	testsupport.WriteComic(t, filepath.Join(f.root, "series"), "Other.zip")

	if _, err := f.lib.CreateFolder(ctx, library.FolderSpec{Name: "Bars", Auto: true, NameIncludes: []string{"bar"}}); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}

	first := f.scan(t)
	if first.Found != 2 || first.Inserted != 2 || first.Covered != 2 {
		t.Fatalf("unexpected first scan %#v", first)
	}
	if snap := f.lib.Progress(); snap.InProgress {
		t.Fatalf("progress still in flight: %#v", snap)
	}

	comic, err := f.lib.Comic(ctx, "Foo_Bar")
	if err != nil {
		t.Fatalf("Comic failed: %v", err)
	}
	if len(comic.Folders) != 1 || comic.Folders[0].Folder.Name != "Bars" {
		t.Fatalf("expected Foo_Bar in Bars, got %#v", comic.Folders)
	}
	if *comic.LocalSourceFolder != f.root {
		t.Fatalf("unexpected source folder %q", *comic.LocalSourceFolder)
	}
	covers := f.coverFiles(t, "Foo_Bar")
	if len(covers) != 3 {
		t.Fatalf("expected three renditions, got %v", covers)
	}

	before, _, err := f.store.ListComics(ctx, store.ComicQuery{SortBy: "name", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("ListComics failed: %v", err)
	}

	second := f.scan(t)
	if second.Inserted != 0 || second.Attached != 0 || second.Covered != 0 || second.Failed != 0 {
		t.Fatalf("second scan mutated the catalog: %#v", second)
	}
	after, _, err := f.store.ListComics(ctx, store.ComicQuery{SortBy: "name", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("ListComics failed: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("row count changed: %d vs %d", len(before), len(after))
	}
	for i := range before {
		if before[i].Title != after[i].Title || !before[i].DateAdded.Equal(after[i].DateAdded) ||
			len(before[i].Folders) != len(after[i].Folders) {
			t.Fatalf("row %d changed: %#v vs %#v", i, before[i], after[i])
		}
	}
	for web, mtime := range f.coverFiles(t, "Foo_Bar") {
		if !covers[web].Equal(mtime) {
			t.Fatalf("%s was rewritten", web)
		}
	}
}

func TestScanSkipsBrokenArchives(t *testing.T) {
	f := newFixture(t)

	if err := os.WriteFile(filepath.Join(f.root, "Broken.cbz"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	testsupport.WriteComic(t, f.root, "Good.cbz")

	res := f.scan(t)
	if res.Inserted != 2 || res.Covered != 1 || res.Failed != 1 {
		t.Fatalf("unexpected scan result %#v", res)
	}
	comic, err := f.store.GetComic(context.Background(), "Broken")
	if err != nil {
		t.Fatalf("GetComic failed: %v", err)
	}
	if comic.Covers() != nil {
		t.Fatalf("broken archive must stay without covers: %#v", comic)
	}
}

func TestScanWithoutManagedFolders(t *testing.T) {
	s := testsupport.NewStore(t)
	lib := library.New(library.Options{
		Store:    s,
		Settings: settings.NewProvider(filepath.Join(t.TempDir(), "settings.json")),
		Covers:   cover.NewDeriver(t.TempDir()),
	})

	res, err := lib.Scan(context.Background(), "")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Folders != 0 || res.Found != 0 {
		t.Fatalf("expected no-op scan, got %#v", res)
	}

	if _, err := lib.Scan(context.Background(), "/not/managed"); !errors.Is(err, library.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestMoveRenamesComic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	oldPath := testsupport.WriteComic(t, f.root, "A.zip")
	f.scan(t)

	if err := f.lib.SetTag(ctx, "A", "drama", library.TagAdd); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}
	fav := true
	if err := f.lib.SetFavorite(ctx, []string{"A"}, &fav); err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}
	if _, err := f.lib.CreateFolder(ctx, library.FolderSpec{Name: "Shelf"}); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	if err := f.lib.AssignFolder(ctx, []string{"A"}, "Shelf"); err != nil {
		t.Fatalf("AssignFolder failed: %v", err)
	}
	if err := f.lib.UpdateProgress(ctx, oldPath, 7); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	newPath := filepath.Join(f.root, "B.zip")
	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatal(err)
	}
	if err := f.lib.HandleEvent(ctx, watcher.Event{Op: watcher.Moved, OldPath: oldPath, Path: newPath}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	if _, err := f.store.GetComic(ctx, "A"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected A gone, got %v", err)
	}
	b, err := f.lib.Comic(ctx, "B")
	if err != nil {
		t.Fatalf("Comic failed: %v", err)
	}
	if !b.IsFavorite || b.CurrentPage != 7 || *b.LocalPath != newPath {
		t.Fatalf("fields not carried over: %#v", b)
	}
	if len(b.Tags) != 1 || b.Tags[0].Tag.Name != "drama" || len(b.Folders) != 1 {
		t.Fatalf("tags or folders not carried over: %#v", b)
	}
	if covers := b.Covers(); covers == nil || covers.Thumbnail != "covers/thumbnail/B.jpg" {
		t.Fatalf("unexpected covers %#v", covers)
	}
	if len(f.coverFiles(t, "B")) != 3 || len(f.coverFiles(t, "A")) != 0 {
		t.Fatalf("covers not renamed: A=%v B=%v", f.coverFiles(t, "A"), f.coverFiles(t, "B"))
	}
}

func TestMoveOfUnknownPathCreates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testsupport.WriteComic(t, f.root, "Fresh.cbz")
	if err := f.lib.HandleMoved(ctx, filepath.Join(f.root, "elsewhere.cbz"), p); err != nil {
		t.Fatalf("HandleMoved failed: %v", err)
	}
	comic, err := f.store.GetComic(ctx, "Fresh")
	if err != nil {
		t.Fatalf("GetComic failed: %v", err)
	}
	if !f.covers.Exists(comic.Covers()) {
		t.Fatal("expected covers for created comic")
	}
}

func TestDeleteKeepsOnlineComic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.lib.SyncOnline(ctx, library.OnlinePayload{
		CoverURLs: map[string]string{"Foo": "https://example.org/foo.jpg"},
		PageURLs:  map[string]string{"Foo": "https://example.org/foo"},
	})
	if err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}
	p := testsupport.WriteComic(t, f.root, "Foo.zip")
	if err := f.lib.HandleCreated(ctx, p); err != nil {
		t.Fatalf("HandleCreated failed: %v", err)
	}
	if len(f.coverFiles(t, "Foo")) != 3 {
		t.Fatal("expected covers after create")
	}

	if err := os.Remove(p); err != nil {
		t.Fatal(err)
	}
	if err := f.lib.HandleEvent(ctx, watcher.Event{Op: watcher.Deleted, Path: p}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	comic, err := f.store.GetComic(ctx, "Foo")
	if err != nil {
		t.Fatalf("online comic was deleted: %v", err)
	}
	if comic.HasLocal() || comic.LocalSourceFolder != nil || comic.CoverThumbnail != nil {
		t.Fatalf("local fields not cleared: %#v", comic)
	}
	if *comic.OnlineURL != "https://example.org/foo" {
		t.Fatalf("online fields changed: %#v", comic)
	}
	if len(f.coverFiles(t, "Foo")) != 0 {
		t.Fatal("cover files left on disk")
	}
}

func TestCreateOutsideManagedFolders(t *testing.T) {
	f := newFixture(t)

	p := testsupport.WriteComic(t, t.TempDir(), "Stray.zip")
	if err := f.lib.HandleCreated(context.Background(), p); !errors.Is(err, library.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestSyncOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.lib.CreateFolder(ctx, library.FolderSpec{Name: "Romance", Auto: true, TagIncludes: []string{"romance"}}); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}
	_, err := f.lib.SyncOnline(ctx, library.OnlinePayload{
		CoverURLs: map[string]string{"One": "c1", "Two": "c2", "NoLink": "c3"},
		PageURLs:  map[string]string{"One": "p1", "Two": "p2"},
		Tags:      map[string][]string{"One": {"Romance"}},
	})
	if err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}

	res, err := f.lib.SyncOnline(ctx, library.OnlinePayload{
		CoverURLs: map[string]string{"One": "c1"},
		PageURLs:  map[string]string{"One": "p1b"},
	})
	if err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}
	if res.Removed != 1 || res.Updated != 1 {
		t.Fatalf("unexpected result %#v", res)
	}

	titles, err := f.store.ListTitles(ctx)
	if err != nil {
		t.Fatalf("ListTitles failed: %v", err)
	}
	if !slices.Equal(titles, []string{"One"}) {
		t.Fatalf("unexpected titles %v", titles)
	}
	one, err := f.lib.Comic(ctx, "One")
	if err != nil {
		t.Fatalf("Comic failed: %v", err)
	}
	if *one.OnlineURL != "p1b" || len(one.Tags) != 1 || len(one.Folders) != 1 {
		t.Fatalf("unexpected comic after resync %#v", one)
	}
}

func TestCleanupAndPruneCoverCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testsupport.WriteComic(t, f.root, "Keep.zip")
	gone := testsupport.WriteComic(t, f.root, "Gone.zip")
	f.scan(t)

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	cleaned, err := f.lib.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if cleaned != 1 {
		t.Fatalf("expected one comic cleaned, got %d", cleaned)
	}
	if _, err := f.store.GetComic(ctx, "Gone"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected Gone deleted, got %v", err)
	}

	if _, err := f.covers.Derive("Orphan", testsupport.PNG(t, 10, 10)); err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	removed, err := f.lib.PruneCoverCache(ctx)
	if err != nil {
		t.Fatalf("PruneCoverCache failed: %v", err)
	}
	if removed != 3 || len(f.coverFiles(t, "Keep")) != 3 {
		t.Fatalf("unexpected prune: removed %d, keep %v", removed, f.coverFiles(t, "Keep"))
	}
}

func TestPagesAndProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testsupport.WriteComic(t, f.root, "Reader.cbz")
	f.scan(t)

	pages, err := f.lib.Pages(ctx, p)
	if err != nil {
		t.Fatalf("Pages failed: %v", err)
	}
	if !slices.Equal(pages, []string{"001.png", "002.png"}) {
		t.Fatalf("unexpected pages %v", pages)
	}
	comic, _ := f.store.GetComic(ctx, "Reader")
	if comic.TotalPages != 2 {
		t.Fatalf("total pages not recorded: %d", comic.TotalPages)
	}

	if _, err := f.lib.Page(ctx, p, "002.png"); err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if _, err := f.lib.Pages(ctx, "/etc/passwd.zip"); !errors.Is(err, library.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
	if err := f.lib.UpdateProgress(ctx, p, 1); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
}

func TestManagedFolderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	extra := filepath.Join(filepath.Dir(f.root), "extra")
	testsupport.WriteComic(t, extra, "Extra.zip")

	added, err := f.lib.AddManagedFolder(ctx, extra)
	if err != nil || !added {
		t.Fatalf("AddManagedFolder = %v, %v", added, err)
	}
	f.lib.Wait()
	if _, err := f.store.GetComic(ctx, "Extra"); err != nil {
		t.Fatalf("folder was not scanned: %v", err)
	}
	if added, _ := f.lib.AddManagedFolder(ctx, extra); added {
		t.Fatal("folder added twice")
	}

	moved := filepath.Join(filepath.Dir(f.root), "moved")
	if err := os.Rename(extra, moved); err != nil {
		t.Fatal(err)
	}
	n, err := f.lib.RelocateFolder(ctx, extra, moved)
	if err != nil || n != 1 {
		t.Fatalf("RelocateFolder = %d, %v", n, err)
	}
	comic, _ := f.store.GetComic(ctx, "Extra")
	if *comic.LocalPath != filepath.Join(moved, "Extra.zip") || *comic.LocalSourceFolder != moved {
		t.Fatalf("paths not rewritten: %#v", comic)
	}

	released, err := f.lib.RemoveManagedFolder(ctx, moved)
	if err != nil || released != 1 {
		t.Fatalf("RemoveManagedFolder = %d, %v", released, err)
	}
	if _, err := f.store.GetComic(ctx, "Extra"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected Extra deleted, got %v", err)
	}
	if _, err := f.lib.RemoveManagedFolder(ctx, moved); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.lib.AddManagedFolder(ctx, filepath.Join(moved, "missing")); !errors.Is(err, library.ErrInvalidPath) {
		t.Fatalf("expected ErrInvalidPath, got %v", err)
	}
}

func TestDeleteComicsRemovesFiles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testsupport.WriteComic(t, f.root, "Trash.zip")
	f.scan(t)

	n, err := f.lib.DeleteComics(ctx, []string{"Trash", "Unknown"})
	if err != nil || n != 1 {
		t.Fatalf("DeleteComics = %d, %v", n, err)
	}
	if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("archive not deleted: %v", err)
	}
	if len(f.coverFiles(t, "Trash")) != 0 {
		t.Fatal("covers not deleted")
	}
}

func TestMergeComics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testsupport.WriteComic(t, f.root, "local_copy.zip")
	f.scan(t)
	_, err := f.lib.SyncOnline(ctx, library.OnlinePayload{
		CoverURLs: map[string]string{"Online Title": "c"},
		PageURLs:  map[string]string{"Online Title": "p"},
	})
	if err != nil {
		t.Fatalf("SyncOnline failed: %v", err)
	}

	if err := f.lib.MergeComics(ctx, "Online Title", "local_copy"); err != nil {
		t.Fatalf("MergeComics failed: %v", err)
	}
	merged, err := f.store.GetComic(ctx, "Online Title")
	if err != nil {
		t.Fatalf("GetComic failed: %v", err)
	}
	if !merged.HasLocal() || !merged.HasOnline() || !f.covers.Exists(merged.Covers()) {
		t.Fatalf("unexpected merged comic %#v", merged)
	}
	if _, err := f.store.GetComic(ctx, "local_copy"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected local_copy gone, got %v", err)
	}

	if err := f.lib.MergeComics(ctx, "Online Title", "Online Title"); err == nil {
		t.Fatal("expected merge of a local comic onto itself to fail")
	}
}

func TestSetTagClassifies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	testsupport.WriteComic(t, f.root, "Plain.zip")
	f.scan(t)
	if _, err := f.lib.CreateFolder(ctx, library.FolderSpec{Name: "Action", Auto: true, TagIncludes: []string{"action"}}); err != nil {
		t.Fatalf("CreateFolder failed: %v", err)
	}

	if err := f.lib.SetTag(ctx, "Plain", "Action", library.TagAdd); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}
	comic, _ := f.lib.Comic(ctx, "Plain")
	if len(comic.Folders) != 1 {
		t.Fatalf("expected auto membership, got %#v", comic.Folders)
	}

	if err := f.lib.SetTag(ctx, "Plain", "Action", library.TagRemove); err != nil {
		t.Fatalf("SetTag failed: %v", err)
	}
	comic, _ = f.lib.Comic(ctx, "Plain")
	if len(comic.Folders) != 0 {
		t.Fatalf("expected membership dropped, got %#v", comic.Folders)
	}

	if err := f.lib.AssignFolder(ctx, []string{"Plain"}, "Action"); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected auto folder assignment rejected, got %v", err)
	}
	if err := f.lib.SetTag(ctx, "Plain", "x", library.TagAction("bogus")); !errors.Is(err, store.ErrInvalid) {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

func TestDeleteOfReplacedFileKeepsComic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testsupport.WriteComic(t, f.root, "Foo.zip")
	if err := f.lib.HandleCreated(ctx, p); err != nil {
		t.Fatalf("HandleCreated failed: %v", err)
	}
	favorite := true
	if err := f.lib.SetFavorite(ctx, []string{"Foo"}, &favorite); err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}

	// The file was replaced before the delete was handled.
	if err := f.lib.HandleEvent(ctx, watcher.Event{Op: watcher.Deleted, Path: p}); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	comic, err := f.store.GetComic(ctx, "Foo")
	if err != nil {
		t.Fatalf("comic of an existing file was deleted: %v", err)
	}
	if !comic.HasLocal() || *comic.LocalPath != p || !comic.IsFavorite {
		t.Fatalf("comic changed: %#v", comic)
	}
}

// vanishingStore removes an archive after the scan walked it.
type vanishingStore struct {
	*store.SQLiteStore
	path string
}

func (s *vanishingStore) LocalPaths(ctx context.Context) (map[string]struct{}, error) {
	if err := os.Remove(s.path); err != nil {
		return nil, err
	}
	return s.SQLiteStore.LocalPaths(ctx)
}

func TestScanReleasesArchiveRemovedDuringScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p := testsupport.WriteComic(t, f.root, "Gone.zip")
	provider := settings.NewProvider(filepath.Join(t.TempDir(), "settings.json"))
	if err := provider.Save([]string{f.root}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	lib := library.New(library.Options{
		Store:    &vanishingStore{SQLiteStore: f.store, path: p},
		Settings: provider,
		Covers:   f.covers,
		Workers:  1,
	})
	t.Cleanup(lib.Wait)

	res, err := lib.Scan(ctx, "")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Found != 1 || res.Covered != 0 {
		t.Fatalf("unexpected result %#v", res)
	}
	if _, err := f.store.GetComic(ctx, "Gone"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected the vanished comic to be released, got %v", err)
	}
}
