package archive_test

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mwantia/comicshelf/pkg/archive"
)

func writeZip(t *testing.T, name string, entries map[string]string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for entry, body := range entries {
		w, err := zw.Create(entry)
		if err != nil {
			t.Fatalf("zip create %s: %v", entry, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", entry, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return p
}

func TestListImagesSortsAndFilters(t *testing.T) {
	p := writeZip(t, "book.cbz", map[string]string{
		"002.jpg":            "two",
		"001.jpg":            "one",
		"notes.txt":          "skip",
		"cover.png":          "cover",
		"__MACOSX/._001.jpg": "junk",
	})

	names, err := archive.ListImages(p)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	want := []string{"001.jpg", "002.jpg", "cover.png"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}

	name, data, err := archive.FirstImage(p)
	if err != nil {
		t.Fatalf("FirstImage failed: %v", err)
	}
	if name != "001.jpg" || string(data) != "one" {
		t.Fatalf("unexpected first image %q %q", name, data)
	}
}

func TestReadEntry(t *testing.T) {
	p := writeZip(t, "book.zip", map[string]string{"a/01.png": "page"})

	data, err := archive.ReadEntry(p, "a/01.png")
	if err != nil {
		t.Fatalf("ReadEntry failed: %v", err)
	}
	if string(data) != "page" {
		t.Fatalf("unexpected body %q", data)
	}
	if _, err := archive.ReadEntry(p, "a/02.png"); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := archive.ListImages(filepath.Join(dir, "missing.cbz")); !errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	corrupt := filepath.Join(dir, "broken.cbz")
	if err := os.WriteFile(corrupt, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.ListImages(corrupt); !errors.Is(err, archive.ErrCorruptArchive) {
		t.Fatalf("expected ErrCorruptArchive, got %v", err)
	}

	corruptRar := filepath.Join(dir, "broken.cbr")
	if err := os.WriteFile(corruptRar, []byte("not a rar"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.ListImages(corruptRar); !errors.Is(err, archive.ErrCorruptArchive) {
		t.Fatalf("expected ErrCorruptArchive for rar, got %v", err)
	}

	if _, err := archive.ListImages(filepath.Join(dir, "book.7z")); !errors.Is(err, archive.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}

	empty := writeZip(t, "empty.zip", map[string]string{"readme.txt": "x"})
	if _, _, err := archive.FirstImage(empty); !errors.Is(err, archive.ErrNoImages) || errors.Is(err, archive.ErrNotFound) {
		t.Fatalf("expected ErrNoImages for imageless archive, got %v", err)
	}
}

func TestRarListsAndReadsEntries(t *testing.T) {
	p := filepath.Join("testdata", "book.cbr")

	names, err := archive.ListImages(p)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	want := []string{"001.png", "pages/002.jpg", "pages/010.WEBP"}
	if !slices.Equal(names, want) {
		t.Fatalf("got %v, want %v", names, want)
	}

	data, err := archive.ReadEntry(p, "pages/010.WEBP")
	if err != nil {
		t.Fatalf("ReadEntry failed: %v", err)
	}
	if string(data) != "tenth page" {
		t.Fatalf("unexpected entry bytes %q", data)
	}

	name, data, err := archive.FirstImage(p)
	if err != nil {
		t.Fatalf("FirstImage failed: %v", err)
	}
	if name != "001.png" || string(data) != "first page" {
		t.Fatalf("unexpected first image %q: %q", name, data)
	}

	for _, entry := range []string{"extras.jpg", "pages/._cover.jpg", "__MACOSX/pages/._002.jpg"} {
		if _, err := archive.ReadEntry(p, entry); !errors.Is(err, archive.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for %s, got %v", entry, err)
		}
	}
}

func TestIsArchive(t *testing.T) {
	for name, want := range map[string]bool{
		"a.zip": true, "a.CBZ": true, "a.rar": true, "a.cbr": true, "a.pdf": false, "a": false,
	} {
		if got := archive.IsArchive(name); got != want {
			t.Fatalf("IsArchive(%q) = %v, want %v", name, got, want)
		}
	}
}
