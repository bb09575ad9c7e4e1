package settings_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mwantia/comicshelf/internal/settings"
)

func TestMissingFileIsEmpty(t *testing.T) {
	p := settings.NewProvider(filepath.Join(t.TempDir(), "nested", "settings.json"))

	folders, err := p.ManagedFolders()
	if err != nil {
		t.Fatalf("ManagedFolders failed: %v", err)
	}
	if len(folders) != 0 {
		t.Fatalf("expected no folders, got %v", folders)
	}
}

func TestSaveRoundTripKeepsOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	p := settings.NewProvider(path)

	if err := p.Save([]string{"/b", "/a", "/b", ""}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	folders, err := settings.NewProvider(path).ManagedFolders()
	if err != nil {
		t.Fatalf("ManagedFolders failed: %v", err)
	}
	if !slices.Equal(folders, []string{"/b", "/a"}) {
		t.Fatalf("unexpected folders %v", folders)
	}
}

func TestUpdateAbortsOnError(t *testing.T) {
	p := settings.NewProvider(filepath.Join(t.TempDir(), "settings.json"))
	if err := p.Save([]string{"/a"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	boom := errors.New("boom")
	err := p.Update(func(s *settings.Settings) error {
		s.ManagedFolders = append(s.ManagedFolders, "/b")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	folders, _ := p.ManagedFolders()
	if !slices.Equal(folders, []string{"/a"}) {
		t.Fatalf("aborted update was persisted: %v", folders)
	}
}

func TestCorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatal(err)
	}

	folders, err := settings.NewProvider(path).ManagedFolders()
	if err != nil {
		t.Fatalf("ManagedFolders failed: %v", err)
	}
	if len(folders) != 0 {
		t.Fatalf("expected empty list, got %v", folders)
	}
}
