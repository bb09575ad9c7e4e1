package watcher_test

import (
	"testing"
	"time"

	"github.com/mwantia/comicshelf/internal/watcher"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func TestCreateSettlesAfterQuietPeriod(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Create("/lib/a.cbz", false, at(0))
	d.Write("/lib/a.cbz", at(60))
	d.Write("/lib/a.cbz", at(120))

	if got := d.Due(at(200)); len(got) != 0 {
		t.Fatalf("event settled while still being written: %#v", got)
	}
	got := d.Due(at(220))
	if len(got) != 1 || got[0].Op != watcher.Created || got[0].Path != "/lib/a.cbz" {
		t.Fatalf("unexpected events %#v", got)
	}
	if d.Len() != 0 {
		t.Fatalf("expected nothing pending, got %d", d.Len())
	}
}

func TestRenamePairsWithCreate(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Rename("/lib/A.zip", false, at(0))
	if paired := d.Create("/lib/B.zip", false, at(1)); !paired {
		t.Fatal("expected create to complete the rename")
	}

	got := d.Due(at(150))
	if len(got) != 1 {
		t.Fatalf("expected one event, got %#v", got)
	}
	ev := got[0]
	if ev.Op != watcher.Moved || ev.OldPath != "/lib/A.zip" || ev.Path != "/lib/B.zip" {
		t.Fatalf("unexpected move %#v", ev)
	}
}

func TestUnpairedRenameBecomesDelete(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Rename("/lib/gone.cbr", false, at(0))
	got := d.Due(at(100))
	if len(got) != 1 || got[0].Op != watcher.Deleted || got[0].Path != "/lib/gone.cbr" {
		t.Fatalf("unexpected events %#v", got)
	}
}

func TestRenameChainKeepsOrigin(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Rename("/lib/A.zip", false, at(0))
	d.Create("/lib/B.zip", false, at(1))
	d.Rename("/lib/B.zip", false, at(10))
	d.Create("/lib/C.zip", false, at(11))

	got := d.Due(at(200))
	if len(got) != 1 || got[0].Op != watcher.Moved || got[0].OldPath != "/lib/A.zip" || got[0].Path != "/lib/C.zip" {
		t.Fatalf("unexpected events %#v", got)
	}
}

func TestCreateThenRemoveCancels(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Create("/lib/tmp.zip", false, at(0))
	d.Remove("/lib/tmp.zip", false, at(10))
	if got := d.Due(at(500)); len(got) != 0 {
		t.Fatalf("expected no events, got %#v", got)
	}
}

func TestDirectoryRenameOnlyPairsWithDirectory(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Rename("/lib/old", true, at(0))
	if paired := d.Create("/lib/x.zip", false, at(1)); paired {
		t.Fatal("file create must not pair with a directory rename")
	}
	if paired := d.Create("/lib/new", true, at(2)); !paired {
		t.Fatal("expected directory create to pair")
	}

	got := d.Due(at(200))
	if len(got) != 2 {
		t.Fatalf("expected two events, got %#v", got)
	}
	if got[0].Op != watcher.Created || got[0].Path != "/lib/x.zip" {
		t.Fatalf("unexpected first event %#v", got[0])
	}
	if got[1].Op != watcher.Moved || !got[1].Dir || got[1].OldPath != "/lib/old" {
		t.Fatalf("unexpected second event %#v", got[1])
	}
}

func TestUnpairedDirectoryCreateIsNotTracked(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	if paired := d.Create("/lib/new", true, at(0)); paired {
		t.Fatal("unexpected pairing")
	}
	if d.Len() != 0 {
		t.Fatalf("expected nothing pending, got %d", d.Len())
	}
}

func TestRecreateCancelsPendingDelete(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Remove("/lib/A.zip", false, at(0))
	d.Create("/lib/A.zip", false, at(10))
	d.Write("/lib/A.zip", at(20))

	got := d.Due(at(500))
	if len(got) != 1 || got[0].Op != watcher.Created || got[0].Path != "/lib/A.zip" {
		t.Fatalf("expected the replaced file to settle as created, got %#v", got)
	}
}

func TestRemoveAfterWriteOfExistingFileDeletes(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Write("/lib/A.zip", at(0))
	d.Remove("/lib/A.zip", false, at(10))

	got := d.Due(at(500))
	if len(got) != 1 || got[0].Op != watcher.Deleted || got[0].Path != "/lib/A.zip" {
		t.Fatalf("expected a delete, got %#v", got)
	}
}

func TestReplacedFileRemovedAgainDeletes(t *testing.T) {
	d := watcher.NewDebouncer(100 * time.Millisecond)

	d.Remove("/lib/A.zip", false, at(0))
	d.Create("/lib/A.zip", false, at(10))
	d.Remove("/lib/A.zip", false, at(20))

	got := d.Due(at(500))
	if len(got) != 1 || got[0].Op != watcher.Deleted {
		t.Fatalf("expected a delete, got %#v", got)
	}
}
