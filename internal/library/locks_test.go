package library

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestScanRejectsConcurrentRun(t *testing.T) {
	l := New(Options{})
	l.scanning.Store(true)

	if _, err := l.Scan(context.Background(), ""); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
	if err := l.StartScan(context.Background(), ""); !errors.Is(err, ErrScanInProgress) {
		t.Fatalf("expected ErrScanInProgress, got %v", err)
	}
}

func TestTitleLocksSerializeSameTitle(t *testing.T) {
	var tl titleLocks

	unlock := tl.Lock("b", "a", "a")
	acquired := make(chan struct{})
	go func() {
		release := tl.Lock("a")
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired

	tl.mutex.Lock()
	defer tl.mutex.Unlock()
	if len(tl.locks) != 0 {
		t.Fatalf("expected no retained locks, got %d", len(tl.locks))
	}
}

func TestTitleLocksIndependentTitles(t *testing.T) {
	var tl titleLocks
	var wg sync.WaitGroup

	unlock := tl.Lock("a")
	defer unlock()

	wg.Add(1)
	go func() {
		defer wg.Done()
		tl.Lock("b")()
	}()
	wg.Wait()
}

func TestWithin(t *testing.T) {
	cases := []struct {
		root, path string
		want       bool
	}{
		{"/comics", "/comics/a.zip", true},
		{"/comics", "/comics", true},
		{"/comics", "/comics2/a.zip", false},
		{"/comics/", "/comics/sub/a.zip", true},
	}
	for _, c := range cases {
		if got := within(c.root, c.path); got != c.want {
			t.Errorf("within(%q, %q) = %v", c.root, c.path, got)
		}
	}
}
