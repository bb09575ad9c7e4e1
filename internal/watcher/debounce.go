package watcher

import (
	"sort"
	"time"
)

// Op is the settled kind of a filesystem change.
type Op int

const (
	Created Op = iota + 1
	Deleted
	Moved
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Deleted:
		return "deleted"
	case Moved:
		return "moved"
	default:
		return "unknown"
	}
}

// Event is a settled change of an archive or, with Dir set, of a directory.
type Event struct {
	Op      Op
	Path    string
	OldPath string
	Dir     bool
}

type pendingEvent struct {
	Event
	at time.Time
	// fresh marks a path that did not exist when it was first seen.
	fresh bool
}

// Debouncer holds raw changes until they have been quiet for the settle
// delay. Renames wait for a following create of the same kind so the pair can
// be reported as one move; a rename that stays unpaired settles as a delete.
// It is not safe for concurrent use.
type Debouncer struct {
	delay   time.Duration
	pending map[string]*pendingEvent
	renames []pendingEvent
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
	}
}

// Create records a created path and reports whether it completed a move.
// Unpaired directory creates are not tracked; the caller expands them.
func (d *Debouncer) Create(path string, dir bool, now time.Time) bool {
	for i, r := range d.renames {
		if r.Dir != dir {
			continue
		}
		d.renames = append(d.renames[:i], d.renames[i+1:]...)
		if r.Path == path {
			// Renamed back onto itself.
			d.touch(path, dir, false, now)
			return true
		}
		d.pending[path] = &pendingEvent{
			Event: Event{Op: Moved, Path: path, OldPath: r.Path, Dir: dir},
			at:    now,
		}
		return true
	}
	if dir {
		return false
	}
	d.touch(path, false, true, now)
	return false
}

// Write restarts the settle delay of path. A write to a path that was not
// pending means the file existed before.
func (d *Debouncer) Write(path string, now time.Time) {
	d.touch(path, false, false, now)
}

// Remove records a deleted path. A file created and removed again before it
// settled is dropped.
func (d *Debouncer) Remove(path string, dir bool, now time.Time) {
	if p, ok := d.pending[path]; ok {
		delete(d.pending, path)
		switch p.Op {
		case Created:
			if p.fresh {
				return
			}
		case Moved:
			path = p.OldPath
		}
	}
	d.pending[path] = &pendingEvent{Event: Event{Op: Deleted, Path: path, Dir: dir}, at: now}
}

// Rename records the old side of a rename.
func (d *Debouncer) Rename(path string, dir bool, now time.Time) {
	origin := path
	if p, ok := d.pending[path]; ok {
		delete(d.pending, path)
		if p.Op == Moved {
			origin = p.OldPath
		}
	}
	d.renames = append(d.renames, pendingEvent{Event: Event{Op: Deleted, Path: origin, Dir: dir}, at: now})
}

// Due returns every change that has settled by now, oldest first.
func (d *Debouncer) Due(now time.Time) []Event {
	var ready []pendingEvent

	kept := d.renames[:0]
	for _, r := range d.renames {
		if now.Sub(r.at) >= d.delay {
			ready = append(ready, r)
		} else {
			kept = append(kept, r)
		}
	}
	d.renames = kept

	for path, p := range d.pending {
		if now.Sub(p.at) >= d.delay {
			ready = append(ready, *p)
			delete(d.pending, path)
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		if !ready[i].at.Equal(ready[j].at) {
			return ready[i].at.Before(ready[j].at)
		}
		return ready[i].Path < ready[j].Path
	})

	events := make([]Event, 0, len(ready))
	for _, r := range ready {
		events = append(events, r.Event)
	}
	return events
}

// Len returns the number of unsettled changes.
func (d *Debouncer) Len() int {
	return len(d.pending) + len(d.renames)
}

// touch records that path exists. A pending delete of the same path turns
// into a create of a file that existed before.
func (d *Debouncer) touch(path string, dir, fresh bool, now time.Time) {
	if p, ok := d.pending[path]; ok {
		p.at = now
		if p.Op == Deleted {
			p.Op, p.Dir, p.fresh = Created, dir, false
		}
		return
	}
	d.pending[path] = &pendingEvent{Event: Event{Op: Created, Path: path, Dir: dir}, at: now, fresh: fresh}
}
