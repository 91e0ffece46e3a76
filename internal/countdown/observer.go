package countdown

import (
	"time"

	"github.com/clashmarket/arena/internal/domain"
)

// Observer is one viewer's state for one game: the last accepted snapshot and
// the last displayed remaining time. It is not safe for concurrent use; the
// watch loop owns it.
type Observer struct {
	snap      Snapshot
	hasSnap   bool
	lastShown time.Duration
	shown     bool
}

// Snapshot returns the last accepted snapshot.
func (o *Observer) Snapshot() (Snapshot, bool) {
	return o.snap, o.hasSnap
}

// Reconcile applies s iff it moves the game forward: a higher-ranked status, or
// the same non-terminal status with a strictly newer UpdatedAt. Stale, duplicate
// and regressing snapshots are ignored. It reports whether s was applied.
func (o *Observer) Reconcile(s Snapshot) bool {
	if !s.Status.Valid() {
		return false
	}
	if !o.hasSnap {
		o.snap, o.hasSnap = s, true
		return true
	}
	if s.GameID != o.snap.GameID {
		return false
	}

	cur := o.snap
	switch {
	case s.Status.Rank() > cur.Status.Rank():
	case s.Status == cur.Status && !cur.Status.IsTerminal() && s.UpdatedAt.After(cur.UpdatedAt):
		if cur.Status == domain.GameActive && startChanged(cur.StartTime, s.StartTime) {
			// A fresher read corrected the start; the display may move up.
			o.shown = false
		}
	default:
		return false
	}

	o.snap = s
	return true
}

// Remaining returns the value to display at now. While active the displayed
// value never increases between calls, which also makes the switch from the
// static pre-start duration to the live countdown seamless.
func (o *Observer) Remaining(now time.Time) time.Duration {
	if !o.hasSnap {
		return 0
	}
	r := o.snap.Remaining(now)
	if o.snap.Status == domain.GameActive && o.shown && r > o.lastShown {
		r = o.lastShown
	}
	o.lastShown, o.shown = r, true
	return r
}

// Active reports whether the countdown is live.
func (o *Observer) Active() bool {
	return o.hasSnap && o.snap.Status == domain.GameActive
}

// Done reports whether the game reached a terminal status.
func (o *Observer) Done() bool {
	return o.hasSnap && o.snap.Status.IsTerminal()
}

func startChanged(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a != b
	}
	return !a.Equal(*b)
}
