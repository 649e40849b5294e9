package types

import "time"

// TraversalState is the persisted record for one tab's traversal. Field names
// are the on-disk layout and must not change.
type TraversalState struct {
	URLs         []string `json:"urls"`
	CurrentIndex int      `json:"currentIndex"`
	IntervalMs   int64    `json:"intervalMs"`
	IsRunning    bool     `json:"isRunning"`
	IsPaused     bool     `json:"isPaused"`
	NextRunAt    int64    `json:"nextRunAt"` // epoch milliseconds
}

// Active reports whether the traversal should have a wake-up armed.
func (s TraversalState) Active() bool {
	return s.IsRunning && !s.IsPaused
}

// Interval returns IntervalMs as a duration.
func (s TraversalState) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// NextRun returns NextRunAt as a wall-clock time.
func (s TraversalState) NextRun() time.Time {
	return time.UnixMilli(s.NextRunAt)
}

// Remaining is the wait until NextRunAt, floored at zero.
func (s TraversalState) Remaining(now time.Time) time.Duration {
	d := s.NextRun().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CurrentURL returns the URL at CurrentIndex, or "" when the list is empty.
func (s TraversalState) CurrentURL() string {
	if len(s.URLs) == 0 {
		return ""
	}
	return s.URLs[s.clampedIndex()]
}

// Advance moves CurrentIndex to the next URL, wrapping at the end.
// It is a no-op for an empty list.
func (s *TraversalState) Advance() {
	if len(s.URLs) == 0 {
		s.CurrentIndex = 0
		return
	}
	s.CurrentIndex = (s.clampedIndex() + 1) % len(s.URLs)
}

// Normalize repairs a record that violates the state invariants and reports
// whether anything changed.
func (s *TraversalState) Normalize() bool {
	changed := false
	if s.IsPaused && !s.IsRunning {
		s.IsPaused = false
		changed = true
	}
	if idx := s.clampedIndex(); idx != s.CurrentIndex {
		s.CurrentIndex = idx
		changed = true
	}
	return changed
}

// Clone returns a deep copy so callers cannot alias the URL slice.
func (s TraversalState) Clone() TraversalState {
	out := s
	if s.URLs != nil {
		out.URLs = append([]string(nil), s.URLs...)
	}
	return out
}

func (s TraversalState) clampedIndex() int {
	n := len(s.URLs)
	if n == 0 {
		return 0
	}
	idx := s.CurrentIndex % n
	if idx < 0 {
		idx += n
	}
	return idx
}
