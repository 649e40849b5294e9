package wakeup

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

const maxSleepCap = 60 * time.Second

// Timer delivers at most one callback per Arm, keyed by tab identifier.
// Arming a key that is already pending replaces the earlier deadline.
type Timer struct {
	fire func(tabID string)
	now  func() time.Time

	mu      sync.Mutex
	h       deadlineHeap
	pending map[string]*entry
	seq     uint64

	inflight sync.WaitGroup
	wake     chan struct{}
	done     chan struct{}
}

// New creates and starts a Timer. fire runs on its own goroutine for each
// delivered wake-up. The loop exits when ctx is cancelled.
func New(ctx context.Context, fire func(tabID string)) *Timer {
	t := newTimer(fire, time.Now)
	go t.run(ctx)
	return t
}

func newTimer(fire func(string), now func() time.Time) *Timer {
	return &Timer{
		fire:    fire,
		now:     now,
		pending: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Arm registers a wake-up for tabID at the absolute time at.
func (t *Timer) Arm(tabID string, at time.Time) {
	t.mu.Lock()
	if old, ok := t.pending[tabID]; ok {
		t.h.remove(old)
	}
	t.seq++
	e := &entry{tabID: tabID, at: at, seq: t.seq}
	heap.Push(&t.h, e)
	t.pending[tabID] = e
	t.mu.Unlock()

	slog.Debug("wakeup armed", "tab_id", tabID, "at", at.UnixMilli())
	t.poke()
}

// Cancel removes the pending wake-up for tabID. Once Cancel returns, the loop
// will not start a delivery for the cancelled registration.
func (t *Timer) Cancel(tabID string) {
	t.mu.Lock()
	e, ok := t.pending[tabID]
	if ok {
		t.h.remove(e)
		delete(t.pending, tabID)
	}
	t.mu.Unlock()

	if ok {
		slog.Debug("wakeup cancelled", "tab_id", tabID)
		t.poke()
	}
}

// Deadline returns the pending deadline for tabID.
func (t *Timer) Deadline(tabID string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.pending[tabID]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Len returns the number of pending wake-ups.
func (t *Timer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.h.Len()
}

// Done is closed after the loop exits and every delivery it started has
// returned.
func (t *Timer) Done() <-chan struct{} { return t.done }

func (t *Timer) poke() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

func (t *Timer) run(ctx context.Context) {
	defer close(t.done)
	defer t.inflight.Wait()

	timer := time.NewTimer(maxSleepCap)
	defer timer.Stop()

	for {
		resetTimer(timer, t.nextSleep())

		select {
		case <-ctx.Done():
			return
		case <-t.wake:
		case <-timer.C:
			for _, id := range t.popDue() {
				t.inflight.Add(1)
				go func(id string) {
					defer t.inflight.Done()
					t.fire(id)
				}(id)
			}
		}
	}
}

// nextSleep returns how long the loop may sleep before re-checking.
func (t *Timer) nextSleep() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.h.Len() == 0 {
		return maxSleepCap
	}
	d := t.h[0].at.Sub(t.now())
	if d > maxSleepCap {
		d = maxSleepCap
	}
	if d < 0 {
		d = 0
	}
	return d
}

// popDue removes and returns every entry whose deadline has passed.
func (t *Timer) popDue() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var due []string
	for t.h.Len() > 0 && !t.h[0].at.After(now) {
		e := heap.Pop(&t.h).(*entry)
		delete(t.pending, e.tabID)
		due = append(due, e.tabID)
	}
	return due
}

func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
