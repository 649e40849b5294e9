// Package badge derives per-tab countdown display updates from a traversal's
// persisted deadline. Nothing here is authoritative: each countdown is
// rebuilt from nextRunAt whenever the scheduler arms a tab, and torn down on
// pause, stop and shutdown.
package badge

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/tab_traverser/internal/relay"
)

// Feed is the relay feed name badge updates are published on.
const Feed = "badge"

// Update is one display refresh for a tab.
type Update struct {
	TabID       string `json:"tab_id"`
	RemainingMs int64  `json:"remaining_ms"`
	Text        string `json:"text"`
	Paused      bool   `json:"paused,omitempty"`
	Cleared     bool   `json:"cleared,omitempty"`
}

// Publisher is satisfied by *relay.Broker.
type Publisher interface {
	Publish(evt relay.Event)
}

type countdown struct {
	stop     chan struct{}
	done     chan struct{}
	finished atomic.Bool
}

// Registry owns one countdown goroutine per tracked tab.
type Registry struct {
	pub     Publisher
	refresh time.Duration
	now     func() time.Time

	mu         sync.Mutex
	countdowns map[string]*countdown
	closed     bool
}

// NewRegistry returns a registry publishing to pub. A refresh of zero
// publishes once per state change without a running countdown.
func NewRegistry(pub Publisher, refresh time.Duration) *Registry {
	return &Registry{
		pub:        pub,
		refresh:    refresh,
		now:        time.Now,
		countdowns: make(map[string]*countdown),
	}
}

// Track starts (or restarts) the countdown towards nextRunAt.
func (r *Registry) Track(tabID string, nextRunAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.stopLocked(tabID)

	if r.refresh <= 0 {
		r.publish(r.running(tabID, nextRunAt))
		return
	}

	cd := &countdown{stop: make(chan struct{}), done: make(chan struct{})}
	r.countdowns[tabID] = cd
	go r.run(tabID, nextRunAt, cd)
}

// Freeze stops the countdown and shows the remaining wait as paused.
func (r *Registry) Freeze(tabID string, remaining time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.stopLocked(tabID)
	r.publish(Update{TabID: tabID, RemainingMs: remaining.Milliseconds(), Text: "II", Paused: true})
}

// Clear stops the countdown and blanks the badge.
func (r *Registry) Clear(tabID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.stopLocked(tabID)
	r.publish(Update{TabID: tabID, Cleared: true})
}

// Close stops every countdown without publishing.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for id := range r.countdowns {
		r.stopLocked(id)
	}
}

// Active returns the number of running countdowns.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, cd := range r.countdowns {
		if !cd.finished.Load() {
			n++
		}
	}
	return n
}

// stopLocked waits for the goroutine to exit so no stale update follows.
// Countdown goroutines never take r.mu.
func (r *Registry) stopLocked(tabID string) {
	cd, ok := r.countdowns[tabID]
	if !ok {
		return
	}
	delete(r.countdowns, tabID)
	close(cd.stop)
	<-cd.done
}

func (r *Registry) run(tabID string, nextRunAt time.Time, cd *countdown) {
	defer close(cd.done)

	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		u := r.running(tabID, nextRunAt)
		r.publish(u)
		if u.RemainingMs == 0 {
			cd.finished.Store(true)
			return
		}
		select {
		case <-cd.stop:
			return
		case <-ticker.C:
		}
	}
}

func (r *Registry) running(tabID string, nextRunAt time.Time) Update {
	remaining := nextRunAt.Sub(r.now())
	if remaining < 0 {
		remaining = 0
	}
	return Update{TabID: tabID, RemainingMs: remaining.Milliseconds(), Text: FormatRemaining(remaining)}
}

func (r *Registry) publish(u Update) {
	data, err := json.Marshal(u)
	if err != nil {
		slog.Debug("badge marshal failed", "tab_id", u.TabID, "error", err)
		return
	}
	r.pub.Publish(relay.Event{Feed: Feed, Payload: string(data)})
}

// FormatRemaining renders a wait compactly enough for a toolbar badge.
func FormatRemaining(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int((d+time.Second-1)/time.Second))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d/time.Minute))
	default:
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
}
