// Package traversal cycles browser tabs through ordered URL lists.
//
// The Scheduler owns the per-tab state machine (Idle → Running ⇄ Paused →
// Idle). Every operation re-reads the persisted record under a per-tab lock,
// computes the next record, persists it and then arms or cancels the tab's
// single wake-up. The absolute nextRunAt in the record is the only source of
// truth for timing, which is what lets the process die and come back.
package traversal

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgnsrekt/tab_traverser/internal/storage"
	"github.com/dgnsrekt/tab_traverser/internal/types"
)

// Timer arms one-shot wake-ups keyed by tab. Arm replaces any pending
// registration for the same tab; Cancel is a no-op when nothing is pending.
type Timer interface {
	Arm(tabID string, at time.Time)
	Cancel(tabID string)
}

// Navigator points a tab at a URL.
type Navigator interface {
	Navigate(ctx context.Context, tabID, url string) error
}

// Display receives derived countdown state. It never feeds back into
// scheduling.
type Display interface {
	Track(tabID string, nextRunAt time.Time)
	Freeze(tabID string, remaining time.Duration)
	Clear(tabID string)
}

// AutoStopFunc is called after a traversal was stopped because its tab no
// longer exists.
type AutoStopFunc func(ctx context.Context, tabID string, cause error)

// Outcome names what an operation did.
type Outcome string

const (
	OutcomeStarted     Outcome = "started"
	OutcomePaused      Outcome = "paused"
	OutcomeResumed     Outcome = "resumed"
	OutcomeStopped     Outcome = "stopped"
	OutcomeAdvanced    Outcome = "advanced"
	OutcomeAutoStopped Outcome = "auto_stopped"
	OutcomeNoop        Outcome = "noop"
)

// Result reports an operation's outcome and the state it left behind.
// State is the zero value when the tab ended up idle.
type Result struct {
	Outcome Outcome
	State   types.TraversalState
}

// Applied reports whether the operation changed anything.
func (r Result) Applied() bool { return r.Outcome != OutcomeNoop }

// View is a read-only snapshot of one tab's traversal.
type View struct {
	TabID       string               `json:"tab_id"`
	State       types.TraversalState `json:"state"`
	CurrentURL  string               `json:"current_url"`
	RemainingMs int64                `json:"remaining_ms"`
}

type nopDisplay struct{}

func (nopDisplay) Track(string, time.Time)     {}
func (nopDisplay) Freeze(string, time.Duration) {}
func (nopDisplay) Clear(string)                 {}

// Scheduler runs traversals for any number of tabs.
type Scheduler struct {
	store      storage.Store
	timer      Timer
	nav        Navigator
	display    Display
	onAutoStop AutoStopFunc
	now        func() time.Time
	navTimeout time.Duration
	readRetry  time.Duration
	locks      *tabLocks
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithDisplay attaches a countdown sink.
func WithDisplay(d Display) Option {
	return func(s *Scheduler) {
		if d != nil {
			s.display = d
		}
	}
}

// WithAutoStop registers a hook for traversals stopped by a closed tab.
func WithAutoStop(fn AutoStopFunc) Option {
	return func(s *Scheduler) { s.onAutoStop = fn }
}

// WithNavTimeout bounds each navigation started by a wake-up.
func WithNavTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.navTimeout = d
		}
	}
}

// WithReadRetry sets how soon a wake-up is retried when the tick could not
// read the tab's record.
func WithReadRetry(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.readRetry = d
		}
	}
}

func New(st storage.Store, timer Timer, nav Navigator, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:      st,
		timer:      timer,
		nav:        nav,
		display:    nopDisplay{},
		now:        time.Now,
		navTimeout: 15 * time.Second,
		readRetry:  5 * time.Second,
		locks:      newTabLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start replaces whatever the tab was doing with a fresh traversal at index 0.
func (s *Scheduler) Start(ctx context.Context, tabID string, urls []string, intervalMs int64) (Result, error) {
	tabID = strings.TrimSpace(tabID)
	clean, err := validateStart(tabID, urls, intervalMs)
	if err != nil {
		return Result{}, err
	}

	unlock := s.locks.lock(tabID)
	defer unlock()

	st := s.freshState(clean, intervalMs)
	if err := s.store.Set(ctx, tabID, st); err != nil {
		return Result{}, storeError("start", tabID, err)
	}
	s.arm(tabID, st)

	slog.Info("traversal started", "tab_id", tabID, "urls", len(st.URLs), "interval_ms", intervalMs, "next_run_at", st.NextRunAt)
	return Result{Outcome: OutcomeStarted, State: st}, nil
}

// StartIfIdle starts a traversal only when the tab has no persisted state.
func (s *Scheduler) StartIfIdle(ctx context.Context, tabID string, urls []string, intervalMs int64) (Result, error) {
	tabID = strings.TrimSpace(tabID)
	clean, err := validateStart(tabID, urls, intervalMs)
	if err != nil {
		return Result{}, err
	}

	unlock := s.locks.lock(tabID)
	defer unlock()

	current, ok, err := s.store.Get(ctx, tabID)
	if err != nil {
		return Result{}, readError("start", tabID, err)
	}
	if ok {
		return Result{Outcome: OutcomeNoop, State: current}, nil
	}

	st := s.freshState(clean, intervalMs)
	if err := s.store.Set(ctx, tabID, st); err != nil {
		return Result{}, storeError("start", tabID, err)
	}
	s.arm(tabID, st)
	slog.Info("traversal started", "tab_id", tabID, "urls", len(st.URLs), "interval_ms", intervalMs, "next_run_at", st.NextRunAt, "autostart", true)
	return Result{Outcome: OutcomeStarted, State: st}, nil
}

// Pause freezes a running traversal. No-op unless running and unpaused.
func (s *Scheduler) Pause(ctx context.Context, tabID string) (Result, error) {
	tabID = strings.TrimSpace(tabID)
	unlock := s.locks.lock(tabID)
	defer unlock()

	st, ok, err := s.store.Get(ctx, tabID)
	if err != nil {
		return Result{}, readError("pause", tabID, err)
	}
	if !ok || !st.Active() {
		return Result{Outcome: OutcomeNoop, State: st}, nil
	}

	st.IsPaused = true
	if err := s.store.Set(ctx, tabID, st); err != nil {
		return Result{}, storeError("pause", tabID, err)
	}
	s.timer.Cancel(tabID)
	s.display.Freeze(tabID, st.Remaining(s.now()))

	slog.Info("traversal paused", "tab_id", tabID, "current_index", st.CurrentIndex, "next_run_at", st.NextRunAt)
	return Result{Outcome: OutcomePaused, State: st}, nil
}

// Resume continues a paused traversal with the wait that was left at pause
// time. A deadline that already passed earns a full interval instead of an
// immediate fire.
func (s *Scheduler) Resume(ctx context.Context, tabID string) (Result, error) {
	tabID = strings.TrimSpace(tabID)
	unlock := s.locks.lock(tabID)
	defer unlock()

	st, ok, err := s.store.Get(ctx, tabID)
	if err != nil {
		return Result{}, readError("resume", tabID, err)
	}
	if !ok || !st.IsRunning || !st.IsPaused {
		return Result{Outcome: OutcomeNoop, State: st}, nil
	}

	now := s.now()
	remaining := resumeWait(st, now)
	st.IsPaused = false
	st.NextRunAt = now.Add(remaining).UnixMilli()
	if err := s.store.Set(ctx, tabID, st); err != nil {
		return Result{}, storeError("resume", tabID, err)
	}
	s.arm(tabID, st)

	slog.Info("traversal resumed", "tab_id", tabID, "remaining_ms", remaining.Milliseconds(), "next_run_at", st.NextRunAt)
	return Result{Outcome: OutcomeResumed, State: st}, nil
}

// Stop cancels the wake-up and removes the tab's state. Safe on idle tabs.
func (s *Scheduler) Stop(ctx context.Context, tabID string) (Result, error) {
	tabID = strings.TrimSpace(tabID)
	unlock := s.locks.lock(tabID)
	defer unlock()

	if err := s.stopLocked(ctx, tabID); err != nil {
		return Result{}, err
	}
	slog.Info("traversal stopped", "tab_id", tabID)
	return Result{Outcome: OutcomeStopped}, nil
}

func (s *Scheduler) stopLocked(ctx context.Context, tabID string) error {
	prev, hadPrev, getErr := s.store.Get(ctx, tabID)
	if getErr != nil {
		slog.Debug("traversal stop: read before remove failed", "tab_id", tabID, "error", getErr)
	}

	s.timer.Cancel(tabID)
	if err := s.store.Remove(ctx, tabID); err != nil {
		// The record is still there; keep its wake-up so state and timer agree.
		if hadPrev && prev.Active() {
			s.timer.Arm(tabID, prev.NextRun())
		}
		return storeError("stop", tabID, err)
	}
	s.display.Clear(tabID)
	return nil
}

// Tick handles a delivered wake-up: navigate to the current URL, advance,
// and re-arm one interval out. Anything other than a running, unpaused
// traversal makes it a no-op, which absorbs wake-ups that raced a pause or
// stop.
func (s *Scheduler) Tick(ctx context.Context, tabID string) (Result, error) {
	return s.tick(ctx, tabID, false)
}

// earlyFireTolerance absorbs timer jitter and the millisecond truncation of
// nextRunAt when deciding whether a delivered wake-up is still due.
const earlyFireTolerance = 50 * time.Millisecond

func (s *Scheduler) tick(ctx context.Context, tabID string, fromTimer bool) (Result, error) {
	unlock := s.locks.lock(tabID)
	defer unlock()

	st, ok, err := s.store.Get(ctx, tabID)
	if err != nil {
		// The delivered wake-up is spent; without a retry a running record
		// would never fire again.
		s.timer.Arm(tabID, s.now().Add(s.readRetry))
		return Result{}, readError("tick", tabID, err)
	}
	if !ok || !st.Active() {
		slog.Debug("traversal tick ignored", "tab_id", tabID, "present", ok, "running", st.IsRunning, "paused", st.IsPaused)
		return Result{Outcome: OutcomeNoop, State: st}, nil
	}
	if fromTimer && s.now().Before(st.NextRun().Add(-earlyFireTolerance)) {
		// A Start or Resume that won the lock re-armed the tab for later.
		slog.Debug("traversal wakeup ahead of schedule", "tab_id", tabID, "next_run_at", st.NextRunAt)
		return Result{Outcome: OutcomeNoop, State: st}, nil
	}
	st.Normalize()

	if url := st.CurrentURL(); url != "" {
		if navErr := s.navigate(ctx, tabID, url); navErr != nil {
			if types.HasCode(navErr, types.CodeTabNotFound) {
				return s.autoStopLocked(ctx, tabID, navErr)
			}
			slog.Warn("traversal navigation failed", "tab_id", tabID, "url", url, "error", navErr)
		}
	}

	st.Advance()
	st.NextRunAt = s.now().Add(st.Interval()).UnixMilli()
	if err := s.store.Set(ctx, tabID, st); err != nil {
		// Keep the cycle alive; the next tick re-reads whatever did land.
		s.arm(tabID, st)
		return Result{Outcome: OutcomeAdvanced, State: st}, storeError("tick", tabID, err)
	}
	s.arm(tabID, st)

	slog.Debug("traversal advanced", "tab_id", tabID, "current_index", st.CurrentIndex, "next_run_at", st.NextRunAt)
	return Result{Outcome: OutcomeAdvanced, State: st}, nil
}

// Fire is the Timer callback. It runs a tick with a bounded context and logs
// the outcome; wake-ups have no caller to report to. Unlike Tick, it drops a
// delivery that arrives well before the record's nextRunAt.
func (s *Scheduler) Fire(tabID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.navTimeout+5*time.Second)
	defer cancel()

	res, err := s.tick(ctx, tabID, true)
	if err != nil {
		slog.Error("traversal tick failed", "tab_id", tabID, "outcome", res.Outcome, "error", err)
	}
}

// Get returns the tab's traversal, or a NOT_FOUND error when idle.
func (s *Scheduler) Get(ctx context.Context, tabID string) (View, error) {
	tabID = strings.TrimSpace(tabID)
	st, ok, err := s.store.Get(ctx, tabID)
	if err != nil {
		return View{}, readError("get", tabID, err)
	}
	if !ok {
		return View{}, types.NewError(types.CodeNotFound, "no traversal for tab "+tabID, nil)
	}
	return s.view(tabID, st), nil
}

// List returns every persisted traversal.
func (s *Scheduler) List(ctx context.Context) ([]View, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, readError("list", "", err)
	}
	out := make([]View, 0, len(all))
	for id, st := range all {
		out = append(out, s.view(id, st))
	}
	sortViews(out)
	return out, nil
}

// Recover re-arms every persisted running traversal. It is meant for boot,
// before the Timer has any registrations. Overdue deadlines fire once, right
// away; there is no catch-up for the intervals missed while down.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return 0, readError("recover", "", err)
	}

	armed := 0
	for id := range all {
		unlock := s.locks.lock(id)
		st, ok, err := s.store.Get(ctx, id)
		if err != nil {
			unlock()
			slog.Warn("traversal recover read failed", "tab_id", id, "error", err)
			continue
		}
		if !ok {
			unlock()
			continue
		}
		if st.Normalize() {
			if err := s.store.Set(ctx, id, st); err != nil {
				slog.Warn("traversal recover repair failed", "tab_id", id, "error", err)
			}
		}
		switch {
		case st.Active():
			s.arm(id, st)
			armed++
		case st.IsPaused:
			s.display.Freeze(id, st.Remaining(s.now()))
		}
		unlock()
	}
	slog.Info("traversals recovered", "records", len(all), "armed", armed)
	return armed, nil
}

func (s *Scheduler) autoStopLocked(ctx context.Context, tabID string, cause error) (Result, error) {
	slog.Warn("traversal auto-stopped: tab is gone", "tab_id", tabID, "error", cause)
	if err := s.stopLocked(ctx, tabID); err != nil {
		return Result{}, err
	}
	if s.onAutoStop != nil {
		s.onAutoStop(ctx, tabID, cause)
	}
	return Result{Outcome: OutcomeAutoStopped}, nil
}

func (s *Scheduler) navigate(ctx context.Context, tabID, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()
	return s.nav.Navigate(navCtx, tabID, url)
}

func (s *Scheduler) arm(tabID string, st types.TraversalState) {
	next := st.NextRun()
	s.timer.Arm(tabID, next)
	s.display.Track(tabID, next)
}

func (s *Scheduler) freshState(urls []string, intervalMs int64) types.TraversalState {
	return types.TraversalState{
		URLs:         urls,
		CurrentIndex: 0,
		IntervalMs:   intervalMs,
		IsRunning:    true,
		IsPaused:     false,
		NextRunAt:    s.now().Add(time.Duration(intervalMs) * time.Millisecond).UnixMilli(),
	}
}

func (s *Scheduler) view(tabID string, st types.TraversalState) View {
	v := View{TabID: tabID, State: st, CurrentURL: st.CurrentURL()}
	if st.IsRunning {
		v.RemainingMs = st.Remaining(s.now()).Milliseconds()
	}
	return v
}

// resumeWait is the wait left at pause time, clamped to [0, interval], with
// zero replaced by a full interval.
func resumeWait(st types.TraversalState, now time.Time) time.Duration {
	interval := st.Interval()
	remaining := st.Remaining(now)
	if remaining <= 0 || remaining > interval {
		return interval
	}
	return remaining
}

func sortViews(vs []View) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].TabID < vs[j].TabID })
}

func validateStart(tabID string, urls []string, intervalMs int64) ([]string, error) {
	if tabID == "" {
		return nil, types.NewError(types.CodeValidation, "tab_id is required", nil)
	}
	if len(urls) == 0 {
		return nil, types.NewError(types.CodeValidation, "urls must not be empty", nil)
	}
	if intervalMs <= 0 {
		return nil, types.NewError(types.CodeValidation, fmt.Sprintf("interval_ms must be positive, got %d", intervalMs), nil)
	}
	clean := make([]string, 0, len(urls))
	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, types.NewError(types.CodeValidation, fmt.Sprintf("urls[%d] is empty", i), nil)
		}
		clean = append(clean, u)
	}
	return clean, nil
}

func readError(op, tabID string, err error) error {
	msg := op + " failed to read state"
	if tabID != "" {
		msg = op + " failed to read tab " + tabID
	}
	return types.NewError(types.CodeStoreFailure, msg, err)
}

func storeError(op, tabID string, err error) error {
	msg := op + " failed to persist"
	if tabID != "" {
		msg = op + " failed to persist tab " + tabID
	}
	return types.NewError(types.CodeStoreFailure, msg, err)
}
