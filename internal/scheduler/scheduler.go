// Package scheduler coalesces rapid change notifications into infrequent
// executions of a save action, and exposes the save state to the UI.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Status is the observable state of an editing session's save cycle.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSaving  Status = "saving"
	StatusSaved   Status = "saved"
	StatusError   Status = "error"
)

// Display windows after which a terminal save status reverts to idle.
const (
	defaultSavedWindow = 2 * time.Second
	defaultErrorWindow = 3 * time.Second
)

// SaveFunc is the caller-supplied save action. Failures never propagate out
// of the scheduler; they are recorded and visible via Status and Err.
type SaveFunc func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithStatusWindows overrides how long the saved and error statuses are
// displayed before reverting to idle.
func WithStatusWindows(saved, errWindow time.Duration) Option {
	return func(s *Scheduler) {
		s.savedWindow = saved
		s.errorWindow = errWindow
	}
}

// WithStatusFunc registers a callback invoked on every status transition.
// The callback runs on the scheduler's goroutine and must not call back
// into the scheduler.
func WithStatusFunc(fn func(Status)) Option {
	return func(s *Scheduler) { s.onStatus = fn }
}

// Scheduler owns one editing session's save state. All methods are safe for
// concurrent use; an explicit in-flight guard keeps executions of the save
// action down to at most one at a time.
type Scheduler struct {
	save        SaveFunc
	delay       time.Duration
	savedWindow time.Duration
	errorWindow time.Duration
	onStatus    func(Status)

	mu         sync.Mutex
	timer      *time.Timer
	resetTimer *time.Timer
	pending    bool
	inFlight   bool
	status     Status
	lastErr    error
}

// New creates a scheduler that runs save after delay has elapsed since the
// most recent Notify.
func New(save SaveFunc, delay time.Duration, opts ...Option) *Scheduler {
	if delay <= 0 {
		delay = time.Second
	}
	s := &Scheduler{
		save:        save,
		delay:       delay,
		savedWindow: defaultSavedWindow,
		errorWindow: defaultErrorWindow,
		status:      StatusIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify records that a change occurred and (re)arms the debounce timer.
// The timer keeps arming even while a save is in flight, so changes made
// during a save are picked up by a follow-up run.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	s.pending = true
	changed := s.setStatusLocked(StatusPending)
	s.stopResetLocked()
	if s.timer == nil {
		s.timer = time.AfterFunc(s.delay, s.timerFired)
	} else {
		s.timer.Reset(s.delay)
	}
	s.mu.Unlock()

	if changed {
		s.emit(StatusPending)
	}
}

// Cancel clears the armed timer and the pending flag. An in-flight save is
// never aborted; once started it runs to completion.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.pending = false
	changed := false
	if !s.inFlight {
		changed = s.setStatusLocked(StatusIdle)
		s.stopResetLocked()
	}
	s.mu.Unlock()

	if changed {
		s.emit(StatusIdle)
	}
}

// Flush clears the timer and, if a change is pending with no save in
// flight, runs the save action immediately and waits for it to complete.
// Otherwise it returns right away. The outcome is observable via Status.
func (s *Scheduler) Flush(ctx context.Context) {
	s.mu.Lock()
	s.stopTimerLocked()
	if !s.pending || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.execute(ctx, false)
}

// Stop releases the scheduler's timers when the editing session closes.
// It does not abort an in-flight save.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.stopResetLocked()
	s.mu.Unlock()
}

// Status returns the current save status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error recorded by the most recent failed save, or nil.
func (s *Scheduler) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// InFlight reports whether a save is currently executing.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *Scheduler) timerFired() {
	s.execute(context.Background(), true)
}

// execute runs the save action under the in-flight guard. When the timer
// fires during an ongoing save the run is deferred by re-arming the timer,
// so the change pending behind the guard is never dropped.
func (s *Scheduler) execute(ctx context.Context, fromTimer bool) {
	s.mu.Lock()
	if s.inFlight {
		if fromTimer && s.pending {
			if s.timer == nil {
				s.timer = time.AfterFunc(s.delay, s.timerFired)
			} else {
				s.timer.Reset(s.delay)
			}
		}
		s.mu.Unlock()
		return
	}
	if !s.pending {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.inFlight = true
	s.setStatusLocked(StatusSaving)
	s.stopResetLocked()
	s.mu.Unlock()
	s.emit(StatusSaving)

	err := s.save(ctx)

	s.mu.Lock()
	s.inFlight = false
	var st Status
	var window time.Duration
	if err != nil {
		s.lastErr = err
		st = StatusError
		window = s.errorWindow
	} else {
		s.lastErr = nil
		st = StatusSaved
		window = s.savedWindow
	}
	s.setStatusLocked(st)
	s.armResetLocked(window)
	s.mu.Unlock()
	s.emit(st)
}

func (s *Scheduler) armResetLocked(window time.Duration) {
	s.stopResetLocked()
	s.resetTimer = time.AfterFunc(window, func() {
		s.mu.Lock()
		changed := false
		// Only revert a lingering terminal status; a Notify in the
		// meantime has already moved the session back to pending.
		if s.status == StatusSaved || s.status == StatusError {
			changed = s.setStatusLocked(StatusIdle)
		}
		s.mu.Unlock()
		if changed {
			s.emit(StatusIdle)
		}
	})
}

func (s *Scheduler) setStatusLocked(st Status) bool {
	if s.status == st {
		return false
	}
	s.status = st
	return true
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Scheduler) stopResetLocked() {
	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.resetTimer = nil
	}
}

func (s *Scheduler) emit(st Status) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}
