/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package scheduler drives the campaign queue. A single loop wakes on a
// configurable interval, asks the executor for one scheduling pass, and
// stretches its sleep while passes keep failing. The loop can be paused,
// resumed, retuned, and triggered out of band while it runs.
package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

const (
	// DefaultInterval is the queue poll cadence.
	DefaultInterval = 30 * time.Second
	// MinInterval and MaxInterval bound the cadence an operator can set.
	MinInterval = 5 * time.Second
	MaxInterval = 3600 * time.Second
	// DefaultSyncEvery is the release reconciliation cadence.
	DefaultSyncEvery = 10 * time.Minute

	// maxBackoff caps the stretched sleep after consecutive failures.
	maxBackoff = 5 * time.Minute
)

// ErrLockHeld reports that another process owns the scheduler lock file,
// and with it the campaign store.
var ErrLockHeld = errors.New("scheduler lock is held by another process")

// Executor runs one scheduling pass over the queue. The process-next
// action satisfies it.
type Executor interface {
	Run(ctx context.Context) (*campaign.Campaign, error)
}

// Options tune a Scheduler.
type Options struct {
	// Interval is the poll cadence, clamped to [MinInterval,
	// MaxInterval]. Zero means DefaultInterval.
	Interval time.Duration

	// LockPath, when set, names a lock file claimed without blocking on
	// Start. A held lock means another controller owns the store and
	// Start refuses with ErrLockHeld.
	LockPath string

	// Sync, when set, runs on the embedded cron runner every SyncEvery
	// to reconcile engine release records with the cluster.
	Sync func(ctx context.Context) error

	// SyncEvery is the reconciliation cadence. Zero means
	// DefaultSyncEvery.
	SyncEvery time.Duration

	// Log receives loop events.
	Log func(string, ...interface{})
}

// Status is a point-in-time snapshot of the loop.
type Status struct {
	Running           bool       `json:"running"`
	Paused            bool       `json:"paused"`
	PollInterval      int        `json:"poll_interval_seconds"`
	TickInFlight      bool       `json:"tick_in_flight"`
	LastTick          *time.Time `json:"last_tick,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
}

// Scheduler owns the polling loop around an Executor. The zero value is
// not usable; construct with New.
type Scheduler struct {
	exec     Executor
	log      func(string, ...interface{})
	lockPath string
	cron     *cron.Cron

	// wake forces a pass even while paused; rearm only re-reads the
	// cadence. Both carry at most one pending signal.
	wake  chan struct{}
	rearm chan struct{}

	// inFlight is the single-flight latch around the pass body.
	inFlight atomic.Bool

	mu       sync.Mutex
	interval time.Duration
	running  bool
	paused   bool
	lastTick time.Time
	lastErr  string
	misses   int
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	lock     *flock.Flock

	// test seams.
	nowFn    func() time.Time
	afterFn  func(time.Duration) <-chan time.Time
	passHook func(error)
}

// New assembles a stopped scheduler around exec.
func New(exec Executor, opts Options) *Scheduler {
	s := &Scheduler{
		exec:     exec,
		log:      opts.Log,
		lockPath: opts.LockPath,
		interval: DefaultInterval,
		wake:     make(chan struct{}, 1),
		rearm:    make(chan struct{}, 1),
	}
	if opts.Interval != 0 {
		s.interval = ClampInterval(opts.Interval)
	}
	if opts.Sync != nil {
		every := opts.SyncEvery
		if every <= 0 {
			every = DefaultSyncEvery
		}
		s.cron = cron.New()
		s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
			if err := opts.Sync(s.runCtx()); err != nil {
				s.logf("release sync: %s", err)
			}
		}))
	}
	return s
}

// ClampInterval bounds a poll cadence to [MinInterval, MaxInterval].
func ClampInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// Start claims the lock file, starts the reconciliation cron, and
// launches the loop. The first pass runs immediately. Starting a running
// scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logf("scheduler is already running")
		return nil
	}
	if s.lockPath != "" && s.lock == nil {
		lock, err := takeLock(s.lockPath)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.lock = lock
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = runCtx, cancel
	s.done = make(chan struct{})
	s.running = true
	every := s.interval
	done := s.done
	s.mu.Unlock()

	drain(s.wake)
	drain(s.rearm)
	if s.cron != nil {
		s.cron.Start()
	}
	go s.loop(runCtx, done)
	s.logf("scheduler started with a %s poll interval", every)
	return nil
}

// Stop cancels the pass in flight, halts the loop and the cron runner,
// and releases the lock file. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.ctx, s.cancel = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	s.mu.Lock()
	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			s.logf("releasing scheduler lock: %s", err)
		}
		s.lock = nil
	}
	s.mu.Unlock()
	s.logf("scheduler stopped")
}

// Pause keeps the loop ticking but skips queue passes until Resume. A
// pass already in flight is not interrupted.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	changed := !s.paused
	s.paused = true
	s.mu.Unlock()
	if changed {
		s.logf("scheduler paused")
	}
}

// Resume lifts a pause and wakes the loop, so a queue that backed up
// while paused is served without waiting out the interval.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	changed := s.paused
	s.paused = false
	s.mu.Unlock()
	if changed {
		s.logf("scheduler resumed")
		poke(s.rearm)
	}
}

// Trigger asks for an immediate pass, even while paused. It reports
// whether the request was accepted; a stopped scheduler or a pass
// already in flight declines it.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running || s.inFlight.Load() {
		return false
	}
	poke(s.wake)
	return true
}

// SetInterval retunes the poll cadence, clamped to [MinInterval,
// MaxInterval], and returns the value applied. A running loop re-arms
// right away instead of sleeping out the old cadence.
func (s *Scheduler) SetInterval(d time.Duration) time.Duration {
	d = ClampInterval(d)
	s.mu.Lock()
	changed := s.interval != d
	s.interval = d
	running := s.running
	s.mu.Unlock()
	if changed {
		s.logf("scheduler poll interval set to %s", d)
		if running {
			poke(s.rearm)
		}
	}
	return d
}

// Status reports the loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:           s.running,
		Paused:            s.paused,
		PollInterval:      int(s.interval / time.Second),
		TickInFlight:      s.inFlight.Load(),
		LastError:         s.lastErr,
		ConsecutiveErrors: s.misses,
	}
	if !s.lastTick.IsZero() {
		t := s.lastTick
		st.LastTick = &t
	}
	return st
}

// loop is the scheduler body: one pass per wake, skipped while paused
// unless the wake came from an explicit trigger.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	forced := false
	for {
		s.mu.Lock()
		skip := s.paused && !forced
		s.mu.Unlock()
		if !skip {
			s.runOnce(ctx)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			forced = true
		case <-s.rearm:
			forced = false
		case <-s.after(s.delay()):
			forced = false
		}
	}
}

// runOnce performs one scheduling pass under the single-flight latch.
func (s *Scheduler) runOnce(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer s.inFlight.Store(false)

	_, err := s.exec.Run(ctx)
	s.account(err)
	if s.passHook != nil {
		s.passHook(err)
	}
}

// account folds one pass outcome into the loop counters. An empty queue
// and a busy executor are routine outcomes, and a pass cut short by
// shutdown is not held against the queue either.
func (s *Scheduler) account(err error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTick = now
	switch {
	case err == nil,
		errors.Is(err, driver.ErrNoPendingCampaigns),
		errors.Is(err, action.ErrAlreadyProcessing):
		s.misses = 0
		s.lastErr = ""
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
	default:
		s.misses++
		s.lastErr = err.Error()
		s.logf("scheduling pass failed (%d consecutive): %s", s.misses, err)
	}
}

// delay returns the sleep before the next pass: the interval, doubled
// per consecutive miss up to five times the interval, and never more
// than maxBackoff.
func (s *Scheduler) delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.misses == 0 {
		return s.interval
	}
	n := s.misses
	if n > 3 {
		n = 3 // 8x, already past the 5x cap
	}
	d := s.interval << uint(n)
	if lim := s.interval * 5; d > lim {
		d = lim
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

// runCtx is the context cron jobs run under; Background once stopped.
func (s *Scheduler) runCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

func (s *Scheduler) now() time.Time {
	if s.nowFn != nil {
		return s.nowFn()
	}
	return time.Now()
}

func (s *Scheduler) after(d time.Duration) <-chan time.Time {
	if s.afterFn != nil {
		return s.afterFn(d)
	}
	return time.After(d)
}

func (s *Scheduler) logf(format string, v ...interface{}) {
	if s.log != nil {
		s.log(format, v...)
	}
}

// takeLock claims the cross-process lock file without blocking.
func takeLock(path string) (*flock.Flock, error) {
	err := os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if err != nil && !os.IsExist(err) {
		return nil, errors.Wrapf(err, "preparing lock directory for %s", path)
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", path)
	}
	if !locked {
		return nil, errors.Wrapf(ErrLockHeld, "%s", path)
	}
	return lock, nil
}

func poke(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func drain(ch chan struct{}) {
	select {
	case <-ch:
	default:
	}
}
