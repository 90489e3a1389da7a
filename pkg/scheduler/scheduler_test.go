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

package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

// stubExecutor serves scripted pass outcomes; the last entry repeats.
type stubExecutor struct {
	mu      sync.Mutex
	script  []error
	calls   int
	block   chan struct{} // when set, Run stalls until a send or ctx end
	entered chan struct{} // when set, signaled at each Run entry
}

func (e *stubExecutor) Run(ctx context.Context) (*campaign.Campaign, error) {
	e.mu.Lock()
	e.calls++
	var err error
	if n := len(e.script); n > 0 {
		i := e.calls - 1
		if i >= n {
			i = n - 1
		}
		err = e.script[i]
	}
	block := e.block
	entered := e.entered
	e.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

func (e *stubExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// rig wires a scheduler to hand-cranked time: the armed timer fires only
// when the test says so, every armed delay is recorded, and every pass
// outcome is delivered on a channel.
type rig struct {
	s      *Scheduler
	exec   *stubExecutor
	timer  chan time.Time
	delays chan time.Duration
	passes chan error
}

func newRig(t *testing.T, exec *stubExecutor, opts Options) *rig {
	t.Helper()
	r := &rig{
		s:      New(exec, opts),
		exec:   exec,
		timer:  make(chan time.Time),
		delays: make(chan time.Duration, 32),
		passes: make(chan error, 32),
	}
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ticks := 0
	r.s.nowFn = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	r.s.afterFn = func(d time.Duration) <-chan time.Time {
		r.delays <- d
		return r.timer
	}
	r.s.passHook = func(err error) { r.passes <- err }
	t.Cleanup(r.s.Stop)
	return r
}

func (r *rig) start(t *testing.T) {
	t.Helper()
	require.NoError(t, r.s.Start(context.Background()))
}

// fire releases the armed timer.
func (r *rig) fire(t *testing.T) {
	t.Helper()
	select {
	case r.timer <- time.Time{}:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler loop never armed its timer")
	}
}

// pass waits for the next pass outcome.
func (r *rig) pass(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.passes:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduling pass")
		return nil
	}
}

// delay waits for the loop to re-arm and returns the armed duration.
func (r *rig) delay(t *testing.T) time.Duration {
	t.Helper()
	select {
	case d := <-r.delays:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the loop to re-arm")
		return 0
	}
}

func TestSchedulerStartStopRestart(t *testing.T) {
	exec := &stubExecutor{script: []error{driver.ErrNoPendingCampaigns}}
	r := newRig(t, exec, Options{})

	r.start(t)
	require.ErrorIs(t, r.pass(t), driver.ErrNoPendingCampaigns)
	assert.Equal(t, DefaultInterval, r.delay(t))
	assert.True(t, r.s.Status().Running)

	// a second Start must not spawn a second loop
	require.NoError(t, r.s.Start(context.Background()))
	r.fire(t)
	r.pass(t)
	r.delay(t)
	assert.Equal(t, 2, exec.count())

	r.s.Stop()
	assert.False(t, r.s.Status().Running)
	r.s.Stop()

	r.start(t)
	r.pass(t)
	r.delay(t)
	assert.Equal(t, 3, exec.count())
	r.s.Stop()
}

func TestSchedulerBackoffStretchesAfterFailures(t *testing.T) {
	boom := errors.New("store is down")
	exec := &stubExecutor{script: []error{boom, boom, boom, boom, driver.ErrNoPendingCampaigns}}
	r := newRig(t, exec, Options{Interval: 30 * time.Second})

	r.start(t)
	require.EqualError(t, r.pass(t), "store is down")
	assert.Equal(t, 60*time.Second, r.delay(t))

	st := r.s.Status()
	assert.Equal(t, 1, st.ConsecutiveErrors)
	assert.Equal(t, "store is down", st.LastError)
	assert.NotNil(t, st.LastTick)

	r.fire(t)
	require.Error(t, r.pass(t))
	assert.Equal(t, 120*time.Second, r.delay(t))

	r.fire(t)
	require.Error(t, r.pass(t))
	assert.Equal(t, 150*time.Second, r.delay(t), "backoff must cap at five intervals")

	r.fire(t)
	require.Error(t, r.pass(t))
	assert.Equal(t, 150*time.Second, r.delay(t))

	// one clean pass resets the streak
	r.fire(t)
	require.ErrorIs(t, r.pass(t), driver.ErrNoPendingCampaigns)
	assert.Equal(t, 30*time.Second, r.delay(t))

	st = r.s.Status()
	assert.Zero(t, st.ConsecutiveErrors)
	assert.Empty(t, st.LastError)
}

func TestSchedulerBackoffAbsoluteCap(t *testing.T) {
	exec := &stubExecutor{script: []error{errors.New("boom")}}
	r := newRig(t, exec, Options{Interval: MaxInterval})

	r.start(t)
	require.Error(t, r.pass(t))
	assert.Equal(t, 5*time.Minute, r.delay(t))
}

func TestSchedulerRoutineOutcomesDoNotBackOff(t *testing.T) {
	exec := &stubExecutor{script: []error{
		driver.ErrNoPendingCampaigns,
		errors.Wrapf(action.ErrAlreadyProcessing, "campaign %q", "campaign-busy"),
	}}
	r := newRig(t, exec, Options{Interval: MinInterval})

	r.start(t)
	require.ErrorIs(t, r.pass(t), driver.ErrNoPendingCampaigns)
	assert.Equal(t, MinInterval, r.delay(t))

	r.fire(t)
	require.ErrorIs(t, r.pass(t), action.ErrAlreadyProcessing)
	assert.Equal(t, MinInterval, r.delay(t))

	st := r.s.Status()
	assert.Zero(t, st.ConsecutiveErrors)
	assert.Empty(t, st.LastError)
}

func TestSchedulerPauseSkipsPasses(t *testing.T) {
	exec := &stubExecutor{script: []error{driver.ErrNoPendingCampaigns}}
	r := newRig(t, exec, Options{})

	r.start(t)
	r.pass(t)
	r.delay(t)

	r.s.Pause()
	assert.True(t, r.s.Status().Paused)

	r.fire(t)
	r.delay(t)
	r.fire(t)
	r.delay(t)
	assert.Equal(t, 1, exec.count(), "a paused loop must not pick")

	// an explicit trigger overrides the pause
	require.True(t, r.s.Trigger())
	r.pass(t)
	r.delay(t)
	assert.Equal(t, 2, exec.count())
	assert.True(t, r.s.Status().Paused)

	// resume serves the queue without waiting out the interval
	r.s.Resume()
	r.pass(t)
	r.delay(t)
	assert.Equal(t, 3, exec.count())
	assert.False(t, r.s.Status().Paused)
}

func TestSchedulerTriggerDeclinedWhenStopped(t *testing.T) {
	s := New(&stubExecutor{}, Options{})
	assert.False(t, s.Trigger())
}

func TestSchedulerStopCancelsPassInFlight(t *testing.T) {
	exec := &stubExecutor{
		block:   make(chan struct{}),
		entered: make(chan struct{}, 4),
	}
	r := newRig(t, exec, Options{})

	r.start(t)
	select {
	case <-exec.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("executor never entered a pass")
	}
	assert.True(t, r.s.Status().TickInFlight)
	assert.False(t, r.s.Trigger(), "trigger must decline while a pass is in flight")

	r.s.Stop()
	require.ErrorIs(t, r.pass(t), context.Canceled)

	st := r.s.Status()
	assert.False(t, st.Running)
	assert.Zero(t, st.ConsecutiveErrors, "shutdown is not a scheduling failure")
	assert.Empty(t, st.LastError)
}

func TestSchedulerSetInterval(t *testing.T) {
	exec := &stubExecutor{script: []error{driver.ErrNoPendingCampaigns}}
	r := newRig(t, exec, Options{Interval: 30 * time.Second})

	r.start(t)
	r.pass(t)
	assert.Equal(t, 30*time.Second, r.delay(t))

	assert.Equal(t, 45*time.Second, r.s.SetInterval(45*time.Second))
	r.pass(t) // the re-arm runs a fresh pass first
	assert.Equal(t, 45*time.Second, r.delay(t))

	assert.Equal(t, MinInterval, r.s.SetInterval(time.Second))
	r.pass(t)
	assert.Equal(t, MinInterval, r.delay(t))

	assert.Equal(t, MaxInterval, r.s.SetInterval(2*MaxInterval))
	r.pass(t)
	assert.Equal(t, MaxInterval, r.delay(t))
	assert.Equal(t, 3600, r.s.Status().PollInterval)

	// setting the value already in force does not re-arm
	assert.Equal(t, MaxInterval, r.s.SetInterval(MaxInterval))
	assert.Empty(t, r.passes)
}

func TestSchedulerLockRefusesSecondController(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "coxswain.lock")
	exec := &stubExecutor{script: []error{driver.ErrNoPendingCampaigns}}

	first := newRig(t, exec, Options{LockPath: lockPath})
	first.start(t)
	first.pass(t)

	second := New(&stubExecutor{}, Options{LockPath: lockPath})
	err := second.Start(context.Background())
	require.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, second.Status().Running)

	// releasing the lock lets the next controller in
	first.s.Stop()
	require.NoError(t, second.Start(context.Background()))
	second.Stop()
}

func TestSchedulerSyncCronWiring(t *testing.T) {
	exec := &stubExecutor{script: []error{driver.ErrNoPendingCampaigns}}
	assert.Nil(t, New(exec, Options{}).cron, "no sync, no cron runner")

	r := newRig(t, exec, Options{
		Sync:      func(context.Context) error { return nil },
		SyncEvery: time.Hour,
	})
	require.NotNil(t, r.s.cron)
	r.start(t)
	r.pass(t)
	r.s.Stop()
}

func TestClampInterval(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, MinInterval},
		{time.Second, MinInterval},
		{MinInterval, MinInterval},
		{time.Minute, time.Minute},
		{MaxInterval, MaxInterval},
		{2 * time.Hour, MaxInterval},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampInterval(tt.in), "clamp(%s)", tt.in)
	}

	assert.Equal(t, DefaultInterval, New(&stubExecutor{}, Options{}).interval)
}
