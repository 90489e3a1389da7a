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

package monitor

import (
	"context"
	"fmt"
	"time"

	"helm.sh/helm/v3/pkg/release"

	"github.com/coxswain-io/coxswain/pkg/kube"
)

// Defaults for the engine release waiter.
const (
	DefaultEnginePollInterval = 10 * time.Second
	DefaultEngineRetryDelay   = 30 * time.Second
	DefaultEngineTimeout      = 10 * time.Minute
	DefaultEngineMaxFailures  = 3
)

// EngineSource is the slice of the cluster adapter the engine waiter polls.
type EngineSource interface {
	ReleaseStatus(ctx context.Context, name, namespace string) (*kube.ReleaseState, error)
	PodsReady(ctx context.Context, releaseName, namespace string) (bool, error)
}

// EngineWaiter watches one engine release until it is ready to serve,
// fails more times than allowed, or runs out of wall clock. It does not
// tear anything down itself; the caller decides what a failed engine
// costs the campaign.
type EngineWaiter struct {
	Source EngineSource
	Log    func(string, ...interface{})

	PollInterval time.Duration
	RetryDelay   time.Duration
	Timeout      time.Duration
	MaxFailures  int

	// Cancelled is consulted before every poll. Returning true ends the
	// wait with StateCancelled.
	Cancelled func() bool

	waitClock
}

// NewEngineWaiter returns a waiter with the default cadence.
func NewEngineWaiter(src EngineSource) *EngineWaiter {
	return &EngineWaiter{
		Source:       src,
		Log:          nopLogger,
		PollInterval: DefaultEnginePollInterval,
		RetryDelay:   DefaultEngineRetryDelay,
		Timeout:      DefaultEngineTimeout,
		MaxFailures:  DefaultEngineMaxFailures,
	}
}

type enginePhase int

const (
	engineWaiting enginePhase = iota
	engineReady
	engineFailed
)

// Wait polls the release until a terminal state. Consecutive failures
// are forgiven once the release starts progressing again; only an
// unbroken run of them exhausts the failure budget. The returned error
// is non-nil only when ctx ends the wait.
func (w *EngineWaiter) Wait(ctx context.Context, releaseName, namespace string) (*Result, error) {
	start := w.clock()
	var failures, checks int
	last := engineWaiting

	w.Log("waiting for engine deployment %s to be ready (timeout: %ds, max failures: %d)",
		releaseName, int(w.Timeout.Seconds()), w.MaxFailures)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.Cancelled != nil && w.Cancelled() {
			w.Log("wait for engine deployment %s cancelled", releaseName)
			return &Result{State: StateCancelled, Failures: failures, Checks: checks, Elapsed: w.since(start)}, nil
		}
		checks++

		phase, err := w.observe(ctx, releaseName, namespace)
		switch {
		case err != nil:
			// API trouble is not an engine failure. The wall clock
			// still runs against it.
			w.Log("error checking engine deployment %s: %s", releaseName, err)
		case phase == engineReady:
			w.Log("engine deployment %s is ready", releaseName)
			return &Result{State: StateReady, Failures: failures, Checks: checks, Elapsed: w.since(start)}, nil
		case phase == engineFailed:
			failures++
			last = engineFailed
			w.Log("engine deployment %s failed (failure %d/%d)", releaseName, failures, w.MaxFailures)
			if failures >= w.MaxFailures {
				return &Result{
					State:    StateFailed,
					Reason:   fmt.Sprintf("engine deployment %s failed %d times, exceeding maximum failures (%d). Deployment has been terminated.", releaseName, failures, w.MaxFailures),
					Failures: failures,
					Checks:   checks,
					Elapsed:  w.since(start),
				}, nil
			}
			if err := w.pause(ctx, w.RetryDelay); err != nil {
				return nil, err
			}
			continue
		default:
			if last == engineFailed {
				w.Log("engine deployment %s is progressing again, resetting failure count", releaseName)
				failures = 0
			}
			last = engineWaiting
		}

		if w.since(start) >= w.Timeout {
			return &Result{
				State:    StateTimedOut,
				Reason:   fmt.Sprintf("Timeout waiting for engine deployment %s to be ready (timeout: %ds). Deployment has been terminated.", releaseName, int(w.Timeout.Seconds())),
				Failures: failures,
				Checks:   checks,
				Elapsed:  w.since(start),
			}, nil
		}
		if err := w.pause(ctx, w.PollInterval); err != nil {
			return nil, err
		}
	}
}

// observe classifies one look at the release. A missing or unreadable
// release is reported as an error and absorbed by the caller; the
// install that precedes the wait makes "not found" a race, not a verdict.
func (w *EngineWaiter) observe(ctx context.Context, releaseName, namespace string) (enginePhase, error) {
	state, err := w.Source.ReleaseStatus(ctx, releaseName, namespace)
	if err != nil {
		return engineWaiting, err
	}
	switch state.Phase {
	case release.StatusDeployed:
		ready, err := w.Source.PodsReady(ctx, releaseName, namespace)
		if err != nil {
			return engineWaiting, err
		}
		if ready {
			return engineReady, nil
		}
		return engineWaiting, nil
	case release.StatusFailed, release.StatusUninstalled, release.StatusSuperseded:
		// A release that was removed or replaced under the waiter will
		// never become ready.
		return engineFailed, nil
	}
	return engineWaiting, nil
}
