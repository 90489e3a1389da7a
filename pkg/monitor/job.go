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

	corev1 "k8s.io/api/core/v1"

	"github.com/coxswain-io/coxswain/pkg/kube"
)

// Defaults for the benchmark job waiter.
const (
	DefaultJobPollInterval = 30 * time.Second
	DefaultJobRetryDelay   = time.Minute
	DefaultJobTimeout      = time.Hour
	DefaultJobMaxFailures  = 3
)

// verifyDelay is how long the waiter lets the cluster settle before
// confirming a reported success.
const verifyDelay = 5 * time.Second

// missProbeThreshold is how many consecutive not_found answers trigger
// the pod probe. Job objects briefly 404 around completion; five polls
// apart is past any such blip.
const missProbeThreshold = 5

// checkCapSlack pads the hard poll cap beyond timeout/poll.
const checkCapSlack = 10

// JobSource is the slice of the cluster adapter the job waiter polls.
// The kube client and the runner client both satisfy it.
type JobSource interface {
	JobStatus(ctx context.Context, name, namespace string) (*kube.JobStatus, error)
	PodsForJob(ctx context.Context, jobName, namespace string) ([]kube.PodInfo, error)
	DeleteJob(ctx context.Context, name, namespace string) (bool, error)
}

// JobWaiter watches one benchmark job until it completes, fails more
// times than allowed, goes missing for good, or runs out of wall clock.
// Every non-success terminal deletes the job before surfacing, so a
// stuck benchmark never outlives its campaign.
type JobWaiter struct {
	Source JobSource
	Log    func(string, ...interface{})

	PollInterval time.Duration
	RetryDelay   time.Duration
	Timeout      time.Duration
	MaxFailures  int

	// Cancelled is consulted before every poll. Returning true ends the
	// wait with StateCancelled; tearing the job down is then the
	// cleanup engine's problem, not the waiter's.
	Cancelled func() bool

	waitClock
}

// NewJobWaiter returns a waiter with the default cadence.
func NewJobWaiter(src JobSource) *JobWaiter {
	return &JobWaiter{
		Source:       src,
		Log:          nopLogger,
		PollInterval: DefaultJobPollInterval,
		RetryDelay:   DefaultJobRetryDelay,
		Timeout:      DefaultJobTimeout,
		MaxFailures:  DefaultJobMaxFailures,
	}
}

// Wait polls the job until a terminal state. Besides the wall-clock
// timeout it enforces a hard cap on status polls, so a stalled clock
// can never park a campaign forever. The returned error is non-nil only
// when ctx ends the wait.
func (w *JobWaiter) Wait(ctx context.Context, jobName, namespace string) (*Result, error) {
	start := w.clock()
	maxChecks := int(w.Timeout/w.PollInterval) + checkCapSlack
	var failures, misses, checks int

	w.Log("waiting for job %s to complete (timeout: %ds, max failures: %d, max checks: %d)",
		jobName, int(w.Timeout.Seconds()), w.MaxFailures, maxChecks)

	for checks < maxChecks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if w.Cancelled != nil && w.Cancelled() {
			w.Log("wait for job %s cancelled", jobName)
			return &Result{State: StateCancelled, Failures: failures, Checks: checks, Elapsed: w.since(start)}, nil
		}
		checks++

		status, err := w.Source.JobStatus(ctx, jobName, namespace)
		switch {
		case err != nil:
			// API trouble is not a job failure, but it does spend a check.
			w.Log("error checking job %s (check %d/%d): %s", jobName, checks, maxChecks, err)
		case status.Phase == kube.JobSucceeded:
			if res, ok := w.confirm(ctx, jobName, namespace, failures, checks, start); ok {
				return res, nil
			}
			w.Log("job %s success did not hold on verification, continuing to wait", jobName)
			misses = 0
		case status.Phase == kube.JobFailed:
			failures++
			misses = 0
			w.Log("job %s failed (failure %d/%d)", jobName, failures, w.MaxFailures)
			if failures >= w.MaxFailures {
				return w.terminate(ctx, jobName, namespace, &Result{
					State:    StateFailed,
					Reason:   fmt.Sprintf("Job %s failed %d times, exceeding maximum failures (%d). Job has been terminated.", jobName, failures, w.MaxFailures),
					Failures: failures,
					Checks:   checks,
					Elapsed:  w.since(start),
				}), nil
			}
			if err := w.pause(ctx, w.RetryDelay); err != nil {
				return nil, err
			}
			continue
		case status.Phase == kube.JobNotFound:
			misses++
			w.Log("job %s not found (%d consecutive)", jobName, misses)
			if misses >= missProbeThreshold {
				res, err := w.probePods(ctx, jobName, namespace, failures, checks, start)
				if err != nil {
					w.Log("error probing pods for job %s: %s", jobName, err)
				} else if res != nil {
					return res, nil
				}
				misses = 0
			}
		default: // running or pending
			if failures > 0 || misses > 0 {
				w.Log("job %s is active again, resetting failure counters", jobName)
			}
			failures = 0
			misses = 0
		}

		if w.since(start) >= w.Timeout {
			return w.terminate(ctx, jobName, namespace, &Result{
				State:    StateTimedOut,
				Reason:   fmt.Sprintf("Timeout waiting for job %s to complete (timeout: %ds). Job has been terminated.", jobName, int(w.Timeout.Seconds())),
				Failures: failures,
				Checks:   checks,
				Elapsed:  w.since(start),
			}), nil
		}
		if err := w.pause(ctx, w.PollInterval); err != nil {
			return nil, err
		}
	}

	return w.terminate(ctx, jobName, namespace, &Result{
		State:    StateTimedOut,
		Reason:   fmt.Sprintf("Job %s exceeded maximum check limit (%d). Job has been terminated for safety.", jobName, maxChecks),
		Failures: failures,
		Checks:   checks,
		Elapsed:  w.since(start),
	}), nil
}

// confirm re-polls once after a short settle to rule out a flapping
// success. A not_found on the second look still confirms; completed
// jobs are routinely reaped before the waiter sees them again.
func (w *JobWaiter) confirm(ctx context.Context, jobName, namespace string, failures, checks int, start time.Time) (*Result, bool) {
	if err := w.pause(ctx, verifyDelay); err != nil {
		return nil, false
	}
	status, err := w.Source.JobStatus(ctx, jobName, namespace)
	if err != nil {
		w.Log("error verifying job %s completion: %s", jobName, err)
		return nil, false
	}
	if status.Phase != kube.JobSucceeded && status.Phase != kube.JobNotFound {
		return nil, false
	}
	w.Log("job %s completed successfully", jobName)
	return &Result{State: StateSucceeded, Failures: failures, Checks: checks, Elapsed: w.since(start)}, true
}

// probePods decides what became of a job whose object keeps going
// missing. A nil, nil return means the probe was inconclusive and the
// wait goes on.
func (w *JobWaiter) probePods(ctx context.Context, jobName, namespace string, failures, checks int, start time.Time) (*Result, error) {
	pods, err := w.Source.PodsForJob(ctx, jobName, namespace)
	if err != nil {
		return nil, err
	}
	for _, p := range pods {
		if p.Phase == string(corev1.PodSucceeded) {
			w.Log("job %s is gone but pod %s succeeded, treating as complete", jobName, p.Name)
			return &Result{State: StateSucceeded, Failures: failures, Checks: checks, Elapsed: w.since(start)}, nil
		}
	}
	if len(pods) == 0 {
		return w.terminate(ctx, jobName, namespace, &Result{
			State:    StateDisappeared,
			Reason:   fmt.Sprintf("Job %s disappeared: no job object or pods remain after %d consecutive missed checks.", jobName, missProbeThreshold),
			Failures: failures,
			Checks:   checks,
			Elapsed:  w.since(start),
		}), nil
	}
	w.Log("job %s object is missing but %d pods remain, continuing to wait", jobName, len(pods))
	return nil, nil
}

// terminate tears the job down before surfacing a non-success terminal
// state. Deletion trouble is logged, not surfaced; the terminal state
// wins.
func (w *JobWaiter) terminate(ctx context.Context, jobName, namespace string, res *Result) *Result {
	if _, err := w.Source.DeleteJob(ctx, jobName, namespace); err != nil {
		w.Log("error terminating job %s: %s", jobName, err)
	} else {
		w.Log("terminated job %s (%s)", jobName, res.State)
	}
	return res
}
