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

// Package monitor implements the bounded waits that watch an engine
// release become ready and a benchmark job run to completion.
//
// Both waiters share a skeleton: poll the cluster on a fixed cadence,
// absorb transient API trouble, count consecutive failures, and stop on
// convergence, failure exhaustion or a wall-clock timeout. Expected
// terminal states come back as a Result rather than an error; the error
// return is reserved for the surrounding context ending the wait.
package monitor

import (
	"context"
	"time"
)

// State is the terminal state of a wait.
type State string

const (
	// StateReady means the engine release is deployed and its pods answer.
	StateReady State = "ready"
	// StateSucceeded means the benchmark job ran to completion.
	StateSucceeded State = "succeeded"
	// StateFailed means the watched resource failed more times than allowed.
	StateFailed State = "failed"
	// StateTimedOut means the wall clock or the poll budget ran out first.
	StateTimedOut State = "timed-out"
	// StateDisappeared means the job went missing without leaving a
	// completed pod behind.
	StateDisappeared State = "disappeared"
	// StateCancelled means a cancellation request stopped the wait.
	StateCancelled State = "cancelled"
)

func (s State) String() string { return string(s) }

// Result describes how a wait ended.
type Result struct {
	State State
	// Reason is the operator-facing sentence recorded on the campaign
	// for non-success terminals.
	Reason string
	// Failures is the failure count at the time the wait ended.
	Failures int
	// Checks is the number of status polls spent.
	Checks int
	// Elapsed is the wall-clock time from the first poll to the end.
	Elapsed time.Duration
}

// Success reports whether the wait converged.
func (r *Result) Success() bool {
	return r.State == StateReady || r.State == StateSucceeded
}

var nopLogger = func(_ string, _ ...interface{}) {}

// waitClock lets tests drive time. The zero value uses the real clock
// and a context-aware sleep.
type waitClock struct {
	nowFn   func() time.Time
	sleepFn func(time.Duration)
}

func (c *waitClock) clock() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}

func (c *waitClock) since(start time.Time) time.Duration {
	return c.clock().Sub(start)
}

func (c *waitClock) pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.sleepFn != nil {
		c.sleepFn(d)
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
