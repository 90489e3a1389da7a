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
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/kube/fake"
)

const (
	testJob      = "bench-llama-throughput"
	testJobSpace = "benchmarks"
)

func newScriptedJobClient(phases ...kube.JobPhase) *fake.FailingKubeClient {
	return &fake.FailingKubeClient{
		PrintingKubeClient: fake.PrintingKubeClient{Out: io.Discard},
		JobPhases:          phases,
	}
}

func newTestJobWaiter(t *testing.T, src JobSource) (*JobWaiter, *testClock) {
	t.Helper()
	w := NewJobWaiter(src)
	w.Log = t.Logf
	clk := newTestClock()
	w.nowFn = clk.now
	w.sleepFn = clk.sleep
	return w, clk
}

func TestJobWaiterSucceeds(t *testing.T) {
	cl := newScriptedJobClient(kube.JobPending, kube.JobRunning, kube.JobSucceeded, kube.JobSucceeded)
	w, clk := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("expected %q, got %q (%s)", StateSucceeded, res.State, res.Reason)
	}
	if res.Checks != 3 || res.Failures != 0 {
		t.Errorf("expected 3 checks and 0 failures, got %d and %d", res.Checks, res.Failures)
	}
	// Two polls apart plus the verification settle.
	want := []time.Duration{DefaultJobPollInterval, DefaultJobPollInterval, verifyDelay}
	if !reflect.DeepEqual(clk.slept, want) {
		t.Errorf("expected sleeps %v, got %v", want, clk.slept)
	}
	if len(cl.DeletedJobs) != 0 {
		t.Errorf("a successful job must not be deleted, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterSuccessReapedBeforeVerification(t *testing.T) {
	cl := newScriptedJobClient(kube.JobSucceeded, kube.JobNotFound)
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateSucceeded {
		t.Errorf("a job reaped right after completion still succeeded, got %q", res.State)
	}
	if res.Checks != 1 {
		t.Errorf("expected 1 check, got %d", res.Checks)
	}
}

func TestJobWaiterFlappingSuccess(t *testing.T) {
	cl := newScriptedJobClient(
		kube.JobSucceeded, // tick 1
		kube.JobRunning,   // verification refutes it
		kube.JobRunning,   // tick 2
		kube.JobSucceeded, // tick 3
		kube.JobSucceeded, // verification confirms
	)
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("expected %q, got %q", StateSucceeded, res.State)
	}
	if res.Checks != 3 {
		t.Errorf("expected the refuted success to keep the wait going, got %d checks", res.Checks)
	}
}

func TestJobWaiterFailureExhaustion(t *testing.T) {
	cl := newScriptedJobClient(kube.JobFailed)
	w, clk := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateFailed {
		t.Fatalf("expected %q, got %q", StateFailed, res.State)
	}
	wantReason := "Job bench-llama-throughput failed 3 times, exceeding maximum failures (3). Job has been terminated."
	if res.Reason != wantReason {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if !reflect.DeepEqual(cl.DeletedJobs, []string{testJob}) {
		t.Errorf("expected the exhausted job to be deleted, got %v", cl.DeletedJobs)
	}
	want := []time.Duration{DefaultJobRetryDelay, DefaultJobRetryDelay}
	if !reflect.DeepEqual(clk.slept, want) {
		t.Errorf("expected sleeps %v, got %v", want, clk.slept)
	}
}

func TestJobWaiterRecoveryResetsCounters(t *testing.T) {
	cl := newScriptedJobClient(
		kube.JobFailed,
		kube.JobFailed,
		kube.JobRunning,
		kube.JobFailed,
		kube.JobFailed,
		kube.JobFailed,
	)
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateFailed {
		t.Fatalf("expected %q, got %q", StateFailed, res.State)
	}
	if res.Failures != 3 || res.Checks != 6 {
		t.Errorf("expected the recovery to reset the count, got %d failures across %d checks", res.Failures, res.Checks)
	}
}

func TestJobWaiterDisappeared(t *testing.T) {
	cl := newScriptedJobClient(kube.JobNotFound)
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateDisappeared {
		t.Fatalf("expected %q, got %q", StateDisappeared, res.State)
	}
	wantReason := "Job bench-llama-throughput disappeared: no job object or pods remain after 5 consecutive missed checks."
	if res.Reason != wantReason {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if res.Checks != missProbeThreshold {
		t.Errorf("expected the probe to fire on miss %d, got %d checks", missProbeThreshold, res.Checks)
	}
	if !reflect.DeepEqual(cl.DeletedJobs, []string{testJob}) {
		t.Errorf("expected a delete for the vanished job, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterMissingJobWithSucceededPod(t *testing.T) {
	cl := newScriptedJobClient(kube.JobNotFound)
	cl.Pods = []kube.PodInfo{
		{Name: testJob + "-x7k2p", Phase: string(corev1.PodSucceeded)},
	}
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("a reaped job with a succeeded pod completed, got %q (%s)", res.State, res.Reason)
	}
	if len(cl.DeletedJobs) != 0 {
		t.Errorf("nothing to delete for a reaped job, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterMissingJobWithLingeringPods(t *testing.T) {
	cl := newScriptedJobClient(
		kube.JobNotFound,
		kube.JobNotFound,
		kube.JobNotFound,
		kube.JobNotFound,
		kube.JobNotFound,
		kube.JobRunning,
		kube.JobSucceeded,
		kube.JobSucceeded,
	)
	cl.Pods = []kube.PodInfo{
		{Name: testJob + "-x7k2p", Phase: string(corev1.PodRunning)},
	}
	w, _ := newTestJobWaiter(t, cl)

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateSucceeded {
		t.Fatalf("expected the inconclusive probe to keep waiting, got %q (%s)", res.State, res.Reason)
	}
	if res.Checks != 7 {
		t.Errorf("expected 7 checks, got %d", res.Checks)
	}
}

func TestJobWaiterTimeout(t *testing.T) {
	cl := newScriptedJobClient(kube.JobRunning)
	w, _ := newTestJobWaiter(t, cl)
	w.Timeout = 90 * time.Second

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateTimedOut {
		t.Fatalf("expected %q, got %q", StateTimedOut, res.State)
	}
	wantReason := "Timeout waiting for job bench-llama-throughput to complete (timeout: 90s). Job has been terminated."
	if res.Reason != wantReason {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if !reflect.DeepEqual(cl.DeletedJobs, []string{testJob}) {
		t.Errorf("expected the timed-out job to be deleted, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterCheckCap(t *testing.T) {
	cl := newScriptedJobClient()
	cl.JobStatusError = errors.New("api gateway unreachable")
	w, _ := newTestJobWaiter(t, cl)
	w.Timeout = 60 * time.Second
	// Freeze the clock so only the poll budget can end the wait.
	w.sleepFn = func(time.Duration) {}

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateTimedOut {
		t.Fatalf("expected %q, got %q", StateTimedOut, res.State)
	}
	wantChecks := int(w.Timeout/w.PollInterval) + checkCapSlack
	if res.Checks != wantChecks {
		t.Errorf("expected the cap to fire after %d checks, got %d", wantChecks, res.Checks)
	}
	wantReason := "Job bench-llama-throughput exceeded maximum check limit (12). Job has been terminated for safety."
	if res.Reason != wantReason {
		t.Errorf("unexpected reason %q", res.Reason)
	}
	if !reflect.DeepEqual(cl.DeletedJobs, []string{testJob}) {
		t.Errorf("expected the capped job to be deleted, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterCancelled(t *testing.T) {
	cl := newScriptedJobClient(kube.JobRunning)
	w, _ := newTestJobWaiter(t, cl)
	var calls int
	w.Cancelled = func() bool {
		calls++
		return calls > 1
	}

	res, err := w.Wait(context.Background(), testJob, testJobSpace)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if res.State != StateCancelled {
		t.Fatalf("expected %q, got %q", StateCancelled, res.State)
	}
	if len(cl.DeletedJobs) != 0 {
		t.Errorf("cancellation leaves teardown to the cleanup engine, got %v", cl.DeletedJobs)
	}
}

func TestJobWaiterContextEnds(t *testing.T) {
	cl := newScriptedJobClient(kube.JobRunning)
	w, clk := newTestJobWaiter(t, cl)
	ctx, cancel := context.WithCancel(context.Background())
	w.sleepFn = func(d time.Duration) {
		clk.sleep(d)
		cancel()
	}

	res, err := w.Wait(ctx, testJob, testJobSpace)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Errorf("expected no result on context end, got %+v", res)
	}
}
