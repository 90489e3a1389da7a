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

package campaign

import (
	"time"

	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/engine"
)

// ExistingEngineReleaseID marks a campaign that ran against an engine it
// does not own. Cleanup must never uninstall a release recorded under
// this sentinel.
const ExistingEngineReleaseID = "existing-engine"

// Campaign is a unit of benchmark work: at most one engine deployment
// plus an ordered list of benchmark jobs, executed strictly in order.
type Campaign struct {
	// ID uniquely identifies the campaign within the queue.
	ID string `json:"id"`
	// Engine describes the engine deployment the benchmarks run against.
	// Nil when the submission carried raw values text instead.
	Engine *engine.Spec `json:"engine_spec,omitempty"`
	// ValuesText is the raw YAML values document for the engine chart.
	// Takes precedence over Engine when both are set.
	ValuesText string `json:"values_text,omitempty"`
	// SkipEngine requests that no engine be deployed; the benchmarks are
	// expected to target an engine that already exists.
	SkipEngine bool `json:"skip_engine_deployment"`
	// Benchmarks are the job manifests to run, in submission order.
	Benchmarks []BenchmarkSpec `json:"benchmarks"`
	// Priority is the scheduling class. Defaults to medium.
	Priority Priority `json:"priority"`
	// Status is the lifecycle phase. Moves only along the lifecycle DAG.
	Status Status `json:"status"`
	// CurrentStep is a human readable description of what the executor
	// is doing right now.
	CurrentStep string `json:"current_step,omitempty"`
	// TotalSteps is the fixed step count: one per benchmark, plus one
	// for the engine unless SkipEngine is set.
	TotalSteps int `json:"total_steps"`
	// CompletedSteps counts the steps that have finished.
	CompletedSteps int `json:"completed_steps"`
	// CreatedAt is when the campaign was accepted into the queue. It is
	// the FIFO tiebreaker within one priority.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the executor claimed the campaign.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the campaign reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ReleaseID names the engine release this campaign ran against, or
	// ExistingEngineReleaseID when SkipEngine was set.
	ReleaseID string `json:"engine_release_id,omitempty"`
	// Jobs records every benchmark job created on the cluster, in
	// creation order, for cleanup and inspection.
	Jobs []JobRecord `json:"created_jobs,omitempty"`
	// Error is the terminal error message. Set exactly when the
	// campaign failed or was cancelled.
	Error string `json:"error_message,omitempty"`
	// CancelRequested is the cooperative cancellation flag. Once true it
	// never reverts to false.
	CancelRequested bool `json:"cancel_requested,omitempty"`
	// CleanupAttempted records that teardown ran for this campaign.
	CleanupAttempted bool `json:"cleanup_attempted,omitempty"`
	// CleanupSucceeded records that teardown removed everything it
	// was responsible for.
	CleanupSucceeded bool `json:"cleanup_successful,omitempty"`
}

// BenchmarkSpec is one benchmark job to run against the engine.
type BenchmarkSpec struct {
	// Manifest is the raw YAML job manifest, possibly containing engine
	// placeholders.
	Manifest string `json:"manifest"`
	// Namespace overrides the campaign namespace for this job.
	Namespace string `json:"namespace,omitempty"`
	// Name labels the benchmark in progress reporting. Optional.
	Name string `json:"name,omitempty"`
}

// JobRecord tracks a benchmark job created on the cluster.
type JobRecord struct {
	// Name is the job name as created, after any conflict rename.
	Name string `json:"name"`
	// Namespace is where the job was created.
	Namespace string `json:"namespace"`
	// OriginalName is the manifest name before a conflict rename, when
	// one happened.
	OriginalName string `json:"original_name,omitempty"`
	// State is the final observation of the job, empty while running.
	State JobState `json:"state,omitempty"`
}

// JobState is the final observation recorded for a benchmark job.
type JobState string

const (
	JobStateSucceeded   JobState = "succeeded"
	JobStateFailed      JobState = "failed"
	JobStateTimedOut    JobState = "terminated-by-timeout"
	JobStateTerminated  JobState = "terminated-by-max-failures"
	JobStateDisappeared JobState = "disappeared"
)

// New assembles a campaign in pending status with its step count fixed.
// The caller supplies the identifier and creation time so that clock and
// id generation stay injectable.
func New(id string, created time.Time) *Campaign {
	return &Campaign{
		ID:        id,
		Priority:  DefaultPriority,
		Status:    StatusPending,
		CreatedAt: created,
	}
}

// StepCount computes the total step count from the campaign shape: one
// step per benchmark plus one for the engine deployment unless skipped.
func (c *Campaign) StepCount() int {
	n := len(c.Benchmarks)
	if !c.SkipEngine {
		n++
	}
	return n
}

// SetStatus moves the campaign to status s and records the human
// readable message. The message lands in CurrentStep, and additionally
// in Error when s is failed or cancelled.
func (c *Campaign) SetStatus(s Status, msg string) {
	c.Status = s
	if msg != "" {
		c.CurrentStep = msg
	}
	if s == StatusFailed || s == StatusCancelled {
		c.Error = msg
	}
}

// OwnsRelease reports whether cleanup may consider uninstalling the
// engine release recorded on this campaign. Campaigns that ran against
// a pre-existing engine never own one.
func (c *Campaign) OwnsRelease() bool {
	return c.ReleaseID != "" && c.ReleaseID != ExistingEngineReleaseID
}

// Validate checks that the campaign is well formed enough to enqueue.
func (c *Campaign) Validate() error {
	if c.ID == "" {
		return errors.New("campaign has no id")
	}
	if !c.Priority.IsValid() {
		return errors.Errorf("campaign %s: invalid priority %q", c.ID, c.Priority)
	}
	if !c.SkipEngine && c.ValuesText == "" {
		if c.Engine == nil {
			return errors.Errorf("campaign %s: no engine configuration and engine deployment not skipped", c.ID)
		}
		if c.Engine.ModelIdentifier == "" {
			return errors.Errorf("campaign %s: engine configuration has no model identifier", c.ID)
		}
	}
	for i, b := range c.Benchmarks {
		if b.Manifest == "" {
			return errors.Errorf("campaign %s: benchmark %d has an empty manifest", c.ID, i)
		}
	}
	return nil
}
