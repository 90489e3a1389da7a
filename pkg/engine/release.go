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

package engine

import "time"

// ReleaseStatus is the tracked state of an engine release.
type ReleaseStatus string

const (
	ReleaseStatusDeploying ReleaseStatus = "deploying"
	ReleaseStatusRunning   ReleaseStatus = "running"
	ReleaseStatusFailed    ReleaseStatus = "failed"
	ReleaseStatusStopped   ReleaseStatus = "stopped"
	ReleaseStatusCleanedUp ReleaseStatus = "cleaned_up"
)

func (x ReleaseStatus) String() string { return string(x) }

// Release is the store-side record of an engine installation. The live
// truth is always the cluster; these records exist for listing, reuse
// bookkeeping, and post-mortems.
type Release struct {
	// Name is the deterministic release name.
	Name string `json:"name"`
	// Namespace the release was installed into.
	Namespace string `json:"namespace"`
	// Status is the last observed lifecycle state.
	Status ReleaseStatus `json:"status"`
	// Fingerprint of the values document the release was rendered from.
	Fingerprint string `json:"fingerprint,omitempty"`
	// Model is the served model identifier.
	Model string `json:"model,omitempty"`
	// AccelClass and AccelCount describe the accelerator request.
	AccelClass string `json:"accel_class,omitempty"`
	AccelCount int    `json:"accel_count,omitempty"`
	// CreatedAt is when the release was first installed.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	// Error holds the failure message for failed releases.
	Error string `json:"error,omitempty"`
}

// ReuseRecord remembers the one values-document install the process made
// last, keyed by fingerprint. It is a singleton: only the executor's
// single-flight path mutates it, and it is persisted so a restarted
// process recovers the mapping.
type ReuseRecord struct {
	// Fingerprint of the values document that produced ReleaseName.
	Fingerprint string `json:"fingerprint"`
	// ValuesText is the raw document, kept for the debug surface.
	ValuesText string `json:"values_text,omitempty"`
	// ReleaseName is the installed release the fingerprint maps to.
	ReleaseName string `json:"release_name"`
	// Namespace the release lives in.
	Namespace string `json:"namespace"`
}

// ReuseDecision is the outcome of consulting the reuse record before an
// engine install.
type ReuseDecision string

const (
	// ReuseNone: no record; install fresh.
	ReuseNone ReuseDecision = "none"
	// ReuseHit: same fingerprint and the release is healthy; skip the
	// install entirely.
	ReuseHit ReuseDecision = "hit"
	// ReuseStale: same fingerprint but the release is gone or unhealthy;
	// drop the record and install fresh.
	ReuseStale ReuseDecision = "stale"
	// ReuseSupersede: different fingerprint; clean up the recorded
	// release, drop the record, then install fresh.
	ReuseSupersede ReuseDecision = "supersede"
)

// EvaluateReuse decides what to do with the recorded engine before
// installing for fingerprint fp. deployed and ready describe the live
// state of the recorded release.
func EvaluateReuse(rec *ReuseRecord, fp string, deployed, ready bool) ReuseDecision {
	if rec == nil || rec.ReleaseName == "" {
		return ReuseNone
	}
	if rec.Fingerprint == fp {
		if deployed && ready {
			return ReuseHit
		}
		return ReuseStale
	}
	return ReuseSupersede
}
