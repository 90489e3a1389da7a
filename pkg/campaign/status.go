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

// Status is the lifecycle phase of a campaign.
type Status string

// Describe the status of a campaign.
const (
	// StatusPending indicates that the campaign is queued and has not
	// been picked up by the scheduler.
	StatusPending Status = "pending"
	// StatusProcessing indicates that the executor currently owns the
	// campaign. At most one campaign per process is in this status.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates that every step of the campaign finished.
	StatusCompleted Status = "completed"
	// StatusFailed indicates that the campaign stopped on an
	// unrecoverable error. Cleanup has been attempted.
	StatusFailed Status = "failed"
	// StatusCancelled indicates that the campaign was stopped on user
	// request. Cleanup has been attempted.
	StatusCancelled Status = "cancelled"
)

func (x Status) String() string { return string(x) }

// IsTerminal returns true if the status is one of the absorbing states.
// A terminal campaign never changes status again.
func (x Status) IsTerminal() bool {
	switch x {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the edge x -> to exists in the lifecycle
// DAG pending -> processing -> {completed, failed, cancelled}. Pending may
// also move straight to cancelled. Self transitions are permitted so that
// idempotent writes do not trip the invariant.
func (x Status) CanTransition(to Status) bool {
	if x == to {
		return true
	}
	switch x {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled || to == StatusFailed
	case StatusProcessing:
		return to.IsTerminal()
	}
	return false
}
