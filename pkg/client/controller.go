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

package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/scheduler"
)

// SystemStatus is the controller identity snapshot served at /status.
type SystemStatus struct {
	Service   string              `json:"service"`
	Version   string              `json:"version"`
	Driver    string              `json:"driver"`
	Namespace string              `json:"namespace"`
	Queue     action.QueueSummary `json:"queue"`
	Scheduler scheduler.Status    `json:"scheduler"`
}

// SchedulerConfigRequest is the body of POST scheduler/config. The
// controller clamps the interval to the scheduler's bounds.
type SchedulerConfigRequest struct {
	PollIntervalSeconds int `json:"poll_interval_seconds"`
}

// Health probes the controller's liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "health", nil, nil, nil)
}

// SystemStatus returns the controller's identity, queue counters, and
// scheduler state in one snapshot.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{}
	if err := c.call(ctx, http.MethodGet, "status", nil, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// SchedulerStart starts the scheduling loop.
func (c *Client) SchedulerStart(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "scheduler/start", nil, nil, nil)
}

// SchedulerStop stops the scheduling loop and waits for an in-flight pass
// to unwind.
func (c *Client) SchedulerStop(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "scheduler/stop", nil, nil, nil)
}

// SchedulerPause keeps the loop running but skips its passes.
func (c *Client) SchedulerPause(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "scheduler/pause", nil, nil, nil)
}

// SchedulerResume lifts a pause and schedules an immediate pass.
func (c *Client) SchedulerResume(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "scheduler/resume", nil, nil, nil)
}

// SchedulerTrigger asks for a pass right now. The controller answers with
// a conflict when a pass is already in flight or the loop is stopped.
func (c *Client) SchedulerTrigger(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "scheduler/trigger", nil, nil, nil)
}

// SchedulerStatus reports the loop's current state.
func (c *Client) SchedulerStatus(ctx context.Context) (*scheduler.Status, error) {
	status := &scheduler.Status{}
	if err := c.call(ctx, http.MethodGet, "scheduler/status", nil, nil, status); err != nil {
		return nil, err
	}
	return status, nil
}

// SchedulerConfig retunes the poll interval and returns the resulting
// scheduler state, with the interval the controller actually applied.
func (c *Client) SchedulerConfig(ctx context.Context, pollSeconds int) (*scheduler.Status, error) {
	status := &scheduler.Status{}
	in := SchedulerConfigRequest{PollIntervalSeconds: pollSeconds}
	if err := c.call(ctx, http.MethodPost, "scheduler/config", nil, in, status); err != nil {
		return nil, err
	}
	return status, nil
}

// Releases lists the engine releases the controller tracks.
func (c *Client) Releases(ctx context.Context) ([]*engine.Release, error) {
	var releases []*engine.Release
	if err := c.call(ctx, http.MethodGet, "releases", nil, nil, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// UninstallRelease tears down a tracked engine release by name. The
// controller refuses while a campaign is running against the release
// unless force is set.
func (c *Client) UninstallRelease(ctx context.Context, name string, force bool) error {
	var query url.Values
	if force {
		query = url.Values{"force": []string{"true"}}
	}
	return c.call(ctx, http.MethodPost, fmt.Sprintf("releases/%s/uninstall", name), query, nil, nil)
}

// Reuse returns the values-reuse record, or a not-found error when no
// engine install has populated it yet. Check with IsNotFound.
func (c *Client) Reuse(ctx context.Context) (*engine.ReuseRecord, error) {
	record := &engine.ReuseRecord{}
	if err := c.call(ctx, http.MethodGet, "debug/reuse", nil, nil, record); err != nil {
		return nil, err
	}
	return record, nil
}
