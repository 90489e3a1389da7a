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

// Package action contains the logic for each verb the controller can
// perform on the campaign queue.
//
// This is a library for calling top-level verbs like 'submit', 'cancel',
// or 'process'. The HTTP surface and the scheduler loop are thin
// wrappers around it.
package action

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/storage"
)

// ErrNotPending guards the verbs that only apply before the executor
// claims a campaign, such as changing its priority.
var ErrNotPending = errors.New("campaign is not pending")

// Submitter is the slice of the cluster adapter through which benchmark
// jobs are created, observed, and removed. The direct kube client
// satisfies it, and so does the runner peer client, which is how job
// traffic is routed through a runner without the executor noticing.
type Submitter interface {
	ApplyManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error)
	DeleteManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error)
	JobStatus(ctx context.Context, name, namespace string) (*kube.JobStatus, error)
	PodsForJob(ctx context.Context, jobName, namespace string) ([]kube.PodInfo, error)
	DeleteJob(ctx context.Context, name, namespace string) (bool, error)
}

var _ Submitter = (kube.Interface)(nil)

// Configuration injects the dependencies that all actions share.
type Configuration struct {
	// Store keeps the campaign queue together with the engine release
	// and reuse records.
	Store *storage.Storage

	// KubeClient is a Kubernetes API client. Engine releases are always
	// managed through it.
	KubeClient kube.Interface

	// Runner, when set, routes benchmark job traffic through a runner
	// peer instead of KubeClient.
	Runner Submitter

	Log func(string, ...interface{})

	// nowFn overrides the clock in tests.
	nowFn func() time.Time
}

// JobClient returns the client benchmark jobs go through: the runner
// peer when configured, the direct kube client otherwise.
func (cfg *Configuration) JobClient() Submitter {
	if cfg.Runner != nil {
		return cfg.Runner
	}
	return cfg.KubeClient
}

// Now returns the controller clock.
func (cfg *Configuration) Now() time.Time {
	if cfg.nowFn != nil {
		return cfg.nowFn()
	}
	return time.Now()
}

func (cfg *Configuration) logf(format string, v ...interface{}) {
	if cfg.Log != nil {
		cfg.Log(format, v...)
	}
}
