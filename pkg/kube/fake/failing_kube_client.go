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

// Package fake implements various fake kube clients for use in testing.
package fake

import (
	"context"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/version"

	"github.com/coxswain-io/coxswain/pkg/kube"
)

// FailingKubeClient implements kube.Interface for testing purposes. It has
// additional errors you can set to fail different functions, and canned
// answers to script cluster state, otherwise it delegates all its calls to
// `PrintingKubeClient`.
type FailingKubeClient struct {
	PrintingKubeClient
	InstallError         error
	UninstallError       error
	StatusError          error
	PodsReadyError       error
	WorkloadReadyError   error
	ApplyError           error
	DeleteManifestError  error
	JobStatusError       error
	DeleteJobError       error
	PodsForJobError      error
	ListWorkloadsError   error
	DeleteResourcesError error
	PodLogsError         error
	NamespaceError       error
	VersionError         error
	ConnectionError      error

	// ReleaseState overrides the optimistic "deployed" answer.
	ReleaseState *kube.ReleaseState
	// PodsUnready and WorkloadUnready flip the readiness answers to false.
	PodsUnready     bool
	WorkloadUnready bool
	// JobPhases scripts consecutive JobStatus answers. Each call consumes
	// the next phase; the final one repeats once the script runs out.
	JobPhases []kube.JobPhase
	// ApplyResources and DeleteResources are the canned manifest answers.
	ApplyResources  []kube.Resource
	DeleteResources []kube.Resource
	Pods            []kube.PodInfo
	Workloads       []kube.Workload
	PodLog          string

	// Uninstalled and DeletedJobs record what the caller tore down.
	Uninstalled []string
	DeletedJobs []string

	jobPhaseIdx int
}

var _ kube.Interface = &FailingKubeClient{}

// InstallRelease returns the configured error if set or prints.
func (f *FailingKubeClient) InstallRelease(ctx context.Context, name, namespace, chartPath, values string) error {
	if f.InstallError != nil {
		return f.InstallError
	}
	return f.PrintingKubeClient.InstallRelease(ctx, name, namespace, chartPath, values)
}

// UninstallRelease returns the configured error if set or prints.
func (f *FailingKubeClient) UninstallRelease(ctx context.Context, name, namespace string) (bool, error) {
	if f.UninstallError != nil {
		return false, f.UninstallError
	}
	f.Uninstalled = append(f.Uninstalled, name)
	return f.PrintingKubeClient.UninstallRelease(ctx, name, namespace)
}

// ReleaseStatus returns the configured error or canned state if set, or prints.
func (f *FailingKubeClient) ReleaseStatus(ctx context.Context, name, namespace string) (*kube.ReleaseState, error) {
	if f.StatusError != nil {
		return nil, f.StatusError
	}
	if f.ReleaseState != nil {
		return f.ReleaseState, nil
	}
	return f.PrintingKubeClient.ReleaseStatus(ctx, name, namespace)
}

// PodsReady returns the configured error if set or prints.
func (f *FailingKubeClient) PodsReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	if f.PodsReadyError != nil {
		return false, f.PodsReadyError
	}
	if f.PodsUnready {
		return false, nil
	}
	return f.PrintingKubeClient.PodsReady(ctx, releaseName, namespace)
}

// WorkloadReady returns the configured error if set or prints.
func (f *FailingKubeClient) WorkloadReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	if f.WorkloadReadyError != nil {
		return false, f.WorkloadReadyError
	}
	if f.WorkloadUnready {
		return false, nil
	}
	return f.PrintingKubeClient.WorkloadReady(ctx, releaseName, namespace)
}

// ApplyManifest returns the configured error or resources if set, or prints.
func (f *FailingKubeClient) ApplyManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error) {
	if f.ApplyError != nil {
		return nil, f.ApplyError
	}
	if f.ApplyResources != nil {
		return f.ApplyResources, nil
	}
	return f.PrintingKubeClient.ApplyManifest(ctx, text, namespace)
}

// DeleteManifest returns the configured error or resources if set, or prints.
func (f *FailingKubeClient) DeleteManifest(ctx context.Context, text, namespace string) ([]kube.Resource, error) {
	if f.DeleteManifestError != nil {
		return nil, f.DeleteManifestError
	}
	if f.DeleteResources != nil {
		return f.DeleteResources, nil
	}
	return f.PrintingKubeClient.DeleteManifest(ctx, text, namespace)
}

// JobStatus returns the configured error if set, the next scripted phase
// if a script is loaded, or prints.
func (f *FailingKubeClient) JobStatus(ctx context.Context, name, namespace string) (*kube.JobStatus, error) {
	if f.JobStatusError != nil {
		return nil, f.JobStatusError
	}
	if len(f.JobPhases) > 0 {
		phase := f.JobPhases[f.jobPhaseIdx]
		if f.jobPhaseIdx < len(f.JobPhases)-1 {
			f.jobPhaseIdx++
		}
		return &kube.JobStatus{Name: name, Namespace: namespace, Phase: phase}, nil
	}
	return f.PrintingKubeClient.JobStatus(ctx, name, namespace)
}

// DeleteJob returns the configured error if set or prints.
func (f *FailingKubeClient) DeleteJob(ctx context.Context, name, namespace string) (bool, error) {
	if f.DeleteJobError != nil {
		return false, f.DeleteJobError
	}
	f.DeletedJobs = append(f.DeletedJobs, name)
	return f.PrintingKubeClient.DeleteJob(ctx, name, namespace)
}

// PodsForJob returns the configured error or pods if set, or prints.
func (f *FailingKubeClient) PodsForJob(ctx context.Context, jobName, namespace string) ([]kube.PodInfo, error) {
	if f.PodsForJobError != nil {
		return nil, f.PodsForJobError
	}
	if f.Pods != nil {
		return f.Pods, nil
	}
	return f.PrintingKubeClient.PodsForJob(ctx, jobName, namespace)
}

// ReleasesByLabel returns the configured error or workloads if set, or prints.
func (f *FailingKubeClient) ReleasesByLabel(ctx context.Context, selector, namespace string) ([]kube.Workload, error) {
	if f.ListWorkloadsError != nil {
		return nil, f.ListWorkloadsError
	}
	if f.Workloads != nil {
		return f.Workloads, nil
	}
	return f.PrintingKubeClient.ReleasesByLabel(ctx, selector, namespace)
}

// DeleteReleaseResources returns the configured error if set or prints.
func (f *FailingKubeClient) DeleteReleaseResources(ctx context.Context, releaseName, namespace string) error {
	if f.DeleteResourcesError != nil {
		return f.DeleteResourcesError
	}
	return f.PrintingKubeClient.DeleteReleaseResources(ctx, releaseName, namespace)
}

// PodLogs returns the configured error or canned log if set, or prints.
func (f *FailingKubeClient) PodLogs(ctx context.Context, name, namespace string, tailLines int64, follow bool) (io.ReadCloser, error) {
	if f.PodLogsError != nil {
		return nil, f.PodLogsError
	}
	if f.PodLog != "" {
		return io.NopCloser(strings.NewReader(f.PodLog)), nil
	}
	return f.PrintingKubeClient.PodLogs(ctx, name, namespace, tailLines, follow)
}

// EnsureNamespace returns the configured error if set or prints.
func (f *FailingKubeClient) EnsureNamespace(ctx context.Context, namespace string) error {
	if f.NamespaceError != nil {
		return f.NamespaceError
	}
	return f.PrintingKubeClient.EnsureNamespace(ctx, namespace)
}

// ServerVersion returns the configured error if set or prints.
func (f *FailingKubeClient) ServerVersion() (*version.Info, error) {
	if f.VersionError != nil {
		return nil, f.VersionError
	}
	return f.PrintingKubeClient.ServerVersion()
}

// IsReachable returns the configured error if set or prints.
func (f *FailingKubeClient) IsReachable() error {
	if f.ConnectionError != nil {
		return f.ConnectionError
	}
	return f.PrintingKubeClient.IsReachable()
}
