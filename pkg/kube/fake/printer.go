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

package fake

import (
	"context"
	"fmt"
	"io"
	"strings"

	"k8s.io/apimachinery/pkg/version"

	"github.com/coxswain-io/coxswain/pkg/kube"
)

// PrintingKubeClient implements kube.Interface, but simply prints each
// operation to the given output and answers optimistically: installs
// succeed, releases are deployed, jobs finish.
type PrintingKubeClient struct {
	Out io.Writer
}

// IsReachable checks if the cluster is reachable.
func (p *PrintingKubeClient) IsReachable() error {
	return nil
}

// InstallRelease prints what would be installed with a real client.
func (p *PrintingKubeClient) InstallRelease(_ context.Context, name, namespace, chartPath, _ string) error {
	_, err := fmt.Fprintf(p.Out, "install release %s from %s in %s\n", name, chartPath, namespace)
	return err
}

// UninstallRelease prints what would be removed with a real client.
func (p *PrintingKubeClient) UninstallRelease(_ context.Context, name, namespace string) (bool, error) {
	_, err := fmt.Fprintf(p.Out, "uninstall release %s in %s\n", name, namespace)
	return true, err
}

// ReleaseStatus reports every release as deployed.
func (p *PrintingKubeClient) ReleaseStatus(_ context.Context, name, namespace string) (*kube.ReleaseState, error) {
	_, err := fmt.Fprintf(p.Out, "status of release %s in %s\n", name, namespace)
	if err != nil {
		return nil, err
	}
	return &kube.ReleaseState{Name: name, Namespace: namespace, Phase: "deployed"}, nil
}

// PodsReady reports every release's pods as ready.
func (p *PrintingKubeClient) PodsReady(_ context.Context, releaseName, namespace string) (bool, error) {
	_, err := fmt.Fprintf(p.Out, "pods of release %s in %s\n", releaseName, namespace)
	return true, err
}

// WorkloadReady reports every release's workloads as ready.
func (p *PrintingKubeClient) WorkloadReady(_ context.Context, releaseName, namespace string) (bool, error) {
	_, err := fmt.Fprintf(p.Out, "workloads of release %s in %s\n", releaseName, namespace)
	return true, err
}

// ApplyManifest prints the manifest and reports nothing applied.
func (p *PrintingKubeClient) ApplyManifest(_ context.Context, text, namespace string) ([]kube.Resource, error) {
	_, err := fmt.Fprintf(p.Out, "apply %d bytes in %s\n", len(text), namespace)
	return []kube.Resource{}, err
}

// DeleteManifest prints the manifest and reports nothing deleted.
func (p *PrintingKubeClient) DeleteManifest(_ context.Context, text, namespace string) ([]kube.Resource, error) {
	_, err := fmt.Fprintf(p.Out, "delete %d bytes in %s\n", len(text), namespace)
	return []kube.Resource{}, err
}

// JobStatus reports every job as succeeded.
func (p *PrintingKubeClient) JobStatus(_ context.Context, name, namespace string) (*kube.JobStatus, error) {
	_, err := fmt.Fprintf(p.Out, "status of job %s in %s\n", name, namespace)
	if err != nil {
		return nil, err
	}
	return &kube.JobStatus{Name: name, Namespace: namespace, Phase: kube.JobSucceeded, Succeeded: 1}, nil
}

// DeleteJob prints what would be deleted with a real client.
func (p *PrintingKubeClient) DeleteJob(_ context.Context, name, namespace string) (bool, error) {
	_, err := fmt.Fprintf(p.Out, "delete job %s in %s\n", name, namespace)
	return true, err
}

// PodsForJob reports no pods.
func (p *PrintingKubeClient) PodsForJob(_ context.Context, jobName, namespace string) ([]kube.PodInfo, error) {
	_, err := fmt.Fprintf(p.Out, "pods of job %s in %s\n", jobName, namespace)
	return []kube.PodInfo{}, err
}

// ReleasesByLabel reports no workloads.
func (p *PrintingKubeClient) ReleasesByLabel(_ context.Context, selector, namespace string) ([]kube.Workload, error) {
	_, err := fmt.Fprintf(p.Out, "workloads matching %s in %s\n", selector, namespace)
	return []kube.Workload{}, err
}

// DeleteReleaseResources prints what would be swept with a real client.
func (p *PrintingKubeClient) DeleteReleaseResources(_ context.Context, releaseName, namespace string) error {
	_, err := fmt.Fprintf(p.Out, "delete resources of release %s in %s\n", releaseName, namespace)
	return err
}

// PodLogs returns an empty log stream.
func (p *PrintingKubeClient) PodLogs(_ context.Context, name, namespace string, _ int64, _ bool) (io.ReadCloser, error) {
	_, err := fmt.Fprintf(p.Out, "logs of pod %s in %s\n", name, namespace)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// EnsureNamespace prints what would be created with a real client.
func (p *PrintingKubeClient) EnsureNamespace(_ context.Context, namespace string) error {
	_, err := fmt.Fprintf(p.Out, "ensure namespace %s\n", namespace)
	return err
}

// ServerVersion reports a fixed version.
func (p *PrintingKubeClient) ServerVersion() (*version.Info, error) {
	return &version.Info{Major: "1", Minor: "33", GitVersion: "v1.33.0"}, nil
}
