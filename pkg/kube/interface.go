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

package kube // import "github.com/coxswain-io/coxswain/pkg/kube"

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"helm.sh/helm/v3/pkg/release"
	"k8s.io/apimachinery/pkg/version"
)

var (
	// ErrReleaseConflict indicates that a live release already holds
	// the requested name. The conflict resolver decides whether to
	// adopt or replace it.
	ErrReleaseConflict = errors.New("release name is in use")
	// ErrReleaseNotFound indicates that the queried release does not
	// exist on the cluster.
	ErrReleaseNotFound = errors.New("release: not found")
	// ErrUnsupportedKind indicates a manifest document of a kind the
	// adapter refuses to manage.
	ErrUnsupportedKind = errors.New("unsupported resource kind")
)

// Interface represents a client capable of communicating with the
// Kubernetes API. It is the only surface through which the rest of the
// system touches the cluster.
//
// An implementation must be concurrency safe.
type Interface interface {
	// InstallRelease installs the chart at chartPath under the given
	// release name, rendering it with the values document. A live
	// release already holding the name fails with ErrReleaseConflict.
	InstallRelease(ctx context.Context, name, namespace, chartPath, valuesText string) error

	// UninstallRelease removes the named release. Absence is success:
	// true means no release of that name remains.
	UninstallRelease(ctx context.Context, name, namespace string) (bool, error)

	// ReleaseStatus reports the live condition of the named release,
	// or ErrReleaseNotFound.
	ReleaseStatus(ctx context.Context, name, namespace string) (*ReleaseState, error)

	// PodsReady reports whether at least one pod backs the release and
	// every one of them is running with all containers ready.
	PodsReady(ctx context.Context, releaseName, namespace string) (bool, error)

	// WorkloadReady reports whether every workload behind the release
	// runs exactly its desired replica count, with at least one
	// replica desired.
	WorkloadReady(ctx context.Context, releaseName, namespace string) (bool, error)

	// ApplyManifest creates the resources described by a possibly
	// multi-document manifest text. Documents without a namespace of
	// their own land in the given one. Kinds outside SupportedKinds
	// fail with ErrUnsupportedKind.
	ApplyManifest(ctx context.Context, text, namespace string) ([]Resource, error)

	// DeleteManifest removes the resources described by the manifest
	// text. Absent resources count as deleted.
	DeleteManifest(ctx context.Context, text, namespace string) ([]Resource, error)

	// JobStatus derives the phase of a benchmark job. A missing job is
	// not an error; it reports the not_found phase.
	JobStatus(ctx context.Context, name, namespace string) (*JobStatus, error)

	// DeleteJob removes a job with background propagation. Absence is
	// success.
	DeleteJob(ctx context.Context, name, namespace string) (bool, error)

	// PodsForJob lists the pods a job has spawned.
	PodsForJob(ctx context.Context, jobName, namespace string) ([]PodInfo, error)

	// ReleasesByLabel lists engine workloads matching the selector.
	ReleasesByLabel(ctx context.Context, selector, namespace string) ([]Workload, error)

	// DeleteReleaseResources removes what a release leaves behind when
	// its chart objects outlive the helm record: the service account
	// named for it and anything still labelled as its instance.
	DeleteReleaseResources(ctx context.Context, releaseName, namespace string) error

	// PodLogs streams a pod's log. The caller closes the reader.
	PodLogs(ctx context.Context, name, namespace string, tailLines int64, follow bool) (io.ReadCloser, error)

	// EnsureNamespace creates the namespace when it does not exist.
	EnsureNamespace(ctx context.Context, namespace string) error

	// ServerVersion fetches the version reported by the API server.
	ServerVersion() (*version.Info, error)

	// IsReachable checks whether the client is able to connect to the
	// cluster.
	IsReachable() error
}

// ReleaseState is the observed condition of a named release.
type ReleaseState struct {
	Name        string         `json:"name"`
	Namespace   string         `json:"namespace"`
	Phase       release.Status `json:"phase"`
	Description string         `json:"description,omitempty"`
}

// Deployed reports whether the release reached the deployed phase.
func (s *ReleaseState) Deployed() bool {
	return s != nil && s.Phase == release.StatusDeployed
}

// Resource identifies one cluster object an apply or delete touched.
type Resource struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// Workload is a summarized engine workload, Deployment or StatefulSet
// backed.
type Workload struct {
	Name          string            `json:"name"`
	Kind          string            `json:"kind"`
	Namespace     string            `json:"namespace"`
	Labels        map[string]string `json:"labels,omitempty"`
	Replicas      int32             `json:"replicas"`
	ReadyReplicas int32             `json:"ready_replicas"`
}

var _ Interface = (*Client)(nil)
