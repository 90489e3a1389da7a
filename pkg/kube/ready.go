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

	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/kubectl/pkg/util/podutils"

	deploymentutil "github.com/coxswain-io/coxswain/internal/third_party/k8s.io/kubernetes/deployment/util"
)

const (
	// InstanceLabel is the label key the engine charts stamp with the
	// release name on every resource of a release.
	InstanceLabel = "app.kubernetes.io/instance"

	// ManagedLabelSelector matches every chart-managed workload, which
	// is how running engines are discovered without knowing their names.
	ManagedLabelSelector = "app.kubernetes.io/managed-by=Helm"
)

// InstanceSelector returns the label selector matching every resource of
// a release.
func InstanceSelector(releaseName string) string {
	return InstanceLabel + "=" + releaseName
}

// ReadyCheckerOption is a function that configures a ReadyChecker.
type ReadyCheckerOption func(*ReadyChecker)

// PausedAsReady returns a ReadyCheckerOption that configures a ReadyChecker
// to consider paused resources to be ready. For example a Deployment with
// spec.paused equal to true would be considered ready.
func PausedAsReady(pausedAsReady bool) ReadyCheckerOption {
	return func(c *ReadyChecker) {
		c.pausedAsReady = pausedAsReady
	}
}

// NewReadyChecker creates a new checker. Passed ReadyCheckerOptions can
// be used to override defaults.
func NewReadyChecker(cl kubernetes.Interface, log func(string, ...interface{}), opts ...ReadyCheckerOption) ReadyChecker {
	c := ReadyChecker{
		client: cl,
		log:    log,
	}
	if c.log == nil {
		c.log = nopLogger
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// ReadyChecker is a type that can check core Kubernetes types for readiness.
type ReadyChecker struct {
	client        kubernetes.Interface
	log           func(string, ...interface{})
	pausedAsReady bool
}

// PodsReady reports whether the release has at least one pod and every
// pod is running with all of its containers ready. Zero pods is not
// ready: a release that scheduled nothing cannot serve a benchmark.
func (c *ReadyChecker) PodsReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	pods, err := c.getPods(ctx, namespace, InstanceSelector(releaseName))
	if err != nil {
		return false, errors.Wrapf(err, "listing pods for release %q", releaseName)
	}
	if len(pods) == 0 {
		c.log("no pods found for release %q in %s", releaseName, namespace)
		return false, nil
	}
	for i := range pods {
		pod := &pods[i]
		if pod.Status.Phase != corev1.PodRunning {
			c.log("Pod is not running: %s/%s (phase %s)", pod.Namespace, pod.Name, pod.Status.Phase)
			return false, nil
		}
		if !c.podReady(pod) {
			c.log("Pod is not ready: %s/%s", pod.Namespace, pod.Name)
			return false, nil
		}
	}
	return true, nil
}

func (c *ReadyChecker) podReady(pod *corev1.Pod) bool {
	if !podutils.IsPodReady(pod) {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// WorkloadReady reports whether every Deployment and StatefulSet of the
// release holds its full replica count. A release with no workloads is
// not ready.
func (c *ReadyChecker) WorkloadReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	selector := InstanceSelector(releaseName)
	deps, err := c.client.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return false, errors.Wrapf(err, "listing deployments for release %q", releaseName)
	}
	stss, err := c.client.AppsV1().StatefulSets(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return false, errors.Wrapf(err, "listing statefulsets for release %q", releaseName)
	}
	if len(deps.Items)+len(stss.Items) == 0 {
		c.log("no workloads found for release %q in %s", releaseName, namespace)
		return false, nil
	}
	for i := range deps.Items {
		dep := &deps.Items[i]
		if dep.Spec.Paused {
			if c.pausedAsReady {
				continue
			}
			c.log("Deployment is paused: %s/%s", dep.Namespace, dep.Name)
			return false, nil
		}
		ready, err := c.deploymentReady(dep)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}
	}
	for i := range stss.Items {
		if !c.statefulSetReady(&stss.Items[i]) {
			return false, nil
		}
	}
	return true, nil
}

// deploymentReady resolves the deployment's newest ReplicaSet and holds
// it to the full replica count. No MaxUnavailable slack: a benchmark
// must not start against a partially available engine.
func (c *ReadyChecker) deploymentReady(dep *appsv1.Deployment) (bool, error) {
	newRS, err := deploymentutil.GetNewReplicaSet(dep, c.client.AppsV1())
	if err != nil {
		return false, errors.Wrapf(err, "resolving replica set for deployment %s/%s", dep.Namespace, dep.Name)
	}
	if newRS == nil {
		c.log("Deployment %s/%s has no new ReplicaSet", dep.Namespace, dep.Name)
		return false, nil
	}
	// 1 is the default for replicas if not set
	expected := int32(1)
	if dep.Spec.Replicas != nil {
		expected = *dep.Spec.Replicas
	}
	if expected < 1 {
		c.log("Deployment %s/%s is scaled to zero", dep.Namespace, dep.Name)
		return false, nil
	}
	if newRS.Status.ReadyReplicas != expected {
		c.log("Deployment is not ready: %s/%s. %d out of %d expected pods are ready", dep.Namespace, dep.Name, newRS.Status.ReadyReplicas, expected)
		return false, nil
	}
	return true, nil
}

func (c *ReadyChecker) statefulSetReady(sts *appsv1.StatefulSet) bool {
	// Dereference all the pointers because StatefulSets like them
	// 1 is the default for replicas if not set
	replicas := int32(1)
	if sts.Spec.Replicas != nil {
		replicas = *sts.Spec.Replicas
	}
	if replicas < 1 {
		c.log("StatefulSet %s/%s is scaled to zero", sts.Namespace, sts.Name)
		return false
	}
	if sts.Status.UpdatedReplicas < replicas {
		c.log("StatefulSet is not ready: %s/%s. %d out of %d expected pods have been scheduled", sts.Namespace, sts.Name, sts.Status.UpdatedReplicas, replicas)
		return false
	}
	if sts.Status.ReadyReplicas != replicas {
		c.log("StatefulSet is not ready: %s/%s. %d out of %d expected pods are ready", sts.Namespace, sts.Name, sts.Status.ReadyReplicas, replicas)
		return false
	}
	return true
}

func (c *ReadyChecker) getPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	list, err := c.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, err
}
