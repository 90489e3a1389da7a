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

package kube

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/release"
	helmdriver "helm.sh/helm/v3/pkg/storage/driver"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"
)

// Client talks to the cluster on behalf of every other component.
// Engine releases go through the helm library; benchmark resources go
// through the typed clientset.
type Client struct {
	getter genericclioptions.RESTClientGetter

	Log func(string, ...interface{})

	// configFn builds a helm action configuration bound to a
	// namespace. Tests swap it for a fixture wired to fakes.
	configFn func(namespace string) (*action.Configuration, error)

	// sleep is stubbed out in tests that hit propagation waits.
	sleep func(time.Duration)

	mu         sync.Mutex
	kubeClient kubernetes.Interface
}

// New creates a new Client.
func New(getter genericclioptions.RESTClientGetter) *Client {
	c := &Client{
		getter: getter,
		Log:    nopLogger,
		sleep:  time.Sleep,
	}
	c.configFn = c.newActionConfig
	return c
}

var nopLogger = func(_ string, _ ...interface{}) {}

// getKubeClient builds the typed clientset on first use.
func (c *Client) getKubeClient() (kubernetes.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kubeClient != nil {
		return c.kubeClient, nil
	}
	config, err := c.getter.ToRESTConfig()
	if err != nil {
		return nil, errors.Wrap(err, "could not get Kubernetes config")
	}
	client, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, err
	}
	c.kubeClient = client
	return c.kubeClient, nil
}

func (c *Client) newActionConfig(namespace string) (*action.Configuration, error) {
	cfg := new(action.Configuration)
	if err := cfg.Init(c.getter, namespace, os.Getenv("HELM_DRIVER"), c.Log); err != nil {
		return nil, errors.Wrap(err, "initializing helm configuration")
	}
	return cfg, nil
}

// InstallRelease installs the chart at chartPath under the given release
// name. The pre-flight history check keeps the conflict deterministic
// instead of depending on the install racing a name collision.
func (c *Client) InstallRelease(ctx context.Context, name, namespace, chartPath, valuesText string) error {
	cfg, err := c.configFn(namespace)
	if err != nil {
		return err
	}

	histClient := action.NewHistory(cfg)
	histClient.Max = 1
	if _, err := histClient.Run(name); err == nil {
		return errors.Wrapf(ErrReleaseConflict, "release %q already exists in namespace %q", name, namespace)
	} else if !errors.Is(err, helmdriver.ErrReleaseNotFound) {
		return errors.Wrapf(err, "checking for release %q", name)
	}

	vals := map[string]interface{}{}
	if valuesText != "" {
		if err := yaml.Unmarshal([]byte(valuesText), &vals); err != nil {
			return errors.Wrap(err, "parsing values document")
		}
	}

	chrt, err := loader.Load(chartPath)
	if err != nil {
		return errors.Wrapf(err, "loading chart from %q", chartPath)
	}

	install := action.NewInstall(cfg)
	install.ReleaseName = name
	install.Namespace = namespace
	install.CreateNamespace = true

	c.Log("installing release %q from chart %q into %s", name, chartPath, namespace)
	if _, err := install.RunWithContext(ctx, chrt, vals); err != nil {
		return errors.Wrapf(err, "installing release %q", name)
	}
	return nil
}

// UninstallRelease removes the named release. Only the outcome matters
// to callers: a release that was never there is as gone as one that was
// uninstalled.
func (c *Client) UninstallRelease(_ context.Context, name, namespace string) (bool, error) {
	cfg, err := c.configFn(namespace)
	if err != nil {
		return false, err
	}
	uninstall := action.NewUninstall(cfg)
	c.Log("uninstalling release %q from %s", name, namespace)
	if _, err := uninstall.Run(name); err != nil {
		if errors.Is(err, helmdriver.ErrReleaseNotFound) {
			return true, nil
		}
		return false, errors.Wrapf(err, "uninstalling release %q", name)
	}
	return true, nil
}

// ReleaseStatus reports the live condition of the named release.
func (c *Client) ReleaseStatus(_ context.Context, name, namespace string) (*ReleaseState, error) {
	cfg, err := c.configFn(namespace)
	if err != nil {
		return nil, err
	}
	status := action.NewStatus(cfg)
	rel, err := status.Run(name)
	if err != nil {
		if errors.Is(err, helmdriver.ErrReleaseNotFound) {
			return nil, errors.Wrapf(ErrReleaseNotFound, "release %q in namespace %q", name, namespace)
		}
		return nil, errors.Wrapf(err, "status of release %q", name)
	}
	state := &ReleaseState{
		Name:      rel.Name,
		Namespace: rel.Namespace,
		Phase:     release.StatusUnknown,
	}
	if rel.Info != nil {
		state.Phase = rel.Info.Status
		state.Description = rel.Info.Description
	}
	return state, nil
}

// PodsReady reports whether the release's pods exist and all of them
// are running with every container ready.
func (c *Client) PodsReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return false, err
	}
	checker := NewReadyChecker(client, c.Log)
	return checker.PodsReady(ctx, releaseName, namespace)
}

// WorkloadReady reports whether the release's workloads run exactly
// their desired replica counts.
func (c *Client) WorkloadReady(ctx context.Context, releaseName, namespace string) (bool, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return false, err
	}
	checker := NewReadyChecker(client, c.Log)
	return checker.WorkloadReady(ctx, releaseName, namespace)
}

// ReleasesByLabel lists Deployment and StatefulSet backed engine
// workloads matching the selector.
func (c *Client) ReleasesByLabel(ctx context.Context, selector, namespace string) ([]Workload, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}
	opts := metav1.ListOptions{LabelSelector: selector}

	var workloads []Workload
	deps, err := client.AppsV1().Deployments(namespace).List(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "listing deployments")
	}
	for i := range deps.Items {
		d := &deps.Items[i]
		replicas := int32(1)
		if d.Spec.Replicas != nil {
			replicas = *d.Spec.Replicas
		}
		workloads = append(workloads, Workload{
			Name:          d.Name,
			Kind:          "Deployment",
			Namespace:     d.Namespace,
			Labels:        d.Labels,
			Replicas:      replicas,
			ReadyReplicas: d.Status.ReadyReplicas,
		})
	}

	sts, err := client.AppsV1().StatefulSets(namespace).List(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "listing statefulsets")
	}
	for i := range sts.Items {
		s := &sts.Items[i]
		replicas := int32(1)
		if s.Spec.Replicas != nil {
			replicas = *s.Spec.Replicas
		}
		workloads = append(workloads, Workload{
			Name:          s.Name,
			Kind:          "StatefulSet",
			Namespace:     s.Namespace,
			Labels:        s.Labels,
			Replicas:      replicas,
			ReadyReplicas: s.Status.ReadyReplicas,
		})
	}
	return workloads, nil
}

// DeleteReleaseResources removes objects a departed release can leave
// behind: the service account carrying its name and any workload or
// service still labelled as its instance.
func (c *Client) DeleteReleaseResources(ctx context.Context, releaseName, namespace string) error {
	client, err := c.getKubeClient()
	if err != nil {
		return err
	}

	if err := client.CoreV1().ServiceAccounts(namespace).Delete(ctx, releaseName, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "deleting service account %q", releaseName)
	}

	opts := metav1.ListOptions{LabelSelector: InstanceSelector(releaseName)}

	deps, err := client.AppsV1().Deployments(namespace).List(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "listing leftover deployments")
	}
	for i := range deps.Items {
		name := deps.Items[i].Name
		c.Log("deleting leftover deployment %q", name)
		if err := client.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			return errors.Wrapf(err, "deleting deployment %q", name)
		}
	}

	sts, err := client.AppsV1().StatefulSets(namespace).List(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "listing leftover statefulsets")
	}
	for i := range sts.Items {
		name := sts.Items[i].Name
		c.Log("deleting leftover statefulset %q", name)
		if err := client.AppsV1().StatefulSets(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			return errors.Wrapf(err, "deleting statefulset %q", name)
		}
	}

	svcs, err := client.CoreV1().Services(namespace).List(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "listing leftover services")
	}
	for i := range svcs.Items {
		name := svcs.Items[i].Name
		c.Log("deleting leftover service %q", name)
		if err := client.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
			return errors.Wrapf(err, "deleting service %q", name)
		}
	}
	return nil
}

// PodLogs streams a pod's log.
func (c *Client) PodLogs(ctx context.Context, name, namespace string, tailLines int64, follow bool) (io.ReadCloser, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}
	opts := &corev1.PodLogOptions{Follow: follow}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}
	return client.CoreV1().Pods(namespace).GetLogs(name, opts).Stream(ctx)
}

// EnsureNamespace creates the namespace when it does not exist. The
// labels mark it as machinery-owned so operators can tell it apart from
// hand-made namespaces.
func (c *Client) EnsureNamespace(ctx context.Context, namespace string) error {
	client, err := c.getKubeClient()
	if err != nil {
		return err
	}
	if _, err := client.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{}); err == nil {
		return nil
	} else if !apierrors.IsNotFound(err) {
		return errors.Wrapf(err, "checking namespace %q", namespace)
	}

	c.Log("creating namespace %q", namespace)
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: namespace,
			Labels: map[string]string{
				"created-by":   "coxswain",
				"auto-created": "true",
			},
		},
	}
	if _, err := client.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{}); err != nil && !apierrors.IsAlreadyExists(err) {
		return errors.Wrapf(err, "creating namespace %q", namespace)
	}
	return nil
}

// ServerVersion fetches the version reported by the API server.
func (c *Client) ServerVersion() (*version.Info, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}
	return client.Discovery().ServerVersion()
}

// IsReachable tests connectivity to the cluster.
func (c *Client) IsReachable() error {
	client, err := c.getKubeClient()
	if err != nil {
		return errors.Wrap(err, "Kubernetes cluster unreachable")
	}
	if _, err := client.Discovery().ServerVersion(); err != nil {
		return errors.Wrap(err, "Kubernetes cluster unreachable")
	}
	return nil
}

func (c *Client) pause(d time.Duration) {
	if c.sleep != nil {
		c.sleep(d)
		return
	}
	time.Sleep(d)
}
