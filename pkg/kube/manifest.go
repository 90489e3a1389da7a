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
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"sigs.k8s.io/yaml"

	"github.com/coxswain-io/coxswain/pkg/manifest"
)

// SupportedKinds enumerates the manifest kinds the adapter will create
// or delete. Anything else fails with ErrUnsupportedKind.
var SupportedKinds = []string{"Job", "Deployment", "Service", "ConfigMap", "Secret"}

// jobRecreateDelay is how long a terminal job's delete gets to
// propagate before its replacement is created.
var jobRecreateDelay = 2 * time.Second

// ApplyManifest creates every document in the manifest text, in order.
// The target namespace is created first when missing. Applying stops at
// the first document that cannot be created; the resources created up
// to that point are returned alongside the error so callers can track
// them for cleanup.
func (c *Client) ApplyManifest(ctx context.Context, text, namespace string) ([]Resource, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}
	if err := c.EnsureNamespace(ctx, namespace); err != nil {
		return nil, err
	}

	docs, err := manifest.SplitWithHeads(text)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("manifest contains no documents")
	}

	c.Log("applying %d resource(s) to %s", len(docs), namespace)
	applied := make([]Resource, 0, len(docs))
	for _, doc := range docs {
		res, err := c.applyDocument(ctx, client, doc, namespace)
		if err != nil {
			return applied, err
		}
		applied = append(applied, res)
	}
	return applied, nil
}

func (c *Client) applyDocument(ctx context.Context, client kubernetes.Interface, doc manifest.Manifest, namespace string) (Resource, error) {
	ns := doc.Head.Namespace()
	if ns == "" {
		ns = namespace
	}
	switch doc.Head.Kind {
	case "Job":
		return c.applyJob(ctx, client, doc.Content, ns)
	case "Deployment":
		var obj appsv1.Deployment
		return c.applyObject(doc, ns, &obj, func() error {
			obj.Namespace = ns
			_, err := client.AppsV1().Deployments(ns).Create(ctx, &obj, metav1.CreateOptions{})
			return err
		})
	case "Service":
		var obj corev1.Service
		return c.applyObject(doc, ns, &obj, func() error {
			obj.Namespace = ns
			_, err := client.CoreV1().Services(ns).Create(ctx, &obj, metav1.CreateOptions{})
			return err
		})
	case "ConfigMap":
		var obj corev1.ConfigMap
		return c.applyObject(doc, ns, &obj, func() error {
			obj.Namespace = ns
			_, err := client.CoreV1().ConfigMaps(ns).Create(ctx, &obj, metav1.CreateOptions{})
			return err
		})
	case "Secret":
		var obj corev1.Secret
		return c.applyObject(doc, ns, &obj, func() error {
			obj.Namespace = ns
			_, err := client.CoreV1().Secrets(ns).Create(ctx, &obj, metav1.CreateOptions{})
			return err
		})
	}
	return Resource{}, errors.Wrapf(ErrUnsupportedKind, "kind %q", doc.Head.Kind)
}

// applyObject decodes one non-Job document and creates it. A resource
// that already exists counts as applied.
func (c *Client) applyObject(doc manifest.Manifest, ns string, obj interface{}, create func() error) (Resource, error) {
	if err := yaml.Unmarshal([]byte(doc.Content), obj); err != nil {
		return Resource{}, errors.Wrapf(err, "decoding %s manifest", doc.Head.Kind)
	}
	res := Resource{Kind: doc.Head.Kind, Name: doc.Head.Name(), Namespace: ns}
	if err := create(); err != nil {
		if apierrors.IsAlreadyExists(err) {
			c.Log("%s %q already exists in %s, treating as applied", doc.Head.Kind, res.Name, ns)
			return res, nil
		}
		return res, errors.Wrapf(err, "creating %s %q", doc.Head.Kind, res.Name)
	}
	return res, nil
}

// applyJob creates a Job. A name collision with a finished job replaces
// it: the old object is deleted with background propagation, the delete
// gets a moment to settle, and the job is created fresh. A collision
// with a live job adopts it so a retried submission does not restart
// running work.
func (c *Client) applyJob(ctx context.Context, client kubernetes.Interface, content, ns string) (Resource, error) {
	var job batchv1.Job
	if err := yaml.Unmarshal([]byte(content), &job); err != nil {
		return Resource{}, errors.Wrap(err, "decoding job manifest")
	}
	job.Namespace = ns
	res := Resource{Kind: "Job", Name: job.Name, Namespace: ns}

	_, err := client.BatchV1().Jobs(ns).Create(ctx, &job, metav1.CreateOptions{})
	if err == nil {
		return res, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return res, errors.Wrapf(err, "creating job %q", job.Name)
	}

	existing, err := client.BatchV1().Jobs(ns).Get(ctx, job.Name, metav1.GetOptions{})
	if err != nil {
		return res, errors.Wrapf(err, "inspecting existing job %q", job.Name)
	}
	if !jobFinished(existing) {
		c.Log("job %q is still running in %s, adopting it", job.Name, ns)
		return res, nil
	}

	c.Log("job %q exists in a terminal state, replacing it", job.Name)
	propagation := metav1.DeletePropagationBackground
	if err := client.BatchV1().Jobs(ns).Delete(ctx, job.Name, metav1.DeleteOptions{PropagationPolicy: &propagation}); err != nil && !apierrors.IsNotFound(err) {
		return res, errors.Wrapf(err, "replacing job %q", job.Name)
	}
	c.pause(jobRecreateDelay)
	if _, err := client.BatchV1().Jobs(ns).Create(ctx, &job, metav1.CreateOptions{}); err != nil {
		return res, errors.Wrapf(err, "recreating job %q", job.Name)
	}
	return res, nil
}

// jobFinished reports whether the job carries a terminal condition.
func jobFinished(job *batchv1.Job) bool {
	for _, cond := range job.Status.Conditions {
		if (cond.Type == batchv1.JobComplete || cond.Type == batchv1.JobFailed) && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// DeleteManifest removes every document in the manifest text. Absent
// resources count as deleted; real failures are aggregated so one bad
// document does not shield the rest from deletion.
func (c *Client) DeleteManifest(ctx context.Context, text, namespace string) ([]Resource, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}

	docs, err := manifest.SplitWithHeads(text)
	if err != nil {
		return nil, err
	}

	propagation := metav1.DeletePropagationBackground
	delOpts := metav1.DeleteOptions{PropagationPolicy: &propagation}

	var result *multierror.Error
	deleted := make([]Resource, 0, len(docs))
	for _, doc := range docs {
		ns := doc.Head.Namespace()
		if ns == "" {
			ns = namespace
		}
		name := doc.Head.Name()

		var derr error
		switch doc.Head.Kind {
		case "Job":
			derr = client.BatchV1().Jobs(ns).Delete(ctx, name, delOpts)
		case "Deployment":
			derr = client.AppsV1().Deployments(ns).Delete(ctx, name, delOpts)
		case "Service":
			derr = client.CoreV1().Services(ns).Delete(ctx, name, delOpts)
		case "ConfigMap":
			derr = client.CoreV1().ConfigMaps(ns).Delete(ctx, name, delOpts)
		case "Secret":
			derr = client.CoreV1().Secrets(ns).Delete(ctx, name, delOpts)
		default:
			result = multierror.Append(result, errors.Wrapf(ErrUnsupportedKind, "kind %q", doc.Head.Kind))
			continue
		}
		if derr != nil && !apierrors.IsNotFound(derr) {
			result = multierror.Append(result, errors.Wrapf(derr, "deleting %s %q", doc.Head.Kind, name))
			continue
		}
		deleted = append(deleted, Resource{Kind: doc.Head.Kind, Name: name, Namespace: ns})
	}
	c.Log("deleted %d resource(s) from %s", len(deleted), namespace)
	return deleted, result.ErrorOrNil()
}
