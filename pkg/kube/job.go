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

	"github.com/pkg/errors"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/kubectl/pkg/util/podutils"
)

// JobPhase summarizes a benchmark job's condition.
type JobPhase string

const (
	JobPending   JobPhase = "pending"
	JobRunning   JobPhase = "running"
	JobSucceeded JobPhase = "succeeded"
	JobFailed    JobPhase = "failed"
	JobNotFound  JobPhase = "not_found"
)

func (p JobPhase) String() string { return string(p) }

// JobStatus is the derived state of a benchmark job together with the
// raw counts it was derived from.
type JobStatus struct {
	Name        string     `json:"name"`
	Namespace   string     `json:"namespace"`
	Phase       JobPhase   `json:"phase"`
	Active      int32      `json:"active_count"`
	Succeeded   int32      `json:"succeeded_count"`
	Failed      int32      `json:"failed_count"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PodInfo is one pod behind a benchmark job.
type PodInfo struct {
	Name       string   `json:"pod_name"`
	Phase      string   `json:"phase"`
	Ready      bool     `json:"ready"`
	Containers []string `json:"containers,omitempty"`
}

// jobNameSelector is the label the job controller stamps on every pod
// it creates.
func jobNameSelector(jobName string) string {
	return "job-name=" + jobName
}

// JobStatus derives the job's phase. Terminal conditions on the job
// object win; a job without one is judged by the census of its pods,
// because counts alone cannot distinguish a slow start from a finish.
func (c *Client) JobStatus(ctx context.Context, name, namespace string) (*JobStatus, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}

	job, err := client.BatchV1().Jobs(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return &JobStatus{Name: name, Namespace: namespace, Phase: JobNotFound}, nil
		}
		return nil, errors.Wrapf(err, "getting job %q", name)
	}

	status := &JobStatus{
		Name:      name,
		Namespace: namespace,
		Active:    job.Status.Active,
		Succeeded: job.Status.Succeeded,
		Failed:    job.Status.Failed,
	}
	if job.Status.StartTime != nil {
		t := job.Status.StartTime.Time
		status.StartedAt = &t
	}
	if job.Status.CompletionTime != nil {
		t := job.Status.CompletionTime.Time
		status.CompletedAt = &t
	}

	switch {
	case hasJobCondition(job, batchv1.JobComplete):
		status.Phase = JobSucceeded
	case hasJobCondition(job, batchv1.JobFailed):
		status.Phase = JobFailed
	default:
		status.Phase = c.censusPhase(ctx, client, name, namespace)
	}
	return status, nil
}

func hasJobCondition(job *batchv1.Job, cond batchv1.JobConditionType) bool {
	for _, c := range job.Status.Conditions {
		if c.Type == cond && c.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// censusPhase derives a phase from the job's pods when the job object
// carries no terminal condition yet. Mixed censuses stay pending: a
// failed pod next to a pending one may still be retried.
func (c *Client) censusPhase(ctx context.Context, client kubernetes.Interface, name, namespace string) JobPhase {
	pods, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: jobNameSelector(name)})
	if err != nil {
		c.Log("could not list pods for job %q: %s", name, err)
		return JobPending
	}

	var running, succeeded, failed, pending int
	for i := range pods.Items {
		switch pods.Items[i].Status.Phase {
		case corev1.PodRunning:
			running++
		case corev1.PodSucceeded:
			succeeded++
		case corev1.PodFailed:
			failed++
		default:
			pending++
		}
	}

	switch {
	case running > 0:
		return JobRunning
	case succeeded > 0 && failed == 0 && pending == 0:
		return JobSucceeded
	case failed > 0 && succeeded == 0 && pending == 0:
		return JobFailed
	}
	return JobPending
}

// DeleteJob removes a job with background propagation so its pods go
// with it. Absence is success.
func (c *Client) DeleteJob(ctx context.Context, name, namespace string) (bool, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return false, err
	}
	propagation := metav1.DeletePropagationBackground
	err = client.BatchV1().Jobs(namespace).Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, errors.Wrapf(err, "deleting job %q", name)
	}
	c.Log("deleted job %q from %s", name, namespace)
	return true, nil
}

// PodsForJob lists the pods a job has spawned.
func (c *Client) PodsForJob(ctx context.Context, jobName, namespace string) ([]PodInfo, error) {
	client, err := c.getKubeClient()
	if err != nil {
		return nil, err
	}
	pods, err := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: jobNameSelector(jobName)})
	if err != nil {
		return nil, errors.Wrapf(err, "listing pods for job %q", jobName)
	}

	infos := make([]PodInfo, 0, len(pods.Items))
	for i := range pods.Items {
		pod := &pods.Items[i]
		info := PodInfo{
			Name:  pod.Name,
			Phase: string(pod.Status.Phase),
			Ready: podutils.IsPodReady(pod),
		}
		for _, ctr := range pod.Spec.Containers {
			info.Containers = append(info.Containers, ctr.Name)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
