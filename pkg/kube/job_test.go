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
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

func benchJob(name string) *batchv1.Job {
	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: defaultNamespace,
		},
	}
}

func jobWithCondition(name string, cond batchv1.JobConditionType) *batchv1.Job {
	job := benchJob(name)
	job.Status.Conditions = []batchv1.JobCondition{
		{
			Type:   cond,
			Status: corev1.ConditionTrue,
		},
	}
	return job
}

func jobPod(name, jobName string, phase corev1.PodPhase) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: defaultNamespace,
			Labels:    map[string]string{"job-name": jobName},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name: "bench",
				},
			},
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestJobStatusPhases(t *testing.T) {
	tests := []struct {
		name string
		job  *batchv1.Job
		pods []*corev1.Pod
		want JobPhase
	}{
		{
			name: "complete condition wins",
			job:  jobWithCondition("bench", batchv1.JobComplete),
			want: JobSucceeded,
		},
		{
			name: "failed condition wins over pods",
			job:  jobWithCondition("bench", batchv1.JobFailed),
			pods: []*corev1.Pod{jobPod("bench-x1", "bench", corev1.PodRunning)},
			want: JobFailed,
		},
		{
			name: "running pod means running",
			job:  benchJob("bench"),
			pods: []*corev1.Pod{jobPod("bench-x1", "bench", corev1.PodRunning)},
			want: JobRunning,
		},
		{
			name: "all pods succeeded",
			job:  benchJob("bench"),
			pods: []*corev1.Pod{jobPod("bench-x1", "bench", corev1.PodSucceeded)},
			want: JobSucceeded,
		},
		{
			name: "all pods failed",
			job:  benchJob("bench"),
			pods: []*corev1.Pod{jobPod("bench-x1", "bench", corev1.PodFailed)},
			want: JobFailed,
		},
		{
			name: "failed pod next to a pending one stays pending",
			job:  benchJob("bench"),
			pods: []*corev1.Pod{
				jobPod("bench-x1", "bench", corev1.PodFailed),
				jobPod("bench-x2", "bench", corev1.PodPending),
			},
			want: JobPending,
		},
		{
			name: "no pods yet",
			job:  benchJob("bench"),
			want: JobPending,
		},
		{
			name: "another job's pods are ignored",
			job:  benchJob("bench"),
			pods: []*corev1.Pod{jobPod("other-x1", "other", corev1.PodRunning)},
			want: JobPending,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objs := []runtime.Object{tt.job}
			for _, pod := range tt.pods {
				objs = append(objs, pod)
			}
			c := newTestClient(t, objs...)
			got, err := c.JobStatus(context.TODO(), "bench", defaultNamespace)
			if err != nil {
				t.Fatalf("JobStatus() error = %v", err)
			}
			if got.Phase != tt.want {
				t.Errorf("JobStatus() phase = %q, want %q", got.Phase, tt.want)
			}
		})
	}
}

func TestJobStatusNotFound(t *testing.T) {
	c := newTestClient(t)
	got, err := c.JobStatus(context.TODO(), "never-submitted", defaultNamespace)
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if got.Phase != JobNotFound {
		t.Errorf("JobStatus() phase = %q, want %q", got.Phase, JobNotFound)
	}
}

func TestJobStatusCounts(t *testing.T) {
	started := metav1.NewTime(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC))
	job := benchJob("bench")
	job.Status.Active = 1
	job.Status.Failed = 2
	job.Status.StartTime = &started

	c := newTestClient(t, job)
	got, err := c.JobStatus(context.TODO(), "bench", defaultNamespace)
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if got.Active != 1 || got.Failed != 2 || got.Succeeded != 0 {
		t.Errorf("JobStatus() counts = %d/%d/%d, want 1/2/0", got.Active, got.Failed, got.Succeeded)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started.Time) {
		t.Errorf("JobStatus() started at = %v, want %v", got.StartedAt, started.Time)
	}
	if got.CompletedAt != nil {
		t.Errorf("JobStatus() completed at = %v, want nil", got.CompletedAt)
	}
}

func TestDeleteJob(t *testing.T) {
	c := newTestClient(t, benchJob("bench"))
	gone, err := c.DeleteJob(context.TODO(), "bench", defaultNamespace)
	if err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if !gone {
		t.Error("DeleteJob() = false, want true")
	}
	if _, err := c.kubeClient.BatchV1().Jobs(defaultNamespace).Get(context.TODO(), "bench", metav1.GetOptions{}); err == nil {
		t.Error("job survived deletion")
	}
}

func TestDeleteJobMissing(t *testing.T) {
	c := newTestClient(t)
	gone, err := c.DeleteJob(context.TODO(), "never-submitted", defaultNamespace)
	if err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	if !gone {
		t.Error("a job that is not there should count as deleted")
	}
}

func TestPodsForJob(t *testing.T) {
	c := newTestClient(t,
		jobPod("bench-x1", "bench", corev1.PodRunning),
		jobPod("bench-x2", "bench", corev1.PodSucceeded),
		jobPod("other-x1", "other", corev1.PodRunning),
	)
	pods, err := c.PodsForJob(context.TODO(), "bench", defaultNamespace)
	if err != nil {
		t.Fatalf("PodsForJob() error = %v", err)
	}
	if len(pods) != 2 {
		t.Fatalf("PodsForJob() returned %d pods, want 2", len(pods))
	}
	for _, pod := range pods {
		if pod.Name != "bench-x1" && pod.Name != "bench-x2" {
			t.Errorf("unexpected pod %q", pod.Name)
		}
		if len(pod.Containers) != 1 || pod.Containers[0] != "bench" {
			t.Errorf("pod %q containers = %v, want [bench]", pod.Name, pod.Containers)
		}
	}
}
