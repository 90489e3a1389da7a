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
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

func TestSubmit(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/queue/deployment" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var in campaign.Campaign
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Fatalf("decoding request: %s", err)
			}
			if len(in.Benchmarks) != 1 {
				t.Fatalf("expected one benchmark, got %d", len(in.Benchmarks))
			}

			in.ID = "c-1"
			in.Status = campaign.StatusPending
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(&in)
		},
	}

	cmp := &campaign.Campaign{
		Benchmarks: []campaign.BenchmarkSpec{{Manifest: "kind: Job"}},
		Priority:   campaign.PriorityHigh,
	}
	stored, err := fc.setup(t).Submit(context.Background(), cmp)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID != "c-1" {
		t.Errorf("expected assigned id c-1, got %q", stored.ID)
	}
	if stored.Status != campaign.StatusPending {
		t.Errorf("expected a pending campaign, got %s", stored.Status)
	}
}

func TestListCampaigns(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/queue/list" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.Write([]byte(`[{"id":"c-1","status":"pending"},{"id":"c-2","status":"completed"}]`))
		},
	}

	campaigns, err := fc.setup(t).List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("expected two campaigns, got %d", len(campaigns))
	}
	if campaigns[1].Status != campaign.StatusCompleted {
		t.Errorf("expected c-2 to be completed, got %s", campaigns[1].Status)
	}
}

func TestGetCampaign(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/queue/c-9" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"id":"c-9","status":"processing","current_step":"benchmark 1/2"}`))
		},
	}

	cmp, err := fc.setup(t).Get(context.Background(), "c-9")
	if err != nil {
		t.Fatal(err)
	}
	if cmp.CurrentStep != "benchmark 1/2" {
		t.Errorf("unexpected step %q", cmp.CurrentStep)
	}
}

func TestQueueStatus(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/queue/status" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Write([]byte(`{"total":3,"counts":{"pending":2,"processing":1},"pending":["c-1","c-2"],"processing":["c-3"]}`))
		},
	}

	summary, err := fc.setup(t).QueueStatus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 3 {
		t.Errorf("expected 3 campaigns, got %d", summary.Total)
	}
	if summary.Counts[campaign.StatusPending] != 2 {
		t.Errorf("expected 2 pending, got %d", summary.Counts[campaign.StatusPending])
	}
}

func TestCancelCampaign(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/queue/c-1/cancel" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			w.Write([]byte(`{"id":"c-1","status":"cancelled"}`))
		},
	}

	cmp, err := fc.setup(t).Cancel(context.Background(), "c-1")
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Status != campaign.StatusCancelled {
		t.Errorf("expected a cancelled campaign, got %s", cmp.Status)
	}
}

func TestDeleteCampaign(t *testing.T) {
	tt := []struct {
		name  string
		force bool
		query string
	}{
		{"plain", false, ""},
		{"forced", true, "true"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{
				handler: func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodDelete || r.URL.Path != "/queue/c-1" {
						t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
					}
					if got := r.URL.Query().Get("force"); got != tc.query {
						t.Errorf("expected force query %q, got %q", tc.query, got)
					}
					w.Write([]byte(`{"message":"campaign c-1 deleted"}`))
				},
			}

			if err := fc.setup(t).Delete(context.Background(), "c-1", tc.force); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSetPriority(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/queue/c-1/priority" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var in PriorityRequest
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Fatalf("decoding request: %s", err)
			}
			if in.Priority != campaign.PriorityUrgent {
				t.Errorf("expected urgent, got %s", in.Priority)
			}
			w.Write([]byte(`{"id":"c-1","status":"pending","priority":"urgent"}`))
		},
	}

	cmp, err := fc.setup(t).SetPriority(context.Background(), "c-1", campaign.PriorityUrgent)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Priority != campaign.PriorityUrgent {
		t.Errorf("expected an urgent campaign, got %s", cmp.Priority)
	}
}

func TestPatchStatus(t *testing.T) {
	patch := []byte(`{"error_message":"superseded"}`)

	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch || r.URL.Path != "/queue/c-1/status" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/merge-patch+json" {
				t.Errorf("unexpected content type %q", ct)
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				t.Fatal(err)
			}
			if string(body) != string(patch) {
				t.Errorf("patch body was rewritten: %s", body)
			}
			w.Write([]byte(`{"id":"c-1","status":"failed","error_message":"superseded"}`))
		},
	}

	cmp, err := fc.setup(t).PatchStatus(context.Background(), "c-1", patch)
	if err != nil {
		t.Fatal(err)
	}
	if cmp.Error != "superseded" {
		t.Errorf("unexpected error field %q", cmp.Error)
	}
}

func TestSchedulerConfig(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/scheduler/config" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			var in SchedulerConfigRequest
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
				t.Fatalf("decoding request: %s", err)
			}
			if in.PollIntervalSeconds != 45 {
				t.Errorf("expected 45 seconds, got %d", in.PollIntervalSeconds)
			}
			w.Write([]byte(`{"running":true,"paused":false,"poll_interval_seconds":45,"tick_in_flight":false,"consecutive_errors":0}`))
		},
	}

	status, err := fc.setup(t).SchedulerConfig(context.Background(), 45)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Running || status.PollInterval != 45 {
		t.Errorf("unexpected scheduler status %+v", status)
	}
}

func TestSchedulerTriggerConflict(t *testing.T) {
	fc := &fakeClient{
		handler: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"error":"a pass is already in flight"}`))
		},
	}

	err := fc.setup(t).SchedulerTrigger(context.Background())
	if err == nil {
		t.Fatal("expected a conflict error")
	}
	if err.Error() != "a pass is already in flight" {
		t.Errorf("unexpected message %q", err)
	}
}
