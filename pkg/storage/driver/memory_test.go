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

package driver

import (
	"reflect"
	"testing"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

func TestMemoryName(t *testing.T) {
	if mem := NewMemory(); mem.Name() != MemoryDriverName {
		t.Errorf("expected name to be %q, got %q", MemoryDriverName, mem.Name())
	}
}

func TestMemoryCreate(t *testing.T) {
	var tests = []struct {
		desc string
		c    *campaign.Campaign
		err  bool
	}{
		{
			"create should succeed",
			campaignStub("campaign-create", campaign.StatusPending, campaign.PriorityMedium),
			false,
		},
		{
			"create should fail (campaign already exists)",
			campaignStub("campaign-a", campaign.StatusPending, campaign.PriorityMedium),
			true,
		},
	}

	ts := tsFixtureMemory(t)
	for _, tt := range tests {
		key := testKey(tt.c.ID)
		if err := ts.Create(key, tt.c); err != nil {
			if !tt.err {
				t.Fatalf("failed to create %q: %s", tt.desc, err)
			}
		} else if tt.err {
			t.Fatalf("expected error for %q", tt.desc)
		}
	}
}

func TestMemoryCreateEmptyKey(t *testing.T) {
	mem := NewMemory()
	if err := mem.Create("", campaignStub("x", campaign.StatusPending, campaign.PriorityMedium)); err != ErrInvalidKey {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestMemoryGet(t *testing.T) {
	ts := tsFixtureMemory(t)

	got, err := ts.Get(testKey("campaign-a"))
	if err != nil {
		t.Fatalf("failed to get campaign: %s", err)
	}
	if got.ID != "campaign-a" {
		t.Errorf("expected campaign-a, got %q", got.ID)
	}

	if _, err := ts.Get(testKey("nonexistent")); err != ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestMemoryGetReturnsIndependentCopies(t *testing.T) {
	ts := tsFixtureMemory(t)

	first, err := ts.Get(testKey("campaign-a"))
	if err != nil {
		t.Fatalf("failed to get campaign: %s", err)
	}
	first.Status = campaign.StatusFailed
	first.Benchmarks[0].Name = "mutated"

	second, err := ts.Get(testKey("campaign-a"))
	if err != nil {
		t.Fatalf("failed to get campaign: %s", err)
	}
	if second.Status != campaign.StatusPending {
		t.Errorf("mutation of a returned campaign leaked into the cache: status %q", second.Status)
	}
	if second.Benchmarks[0].Name == "mutated" {
		t.Error("mutation of a returned benchmark leaked into the cache")
	}
}

func TestMemoryList(t *testing.T) {
	ts := tsFixtureMemory(t)

	pending, err := ts.List(func(c *campaign.Campaign) bool {
		return c.Status == campaign.StatusPending
	})
	if err != nil {
		t.Fatalf("failed to list: %s", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending campaigns, got %d", len(pending))
	}

	all, err := ts.List(func(*campaign.Campaign) bool { return true })
	if err != nil {
		t.Fatalf("failed to list: %s", err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 campaigns, got %d", len(all))
	}
}

func TestMemoryQuery(t *testing.T) {
	ts := tsFixtureMemory(t)

	cs, err := ts.Query(map[string]string{"status": "pending"})
	if err != nil {
		t.Fatalf("failed to query: %s", err)
	}
	if len(cs) != 2 {
		t.Errorf("expected 2 campaigns, got %d", len(cs))
	}

	cs, err = ts.Query(map[string]string{"status": "pending", "priority": "urgent"})
	if err != nil {
		t.Fatalf("failed to query: %s", err)
	}
	if len(cs) != 1 || cs[0].ID != "campaign-b" {
		t.Errorf("expected campaign-b, got %v", cs)
	}

	if _, err := ts.Query(map[string]string{"status": "zamboni"}); err != ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestMemoryUpdate(t *testing.T) {
	ts := tsFixtureMemory(t)

	key := testKey("campaign-a")
	c, err := ts.Get(key)
	if err != nil {
		t.Fatalf("failed to get campaign: %s", err)
	}

	c.Status = campaign.StatusProcessing
	if err := ts.Update(key, c); err != nil {
		t.Fatalf("failed to update campaign: %s", err)
	}

	got, err := ts.Get(key)
	if err != nil {
		t.Fatalf("failed to get campaign: %s", err)
	}
	if got.Status != campaign.StatusProcessing {
		t.Errorf("expected status processing, got %q", got.Status)
	}

	// the queryable label set follows the document
	cs, err := ts.Query(map[string]string{"status": "processing"})
	if err != nil {
		t.Fatalf("failed to query: %s", err)
	}
	if len(cs) != 2 {
		t.Errorf("expected 2 processing campaigns, got %d", len(cs))
	}

	if err := ts.Update(testKey("nonexistent"), c); err != ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ts := tsFixtureMemory(t)

	key := testKey("campaign-a")
	deleted, err := ts.Delete(key)
	if err != nil {
		t.Fatalf("failed to delete campaign: %s", err)
	}
	if deleted.ID != "campaign-a" {
		t.Errorf("expected campaign-a, got %q", deleted.ID)
	}

	if _, err := ts.Get(key); err != ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
	if _, err := ts.Delete(key); err != ErrCampaignNotFound {
		t.Errorf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestMemoryReleases(t *testing.T) {
	mem := NewMemory()

	if _, err := mem.GetRelease("engine-opt-125m"); err != ErrReleaseNotFound {
		t.Errorf("expected ErrReleaseNotFound, got %v", err)
	}

	rel := &engine.Release{
		Name:      "engine-opt-125m",
		Namespace: "engines",
		Status:    engine.ReleaseStatusDeploying,
	}
	if err := mem.PutRelease(rel); err != nil {
		t.Fatalf("failed to put release: %s", err)
	}

	rel.Status = engine.ReleaseStatusRunning
	if err := mem.PutRelease(rel); err != nil {
		t.Fatalf("failed to put release: %s", err)
	}

	got, err := mem.GetRelease("engine-opt-125m")
	if err != nil {
		t.Fatalf("failed to get release: %s", err)
	}
	if !reflect.DeepEqual(rel, got) {
		t.Errorf("expected %v, got %v", rel, got)
	}

	ls, err := mem.ListReleases()
	if err != nil {
		t.Fatalf("failed to list releases: %s", err)
	}
	if len(ls) != 1 {
		t.Errorf("expected 1 release, got %d", len(ls))
	}

	if err := mem.DeleteRelease("engine-opt-125m"); err != nil {
		t.Fatalf("failed to delete release: %s", err)
	}
	if err := mem.DeleteRelease("engine-opt-125m"); err != ErrReleaseNotFound {
		t.Errorf("expected ErrReleaseNotFound, got %v", err)
	}
}

func TestMemoryReuse(t *testing.T) {
	mem := NewMemory()

	if _, err := mem.GetReuse(); err != ErrReuseNotFound {
		t.Errorf("expected ErrReuseNotFound, got %v", err)
	}
	// clearing an absent record is not an error
	if err := mem.ClearReuse(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	rec := &engine.ReuseRecord{
		Fingerprint: "0a1b2c3d",
		ReleaseName: "engine-opt-125m",
		Namespace:   "engines",
	}
	if err := mem.PutReuse(rec); err != nil {
		t.Fatalf("failed to put reuse record: %s", err)
	}

	got, err := mem.GetReuse()
	if err != nil {
		t.Fatalf("failed to get reuse record: %s", err)
	}
	if !reflect.DeepEqual(rec, got) {
		t.Errorf("expected %v, got %v", rec, got)
	}

	if err := mem.ClearReuse(); err != nil {
		t.Fatalf("failed to clear reuse record: %s", err)
	}
	if _, err := mem.GetReuse(); err != ErrReuseNotFound {
		t.Errorf("expected ErrReuseNotFound, got %v", err)
	}
}
