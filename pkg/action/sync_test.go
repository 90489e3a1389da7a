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

package action

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

func engineWorkload(release string, ready int32) kube.Workload {
	return kube.Workload{
		Name:          release,
		Kind:          "StatefulSet",
		Namespace:     "engines",
		Labels:        map[string]string{kube.InstanceLabel: release},
		Replicas:      1,
		ReadyReplicas: ready,
	}
}

func TestSyncReleasesAdoptsLiveWorkloads(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	failer := kubeFailer(t, cfg)

	router := engineWorkload("engine-opt-125m-aabbccdd-cpu-1", 1)
	router.Name = "engine-opt-125m-aabbccdd-cpu-1-router"
	router.Kind = "Deployment"
	failer.Workloads = []kube.Workload{
		engineWorkload("engine-opt-125m-aabbccdd-cpu-1", 1),
		engineWorkload("engine-llama-3-8b-00112233-gpu-4", 0),
		// a second workload of the same release must not duplicate it
		router,
		// unlabelled workloads fall back to their own name
		{Name: "engine-bare-55555555-cpu-1", Kind: "StatefulSet", Namespace: "engines", ReadyReplicas: 1},
		// not ours
		engineWorkload("postgres", 1),
	}

	sync := NewSyncReleases(cfg)
	sync.Namespace = "engines"
	touched, err := sync.Run(context.Background())
	require.NoError(t, err)
	is.Len(touched, 3)

	rec, err := cfg.Store.GetRelease("engine-opt-125m-aabbccdd-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusRunning, rec.Status)
	is.Equal("engines", rec.Namespace)
	is.False(rec.CreatedAt.IsZero())

	rec, err = cfg.Store.GetRelease("engine-llama-3-8b-00112233-gpu-4")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusDeploying, rec.Status)

	_, err = cfg.Store.GetRelease("engine-bare-55555555-cpu-1")
	is.NoError(err)

	_, err = cfg.Store.GetRelease("postgres")
	is.ErrorIs(err, driver.ErrReleaseNotFound)
}

func TestSyncReleasesRefreshesRecordedStatus(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	failer := kubeFailer(t, cfg)

	base := time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)
	seed := []*engine.Release{
		{Name: "engine-a-11111111-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusDeploying, CreatedAt: base, UpdatedAt: base},
		{Name: "engine-b-22222222-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusRunning, CreatedAt: base, UpdatedAt: base},
		{Name: "engine-c-33333333-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusRunning, CreatedAt: base, UpdatedAt: base},
	}
	for _, rec := range seed {
		require.NoError(t, cfg.Store.PutRelease(rec))
	}
	failer.Workloads = []kube.Workload{
		engineWorkload("engine-a-11111111-cpu-1", 1), // came up
		engineWorkload("engine-b-22222222-cpu-1", 0), // lost its pods
		engineWorkload("engine-c-33333333-cpu-1", 1), // as recorded
	}

	sync := NewSyncReleases(cfg)
	sync.Namespace = "engines"
	touched, err := sync.Run(context.Background())
	require.NoError(t, err)
	is.Len(touched, 2)

	rec, err := cfg.Store.GetRelease("engine-a-11111111-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusRunning, rec.Status)
	is.True(rec.UpdatedAt.After(base))

	rec, err = cfg.Store.GetRelease("engine-b-22222222-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusDeploying, rec.Status)

	rec, err = cfg.Store.GetRelease("engine-c-33333333-cpu-1")
	require.NoError(t, err)
	is.True(rec.UpdatedAt.Equal(base), "an unchanged record must not be rewritten")
}

func TestSyncReleasesSweepsOrphanedRecords(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)

	old := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	recent := time.Date(2024, 5, 1, 11, 55, 0, 0, time.UTC)
	seed := []*engine.Release{
		{Name: "engine-gone-11111111-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusRunning, CreatedAt: old, UpdatedAt: old},
		{Name: "engine-young-22222222-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusDeploying, CreatedAt: recent, UpdatedAt: recent},
		{Name: "engine-done-33333333-cpu-1", Namespace: "engines", Status: engine.ReleaseStatusCleanedUp, CreatedAt: old, UpdatedAt: old},
		{Name: "engine-other-44444444-cpu-1", Namespace: "benchmarks", Status: engine.ReleaseStatusRunning, CreatedAt: old, UpdatedAt: old},
	}
	for _, rec := range seed {
		require.NoError(t, cfg.Store.PutRelease(rec))
	}

	sync := NewSyncReleases(cfg)
	sync.Namespace = "engines"
	touched, err := sync.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, touched, 1)
	is.Equal("engine-gone-11111111-cpu-1", touched[0].Name)

	rec, err := cfg.Store.GetRelease("engine-gone-11111111-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusStopped, rec.Status)

	rec, err = cfg.Store.GetRelease("engine-young-22222222-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusDeploying, rec.Status, "records inside the stale grace are left alone")

	rec, err = cfg.Store.GetRelease("engine-done-33333333-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusCleanedUp, rec.Status)

	rec, err = cfg.Store.GetRelease("engine-other-44444444-cpu-1")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusRunning, rec.Status, "a scoped sync must not judge other namespaces")

	// a tighter grace sweeps the younger record too
	sync.StaleAfter = time.Minute
	touched, err = sync.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, touched, 1)
	is.Equal("engine-young-22222222-cpu-1", touched[0].Name)
}

func TestSyncReleasesListFailure(t *testing.T) {
	cfg := actionConfigFixture(t)
	failer := kubeFailer(t, cfg)
	failer.ListWorkloadsError = errors.New("no api server")

	sync := NewSyncReleases(cfg)
	_, err := sync.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing engine workloads")
}
