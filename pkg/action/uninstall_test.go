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

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

func releaseFixture(t *testing.T, cfg *Configuration, name string) *engine.Release {
	t.Helper()
	rel := &engine.Release{
		Name:      name,
		Namespace: "engines",
		Status:    engine.ReleaseStatusRunning,
		Model:     "facebook/opt-125m",
		CreatedAt: time.Unix(242085845, 0).UTC(),
		UpdatedAt: time.Unix(242085845, 0).UTC(),
	}
	require.NoError(t, cfg.Store.PutRelease(rel))
	return rel
}

func TestUninstallEngine(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	releaseFixture(t, cfg, "engine-opt-abc12345-cpu-0")
	require.NoError(t, cfg.Store.PutReuse(&engine.ReuseRecord{
		Fingerprint: "abc",
		ReleaseName: "engine-opt-abc12345-cpu-0",
		Namespace:   "engines",
	}))

	got, err := NewUninstallEngine(cfg).Run(context.Background(), "engine-opt-abc12345-cpu-0")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusCleanedUp, got.Status)

	failer := kubeFailer(t, cfg)
	is.Equal([]string{"engine-opt-abc12345-cpu-0"}, failer.Uninstalled)

	// The record survives the teardown, marked cleaned up, and the
	// reuse record pointing at the release is gone.
	stored, err := cfg.Store.GetRelease("engine-opt-abc12345-cpu-0")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusCleanedUp, stored.Status)
	_, err = cfg.Store.GetReuse()
	is.True(errors.Is(err, driver.ErrReuseNotFound))
}

func TestUninstallEngineUnknown(t *testing.T) {
	cfg := actionConfigFixture(t)
	_, err := NewUninstallEngine(cfg).Run(context.Background(), "engine-ghost")
	assert.True(t, errors.Is(err, driver.ErrReleaseNotFound))
}

func TestUninstallEngineBusy(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	releaseFixture(t, cfg, "engine-busy")
	holder := campaign.Mock(&campaign.MockCampaignOptions{ID: "rider", Status: campaign.StatusProcessing})
	holder.ReleaseID = "engine-busy"
	mustInsert(t, cfg, holder)

	_, err := NewUninstallEngine(cfg).Run(context.Background(), "engine-busy")
	is.True(errors.Is(err, ErrReleaseBusy))
	is.Empty(kubeFailer(t, cfg).Uninstalled)

	// Force overrides the guard.
	u := NewUninstallEngine(cfg)
	u.Force = true
	got, err := u.Run(context.Background(), "engine-busy")
	require.NoError(t, err)
	is.Equal(engine.ReleaseStatusCleanedUp, got.Status)
}
