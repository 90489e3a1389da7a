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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/storage"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

func TestDelete(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	mustInsert(t, cfg, campaign.Mock(&campaign.MockCampaignOptions{ID: "goner"}))

	removed, err := NewDelete(cfg).Run(context.Background(), "goner")
	require.NoError(t, err)
	is.Equal("goner", removed.ID)

	_, err = cfg.Store.Get("goner")
	is.ErrorIs(err, driver.ErrCampaignNotFound)
}

func TestDeleteRefusesProcessing(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)
	mustInsert(t, cfg, campaign.Mock(&campaign.MockCampaignOptions{ID: "busy", Status: campaign.StatusProcessing}))

	_, err := NewDelete(cfg).Run(context.Background(), "busy")
	is.ErrorIs(err, storage.ErrCampaignInFlight)

	// The record survives a refused delete.
	_, err = cfg.Store.Get("busy")
	is.NoError(err)
}

func TestDeleteForceCleansUpProcessing(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)

	c := campaign.Mock(&campaign.MockCampaignOptions{ID: "busy", Status: campaign.StatusProcessing, Benchmarks: 1})
	c.ReleaseID = "engine-busy-deadbeef-cpu-1"
	c.Jobs = []campaign.JobRecord{{Name: "busy-bench-0", Namespace: "default"}}
	mustInsert(t, cfg, c)

	del := NewDelete(cfg)
	del.Force = true
	del.Namespace = "engines"
	removed, err := del.Run(context.Background(), "busy")
	require.NoError(t, err)
	is.Equal("busy", removed.ID)

	failer := kubeFailer(t, cfg)
	is.Contains(failer.DeletedJobs, "busy-bench-0")
	is.Contains(failer.Uninstalled, "engine-busy-deadbeef-cpu-1")

	_, err = cfg.Store.Get("busy")
	is.ErrorIs(err, driver.ErrCampaignNotFound)
}

func TestDeleteForceTerminalSkipsCleanup(t *testing.T) {
	is := assert.New(t)
	cfg := actionConfigFixture(t)

	c := campaign.Mock(&campaign.MockCampaignOptions{ID: "done", Status: campaign.StatusCompleted})
	c.ReleaseID = "engine-done-deadbeef-cpu-1"
	mustInsert(t, cfg, c)

	del := NewDelete(cfg)
	del.Force = true
	_, err := del.Run(context.Background(), "done")
	require.NoError(t, err)

	// Terminal campaigns already cleaned up after themselves.
	is.Empty(kubeFailer(t, cfg).Uninstalled)
}

func TestDeleteMissing(t *testing.T) {
	_, err := NewDelete(actionConfigFixture(t)).Run(context.Background(), "no-such-campaign")
	assert.ErrorIs(t, err, driver.ErrCampaignNotFound)
}
