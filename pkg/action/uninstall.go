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

	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

// ErrReleaseBusy guards engine releases that a live campaign still runs
// against.
var ErrReleaseBusy = errors.New("engine release is in use")

// UninstallEngine is the action for tearing down a tracked engine
// release on operator request, outside any campaign.
//
// It provides the implementation of 'coxctl release uninstall' and
// POST /releases/{name}/uninstall.
type UninstallEngine struct {
	cfg *Configuration

	// Namespace is the fallback when the release record names none.
	Namespace string

	// Force tears the release down even while a pending or processing
	// campaign references it.
	Force bool
}

// NewUninstallEngine creates a new UninstallEngine object with the
// given configuration.
func NewUninstallEngine(cfg *Configuration) *UninstallEngine {
	return &UninstallEngine{cfg: cfg}
}

// Run uninstalls the named release, sweeps what the uninstall could not
// see, and records the outcome. The release record is kept, marked
// cleaned up, so the history of the name survives the teardown.
func (u *UninstallEngine) Run(ctx context.Context, name string) (*engine.Release, error) {
	rel, err := u.cfg.Store.GetRelease(name)
	if err != nil {
		return nil, err
	}
	if !u.Force {
		if holder := u.heldBy(name); holder != "" {
			return nil, errors.Wrapf(ErrReleaseBusy, "release %s backs campaign %s", name, holder)
		}
	}

	namespace := rel.Namespace
	if namespace == "" {
		namespace = u.Namespace
	}
	if _, err := u.cfg.KubeClient.UninstallRelease(ctx, name, namespace); err != nil {
		return nil, errors.Wrapf(err, "uninstalling engine release %s", name)
	}
	if err := u.cfg.KubeClient.DeleteReleaseResources(ctx, name, namespace); err != nil {
		u.cfg.logf("sweeping leftovers of release %s: %s", name, err)
	}

	rel.Status = engine.ReleaseStatusCleanedUp
	rel.Error = ""
	rel.UpdatedAt = u.cfg.Now()
	if err := u.cfg.Store.PutRelease(rel); err != nil {
		u.cfg.logf("updating release record %s: %s", name, err)
	}
	if rec, err := u.cfg.Store.GetReuse(); err == nil && rec.ReleaseName == name {
		if err := u.cfg.Store.ClearReuse(); err != nil {
			u.cfg.logf("clearing reuse record: %s", err)
		}
	}
	u.cfg.logf("engine release %s uninstalled", name)
	return rel, nil
}

// heldBy returns the id of a pending or processing campaign that still
// references the release, or "".
func (u *UninstallEngine) heldBy(name string) string {
	for _, status := range []campaign.Status{campaign.StatusPending, campaign.StatusProcessing} {
		list, err := u.cfg.Store.ListByStatus(status)
		if err != nil {
			continue
		}
		for _, c := range list {
			if c.ReleaseID == name {
				return c.ID
			}
		}
	}
	return ""
}
