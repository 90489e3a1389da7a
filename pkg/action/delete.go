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

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

// Delete is the action for removing a campaign record from the queue.
//
// A processing campaign is refused unless Force is set; a forced delete
// tears down the campaign's cluster resources before the record goes.
type Delete struct {
	cfg *Configuration

	// Force removes the record regardless of lifecycle phase.
	Force bool

	// Namespace and Patterns are handed to cleanup on a forced delete.
	Namespace string
	Patterns  []string
}

// NewDelete creates a new Delete object with the given configuration.
func NewDelete(cfg *Configuration) *Delete {
	return &Delete{cfg: cfg}
}

// Run performs the delete operation and returns the removed campaign.
func (d *Delete) Run(ctx context.Context, id string) (*campaign.Campaign, error) {
	if d.Force {
		c, err := d.cfg.Store.Get(id)
		if err != nil {
			return nil, err
		}
		if c.Status == campaign.StatusProcessing {
			cleanup := NewCleanup(d.cfg)
			cleanup.Namespace = d.Namespace
			cleanup.Patterns = d.Patterns
			if err := cleanup.Run(ctx, c, "force-deleted"); err != nil {
				d.cfg.logf("cleanup before forced delete of %s: %s", id, err)
			}
		}
	}
	return d.cfg.Store.Delete(id, d.Force)
}
