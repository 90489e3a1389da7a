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
	"github.com/coxswain-io/coxswain/pkg/campaign"
)

// CancelledByUser is the terminal message recorded on campaigns that
// were cancelled externally.
const CancelledByUser = "cancelled by user"

// Cancel is the action for requesting cancellation of a campaign.
//
// Cancelling a pending campaign is immediate. Cancelling a processing
// campaign sets the cooperative flag the executor observes at its next
// await point; the campaign reaches cancelled within two monitor polls.
// Cancelling a terminal campaign is a no-op.
type Cancel struct {
	cfg *Configuration
}

// NewCancel creates a new Cancel object with the given configuration.
func NewCancel(cfg *Configuration) *Cancel {
	return &Cancel{cfg: cfg}
}

// Run performs the cancel operation and returns the campaign as stored
// afterwards.
func (cl *Cancel) Run(id string) (*campaign.Campaign, error) {
	c, err := cl.cfg.Store.Get(id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case campaign.StatusPending:
		// Nothing has been created yet, so there is nothing to clean up.
		c.CancelRequested = true
		now := cl.cfg.Now()
		c.CompletedAt = &now
		c.SetStatus(campaign.StatusCancelled, CancelledByUser)
		if err := cl.cfg.Store.Update(c); err != nil {
			return nil, err
		}
		cl.cfg.logf("campaign %s cancelled while pending", id)
	case campaign.StatusProcessing:
		if !c.CancelRequested {
			c.CancelRequested = true
			if err := cl.cfg.Store.Update(c); err != nil {
				return nil, err
			}
		}
		cl.cfg.logf("campaign %s cancellation requested", id)
	default:
		cl.cfg.logf("campaign %s is already %s, cancel ignored", id, c.Status)
	}
	return c, nil
}
