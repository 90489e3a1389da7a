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
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

// Submit is the action for accepting a campaign into the queue.
//
// The caller provides only the submission shape; everything the queue
// assigns, the identifier, the pending status, the creation timestamp,
// and the step accounting, is owned and overwritten here.
type Submit struct {
	cfg *Configuration

	// GenerateID mints campaign identifiers. Defaults to random UUIDs.
	GenerateID func() string
}

// NewSubmit creates a new Submit object with the given configuration.
func NewSubmit(cfg *Configuration) *Submit {
	return &Submit{
		cfg:        cfg,
		GenerateID: func() string { return uuid.New().String() },
	}
}

// Run validates the submission and stores it as a pending campaign.
func (s *Submit) Run(c *campaign.Campaign) (*campaign.Campaign, error) {
	c.ID = s.GenerateID()
	c.Status = campaign.StatusPending
	c.CreatedAt = s.cfg.Now()
	c.StartedAt = nil
	c.CompletedAt = nil
	c.CurrentStep = ""
	c.CompletedSteps = 0
	c.ReleaseID = ""
	c.Jobs = nil
	c.Error = ""
	c.CancelRequested = false
	c.CleanupAttempted = false
	c.CleanupSucceeded = false
	if c.Priority == "" {
		c.Priority = campaign.DefaultPriority
	}
	c.TotalSteps = c.StepCount()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	// A values document that cannot describe an engine is rejected here,
	// not when the executor picks the campaign up.
	if !c.SkipEngine && c.ValuesText != "" {
		values, err := engine.ParseValues(c.ValuesText)
		if err != nil {
			return nil, errors.Wrapf(err, "campaign %s", c.ID)
		}
		if err := engine.ValidateValues(values); err != nil {
			return nil, errors.Wrapf(err, "campaign %s", c.ID)
		}
	}

	if err := s.cfg.Store.Insert(c); err != nil {
		return nil, err
	}
	s.cfg.logf("accepted campaign %s (priority %s, %d steps)", c.ID, c.Priority, c.TotalSteps)
	return c, nil
}
