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
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

// SetPriority is the action for changing the scheduling class of a
// campaign that has not been claimed yet.
type SetPriority struct {
	cfg *Configuration
}

// NewSetPriority creates a new SetPriority object with the given
// configuration.
func NewSetPriority(cfg *Configuration) *SetPriority {
	return &SetPriority{cfg: cfg}
}

// Run performs the priority change.
func (p *SetPriority) Run(id string, priority campaign.Priority) (*campaign.Campaign, error) {
	if !priority.IsValid() {
		return nil, errors.Errorf("invalid priority %q", priority)
	}
	c, err := p.cfg.Store.Get(id)
	if err != nil {
		return nil, err
	}
	if c.Status != campaign.StatusPending {
		return nil, errors.Wrapf(ErrNotPending, "campaign %s is %s", id, c.Status)
	}
	if c.Priority == priority {
		return c, nil
	}
	c.Priority = priority
	if err := p.cfg.Store.Update(c); err != nil {
		return nil, err
	}
	p.cfg.logf("campaign %s priority set to %s", id, priority)
	return c, nil
}
