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
	"encoding/json"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/storage"
)

// PatchStatus is the action for applying a partial update to a stored
// campaign, as merge patches arrive from peer processes.
type PatchStatus struct {
	cfg *Configuration
}

// NewPatchStatus creates a new PatchStatus object with the given
// configuration.
func NewPatchStatus(cfg *Configuration) *PatchStatus {
	return &PatchStatus{cfg: cfg}
}

// Run applies an RFC 7386 merge patch to the campaign. The identifier
// is immutable and the lifecycle order is enforced: a patch that would
// move the phase backwards is rejected without mutating the stored
// document.
func (p *PatchStatus) Run(id string, patch []byte) (*campaign.Campaign, error) {
	c, err := p.cfg.Store.Get(id)
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot encode campaign %s", id)
	}
	merged, err := jsonpatch.MergePatch(doc, patch)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot apply status patch to campaign %s", id)
	}
	patched := new(campaign.Campaign)
	if err := json.Unmarshal(merged, patched); err != nil {
		return nil, errors.Wrapf(err, "patched campaign %s does not decode", id)
	}
	patched.ID = c.ID
	if !c.Status.CanTransition(patched.Status) {
		return nil, errors.Wrapf(storage.ErrIllegalTransition, "campaign %s: %s -> %s", id, c.Status, patched.Status)
	}
	if err := p.cfg.Store.Update(patched); err != nil {
		return nil, err
	}
	p.cfg.logf("campaign %s patched (status %s)", id, patched.Status)
	return patched, nil
}
