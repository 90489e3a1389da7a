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

package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/campaign"
)

// PriorityRequest is the body of POST queue/{id}/priority.
type PriorityRequest struct {
	Priority campaign.Priority `json:"priority"`
}

// Submit queues a new campaign and returns the stored document with its
// assigned id.
func (c *Client) Submit(ctx context.Context, cmp *campaign.Campaign) (*campaign.Campaign, error) {
	stored := &campaign.Campaign{}
	if err := c.call(ctx, http.MethodPost, "queue/deployment", nil, cmp, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// List returns every campaign the controller knows about.
func (c *Client) List(ctx context.Context) ([]*campaign.Campaign, error) {
	var campaigns []*campaign.Campaign
	if err := c.call(ctx, http.MethodGet, "queue/list", nil, nil, &campaigns); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// Get fetches one campaign by id.
func (c *Client) Get(ctx context.Context, id string) (*campaign.Campaign, error) {
	cmp := &campaign.Campaign{}
	if err := c.call(ctx, http.MethodGet, fmt.Sprintf("queue/%s", id), nil, nil, cmp); err != nil {
		return nil, err
	}
	return cmp, nil
}

// QueueStatus returns the queue counters grouped by campaign status.
func (c *Client) QueueStatus(ctx context.Context) (*action.QueueSummary, error) {
	summary := &action.QueueSummary{}
	if err := c.call(ctx, http.MethodGet, "queue/status", nil, nil, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// Cancel asks the controller to cancel a campaign. A pending campaign is
// cancelled on the spot; a processing one has its cancel flag raised and
// stops at the next step boundary.
func (c *Client) Cancel(ctx context.Context, id string) (*campaign.Campaign, error) {
	cmp := &campaign.Campaign{}
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("queue/%s/cancel", id), nil, nil, cmp); err != nil {
		return nil, err
	}
	return cmp, nil
}

// Delete removes a campaign record. The controller refuses to delete a
// processing campaign unless force is set.
func (c *Client) Delete(ctx context.Context, id string, force bool) error {
	var query url.Values
	if force {
		query = url.Values{"force": []string{"true"}}
	}
	return c.call(ctx, http.MethodDelete, fmt.Sprintf("queue/%s", id), query, nil, nil)
}

// SetPriority reranks a pending campaign and returns the updated document.
func (c *Client) SetPriority(ctx context.Context, id string, priority campaign.Priority) (*campaign.Campaign, error) {
	cmp := &campaign.Campaign{}
	in := PriorityRequest{Priority: priority}
	if err := c.call(ctx, http.MethodPost, fmt.Sprintf("queue/%s/priority", id), nil, in, cmp); err != nil {
		return nil, err
	}
	return cmp, nil
}

// PatchStatus applies an RFC 7386 merge patch to a campaign's mutable
// fields and returns the updated document.
func (c *Client) PatchStatus(ctx context.Context, id string, patch []byte) (*campaign.Campaign, error) {
	cmp := &campaign.Campaign{}
	path := fmt.Sprintf("queue/%s/status", id)
	if err := c.do(ctx, http.MethodPatch, path, nil, "application/merge-patch+json", bytes.NewReader(patch), cmp); err != nil {
		return nil, err
	}
	return cmp, nil
}
