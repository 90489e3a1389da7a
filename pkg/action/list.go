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

// List is the action for listing campaigns.
//
// It provides the implementation of 'coxctl list' and GET /queue/list.
type List struct {
	cfg *Configuration

	// ByStatus restricts the listing to one lifecycle phase. Filtered
	// listings come back oldest first, full listings newest first.
	ByStatus campaign.Status
}

// NewList creates a new List object with the given configuration.
func NewList(cfg *Configuration) *List {
	return &List{cfg: cfg}
}

// Run performs the list operation.
func (l *List) Run() ([]*campaign.Campaign, error) {
	if l.ByStatus != "" {
		return l.cfg.Store.ListByStatus(l.ByStatus)
	}
	return l.cfg.Store.ListAll()
}

// Get is the action for fetching one campaign by id.
type Get struct {
	cfg *Configuration
}

// NewGet creates a new Get object with the given configuration.
func NewGet(cfg *Configuration) *Get {
	return &Get{cfg: cfg}
}

// Run performs the get operation.
func (g *Get) Run(id string) (*campaign.Campaign, error) {
	return g.cfg.Store.Get(id)
}

// QueueStatus is the action for summarizing the queue.
type QueueStatus struct {
	cfg *Configuration
}

// QueueSummary is the result of a QueueStatus run: campaign counts per
// lifecycle phase plus the identifiers waiting and in flight.
type QueueSummary struct {
	Total      int                     `json:"total"`
	Counts     map[campaign.Status]int `json:"counts"`
	Pending    []string                `json:"pending,omitempty"`
	Processing []string                `json:"processing,omitempty"`
}

// NewQueueStatus creates a new QueueStatus object with the given
// configuration.
func NewQueueStatus(cfg *Configuration) *QueueStatus {
	return &QueueStatus{cfg: cfg}
}

// Run performs the status operation. Pending identifiers come back in
// pick order, so the first entry is what the next tick will claim.
func (q *QueueStatus) Run() (*QueueSummary, error) {
	all, err := q.cfg.Store.ListAll()
	if err != nil {
		return nil, err
	}
	summary := &QueueSummary{
		Total: len(all),
		Counts: map[campaign.Status]int{
			campaign.StatusPending:    0,
			campaign.StatusProcessing: 0,
			campaign.StatusCompleted:  0,
			campaign.StatusFailed:     0,
			campaign.StatusCancelled:  0,
		},
	}
	for _, c := range all {
		summary.Counts[c.Status]++
	}

	pending, err := q.cfg.Store.Pending()
	if err != nil {
		return nil, err
	}
	for _, c := range pending {
		summary.Pending = append(summary.Pending, c.ID)
	}

	processing, err := q.cfg.Store.Processing()
	if err != nil {
		return nil, err
	}
	for _, c := range processing {
		summary.Processing = append(summary.Processing, c.ID)
	}
	return summary, nil
}
