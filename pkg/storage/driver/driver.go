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

package driver // import "github.com/coxswain-io/coxswain/pkg/storage/driver"

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

var (
	// ErrCampaignNotFound indicates that a campaign is not found.
	ErrCampaignNotFound = errors.New("campaign: not found")
	// ErrCampaignExists indicates that a campaign already exists.
	ErrCampaignExists = errors.New("campaign: already exists")
	// ErrInvalidKey indicates that a campaign key could not be parsed.
	ErrInvalidKey = errors.New("campaign: invalid key")
	// ErrNoPendingCampaigns indicates that the queue holds nothing to run.
	ErrNoPendingCampaigns = errors.New("no pending campaigns")
	// ErrReleaseNotFound indicates that an engine release record is not found.
	ErrReleaseNotFound = errors.New("engine release: not found")
	// ErrReuseNotFound indicates that no reuse record is stored.
	ErrReuseNotFound = errors.New("reuse record: not found")
)

// StorageDriverError records an error and the campaign id that caused it.
type StorageDriverError struct {
	CampaignID string
	Err        error
}

func (e *StorageDriverError) Error() string {
	return fmt.Sprintf("%q %s", e.CampaignID, e.Err.Error())
}

func (e *StorageDriverError) Unwrap() error { return e.Err }

// NewErrNoPendingCampaigns attaches a queue identifier to
// ErrNoPendingCampaigns.
func NewErrNoPendingCampaigns(id string) error {
	return &StorageDriverError{CampaignID: id, Err: ErrNoPendingCampaigns}
}

// Creator is the interface that wraps the Create method.
//
// Create stores the campaign or returns ErrCampaignExists
// if a campaign with the same key already exists.
type Creator interface {
	Create(key string, c *campaign.Campaign) error
}

// Updator is the interface that wraps the Update method.
//
// Update updates an existing campaign or returns
// ErrCampaignNotFound if the campaign does not exist.
type Updator interface {
	Update(key string, c *campaign.Campaign) error
}

// Deletor is the interface that wraps the Delete method.
//
// Delete deletes the campaign named by key or returns
// ErrCampaignNotFound if the campaign does not exist.
type Deletor interface {
	Delete(key string) (*campaign.Campaign, error)
}

// Queryor is the interface that wraps the Get, List, and Query methods.
//
// Get returns the campaign named by key or returns ErrCampaignNotFound
// if the campaign does not exist.
//
// List returns the set of all campaigns that satisfy the filter predicate.
//
// Query returns the set of all campaigns that match the provided label
// set, or ErrCampaignNotFound when nothing matches.
type Queryor interface {
	Get(key string) (*campaign.Campaign, error)
	List(filter func(*campaign.Campaign) bool) ([]*campaign.Campaign, error)
	Query(labels map[string]string) ([]*campaign.Campaign, error)
}

// ReleaseArchiver persists engine release records alongside campaigns.
//
// PutRelease upserts by release name. GetRelease and DeleteRelease
// return ErrReleaseNotFound when the record does not exist.
type ReleaseArchiver interface {
	PutRelease(rel *engine.Release) error
	GetRelease(name string) (*engine.Release, error)
	DeleteRelease(name string) error
	ListReleases() ([]*engine.Release, error)
}

// ReuseKeeper persists the singleton reuse record.
//
// GetReuse returns ErrReuseNotFound when no record is stored.
// ClearReuse on an absent record is not an error.
type ReuseKeeper interface {
	PutReuse(rec *engine.ReuseRecord) error
	GetReuse() (*engine.ReuseRecord, error)
	ClearReuse() error
}

// Driver is the interface composed of Creator, Updator, Deletor, and
// Queryor interfaces, plus the engine release and reuse record side
// stores. It defines the behavior for storing, updating, deleting, and
// retrieving campaign queue state from some underlying storage
// mechanism, e.g. memory, configmaps, sql.
type Driver interface {
	Creator
	Updator
	Deletor
	Queryor
	ReleaseArchiver
	ReuseKeeper
	Name() string
}
