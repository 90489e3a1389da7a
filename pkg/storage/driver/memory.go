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

package driver

import (
	"sync"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
)

var _ Driver = (*Memory)(nil)

// MemoryDriverName is the string name of this driver.
const MemoryDriverName = "Memory"

// record holds a campaign together with its queryable label set.
type record struct {
	lbs labels
	c   *campaign.Campaign
}

// Memory is the in-memory storage driver implementation. Every document
// is deep-copied on the way in and out, so callers never share state
// with the cache.
type Memory struct {
	sync.RWMutex
	cache    map[string]*record
	releases map[string]*engine.Release
	reuse    *engine.ReuseRecord
}

// NewMemory initializes a new memory driver.
func NewMemory() *Memory {
	return &Memory{
		cache:    map[string]*record{},
		releases: map[string]*engine.Release{},
	}
}

// Name returns the name of the driver.
func (mem *Memory) Name() string {
	return MemoryDriverName
}

// Get returns the campaign named by key or returns ErrCampaignNotFound.
func (mem *Memory) Get(key string) (*campaign.Campaign, error) {
	defer unlock(mem.rlock())

	if key == "" {
		return nil, ErrInvalidKey
	}
	if rec, ok := mem.cache[key]; ok {
		return copyCampaign(rec.c)
	}
	return nil, ErrCampaignNotFound
}

// List returns the list of all campaigns such that filter(campaign) == true.
func (mem *Memory) List(filter func(*campaign.Campaign) bool) ([]*campaign.Campaign, error) {
	defer unlock(mem.rlock())

	var ls []*campaign.Campaign
	for _, rec := range mem.cache {
		if filter(rec.c) {
			c, err := copyCampaign(rec.c)
			if err != nil {
				return nil, err
			}
			ls = append(ls, c)
		}
	}
	return ls, nil
}

// Query returns the set of campaigns that match the provided set of labels.
func (mem *Memory) Query(keyvals map[string]string) ([]*campaign.Campaign, error) {
	defer unlock(mem.rlock())

	var lbs labels
	lbs.init()
	lbs.fromMap(keyvals)

	var ls []*campaign.Campaign
	for _, rec := range mem.cache {
		if rec.lbs.match(lbs) {
			c, err := copyCampaign(rec.c)
			if err != nil {
				return nil, err
			}
			ls = append(ls, c)
		}
	}

	if len(ls) == 0 {
		return nil, ErrCampaignNotFound
	}
	return ls, nil
}

// Create creates a new campaign or returns ErrCampaignExists.
func (mem *Memory) Create(key string, c *campaign.Campaign) error {
	defer unlock(mem.wlock())

	if key == "" {
		return ErrInvalidKey
	}
	if _, ok := mem.cache[key]; ok {
		return ErrCampaignExists
	}
	stored, err := copyCampaign(c)
	if err != nil {
		return err
	}
	mem.cache[key] = &record{lbs: campaignLabels(stored), c: stored}
	return nil
}

// Update updates a campaign or returns ErrCampaignNotFound.
func (mem *Memory) Update(key string, c *campaign.Campaign) error {
	defer unlock(mem.wlock())

	if key == "" {
		return ErrInvalidKey
	}
	if _, ok := mem.cache[key]; !ok {
		return ErrCampaignNotFound
	}
	stored, err := copyCampaign(c)
	if err != nil {
		return err
	}
	mem.cache[key] = &record{lbs: campaignLabels(stored), c: stored}
	return nil
}

// Delete deletes a campaign or returns ErrCampaignNotFound.
func (mem *Memory) Delete(key string) (*campaign.Campaign, error) {
	defer unlock(mem.wlock())

	if key == "" {
		return nil, ErrInvalidKey
	}
	rec, ok := mem.cache[key]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	delete(mem.cache, key)
	return rec.c, nil
}

// PutRelease upserts an engine release record by name.
func (mem *Memory) PutRelease(rel *engine.Release) error {
	defer unlock(mem.wlock())

	if rel.Name == "" {
		return ErrInvalidKey
	}
	copied, err := copyRelease(rel)
	if err != nil {
		return err
	}
	mem.releases[rel.Name] = copied
	return nil
}

// GetRelease returns the engine release record named by name.
func (mem *Memory) GetRelease(name string) (*engine.Release, error) {
	defer unlock(mem.rlock())

	rel, ok := mem.releases[name]
	if !ok {
		return nil, ErrReleaseNotFound
	}
	return copyRelease(rel)
}

// DeleteRelease removes an engine release record.
func (mem *Memory) DeleteRelease(name string) error {
	defer unlock(mem.wlock())

	if _, ok := mem.releases[name]; !ok {
		return ErrReleaseNotFound
	}
	delete(mem.releases, name)
	return nil
}

// ListReleases returns every engine release record.
func (mem *Memory) ListReleases() ([]*engine.Release, error) {
	defer unlock(mem.rlock())

	ls := make([]*engine.Release, 0, len(mem.releases))
	for _, rel := range mem.releases {
		copied, err := copyRelease(rel)
		if err != nil {
			return nil, err
		}
		ls = append(ls, copied)
	}
	return ls, nil
}

// PutReuse stores the singleton reuse record.
func (mem *Memory) PutReuse(rec *engine.ReuseRecord) error {
	defer unlock(mem.wlock())

	copied := *rec
	mem.reuse = &copied
	return nil
}

// GetReuse returns the singleton reuse record.
func (mem *Memory) GetReuse() (*engine.ReuseRecord, error) {
	defer unlock(mem.rlock())

	if mem.reuse == nil {
		return nil, ErrReuseNotFound
	}
	copied := *mem.reuse
	return &copied, nil
}

// ClearReuse forgets the singleton reuse record.
func (mem *Memory) ClearReuse() error {
	defer unlock(mem.wlock())

	mem.reuse = nil
	return nil
}

// copyCampaign round-trips through the storage codec so callers can never
// mutate the cached copy. The memory driver shares the same serialization
// boundary as the cluster-backed drivers.
func copyCampaign(c *campaign.Campaign) (*campaign.Campaign, error) {
	data, err := encodeCampaign(c)
	if err != nil {
		return nil, err
	}
	return decodeCampaign(data)
}

func copyRelease(rel *engine.Release) (*engine.Release, error) {
	data, err := encodeEngineRelease(rel)
	if err != nil {
		return nil, err
	}
	return decodeEngineRelease(data)
}

// wlock locks mem for writing
func (mem *Memory) wlock() func() {
	mem.Lock()
	return func() { mem.Unlock() }
}

// rlock locks mem for reading
func (mem *Memory) rlock() func() {
	mem.RLock()
	return func() { mem.RUnlock() }
}

// unlock calls fn which reverses a mem.rlock or mem.wlock. e.g:
// ```defer unlock(mem.rlock())```, locks mem for reading at the
// call point of defer and unlocks upon exiting the block.
func unlock(fn func()) { fn() }
