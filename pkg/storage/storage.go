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

package storage // import "github.com/coxswain-io/coxswain/pkg/storage"

import (
	"sort"
	"time"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

// CampaignKeyPrefix namespaces every campaign key this facade writes so
// campaign records never collide with the engine release and reuse
// records living in the same backend.
const CampaignKeyPrefix = "cox.campaign.v1."

var (
	// ErrStoreUnavailable is returned once the retry budget for a
	// transient backend failure is spent. Callers back off and retry at
	// their own pace; campaigns are never failed on it.
	ErrStoreUnavailable = errors.New("storage: backend unavailable")

	// ErrIllegalTransition is returned by Update when the write would
	// move a campaign against the lifecycle order, e.g. out of a
	// terminal phase.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrCampaignInFlight is returned by Delete when the campaign is
	// being executed and force was not supplied.
	ErrCampaignInFlight = errors.New("campaign is processing")
)

// retryBackoff bounds how long a facade call shields its caller from a
// flapping backend: four attempts, well under two seconds in total.
var retryBackoff = wait.Backoff{
	Duration: 100 * time.Millisecond,
	Factor:   2.0,
	Jitter:   0.1,
	Steps:    4,
}

// Storage is the campaign queue facade over a storage driver. It applies
// the campaign key scheme, enforces the lifecycle order on writes, and
// absorbs transient backend failures with a bounded retry.
type Storage struct {
	driver.Driver

	Log func(string, ...interface{})
}

// Init initializes a new storage backend with the driver d.
// If d is nil, the default in-memory driver is used.
func Init(d driver.Driver) *Storage {
	// default driver is in memory
	if d == nil {
		d = driver.NewMemory()
	}
	return &Storage{
		Driver: d,
		Log:    func(_ string, _ ...interface{}) {},
	}
}

// Insert stores the campaign. Inserting an id that already exists
// rewrites the stored document, so a retried submission lands exactly
// once.
func (s *Storage) Insert(c *campaign.Campaign) error {
	if c.ID == "" {
		return driver.ErrInvalidKey
	}
	s.Log("storing campaign %q (status %q)", c.ID, c.Status)
	return s.retry("insert", func() error {
		err := s.Driver.Create(makeKey(c.ID), c)
		if errors.Is(err, driver.ErrCampaignExists) {
			return s.Driver.Update(makeKey(c.ID), c)
		}
		return err
	})
}

// Update rewrites the stored campaign document. The lifecycle order is
// enforced here so that no writer can move a campaign backwards out of
// a terminal phase; such writes fail with ErrIllegalTransition and
// leave the stored document untouched.
func (s *Storage) Update(c *campaign.Campaign) error {
	if c.ID == "" {
		return driver.ErrInvalidKey
	}
	s.Log("updating campaign %q (status %q)", c.ID, c.Status)
	return s.retry("update", func() error {
		prev, err := s.Driver.Get(makeKey(c.ID))
		if err != nil {
			return err
		}
		if !prev.Status.CanTransition(c.Status) {
			return errors.Wrapf(ErrIllegalTransition, "campaign %q: %s -> %s", c.ID, prev.Status, c.Status)
		}
		return s.Driver.Update(makeKey(c.ID), c)
	})
}

// Get retrieves the campaign identified by id, or
// driver.ErrCampaignNotFound.
func (s *Storage) Get(id string) (*campaign.Campaign, error) {
	var c *campaign.Campaign
	err := s.retry("get", func() (rerr error) {
		c, rerr = s.Driver.Get(makeKey(id))
		return rerr
	})
	return c, err
}

// Delete removes the campaign identified by id and returns the deleted
// document. A processing campaign is refused unless force is set; the
// Delete action tears the campaign's cluster resources down before it
// forces the removal.
func (s *Storage) Delete(id string, force bool) (*campaign.Campaign, error) {
	s.Log("deleting campaign %q (force %t)", id, force)
	var c *campaign.Campaign
	err := s.retry("delete", func() error {
		prev, err := s.Driver.Get(makeKey(id))
		if err != nil {
			return err
		}
		if prev.Status == campaign.StatusProcessing && !force {
			return errors.Wrapf(ErrCampaignInFlight, "campaign %q", id)
		}
		c, err = s.Driver.Delete(makeKey(id))
		return err
	})
	return c, err
}

// ListAll returns every stored campaign, newest first.
func (s *Storage) ListAll() ([]*campaign.Campaign, error) {
	var ls []*campaign.Campaign
	err := s.retry("list", func() (rerr error) {
		ls, rerr = s.Driver.List(func(_ *campaign.Campaign) bool { return true })
		return rerr
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ls, func(i, j int) bool {
		return ls[j].CreatedAt.Before(ls[i].CreatedAt)
	})
	return ls, nil
}

// ListByStatus returns the campaigns in the given lifecycle phase,
// oldest first.
func (s *Storage) ListByStatus(status campaign.Status) ([]*campaign.Campaign, error) {
	var ls []*campaign.Campaign
	err := s.retry("list", func() (rerr error) {
		ls, rerr = s.Driver.List(func(c *campaign.Campaign) bool { return c.Status == status })
		return rerr
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ls, func(i, j int) bool {
		return ls[i].CreatedAt.Before(ls[j].CreatedAt)
	})
	return ls, nil
}

// Pending returns the pending campaigns in pick order: highest priority
// class first, oldest first within one class.
func (s *Storage) Pending() ([]*campaign.Campaign, error) {
	ls, err := s.ListByStatus(campaign.StatusPending)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(ls, func(i, j int) bool {
		ri, rj := ls[i].Priority.Rank(), ls[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return ls[i].CreatedAt.Before(ls[j].CreatedAt)
	})
	return ls, nil
}

// NextPending returns the campaign the executor should claim next, or
// driver.ErrNoPendingCampaigns when the queue is drained.
func (s *Storage) NextPending() (*campaign.Campaign, error) {
	ls, err := s.Pending()
	if err != nil {
		return nil, err
	}
	if len(ls) == 0 {
		return nil, driver.ErrNoPendingCampaigns
	}
	return ls[0], nil
}

// Processing returns the campaigns currently claimed by an executor.
// The single-flight invariant means at most one per healthy process.
func (s *Storage) Processing() ([]*campaign.Campaign, error) {
	return s.ListByStatus(campaign.StatusProcessing)
}

// PutRelease upserts an engine release record by name.
func (s *Storage) PutRelease(rel *engine.Release) error {
	s.Log("storing engine release %q (status %q)", rel.Name, rel.Status)
	return s.retry("put release", func() error {
		return s.Driver.PutRelease(rel)
	})
}

// GetRelease retrieves the engine release record named by name, or
// driver.ErrReleaseNotFound.
func (s *Storage) GetRelease(name string) (*engine.Release, error) {
	var rel *engine.Release
	err := s.retry("get release", func() (rerr error) {
		rel, rerr = s.Driver.GetRelease(name)
		return rerr
	})
	return rel, err
}

// DeleteRelease removes the engine release record named by name.
func (s *Storage) DeleteRelease(name string) error {
	s.Log("deleting engine release record %q", name)
	return s.retry("delete release", func() error {
		return s.Driver.DeleteRelease(name)
	})
}

// ListReleases returns every engine release record, sorted by name.
func (s *Storage) ListReleases() ([]*engine.Release, error) {
	var ls []*engine.Release
	err := s.retry("list releases", func() (rerr error) {
		ls, rerr = s.Driver.ListReleases()
		return rerr
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Name < ls[j].Name })
	return ls, nil
}

// PutReuse stores the singleton reuse record.
func (s *Storage) PutReuse(rec *engine.ReuseRecord) error {
	s.Log("storing reuse record for release %q", rec.ReleaseName)
	return s.retry("put reuse", func() error {
		return s.Driver.PutReuse(rec)
	})
}

// GetReuse retrieves the singleton reuse record, or
// driver.ErrReuseNotFound.
func (s *Storage) GetReuse() (*engine.ReuseRecord, error) {
	var rec *engine.ReuseRecord
	err := s.retry("get reuse", func() (rerr error) {
		rec, rerr = s.Driver.GetReuse()
		return rerr
	})
	return rec, err
}

// ClearReuse forgets the singleton reuse record. Clearing an absent
// record is not an error.
func (s *Storage) ClearReuse() error {
	s.Log("clearing reuse record")
	return s.retry("clear reuse", func() error {
		return s.Driver.ClearReuse()
	})
}

// retry runs fn, retrying transient failures with exponential backoff.
// Once the budget is spent the failure surfaces as ErrStoreUnavailable.
// Sentinel errors from the driver are never retried.
func (s *Storage) retry(op string, fn func() error) error {
	var lastErr error
	err := wait.ExponentialBackoff(retryBackoff, func() (bool, error) {
		lastErr = fn()
		switch {
		case lastErr == nil:
			return true, nil
		case transient(lastErr):
			s.Log("storage: transient failure on %s, retrying: %s", op, lastErr)
			return false, nil
		}
		return false, lastErr
	})
	if err == nil {
		return nil
	}
	if lastErr != nil && transient(lastErr) {
		return errors.Wrapf(ErrStoreUnavailable, "%s: %s", op, lastErr)
	}
	return lastErr
}

// transient reports whether err is worth retrying. The driver sentinels
// and the facade's own refusals describe stable states of the world, so
// retrying them cannot help.
func transient(err error) bool {
	for _, sentinel := range []error{
		driver.ErrCampaignNotFound,
		driver.ErrCampaignExists,
		driver.ErrInvalidKey,
		driver.ErrNoPendingCampaigns,
		driver.ErrReleaseNotFound,
		driver.ErrReuseNotFound,
		ErrIllegalTransition,
		ErrCampaignInFlight,
	} {
		if errors.Is(err, sentinel) {
			return false
		}
	}
	return true
}

func makeKey(id string) string { return CampaignKeyPrefix + id }
