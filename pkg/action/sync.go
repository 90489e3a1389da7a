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
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

// DefaultStaleAfter is how long a release record may claim a live status
// with no workload behind it before a sync marks it stopped. It sits
// above the engine install timeout so a release mid-install is never
// demoted.
const DefaultStaleAfter = 15 * time.Minute

// SyncReleases reconciles the stored engine release records with the
// workloads actually present in the cluster. Releases installed by hand
// or inherited from a previous controller are adopted, records whose
// workload readiness changed are refreshed, and records claiming a live
// status with nothing behind them are marked stopped.
type SyncReleases struct {
	cfg *Configuration

	// Namespace scopes the workload listing. Empty means all namespaces.
	Namespace string
	// StaleAfter guards demotion of live-status records without a
	// workload. Zero means DefaultStaleAfter.
	StaleAfter time.Duration
}

// NewSyncReleases creates a new SyncReleases object with the given
// configuration.
func NewSyncReleases(cfg *Configuration) *SyncReleases {
	return &SyncReleases{cfg: cfg, StaleAfter: DefaultStaleAfter}
}

// Run performs one reconciliation pass and returns the records it wrote.
// Record-level trouble is collected and reported at the end; only a
// failed workload listing aborts the pass.
func (s *SyncReleases) Run(ctx context.Context) ([]*engine.Release, error) {
	workloads, err := s.cfg.KubeClient.ReleasesByLabel(ctx, kube.ManagedLabelSelector, s.Namespace)
	if err != nil {
		return nil, errors.Wrap(err, "listing engine workloads")
	}

	now := s.cfg.Now()
	live := map[string]bool{}
	var touched []*engine.Release
	var errs *multierror.Error
	var adopted, refreshed int

	for _, w := range workloads {
		name := w.Labels[kube.InstanceLabel]
		if name == "" {
			name = w.Name
		}
		if !strings.HasPrefix(name, engine.ReleaseNamePrefix) || live[name] {
			continue
		}
		live[name] = true

		observed := engine.ReleaseStatusDeploying
		if w.ReadyReplicas > 0 {
			observed = engine.ReleaseStatusRunning
		}

		rec, err := s.cfg.Store.GetRelease(name)
		switch {
		case errors.Is(err, driver.ErrReleaseNotFound):
			rec = &engine.Release{
				Name:      name,
				Namespace: w.Namespace,
				Status:    observed,
				CreatedAt: now,
				UpdatedAt: now,
			}
			s.cfg.logf("adopting engine release %s found in the cluster", name)
			adopted++
		case err != nil:
			errs = multierror.Append(errs, errors.Wrapf(err, "reading release record %s", name))
			continue
		case rec.Status == observed:
			continue
		default:
			s.cfg.logf("engine release %s is %s, was recorded %s", name, observed, rec.Status)
			rec.Status = observed
			rec.UpdatedAt = now
			refreshed++
		}
		if err := s.cfg.Store.PutRelease(rec); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "storing release record %s", name))
			continue
		}
		touched = append(touched, rec)
	}

	swept, sweepErrs := s.sweepOrphans(live, now)
	touched = append(touched, swept...)
	errs = multierror.Append(errs, sweepErrs...)

	s.cfg.logf("release sync: %d live, %d adopted, %d refreshed, %d stopped",
		len(live), adopted, refreshed, len(swept))
	return touched, errs.ErrorOrNil()
}

// sweepOrphans marks deploying or running records without a live
// workload as stopped, once they are old enough that no executor can
// still be installing them.
func (s *SyncReleases) sweepOrphans(live map[string]bool, now time.Time) ([]*engine.Release, []error) {
	records, err := s.cfg.Store.ListReleases()
	if err != nil {
		return nil, []error{errors.Wrap(err, "listing release records")}
	}

	grace := s.StaleAfter
	if grace <= 0 {
		grace = DefaultStaleAfter
	}

	var errs []error
	var swept []*engine.Release
	for _, rec := range records {
		if live[rec.Name] {
			continue
		}
		if rec.Status != engine.ReleaseStatusDeploying && rec.Status != engine.ReleaseStatusRunning {
			continue
		}
		// A scoped listing says nothing about other namespaces.
		if s.Namespace != "" && rec.Namespace != s.Namespace {
			continue
		}
		last := rec.UpdatedAt
		if last.IsZero() {
			last = rec.CreatedAt
		}
		if now.Sub(last) < grace {
			continue
		}
		s.cfg.logf("engine release %s has no workload behind it, marking stopped", rec.Name)
		rec.Status = engine.ReleaseStatusStopped
		rec.UpdatedAt = now
		if err := s.cfg.Store.PutRelease(rec); err != nil {
			errs = append(errs, errors.Wrapf(err, "storing release record %s", rec.Name))
			continue
		}
		swept = append(swept, rec)
	}
	return swept, errs
}
