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

	"github.com/gobwas/glob"
	multierror "github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/kube"
)

// DefaultCleanupPatterns are the job name globs the stray sweep matches
// when none are configured.
var DefaultCleanupPatterns = []string{"benchmark*"}

// campaignIDPrefixLen is how much of the campaign identifier benchmark
// job names are expected to embed.
const campaignIDPrefixLen = 8

// Cleanup is the action that tears down everything a campaign created
// on the cluster: its recorded benchmark jobs, stray jobs the records
// missed, and finally the engine release when no other campaign still
// needs it.
type Cleanup struct {
	cfg *Configuration

	// Namespace is the fallback when a record carries no namespace.
	Namespace string

	// Patterns are the job name globs of the stray sweep.
	Patterns []string
}

// NewCleanup creates a new Cleanup object with the given configuration.
func NewCleanup(cfg *Configuration) *Cleanup {
	return &Cleanup{cfg: cfg}
}

// Run tears the campaign's resources down, jobs first, engine last. It
// is best effort: failures are collected rather than fatal, the outcome
// lands in the campaign's cleanup fields, and a second call is a no-op.
func (cl *Cleanup) Run(ctx context.Context, c *campaign.Campaign, reason string) error {
	if c.CleanupAttempted {
		cl.cfg.logf("cleanup of campaign %s already attempted, skipping", c.ID)
		return nil
	}
	cl.cfg.logf("cleaning up campaign %s: %s", c.ID, reason)

	var errs *multierror.Error

	jobs := cl.cfg.JobClient()
	for _, rec := range c.Jobs {
		if _, err := jobs.DeleteJob(ctx, rec.Name, cl.namespaceOr(rec.Namespace)); err != nil {
			errs = multierror.Append(errs, errors.Wrapf(err, "deleting job %s", rec.Name))
		}
	}

	errs = multierror.Append(errs, cl.sweepStrays(ctx, c)...)

	if c.OwnsRelease() {
		if holder := cl.sharedWith(c); holder != "" {
			cl.cfg.logf("engine release %s still backs campaign %s, leaving it", c.ReleaseID, holder)
		} else if err := cl.teardownEngine(ctx, c.ReleaseID); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	c.CleanupAttempted = true
	c.CleanupSucceeded = errs.ErrorOrNil() == nil
	if err := cl.cfg.Store.Update(c); err != nil {
		errs = multierror.Append(errs, errors.Wrap(err, "recording cleanup outcome"))
	}
	return errs.ErrorOrNil()
}

// sweepStrays hunts for jobs that were created but lost to a crash
// before their record could be persisted. Candidates come from the
// campaign's own manifests; a candidate is deleted when its name embeds
// the campaign id prefix, matches a configured glob, or its manifest
// mentions the campaign id, and the cluster does not already report it
// gone or finished.
func (cl *Cleanup) sweepStrays(ctx context.Context, c *campaign.Campaign) []error {
	var errs []error
	globs := cl.compilePatterns()
	jobs := cl.cfg.JobClient()

	for _, b := range c.Benchmarks {
		name := manifestJobName(b.Manifest)
		if name == "" {
			name = b.Name
		}
		if name == "" || trackedJob(c, name) {
			continue
		}
		if !matchesCampaign(c.ID, name, b.Manifest, globs) {
			continue
		}
		namespace := cl.namespaceOr(b.Namespace)
		if st, err := jobs.JobStatus(ctx, name, namespace); err == nil {
			if st.Phase == kube.JobNotFound || st.Phase == kube.JobSucceeded {
				continue
			}
		}
		cl.cfg.logf("deleting stray job %s of campaign %s", name, c.ID)
		if _, err := jobs.DeleteJob(ctx, name, namespace); err != nil {
			errs = append(errs, errors.Wrapf(err, "deleting stray job %s", name))
		}
	}
	return errs
}

// teardownEngine removes the campaign's engine release. When the
// uninstall fails, the leftovers are swept away by name and label as a
// last resort.
func (cl *Cleanup) teardownEngine(ctx context.Context, name string) error {
	namespace := cl.Namespace
	rec, recErr := cl.cfg.Store.GetRelease(name)
	if recErr == nil && rec.Namespace != "" {
		namespace = rec.Namespace
	}

	_, err := cl.cfg.KubeClient.UninstallRelease(ctx, name, namespace)
	if err != nil {
		cl.cfg.logf("uninstall of release %s failed, sweeping by name: %s", name, err)
		if sweepErr := cl.cfg.KubeClient.DeleteReleaseResources(ctx, name, namespace); sweepErr != nil {
			return errors.Wrapf(err, "uninstalling release %s", name)
		}
	}

	if recErr == nil {
		rec.Status = engine.ReleaseStatusCleanedUp
		rec.UpdatedAt = cl.cfg.Now()
		if err := cl.cfg.Store.PutRelease(rec); err != nil {
			cl.cfg.logf("updating release record %s: %s", name, err)
		}
	}
	if reuse, err := cl.cfg.Store.GetReuse(); err == nil && reuse.ReleaseName == name {
		if err := cl.cfg.Store.ClearReuse(); err != nil {
			cl.cfg.logf("clearing reuse record: %s", err)
		}
	}
	return nil
}

// sharedWith reports the id of another live campaign attached to the
// same engine release, or "" when the release is exclusively ours. A
// store that cannot answer counts as shared, leaking a release beats
// breaking a campaign that still runs against it.
func (cl *Cleanup) sharedWith(c *campaign.Campaign) string {
	for _, status := range []campaign.Status{campaign.StatusPending, campaign.StatusProcessing} {
		others, err := cl.cfg.Store.ListByStatus(status)
		if err != nil {
			cl.cfg.logf("cannot check %s campaigns for shared engine: %s", status, err)
			return "unknown"
		}
		for _, other := range others {
			if other.ID != c.ID && other.ReleaseID == c.ReleaseID {
				return other.ID
			}
		}
	}
	return ""
}

func (cl *Cleanup) compilePatterns() []glob.Glob {
	patterns := cl.Patterns
	if len(patterns) == 0 {
		patterns = DefaultCleanupPatterns
	}
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			cl.cfg.logf("skipping unusable cleanup pattern %q: %s", p, err)
			continue
		}
		globs = append(globs, g)
	}
	return globs
}

func (cl *Cleanup) namespaceOr(namespace string) string {
	if namespace != "" {
		return namespace
	}
	return cl.Namespace
}

func matchesCampaign(id, name, manifestText string, globs []glob.Glob) bool {
	prefix := id
	if len(prefix) > campaignIDPrefixLen {
		prefix = prefix[:campaignIDPrefixLen]
	}
	if prefix != "" && strings.Contains(name, prefix) {
		return true
	}
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return id != "" && strings.Contains(manifestText, id)
}

func trackedJob(c *campaign.Campaign, name string) bool {
	for _, rec := range c.Jobs {
		if rec.Name == name || rec.OriginalName == name {
			return true
		}
	}
	return false
}
