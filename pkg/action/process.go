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
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/coxswain-io/coxswain/internal/metrics"
	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/manifest"
	"github.com/coxswain-io/coxswain/pkg/monitor"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

// Step names recorded on the campaign as it moves through execution.
const (
	stepEngineDeploy  = "engine_deploy"
	stepBenchmarkJobs = "benchmark_jobs"
	stepCompleted     = "completed"
)

// invalidConfigMessage is the terminal error recorded when a campaign's
// engine configuration cannot even be parsed. Nothing has touched the
// cluster at that point, so no cleanup runs.
const invalidConfigMessage = "Invalid or empty engine configuration"

// replaceGrace is how long a replace waits after tearing down a
// conflicting release before installing over its name.
const replaceGrace = 5 * time.Second

func stepBenchmark(i int) string { return fmt.Sprintf("benchmark_%d_running", i+1) }

// ErrAlreadyProcessing signals that the queue already has a campaign in
// flight. Only one campaign executes at a time; this is also what keeps
// a restarted controller from spawning a second executor for a
// processing record it did not start.
var ErrAlreadyProcessing = errors.New("a campaign is already processing")

// ProcessNext is the action that picks the next pending campaign off
// the queue and runs it to a terminal phase: engine first, then each
// benchmark job in order.
type ProcessNext struct {
	cfg *Configuration

	// Namespace is the fallback namespace for engines and jobs that do
	// not name their own.
	Namespace string

	// Catalog maps accelerator classes to engine charts.
	Catalog *engine.Catalog

	// Patterns are the stray job globs handed to cleanup.
	Patterns []string

	// Wait cadence overrides. Zero values keep the monitor defaults.
	EnginePollInterval time.Duration
	EngineRetryDelay   time.Duration
	EngineTimeout      time.Duration
	EngineMaxFailures  int
	JobPollInterval    time.Duration
	JobRetryDelay      time.Duration
	JobTimeout         time.Duration
	JobMaxFailures     int

	// Test seams. Real runs leave them nil and use the monitor waiters
	// and the wall clock.
	waitEngineFn func(ctx context.Context, cancelled func() bool, name, namespace string) (*monitor.Result, error)
	waitJobFn    func(ctx context.Context, cancelled func() bool, name, namespace string) (*monitor.Result, error)
	sleepFn      func(ctx context.Context, d time.Duration)
}

// NewProcessNext creates a new ProcessNext object with the given
// configuration.
func NewProcessNext(cfg *Configuration) *ProcessNext {
	return &ProcessNext{cfg: cfg}
}

// Run picks and executes one campaign. It returns ErrAlreadyProcessing
// when a campaign is in flight and driver.ErrNoPendingCampaigns when
// the queue is empty; both are normal scheduler tick outcomes, not
// trouble.
func (p *ProcessNext) Run(ctx context.Context) (*campaign.Campaign, error) {
	busy, err := p.cfg.Store.Processing()
	if err != nil {
		return nil, err
	}
	if len(busy) > 0 {
		return nil, errors.Wrapf(ErrAlreadyProcessing, "campaign %q", busy[0].ID)
	}
	next, err := p.cfg.Store.NextPending()
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, next)
}

// Process executes the given campaign to a terminal phase. The returned
// error is reserved for infrastructure trouble (a store that stops
// answering, a context that ends); engine and benchmark failures are
// campaign outcomes, recorded on the campaign and returned with a nil
// error.
func (p *ProcessNext) Process(ctx context.Context, c *campaign.Campaign) (*campaign.Campaign, error) {
	started := p.cfg.Now()
	c.StartedAt = &started
	step := stepEngineDeploy
	if c.SkipEngine {
		step = stepBenchmarkJobs
	}
	c.SetStatus(campaign.StatusProcessing, step)
	if err := p.persist(c); err != nil {
		return nil, err
	}
	metrics.CampaignsProcessed.Inc()
	p.cfg.logf("processing campaign %s (priority %s, %d steps)", c.ID, c.Priority, c.TotalSteps)

	engineRelease, done, err := p.provideEngine(ctx, c)
	if err != nil || done {
		return c, err
	}
	for i := range c.Benchmarks {
		done, err := p.runBenchmark(ctx, c, i, engineRelease)
		if err != nil || done {
			return c, err
		}
	}
	return c, p.terminal(c, campaign.StatusCompleted, stepCompleted)
}

// provideEngine gets the campaign an engine to run against: an existing
// one when the campaign skips deployment, a reused or adopted release
// when a healthy one already serves the same configuration, or a fresh
// install. The returned bool reports a terminal campaign outcome.
func (p *ProcessNext) provideEngine(ctx context.Context, c *campaign.Campaign) (string, bool, error) {
	if c.SkipEngine {
		c.ReleaseID = campaign.ExistingEngineReleaseID
		if err := p.persist(c); err != nil {
			return "", true, err
		}
		name := p.findRunningEngine(ctx)
		if name == "" {
			p.cfg.logf("campaign %s expects an existing engine but none was found", c.ID)
		}
		return name, false, nil
	}

	valuesText, values, err := p.effectiveValues(c)
	if err != nil {
		p.cfg.logf("campaign %s has no usable engine configuration: %s", c.ID, err)
		return "", true, p.terminal(c, campaign.StatusFailed, invalidConfigMessage)
	}
	fp, err := engine.Fingerprint(values)
	if err != nil {
		p.cfg.logf("cannot fingerprint engine values for campaign %s: %s", c.ID, err)
		return "", true, p.terminal(c, campaign.StatusFailed, invalidConfigMessage)
	}
	model := modelFromValues(values)
	class, count := accelFromValues(values)
	name := engine.ReleaseName(model, fp, class, count)
	namespace := p.engineNamespace(c)

	// Reuse bookkeeping only covers values-document submissions;
	// spec-built campaigns find their release through its deterministic
	// name instead.
	if c.ValuesText != "" {
		hit, err := p.consultReuse(ctx, fp)
		if err != nil {
			return "", true, err
		}
		if hit != "" {
			metrics.EngineReuseHits.Inc()
			p.cfg.logf("reusing engine release %s for campaign %s", hit, c.ID)
			return p.engineReady(c, hit)
		}
	}

	if p.adoptOrReplace(ctx, name, namespace, model) {
		p.cfg.logf("adopting live engine release %s for campaign %s", name, c.ID)
		return p.engineReady(c, name)
	}

	chartPath, err := p.chartFor(class)
	if err != nil {
		// A missing chart is a configuration failure and nothing has
		// been created yet, so no cleanup.
		return "", true, p.terminal(c, campaign.StatusFailed, err.Error())
	}

	// The release id lands on the record before the install so that a
	// crash between the two still leaves cleanup a name to find.
	c.ReleaseID = name
	if err := p.persist(c); err != nil {
		return "", true, err
	}
	p.recordRelease(name, namespace, fp, model, class, count)

	if err := p.install(ctx, name, namespace, chartPath, valuesText); err != nil {
		msg := fmt.Sprintf("engine release %s failed to install: %v", name, err)
		p.markRelease(name, engine.ReleaseStatusFailed, msg)
		p.runCleanup(ctx, c, msg)
		return "", true, p.terminal(c, campaign.StatusFailed, msg)
	}

	res, err := p.waitEngine(ctx, c, name, namespace)
	if err != nil {
		return "", true, err
	}
	if res.State == monitor.StateCancelled {
		return "", true, p.cancelledTerminal(ctx, c)
	}
	if !res.Success() {
		p.markRelease(name, engine.ReleaseStatusFailed, res.Reason)
		p.runCleanup(ctx, c, res.Reason)
		return "", true, p.terminal(c, campaign.StatusFailed, res.Reason)
	}

	p.markRelease(name, engine.ReleaseStatusRunning, "")
	if c.ValuesText != "" {
		p.rememberReuse(fp, c.ValuesText, name, namespace)
	}
	return p.engineReady(c, name)
}

// engineReady stamps the campaign with its release and counts the
// engine step done.
func (p *ProcessNext) engineReady(c *campaign.Campaign, name string) (string, bool, error) {
	c.ReleaseID = name
	c.CompletedSteps++
	if err := p.persist(c); err != nil {
		return "", true, err
	}
	return name, false, nil
}

// runBenchmark submits one benchmark job and waits it out. The returned
// bool reports a terminal campaign outcome; a failed benchmark fails
// the whole campaign.
func (p *ProcessNext) runBenchmark(ctx context.Context, c *campaign.Campaign, i int, engineRelease string) (bool, error) {
	if p.cancelRequested(c.ID) {
		return true, p.cancelledTerminal(ctx, c)
	}
	b := c.Benchmarks[i]
	c.CurrentStep = stepBenchmark(i)
	if err := p.persist(c); err != nil {
		return true, err
	}

	text := manifest.ResolvePlaceholders(b.Manifest, engineRelease)
	namespace := b.Namespace
	if namespace == "" {
		namespace = p.Namespace
	}
	rec, err := p.submitJob(ctx, text, namespace, b.Name)
	if err != nil {
		msg := fmt.Sprintf("benchmark %d failed to submit: %v", i+1, err)
		p.runCleanup(ctx, c, msg)
		return true, p.terminal(c, campaign.StatusFailed, msg)
	}
	p.cfg.logf("submitted benchmark job %s for campaign %s", rec.Name, c.ID)

	// The record goes to the store before the wait so cleanup can find
	// the job if the controller dies mid-wait.
	c.Jobs = append(c.Jobs, *rec)
	if err := p.persist(c); err != nil {
		return true, err
	}

	res, err := p.waitJob(ctx, c, rec.Name, rec.Namespace)
	if err != nil {
		return true, err
	}
	if res.State == monitor.StateCancelled {
		return true, p.cancelledTerminal(ctx, c)
	}
	c.Jobs[len(c.Jobs)-1].State = jobStateFor(res.State)
	if !res.Success() {
		p.runCleanup(ctx, c, res.Reason)
		return true, p.terminal(c, campaign.StatusFailed, res.Reason)
	}
	c.CompletedSteps++
	return false, p.persist(c)
}

// persist writes the executor's working copy back. A cancel flag raised
// on the stored record since the last read is carried over first; the
// executor's progress writes must never un-cancel a campaign.
func (p *ProcessNext) persist(c *campaign.Campaign) error {
	if !c.CancelRequested {
		if fresh, err := p.cfg.Store.Get(c.ID); err == nil && fresh.CancelRequested {
			c.CancelRequested = true
		}
	}
	return p.cfg.Store.Update(c)
}

// terminal stamps the campaign's final phase and persists it.
func (p *ProcessNext) terminal(c *campaign.Campaign, status campaign.Status, msg string) error {
	done := p.cfg.Now()
	c.CompletedAt = &done
	c.SetStatus(status, msg)
	metrics.CampaignOutcomes.WithLabelValues(string(status)).Inc()
	if c.StartedAt != nil {
		metrics.CampaignDuration.Observe(done.Sub(*c.StartedAt).Seconds())
	}
	if err := p.persist(c); err != nil {
		return errors.Wrapf(err, "recording %s for campaign %s", status, c.ID)
	}
	p.cfg.logf("campaign %s %s", c.ID, status)
	return nil
}

// cancelRequested re-reads the campaign; the cancel verb flips the flag
// on the stored record while the executor works on its own copy. It is
// consulted before every job submission and at every monitor poll.
func (p *ProcessNext) cancelRequested(id string) bool {
	fresh, err := p.cfg.Store.Get(id)
	return err == nil && fresh.CancelRequested
}

func (p *ProcessNext) cancelledTerminal(ctx context.Context, c *campaign.Campaign) error {
	c.CancelRequested = true
	p.runCleanup(ctx, c, CancelledByUser)
	return p.terminal(c, campaign.StatusCancelled, CancelledByUser)
}

func (p *ProcessNext) waitEngine(ctx context.Context, c *campaign.Campaign, name, namespace string) (*monitor.Result, error) {
	cancelled := func() bool { return p.cancelRequested(c.ID) }
	if p.waitEngineFn != nil {
		return p.waitEngineFn(ctx, cancelled, name, namespace)
	}
	w := monitor.NewEngineWaiter(p.cfg.KubeClient)
	w.Log = p.cfg.logf
	w.Cancelled = cancelled
	if p.EnginePollInterval > 0 {
		w.PollInterval = p.EnginePollInterval
	}
	if p.EngineRetryDelay > 0 {
		w.RetryDelay = p.EngineRetryDelay
	}
	if p.EngineTimeout > 0 {
		w.Timeout = p.EngineTimeout
	}
	if p.EngineMaxFailures > 0 {
		w.MaxFailures = p.EngineMaxFailures
	}
	return w.Wait(ctx, name, namespace)
}

func (p *ProcessNext) waitJob(ctx context.Context, c *campaign.Campaign, name, namespace string) (*monitor.Result, error) {
	cancelled := func() bool { return p.cancelRequested(c.ID) }
	if p.waitJobFn != nil {
		return p.waitJobFn(ctx, cancelled, name, namespace)
	}
	w := monitor.NewJobWaiter(p.cfg.JobClient())
	w.Log = p.cfg.logf
	w.Cancelled = cancelled
	if p.JobPollInterval > 0 {
		w.PollInterval = p.JobPollInterval
	}
	if p.JobRetryDelay > 0 {
		w.RetryDelay = p.JobRetryDelay
	}
	if p.JobTimeout > 0 {
		w.Timeout = p.JobTimeout
	}
	if p.JobMaxFailures > 0 {
		w.MaxFailures = p.JobMaxFailures
	}
	return w.Wait(ctx, name, namespace)
}

// submitJob applies the manifest and pins down the resulting job name.
// When the apply itself errors the job may still have been created, the
// runner can die after the create lands. A status probe of the
// plausible names decides whether the submission actually failed.
func (p *ProcessNext) submitJob(ctx context.Context, text, namespace, requested string) (*campaign.JobRecord, error) {
	parsed := manifestJobName(text)
	client := p.cfg.JobClient()

	resources, err := client.ApplyManifest(ctx, text, namespace)
	if err != nil {
		for _, name := range submitProbeNames(requested, parsed) {
			st, serr := client.JobStatus(ctx, name, namespace)
			if serr == nil && st != nil && st.Phase != kube.JobNotFound {
				p.cfg.logf("submission of %s errored (%s) but the job exists, continuing", name, err)
				rec := &campaign.JobRecord{Name: name, Namespace: namespace}
				if parsed != "" && parsed != name {
					rec.OriginalName = parsed
				}
				return rec, nil
			}
		}
		return nil, err
	}

	rec := &campaign.JobRecord{Name: parsed, Namespace: namespace}
	for _, r := range resources {
		if strings.EqualFold(r.Kind, "Job") {
			// The cluster may have renamed the job to dodge a
			// collision; both names are kept so cleanup finds either.
			if parsed != "" && r.Name != parsed {
				rec.OriginalName = parsed
			}
			rec.Name = r.Name
			break
		}
	}
	if rec.Name == "" {
		rec.Name = requested
	}
	if rec.Name == "" {
		return nil, errors.New("manifest did not produce a job")
	}
	return rec, nil
}

func submitProbeNames(requested, parsed string) []string {
	var names []string
	if requested != "" {
		names = append(names, requested)
	}
	if parsed != "" && parsed != requested {
		names = append(names, parsed)
	}
	return names
}

// install creates the namespace and installs the engine chart. A name
// conflict surfacing mid-install means another writer produced the same
// deterministic name after our conflict check; the conflicting release
// is replaced and the install retried once.
func (p *ProcessNext) install(ctx context.Context, name, namespace, chartPath, valuesText string) error {
	if err := p.cfg.KubeClient.EnsureNamespace(ctx, namespace); err != nil {
		return err
	}
	err := p.cfg.KubeClient.InstallRelease(ctx, name, namespace, chartPath, valuesText)
	if errors.Is(err, kube.ErrReleaseConflict) {
		p.cfg.logf("release %s appeared mid-install, replacing it", name)
		p.replaceRelease(ctx, name, namespace)
		err = p.cfg.KubeClient.InstallRelease(ctx, name, namespace, chartPath, valuesText)
	}
	return err
}

// consultReuse checks the remembered values-document install against
// the campaign's fingerprint. A non-empty return names a healthy
// release to ride instead of installing.
func (p *ProcessNext) consultReuse(ctx context.Context, fp string) (string, error) {
	rec, err := p.cfg.Store.GetReuse()
	if err != nil {
		if errors.Is(err, driver.ErrReuseNotFound) {
			return "", nil
		}
		return "", err
	}
	deployed := false
	if st, err := p.cfg.KubeClient.ReleaseStatus(ctx, rec.ReleaseName, rec.Namespace); err == nil {
		deployed = st.Deployed()
	}
	ready := false
	if deployed {
		ready, _ = p.cfg.KubeClient.WorkloadReady(ctx, rec.ReleaseName, rec.Namespace)
	}
	switch engine.EvaluateReuse(rec, fp, deployed, ready) {
	case engine.ReuseHit:
		return rec.ReleaseName, nil
	case engine.ReuseStale:
		p.cfg.logf("recorded engine release %s is no longer healthy, installing fresh", rec.ReleaseName)
		p.clearReuse()
	case engine.ReuseSupersede:
		p.cfg.logf("superseding engine release %s", rec.ReleaseName)
		p.teardownRelease(ctx, rec.ReleaseName, rec.Namespace)
		p.clearReuse()
	}
	return "", nil
}

// adoptOrReplace resolves a name collision with a live release. True
// means the live release already serves the campaign's primary model
// and is adopted as-is; false means the name is free, possibly after
// the conflicting release was torn down.
func (p *ProcessNext) adoptOrReplace(ctx context.Context, name, namespace, model string) bool {
	st, err := p.cfg.KubeClient.ReleaseStatus(ctx, name, namespace)
	if err != nil {
		if !errors.Is(err, kube.ErrReleaseNotFound) {
			p.cfg.logf("conflict check for %s: %s", name, err)
		}
		return false
	}
	if st.Deployed() && model != "" {
		if rec, err := p.cfg.Store.GetRelease(name); err == nil && rec.Model == model {
			return true
		}
	}
	// Different model or nothing known about the release. Inconclusive
	// counts as conflicting.
	p.cfg.logf("replacing conflicting engine release %s", name)
	p.replaceRelease(ctx, name, namespace)
	return false
}

// teardownRelease uninstalls a release and sweeps whatever the
// uninstall could not see. Errors are logged, not surfaced; the caller
// is already committed to moving past this release.
func (p *ProcessNext) teardownRelease(ctx context.Context, name, namespace string) {
	if _, err := p.cfg.KubeClient.UninstallRelease(ctx, name, namespace); err != nil {
		p.cfg.logf("uninstalling release %s: %s", name, err)
	}
	if err := p.cfg.KubeClient.DeleteReleaseResources(ctx, name, namespace); err != nil {
		p.cfg.logf("sweeping leftovers of release %s: %s", name, err)
	}
	p.markRelease(name, engine.ReleaseStatusCleanedUp, "")
}

// replaceRelease tears a conflicting release down and waits for the
// deletions to propagate before the caller installs over the name.
func (p *ProcessNext) replaceRelease(ctx context.Context, name, namespace string) {
	p.teardownRelease(ctx, name, namespace)
	p.pause(ctx, replaceGrace)
}

func (p *ProcessNext) markRelease(name string, status engine.ReleaseStatus, msg string) {
	rec, err := p.cfg.Store.GetRelease(name)
	if err != nil {
		return
	}
	rec.Status = status
	rec.Error = msg
	rec.UpdatedAt = p.cfg.Now()
	if err := p.cfg.Store.PutRelease(rec); err != nil {
		p.cfg.logf("updating release record %s: %s", name, err)
	}
}

func (p *ProcessNext) recordRelease(name, namespace, fp, model, class string, count int) {
	now := p.cfg.Now()
	rel := &engine.Release{
		Name:        name,
		Namespace:   namespace,
		Status:      engine.ReleaseStatusDeploying,
		Fingerprint: fp,
		Model:       model,
		AccelClass:  class,
		AccelCount:  count,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.cfg.Store.PutRelease(rel); err != nil {
		p.cfg.logf("recording release %s: %s", name, err)
	}
}

func (p *ProcessNext) rememberReuse(fp, valuesText, name, namespace string) {
	rec := &engine.ReuseRecord{
		Fingerprint: fp,
		ValuesText:  valuesText,
		ReleaseName: name,
		Namespace:   namespace,
	}
	if err := p.cfg.Store.PutReuse(rec); err != nil {
		p.cfg.logf("recording reuse mapping for %s: %s", name, err)
	}
}

func (p *ProcessNext) clearReuse() {
	if err := p.cfg.Store.ClearReuse(); err != nil {
		p.cfg.logf("clearing reuse record: %s", err)
	}
}

// effectiveValues resolves the campaign's engine values document:
// either the raw text it carried, validated, or one rendered from its
// structured spec.
func (p *ProcessNext) effectiveValues(c *campaign.Campaign) (string, map[string]interface{}, error) {
	if c.ValuesText != "" {
		values, err := engine.ParseValues(c.ValuesText)
		if err != nil {
			return "", nil, err
		}
		if err := engine.ValidateValues(values); err != nil {
			return "", nil, err
		}
		return c.ValuesText, values, nil
	}
	if c.Engine == nil || c.Engine.ModelIdentifier == "" {
		return "", nil, errors.New("campaign has no engine configuration")
	}
	values, err := c.Engine.Values()
	if err != nil {
		return "", nil, err
	}
	raw, err := yaml.Marshal(values)
	if err != nil {
		return "", nil, errors.Wrap(err, "rendering values document")
	}
	return string(raw), values, nil
}

// modelFromValues reads the model identifier out of a values document.
// The schema pins model.identifier down as a string when present.
func modelFromValues(values map[string]interface{}) string {
	model, ok := values["model"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := model["identifier"].(string)
	return id
}

// accelFromValues reads the accelerator request out of a values
// document, defaulting the class like Spec.Complete does. Counts arrive
// as float64 from YAML-parsed documents and as int from rendered specs.
func accelFromValues(values map[string]interface{}) (string, int) {
	class := engine.DefaultAccelClass
	count := 0
	resources, ok := values["resources"].(map[string]interface{})
	if !ok {
		return class, count
	}
	if c, ok := resources["acceleratorClass"].(string); ok && c != "" {
		class = c
	}
	switch n := resources["acceleratorCount"].(type) {
	case int:
		count = n
	case float64:
		count = int(n)
	}
	return class, count
}

func (p *ProcessNext) engineNamespace(c *campaign.Campaign) string {
	if c.Engine != nil && c.Engine.Namespace != "" {
		return c.Engine.Namespace
	}
	return p.Namespace
}

func (p *ProcessNext) chartFor(class string) (string, error) {
	if p.Catalog == nil {
		return "", errors.New("no engine chart catalog configured")
	}
	return p.Catalog.ChartFor(class)
}

// findRunningEngine looks for any live engine to resolve placeholders
// against when the campaign brings its own. Best effort: any trouble
// means no engine.
func (p *ProcessNext) findRunningEngine(ctx context.Context) string {
	workloads, err := p.cfg.KubeClient.ReleasesByLabel(ctx, kube.ManagedLabelSelector, p.Namespace)
	if err != nil {
		p.cfg.logf("listing running engines: %s", err)
		return ""
	}
	for _, w := range workloads {
		if w.ReadyReplicas == 0 {
			continue
		}
		name := w.Labels[kube.InstanceLabel]
		if name == "" {
			name = w.Name
		}
		if strings.HasPrefix(name, engine.ReleaseNamePrefix) {
			return name
		}
	}
	return ""
}

func (p *ProcessNext) runCleanup(ctx context.Context, c *campaign.Campaign, reason string) {
	cl := NewCleanup(p.cfg)
	cl.Namespace = p.Namespace
	cl.Patterns = p.Patterns
	if err := cl.Run(ctx, c, reason); err != nil {
		p.cfg.logf("cleanup of campaign %s: %s", c.ID, err)
	}
}

func (p *ProcessNext) pause(ctx context.Context, d time.Duration) {
	if p.sleepFn != nil {
		p.sleepFn(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func jobStateFor(s monitor.State) campaign.JobState {
	switch s {
	case monitor.StateSucceeded:
		return campaign.JobStateSucceeded
	case monitor.StateTimedOut:
		return campaign.JobStateTimedOut
	case monitor.StateDisappeared:
		return campaign.JobStateDisappeared
	case monitor.StateFailed:
		return campaign.JobStateTerminated
	}
	return ""
}

// manifestJobName returns the name of the first Job document in the
// manifest text, or "".
func manifestJobName(text string) string {
	docs, err := manifest.SplitWithHeads(text)
	if err != nil {
		return ""
	}
	for _, d := range docs {
		if d.Head != nil && strings.EqualFold(d.Head.Kind, "Job") {
			return d.Head.Name()
		}
	}
	return ""
}
