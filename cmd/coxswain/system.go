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

package main

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/coxswain-io/coxswain/internal/metrics"
	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/client"
	"github.com/coxswain-io/coxswain/pkg/httputil"
	"github.com/coxswain-io/coxswain/pkg/scheduler"
)

// controller serves the queue API. The wire types live in pkg/client so
// the surface and its callers cannot drift apart.
type controller struct {
	cfg       *action.Configuration
	sched     *scheduler.Scheduler
	driver    string
	namespace string
	patterns  []string
}

var encoder = httputil.AcceptEncoder{DefaultEncoding: "application/json"}

// route defines a routing table entry to be registered with gorilla/mux.
type route struct {
	name        string
	path        string
	method      string
	handlerFunc http.HandlerFunc
}

func (c *controller) routes() []route {
	return []route{
		{"Health", "/health", "GET", c.health},
		{"Status", "/status", "GET", c.systemStatus},
		{"Submit", "/queue/deployment", "POST", c.submit},
		{"List", "/queue/list", "GET", c.list},
		{"QueueStatus", "/queue/status", "GET", c.queueStatus},
		{"Get", "/queue/{id}", "GET", c.get},
		{"Delete", "/queue/{id}", "DELETE", c.delete},
		{"Cancel", "/queue/{id}/cancel", "POST", c.cancel},
		{"SetPriority", "/queue/{id}/priority", "POST", c.setPriority},
		{"PatchStatus", "/queue/{id}/status", "PATCH", c.patchStatus},
		{"SchedulerStart", "/scheduler/start", "POST", c.schedulerStart},
		{"SchedulerStop", "/scheduler/stop", "POST", c.schedulerStop},
		{"SchedulerPause", "/scheduler/pause", "POST", c.schedulerPause},
		{"SchedulerResume", "/scheduler/resume", "POST", c.schedulerResume},
		{"SchedulerTrigger", "/scheduler/trigger", "POST", c.schedulerTrigger},
		{"SchedulerStatus", "/scheduler/status", "GET", c.schedulerStatus},
		{"SchedulerConfig", "/scheduler/config", "POST", c.schedulerConfig},
		{"Releases", "/releases", "GET", c.releases},
		{"UninstallRelease", "/releases/{name}/uninstall", "POST", c.uninstallRelease},
		{"Reuse", "/debug/reuse", "GET", c.reuse},
	}
}

func (c *controller) handler(accessLog io.Writer) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)
	for _, rt := range c.routes() {
		router.NewRoute().
			Name(rt.name).
			Path(rt.path).
			Methods(rt.method).
			Handler(rt.handlerFunc)
	}
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	return handlers.CombinedLoggingHandler(accessLog, router)
}

func (c *controller) health(w http.ResponseWriter, r *http.Request) {
	encoder.Encode(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (c *controller) systemStatus(w http.ResponseWriter, r *http.Request) {
	st := &client.SystemStatus{
		Service:   "coxswain",
		Version:   version.GetVersion(),
		Driver:    c.driver,
		Namespace: c.namespace,
		Scheduler: c.sched.Status(),
	}
	if summary, err := action.NewQueueStatus(c.cfg).Run(); err == nil {
		st.Queue = *summary
	}
	encoder.Encode(w, r, http.StatusOK, st)
}

func (c *controller) schedulerStart(w http.ResponseWriter, r *http.Request) {
	if err := c.sched.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "scheduler started"})
}

func (c *controller) schedulerStop(w http.ResponseWriter, r *http.Request) {
	c.sched.Stop()
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "scheduler stopped"})
}

func (c *controller) schedulerPause(w http.ResponseWriter, r *http.Request) {
	c.sched.Pause()
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "scheduler paused"})
}

func (c *controller) schedulerResume(w http.ResponseWriter, r *http.Request) {
	c.sched.Resume()
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "scheduler resumed"})
}

func (c *controller) schedulerTrigger(w http.ResponseWriter, r *http.Request) {
	if !c.sched.Trigger() {
		httputil.Conflict(w, r, "a pass is already in flight or the scheduler is stopped")
		return
	}
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "scheduling pass triggered"})
}

func (c *controller) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	encoder.Encode(w, r, http.StatusOK, c.sched.Status())
}

func (c *controller) schedulerConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := &client.SchedulerConfigRequest{}
	if err := httputil.Decode(r, req); err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	if req.PollIntervalSeconds <= 0 {
		httputil.BadRequest(w, r, "poll_interval_seconds must be positive")
		return
	}
	c.sched.SetInterval(time.Duration(req.PollIntervalSeconds) * time.Second)
	encoder.Encode(w, r, http.StatusOK, c.sched.Status())
}

func (c *controller) releases(w http.ResponseWriter, r *http.Request) {
	releases, err := c.cfg.Store.ListReleases()
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, releases)
}

func (c *controller) uninstallRelease(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	u := action.NewUninstallEngine(c.cfg)
	u.Namespace = c.namespace
	u.Force = r.URL.Query().Get("force") == "true"
	if _, err := u.Run(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "release " + name + " uninstalled"})
}

func (c *controller) reuse(w http.ResponseWriter, r *http.Request) {
	record, err := c.cfg.Store.GetReuse()
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, record)
}
