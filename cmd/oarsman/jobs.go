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
	"bufio"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/httputil"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/runner"
)

// server answers the runner surface the coxswain controller's runner
// client speaks. The wire types live in pkg/runner so the two sides
// cannot drift apart.
type server struct {
	client    kube.Interface
	namespace string
}

var encoder = httputil.AcceptEncoder{DefaultEncoding: "application/json"}

// route defines a routing table entry to be registered with gorilla/mux.
type route struct {
	name        string
	path        string
	method      string
	handlerFunc http.HandlerFunc
}

func (s *server) routes() []route {
	return []route{
		{"Health", "/health", "GET", s.health},
		{"Status", "/status", "GET", s.systemStatus},
		{"Deploy", "/deploy", "POST", s.deploy},
		{"DeleteManifest", "/delete", "POST", s.deleteManifest},
		{"JobStatus", "/jobs/{job}/status", "GET", s.jobStatus},
		{"JobPods", "/jobs/{job}/pods", "GET", s.jobPods},
		{"JobLogs", "/jobs/{job}/logs", "GET", s.jobLogs},
		{"JobDelete", "/jobs/{job}/delete", "DELETE", s.jobDelete},
	}
}

func (s *server) handler(accessLog io.Writer) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)
	for _, rt := range s.routes() {
		router.NewRoute().
			Name(rt.name).
			Path(rt.path).
			Methods(rt.method).
			Handler(rt.handlerFunc)
	}
	return handlers.CombinedLoggingHandler(accessLog, router)
}

// namespaceOr resolves the effective namespace for a request.
func (s *server) namespaceOr(ns string) string {
	if ns != "" {
		return ns
	}
	return s.namespace
}

func requestNamespace(r *http.Request, fallback string) string {
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		return ns
	}
	return fallback
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	encoder.Encode(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// runnerStatus is the identity snapshot served at /status.
type runnerStatus struct {
	Service    string `json:"service"`
	Version    string `json:"version"`
	Namespace  string `json:"namespace"`
	Kubernetes string `json:"kubernetes,omitempty"`
}

func (s *server) systemStatus(w http.ResponseWriter, r *http.Request) {
	st := runnerStatus{
		Service:   "oarsman",
		Version:   version.GetVersion(),
		Namespace: s.namespace,
	}
	if info, err := s.client.ServerVersion(); err == nil {
		st.Kubernetes = info.GitVersion
	}
	encoder.Encode(w, r, http.StatusOK, st)
}

func (s *server) deploy(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := &runner.DeployRequest{}
	if err := httputil.Decode(r, req); err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	if strings.TrimSpace(req.ManifestText) == "" {
		httputil.BadRequest(w, r, "manifest_text is required")
		return
	}
	ns := s.namespaceOr(req.Namespace)
	if err := s.client.EnsureNamespace(r.Context(), ns); err != nil {
		// The apply decides; a namespace the token cannot create may
		// well exist already.
		slog.Warn("ensuring namespace", "namespace", ns, "err", err)
	}

	resources, err := s.client.ApplyManifest(r.Context(), req.ManifestText, ns)
	if err != nil {
		if errors.Is(err, kube.ErrUnsupportedKind) {
			httputil.BadRequest(w, r, "%s", err)
			return
		}
		httputil.Fatal(w, r, "applying manifest: %s", err)
		return
	}
	encoder.Encode(w, r, http.StatusCreated, &runner.DeployResponse{
		Status:    "deployed",
		Namespace: ns,
		Resources: resources,
	})
}

func (s *server) deleteManifest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := &runner.DeployRequest{}
	if err := httputil.Decode(r, req); err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	if strings.TrimSpace(req.ManifestText) == "" {
		httputil.BadRequest(w, r, "manifest_text is required")
		return
	}
	ns := s.namespaceOr(req.Namespace)
	resources, err := s.client.DeleteManifest(r.Context(), req.ManifestText, ns)
	if err != nil {
		httputil.Fatal(w, r, "deleting manifest: %s", err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, &runner.DeployResponse{
		Status:    "deleted",
		Namespace: ns,
		Resources: resources,
	})
}

func (s *server) jobStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]
	ns := requestNamespace(r, s.namespace)
	// A missing job answers 200 with the not_found phase; the waiter's
	// disappearance accounting depends on seeing it, not a 404.
	st, err := s.client.JobStatus(r.Context(), name, ns)
	if err != nil {
		httputil.Fatal(w, r, "status of job %s: %s", name, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, st)
}

func (s *server) jobPods(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]
	ns := requestNamespace(r, s.namespace)
	pods, err := s.client.PodsForJob(r.Context(), name, ns)
	if err != nil {
		httputil.Fatal(w, r, "pods of job %s: %s", name, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, &runner.PodsResponse{
		Name:      name,
		Namespace: ns,
		Pods:      pods,
	})
}

func (s *server) jobDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]
	ns := requestNamespace(r, s.namespace)
	deleted, err := s.client.DeleteJob(r.Context(), name, ns)
	if err != nil {
		httputil.Fatal(w, r, "deleting job %s: %s", name, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, &runner.DeleteJobResponse{
		Name:      name,
		Namespace: ns,
		Deleted:   deleted,
	})
}

func (s *server) jobLogs(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]
	ns := requestNamespace(r, s.namespace)
	var tail int64
	if raw := r.URL.Query().Get("tail"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			httputil.BadRequest(w, r, "invalid tail %q", raw)
			return
		}
		tail = n
	}

	pods, err := s.client.PodsForJob(r.Context(), name, ns)
	if err != nil {
		httputil.Fatal(w, r, "pods of job %s: %s", name, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, &runner.LogsResponse{
		Name:      name,
		Namespace: ns,
		Logs:      s.collectLogs(r, ns, pods, tail),
	})
}

// collectLogs merges the logs of every pod behind a job, each line
// prefixed with its pod name. A pod whose log cannot be read is
// reported in place rather than sinking the whole answer.
func (s *server) collectLogs(r *http.Request, ns string, pods []kube.PodInfo, tail int64) string {
	var b strings.Builder
	for _, pod := range pods {
		rc, err := s.client.PodLogs(r.Context(), pod.Name, ns, tail, false)
		if err != nil {
			b.WriteString("[" + pod.Name + "] no logs available yet\n")
			continue
		}
		sc := bufio.NewScanner(rc)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			b.WriteString("[" + pod.Name + "] " + sc.Text() + "\n")
		}
		rc.Close()
	}
	return b.String()
}
