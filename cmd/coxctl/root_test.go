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
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/campaign"
)

// runCoxctl executes the CLI against a stub controller and returns what
// the command printed.
func runCoxctl(t *testing.T, handler http.HandlerFunc, args ...string) (string, error) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	buf := &bytes.Buffer{}
	cmd := newRootCmd(buf)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--controller", srv.URL}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// unreachable fails the test on any request. For commands that must not
// touch the controller.
func unreachable(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}
}

func TestCoxctlList(t *testing.T) {
	is := assert.New(t)
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal("/queue/list", r.URL.Path)
		w.Write([]byte(`[
			{"id":"c-1","status":"processing","priority":"high","total_steps":3,"completed_steps":1,"current_step":"benchmark 1/2"},
			{"id":"c-2","status":"pending","priority":"medium","total_steps":2}
		]`))
	}, "list")

	require.NoError(t, err)
	is.Contains(out, "PRIORITY")
	is.Contains(out, "c-1")
	is.Contains(out, "1/3")
	is.Contains(out, "benchmark 1/2")
	is.Contains(out, "c-2")
}

func TestCoxctlListEmpty(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, "list")

	require.NoError(t, err)
	assert.Equal(t, "No campaigns found.\n", out)
}

func TestCoxctlStatus(t *testing.T) {
	is := assert.New(t)
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal("/queue/c-9", r.URL.Path)
		w.Write([]byte(`{
			"id":"c-9","status":"processing","priority":"urgent",
			"total_steps":2,"completed_steps":1,
			"current_step":"benchmark 1/1",
			"engine_release_id":"engine-opt-abc12345-cpu-0",
			"created_jobs":[{"name":"bench-latency","namespace":"benchmarks","state":"succeeded"}]
		}`))
	}, "status", "c-9")

	require.NoError(t, err)
	is.Contains(out, "STATUS:   processing")
	is.Contains(out, "PROGRESS: 1/2")
	is.Contains(out, "ENGINE:   engine-opt-abc12345-cpu-0")
	is.Contains(out, "benchmarks/bench-latency: succeeded")
}

func TestCoxctlStatusJSON(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c-9","status":"completed"}`))
	}, "status", "c-9", "-o", "json")

	require.NoError(t, err)
	var got campaign.Campaign
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "c-9", got.ID)
	assert.Equal(t, campaign.StatusCompleted, got.Status)
}

func TestCoxctlSubmitSkipEngine(t *testing.T) {
	is := assert.New(t)
	manifest := filepath.Join(t.TempDir(), "latency.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("kind: Job"), 0o644))

	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal("/queue/deployment", r.URL.Path)
		var in campaign.Campaign
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		is.True(in.SkipEngine)
		require.Len(t, in.Benchmarks, 1)
		is.Equal("kind: Job", in.Benchmarks[0].Manifest)

		in.ID = "c-1"
		in.Status = campaign.StatusPending
		in.TotalSteps = 1
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(&in)
	}, "submit", "--skip-engine", manifest)

	require.NoError(t, err)
	is.Contains(out, "Campaign c-1 submitted (priority medium, 1 steps)")
}

func TestCoxctlSubmitNeedsBenchmark(t *testing.T) {
	_, err := runCoxctl(t, unreachable(t), "submit", "--skip-engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one benchmark manifest")
}

func TestCoxctlCancel(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/queue/c-1/cancel", r.URL.Path)
		w.Write([]byte(`{"id":"c-1","status":"cancelled"}`))
	}, "cancel", "c-1")

	require.NoError(t, err)
	assert.Contains(t, out, "Campaign c-1 cancelled")
}

func TestCoxctlDeleteForce(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		w.Write([]byte(`{"message":"campaign c-1 deleted"}`))
	}, "delete", "c-1", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "Campaign c-1 deleted")
}

func TestCoxctlPriorityRejectsUnknown(t *testing.T) {
	_, err := runCoxctl(t, unreachable(t), "priority", "c-1", "wild")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid priority")
}

func TestCoxctlQueueStatus(t *testing.T) {
	is := assert.New(t)
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal("/queue/status", r.URL.Path)
		w.Write([]byte(`{"total":3,"counts":{"pending":2,"processing":1},"pending":["c-2","c-3"],"processing":["c-1"]}`))
	}, "queue", "status")

	require.NoError(t, err)
	is.Contains(out, "TOTAL:      3")
	is.Contains(out, "IN FLIGHT:  c-1")
	is.Contains(out, "1. c-2")
	is.Contains(out, "2. c-3")
}

func TestCoxctlSchedulerStatus(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduler/status", r.URL.Path)
		w.Write([]byte(`{"running":true,"paused":false,"poll_interval_seconds":30}`))
	}, "scheduler", "status")

	require.NoError(t, err)
	assert.Contains(t, out, "STATE:     running")
	assert.Contains(t, out, "INTERVAL:  30s")
}

func TestCoxctlSchedulerConfigClamped(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/scheduler/config", r.URL.Path)
		w.Write([]byte(`{"running":true,"paused":false,"poll_interval_seconds":5}`))
	}, "scheduler", "config", "1")

	require.NoError(t, err)
	assert.Contains(t, out, "Poll interval clamped to 5s")
}

func TestCoxctlReleaseList(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases", r.URL.Path)
		w.Write([]byte(`[{"name":"engine-opt-abc12345-cpu-0","namespace":"engines","status":"running","model":"opt-125m","created_at":"2026-08-26T10:00:00Z"}]`))
	}, "release", "list")

	require.NoError(t, err)
	assert.Contains(t, out, "engine-opt-abc12345-cpu-0")
	assert.Contains(t, out, "opt-125m")
}

func TestCoxctlReleaseUninstall(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/releases/engine-opt-abc12345-cpu-0/uninstall", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		w.Write([]byte(`{"message":"release uninstalled"}`))
	}, "release", "uninstall", "engine-opt-abc12345-cpu-0", "--force")

	require.NoError(t, err)
	assert.Contains(t, out, "Release engine-opt-abc12345-cpu-0 uninstalled")
}

func TestCoxctlReuseEmpty(t *testing.T) {
	out, err := runCoxctl(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"no reuse record"}`))
	}, "reuse")

	require.NoError(t, err)
	assert.Contains(t, out, "No reuse record")
}

func TestCoxctlEnv(t *testing.T) {
	out, err := runCoxctl(t, unreachable(t), "env")
	require.NoError(t, err)
	assert.Contains(t, out, "COXSWAIN_DEBUG")
	assert.Contains(t, out, "COXSWAIN_DRIVER")
}

func TestCoxctlVersion(t *testing.T) {
	out, err := runCoxctl(t, unreachable(t), "version")
	require.NoError(t, err)
	assert.Equal(t, version.GetVersion()+"\n", out)
}
