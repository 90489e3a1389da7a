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
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/client"
	"github.com/coxswain-io/coxswain/pkg/httputil"
	"github.com/coxswain-io/coxswain/pkg/storage"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

// writeError maps a verb failure onto the queue API's error contract.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, driver.ErrCampaignNotFound),
		errors.Is(err, driver.ErrReleaseNotFound),
		errors.Is(err, driver.ErrReuseNotFound):
		httputil.NotFound(w, r, "%s", err)
	case errors.Is(err, storage.ErrCampaignInFlight),
		errors.Is(err, storage.ErrIllegalTransition),
		errors.Is(err, action.ErrNotPending),
		errors.Is(err, action.ErrReleaseBusy):
		httputil.Conflict(w, r, "%s", err)
	case errors.Is(err, storage.ErrStoreUnavailable):
		httputil.Error(w, r, http.StatusServiceUnavailable, "%s", err)
	default:
		httputil.Fatal(w, r, "%s", err)
	}
}

func (c *controller) submit(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	cmp := &campaign.Campaign{}
	if err := httputil.Decode(r, cmp); err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	stored, err := action.NewSubmit(c.cfg).Run(cmp)
	if err != nil {
		if errors.Is(err, storage.ErrStoreUnavailable) {
			writeError(w, r, err)
			return
		}
		// Anything short of a store outage is the submission's fault.
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	encoder.Encode(w, r, http.StatusCreated, stored)
}

func (c *controller) list(w http.ResponseWriter, r *http.Request) {
	l := action.NewList(c.cfg)
	if status := r.URL.Query().Get("status"); status != "" {
		l.ByStatus = campaign.Status(status)
	}
	campaigns, err := l.Run()
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, campaigns)
}

func (c *controller) queueStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := action.NewQueueStatus(c.cfg).Run()
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, summary)
}

func (c *controller) get(w http.ResponseWriter, r *http.Request) {
	cmp, err := action.NewGet(c.cfg).Run(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, cmp)
}

func (c *controller) delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d := action.NewDelete(c.cfg)
	d.Force = r.URL.Query().Get("force") == "true"
	d.Namespace = c.namespace
	d.Patterns = c.patterns
	if _, err := d.Run(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, client.Ack{Message: "campaign " + id + " deleted"})
}

func (c *controller) cancel(w http.ResponseWriter, r *http.Request) {
	cmp, err := action.NewCancel(c.cfg).Run(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, cmp)
}

func (c *controller) setPriority(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := &client.PriorityRequest{}
	if err := httputil.Decode(r, req); err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	if !req.Priority.IsValid() {
		httputil.BadRequest(w, r, "invalid priority %q", req.Priority)
		return
	}
	cmp, err := action.NewSetPriority(c.cfg).Run(mux.Vars(r)["id"], req.Priority)
	if err != nil {
		writeError(w, r, err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, cmp)
}

func (c *controller) patchStatus(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	patch, err := httputil.ReadBody(r)
	if err != nil {
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	cmp, err := action.NewPatchStatus(c.cfg).Run(mux.Vars(r)["id"], patch)
	if err != nil {
		if errors.Is(err, driver.ErrCampaignNotFound) ||
			errors.Is(err, storage.ErrIllegalTransition) ||
			errors.Is(err, storage.ErrStoreUnavailable) {
			writeError(w, r, err)
			return
		}
		// A patch the merge-patch decoder rejects is a client problem.
		httputil.BadRequest(w, r, "%s", err)
		return
	}
	encoder.Encode(w, r, http.StatusOK, cmp)
}
