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

// Package metrics holds the prometheus instruments the controller
// exposes on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CampaignsProcessed counts campaigns claimed by the executor.
	CampaignsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coxswain_campaigns_processed_total",
		Help: "Count of campaigns claimed by the executor.",
	})

	// CampaignOutcomes counts campaigns reaching a terminal status,
	// labeled by outcome (completed, failed, cancelled).
	CampaignOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coxswain_campaign_outcomes_total",
		Help: "Count of campaigns reaching a terminal status, by outcome.",
	}, []string{"outcome"})

	// EngineReuseHits counts engine installs avoided because a healthy
	// release already served the same values document.
	EngineReuseHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coxswain_engine_reuse_hits_total",
		Help: "Count of engine installs avoided by reusing a matching release.",
	})

	// CampaignDuration observes wall time from claim to terminal status.
	// Buckets span half a minute to roughly four hours, covering a quick
	// smoke benchmark through a full multi-job campaign.
	CampaignDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "coxswain_campaign_duration_seconds",
		Help:    "Wall time from campaign claim to terminal status.",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(
		CampaignsProcessed,
		CampaignOutcomes,
		EngineReuseHits,
		CampaignDuration,
	)
}

// Handler serves the default registry, process and Go collectors
// included.
func Handler() http.Handler {
	return promhttp.Handler()
}
