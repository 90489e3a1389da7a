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

package campaign

import (
	"fmt"
	"time"

	"github.com/coxswain-io/coxswain/pkg/engine"
)

// MockCampaignOptions allows for user-configurable options on mock
// campaign objects.
type MockCampaignOptions struct {
	// ID of the campaign. Defaults to "campaign-test".
	ID string
	// Priority of the campaign. Defaults to medium.
	Priority Priority
	// Status of the campaign. Defaults to pending.
	Status Status
	// Benchmarks is the number of stub benchmark manifests to attach.
	Benchmarks int
	// SkipEngine marks the campaign as running against a pre-existing
	// engine.
	SkipEngine bool
	// CreatedAt overrides the creation timestamp for queue order tests.
	CreatedAt time.Time
}

// Mock creates a mock campaign object based on options set by
// MockCampaignOptions. This function should typically not be used
// outside of testing.
func Mock(opts *MockCampaignOptions) *Campaign {
	id := opts.ID
	if id == "" {
		id = "campaign-test"
	}

	created := opts.CreatedAt
	if created.IsZero() {
		created = time.Unix(242085845, 0).UTC()
	}

	c := New(id, created)
	if opts.Priority != "" {
		c.Priority = opts.Priority
	}
	if opts.Status != "" {
		c.Status = opts.Status
	}
	c.SkipEngine = opts.SkipEngine
	if !opts.SkipEngine {
		c.Engine = &engine.Spec{
			ModelIdentifier: "facebook/opt-125m",
			AccelClass:      "cpu",
			AccelCount:      1,
		}
	}

	for i := 0; i < opts.Benchmarks; i++ {
		c.Benchmarks = append(c.Benchmarks, BenchmarkSpec{
			Name: fmt.Sprintf("bench-%d", i),
			Manifest: fmt.Sprintf(`apiVersion: batch/v1
kind: Job
metadata:
  name: %s-bench-%d
spec:
  template:
    spec:
      containers:
      - name: bench
        image: benchmark:latest
      restartPolicy: Never
`, id, i),
		})
	}
	c.TotalSteps = c.StepCount()

	return c
}
