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

package manifest

import (
	"strings"

	"github.com/coxswain-io/coxswain/pkg/engine"
)

// Engine placeholder tokens recognized in benchmark manifests. Matching
// is literal; there is no escaping.
const (
	PlaceholderRelease = "<ENGINE_RELEASE>"
	PlaceholderService = "<ENGINE_SERVICE>"
	PlaceholderPod     = "<ENGINE_POD>"
)

// ResolvePlaceholders substitutes the engine tokens in a benchmark
// manifest. Each token is replaced exactly once, in declaration order.
// With an empty release name (a skip-engine campaign that found no
// running engine) the manifest passes through untouched.
func ResolvePlaceholders(text, release string) string {
	if release == "" {
		return text
	}
	out := strings.Replace(text, PlaceholderRelease, release, 1)
	out = strings.Replace(out, PlaceholderService, engine.ServiceName(release), 1)
	out = strings.Replace(out, PlaceholderPod, engine.PodName(release), 1)
	return out
}

// HasPlaceholders reports whether any engine token remains in the text.
func HasPlaceholders(text string) bool {
	return strings.Contains(text, PlaceholderRelease) ||
		strings.Contains(text, PlaceholderService) ||
		strings.Contains(text, PlaceholderPod)
}
