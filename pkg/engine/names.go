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

package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// maxNameLength is the DNS-1035 limit on Kubernetes resource names.
const maxNameLength = 63

// ReleaseNamePrefix marks the releases this controller owns. Workloads
// whose instance name lacks it are somebody else's.
const ReleaseNamePrefix = "engine-"

var (
	invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)
	dashRuns         = regexp.MustCompile(`-+`)
)

// SanitizeName normalizes an arbitrary string, typically a model
// identifier, into a DNS-1035 compatible name: lowercase alphanumerics
// and dashes, starting with a letter, at most 63 characters.
func SanitizeName(name string) string {
	s := invalidNameChars.ReplaceAllString(name, "-")
	s = strings.ToLower(s)
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if s != "" && s[0] >= '0' && s[0] <= '9' {
		s = "v" + s
	}
	if s == "" || !(s[0] >= 'a' && s[0] <= 'z') {
		s = "model-" + s
	}
	if len(s) > maxNameLength {
		s = strings.TrimRight(s[:maxNameLength], "-")
	}
	return s
}

// ReleaseName derives the deterministic release name for an engine:
// engine-<sanitized model>-<fingerprint prefix>-<accelerator class and
// count>. Two logically identical campaigns map to the same name, which
// is what makes reuse sound.
func ReleaseName(model, fingerprint, accelClass string, accelCount int) string {
	fp := fingerprint
	if len(fp) > 8 {
		fp = fp[:8]
	}
	name := fmt.Sprintf("%s%s-%s-%s-%d", ReleaseNamePrefix, SanitizeName(model), fp, accelClass, accelCount)
	return SanitizeName(name)
}

// ServiceName is the service fronting an engine release.
func ServiceName(release string) string {
	return SanitizeName(release + "-service")
}

// HeadlessServiceName is the headless companion service that gives the
// engine workload stable pod DNS.
func HeadlessServiceName(release string) string {
	return SanitizeName(release + "-headless")
}

// PodName is the first pod of an engine release. Engine workloads are
// ordinal-indexed, so the name is predictable.
func PodName(release string) string {
	return release + "-0"
}
