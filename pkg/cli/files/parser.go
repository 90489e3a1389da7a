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

// Package files parses name=path flag values, the form coxctl submit
// uses to attach named benchmark manifests to a campaign.
package files

import (
	"strings"

	"github.com/pkg/errors"
)

// ParseIntoString parses a comma-separated list of name=path pairs and
// merges the result into dest. A repeated name overwrites the earlier
// path.
func ParseIntoString(s string, dest map[string]string) error {
	for _, val := range strings.Split(s, ",") {
		val = strings.TrimSpace(val)
		splt := strings.SplitN(val, "=", 2)

		if len(splt) != 2 {
			return errors.Errorf("expected name=path, got %q", val)
		}

		name := strings.TrimSpace(splt[0])
		path := strings.TrimSpace(splt[1])
		if name == "" || path == "" {
			return errors.Errorf("expected name=path, got %q", val)
		}
		dest[name] = path
	}

	return nil
}
