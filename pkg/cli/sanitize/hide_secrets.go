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

// Package sanitize redacts secret material from campaign output.
// Benchmark manifests may inline v1 Secrets carrying model-hub tokens;
// coxctl hides their values before printing a campaign.
package sanitize

import (
	"fmt"
	"strings"

	yaml "gopkg.in/yaml.v2"

	"github.com/coxswain-io/coxswain/pkg/campaign"
)

const hiddenSecretValue = "[HIDDEN]"

// HideCampaignSecrets sanitizes every benchmark manifest on the campaign
// in place. Manifests cannot be applied after this operation.
func HideCampaignSecrets(c *campaign.Campaign) error {
	if c == nil {
		return nil
	}
	for i := range c.Benchmarks {
		manifest, err := HideManifestSecrets(c.Benchmarks[i].Manifest)
		if err != nil {
			return err
		}
		c.Benchmarks[i].Manifest = manifest
	}
	return nil
}

// HideManifestSecrets replaces the data and stringData values of v1
// Secrets in a multi-document manifest with `[HIDDEN]`.
func HideManifestSecrets(manifest string) (string, error) {
	resources := strings.Split(manifest, "\n---")
	outRes := make([]string, 0, len(resources))

	for _, r := range resources {
		var resourceMap map[string]interface{}
		err := yaml.Unmarshal([]byte(r), &resourceMap)
		if err != nil {
			return "", err
		}

		if isSecret(resourceMap) {
			r = hideSecretData(r, resourceMap, "data")
			r = hideSecretData(r, resourceMap, "stringData")
		}

		outRes = append(outRes, r)
	}

	return strings.Join(outRes, "\n---"), nil
}

func isSecret(resource map[string]interface{}) bool {
	kind, ok := resource["kind"].(string)
	if !ok || kind != "Secret" {
		return false
	}

	apiVersion, ok := resource["apiVersion"].(string)
	if !ok || apiVersion != "v1" {
		return false
	}

	return true
}

func hideSecretData(raw string, resource map[string]interface{}, field string) string {
	dataRaw, ok := resource[field].(map[interface{}]interface{})
	if !ok || len(dataRaw) == 0 {
		return raw
	}

	data := toMapOfStrings(dataRaw)

	lines := strings.Split(raw, "\n")
	outLines := make([]string, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		// If line is part of the secret data, sanitize it by replacing
		// the value part.
		if key, matches := matchKeyValPair(data, trimmed); matches {
			sanitizedLine := strings.Replace(line, trimmed, formatHiddenValue(key), 1)
			outLines[i] = sanitizedLine
			continue
		}

		outLines[i] = line
	}

	return strings.Join(outLines, "\n")
}

func toMapOfStrings(rawMap map[interface{}]interface{}) map[string]string {
	stringsMap := make(map[string]string, len(rawMap))
	for k, v := range rawMap {
		key, ok := k.(string)
		if !ok {
			continue
		}
		val, ok := v.(string)
		if !ok {
			continue
		}
		stringsMap[key] = val
	}
	return stringsMap
}

// matchKeyValPair checks if data contains a joined key value pair in
// format `key: value` equal to the specified string. Returns the key with
// which the string matched and an indicator if it matched any.
func matchKeyValPair(data map[string]string, str string) (string, bool) {
	for k, v := range data {
		joined := joinKeyVal(k, v)

		if joined == str {
			return k, true
		}
	}

	return "", false
}

func joinKeyVal(key, val string) string {
	return fmt.Sprintf("%s: %s", key, val)
}

func formatHiddenValue(key string) string {
	return joinKeyVal(key, hiddenSecretValue)
}
