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
	"encoding/hex"
	"encoding/json"
	"hash/fnv"

	"github.com/pkg/errors"
)

// Fingerprint content-addresses a values document: the 128-bit FNV-1a
// hash of its canonical JSON encoding, hex encoded. json.Marshal sorts
// map keys, so two documents with the same logical content always
// fingerprint identically regardless of key order in the source text.
func Fingerprint(values map[string]interface{}) (string, error) {
	canonical, err := json.Marshal(values)
	if err != nil {
		return "", errors.Wrap(err, "values document is not encodable")
	}
	h := fnv.New128a()
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintText parses a YAML values document and fingerprints it.
func FingerprintText(text string) (string, error) {
	values, err := ParseValues(text)
	if err != nil {
		return "", err
	}
	return Fingerprint(values)
}
