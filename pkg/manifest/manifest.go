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

// Package manifest handles the raw YAML side of benchmark jobs: document
// splitting, head inspection, and engine placeholder substitution.
package manifest

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// SimpleHead defines what the structure of the head of a manifest file is.
type SimpleHead struct {
	Version  string `json:"apiVersion"`
	Kind     string `json:"kind,omitempty"`
	Metadata *struct {
		Name        string            `json:"name"`
		Namespace   string            `json:"namespace,omitempty"`
		Annotations map[string]string `json:"annotations"`
	} `json:"metadata,omitempty"`
}

// Name returns the metadata name, or "" when the head has none.
func (h *SimpleHead) Name() string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata.Name
}

// Namespace returns the metadata namespace, or "" when the head has none.
func (h *SimpleHead) Namespace() string {
	if h.Metadata == nil {
		return ""
	}
	return h.Metadata.Namespace
}

// Manifest represents a manifest file, which has a name and some content.
type Manifest struct {
	Name    string
	Content string
	Head    *SimpleHead
}

var sep = regexp.MustCompile("(?:^|\\s*\n)---\\s*")

const manifestTpl = "manifest-%d"

// Split takes a string of manifest and returns a map containing the
// individual manifests. Keys are integer-sortable so that manifests come
// back out in the same order they went in (see SplitOrder).
func Split(bigFile string) map[string]string {
	res := map[string]string{}
	// Making sure that any extra whitespace in YAML stream doesn't
	// interfere in splitting documents correctly.
	bigFileTmp := strings.TrimSpace(bigFile)
	docs := sep.Split(bigFileTmp, -1)
	var count int
	for _, d := range docs {
		if d == "" {
			continue
		}

		d = strings.TrimSpace(d)
		res[fmt.Sprintf(manifestTpl, count)] = d
		count = count + 1
	}
	return res
}

// SortedKeys returns the keys of a Split result in input order.
func SortedKeys(manifests map[string]string) []string {
	keys := make([]string, 0, len(manifests))
	for k := range manifests {
		keys = append(keys, k)
	}
	sort.Sort(SplitOrder(keys))
	return keys
}

// SplitOrder sorts by in-file manifest order, as provided by Split.
type SplitOrder []string

func (a SplitOrder) Len() int { return len(a) }
func (a SplitOrder) Less(i, j int) bool {
	anum, _ := strconv.ParseInt(a[i][len("manifest-"):], 10, 0)
	bnum, _ := strconv.ParseInt(a[j][len("manifest-"):], 10, 0)
	return anum < bnum
}
func (a SplitOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }

// ParseHead reads the head of a single manifest document.
func ParseHead(doc string) (*SimpleHead, error) {
	var head SimpleHead
	if err := yaml.Unmarshal([]byte(doc), &head); err != nil {
		return nil, errors.Wrap(err, "cannot parse manifest head")
	}
	return &head, nil
}

// SplitWithHeads splits a multi-document manifest and parses each head,
// preserving input order.
func SplitWithHeads(bigFile string) ([]Manifest, error) {
	docs := Split(bigFile)
	manifests := make([]Manifest, 0, len(docs))
	for _, key := range SortedKeys(docs) {
		content := docs[key]
		head, err := ParseHead(content)
		if err != nil {
			return nil, errors.Wrapf(err, "manifest %s", key)
		}
		manifests = append(manifests, Manifest{Name: key, Content: content, Head: head})
	}
	return manifests, nil
}
