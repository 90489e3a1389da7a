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

package values

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"helm.sh/helm/v3/pkg/getter"
)

func TestMergeValues(t *testing.T) {
	nestedMap := map[string]interface{}{
		"foo": "bar",
		"baz": map[string]string{
			"cool": "stuff",
		},
	}
	anotherNestedMap := map[string]interface{}{
		"foo": "bar",
		"baz": map[string]string{
			"cool":    "things",
			"awesome": "stuff",
		},
	}
	flatMap := map[string]interface{}{
		"foo": "bar",
		"baz": "stuff",
	}
	anotherFlatMap := map[string]interface{}{
		"testing": "fun",
	}

	testMap := mergeMaps(flatMap, nestedMap)
	equal := reflect.DeepEqual(testMap, nestedMap)
	if !equal {
		t.Errorf("Expected a nested map to overwrite a flat value. Expected: %v, got %v", nestedMap, testMap)
	}

	testMap = mergeMaps(nestedMap, flatMap)
	equal = reflect.DeepEqual(testMap, flatMap)
	if !equal {
		t.Errorf("Expected a flat value to overwrite a map. Expected: %v, got %v", flatMap, testMap)
	}

	testMap = mergeMaps(nestedMap, anotherNestedMap)
	equal = reflect.DeepEqual(testMap, anotherNestedMap)
	if !equal {
		t.Errorf("Expected a nested map to overwrite another nested map. Expected: %v, got %v", anotherNestedMap, testMap)
	}

	testMap = mergeMaps(anotherFlatMap, anotherNestedMap)
	expectedMap := map[string]interface{}{
		"testing": "fun",
		"foo":     "bar",
		"baz": map[string]string{
			"cool":    "things",
			"awesome": "stuff",
		},
	}
	equal = reflect.DeepEqual(testMap, expectedMap)
	if !equal {
		t.Errorf("Expected a map with different keys to merge properly with another map. Expected: %v, got %v", expectedMap, testMap)
	}
}

func TestMergeValuesSources(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "engine.yaml")
	doc := []byte("model:\n  name: llama-3-8b\nresources:\n  gpu: 1\n")
	if err := os.WriteFile(file, doc, 0o644); err != nil {
		t.Fatal(err)
	}

	opts := &Options{
		ValueFiles:   []string{file},
		Values:       []string{"resources.gpu=2"},
		StringValues: []string{"model.revision=main"},
		JSONValues:   []string{`{"env":{"VLLM_LOG_LEVEL":"INFO"}}`},
	}

	got, err := opts.MergeValues(getter.Providers{})
	if err != nil {
		t.Fatal(err)
	}

	want := map[string]interface{}{
		"model": map[string]interface{}{
			"name":     "llama-3-8b",
			"revision": "main",
		},
		"resources": map[string]interface{}{
			"gpu": int64(2),
		},
		"env": map[string]interface{}{
			"VLLM_LOG_LEVEL": "INFO",
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("merged values mismatch\nwant %v\ngot  %v", want, got)
	}
}

func TestMergeValuesBadFile(t *testing.T) {
	opts := &Options{ValueFiles: []string{"does-not-exist.yaml"}}
	if _, err := opts.MergeValues(getter.Providers{}); err == nil {
		t.Error("expected an error for a missing values file")
	}
}

func TestReadFile(t *testing.T) {
	testData := []byte("OK")

	dir := t.TempDir()
	local := filepath.Join(dir, "values.yaml")
	if err := os.WriteFile(local, testData, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		filePath string
		want     []byte
		wantErr  bool
	}{
		{
			name:     "local-file",
			filePath: local,
			want:     testData,
			wantErr:  false,
		},
		{
			name:     "missing-file",
			filePath: filepath.Join(dir, "nope.yaml"),
			want:     nil,
			wantErr:  true,
		},
		{
			name:     "unregistered-scheme-falls-back-to-disk",
			filePath: "oci://charts/engine",
			want:     nil,
			wantErr:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readFile(tt.filePath, getter.Providers{})
			if (err != nil) != tt.wantErr {
				t.Errorf("readFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("readFile() got = %v, want %v", got, tt.want)
			}
		})
	}
}
