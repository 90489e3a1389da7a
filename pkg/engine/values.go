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
	"github.com/mitchellh/copystructure"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

// ParseValues decodes a YAML values document into a map. An empty or
// non-mapping document is an error: such a submission cannot describe
// an engine.
func ParseValues(text string) (map[string]interface{}, error) {
	var values map[string]interface{}
	if err := yaml.Unmarshal([]byte(text), &values); err != nil {
		return nil, errors.Wrap(err, "cannot parse values document")
	}
	if len(values) == 0 {
		return nil, errors.New("values document is empty")
	}
	return values, nil
}

// Values renders the spec into the engine chart values document. The
// spec is completed first, so the document always carries the full
// effective configuration; this is also what gets fingerprinted.
// AdditionalArgs is deep-copied so later mutation of the document never
// leaks back into the spec.
func (s *Spec) Values() (map[string]interface{}, error) {
	spec := *s
	spec.Complete()

	values := map[string]interface{}{
		"model": map[string]interface{}{
			"identifier":      spec.ModelIdentifier,
			"servedAlias":     spec.ServedAlias,
			"dtype":           spec.Dtype,
			"maxModelLen":     spec.MaxModelLen,
			"trustRemoteCode": spec.TrustRemoteCode,
		},
		"server": map[string]interface{}{
			"host":              spec.Host,
			"port":              spec.Port,
			"maxSeqs":           spec.MaxSeqs,
			"blockSize":         spec.BlockSize,
			"memoryUtilization": spec.MemoryUtilization,
		},
		"parallelism": map[string]interface{}{
			"tensor":   spec.ParallelTensor,
			"pipeline": spec.ParallelPipeline,
		},
		"resources": map[string]interface{}{
			"acceleratorClass": spec.AccelClass,
			"acceleratorCount": spec.AccelCount,
		},
	}
	if spec.Quantization != "" {
		values["model"].(map[string]interface{})["quantization"] = spec.Quantization
	}
	if len(spec.AdditionalArgs) > 0 {
		copied, err := copystructure.Copy(map[string]interface{}(spec.AdditionalArgs))
		if err != nil {
			return nil, errors.Wrap(err, "cannot copy additional args")
		}
		values["extraArgs"] = copied
	}
	return values, nil
}

// CoreFingerprint hashes the spec itself rather than a values document.
// It names releases for submissions that carried no values text.
func (s *Spec) CoreFingerprint() (string, error) {
	values, err := s.Values()
	if err != nil {
		return "", err
	}
	return Fingerprint(values)
}

// ReleaseNameFor derives the deterministic release name for the spec.
func (s *Spec) ReleaseNameFor(fingerprint string) string {
	spec := *s
	spec.Complete()
	return ReleaseName(spec.ModelIdentifier, fingerprint, spec.AccelClass, spec.AccelCount)
}
