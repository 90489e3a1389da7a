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
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
)

// valuesSchema is deliberately loose: user-supplied values documents may
// target any engine chart, so only the shape that reuse and naming depend
// on is pinned down.
const valuesSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "minProperties": 1,
  "properties": {
    "model": {
      "type": "object",
      "properties": {
        "identifier": {"type": "string", "minLength": 1},
        "servedAlias": {"type": "string"},
        "dtype": {"type": "string"},
        "maxModelLen": {"type": "integer", "minimum": 1},
        "trustRemoteCode": {"type": "boolean"}
      }
    },
    "server": {
      "type": "object",
      "properties": {
        "port": {"type": "integer", "minimum": 1, "maximum": 65535},
        "maxSeqs": {"type": "integer", "minimum": 1},
        "blockSize": {"type": "integer", "minimum": 1},
        "memoryUtilization": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "parallelism": {
      "type": "object",
      "properties": {
        "tensor": {"type": "integer", "minimum": 1},
        "pipeline": {"type": "integer", "minimum": 1}
      }
    },
    "resources": {
      "type": "object",
      "properties": {
        "acceleratorClass": {"type": "string"},
        "acceleratorCount": {"type": "integer", "minimum": 0}
      }
    }
  }
}`

// ValidateValues checks a values document against the engine values
// schema. The returned error lists every violation.
func ValidateValues(values map[string]interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(valuesSchema),
		gojsonschema.NewGoLoader(values),
	)
	if err != nil {
		return errors.Wrap(err, "cannot validate values document")
	}
	if result.Valid() {
		return nil
	}
	var sb strings.Builder
	for i, desc := range result.Errors() {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(desc.String())
	}
	return errors.Errorf("values document does not conform to the engine schema: %s", sb.String())
}
