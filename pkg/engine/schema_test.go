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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateValues(t *testing.T) {
	is := assert.New(t)

	// The generated document always validates.
	values, err := (&Spec{ModelIdentifier: "facebook/opt-125m"}).Values()
	require.NoError(t, err)
	is.NoError(ValidateValues(values))

	// A foreign but well-formed document validates too.
	foreign, err := ParseValues("image:\n  repository: vllm/vllm-openai\nreplicas: 1\n")
	require.NoError(t, err)
	is.NoError(ValidateValues(foreign))
}

func TestValidateValuesRejects(t *testing.T) {
	is := assert.New(t)

	// Empty documents cannot describe an engine.
	is.Error(ValidateValues(map[string]interface{}{}))

	// Known fields are type checked.
	is.Error(ValidateValues(map[string]interface{}{
		"model": map[string]interface{}{"identifier": ""},
	}))
	is.Error(ValidateValues(map[string]interface{}{
		"server": map[string]interface{}{"port": 99999},
	}))
	is.Error(ValidateValues(map[string]interface{}{
		"parallelism": map[string]interface{}{"tensor": 0},
	}))
}
