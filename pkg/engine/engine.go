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

// Package engine models the serving engines that benchmark campaigns run
// against: their configuration, chart values, deterministic release
// names, and the content-addressed reuse bookkeeping.
package engine

import (
	"encoding/json"
	"strings"

	shellwords "github.com/mattn/go-shellwords"
	"github.com/pkg/errors"
)

// Spec is the structured serving configuration of an engine. Every field
// maps 1:1 onto a recognized submission option; everything else rides in
// AdditionalArgs untouched.
type Spec struct {
	ModelIdentifier   string  `json:"model_identifier"`
	AccelClass        string  `json:"accel_class,omitempty"`
	AccelCount        int     `json:"accel_count,omitempty"`
	ParallelTensor    int     `json:"parallel_tensor,omitempty"`
	ParallelPipeline  int     `json:"parallel_pipeline,omitempty"`
	MaxSeqs           int     `json:"max_seqs,omitempty"`
	BlockSize         int     `json:"block_size,omitempty"`
	MaxModelLen       int     `json:"max_model_len,omitempty"`
	MemoryUtilization float64 `json:"memory_utilization,omitempty"`
	Dtype             string  `json:"dtype,omitempty"`
	Quantization      string  `json:"quantization,omitempty"`
	TrustRemoteCode   bool    `json:"trust_remote_code,omitempty"`
	ServedAlias       string  `json:"served_alias,omitempty"`
	Host              string  `json:"host,omitempty"`
	Port              int     `json:"port,omitempty"`
	Namespace         string  `json:"namespace,omitempty"`
	AdditionalArgs    Args    `json:"additional_args,omitempty"`
}

// Args carries unrecognized engine flags verbatim. On the wire it is
// either a JSON object or a single command-line style string, which is
// tokenized into flag/value pairs.
type Args map[string]interface{}

// UnmarshalJSON accepts both the object and the raw string form.
func (a *Args) UnmarshalJSON(data []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err == nil {
		*a = m
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.New("additional_args must be an object or a string")
	}
	parsed, err := ParseArgs(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseArgs tokenizes a command-line style argument string into a flag
// map. "--flag value" and "--flag=value" both yield flag: value; a flag
// with no value yields flag: true.
func ParseArgs(raw string) (Args, error) {
	tokens, err := shellwords.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "unparsable additional args")
	}
	args := Args{}
	var pending string
	flush := func(value interface{}) {
		if pending != "" {
			args[pending] = value
			pending = ""
		}
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "-") {
			flush(true)
			key := strings.TrimLeft(tok, "-")
			if k, v, ok := strings.Cut(key, "="); ok {
				args[k] = v
				continue
			}
			pending = key
			continue
		}
		if pending == "" {
			return nil, errors.Errorf("argument %q has no flag", tok)
		}
		flush(tok)
	}
	flush(true)
	return args, nil
}

// Defaults mirrored from the engine server: a zero-valued field means
// "use the server default", so Complete writes these in before the spec
// is rendered or fingerprinted.
const (
	DefaultAccelClass  = "cpu"
	DefaultMaxSeqs     = 2
	DefaultBlockSize   = 16
	DefaultMaxModelLen = 512
	DefaultDtype       = "float32"
	DefaultServedAlias = "test-model-cpu"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
)

// Complete fills zero-valued fields with the engine server defaults and
// returns the spec for chaining. Parallelism degrees default to 1.
func (s *Spec) Complete() *Spec {
	if s.AccelClass == "" {
		s.AccelClass = DefaultAccelClass
	}
	if s.ParallelTensor == 0 {
		s.ParallelTensor = 1
	}
	if s.ParallelPipeline == 0 {
		s.ParallelPipeline = 1
	}
	if s.MaxSeqs == 0 {
		s.MaxSeqs = DefaultMaxSeqs
	}
	if s.BlockSize == 0 {
		s.BlockSize = DefaultBlockSize
	}
	if s.MaxModelLen == 0 {
		s.MaxModelLen = DefaultMaxModelLen
	}
	if s.Dtype == "" {
		s.Dtype = DefaultDtype
	}
	if s.ServedAlias == "" {
		s.ServedAlias = DefaultServedAlias
	}
	if s.Host == "" {
		s.Host = DefaultHost
	}
	if s.Port == 0 {
		s.Port = DefaultPort
	}
	return s
}
