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

package cli

import "fmt"

// MissingConfigError reports a required setting with no value.
type MissingConfigError struct {
	string
}

func (e MissingConfigError) Error() string {
	return fmt.Sprintf("missing config error: %s param missing from configuration", e.string)
}

// InvalidConfigError reports a setting whose value cannot work.
type InvalidConfigError struct {
	param  string
	reason string
}

func (e InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config error: %s %s", e.param, e.reason)
}

// Validate checks the settings a daemon needs before it starts serving
// and returns one error per problem found.
func (s *EnvSettings) Validate() []error {
	errs := make([]error, 0)

	switch s.Driver {
	case "memory", "configmap", "sql":
	case "":
		appendMissing(&errs, "Driver")
	default:
		appendInvalid(&errs, "Driver", fmt.Sprintf("must be one of memory, configmap, sql; got %q", s.Driver))
	}
	if s.Driver == "sql" && s.SQLConnectionString == "" {
		appendMissing(&errs, "SQLConnectionString")
	}

	if s.EngineNamespace == "" {
		appendMissing(&errs, "EngineNamespace")
	}
	if s.ChartCatalog == "" {
		appendMissing(&errs, "ChartCatalog")
	}

	if s.PollInterval <= 0 {
		appendInvalid(&errs, "PollInterval", "must be positive")
	}
	if s.EngineMaxFailures < 1 {
		appendInvalid(&errs, "EngineMaxFailures", "must be at least 1")
	}
	if s.EngineRetryDelay <= 0 {
		appendInvalid(&errs, "EngineRetryDelay", "must be positive")
	}
	if s.EngineTimeout <= 0 {
		appendInvalid(&errs, "EngineTimeout", "must be positive")
	}
	if s.JobMaxFailures < 1 {
		appendInvalid(&errs, "JobMaxFailures", "must be at least 1")
	}
	if s.JobRetryDelay <= 0 {
		appendInvalid(&errs, "JobRetryDelay", "must be positive")
	}
	if s.JobTimeout <= 0 {
		appendInvalid(&errs, "JobTimeout", "must be positive")
	}

	return errs
}

func appendMissing(errs *[]error, field string) {
	*errs = append(*errs, MissingConfigError{field})
}

func appendInvalid(errs *[]error, field, reason string) {
	*errs = append(*errs, InvalidConfigError{field, reason})
}
