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

/*Package cli describes the operating environment for the coxswain
binaries.

Every knob has a COXSWAIN_* environment default and a pflag binding, so
the daemons configure the same way in a container and on a workstation.
Kubernetes access goes through genericclioptions so the usual
kubeconfig/context/token flags behave the way kubectl users expect.
*/
package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"k8s.io/cli-runtime/pkg/genericclioptions"
)

// EnvSettings describes all of the environment settings.
type EnvSettings struct {
	namespace string
	config    *genericclioptions.ConfigFlags

	// KubeConfig is the path to the kubeconfig file.
	KubeConfig string
	// KubeContext is the name of the kubeconfig context.
	KubeContext string
	// Bearer KubeToken used for authentication.
	KubeToken string
	// Kubernetes API Server Endpoint for authentication.
	KubeAPIServer string
	// Debug indicates whether coxswain is running in debug mode.
	Debug bool

	// ControllerURL is the queue surface coxctl talks to.
	ControllerURL string
	// RunnerURL is the oarsman peer benchmark-job traffic goes through.
	// Empty means the controller talks to the cluster directly.
	RunnerURL string
	// Driver selects the campaign store backend: memory, configmap, sql.
	Driver string
	// SQLConnectionString configures the sql driver. Environment only,
	// it carries credentials.
	SQLConnectionString string
	// EngineNamespace is where engine releases are installed.
	EngineNamespace string
	// ChartCatalog is the directory holding the engine charts and their
	// catalog file.
	ChartCatalog string
	// CleanupPatterns gate which stray jobs a cleanup sweep may delete.
	CleanupPatterns []string
	// LockFile serializes controllers sharing one store. Empty disables
	// the lock.
	LockFile string
	// PollInterval between scheduler passes.
	PollInterval time.Duration

	// Engine readiness budget.
	EngineMaxFailures int
	EngineRetryDelay  time.Duration
	EngineTimeout     time.Duration

	// Benchmark job budget.
	JobMaxFailures int
	JobRetryDelay  time.Duration
	JobTimeout     time.Duration
}

func New() *EnvSettings {
	env := &EnvSettings{
		namespace:           os.Getenv("COXSWAIN_KUBE_NAMESPACE"),
		KubeContext:         os.Getenv("COXSWAIN_KUBECONTEXT"),
		KubeToken:           os.Getenv("COXSWAIN_KUBETOKEN"),
		KubeAPIServer:       os.Getenv("COXSWAIN_KUBEAPISERVER"),
		ControllerURL:       envOr("COXSWAIN_CONTROLLER_URL", "http://localhost:8001"),
		RunnerURL:           envOr("COXSWAIN_RUNNER_URL", "http://localhost:8002"),
		Driver:              envOr("COXSWAIN_DRIVER", "configmap"),
		SQLConnectionString: os.Getenv("COXSWAIN_SQL_CONNECTION_STRING"),
		EngineNamespace:     envOr("COXSWAIN_NAMESPACE", "engines"),
		ChartCatalog:        envOr("COXSWAIN_CHARTS", "charts"),
		CleanupPatterns:     envCSVOr("COXSWAIN_CLEANUP_PATTERNS", []string{"benchmark*"}),
		LockFile:            os.Getenv("COXSWAIN_LOCK_FILE"),
		PollInterval:        envDurationOr("COXSWAIN_POLL_INTERVAL", 30*time.Second),
		EngineMaxFailures:   envIntOr("COXSWAIN_ENGINE_MAX_FAILURES", 3),
		EngineRetryDelay:    envDurationOr("COXSWAIN_ENGINE_RETRY_DELAY", 30*time.Second),
		EngineTimeout:       envDurationOr("COXSWAIN_ENGINE_TIMEOUT", 10*time.Minute),
		JobMaxFailures:      envIntOr("COXSWAIN_JOB_MAX_FAILURES", 3),
		JobRetryDelay:       envDurationOr("COXSWAIN_JOB_RETRY_DELAY", time.Minute),
		JobTimeout:          envDurationOr("COXSWAIN_JOB_TIMEOUT", time.Hour),
	}
	env.Debug = envBoolOr("COXSWAIN_DEBUG", false)

	// bind to kubernetes config flags
	env.config = &genericclioptions.ConfigFlags{
		Namespace:   &env.namespace,
		Context:     &env.KubeContext,
		BearerToken: &env.KubeToken,
		APIServer:   &env.KubeAPIServer,
		KubeConfig:  &env.KubeConfig,
	}
	return env
}

// AddFlags binds flags to the given flagset.
func (s *EnvSettings) AddFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&s.namespace, "namespace", "n", s.namespace, "namespace scope for campaign storage")
	fs.StringVar(&s.KubeConfig, "kubeconfig", "", "path to the kubeconfig file")
	fs.StringVar(&s.KubeContext, "kube-context", s.KubeContext, "name of the kubeconfig context to use")
	fs.StringVar(&s.KubeToken, "kube-token", s.KubeToken, "bearer token used for authentication")
	fs.StringVar(&s.KubeAPIServer, "kube-apiserver", s.KubeAPIServer, "the address and the port for the Kubernetes API server")
	fs.BoolVar(&s.Debug, "debug", s.Debug, "enable verbose output")
	fs.StringVar(&s.ControllerURL, "controller", s.ControllerURL, "address of the coxswain queue surface")
	fs.StringVar(&s.RunnerURL, "runner", s.RunnerURL, "address of the oarsman runner peer, empty for direct cluster access")
	fs.StringVar(&s.Driver, "driver", s.Driver, "campaign store backend: memory, configmap, or sql")
	fs.StringVar(&s.EngineNamespace, "engine-namespace", s.EngineNamespace, "namespace engine releases are installed into")
	fs.StringVar(&s.ChartCatalog, "charts", s.ChartCatalog, "directory holding the engine chart catalog")
	fs.StringSliceVar(&s.CleanupPatterns, "cleanup-pattern", s.CleanupPatterns, "glob patterns of stray job names a cleanup may delete")
	fs.StringVar(&s.LockFile, "lock-file", s.LockFile, "lock file serializing controllers that share a store")
	fs.DurationVar(&s.PollInterval, "poll-interval", s.PollInterval, "time between scheduler passes")
}

// AddWaiterFlags binds the readiness budget flags. Only the controller
// daemon carries these.
func (s *EnvSettings) AddWaiterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&s.EngineMaxFailures, "engine-max-failures", s.EngineMaxFailures, "failed engine checks tolerated before giving up")
	fs.DurationVar(&s.EngineRetryDelay, "engine-retry-delay", s.EngineRetryDelay, "pause after a failed engine check")
	fs.DurationVar(&s.EngineTimeout, "engine-timeout", s.EngineTimeout, "wall-clock budget for engine readiness")
	fs.IntVar(&s.JobMaxFailures, "job-max-failures", s.JobMaxFailures, "failed job checks tolerated before giving up")
	fs.DurationVar(&s.JobRetryDelay, "job-retry-delay", s.JobRetryDelay, "pause after a failed job check")
	fs.DurationVar(&s.JobTimeout, "job-timeout", s.JobTimeout, "wall-clock budget for one benchmark job")
}

func envOr(name, def string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return def
}

func envBoolOr(name string, def bool) bool {
	if name == "" {
		return def
	}
	envVal := os.Getenv(name)
	if envVal == "" {
		return def
	}
	ret, err := strconv.ParseBool(envVal)
	if err != nil {
		return def
	}
	return ret
}

func envIntOr(name string, def int) int {
	if name == "" {
		return def
	}
	envVal := os.Getenv(name)
	if envVal == "" {
		return def
	}
	ret, err := strconv.Atoi(envVal)
	if err != nil {
		return def
	}
	return ret
}

// envDurationOr reads a duration from the environment. Bare numbers are
// taken as seconds, matching how these knobs were tuned historically.
func envDurationOr(name string, def time.Duration) time.Duration {
	envVal := os.Getenv(name)
	if envVal == "" {
		return def
	}
	if secs, err := strconv.Atoi(envVal); err == nil {
		return time.Duration(secs) * time.Second
	}
	ret, err := time.ParseDuration(envVal)
	if err != nil {
		return def
	}
	return ret
}

func envCSVOr(name string, def []string) []string {
	envVal := os.Getenv(name)
	if envVal == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(envVal, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// EnvVars lists the environment the settings were read from, rendered
// back out. coxctl env prints this.
func (s *EnvSettings) EnvVars() map[string]string {
	envvars := map[string]string{
		"COXSWAIN_BIN":                 os.Args[0],
		"COXSWAIN_DEBUG":               fmt.Sprint(s.Debug),
		"COXSWAIN_CONTROLLER_URL":      s.ControllerURL,
		"COXSWAIN_RUNNER_URL":          s.RunnerURL,
		"COXSWAIN_DRIVER":              s.Driver,
		"COXSWAIN_NAMESPACE":           s.EngineNamespace,
		"COXSWAIN_CHARTS":              s.ChartCatalog,
		"COXSWAIN_CLEANUP_PATTERNS":    strings.Join(s.CleanupPatterns, ","),
		"COXSWAIN_LOCK_FILE":           s.LockFile,
		"COXSWAIN_POLL_INTERVAL":       s.PollInterval.String(),
		"COXSWAIN_ENGINE_MAX_FAILURES": strconv.Itoa(s.EngineMaxFailures),
		"COXSWAIN_ENGINE_RETRY_DELAY":  s.EngineRetryDelay.String(),
		"COXSWAIN_ENGINE_TIMEOUT":      s.EngineTimeout.String(),
		"COXSWAIN_JOB_MAX_FAILURES":    strconv.Itoa(s.JobMaxFailures),
		"COXSWAIN_JOB_RETRY_DELAY":     s.JobRetryDelay.String(),
		"COXSWAIN_JOB_TIMEOUT":         s.JobTimeout.String(),
		"COXSWAIN_KUBE_NAMESPACE":      s.Namespace(),

		// populated from coxswain flags and not kubeconfig.
		"COXSWAIN_KUBECONTEXT":   s.KubeContext,
		"COXSWAIN_KUBETOKEN":     s.KubeToken,
		"COXSWAIN_KUBEAPISERVER": s.KubeAPIServer,
	}
	if s.KubeConfig != "" {
		envvars["KUBECONFIG"] = s.KubeConfig
	}
	return envvars
}

// SetNamespace overrides the storage namespace.
func (s *EnvSettings) SetNamespace(namespace string) {
	s.namespace = namespace
}

// Namespace gets the storage namespace from the configuration.
func (s *EnvSettings) Namespace() string {
	if s.namespace != "" {
		return s.namespace
	}
	if ns, _, err := s.config.ToRawKubeConfigLoader().Namespace(); err == nil {
		return ns
	}
	return "default"
}

// RESTClientGetter gets the kubeconfig from EnvSettings.
func (s *EnvSettings) RESTClientGetter() genericclioptions.RESTClientGetter {
	return s.config
}
