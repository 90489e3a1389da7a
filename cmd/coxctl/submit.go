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

package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"helm.sh/helm/v3/pkg/getter"
	"sigs.k8s.io/yaml"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/cli/files"
	"github.com/coxswain-io/coxswain/pkg/cli/values"
)

var submitHelp = `
This command queues a benchmark campaign.

Benchmark job manifests are given as file arguments, or named with
--benchmark name=path when the progress report should label them. The
engine values document comes from -f/--values files and --set flags,
exactly as for a chart install:

    coxctl submit latency.yaml throughput.yaml \
        -f engine-values.yaml --set model.replicas=2

A campaign aimed at an engine that is already running skips the engine
deployment:

    coxctl submit --skip-engine --benchmark smoke=smoke.yaml
`

type submitOptions struct {
	valueOpts  values.Options
	benchmarks []string
	priority   string
	skipEngine bool
}

func newSubmitCmd(out io.Writer) *cobra.Command {
	o := &submitOptions{}

	cmd := &cobra.Command{
		Use:   "submit [MANIFEST...]",
		Short: "queue a benchmark campaign",
		Long:  submitHelp,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, out, args)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&o.valueOpts.ValueFiles, "values", "f", nil, "specify engine values in a YAML file (can specify multiple)")
	f.StringArrayVar(&o.valueOpts.Values, "set", nil, "set engine values on the command line (can specify multiple or separate values with commas: key1=val1,key2=val2)")
	f.StringArrayVar(&o.valueOpts.StringValues, "set-string", nil, "set STRING engine values on the command line")
	f.StringArrayVar(&o.valueOpts.FileValues, "set-file", nil, "set engine values from respective files specified via the command line")
	f.StringArrayVar(&o.valueOpts.JSONValues, "set-json", nil, "set JSON engine values on the command line")
	f.StringArrayVar(&o.valueOpts.LiteralValues, "set-literal", nil, "set a literal STRING engine value on the command line")
	f.StringArrayVar(&o.benchmarks, "benchmark", nil, "named benchmark manifest as name=path (can specify multiple)")
	f.StringVar(&o.priority, "priority", string(campaign.DefaultPriority), "scheduling class: low, medium, high, or urgent")
	f.BoolVar(&o.skipEngine, "skip-engine", false, "run against an engine that already exists instead of deploying one")

	return cmd
}

func (o *submitOptions) run(cmd *cobra.Command, out io.Writer, args []string) error {
	benchmarks, err := o.collectBenchmarks(args)
	if err != nil {
		return err
	}
	if len(benchmarks) == 0 {
		return errors.New("a campaign needs at least one benchmark manifest")
	}

	cmp := &campaign.Campaign{
		SkipEngine: o.skipEngine,
		Priority:   campaign.Priority(o.priority),
		Benchmarks: benchmarks,
	}

	if !o.skipEngine {
		merged, err := o.valueOpts.MergeValues(getter.Providers{})
		if err != nil {
			return err
		}
		if len(merged) == 0 {
			return errors.New("an engine deployment needs values; use -f/--set or --skip-engine")
		}
		raw, err := yaml.Marshal(merged)
		if err != nil {
			return errors.Wrap(err, "encoding engine values")
		}
		cmp.ValuesText = string(raw)
	}

	c, err := controllerClient()
	if err != nil {
		return err
	}
	stored, err := c.Submit(cmd.Context(), cmp)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Campaign %s submitted (priority %s, %d steps)\n", stored.ID, stored.Priority, stored.TotalSteps)
	return nil
}

// collectBenchmarks reads the positional manifests first, then the
// --benchmark name=path pairs sorted by name so a submission is stable.
func (o *submitOptions) collectBenchmarks(args []string) ([]campaign.BenchmarkSpec, error) {
	var specs []campaign.BenchmarkSpec
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading benchmark manifest %s", path)
		}
		specs = append(specs, campaign.BenchmarkSpec{Manifest: string(raw)})
	}

	named := map[string]string{}
	for _, pair := range o.benchmarks {
		if err := files.ParseIntoString(pair, named); err != nil {
			return nil, err
		}
	}
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		raw, err := os.ReadFile(named[name])
		if err != nil {
			return nil, errors.Wrapf(err, "reading benchmark manifest %s", named[name])
		}
		specs = append(specs, campaign.BenchmarkSpec{Name: name, Manifest: string(raw)})
	}
	return specs, nil
}
