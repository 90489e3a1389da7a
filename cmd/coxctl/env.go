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
	"sort"

	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/cli/require"
)

var envHelp = `
Env prints out all the environment information in use by coxswain.
`

func newEnvCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "coxswain client environment information",
		Long:  envHelp,
		Args:  require.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			envVars := settings.EnvVars()

			// Sort the variables by alphabetical order.
			// This allows for a constant output across calls to 'coxctl env'.
			var keys []string
			for k := range envVars {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			for _, k := range keys {
				fmt.Fprintf(out, "%s=\"%s\"\n", k, envVars[k])
			}
		},
	}
}
