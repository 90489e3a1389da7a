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

	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/cli/require"
	"github.com/coxswain-io/coxswain/pkg/client"
)

var reuseHelp = `
This command shows the values-reuse record: the fingerprint of the last
engine values document the controller installed, and the release the
fingerprint maps to. A campaign whose values hash to the same
fingerprint reuses that release instead of installing a new one.
`

func newReuseCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "reuse",
		Short: "show the engine values-reuse record",
		Long:  reuseHelp,
		Args:  require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			record, err := c.Reuse(cmd.Context())
			if client.IsNotFound(err) {
				fmt.Fprintln(out, "No reuse record: no engine install has completed yet.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "FINGERPRINT: %s\n", record.Fingerprint)
			fmt.Fprintf(out, "RELEASE:     %s\n", record.ReleaseName)
			fmt.Fprintf(out, "NAMESPACE:   %s\n", record.Namespace)
			return nil
		},
	}
}
