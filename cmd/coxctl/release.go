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
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/cli/require"
)

var releaseHelp = `
This command manages the engine releases the controller tracks.
`

var releaseUninstallHelp = `
This command uninstalls a tracked engine release by name. The controller
refuses while a campaign is running against the release; --force
uninstalls anyway.
`

func newReleaseCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release",
		Short: "manage tracked engine releases",
		Long:  releaseHelp,
	}
	cmd.AddCommand(newReleaseListCmd(out), newReleaseUninstallCmd(out))
	return cmd
}

func newReleaseListCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "list tracked engine releases",
		Aliases: []string{"ls"},
		Args:    require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			releases, err := c.Releases(cmd.Context())
			if err != nil {
				return err
			}
			if len(releases) == 0 {
				fmt.Fprintln(out, "No engine releases found.")
				return nil
			}
			table := uitable.New()
			table.AddRow("NAME", "NAMESPACE", "STATUS", "MODEL", "UPDATED")
			for _, r := range releases {
				updated := r.UpdatedAt
				if updated.IsZero() {
					updated = r.CreatedAt
				}
				table.AddRow(r.Name, r.Namespace, r.Status, r.Model, updated.Format(time.RFC3339))
			}
			_, err = fmt.Fprintln(out, table)
			return err
		},
	}
}

type releaseUninstallOptions struct {
	force bool
}

func newReleaseUninstallCmd(out io.Writer) *cobra.Command {
	o := &releaseUninstallOptions{}

	cmd := &cobra.Command{
		Use:     "uninstall RELEASE_NAME",
		Short:   "uninstall a tracked engine release",
		Long:    releaseUninstallHelp,
		Aliases: []string{"un", "delete"},
		Args:    require.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			if err := c.UninstallRelease(cmd.Context(), args[0], o.force); err != nil {
				return err
			}
			fmt.Fprintf(out, "Release %s uninstalled\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&o.force, "force", false, "uninstall even while a campaign is running against the release")
	return cmd
}
