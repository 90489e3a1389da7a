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
)

var deleteHelp = `
This command removes campaign records. The controller refuses to delete
a processing campaign; --force overrides that and tears the campaign's
cluster resources down first.
`

type deleteOptions struct {
	force bool
}

func newDeleteCmd(out io.Writer) *cobra.Command {
	o := &deleteOptions{}

	cmd := &cobra.Command{
		Use:     "delete CAMPAIGN_ID...",
		Short:   "delete campaign records",
		Long:    deleteHelp,
		Aliases: []string{"del", "rm"},
		Args:    require.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			for _, id := range args {
				if err := c.Delete(cmd.Context(), id, o.force); err != nil {
					return err
				}
				fmt.Fprintf(out, "Campaign %s deleted\n", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&o.force, "force", false, "delete a processing campaign, tearing its resources down first")
	return cmd
}
