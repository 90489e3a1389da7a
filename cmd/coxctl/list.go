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

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
)

var listHelp = `
This command lists the campaigns the controller knows about, newest
first within each lifecycle phase.
`

func newListCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "list campaigns",
		Long:    listHelp,
		Aliases: []string{"ls"},
		Args:    require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			campaigns, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(campaigns) == 0 {
				fmt.Fprintln(out, "No campaigns found.")
				return nil
			}
			return formatCampaignList(out, campaigns)
		},
	}
	return cmd
}

func formatCampaignList(out io.Writer, campaigns []*campaign.Campaign) error {
	table := uitable.New()
	table.AddRow("ID", "STATUS", "PRIORITY", "PROGRESS", "CREATED", "STEP")
	for _, c := range campaigns {
		table.AddRow(
			c.ID,
			c.Status,
			c.Priority,
			fmt.Sprintf("%d/%d", c.CompletedSteps, c.TotalSteps),
			c.CreatedAt.Format(time.RFC3339),
			c.CurrentStep,
		)
	}
	_, err := fmt.Fprintln(out, table)
	return err
}
