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

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
)

var queueHelp = `
This command inspects the campaign queue as a whole.
`

var queueStatusHelp = `
This command prints the queue counters grouped by lifecycle phase, plus
the pending campaigns in pick order: the first pending entry is what the
scheduler will claim on its next pass.
`

func newQueueCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "inspect the campaign queue",
		Long:  queueHelp,
	}
	cmd.AddCommand(newQueueStatusCmd(out))
	return cmd
}

func newQueueStatusCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show queue counters and pick order",
		Long:  queueStatusHelp,
		Args:  require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			summary, err := c.QueueStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "TOTAL:      %d\n", summary.Total)
			for _, s := range []campaign.Status{
				campaign.StatusPending,
				campaign.StatusProcessing,
				campaign.StatusCompleted,
				campaign.StatusFailed,
				campaign.StatusCancelled,
			} {
				fmt.Fprintf(out, "%-11s %d\n", fmt.Sprintf("%s:", s), summary.Counts[s])
			}
			if len(summary.Processing) > 0 {
				fmt.Fprintf(out, "IN FLIGHT:  %s\n", summary.Processing[0])
			}
			if len(summary.Pending) > 0 {
				fmt.Fprintln(out, "NEXT UP:")
				for i, id := range summary.Pending {
					fmt.Fprintf(out, "  %d. %s\n", i+1, id)
				}
			}
			return nil
		},
	}
}
