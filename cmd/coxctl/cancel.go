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

var cancelHelp = `
This command cancels a campaign. A pending campaign leaves the queue on
the spot; a processing one has its cancel flag raised and stops at the
next step boundary, after which its resources are cleaned up.
`

func newCancelCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel CAMPAIGN_ID",
		Short: "cancel a queued or running campaign",
		Long:  cancelHelp,
		Args:  require.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			cmp, err := c.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if cmp.Status == campaign.StatusCancelled {
				fmt.Fprintf(out, "Campaign %s cancelled\n", cmp.ID)
			} else {
				fmt.Fprintf(out, "Campaign %s will stop at the next step boundary\n", cmp.ID)
			}
			return nil
		},
	}
}
