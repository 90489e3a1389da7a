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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
)

var priorityHelp = `
This command reranks a pending campaign. Priority is one of low, medium,
high, or urgent; a campaign that has already started cannot be reranked.
`

func newPriorityCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "priority CAMPAIGN_ID PRIORITY",
		Short: "rerank a pending campaign",
		Long:  priorityHelp,
		Args:  require.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := campaign.Priority(args[1])
			if !p.IsValid() {
				return errors.Errorf("invalid priority %q: use low, medium, high, or urgent", args[1])
			}
			c, err := controllerClient()
			if err != nil {
				return err
			}
			cmp, err := c.SetPriority(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Campaign %s is now priority %s\n", cmp.ID, cmp.Priority)
			return nil
		},
	}
}
