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

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/coxswain-io/coxswain/pkg/campaign"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
	"github.com/coxswain-io/coxswain/pkg/cli/sanitize"
)

var statusHelp = `
This command shows one campaign in detail: its lifecycle phase, step
progress, the engine release it ran against, and the benchmark jobs it
created. Secret values inlined in benchmark manifests are hidden.

Use -o yaml for the full sanitized document.
`

type statusOptions struct {
	outfmt string
}

func newStatusCmd(out io.Writer) *cobra.Command {
	o := &statusOptions{}

	cmd := &cobra.Command{
		Use:     "status CAMPAIGN_ID",
		Short:   "show the status of a campaign",
		Long:    statusHelp,
		Aliases: []string{"get"},
		Args:    require.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			cmp, err := c.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := sanitize.HideCampaignSecrets(cmp); err != nil {
				return errors.Wrap(err, "hiding secret values")
			}
			return o.write(out, cmp)
		},
	}
	cmd.Flags().StringVarP(&o.outfmt, "output", "o", "", "output the status in the specified format (json or yaml)")
	return cmd
}

func (o *statusOptions) write(out io.Writer, c *campaign.Campaign) error {
	switch o.outfmt {
	case "yaml", "json":
		data, err := yaml.Marshal(c)
		if err != nil {
			return errors.Wrap(err, "encoding campaign")
		}
		if o.outfmt == "json" {
			if data, err = yaml.YAMLToJSON(data); err != nil {
				return errors.Wrap(err, "encoding campaign")
			}
		}
		_, err = fmt.Fprintf(out, "%s\n", data)
		return err
	case "":
	default:
		return errors.Errorf("unknown output format %q", o.outfmt)
	}

	fmt.Fprintf(out, "ID:       %s\n", c.ID)
	fmt.Fprintf(out, "STATUS:   %s\n", c.Status)
	fmt.Fprintf(out, "PRIORITY: %s\n", c.Priority)
	fmt.Fprintf(out, "PROGRESS: %d/%d\n", c.CompletedSteps, c.TotalSteps)
	fmt.Fprintf(out, "CREATED:  %s\n", c.CreatedAt.Format(time.RFC3339))
	if c.StartedAt != nil {
		fmt.Fprintf(out, "STARTED:  %s\n", c.StartedAt.Format(time.RFC3339))
	}
	if c.CompletedAt != nil {
		fmt.Fprintf(out, "FINISHED: %s\n", c.CompletedAt.Format(time.RFC3339))
	}
	if c.CurrentStep != "" {
		fmt.Fprintf(out, "STEP:     %s\n", c.CurrentStep)
	}
	if c.ReleaseID != "" {
		fmt.Fprintf(out, "ENGINE:   %s\n", c.ReleaseID)
	}
	if c.Error != "" {
		fmt.Fprintf(out, "ERROR:    %s\n", c.Error)
	}
	if len(c.Jobs) > 0 {
		fmt.Fprintln(out, "JOBS:")
		for _, j := range c.Jobs {
			state := string(j.State)
			if state == "" {
				state = "running"
			}
			fmt.Fprintf(out, "  %s/%s: %s\n", j.Namespace, j.Name, state)
		}
	}
	return nil
}
