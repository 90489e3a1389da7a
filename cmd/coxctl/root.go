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
	"io"

	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/cli"
	"github.com/coxswain-io/coxswain/pkg/client"
)

var globalUsage = `The coxswain operator CLI.

Common actions for coxctl:

- coxctl submit:    queue a benchmark campaign
- coxctl list:      list the campaigns the controller knows about
- coxctl status:    show one campaign in detail
- coxctl cancel:    cancel a queued or running campaign

coxctl talks to the controller named by $COXSWAIN_CONTROLLER_URL or
--controller.
`

var settings = cli.New()

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "coxctl",
		Short:        "the coxswain operator CLI",
		Long:         globalUsage,
		SilenceUsage: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&settings.ControllerURL, "controller", settings.ControllerURL, "address of the coxswain controller")
	flags.BoolVar(&settings.Debug, "debug", settings.Debug, "enable verbose output")

	cmd.AddCommand(
		newSubmitCmd(out),
		newListCmd(out),
		newStatusCmd(out),
		newCancelCmd(out),
		newDeleteCmd(out),
		newPriorityCmd(out),
		newQueueCmd(out),
		newSchedulerCmd(out),
		newReleaseCmd(out),
		newReuseCmd(out),
		newEnvCmd(out),
		newVersionCmd(out),
	)
	return cmd
}

// controllerClient builds the queue API client from the settings.
func controllerClient() (*client.Client, error) {
	return client.NewClient(settings.ControllerURL)
}
