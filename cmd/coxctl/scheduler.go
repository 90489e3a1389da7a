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
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/coxswain-io/coxswain/pkg/cli/require"
	"github.com/coxswain-io/coxswain/pkg/scheduler"
)

var schedulerHelp = `
This command controls the controller's scheduling loop: the poller that
claims the next pending campaign and runs it.

A paused loop keeps ticking but skips its passes; a stopped loop does
nothing until started again. 'trigger' forces a pass right now and
fails with a conflict when one is already in flight.
`

func newSchedulerCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "control the scheduling loop",
		Long:  schedulerHelp,
	}

	simple := func(use, short string, do func(*cobra.Command) error, done string) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  require.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := do(cmd); err != nil {
					return err
				}
				fmt.Fprintln(out, done)
				return nil
			},
		}
	}

	cmd.AddCommand(
		simple("start", "start the scheduling loop", func(cmd *cobra.Command) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			return c.SchedulerStart(cmd.Context())
		}, "Scheduler started"),
		simple("stop", "stop the scheduling loop", func(cmd *cobra.Command) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			return c.SchedulerStop(cmd.Context())
		}, "Scheduler stopped"),
		simple("pause", "pause the scheduling loop", func(cmd *cobra.Command) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			return c.SchedulerPause(cmd.Context())
		}, "Scheduler paused"),
		simple("resume", "resume a paused scheduling loop", func(cmd *cobra.Command) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			return c.SchedulerResume(cmd.Context())
		}, "Scheduler resumed"),
		simple("trigger", "force a scheduling pass right now", func(cmd *cobra.Command) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			return c.SchedulerTrigger(cmd.Context())
		}, "Scheduling pass triggered"),
		newSchedulerStatusCmd(out),
		newSchedulerConfigCmd(out),
	)
	return cmd
}

func newSchedulerStatusCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show the scheduling loop's state",
		Args:  require.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := controllerClient()
			if err != nil {
				return err
			}
			status, err := c.SchedulerStatus(cmd.Context())
			if err != nil {
				return err
			}
			writeSchedulerStatus(out, status)
			return nil
		},
	}
}

func newSchedulerConfigCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "config POLL_SECONDS",
		Short: "retune the poll interval",
		Args:  require.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secs, err := strconv.Atoi(args[0])
			if err != nil || secs <= 0 {
				return errors.Errorf("poll interval must be a positive number of seconds, got %q", args[0])
			}
			c, err := controllerClient()
			if err != nil {
				return err
			}
			status, err := c.SchedulerConfig(cmd.Context(), secs)
			if err != nil {
				return err
			}
			if status.PollInterval != secs {
				fmt.Fprintf(out, "Poll interval clamped to %ds\n", status.PollInterval)
			}
			writeSchedulerStatus(out, status)
			return nil
		},
	}
}

func writeSchedulerStatus(out io.Writer, s *scheduler.Status) {
	state := "stopped"
	switch {
	case s.Running && s.Paused:
		state = "paused"
	case s.Running:
		state = "running"
	}
	fmt.Fprintf(out, "STATE:     %s\n", state)
	fmt.Fprintf(out, "INTERVAL:  %ds\n", s.PollInterval)
	fmt.Fprintf(out, "IN FLIGHT: %t\n", s.TickInFlight)
	if s.LastTick != nil {
		fmt.Fprintf(out, "LAST TICK: %s\n", s.LastTick.Format(time.RFC3339))
	}
	if s.LastError != "" {
		fmt.Fprintf(out, "LAST ERROR: %s (%d consecutive)\n", s.LastError, s.ConsecutiveErrors)
	}
}
