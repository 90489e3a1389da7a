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

// Oarsman is the benchmark job runner: the process that applies
// benchmark manifests to the cluster and reports job status back to the
// coxswain controller.
package main // import "github.com/coxswain-io/coxswain/cmd/oarsman"

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/coxswain-io/coxswain/internal/logging"
	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/cli"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
	"github.com/coxswain-io/coxswain/pkg/kube"
)

const globalUsage = `The coxswain benchmark job runner.

Oarsman applies benchmark manifests to the cluster on behalf of a
coxswain controller and answers its job status polls. It is the only
process in a split deployment that needs write access to the benchmark
namespaces.
`

// shutdownGrace is how long in-flight requests get to finish once a
// shutdown signal arrives.
const shutdownGrace = 10 * time.Second

var settings = cli.New()

func newRootCmd(out *os.File) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:          "oarsman",
		Short:        "The coxswain benchmark job runner.",
		Long:         globalUsage,
		Args:         require.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), out, port)
		},
	}
	flags := cmd.PersistentFlags()
	settings.AddFlags(flags)
	flags.IntVar(&port, "port", 8002, "port to listen on")
	addKlogFlags(flags)
	return cmd
}

// addKlogFlags adds flags from k8s.io/klog, hidden to keep the help
// text readable.
func addKlogFlags(fs *pflag.FlagSet) {
	local := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(local)
	local.VisitAll(func(fl *flag.Flag) {
		fl.Name = strings.ReplaceAll(fl.Name, "_", "-")
		if fs.Lookup(fl.Name) != nil {
			return
		}
		newflag := pflag.PFlagFromGoFlag(fl)
		newflag.Hidden = true
		fs.AddFlag(newflag)
	})
}

func run(ctx context.Context, out *os.File, port int) error {
	slog.SetDefault(logging.NewLogger(func() bool { return settings.Debug }))

	client := kube.New(settings.RESTClientGetter())
	if err := client.IsReachable(); err != nil {
		return errors.Wrap(err, "cluster is not reachable")
	}

	srv := &server{
		client:    client,
		namespace: settings.Namespace(),
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	web := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.handler(out),
	}
	slog.Info("oarsman starting", "version", version.GetVersion(), "address", web.Addr, "namespace", srv.namespace)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := web.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("oarsman shutting down")
		shctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return web.Shutdown(shctx)
	})
	return g.Wait()
}

func main() {
	cmd := newRootCmd(os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
