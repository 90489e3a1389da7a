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

// Coxswain is the benchmark campaign controller: it owns the campaign
// queue, installs inference engines, runs benchmark jobs in priority
// order, and serves the queue API that coxctl talks to.
package main // import "github.com/coxswain-io/coxswain/cmd/coxswain"

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
	"k8s.io/client-go/kubernetes"
	"k8s.io/klog/v2"

	"github.com/coxswain-io/coxswain/internal/logging"
	"github.com/coxswain-io/coxswain/internal/version"
	"github.com/coxswain-io/coxswain/pkg/action"
	"github.com/coxswain-io/coxswain/pkg/cli"
	"github.com/coxswain-io/coxswain/pkg/cli/require"
	"github.com/coxswain-io/coxswain/pkg/engine"
	"github.com/coxswain-io/coxswain/pkg/kube"
	"github.com/coxswain-io/coxswain/pkg/runner"
	"github.com/coxswain-io/coxswain/pkg/scheduler"
	"github.com/coxswain-io/coxswain/pkg/storage"
	"github.com/coxswain-io/coxswain/pkg/storage/driver"
)

const globalUsage = `The coxswain benchmark campaign controller.

Coxswain keeps the campaign queue, deploys inference engines, runs
benchmark jobs in priority order, and cleans up after itself. It serves
the queue API on --port; coxctl is the usual way to talk to it.
`

const shutdownGrace = 10 * time.Second

var settings = cli.New()

func newRootCmd(out *os.File) *cobra.Command {
	var (
		port      int
		syncEvery time.Duration
	)
	cmd := &cobra.Command{
		Use:          "coxswain",
		Short:        "The coxswain benchmark campaign controller.",
		Long:         globalUsage,
		Args:         require.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), out, port, syncEvery)
		},
	}
	flags := cmd.PersistentFlags()
	settings.AddFlags(flags)
	settings.AddWaiterFlags(flags)
	flags.IntVar(&port, "port", 8001, "port to listen on")
	flags.DurationVar(&syncEvery, "sync-every", scheduler.DefaultSyncEvery, "cadence of engine release reconciliation")
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

func run(ctx context.Context, out *os.File, port int, syncEvery time.Duration) error {
	slog.SetDefault(logging.NewLogger(func() bool { return settings.Debug }))

	if errs := settings.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return errors.Errorf("%d configuration problem(s)", len(errs))
	}

	client := kube.New(settings.RESTClientGetter())
	if err := client.IsReachable(); err != nil {
		return errors.Wrap(err, "cluster is not reachable")
	}

	store, err := newStore()
	if err != nil {
		return err
	}

	cfg := &action.Configuration{
		Store:      store,
		KubeClient: client,
		Log: func(format string, v ...interface{}) {
			slog.Info(fmt.Sprintf(format, v...))
		},
	}
	if settings.RunnerURL != "" {
		peer, err := runner.New(settings.RunnerURL)
		if err != nil {
			return err
		}
		cfg.Runner = peer
		slog.Info("benchmark jobs routed through runner", "url", settings.RunnerURL)
	}

	catalog, err := engine.LoadCatalog(settings.ChartCatalog)
	if err != nil {
		// Campaigns that skip engine deployment still work without a
		// catalog, so a missing one degrades instead of aborting.
		slog.Warn("engine chart catalog unavailable", "dir", settings.ChartCatalog, "err", err)
		catalog = nil
	}

	exec := action.NewProcessNext(cfg)
	exec.Namespace = settings.EngineNamespace
	exec.Catalog = catalog
	exec.Patterns = settings.CleanupPatterns
	exec.EngineRetryDelay = settings.EngineRetryDelay
	exec.EngineTimeout = settings.EngineTimeout
	exec.EngineMaxFailures = settings.EngineMaxFailures
	exec.JobRetryDelay = settings.JobRetryDelay
	exec.JobTimeout = settings.JobTimeout
	exec.JobMaxFailures = settings.JobMaxFailures

	sync := action.NewSyncReleases(cfg)
	sync.Namespace = settings.EngineNamespace

	sched := scheduler.New(exec, scheduler.Options{
		Interval:  settings.PollInterval,
		LockPath:  settings.LockFile,
		SyncEvery: syncEvery,
		Sync: func(ctx context.Context) error {
			_, err := sync.Run(ctx)
			return err
		},
		Log: cfg.Log,
	})

	ctrl := &controller{
		cfg:       cfg,
		sched:     sched,
		driver:    settings.Driver,
		namespace: settings.EngineNamespace,
		patterns:  settings.CleanupPatterns,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sched.Start(ctx); err != nil {
		return err
	}

	web := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: ctrl.handler(out),
	}
	slog.Info("coxswain starting",
		"version", version.GetVersion(),
		"address", web.Addr,
		"driver", settings.Driver,
		"engine_namespace", settings.EngineNamespace)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := web.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("coxswain shutting down")
		sched.Stop()
		shctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return web.Shutdown(shctx)
	})
	return g.Wait()
}

// newStore assembles the campaign store behind the configured driver.
func newStore() (*storage.Storage, error) {
	logf := func(format string, v ...interface{}) {
		slog.Info(fmt.Sprintf(format, v...))
	}
	switch settings.Driver {
	case "memory":
		return storage.Init(driver.NewMemory()), nil
	case "configmap":
		restConfig, err := settings.RESTClientGetter().ToRESTConfig()
		if err != nil {
			return nil, errors.Wrap(err, "loading kubeconfig for the configmap driver")
		}
		clientset, err := kubernetes.NewForConfig(restConfig)
		if err != nil {
			return nil, errors.Wrap(err, "building the configmap driver client")
		}
		return storage.Init(driver.NewConfigMaps(clientset.CoreV1().ConfigMaps(settings.Namespace()))), nil
	case "sql":
		d, err := driver.NewSQL(settings.SQLConnectionString, logf)
		if err != nil {
			return nil, errors.Wrap(err, "connecting the sql driver")
		}
		return storage.Init(d), nil
	}
	return nil, errors.Errorf("unknown storage driver %q", settings.Driver)
}

func main() {
	cmd := newRootCmd(os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
