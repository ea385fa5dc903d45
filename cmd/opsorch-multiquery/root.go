package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsorch/opsorch-multiquery/api"
	"github.com/opsorch/opsorch-multiquery/config"
	"github.com/opsorch/opsorch-multiquery/dispatch"
	"github.com/opsorch/opsorch-multiquery/schema"
)

// RootCmd is the root Cobra command that gets called from the main func.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opsorch-multiquery",
		Short: "Run one log query across many backend environments.",
		Long: `opsorch-multiquery fans a log query out to a set of registered environments
and merges or groups the per-environment results.

Every flag can also be set with an OPSORCH_ prefixed environment variable
(e.g. OPSORCH_ENVIRONMENTS_FILE) or in the YAML file passed with --config.`,
		SilenceUsage: true,
	}

	loader, _, err := config.NewLoader(cmd.PersistentFlags())
	if err != nil {
		panic(err)
	}
	app := &App{loader: loader}

	cmd.AddCommand(
		serveCmd(app),
		queryCmd(app),
		testCmd(app),
		environmentsCmd(app),
	)
	return cmd
}

// Serve the HTTP API until SIGINT or SIGTERM. SIGHUP reloads the environments.
func serveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()

			promReg := prometheus.NewRegistry()
			promReg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			promReg.MustRegister(app.Dispatcher.PrometheusCollectors()...)

			srv, err := api.NewServer(app.Config, app.Dispatcher, app.Registry, app.Logger, promReg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go watchReload(ctx, app)

			app.Logger.Info("Listening", zap.String("addr", app.Config.Addr))
			return srv.ListenAndServe(ctx, app.Config.Addr)
		},
	}
}

func watchReload(ctx context.Context, app *App) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := app.ReloadEnvironments(); err != nil {
				app.Logger.Error("Reloading environments failed; keeping current set", zap.Error(err))
			}
		}
	}
}

// Run one query and print the aggregated result as JSON.
func queryCmd(app *App) *cobra.Command {
	var (
		query           string
		timeRange       string
		environments    []string
		mode            string
		parallelism     int
		timeout         time.Duration
		continueOnError bool
		aggregate       string
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a query across environments.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()

			tr, err := schema.ParseTimeRange(timeRange)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			res, err := app.Dispatcher.Dispatch(ctx, schema.QueryRequest{
				Query:                query,
				TimeRange:            tr,
				TargetEnvironmentIDs: environments,
				Mode:                 schema.Mode(mode),
				ParallelismLimit:     parallelism,
				PerCallTimeout:       schema.Duration(timeout),
				ContinueOnError:      continueOnError,
				Aggregate:            schema.Aggregation(aggregate),
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("no environment returned results")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "query text passed verbatim to every environment")
	cmd.Flags().StringVar(&timeRange, "time-range", schema.DefaultRelativeRange, "relative time range such as 15m, 24h or 7d")
	cmd.Flags().StringSliceVarP(&environments, "environments", "e", nil, "environment ids (default: all active)")
	cmd.Flags().StringVar(&mode, "mode", "", "single, parallel or sequential (default from --default-mode)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "concurrent calls in parallel mode (default from --default-parallelism)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-environment timeout (default from --default-timeout)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after an environment fails")
	cmd.Flags().StringVar(&aggregate, "aggregate", "", "merge or group (default from --default-aggregate)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

// Check that environments answer a trivial query.
func testCmd(app *App) *cobra.Command {
	var environments []string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Check connectivity to environments.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()

			res, err := app.Dispatcher.Dispatch(cmd.Context(), dispatch.ProbeRequest(environments))
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ENVIRONMENT\tSTATUS\tTIME\tERROR")
			failed := 0
			for _, r := range res.PerEnvironment {
				status := "ok"
				if !r.Success {
					status = string(r.ErrorKind)
					failed++
				}
				fmt.Fprintf(w, "%s\t%s\t%dms\t%s\n", r.EnvironmentID, status, r.ExecutionTimeMs, r.ErrorMessage)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d environments failed", failed, len(res.PerEnvironment))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&environments, "environments", "e", nil, "environment ids (default: all active)")
	return cmd
}

// List the registered environments.
func environmentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "environments",
		Short: "List registered environments.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return app.Init()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			defer app.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tREGION\tNAMESPACE\tACTIVE\tDEFAULT")
			for _, env := range app.Registry.Snapshot().ListEnvironments() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%t\n",
					env.ID, env.DisplayName(), env.Region, env.TenantScope.Namespace, env.IsActive, env.IsDefault)
			}
			return w.Flush()
		},
	}
}
