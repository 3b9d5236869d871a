package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"treasurycontrol/internal/app"
	"treasurycontrol/internal/observability"
	"treasurycontrol/internal/orchestrator"
	"treasurycontrol/internal/scheduler"
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run cycles on the configured schedule",
		Long: `Run cycles on the configured cron schedule until interrupted.

Prometheus metrics are served on api.metrics_addr. With leader.enabled set,
only the instance holding the per-asset lease executes a given tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScheduler(cmd.Context(), rootOpts)
		},
	}
}

func runScheduler(parent context.Context, rootOpts *rootOptions) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(rootOpts.ConfigPath)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.Log("treasury")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	orch, err := buildOrchestrator(a, metrics)
	if err != nil {
		return err
	}

	var gate scheduler.Gate
	if g, err := a.LeaderGate(); err != nil {
		return err
	} else if g != nil {
		gate = g
		log.WithField("holder", g.Holder()).Info("leader election enabled")
	}

	if a.Config.Reward.Enabled {
		if err := initListenerState(ctx, a); err != nil {
			return err
		}
	}

	sched, err := scheduler.New(scheduler.Config{
		Spec:    a.Config.Cycle.Schedule,
		AssetID: a.Config.Cycle.AssetID,
		Timeout: a.Config.Cycle.Timeout,
	}, orch, gate, a.Log("scheduler"))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Addr: a.Config.API.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	sched.Start(ctx)
	defer sched.Stop()

	return app.Serve(ctx, srv, log)
}

func newOnceCommand(rootOpts *rootOptions) *cobra.Command {
	var asset string

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Execute a single cycle and print its result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Bootstrap(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			defer a.Close()

			orch, err := buildOrchestrator(a, nil)
			if err != nil {
				return err
			}
			if asset == "" {
				asset = a.Config.Cycle.AssetID
			}

			ctx, cancel := context.WithTimeout(contextOrBackground(cmd.Context()), a.Config.Cycle.Timeout)
			defer cancel()

			result, runErr := orch.ExecuteCycle(ctx, asset)
			if result != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "asset to run the cycle for (defaults to cycle.asset_id)")
	return cmd
}

// buildOrchestrator attaches the optional event publisher. rec may be nil.
func buildOrchestrator(a *app.App, rec *observability.Metrics) (*orchestrator.Orchestrator, error) {
	var events orchestrator.Publisher
	pub, err := a.Publisher()
	if err != nil {
		a.Log("treasury").WithError(err).Warn("RabbitMQ unavailable, cycle events disabled")
	} else if pub != nil {
		events = pub
	}

	var recorder orchestrator.Recorder
	if rec != nil {
		recorder = rec
	}
	return a.Orchestrator(recorder, events)
}

func initListenerState(ctx context.Context, a *app.App) error {
	l, err := a.Listener()
	if err != nil {
		return fmt.Errorf("listener: %w", err)
	}
	st, err := l.Init(ctx)
	if err != nil {
		return fmt.Errorf("init listener state: %w", err)
	}
	a.Log("treasury").WithField("threshold", st.CurrentThreshold).Info("listener state ready")
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
