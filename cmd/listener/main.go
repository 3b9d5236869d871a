package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"treasurycontrol/internal/app"
	"treasurycontrol/internal/listener"
	"treasurycontrol/internal/observability"
	"treasurycontrol/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	a, err := app.Bootstrap(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to bootstrap")
	}
	defer a.Close()
	log := a.Log("listener-worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, a, log); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("listener stopped")
	}
	log.Info("listener stopped")
}

func run(ctx context.Context, a *app.App, log *logrus.Entry) error {
	cfg := a.Config
	l, err := a.Listener()
	if err != nil {
		return err
	}
	st, err := l.Init(ctx)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"asset":     cfg.Cycle.AssetID,
		"threshold": st.CurrentThreshold,
		"count":     st.CurrentCount,
	}).Info("listener state ready")

	reg := prometheus.NewRegistry()
	sink := &meteredSink{next: l, metrics: observability.NewMetrics(reg), log: log}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Listener.EnableWebsocket {
		src, err := listener.NewWebsocketSource(cfg.Solana.WSURL, cfg.Cycle.AssetID, listener.WebsocketOptions{
			Commitment:     cfg.Solana.Commitment,
			ReconnectDelay: cfg.Listener.ReconnectDelay,
		}, log)
		if err != nil {
			return err
		}
		g.Go(func() error { return src.Run(ctx, sink) })
	}

	if cfg.Listener.EnableQueue {
		conn, err := a.Rabbit()
		if err != nil {
			return err
		}
		consumer, err := config.NewConsumer(conn, cfg.RabbitMQ.TradesQueue, log)
		if err != nil {
			return err
		}
		defer consumer.Close()
		src := listener.NewQueueSource(consumer, cfg.Cycle.AssetID, log)
		g.Go(func() error { return src.Run(ctx, sink) })
	}

	if !cfg.Listener.EnableWebsocket && !cfg.Listener.EnableQueue {
		return errors.New("no trade source enabled: set listener.enable_websocket or listener.enable_queue")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(reg))
	srv := &http.Server{Addr: cfg.API.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error { return app.Serve(ctx, srv, log) })

	return g.Wait()
}
