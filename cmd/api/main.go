package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"treasurycontrol/internal/app"
	"treasurycontrol/internal/handlers"
	"treasurycontrol/internal/middleware"
	"treasurycontrol/internal/observability"
	"treasurycontrol/internal/routes"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	a, err := app.Bootstrap(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to bootstrap")
	}
	defer a.Close()
	log := a.Log("api")

	if a.Config.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	dashboard := handlers.NewDashboard(a.Stores, a.Config.Cycle.AssetID, log)
	r := routes.SetupRouter(dashboard, routes.Options{
		AllowedOrigins: a.Config.API.AllowedOrigins,
		RateLimit: middleware.RateLimiterConfig{
			RequestsPerSecond: a.Config.API.RateLimitRPS,
			Burst:             a.Config.API.RateLimitBurst,
		},
		Metrics: observability.Handler(nil),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: a.Config.API.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := app.Serve(ctx, srv, log); err != nil {
		log.WithError(err).Fatal("api server failed")
	}
}
