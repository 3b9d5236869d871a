package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"treasurycontrol/internal/handlers"
	"treasurycontrol/internal/middleware"
)

type Options struct {
	AllowedOrigins []string
	RateLimit      middleware.RateLimiterConfig
	// Metrics, when set, is mounted on /metrics.
	Metrics http.Handler
}

// SetupRouter initializes the gin engine with the dashboard routes.
func SetupRouter(d *handlers.Dashboard, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", d.Health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r.Use(middleware.CORS(opts.AllowedOrigins))
	if opts.RateLimit.RequestsPerSecond > 0 {
		r.Use(middleware.RateLimiterMiddleware(opts.RateLimit))
	}

	SetupCycleRoutes(r, d)
	SetupActivityRoutes(r, d)
	return r
}

// SetupCycleRoutes sets up the cycle and metrics views.
func SetupCycleRoutes(r *gin.Engine, d *handlers.Dashboard) {
	cycles := r.Group("/cycles")
	{
		cycles.GET("", d.ListCycles)
		cycles.GET("/:id", d.GetCycle)
	}
	r.GET("/metrics/summary", d.MetricsSummary)
	r.GET("/reconcile", d.Reconcile)
}

// SetupActivityRoutes sets up the listener, trade and reward views.
func SetupActivityRoutes(r *gin.Engine, d *handlers.Dashboard) {
	r.GET("/listener", d.ListenerState)
	r.GET("/trades/recent", d.RecentTrades)
	r.GET("/rewards/recent", d.RecentRewards)
}
