package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/infra/config"
	"github.com/arklim/grc-obligations/internal/infra/security"
	"github.com/arklim/grc-obligations/internal/transport/http/handlers"
	"github.com/arklim/grc-obligations/internal/transport/http/middleware"
	"github.com/arklim/grc-obligations/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Obligations *usecase.ObligationService
	Badges      *usecase.BadgeService
	Calendar    port.QuarterCalendar
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Services    ServiceSet
	Verifier    *security.GatewayTokenVerifier
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	if httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{}); err != nil {
		deps.Logger.Warn("http metrics disabled", zap.Error(err))
	} else {
		r.Use(httpMetrics.Handler())
	}

	authMiddleware := middleware.RequireAuth(deps.Verifier)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(authMiddleware)
	{
		obligationHandler := handlers.NewObligationHandler(deps.Services.Obligations)

		obligations := api.Group("/obligations")
		obligations.GET("", obligationHandler.List)
		obligations.GET("/:id", obligationHandler.Get)
		obligations.GET("/:id/effective-status", obligationHandler.EffectiveStatus)
		obligations.PATCH("/:id", middleware.RequireSuperUser(), obligationHandler.Patch)
		obligations.PUT("/:id/updates/:year/:quarter", middleware.RequireChampion(), obligationHandler.RecordStatus)

		submitChain := append(buildBatchMiddlewares(deps, "obligation_submit_ip", deps.Config.RateLimit.SubmitMaxAttempts),
			middleware.RequireChampion(), obligationHandler.Submit)
		obligations.POST("/submit", submitChain...)

		approveChain := append(buildBatchMiddlewares(deps, "obligation_approve_ip", deps.Config.RateLimit.ApproveMaxAttempts),
			middleware.RequireSuperUser(), obligationHandler.Approve)
		obligations.POST("/approve", approveChain...)

		badgeHandler := handlers.NewBadgeHandler(deps.Services.Badges)
		api.GET("/badges", badgeHandler.Counts)

		if deps.Services.Calendar != nil {
			calendarHandler := handlers.NewCalendarHandler(deps.Services.Calendar)
			api.GET("/calendar/current-quarter", calendarHandler.CurrentQuarter)
		}
	}

	return r
}

func buildBatchMiddlewares(deps Dependencies, name string, limit int) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
