package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/grc-obligations/internal/core/port"
	"github.com/arklim/grc-obligations/internal/infra/config"
	"github.com/arklim/grc-obligations/internal/infra/database"
	kafkainfra "github.com/arklim/grc-obligations/internal/infra/kafka"
	"github.com/arklim/grc-obligations/internal/infra/logger"
	redisinfra "github.com/arklim/grc-obligations/internal/infra/redis"
	"github.com/arklim/grc-obligations/internal/infra/security"
	"github.com/arklim/grc-obligations/internal/infra/telemetry"
	postgresrepo "github.com/arklim/grc-obligations/internal/repository/postgres"
	redisrepo "github.com/arklim/grc-obligations/internal/repository/redis"
	"github.com/arklim/grc-obligations/internal/transport/http/middleware"
	"github.com/arklim/grc-obligations/internal/transport/http/routes"
	"github.com/arklim/grc-obligations/internal/usecase"
)

type Application struct {
	cfg        *config.AppConfig
	engine     *gin.Engine
	logger     *zap.Logger
	pool       *pgxpool.Pool
	redis      *redisinfra.Client
	telemetry  *telemetry.Provider
	dispatcher *usecase.NotificationDispatcher
	reconciler *usecase.Reconciler
	hintTopics []string
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	tel, err := telemetry.Attach(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	verifier, err := security.NewGatewayTokenVerifier(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	fiscalStart := time.Month(cfg.Calendar.FiscalYearStartMonth)
	if fiscalStart < time.January || fiscalStart > time.December {
		fiscalStart = time.January
	}
	repos := postgresrepo.NewRepositories(pool, fiscalStart)

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitPrefix := cfg.Redis.RateLimitPrefix
	if rateLimitPrefix == "" {
		rateLimitPrefix = "grc:rate-limit"
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: rateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})

	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	dispatcher := usecase.NewNotificationDispatcher(eventPublisher, log)
	obligationService := usecase.NewObligationService(repos.Obligations, dispatcher, log)
	badgeService := usecase.NewBadgeService(repos.Obligations, repos.Calendar)
	reconciler := usecase.NewReconciler(repos.Obligations, repos.Calendar, log)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Verifier:    verifier,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Obligations: obligationService,
			Badges:      badgeService,
			Calendar:    repos.Calendar,
		},
	})

	prefix := cfg.Kafka.TopicPrefix
	if prefix == "" {
		prefix = "grc"
	}
	hintTopics := []string{
		prefix + "." + kafkainfra.EventTypeObligationSubmitted,
		prefix + "." + kafkainfra.EventTypeObligationValidated,
		prefix + "." + kafkainfra.EventTypeNotification,
	}

	return &Application{
		cfg:        cfg,
		engine:     engine,
		logger:     log,
		pool:       pool,
		redis:      redisClient,
		telemetry:  tel,
		dispatcher: dispatcher,
		reconciler: reconciler,
		hintTopics: hintTopics,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.telemetry.Shutdown(shutdownCtx)
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(a.cfg.Kafka.Brokers) > 0 && a.cfg.Kafka.ConsumerGroup != "" {
		consumer := kafkainfra.NewHintConsumer(a.reconciler, a.logger)
		go func() {
			err := kafkainfra.RunHintConsumer(runCtx, a.cfg.Kafka.Brokers, a.cfg.Kafka.ConsumerGroup, a.hintTopics, consumer, a.logger)
			if err != nil && runCtx.Err() == nil {
				a.logger.Error("hint consumer stopped", zap.Error(err))
			}
		}()
	}

	if a.dispatcher != nil {
		go a.flushLoop(runCtx)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting obligations API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// flushLoop periodically replays notification hints that failed to publish.
func (a *Application) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.dispatcher.QueueDepth() == 0 {
				continue
			}
			flushed := a.dispatcher.Flush(ctx)
			if flushed > 0 {
				a.logger.Info("replayed queued notification hints", zap.Int("count", flushed))
			}
		}
	}
}
