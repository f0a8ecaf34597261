package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/engine/strategy"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/internal/storage"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/config"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/events"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/logger"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/resilience"
	"github.com/ribatshepo/WorkFlowOchestrator-sub001/pkg/templates"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	httpServer *http.Server
	db         *gorm.DB
	redis      *redis.Client
	eventBus   events.EventBus
	registry   *engine.Registry
}

func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	db, err := storage.NewPostgresDB(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store, err := storage.NewExecutionStore(db)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	eventBus, err := events.NewKafkaEventBus(events.KafkaConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topic:         cfg.Kafka.Topic,
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	templateStore := templates.NewRedisStore(redisClient, templates.NewStaticStore(nil), time.Hour)
	renderer := templates.NewTemplateRenderer(templateStore)

	metrics := engine.NewPrometheusCollector(prometheus.DefaultRegisterer)
	registry := buildRegistry(cfg, log, metrics, eventBus, renderer)
	eng := engine.NewEngine(registry, metrics, log)

	handlers := NewHandlers(eng, registry, store, cfg.Engine.MaxRetries, cfg.Engine.RetryDelay, log)
	router := setupRouter(handlers, log)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		config:     cfg,
		logger:     log,
		httpServer: httpServer,
		db:         db,
		redis:      redisClient,
		eventBus:   eventBus,
		registry:   registry,
	}, nil
}

// buildRegistry wires the built-in strategies with the engine-level retry and
// breaker defaults from configuration.
func buildRegistry(cfg *config.Config, log logger.Logger, metrics engine.Collector, bus events.EventBus, renderer templates.Renderer) *engine.Registry {
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Engine.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.Engine.MaxRetries
	}
	if cfg.Engine.RetryDelay > 0 {
		retryCfg.InitialDelay = cfg.Engine.RetryDelay
	}

	breakerFor := func(name string) resilience.CircuitBreakerConfig {
		breakerCfg := resilience.DefaultCircuitBreakerConfig(name)
		if cfg.Engine.BreakerThreshold > 0 {
			breakerCfg.FailureThreshold = cfg.Engine.BreakerThreshold
		}
		if cfg.Engine.BreakerCooldown > 0 {
			breakerCfg.Cooldown = cfg.Engine.BreakerCooldown
		}
		return breakerCfg
	}

	opts := func(name string) []strategy.Option {
		return []strategy.Option{
			strategy.WithEventBus(bus),
			strategy.WithRetryConfig(retryCfg),
			strategy.WithBreaker(breakerFor(name)),
		}
	}

	httpClient := &http.Client{Timeout: cfg.Engine.HTTPClientTimeout}

	registry := engine.NewRegistry()
	registry.Register(strategy.NewHTTPRequestStrategy(httpClient, log, metrics, opts(strategy.TypeHTTPRequest)...))
	registry.Register(strategy.NewDatabaseQueryStrategy(log, metrics, opts(strategy.TypeDatabaseQuery)...))
	registry.Register(strategy.NewEmailNotificationStrategy(nil, renderer, log, metrics, opts(strategy.TypeEmailNotification)...))
	return registry
}

func setupRouter(h *Handlers, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health/live", h.Health)
	router.GET("/health/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/executions/node", h.ExecuteNode)
		v1.GET("/executions/types", h.ListNodeTypes)
		v1.GET("/executions/:executionId", h.GetExecution)
		v1.GET("/workflows/:workflowId/executions", h.ListWorkflowExecutions)
	}

	return router
}

func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.Server.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	if err := s.eventBus.Close(); err != nil {
		s.logger.Error("Failed to close event bus", "error", err)
	}
	if err := s.redis.Close(); err != nil {
		s.logger.Error("Failed to close Redis", "error", err)
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			s.logger.Error("Failed to close database", "error", err)
		}
	}

	return nil
}

func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP(),
		)
	}
}
