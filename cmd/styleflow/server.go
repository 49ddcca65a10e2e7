package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/api/handlers"
	"github.com/footprint-studio/styleflow/config"
	"github.com/footprint-studio/styleflow/internal/cache"
	"github.com/footprint-studio/styleflow/internal/limiter"
	"github.com/footprint-studio/styleflow/internal/metrics"
	"github.com/footprint-studio/styleflow/internal/server"
	"github.com/footprint-studio/styleflow/internal/telemetry"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/providers/gemini"
	"github.com/footprint-studio/styleflow/transform/providers/removebg"
	"github.com/footprint-studio/styleflow/transform/providers/replicate"
	"github.com/footprint-studio/styleflow/transform/reference"
	"github.com/footprint-studio/styleflow/transform/retry"
	"github.com/footprint-studio/styleflow/transform/style"
)

// referenceRoute 静态参考图挂载点
const referenceRoute = style.ReferenceRoot + "/"

// skipAuthPaths 探针与版本端点不需要认证
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 组装编排器、HTTP 处理器与两个监听端口（API / metrics）
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	otel      *telemetry.Providers
	collector *metrics.Collector
	lookupEnv func(string) string

	catalog      *style.Catalog
	cacheManager *cache.Manager
	orchestrator *transform.Orchestrator
	// editor 是注册表中的 Gemini 后端，同时服务自由编辑
	editor  *gemini.Provider
	remover *removebg.Client

	healthHandler    *handlers.HealthHandler
	transformHandler *handlers.TransformHandler
	editHandler      *handlers.EditHandler
	styleHandler     *handlers.StyleHandler
	providerHandler  *handlers.ProviderHandler
}

// ServerOption 配置 Server
type ServerOption func(*Server)

// WithEnvLookup 替换后端凭证与 AI_PROVIDER 的读取方式
func WithEnvLookup(lookup func(string) string) ServerOption {
	return func(s *Server) { s.lookupEnv = lookup }
}

// NewServer 创建服务器并初始化全部组件。Redis 不可用时缓存与并发限制被关闭，服务照常启动。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers, collector *metrics.Collector, opts ...ServerOption) (*Server, error) {
	if collector == nil {
		return nil, errors.New("metrics collector is required")
	}
	s := &Server{
		cfg:       cfg,
		logger:    logger,
		otel:      otelProviders,
		collector: collector,
		lookupEnv: os.Getenv,
		catalog:   style.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.initCache()
	s.initOrchestrator()
	s.initHandlers()
	return s, nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initCache() {
	if !s.cfg.UsesRedis() {
		return
	}
	mgr, err := cache.NewManager(s.cfg.Redis, s.logger)
	if err != nil {
		s.logger.Warn("redis unavailable, result cache and concurrency limit disabled",
			zap.String("addr", s.cfg.Redis.Addr),
			zap.Error(err))
		return
	}
	s.cacheManager = mgr
}

// newRegistry 按优先级注册后端：nano-banana 在前，replicate 在后
func (s *Server) newRegistry() *transform.Registry {
	opts := []reference.Option{reference.WithObserver(s.collector.RecordReferenceFetch)}
	if dir := s.cfg.Server.ReferenceDir; dir != "" {
		// 目录中的参考图直接读盘，不经过本服务的 HTTP 路由（TLS、限流）
		opts = append(opts, reference.WithFS(os.DirFS(dir), style.ReferenceRoot))
	}
	loader := reference.NewLoader(s.cfg.References, s.logger, opts...)

	s.editor = gemini.New(s.cfg.Gemini, s.logger,
		gemini.WithCatalog(s.catalog),
		gemini.WithLoader(loader),
		gemini.WithEnv(s.lookupEnv))

	return transform.NewRegistry(
		s.editor,
		replicate.New(s.cfg.Replicate, s.logger,
			replicate.WithCatalog(s.catalog),
			replicate.WithEnv(s.lookupEnv)),
	)
}

func (s *Server) initOrchestrator() {
	s.orchestrator = transform.NewOrchestrator(s.newRegistry(), s.catalog, s.cfg.Transform, s.logger,
		transform.WithEnv(s.lookupEnv),
		transform.WithRecorder(s.collector),
		transform.WithTelemetry(s.otel.TracerProvider(), s.otel.MeterProvider()),
	)
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewCatalogHealthCheck(s.catalog))
	// 凭证每次调用读取，未配置时仍保持就绪，只报告 degraded
	s.healthHandler.RegisterOptionalCheck(handlers.NewProvidersHealthCheck(s.orchestrator.AvailableProviders))

	opts := []handlers.TransformHandlerOption{
		handlers.WithMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
	}
	editOpts := []handlers.EditHandlerOption{
		handlers.WithEditMaxBodyBytes(s.cfg.Server.MaxBodyBytes),
		handlers.WithEditRetry(retry.RetryPolicy{
			MaxAttempts:  s.cfg.Transform.MaxAttempts,
			InitialDelay: s.cfg.Transform.InitialDelay,
			Multiplier:   s.cfg.Transform.Multiplier,
		}),
	}
	if s.cacheManager != nil {
		s.healthHandler.RegisterOptionalCheck(handlers.NewRedisHealthCheck(s.cacheManager.Ping))
		if s.cfg.Cache.Enabled {
			opts = append(opts, handlers.WithResultCache(
				transform.NewResultCache(s.cacheManager, s.cfg.Cache.TTL, s.collector, s.logger)))
		}
		if s.cfg.Limiter.Enabled {
			// 转换与编辑共用同一组每用户名额
			lim := limiter.New(s.cacheManager, s.cfg.Limiter, s.collector, s.logger)
			opts = append(opts, handlers.WithConcurrencyLimiter(lim))
			editOpts = append(editOpts, handlers.WithEditLimiter(lim))
		}
	}

	s.remover = removebg.New(s.cfg.RemoveBG, s.logger, removebg.WithEnv(s.lookupEnv))

	s.transformHandler = handlers.NewTransformHandler(s.orchestrator, s.logger, opts...)
	s.editHandler = handlers.NewEditHandler(s.editor, s.remover, s.logger, editOpts...)
	s.styleHandler = handlers.NewStyleHandler(s.catalog, s.logger)
	s.providerHandler = handlers.NewProviderHandler(s.orchestrator, s.logger)

	s.logger.Info("handlers initialized",
		zap.Int("styles", s.catalog.Len()),
		zap.String("current_provider", s.orchestrator.CurrentProvider()),
		zap.Bool("result_cache", s.cacheManager != nil && s.cfg.Cache.Enabled),
		zap.Bool("concurrency_limit", s.cacheManager != nil && s.cfg.Limiter.Enabled),
		zap.Bool("remove_bg", s.remover.IsConfigured()))
}

// =============================================================================
// 🌐 路由
// =============================================================================

// Handler 构建 API 路由与中间件链；ctx 结束时停止限流器的清理协程
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	mux.HandleFunc("POST /api/v1/transform", s.transformHandler.HandleTransform)
	mux.HandleFunc("POST /api/v1/tweak", s.editHandler.HandleTweak)
	mux.HandleFunc("POST /api/v1/remove-bg", s.editHandler.HandleRemoveBackground)
	mux.HandleFunc("GET /api/v1/styles", s.styleHandler.HandleList)
	mux.HandleFunc("GET /api/v1/styles/{id}", s.styleHandler.HandleGet)
	mux.HandleFunc("GET /api/v1/providers", s.providerHandler.HandleList)

	if dir := s.cfg.Server.ReferenceDir; dir != "" {
		mux.Handle("GET "+referenceRoute, http.StripPrefix(referenceRoute, http.FileServer(http.Dir(dir))))
	}

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.otel.TracerProvider(), otel.GetTextMapPropagator()),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares,
			APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey, s.logger))
	}
	if s.cfg.JWT.Enabled() {
		middlewares = append(middlewares, JWTAuth(s.cfg.JWT, skipAuthPaths, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 API 与 metrics 服务器，阻塞直到 ctx 取消，然后依次关闭
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsManager := server.NewManager(metricsMux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	httpManager := server.NewManager(s.Handler(ctx), server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}, s.logger)

	s.logger.Info("servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort))

	runErr := httpManager.Run(ctx)
	return errors.Join(runErr, s.shutdown(context.WithoutCancel(ctx), metricsManager))
}

// shutdown 关闭 metrics 服务器、Redis 连接与遥测导出器
func (s *Server) shutdown(ctx context.Context, metricsManager *server.Manager) error {
	s.logger.Info("starting graceful shutdown")

	var errs []error
	if err := metricsManager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics server: %w", err))
	}
	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	s.logger.Info("graceful shutdown completed")
	return errors.Join(errs...)
}
