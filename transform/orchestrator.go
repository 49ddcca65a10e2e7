package transform

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/transform/retry"
	"github.com/footprint-studio/styleflow/transform/style"
	"github.com/footprint-studio/styleflow/types"
)

// Config 编排器配置
type Config struct {
	// ProviderEnvKey 首选后端的环境变量名，每次调用时读取
	ProviderEnvKey string `yaml:"provider_env_key" json:"provider_env_key" env:"PROVIDER_ENV_KEY"`
	// DefaultProvider 环境变量为空时使用；为空则使用注册表默认后端
	DefaultProvider string `yaml:"default_provider" json:"default_provider" env:"DEFAULT_PROVIDER"`
	// MaxAttempts 每个后端的默认重试预算
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" env:"MAX_ATTEMPTS"`
	// InitialDelay 第二次尝试前的等待时间
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay" env:"INITIAL_DELAY"`
	// Multiplier 退避倍数
	Multiplier float64 `yaml:"multiplier" json:"multiplier" env:"MULTIPLIER"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		ProviderEnvKey: "AI_PROVIDER",
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		Multiplier:     2.0,
	}
}

// Orchestrator validates the style, picks a backend, runs it under the
// retry policy and falls back through the remaining configured backends in
// priority order.
type Orchestrator struct {
	registry  *Registry
	catalog   *style.Catalog
	cfg       Config
	lookupEnv func(string) string
	recorder  Recorder
	logger    *zap.Logger
	retryOpts []retry.Option
	now       func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	inst           instruments
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEnv replaces os.Getenv for backend selection.
func WithEnv(lookup func(string) string) Option {
	return func(o *Orchestrator) { o.lookupEnv = lookup }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithRetryOptions passes options to every per-backend retryer.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(o *Orchestrator) { o.retryOpts = append(o.retryOpts, opts...) }
}

// WithTelemetry sets the OpenTelemetry providers. Globals are used otherwise.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *Orchestrator) {
		o.tracerProvider = tp
		o.meterProvider = mp
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(registry *Registry, catalog *style.Catalog, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = style.Default()
	}
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = def.InitialDelay
	}
	if cfg.Multiplier < 1 {
		cfg.Multiplier = def.Multiplier
	}

	o := &Orchestrator{
		registry:  registry,
		catalog:   catalog,
		cfg:       cfg,
		lookupEnv: os.Getenv,
		recorder:  nopRecorder{},
		logger:    logger.With(zap.String("component", "orchestrator")),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.inst = newInstruments(o.tracerProvider, o.meterProvider)
	return o
}

// Transform turns source into styleID using the first backend that
// succeeds. When every backend fails, the last backend's error is returned.
func (o *Orchestrator) Transform(ctx context.Context, source, styleID string, opts Options) (*Result, error) {
	start := o.now()

	ctx, span := o.inst.tracer.Start(ctx, "transform.Transform",
		trace.WithAttributes(attribute.String("transform.style", styleID)))
	defer span.End()

	o.inst.addActive(ctx, 1, styleID)
	defer o.inst.addActive(ctx, -1, styleID)

	res, provider, err := o.run(ctx, source, styleID, opts)
	elapsed := o.now().Sub(start)

	if err != nil {
		o.recorder.RecordTransform(provider, styleID, StatusError, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error("transform failed",
			zap.String("style", styleID),
			zap.String("provider", provider),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, err
	}

	res.ProcessingTime = elapsed
	res.ProcessingTimeMs = elapsed.Milliseconds()
	o.recorder.RecordTransform(provider, styleID, StatusSuccess, elapsed)
	o.recorder.RecordUsage(provider, res.TokensUsed, res.EstimatedCost)
	span.SetAttributes(attribute.String("transform.provider", provider))

	o.logger.Info("transform completed",
		zap.String("id", res.ID),
		zap.String("style", styleID),
		zap.String("provider", provider),
		zap.Duration("elapsed", elapsed))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, source, styleID string, opts Options) (*Result, string, error) {
	if !o.catalog.IsValidStyleID(styleID) {
		return nil, "", types.NewError(types.ErrInvalidStyle, fmt.Sprintf("invalid style: %q", styleID)).
			WithHTTPStatus(400)
	}

	candidates := o.configured(o.preferred(opts.Provider))
	if len(candidates) == 0 {
		return nil, "", types.NewError(types.ErrNotConfigured,
			"no image backend configured; set GOOGLE_AI_API_KEY or REPLICATE_API_TOKEN")
	}

	base := &Request{
		Source:         source,
		StyleID:        styleID,
		References:     opts.References,
		ReferencePaths: opts.ReferencePaths,
		Instructions:   opts.Instructions,
	}

	var (
		lastErr  error
		lastName string
	)
	for i, a := range candidates {
		res, err := o.runBackend(ctx, a, base.Clone(), opts.MaxAttempts)
		if err == nil {
			res.Provider = a.Name()
			if res.ID == "" {
				res.ID = uuid.NewString()
			}
			return res, a.Name(), nil
		}
		lastErr, lastName = err, a.Name()

		// 风格无效与后端无关；调用方放弃时也不再降级
		if types.IsErrorCode(err, types.ErrInvalidStyle, types.ErrUnknownStyle) || ctx.Err() != nil {
			break
		}
		if i+1 < len(candidates) {
			next := candidates[i+1].Name()
			o.logger.Warn("backend failed, falling back",
				zap.String("from", a.Name()),
				zap.String("to", next),
				zap.Error(err))
			o.recorder.RecordFallback(a.Name(), next)
		}
	}
	return nil, lastName, lastErr
}

// runBackend prepares the request once and runs the adapter under a fresh
// retry budget.
func (o *Orchestrator) runBackend(ctx context.Context, a Adapter, req *Request, maxAttempts int) (*Result, error) {
	name := a.Name()
	ctx, span := o.inst.tracer.Start(ctx, "transform.backend",
		trace.WithAttributes(attribute.String("transform.provider", name)))
	defer span.End()

	if p, ok := a.(Preparer); ok {
		prepared, err := p.Prepare(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "prepare failed")
			return nil, err
		}
		req = prepared
	}

	policy := retry.RetryPolicy{
		MaxAttempts:  o.cfg.MaxAttempts,
		InitialDelay: o.cfg.InitialDelay,
		Multiplier:   o.cfg.Multiplier,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			o.inst.addRetry(ctx, name)
			span.AddEvent("retry", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.Int64("delay_ms", delay.Milliseconds())))
		},
	}
	if maxAttempts > 0 {
		policy.MaxAttempts = maxAttempts
	}
	r := retry.NewBackoffRetryer(&policy, o.logger.With(zap.String("provider", name)), o.retryOpts...)

	attempt := 0
	res, err := retry.DoWithResultTyped(r, ctx, func() (*Result, error) {
		attempt++
		t0 := o.now()
		res, err := a.Transform(ctx, req)
		if err == nil && res == nil {
			err = types.NewError(types.ErrEmptyOutput, "backend returned no result").WithProvider(name)
		}
		status := StatusSuccess
		if err != nil {
			status = StatusError
			o.logger.Warn("backend attempt failed",
				zap.String("provider", name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
		o.recorder.RecordProviderAttempt(name, status, o.now().Sub(t0))
		return res, err
	})
	span.SetAttributes(attribute.Int("transform.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// preferred resolves the preferred backend name: explicit option, then the
// environment, then the configured default.
func (o *Orchestrator) preferred(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if o.cfg.ProviderEnvKey != "" {
		// 后端名均为小写，环境变量按不区分大小写匹配
		if v := strings.ToLower(strings.TrimSpace(o.lookupEnv(o.cfg.ProviderEnvKey))); v != "" {
			return v
		}
	}
	return o.cfg.DefaultProvider
}

func (o *Orchestrator) configured(preferred string) []Adapter {
	ordered := o.registry.Ordered(preferred)
	out := ordered[:0]
	for _, a := range ordered {
		if a.IsConfigured() {
			out = append(out, a)
		}
	}
	return out
}

// CurrentProvider returns the backend that would be tried first, ignoring
// whether it is configured.
func (o *Orchestrator) CurrentProvider() string {
	ordered := o.registry.Ordered(o.preferred(""))
	if len(ordered) == 0 {
		return ""
	}
	return ordered[0].Name()
}

// AvailableProviders reports every registered backend in priority order.
func (o *Orchestrator) AvailableProviders() []ProviderStatus {
	names := o.registry.List()
	out := make([]ProviderStatus, 0, len(names))
	for i, name := range names {
		a, ok := o.registry.Get(name)
		if !ok {
			continue
		}
		out = append(out, ProviderStatus{Name: name, Configured: a.IsConfigured(), Priority: i})
	}
	return out
}

// IsKnownProvider reports whether name is registered.
func (o *Orchestrator) IsKnownProvider(name string) bool {
	_, ok := o.registry.Get(name)
	return ok
}

// Catalog returns the style catalog.
func (o *Orchestrator) Catalog() *style.Catalog {
	return o.catalog
}
