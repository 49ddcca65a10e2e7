package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Manager runs one http.Server. The API and the metrics endpoint each get
// their own Manager, told apart in logs by Config.Name.
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	// base 是所有请求上下文的父级，强制关闭时取消以中断进行中的后端调用
	base       context.Context
	cancelBase context.CancelFunc

	mu       sync.RWMutex
	listener net.Listener
	closed   bool
	errCh    chan error
}

// Config 服务器配置
type Config struct {
	Name string `yaml:"name" json:"name"`
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
	// WriteTimeout 需覆盖一次转换的重试与降级总耗时
	WriteTimeout   time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// ShutdownTimeout 之后仍未完成的请求会被取消
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	TLSCertFile string `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file" json:"tls_key_file"`
}

// TLSEnabled reports whether both the certificate and the key are set.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Name:            "http",
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		IdleTimeout:     2 * time.Minute,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// NewManager prepares a server for handler. Nothing listens until Start.
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Name == "" {
		config.Name = "http"
	}

	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		config:     config,
		logger:     logger.With(zap.String("component", "http_server"), zap.String("server", config.Name)),
		base:       base,
		cancelBase: cancel,
		errCh:      make(chan error, 1),
	}
	m.server = &http.Server{
		Addr:           config.Addr,
		Handler:        handler,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		BaseContext:    func(net.Listener) context.Context { return m.base },
		ErrorLog:       zap.NewStdLog(m.logger),
	}
	if config.TLSEnabled() {
		m.server.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return m
}

// =============================================================================
// 🚦 生命周期
// =============================================================================

// Start listens on Config.Addr and serves in the background.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return errors.New("server is closed")
	case m.listener != nil:
		return errors.New("server already started")
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	m.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", m.config.TLSEnabled()),
	)

	go func() {
		var err error
		if m.config.TLSEnabled() {
			err = m.server.ServeTLS(ln, m.config.TLSCertFile, m.config.TLSKeyFile)
		} else {
			err = m.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.errCh <- err
		}
	}()
	return nil
}

// Run starts the server and blocks until ctx ends or serving fails, then
// shuts down gracefully.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
		m.logger.Info("shutdown requested", zap.Error(context.Cause(ctx)))
	case serveErr = <-m.errCh:
		m.logger.Error("server exited unexpectedly", zap.Error(serveErr))
	}

	// ctx 已结束，关闭只受 ShutdownTimeout 约束
	return errors.Join(serveErr, m.Shutdown(context.WithoutCancel(ctx)))
}

// Shutdown stops accepting connections and waits for in-flight requests.
// When ShutdownTimeout (or ctx) expires first, the remaining request
// contexts are cancelled and their connections closed. Calling it again is
// a no-op.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}

	start := time.Now()
	err := m.server.Shutdown(ctx)
	if err != nil {
		m.logger.Warn("graceful shutdown timed out, cancelling in-flight requests",
			zap.Duration("waited", time.Since(start)), zap.Error(err))
		m.cancelBase()
		_ = m.server.Close()
		return err
	}

	m.cancelBase()
	m.listener = nil
	m.logger.Info("server stopped", zap.Duration("drain", time.Since(start)))
	return nil
}

// ListenAddr returns the bound address, which differs from Config.Addr for
// ":0". It is empty before Start and after a clean Shutdown.
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}
