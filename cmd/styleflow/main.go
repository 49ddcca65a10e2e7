// =============================================================================
// Styleflow 主入口
// =============================================================================
// 风格转换服务入口，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	styleflow serve                                   # 启动服务
//	styleflow serve --config config.yaml              # 指定配置文件
//	styleflow transform --image me.jpg --style pop_art --out out.png
//	styleflow styles                                  # 列出风格
//	styleflow version                                 # 显示版本信息
//	styleflow health                                  # 健康检查
// =============================================================================

// @title Styleflow API
// @version 1.0.0
// @description Styleflow turns portraits into artistic styles using a priority-ordered set of image backends.
// @description
// @description ## Features
// @description - Gemini "nano-banana" primary backend with Replicate flux-kontext-pro fallback
// @description - Per-backend retry budget with exponential backoff
// @description - Redis result cache and per-user concurrency limit
// @description - Health monitoring and metrics

// @contact.name Styleflow Team

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/footprint-studio/styleflow/api"
	"github.com/footprint-studio/styleflow/config"
	"github.com/footprint-studio/styleflow/internal/metrics"
	"github.com/footprint-studio/styleflow/internal/telemetry"
	"github.com/footprint-studio/styleflow/internal/tlsutil"
	"github.com/footprint-studio/styleflow/transform"
	"github.com/footprint-studio/styleflow/transform/codec"
	"github.com/footprint-studio/styleflow/transform/style"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "transform":
		err = runTransform(os.Args[2:], os.Stdout)
	case "styles":
		err = runStyles(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().Strict()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Styleflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		otelProviders = &telemetry.Providers{}
	}

	srv, err := NewServer(cfg, logger, otelProviders, metrics.NewCollector("styleflow", logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Styleflow stopped")
	return nil
}

// =============================================================================
// 🎨 transform 命令
// =============================================================================

// runTransform 不启动 HTTP 服务，直接调用编排器完成一次转换
func runTransform(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("transform", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	image := fs.String("image", "", "Source image: local file, http(s) URL or data URI")
	styleID := fs.String("style", "", "Style id (see 'styleflow styles')")
	provider := fs.String("provider", "", "Preferred backend (nano-banana, replicate)")
	attempts := fs.Int("attempts", 0, "Attempts per backend (0 = config default)")
	output := fs.String("out", "", "Write the output image to this file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Overall timeout")
	_ = fs.Parse(args)

	if *image == "" || *styleID == "" {
		return fmt.Errorf("--image and --style are required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	source, err := readSource(*image)
	if err != nil {
		return err
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		otel:      &telemetry.Providers{},
		collector: metrics.NewCollector("styleflow", logger),
		lookupEnv: os.Getenv,
		catalog:   style.Default(),
	}
	// CLI 不挂载静态参考图
	s.cfg.Server.ReferenceDir = ""
	s.initOrchestrator()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := s.orchestrator.Transform(ctx, source, *styleID, transform.Options{
		Provider:    *provider,
		MaxAttempts: *attempts,
	})
	if err != nil {
		return err
	}

	if *output != "" {
		if err := writeResult(ctx, res, *output); err != nil {
			return err
		}
	}

	resp := api.NewTransformResponse(*styleID, res, false)
	if *output != "" {
		// 图片已写入文件，避免在终端打印整段 base64
		resp.Image = *output
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

// readSource 本地文件转为 data URI，URL 与 data URI 原样返回
func readSource(image string) (string, error) {
	if codec.IsURL(image) || codec.IsDataURI(image) {
		return image, nil
	}
	data, err := os.ReadFile(image)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	return codec.FromBytes(data, http.DetectContentType(data)).DataURI(), nil
}

// writeResult 内联输出直接解码，URL 输出下载后写入
func writeResult(ctx context.Context, res *transform.Result, path string) error {
	var data []byte
	switch {
	case res.ImageBase64 != "":
		img := codec.Image{Data: res.ImageBase64, MimeType: res.MimeType}
		b, err := img.Bytes()
		if err != nil {
			return fmt.Errorf("decode output: %w", err)
		}
		data = b
	case res.ImageURL != "":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.ImageURL, nil)
		if err != nil {
			return err
		}
		resp, err := tlsutil.SecureHTTPClient(time.Minute).Do(req)
		if err != nil {
			return fmt.Errorf("download output: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("download output: status %d", resp.StatusCode)
		}
		if data, err = io.ReadAll(resp.Body); err != nil {
			return fmt.Errorf("download output: %w", err)
		}
	default:
		return fmt.Errorf("result carries no image")
	}
	return os.WriteFile(path, data, 0o644)
}

// =============================================================================
// 🖼️ styles 命令
// =============================================================================

func runStyles(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("styles", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print full definitions as JSON")
	_ = fs.Parse(args)

	defs := style.Default().All()
	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(defs)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREFERENCES\tDESCRIPTION")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.NameEn, len(d.References), d.Description)
	}
	return tw.Flush()
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check /ready instead of /health")
	_ = fs.Parse(args)

	path := "/health"
	if *ready {
		path = "/ready"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(out, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "Styleflow %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `Styleflow - portrait style transformation service

Usage:
  styleflow <command> [options]

Commands:
  serve       Start the Styleflow server
  transform   Run a single transformation from the command line
  styles      List the style catalog
  version     Show version information
  health      Check server health
  help        Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'transform':
  --image <src>     Local file, http(s) URL or data URI
  --style <id>      Style id
  --provider <name> Preferred backend (nano-banana, replicate)
  --out <path>      Write the output image to a file

Examples:
  styleflow serve --config /etc/styleflow/config.yaml
  styleflow transform --image me.jpg --style watercolor --out me-watercolor.png
  styleflow styles --json
  styleflow health --addr http://localhost:8080 --ready
  styleflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger.With(zap.String("service", "styleflow"))
}
