// Package reference fetches style reference images and inlines them as
// encoded payloads. A reference that cannot be fetched is skipped.
package reference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/footprint-studio/styleflow/internal/tlsutil"
	"github.com/footprint-studio/styleflow/transform/codec"
)

// Config 参考图加载配置
type Config struct {
	// Timeout 单张图片的拉取超时
	Timeout time.Duration `yaml:"timeout" json:"timeout" env:"TIMEOUT"`
	// MaxConcurrency 并发拉取上限
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency" env:"MAX_CONCURRENCY"`
	// MaxBytes 单张图片大小上限
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes" env:"MAX_BYTES"`
}

// DefaultConfig returns the default loader configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		MaxConcurrency: 4,
		MaxBytes:       20 << 20,
	}
}

// FetchObserver receives the outcome of every fetch.
type FetchObserver func(ok bool, duration time.Duration)

// Loader fetches reference images over HTTP, or reads them from a local
// file system when one is mounted with WithFS.
type Loader struct {
	cfg      Config
	client   *http.Client
	logger   *zap.Logger
	observer FetchObserver

	// fsys 中的文件对应 root 之下的相对路径
	fsys fs.FS
	root string
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithFS serves relative paths under root (for example "/style-references")
// from fsys instead of HTTP. Other relative paths still join the base URL.
func WithFS(fsys fs.FS, root string) Option {
	return func(l *Loader) {
		l.fsys = fsys
		l.root = "/" + strings.Trim(root, "/")
	}
}

// WithObserver registers a fetch observer (metrics).
func WithObserver(fn FetchObserver) Option {
	return func(l *Loader) { l.observer = fn }
}

// NewLoader creates a Loader.
func NewLoader(cfg Config, logger *zap.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = def.MaxBytes
	}
	l := &Loader{
		cfg: cfg,
		// 每次拉取由 context 控制超时，client 本身不设总超时
		client: tlsutil.SecureHTTPClient(0, tlsutil.WithMaxRedirects(3)),
		logger: logger.With(zap.String("component", "reference_loader")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches every path and returns the images that loaded, in input
// order. Relative paths under the WithFS root are read locally; other
// relative paths are joined with base. Load never fails; failed
// references are logged and dropped.
func (l *Loader) Load(ctx context.Context, paths []string, base string) []codec.Image {
	if len(paths) == 0 {
		return []codec.Image{}
	}

	slots := make([]*codec.Image, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.MaxConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			src, img, err := l.load(gctx, p, base)
			if err != nil {
				l.logger.Warn("skipping reference image",
					zap.String("source", src),
					zap.Error(err))
				return nil // 单张失败不影响其余参考图
			}
			slots[i] = &img
			return nil
		})
	}
	_ = g.Wait()

	out := make([]codec.Image, 0, len(paths))
	for _, img := range slots {
		if img != nil {
			out = append(out, *img)
		}
	}
	l.logger.Debug("reference images loaded",
		zap.Int("requested", len(paths)),
		zap.Int("loaded", len(out)))
	return out
}

// load 返回实际使用的来源（文件名或 URL）便于日志定位
func (l *Loader) load(ctx context.Context, p, base string) (string, codec.Image, error) {
	if name, ok := l.localName(p); ok {
		img, err := l.Open(name)
		return name, img, err
	}
	url := Resolve(p, base)
	img, err := l.Fetch(ctx, url)
	return url, img, err
}

// localName 把 root 下的相对路径映射为 fsys 中的文件名
func (l *Loader) localName(p string) (string, bool) {
	if l.fsys == nil || codec.IsURL(p) {
		return "", false
	}
	rest, ok := strings.CutPrefix(path.Clean("/"+p), strings.TrimSuffix(l.root, "/")+"/")
	if !ok || !fs.ValidPath(rest) {
		return "", false
	}
	return rest, true
}

// Open reads one image from the mounted file system. The mime type comes
// from the extension, then from content sniffing.
func (l *Loader) Open(name string) (img codec.Image, err error) {
	start := time.Now()
	defer func() {
		if l.observer != nil {
			l.observer(err == nil, time.Since(start))
		}
	}()
	if l.fsys == nil {
		return codec.Image{}, errors.New("no reference file system mounted")
	}

	f, err := l.fsys.Open(name)
	if err != nil {
		return codec.Image{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	body, err := io.ReadAll(io.LimitReader(f, l.cfg.MaxBytes+1))
	if err != nil {
		return codec.Image{}, fmt.Errorf("read %s: %w", name, err)
	}
	if int64(len(body)) > l.cfg.MaxBytes {
		return codec.Image{}, fmt.Errorf("open %s: file exceeds %d bytes", name, l.cfg.MaxBytes)
	}

	mimeType := mime.TypeByExtension(path.Ext(name))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(body)
	}
	return codec.FromBytes(body, mimeType), nil
}

// Fetch downloads one image and inlines it. The mime type comes from the
// response Content-Type, defaulting to image/jpeg.
func (l *Loader) Fetch(ctx context.Context, url string) (img codec.Image, err error) {
	start := time.Now()
	defer func() {
		if l.observer != nil {
			l.observer(err == nil, time.Since(start))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return codec.Image{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return codec.Image{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return codec.Image{}, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.cfg.MaxBytes+1))
	if err != nil {
		return codec.Image{}, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > l.cfg.MaxBytes {
		return codec.Image{}, fmt.Errorf("fetch %s: body exceeds %d bytes", url, l.cfg.MaxBytes)
	}

	return codec.FromBytes(body, resp.Header.Get("Content-Type")), nil
}

// Resolve joins a relative path with base. Absolute http(s) URLs are
// returned unchanged.
func Resolve(path, base string) string {
	if codec.IsURL(path) || base == "" {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
