package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"
)

// aeadSuites 仅用于 TLS 1.2；TLS 1.3 的套件不可配置
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig returns a fresh config; callers may mutate it.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: slices.Clone(aeadSuites),
	}
}

// SecureTransport 走 HTTPS_PROXY / NO_PROXY。
// 后端与参考图 CDN 主机数少，按主机保留较多空闲连接。
func SecureTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       DefaultTLSConfig(),
		TLSHandshakeTimeout:   10 * time.Second,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// ClientOption customizes SecureHTTPClient.
type ClientOption func(*http.Client)

// ErrRedirectScheme 重定向目标不是 http/https
var ErrRedirectScheme = errors.New("redirect to unsupported scheme")

// WithMaxRedirects follows at most n redirects, all of which must stay on
// http or https. Zero disables redirects.
func WithMaxRedirects(n int) ClientOption {
	return func(c *http.Client) {
		c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			switch req.URL.Scheme {
			case "http", "https":
			default:
				return fmt.Errorf("%w: %s", ErrRedirectScheme, req.URL.Scheme)
			}
			if len(via) > n {
				return fmt.Errorf("stopped after %d redirects", n)
			}
			return nil
		}
	}
}

// SecureHTTPClient builds a client on SecureTransport. With a zero timeout
// the request context is the only deadline, which the reference loader
// relies on.
func SecureHTTPClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	c := &http.Client{Transport: SecureTransport(), Timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
