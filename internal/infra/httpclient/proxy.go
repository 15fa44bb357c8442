package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"georemind/internal/shared/logging"
)

// ProxyMode selects how environment proxies are honoured.
type ProxyMode string

const (
	// ProxyModeAuto uses env proxies but skips loopback proxies that refuse connections.
	ProxyModeAuto ProxyMode = "auto"
	// ProxyModeStrict always uses env proxies.
	ProxyModeStrict ProxyMode = "strict"
	// ProxyModeDirect ignores env proxies.
	ProxyModeDirect ProxyMode = "direct"
)

const (
	proxyModeEnv     = "GEOREMIND_PROXY_MODE"
	proxyDialTimeout = 200 * time.Millisecond
)

// ParseProxyMode maps a user supplied value onto a mode. Unknown values fall back to auto.
func ParseProxyMode(raw string) ProxyMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return ProxyModeStrict
	case "direct", "none", "off":
		return ProxyModeDirect
	default:
		return ProxyModeAuto
	}
}

func proxyModeFromEnv() ProxyMode {
	value, _ := os.LookupEnv(proxyModeEnv)
	return ParseProxyMode(value)
}

type proxyResolver func(*http.Request) (*url.URL, error)

type proxyPolicy struct {
	mode    ProxyMode
	resolve proxyResolver
	logger  logging.Logger

	// bypass caches reachability per proxy URL; warned dedupes the warning.
	bypass sync.Map
	warned sync.Map
	dial   func(ctx context.Context, hostPort string) bool
}

func newProxyPolicy(mode ProxyMode, resolve proxyResolver, logger logging.Logger) *proxyPolicy {
	if resolve == nil {
		resolve = http.ProxyFromEnvironment
	}
	return &proxyPolicy{
		mode:    mode,
		resolve: resolve,
		logger:  logging.OrNop(logger),
		dial:    isProxyReachable,
	}
}

func (p *proxyPolicy) proxy(req *http.Request) (*url.URL, error) {
	switch p.mode {
	case ProxyModeDirect:
		return nil, nil
	case ProxyModeStrict:
		return p.resolve(req)
	}
	if req == nil || req.URL == nil {
		return p.resolve(req)
	}
	if isLoopbackHost(req.URL.Hostname()) {
		return nil, nil
	}

	proxyURL, err := p.resolve(req)
	if proxyURL == nil || err != nil {
		return proxyURL, err
	}
	if !isLoopbackHost(proxyURL.Hostname()) {
		return proxyURL, nil
	}
	hostPort, ok := proxyHostPort(proxyURL)
	if !ok {
		return proxyURL, nil
	}

	key := proxyURL.String()
	if cached, ok := p.bypass.Load(key); ok {
		if cached.(bool) {
			return nil, nil
		}
		return proxyURL, nil
	}
	if p.dial(req.Context(), hostPort) {
		p.bypass.Store(key, false)
		return proxyURL, nil
	}
	p.bypass.Store(key, true)
	if _, loaded := p.warned.LoadOrStore(key, struct{}{}); !loaded {
		p.logger.Warn("Local proxy %s is unreachable; bypassing it (set %s=strict to disable).", proxyURL.Redacted(), proxyModeEnv)
	}
	return nil, nil
}

func isLoopbackHost(host string) bool {
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsUnspecified()
}

func proxyHostPort(proxyURL *url.URL) (string, bool) {
	host := strings.TrimSpace(proxyURL.Hostname())
	if host == "" {
		return "", false
	}
	port := strings.TrimSpace(proxyURL.Port())
	if port == "" {
		switch strings.ToLower(proxyURL.Scheme) {
		case "", "http":
			port = "80"
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			return "", false
		}
	}
	return net.JoinHostPort(host, port), true
}

func isProxyReachable(ctx context.Context, hostPort string) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	dialer := net.Dialer{Timeout: proxyDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
