package httpclient

import (
	"net/http"
	"strings"
	"time"

	"georemind/internal/shared/logging"
)

const defaultTimeout = 30 * time.Second

// DefaultUserAgent identifies georemind to public endpoints such as Nominatim,
// whose usage policy requires a descriptive agent.
const DefaultUserAgent = "georemind/1.0 (+https://github.com/georemind/georemind)"

type clientOptions struct {
	userAgent string
	mode      ProxyMode
	modeSet   bool
	resolve   proxyResolver
}

// Option customizes a client built by New.
type Option func(*clientOptions)

// WithUserAgent sets the User-Agent header on requests that do not carry one.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) {
		o.userAgent = strings.TrimSpace(ua)
	}
}

// WithProxyMode overrides the mode read from GEOREMIND_PROXY_MODE.
func WithProxyMode(mode ProxyMode) Option {
	return func(o *clientOptions) {
		o.mode = mode
		o.modeSet = true
	}
}

// New returns an http.Client configured for outbound requests.
//
// It respects HTTP(S)_PROXY/ALL_PROXY/NO_PROXY by default, but bypasses
// unreachable loopback proxies so local development keeps working.
func New(timeout time.Duration, logger logging.Logger, opts ...Option) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	options := clientOptions{userAgent: DefaultUserAgent, resolve: http.ProxyFromEnvironment}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if !options.modeSet {
		options.mode = proxyModeFromEnv()
	}

	var rt http.RoundTripper = transport(logger, options)
	if options.userAgent != "" {
		rt = &userAgentTransport{base: rt, agent: options.userAgent}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

func transport(logger logging.Logger, options clientOptions) *http.Transport {
	proxy := newProxyPolicy(options.mode, options.resolve, logger).proxy
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: proxy}
	}
	t := base.Clone()
	t.Proxy = proxy
	return t
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
