package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
)

func fixedResolver(raw string) proxyResolver {
	return func(*http.Request) (*url.URL, error) {
		if raw == "" {
			return nil, nil
		}
		return url.Parse(raw)
	}
}

func newRequest(t *testing.T, target string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func TestProxyAutoUsesReachableLoopbackProxy(t *testing.T) {
	p := newProxyPolicy(ProxyModeAuto, fixedResolver("http://127.0.0.1:7890"), nil)
	var dials atomic.Int32
	p.dial = func(context.Context, string) bool {
		dials.Add(1)
		return true
	}

	for i := 0; i < 2; i++ {
		proxy, err := p.proxy(newRequest(t, "https://nominatim.openstreetmap.org/search"))
		if err != nil {
			t.Fatalf("proxy error: %v", err)
		}
		if proxy == nil || proxy.Host != "127.0.0.1:7890" {
			t.Fatalf("expected loopback proxy, got %v", proxy)
		}
	}
	if dials.Load() != 1 {
		t.Fatalf("expected reachability to be cached, dialed %d times", dials.Load())
	}
}

func TestProxyAutoBypassesUnreachableLoopbackProxy(t *testing.T) {
	p := newProxyPolicy(ProxyModeAuto, fixedResolver("http://localhost:7890"), nil)
	p.dial = func(context.Context, string) bool { return false }

	proxy, err := p.proxy(newRequest(t, "https://nominatim.openstreetmap.org/search"))
	if err != nil {
		t.Fatalf("proxy error: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected proxy bypass, got %v", proxy)
	}
}

func TestProxyAutoSkipsProxyForLoopbackTargets(t *testing.T) {
	p := newProxyPolicy(ProxyModeAuto, fixedResolver("http://proxy.internal:3128"), nil)

	proxy, err := p.proxy(newRequest(t, "http://127.0.0.1:8080/v1/tasks"))
	if err != nil {
		t.Fatalf("proxy error: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected direct connection to loopback target, got %v", proxy)
	}
}

func TestProxyStrictAlwaysReturnsProxy(t *testing.T) {
	p := newProxyPolicy(ProxyModeStrict, fixedResolver("http://127.0.0.1:1"), nil)
	p.dial = func(context.Context, string) bool {
		t.Fatal("strict mode must not probe the proxy")
		return false
	}

	proxy, err := p.proxy(newRequest(t, "https://example.com"))
	if err != nil {
		t.Fatalf("proxy error: %v", err)
	}
	if proxy == nil || proxy.Host != "127.0.0.1:1" {
		t.Fatalf("expected strict proxy, got %v", proxy)
	}
}

func TestProxyDirectAlwaysReturnsNil(t *testing.T) {
	p := newProxyPolicy(ProxyModeDirect, fixedResolver("http://proxy.internal:3128"), nil)

	proxy, err := p.proxy(newRequest(t, "https://example.com"))
	if err != nil {
		t.Fatalf("proxy error: %v", err)
	}
	if proxy != nil {
		t.Fatalf("expected direct connection, got %v", proxy)
	}
}

func TestParseProxyMode(t *testing.T) {
	cases := map[string]ProxyMode{
		"":        ProxyModeAuto,
		"AUTO":    ProxyModeAuto,
		" strict": ProxyModeStrict,
		"off":     ProxyModeDirect,
		"none":    ProxyModeDirect,
		"bogus":   ProxyModeAuto,
	}
	for raw, want := range cases {
		if got := ParseProxyMode(raw); got != want {
			t.Fatalf("ParseProxyMode(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNewSetsUserAgent(t *testing.T) {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	client := New(0, nil, WithProxyMode(ProxyModeDirect), WithUserAgent("georemind-test/0.1"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()

	if got, _ := seen.Load().(string); got != "georemind-test/0.1" {
		t.Fatalf("expected user agent to be set, got %q", got)
	}
}
