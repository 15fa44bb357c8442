package httpclient

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// Errors returned by ValidateOutboundURL. Callers match them with errors.Is.
var (
	ErrUnsupportedScheme = errors.New("only http and https urls are allowed")
	ErrLocalTarget       = errors.New("url points at this host")
	ErrPrivateTarget     = errors.New("url points at a private network")
)

// URLValidationOptions relaxes ValidateOutboundURL for trusted targets.
type URLValidationOptions struct {
	AllowLocalhost       bool
	AllowPrivateNetworks bool
}

// ValidateOutboundURL parses raw and checks it is an absolute http(s) URL.
// Loopback and private targets are refused unless opts allow them. Host
// names other than localhost are not resolved.
func ValidateOutboundURL(raw string, opts URLValidationOptions) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("url %q has no host", raw)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		if !opts.AllowLocalhost {
			return nil, fmt.Errorf("%w: %s", ErrLocalTarget, host)
		}
		return u, nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return u, nil
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback() || addr.IsUnspecified():
		if !opts.AllowLocalhost {
			return nil, fmt.Errorf("%w: %s", ErrLocalTarget, addr)
		}
	case addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		if !opts.AllowPrivateNetworks {
			return nil, fmt.Errorf("%w: %s", ErrPrivateTarget, addr)
		}
	}
	return u, nil
}
