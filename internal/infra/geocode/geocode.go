// Package geocode resolves free-text place queries into coordinates using a
// Nominatim compatible search endpoint.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"georemind/internal/domain/geo"
	"georemind/internal/infra/httpclient"
	sherrors "georemind/internal/shared/errors"
	jsonx "georemind/internal/shared/json"
	"georemind/internal/shared/logging"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	defaultRatePerSecond = 1
	defaultCacheSize     = 512
	defaultCacheTTL      = 24 * time.Hour
	defaultTimeout       = 10 * time.Second
	defaultLimit         = 5
	maxLimit             = 20
	maxResponseBytes     = 1 << 20
)

// ErrEmptyQuery is returned for blank search queries.
var ErrEmptyQuery = errors.New("geocode: query is required")

// Config configures a Client. Zero values fall back to defaults.
type Config struct {
	BaseURL       string
	UserAgent     string
	RatePerSecond float64
	CacheSize     int
	CacheTTL      time.Duration
	Timeout       time.Duration
}

// Searcher is the lookup surface used by the HTTP API.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]geo.Place, error)
}

type cacheEntry struct {
	places   []geo.Place
	storedAt time.Time
}

// Client queries /search with a shared rate limit and caches answers.
type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	cache   *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	now     func() time.Time
	logger  logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the outbound client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(logger)
	}
}

// WithClock overrides the clock used for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New validates cfg and builds a client.
func New(cfg Config, opts ...Option) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("geocode: invalid base url %q", raw)
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = defaultRatePerSecond
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cache, err := lru.New[string, cacheEntry](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("geocode: cache: %w", err)
	}

	c := &Client{
		base:    base,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cache:   cache,
		ttl:     cfg.CacheTTL,
		now:     time.Now,
		logger:  logging.NewComponentLogger("Geocode"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.http == nil {
		c.http = httpclient.New(cfg.Timeout, c.logger, httpclient.WithUserAgent(cfg.UserAgent))
	}
	return c, nil
}

type searchResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Name        string `json:"name"`
}

// Search returns up to limit places matching query. Blank queries are
// rejected; upstream throttling and 5xx answers are reported as transient.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]geo.Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	key := cacheKey(query, limit)
	if entry, ok := c.cache.Get(key); ok {
		if c.now().Sub(entry.storedAt) < c.ttl {
			return clonePlaces(entry.places), nil
		}
		c.cache.Remove(key)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := *c.base
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + "/search"
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "jsonv2")
	params.Set("limit", strconv.Itoa(limit))
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, sherrors.NewTransientError(err, 0, fmt.Sprintf("geocode request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("geocode: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("geocode: upstream status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, sherrors.NewTransientError(statusErr, resp.StatusCode, statusErr.Error())
		}
		return nil, statusErr
	}

	var results []searchResult
	if err := jsonx.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	places := make([]geo.Place, 0, len(results))
	for _, r := range results {
		place, ok := toPlace(r)
		if !ok {
			c.logger.Debug("Skipping geocode result with bad coordinates: %q", r.DisplayName)
			continue
		}
		places = append(places, place)
	}
	c.cache.Add(key, cacheEntry{places: clonePlaces(places), storedAt: c.now()})
	return places, nil
}

func toPlace(r searchResult) (geo.Place, bool) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(r.Lat), 64)
	if err != nil {
		return geo.Place{}, false
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(r.Lon), 64)
	if err != nil {
		return geo.Place{}, false
	}
	coord := geo.Coordinate{Latitude: lat, Longitude: lon}
	if !coord.Valid() {
		return geo.Place{}, false
	}
	name := strings.TrimSpace(r.DisplayName)
	if name == "" {
		name = strings.TrimSpace(r.Name)
	}
	return geo.Place{Coordinate: coord, Name: name}, true
}

func cacheKey(query string, limit int) string {
	return strconv.Itoa(limit) + ":" + strings.ToLower(query)
}

func clonePlaces(in []geo.Place) []geo.Place {
	if in == nil {
		return nil
	}
	out := make([]geo.Place, len(in))
	copy(out, in)
	return out
}
