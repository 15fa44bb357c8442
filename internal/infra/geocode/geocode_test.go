package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	sherrors "georemind/internal/shared/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nominatimBody = `[
  {"lat":"48.8583701","lon":"2.2944813","display_name":"Tour Eiffel, Paris","name":"Tour Eiffel"},
  {"lat":"not-a-number","lon":"2.0","display_name":"Broken"},
  {"lat":"48.8606","lon":"2.3376","display_name":"","name":"Louvre"}
]`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithHTTPClient(srv.Client())}, opts...)
	client, err := New(Config{BaseURL: srv.URL, RatePerSecond: 1000}, opts...)
	require.NoError(t, err)
	return client
}

func TestSearchParsesResults(t *testing.T) {
	var query, format, limit string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		query = r.URL.Query().Get("q")
		format = r.URL.Query().Get("format")
		limit = r.URL.Query().Get("limit")
		_, _ = w.Write([]byte(nominatimBody))
	})

	places, err := client.Search(context.Background(), "  eiffel tower ", 3)
	require.NoError(t, err)
	require.Len(t, places, 2)

	assert.Equal(t, "eiffel tower", query)
	assert.Equal(t, "jsonv2", format)
	assert.Equal(t, "3", limit)
	assert.Equal(t, "Tour Eiffel, Paris", places[0].Name)
	assert.InDelta(t, 48.8583701, places[0].Latitude, 1e-9)
	assert.InDelta(t, 2.2944813, places[0].Longitude, 1e-9)
	assert.Equal(t, "Louvre", places[1].Name)
}

func TestSearchCachesUntilTTL(t *testing.T) {
	var hits atomic.Int32
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(nominatimBody))
	}, WithClock(func() time.Time { return now }))

	_, err := client.Search(context.Background(), "Eiffel Tower", 5)
	require.NoError(t, err)
	places, err := client.Search(context.Background(), "eiffel tower", 5)
	require.NoError(t, err)
	require.Len(t, places, 2)
	assert.Equal(t, int32(1), hits.Load())

	places[0].Name = "mutated"
	again, err := client.Search(context.Background(), "eiffel tower", 5)
	require.NoError(t, err)
	assert.Equal(t, "Tour Eiffel, Paris", again[0].Name)

	now = now.Add(defaultCacheTTL + time.Second)
	_, err = client.Search(context.Background(), "eiffel tower", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("blank query must not reach upstream")
	})
	_, err := client.Search(context.Background(), "   ", 5)
	assert.True(t, errors.Is(err, ErrEmptyQuery))
}

func TestSearchReportsThrottlingAsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.Search(context.Background(), "paris", 1)
	require.Error(t, err)
	assert.True(t, sherrors.IsTransient(err))
}

func TestSearchClientErrorIsNotTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := client.Search(context.Background(), "paris", 1)
	require.Error(t, err)
	assert.False(t, sherrors.IsTransient(err))
}

func TestSearchHonoursContextWhileRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()
	client, err := New(Config{BaseURL: srv.URL, RatePerSecond: 0.001}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "first", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = client.Search(ctx, "second", 1)
	assert.Error(t, err)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "::not a url"})
	assert.Error(t, err)
}
