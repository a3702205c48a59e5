package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPayload = `{
	"recordings": [
		{
			"id": "good-match",
			"title": "Bohemian Rhapsody",
			"score": 100,
			"length": 354000,
			"artist-credit": [{"name": "Queen"}]
		},
		{
			"id": "low-score",
			"title": "Bohemian Rhapsody (live)",
			"score": 50,
			"length": 360000,
			"artist-credit": [{"name": "Queen"}]
		}
	]
}`

func testClient(t *testing.T, handler http.HandlerFunc, cache *Cache) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("apollo-test", "test@example.com", cache)
	c.base = srv.URL
	return c
}

func TestFindRecordingID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), "Bohemian")
		assert.Contains(t, r.Header.Get("User-Agent"), "apollo-test")
		w.Write([]byte(searchPayload))
	}, nil)

	id, err := c.FindRecordingID(context.Background(), "Bohemian Rhapsody", "Queen", "A Night at the Opera", 354_000)
	require.NoError(t, err)
	assert.Equal(t, "good-match", id)
}

func TestFindRecordingIDRejectsDurationMismatch(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(searchPayload))
	}, nil)

	// 60 seconds off: outside tolerance, and the low-score fallback is
	// filtered too.
	id, err := c.FindRecordingID(context.Background(), "Bohemian Rhapsody", "Queen", "", 294_000)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSearchUsesCache(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Hour)
	require.NoError(t, err)

	calls := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(searchPayload))
	}, cache)

	for range 2 {
		recs, err := c.SearchRecordings(context.Background(), "anything")
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	}
	assert.Equal(t, 1, calls)
}

func TestCacheTTLExpiry(t *testing.T) {
	cache, err := NewCache(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)

	require.NoError(t, cache.Put("key", map[string]string{"a": "b"}))
	time.Sleep(time.Millisecond)

	var out map[string]string
	ok, err := cache.Get("key", &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir(), 0)
	require.NoError(t, err)

	require.NoError(t, cache.Put("key", map[string]int{"n": 7}))
	var out map[string]int
	ok, err := cache.Get("key", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, out["n"])
}

func TestServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}, nil)

	_, err := c.SearchRecordings(context.Background(), "q")
	assert.Error(t, err)
}
