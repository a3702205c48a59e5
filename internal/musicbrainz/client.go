// Package musicbrainz looks up recording metadata for the importer's
// optional auto-tag step. Responses are cached on disk and requests obey
// the MusicBrainz one-per-second rate limit.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	baseURL      = "https://musicbrainz.org/ws/2"
	rateLimitDur = time.Second // MusicBrainz requires 1 request per second

	// minMatchScore is the lowest search score accepted as a match.
	minMatchScore = 80
	// durationToleranceMS bounds the duration delta for accepted matches.
	durationToleranceMS = 10_000
)

// Client provides access to the MusicBrainz recording search.
type Client struct {
	httpClient  *http.Client
	userAgent   string
	cache       *Cache
	lastRequest time.Time
	mu          sync.Mutex

	// base is overridable for tests.
	base string
}

// NewClient creates a client identifying as appName (contact per the
// MusicBrainz etiquette). A nil cache disables response caching.
func NewClient(appName, contact string, cache *Cache) *Client {
	ua := appName
	if contact != "" {
		ua = fmt.Sprintf("%s (%s)", appName, contact)
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  ua,
		cache:      cache,
		base:       baseURL,
	}
}

// recordingSearchResponse is the subset of the search payload we read.
type recordingSearchResponse struct {
	Recordings []Recording `json:"recordings"`
}

// Recording is one recording search result.
type Recording struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Score        int    `json:"score"`
	LengthMS     int64  `json:"length"`
	ArtistCredit []struct {
		Name string `json:"name"`
	} `json:"artist-credit"`
}

// ArtistName returns the first credited artist.
func (r *Recording) ArtistName() string {
	if len(r.ArtistCredit) > 0 {
		return r.ArtistCredit[0].Name
	}
	return ""
}

// SearchRecordings runs a recording search with the given Lucene query.
func (c *Client) SearchRecordings(ctx context.Context, query string) ([]Recording, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", "10")
	reqURL := fmt.Sprintf("%s/recording?%s", c.base, params.Encode())

	if c.cache != nil {
		var cached recordingSearchResponse
		if ok, _ := c.cache.Get(reqURL, &cached); ok {
			return cached.Recordings, nil
		}
	}

	c.waitForRateLimit()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API status %d: %s", resp.StatusCode, string(body))
	}

	var result recordingSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if c.cache != nil {
		_ = c.cache.Put(reqURL, result)
	}
	return result.Recordings, nil
}

// FindRecordingID returns the best-matching recording id for a track, or
// "" when nothing scores high enough. Satisfies the importer's lookup
// interface.
func (c *Client) FindRecordingID(ctx context.Context, title, artist, album string, durationMS int64) (string, error) {
	query := fmt.Sprintf(`recording:%s AND artist:%s`, quoteLucene(title), quoteLucene(artist))
	if album != "" {
		query += " AND release:" + quoteLucene(album)
	}

	recordings, err := c.SearchRecordings(ctx, query)
	if err != nil {
		return "", err
	}
	for _, rec := range recordings {
		if rec.Score < minMatchScore {
			continue
		}
		if durationMS > 0 && rec.LengthMS > 0 {
			delta := durationMS - rec.LengthMS
			if delta < 0 {
				delta = -delta
			}
			if delta > durationToleranceMS {
				continue
			}
		}
		return rec.ID, nil
	}
	return "", nil
}

// quoteLucene quotes a term for the MusicBrainz Lucene query syntax.
func quoteLucene(s string) string {
	return strconv.Quote(s)
}

// waitForRateLimit ensures we don't exceed MusicBrainz rate limits.
func (c *Client) waitForRateLimit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.lastRequest)
	if elapsed < rateLimitDur {
		time.Sleep(rateLimitDur - elapsed)
	}
	c.lastRequest = time.Now()
}
