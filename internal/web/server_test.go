package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariejan/apollo/internal/config"
	"github.com/ariejan/apollo/internal/engine"
	"github.com/ariejan/apollo/internal/importer"
	"github.com/ariejan/apollo/internal/library"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/playlists"
	"github.com/ariejan/apollo/internal/plugin"
)

func testServer(t *testing.T) (*library.Library, *httptest.Server) {
	t.Helper()
	lib, err := library.OpenMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	hooks := plugin.NewHost(0, nil)
	t.Cleanup(hooks.Close)
	e := &engine.Engine{
		Config:    config.Default(),
		Library:   lib,
		Hooks:     hooks,
		Importer:  importer.New(lib, hooks, nil),
		Playlists: playlists.New(lib),
	}
	srv := httptest.NewServer(NewServer(e, nil).Router())
	t.Cleanup(srv.Close)
	return lib, srv
}

func addTrack(t *testing.T, lib *library.Library, path, title, artist string) *music.Track {
	t.Helper()
	tr := music.NewTrack(path, title, artist, 180_000)
	tr.Format = music.FormatMP3
	tr.FileHash = "hash-" + path
	require.NoError(t, lib.AddTrack(context.Background(), tr))
	return tr
}

func getJSON(t *testing.T, url string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealth(t *testing.T) {
	_, srv := testServer(t)
	var body map[string]string
	resp := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestListTracksPagination(t *testing.T) {
	lib, srv := testServer(t)
	addTrack(t, lib, "/m/a.mp3", "Alpha", "X")
	addTrack(t, lib, "/m/b.mp3", "Beta", "X")
	addTrack(t, lib, "/m/c.mp3", "Gamma", "X")

	var body struct {
		Items  []trackJSON `json:"items"`
		Total  int         `json:"total"`
		Limit  int         `json:"limit"`
		Offset int         `json:"offset"`
	}
	resp := getJSON(t, srv.URL+"/api/tracks?limit=2&offset=1&sort=title", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 2, body.Limit)
	assert.Equal(t, 1, body.Offset)
	require.Len(t, body.Items, 2)
	assert.Equal(t, "Beta", body.Items[0].Title)
}

func TestGetTrackNotFound(t *testing.T) {
	_, srv := testServer(t)
	var body apiError
	resp := getJSON(t, srv.URL+"/api/tracks/0e5ccd4f-6c07-44d4-a2ea-95aa46b25b73", &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body.ErrorType)
}

func TestGetTrackBadID(t *testing.T) {
	_, srv := testServer(t)
	resp := getJSON(t, srv.URL+"/api/tracks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchEndpoint(t *testing.T) {
	lib, srv := testServer(t)
	addTrack(t, lib, "/m/a.mp3", "Bohemian Rhapsody", "Queen")
	addTrack(t, lib, "/m/b.mp3", "Something Else", "Who")

	var body struct {
		Items []trackJSON `json:"items"`
		Total int         `json:"total"`
	}
	resp := getJSON(t, srv.URL+"/api/search?q=bohemian", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Items, 1)
	assert.Equal(t, "Bohemian Rhapsody", body.Items[0].Title)

	resp = getJSON(t, srv.URL+"/api/search?q=badkey:value", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAlbumEndpoints(t *testing.T) {
	lib, srv := testServer(t)
	ctx := context.Background()

	album := music.NewAlbum("Debut", "The Band")
	require.NoError(t, lib.AddAlbum(ctx, album))
	tr := music.NewTrack("/m/1.mp3", "One", "The Band", 60_000)
	tr.Format = music.FormatMP3
	tr.FileHash = "h1"
	tr.AlbumID = &album.ID
	require.NoError(t, lib.AddTrack(ctx, tr))

	var got albumJSON
	resp := getJSON(t, srv.URL+"/api/albums/"+album.ID.String(), &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Debut", got.Title)
	assert.Equal(t, 1, got.TrackCount)

	var tracks []trackJSON
	resp = getJSON(t, srv.URL+"/api/albums/"+album.ID.String()+"/tracks", &tracks)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, tracks, 1)
	assert.Equal(t, "One", tracks[0].Title)
}

func TestPlaylistLifecycle(t *testing.T) {
	lib, srv := testServer(t)
	tr := addTrack(t, lib, "/m/a.mp3", "A", "X")

	// Create a static playlist.
	payload, _ := json.Marshal(createPlaylistRequest{Name: "Mix", Kind: "static"})
	resp, err := http.Post(srv.URL+"/api/playlists", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	var created playlistJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Add a track.
	body, _ := json.Marshal(map[string]string{"track_id": tr.ID.String()})
	resp, err = http.Post(srv.URL+"/api/playlists/"+created.ID+"/tracks", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// List its tracks.
	var tracks []trackJSON
	getJSON(t, srv.URL+"/api/playlists/"+created.ID+"/tracks", &tracks)
	require.Len(t, tracks, 1)
	assert.Equal(t, "A", tracks[0].Title)

	// Remove the track.
	req, _ := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/playlists/"+created.ID+"/tracks?track_id="+tr.ID.String(), nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Delete the playlist.
	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/playlists/"+created.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCreateSmartPlaylistValidatesQuery(t *testing.T) {
	_, srv := testServer(t)

	q := "bogus:field"
	payload, _ := json.Marshal(createPlaylistRequest{Name: "Bad", Kind: "smart", Query: &q})
	resp, err := http.Post(srv.URL+"/api/playlists", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	lib, srv := testServer(t)
	addTrack(t, lib, "/m/a.mp3", "A", "X")

	var stats map[string]any
	resp := getJSON(t, srv.URL+"/api/stats", &stats)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, stats["tracks"])
}
