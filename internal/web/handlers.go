package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
)

// trackJSON is the wire shape of a track.
type trackJSON struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	AlbumArtist *string  `json:"album_artist"`
	AlbumID     *string  `json:"album_id"`
	AlbumTitle  *string  `json:"album_title"`
	TrackNumber *int     `json:"track_number"`
	TrackTotal  *int     `json:"track_total"`
	DiscNumber  *int     `json:"disc_number"`
	DiscTotal   *int     `json:"disc_total"`
	Year        *int     `json:"year"`
	Genres      []string `json:"genres"`
	DurationMS  int64    `json:"duration_ms"`
	Bitrate     *int     `json:"bitrate"`
	SampleRate  *int     `json:"sample_rate"`
	Channels    *int     `json:"channels"`
	Format      string   `json:"format"`
	MusicBrainz *string  `json:"musicbrainz_id"`
	AcoustID    *string  `json:"acoustid"`
	AddedAt     string   `json:"added_at"`
	ModifiedAt  string   `json:"modified_at"`
	FileHash    string   `json:"file_hash"`
}

func toTrackJSON(t *music.Track) trackJSON {
	var albumID *string
	if t.AlbumID != nil {
		s := t.AlbumID.String()
		albumID = &s
	}
	genres := t.Genres
	if genres == nil {
		genres = []string{}
	}
	return trackJSON{
		ID:          t.ID.String(),
		Path:        t.Path,
		Title:       t.Title,
		Artist:      t.Artist,
		AlbumArtist: t.AlbumArtist,
		AlbumID:     albumID,
		AlbumTitle:  t.AlbumTitle,
		TrackNumber: t.TrackNumber,
		TrackTotal:  t.TrackTotal,
		DiscNumber:  t.DiscNumber,
		DiscTotal:   t.DiscTotal,
		Year:        t.Year,
		Genres:      genres,
		DurationMS:  t.DurationMS,
		Bitrate:     t.Bitrate,
		SampleRate:  t.SampleRate,
		Channels:    t.Channels,
		Format:      string(t.Format),
		MusicBrainz: t.MusicBrainz,
		AcoustID:    t.AcoustID,
		AddedAt:     t.AddedAt.Format(time.RFC3339),
		ModifiedAt:  t.ModifiedAt.Format(time.RFC3339),
		FileHash:    t.FileHash,
	}
}

func toTrackList(tracks []*music.Track) []trackJSON {
	out := make([]trackJSON, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toTrackJSON(t))
	}
	return out
}

// albumJSON is the wire shape of an album.
type albumJSON struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Artist       string   `json:"artist"`
	Year         *int     `json:"year"`
	Genres       []string `json:"genres"`
	TrackCount   int      `json:"track_count"`
	DiscCount    int      `json:"disc_count"`
	MusicBrainz  *string  `json:"musicbrainz_id"`
	CoverArtPath *string  `json:"cover_art_path"`
	AddedAt      string   `json:"added_at"`
	ModifiedAt   string   `json:"modified_at"`
}

func toAlbumJSON(a *music.Album) albumJSON {
	genres := a.Genres
	if genres == nil {
		genres = []string{}
	}
	return albumJSON{
		ID:           a.ID.String(),
		Title:        a.Title,
		Artist:       a.Artist,
		Year:         a.Year,
		Genres:       genres,
		TrackCount:   a.TrackCount,
		DiscCount:    a.DiscCount,
		MusicBrainz:  a.MusicBrainz,
		CoverArtPath: a.CoverArtPath,
		AddedAt:      a.AddedAt.Format(time.RFC3339),
		ModifiedAt:   a.ModifiedAt.Format(time.RFC3339),
	}
}

// playlistJSON is the wire shape of a playlist definition.
type playlistJSON struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	Kind            string  `json:"kind"`
	Query           *string `json:"query"`
	Sort            string  `json:"sort"`
	MaxTracks       *int    `json:"max_tracks"`
	MaxDurationSecs *int64  `json:"max_duration_secs"`
	CreatedAt       string  `json:"created_at"`
	ModifiedAt      string  `json:"modified_at"`
}

func toPlaylistJSON(p *music.Playlist) playlistJSON {
	return playlistJSON{
		ID:              p.ID.String(),
		Name:            p.Name,
		Description:     p.Description,
		Kind:            string(p.Kind),
		Query:           p.Query,
		Sort:            string(p.Sort),
		MaxTracks:       p.MaxTracks,
		MaxDurationSecs: p.MaxDurationSecs,
		CreatedAt:       p.CreatedAt.Format(time.RFC3339),
		ModifiedAt:      p.ModifiedAt.Format(time.RFC3339),
	}
}

func pathID(r *http.Request) (uuid.UUID, error) {
	raw := mux.Vars(r)["id"]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &music.BadQueryError{Detail: "invalid id " + raw}
	}
	return id, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Library.Stats(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q, err := query.Parse(r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sort := music.ParseSort(r.URL.Query().Get("sort"))
	items, total, err := s.engine.Library.FindTracks(r.Context(), q, sort, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page{Items: toTrackList(items), Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	sort := music.ParseSort(r.URL.Query().Get("sort"))
	items, total, err := s.engine.Library.ListTracks(r.Context(), sort, limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page{Items: toTrackList(items), Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	t, err := s.engine.Library.GetTrack(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTrackJSON(t))
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Library.RemoveTrack(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListAlbums(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	items, total, err := s.engine.Library.ListAlbums(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]albumJSON, 0, len(items))
	for _, a := range items {
		out = append(out, toAlbumJSON(a))
	}
	s.writeJSON(w, http.StatusOK, page{Items: out, Total: total, Limit: limit, Offset: offset})
}

func (s *Server) handleGetAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.engine.Library.GetAlbum(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAlbumJSON(a))
}

func (s *Server) handleAlbumTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if _, err := s.engine.Library.GetAlbum(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	tracks, err := s.engine.Library.GetAlbumTracks(r.Context(), id, "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTrackList(tracks))
}

func (s *Server) handleListPlaylists(w http.ResponseWriter, r *http.Request) {
	items, err := s.engine.Library.ListPlaylists(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]playlistJSON, 0, len(items))
	for _, p := range items {
		out = append(out, toPlaylistJSON(p))
	}
	s.writeJSON(w, http.StatusOK, page{Items: out, Total: len(out), Limit: len(out), Offset: 0})
}

// createPlaylistRequest is the POST /api/playlists body.
type createPlaylistRequest struct {
	Name            string  `json:"name"`
	Description     *string `json:"description"`
	Kind            string  `json:"kind"`
	Query           *string `json:"query"`
	Sort            string  `json:"sort"`
	MaxTracks       *int    `json:"max_tracks"`
	MaxDurationSecs *int64  `json:"max_duration_secs"`
}

func (s *Server) handleCreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req createPlaylistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &music.BadQueryError{Detail: "invalid body"})
		return
	}
	if req.Name == "" {
		s.writeError(w, &music.BadQueryError{Detail: "name is required"})
		return
	}

	var p *music.Playlist
	switch req.Kind {
	case "smart":
		if req.Query == nil {
			s.writeError(w, &music.BadQueryError{Detail: "smart playlist requires query"})
			return
		}
		if _, err := query.Parse(*req.Query); err != nil {
			s.writeError(w, err)
			return
		}
		p = music.NewSmartPlaylist(req.Name, *req.Query)
	case "", "static":
		p = music.NewStaticPlaylist(req.Name)
	default:
		s.writeError(w, &music.BadQueryError{Detail: "unknown playlist kind " + req.Kind})
		return
	}
	p.Description = req.Description
	if req.Sort != "" {
		p.Sort = music.ParseSort(req.Sort)
	}
	p.MaxTracks = req.MaxTracks
	p.MaxDurationSecs = req.MaxDurationSecs

	if err := s.engine.Library.AddPlaylist(r.Context(), p); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toPlaylistJSON(p))
}

func (s *Server) handleGetPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.engine.Library.GetPlaylist(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toPlaylistJSON(p))
}

func (s *Server) handleDeletePlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.engine.Library.RemovePlaylist(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaylistTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tracks, err := s.engine.Playlists.Tracks(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTrackList(tracks))
}

func (s *Server) handlePlaylistAddTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var body struct {
		TrackID string `json:"track_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &music.BadQueryError{Detail: "invalid body"})
		return
	}
	trackID, err := uuid.Parse(body.TrackID)
	if err != nil {
		s.writeError(w, &music.BadQueryError{Detail: "invalid track_id"})
		return
	}
	if err := s.engine.Playlists.AddTrack(r.Context(), id, trackID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePlaylistRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	trackID, err := uuid.Parse(r.URL.Query().Get("track_id"))
	if err != nil {
		s.writeError(w, &music.BadQueryError{Detail: "invalid track_id"})
		return
	}
	if err := s.engine.Playlists.RemoveTrack(r.Context(), id, trackID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
