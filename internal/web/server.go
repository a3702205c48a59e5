// Package web exposes the catalog over a REST surface with stable JSON
// contracts.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ariejan/apollo/internal/engine"
	"github.com/ariejan/apollo/internal/music"
)

const defaultPageSize = 50

// Server serves the REST API over an assembled engine.
type Server struct {
	engine *engine.Engine
	log    *zap.Logger
}

// NewServer creates a server bound to an engine.
func NewServer(e *engine.Engine, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{engine: e, log: log}
}

// Router builds the API route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)

	r.HandleFunc("/api/tracks", s.handleListTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/{id}", s.handleGetTrack).Methods(http.MethodGet)
	r.HandleFunc("/api/tracks/{id}", s.handleDeleteTrack).Methods(http.MethodDelete)

	r.HandleFunc("/api/albums", s.handleListAlbums).Methods(http.MethodGet)
	r.HandleFunc("/api/albums/{id}", s.handleGetAlbum).Methods(http.MethodGet)
	r.HandleFunc("/api/albums/{id}/tracks", s.handleAlbumTracks).Methods(http.MethodGet)

	r.HandleFunc("/api/playlists", s.handleListPlaylists).Methods(http.MethodGet)
	r.HandleFunc("/api/playlists", s.handleCreatePlaylist).Methods(http.MethodPost)
	r.HandleFunc("/api/playlists/{id}", s.handleGetPlaylist).Methods(http.MethodGet)
	r.HandleFunc("/api/playlists/{id}", s.handleDeletePlaylist).Methods(http.MethodDelete)
	r.HandleFunc("/api/playlists/{id}/tracks", s.handlePlaylistTracks).Methods(http.MethodGet)
	r.HandleFunc("/api/playlists/{id}/tracks", s.handlePlaylistAddTrack).Methods(http.MethodPost)
	r.HandleFunc("/api/playlists/{id}/tracks", s.handlePlaylistRemoveTrack).Methods(http.MethodDelete)
	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, host string, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("web server listening", zap.String("addr", srv.Addr))
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// page is the pagination envelope; total is the full matching count.
type page struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// apiError is the error envelope.
type apiError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

// writeError maps domain error kinds onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		notFound *music.NotFoundError
		exists   *music.AlreadyExistsError
		badQuery *music.BadQueryError
	)
	switch {
	case errors.As(err, &notFound):
		s.writeJSON(w, http.StatusNotFound, apiError{ErrorType: "not_found", Message: err.Error()})
	case errors.As(err, &exists):
		s.writeJSON(w, http.StatusConflict, apiError{ErrorType: "already_exists", Message: err.Error()})
	case errors.As(err, &badQuery):
		s.writeJSON(w, http.StatusBadRequest, apiError{ErrorType: "bad_request", Message: err.Error()})
	default:
		s.log.Error("internal error", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, apiError{ErrorType: "internal", Message: "internal error"})
	}
}

func pagination(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
