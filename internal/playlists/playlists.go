// Package playlists materializes static and smart playlists on top of
// the catalog store and query engine.
package playlists

import (
	"context"
	"math/rand"

	"github.com/google/uuid"

	"github.com/ariejan/apollo/internal/library"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
)

// Engine resolves playlist contents.
type Engine struct {
	lib *library.Library
}

// New creates a playlist engine over the catalog.
func New(lib *library.Library) *Engine {
	return &Engine{lib: lib}
}

// Tracks materializes a playlist. Static playlists return their entries
// in position order; smart playlists evaluate their persisted query,
// apply the sort, then truncate by max_tracks and cumulatively by
// max_duration_secs.
func (e *Engine) Tracks(ctx context.Context, id uuid.UUID) ([]*music.Track, error) {
	p, err := e.lib.GetPlaylist(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Kind == music.PlaylistStatic {
		return e.lib.GetPlaylistTracks(ctx, id)
	}
	return e.materialize(ctx, p)
}

func (e *Engine) materialize(ctx context.Context, p *music.Playlist) ([]*music.Track, error) {
	expr := ""
	if p.Query != nil {
		expr = *p.Query
	}
	q, err := query.Parse(expr)
	if err != nil {
		return nil, err
	}

	tracks, _, err := e.lib.FindTracks(ctx, q, p.Sort, 0, 0)
	if err != nil {
		return nil, err
	}
	if p.Sort == music.SortRandom {
		shuffle(tracks)
	}
	return truncate(tracks, p.MaxTracks, p.MaxDurationSecs), nil
}

// shuffle applies a uniformly sampled permutation per materialization.
func shuffle(tracks []*music.Track) {
	rand.Shuffle(len(tracks), func(i, j int) {
		tracks[i], tracks[j] = tracks[j], tracks[i]
	})
}

// truncate applies the track-count cap, then the cumulative duration
// budget: the list ends before the first track that would push the total
// past the limit (a track landing exactly on it is kept).
func truncate(tracks []*music.Track, maxTracks *int, maxDurationSecs *int64) []*music.Track {
	if maxTracks != nil && len(tracks) > *maxTracks {
		tracks = tracks[:*maxTracks]
	}
	if maxDurationSecs == nil {
		return tracks
	}
	budgetMS := *maxDurationSecs * 1000
	var totalMS int64
	for i, t := range tracks {
		totalMS += t.DurationMS
		if totalMS > budgetMS {
			return tracks[:i]
		}
	}
	return tracks
}

// AddTrack appends a track to a static playlist.
func (e *Engine) AddTrack(ctx context.Context, id, trackID uuid.UUID) error {
	if err := e.requireStatic(ctx, id); err != nil {
		return err
	}
	if _, err := e.lib.GetTrack(ctx, trackID); err != nil {
		return err
	}
	return e.lib.AppendPlaylistTrack(ctx, id, trackID)
}

// RemoveTrack removes a track from a static playlist, keeping positions
// dense.
func (e *Engine) RemoveTrack(ctx context.Context, id, trackID uuid.UUID) error {
	if err := e.requireStatic(ctx, id); err != nil {
		return err
	}
	return e.lib.RemovePlaylistTrack(ctx, id, trackID)
}

// Reorder replaces a static playlist's entry order with the supplied
// track id list.
func (e *Engine) Reorder(ctx context.Context, id uuid.UUID, trackIDs []uuid.UUID) error {
	if err := e.requireStatic(ctx, id); err != nil {
		return err
	}
	return e.lib.SetPlaylistTracks(ctx, id, trackIDs)
}

func (e *Engine) requireStatic(ctx context.Context, id uuid.UUID) error {
	p, err := e.lib.GetPlaylist(ctx, id)
	if err != nil {
		return err
	}
	if p.Kind != music.PlaylistStatic {
		return &music.BadQueryError{Detail: "playlist " + p.Name + " is not static"}
	}
	return nil
}
