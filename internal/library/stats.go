package library

import (
	"context"

	"github.com/ariejan/apollo/internal/music"
)

// Stats summarizes the catalog.
type Stats struct {
	Tracks          int   `json:"tracks"`
	Albums          int   `json:"albums"`
	Playlists       int   `json:"playlists"`
	Artists         int   `json:"artists"`
	TotalDurationMS int64 `json:"total_duration_ms"`
}

// Stats computes catalog-wide aggregates in a single snapshot read.
func (l *Library) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM albums),
			(SELECT COUNT(*) FROM playlists),
			(SELECT COUNT(DISTINCT artist) FROM tracks),
			(SELECT COALESCE(SUM(duration_ms), 0) FROM tracks)
	`).Scan(&s.Tracks, &s.Albums, &s.Playlists, &s.Artists, &s.TotalDurationMS)
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	return &s, nil
}
