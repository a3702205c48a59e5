package library

import (
	"context"
	"strings"

	"github.com/ariejan/apollo/internal/music"
)

// FindExactDuplicates returns groups of tracks sharing a file hash. Each
// group holds two or more byte-identical files, oldest first.
func (l *Library) FindExactDuplicates(ctx context.Context) ([][]*music.Track, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT file_hash FROM tracks
		WHERE file_hash != ''
		GROUP BY file_hash
		HAVING COUNT(*) > 1
		ORDER BY COUNT(*) DESC, file_hash`)
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			rows.Close()
			return nil, &music.StoreError{Err: err}
		}
		hashes = append(hashes, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, &music.StoreError{Err: err}
	}

	var groups [][]*music.Track
	for _, hash := range hashes {
		trackRows, err := l.db.QueryContext(ctx,
			`SELECT `+trackColumns+` FROM tracks WHERE file_hash = ? ORDER BY added_at, id`, hash)
		if err != nil {
			return nil, &music.StoreError{Err: err}
		}
		tracks, err := collectTracks(trackRows)
		trackRows.Close()
		if err != nil {
			return nil, err
		}
		groups = append(groups, tracks)
	}
	return groups, nil
}

// FindSimilarDuplicates returns groups of tracks that look like the same
// recording: equal title and artist (case-insensitive) with durations
// within toleranceMS of each other.
func (l *Library) FindSimilarDuplicates(ctx context.Context, toleranceMS int64) ([][]*music.Track, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+prefixColumns("t1.", trackColumns)+`
		FROM tracks t1
		JOIN tracks t2 ON t1.title = t2.title COLLATE NOCASE
			AND t1.artist = t2.artist COLLATE NOCASE
			AND t1.id != t2.id
			AND ABS(t1.duration_ms - t2.duration_ms) <= ?
		GROUP BY t1.id
		ORDER BY t1.artist, t1.title, t1.added_at`, toleranceMS)
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	defer rows.Close()

	tracks, err := collectTracks(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]*music.Track)
	var order []string
	for _, t := range tracks {
		key := strings.ToLower(t.Artist) + "||" + strings.ToLower(t.Title)
		if _, ok := grouped[key]; !ok {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], t)
	}

	var groups [][]*music.Track
	for _, key := range order {
		if g := grouped[key]; len(g) > 1 {
			groups = append(groups, g)
		}
	}
	return groups, nil
}
