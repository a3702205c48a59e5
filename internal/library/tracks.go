package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	dbutil "github.com/ariejan/apollo/internal/db"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
)

const trackColumns = `id, path, title, artist, album_artist, album_id, album_title,
	track_number, track_total, disc_number, disc_total, year,
	genres, duration_ms, bitrate, sample_rate, channels, format,
	musicbrainz_id, acoustid, added_at, modified_at, file_hash`

// timeFormat stores timestamps as RFC 3339 UTC so they roundtrip exactly
// and sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func genresJSON(genres []string) string {
	if len(genres) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(genres)
	return string(b)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (*music.Track, error) {
	var t music.Track
	var idStr, genres, format, addedAt, modifiedAt string
	var albumArtist, albumID, albumTitle, mbid, acoustid sql.NullString
	var trackNum, trackTotal, discNum, discTotal, year, bitrate, sampleRate, channels sql.NullInt64

	err := row.Scan(&idStr, &t.Path, &t.Title, &t.Artist, &albumArtist, &albumID, &albumTitle,
		&trackNum, &trackTotal, &discNum, &discTotal, &year,
		&genres, &t.DurationMS, &bitrate, &sampleRate, &channels, &format,
		&mbid, &acoustid, &addedAt, &modifiedAt, &t.FileHash)
	if err != nil {
		return nil, err
	}

	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, &music.StoreError{Detail: "invalid track id", Err: err}
	}
	if albumID.Valid {
		id, err := uuid.Parse(albumID.String)
		if err != nil {
			return nil, &music.StoreError{Detail: "invalid album id", Err: err}
		}
		t.AlbumID = &id
	}
	if err := json.Unmarshal([]byte(genres), &t.Genres); err != nil {
		return nil, &music.StoreError{Detail: "invalid genres", Err: err}
	}
	if len(t.Genres) == 0 {
		t.Genres = nil
	}
	t.AlbumArtist = dbutil.StringPtr(albumArtist)
	t.AlbumTitle = dbutil.StringPtr(albumTitle)
	t.MusicBrainz = dbutil.StringPtr(mbid)
	t.AcoustID = dbutil.StringPtr(acoustid)
	t.TrackNumber = dbutil.IntPtr(trackNum)
	t.TrackTotal = dbutil.IntPtr(trackTotal)
	t.DiscNumber = dbutil.IntPtr(discNum)
	t.DiscTotal = dbutil.IntPtr(discTotal)
	t.Year = dbutil.IntPtr(year)
	t.Bitrate = dbutil.IntPtr(bitrate)
	t.SampleRate = dbutil.IntPtr(sampleRate)
	t.Channels = dbutil.IntPtr(channels)
	t.Format = music.ParseAudioFormat(format)
	if t.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid added_at", Err: err}
	}
	if t.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid modified_at", Err: err}
	}
	return &t, nil
}

func trackArgs(t *music.Track) []any {
	var albumID *string
	if t.AlbumID != nil {
		s := t.AlbumID.String()
		albumID = &s
	}
	return []any{
		t.ID.String(), t.Path, t.Title, t.Artist,
		dbutil.NullString(t.AlbumArtist), dbutil.NullString(albumID), dbutil.NullString(t.AlbumTitle),
		dbutil.NullInt(t.TrackNumber), dbutil.NullInt(t.TrackTotal),
		dbutil.NullInt(t.DiscNumber), dbutil.NullInt(t.DiscTotal), dbutil.NullInt(t.Year),
		genresJSON(t.Genres), t.DurationMS,
		dbutil.NullInt(t.Bitrate), dbutil.NullInt(t.SampleRate), dbutil.NullInt(t.Channels),
		string(t.Format), dbutil.NullString(t.MusicBrainz), dbutil.NullString(t.AcoustID),
		formatTime(t.AddedAt), formatTime(t.ModifiedAt), t.FileHash,
	}
}

const insertTrackSQL = `
	INSERT INTO tracks (` + trackColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// AddTrack inserts a track and bumps its album's counter. Fails with
// AlreadyExists when the path is taken.
func (l *Library) AddTrack(ctx context.Context, t *music.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `SELECT id FROM tracks WHERE path = ?`, t.Path).Scan(&existing)
		switch {
		case err == nil:
			return &music.AlreadyExistsError{Entity: "track", Key: t.Path}
		case err != sql.ErrNoRows:
			return &music.StoreError{Err: err}
		}
		if _, err := tx.ExecContext(ctx, insertTrackSQL, trackArgs(t)...); err != nil {
			return &music.StoreError{Err: err}
		}
		if t.AlbumID != nil {
			if err := bumpAlbumCount(ctx, tx, *t.AlbumID, 1); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateTrack upserts a track by id, recomputing album counters when the
// album reference changed.
func (l *Library) UpdateTrack(ctx context.Context, t *music.Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	t.ModifiedAt = time.Now().UTC()
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var oldAlbum sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT album_id FROM tracks WHERE id = ?`, t.ID.String()).Scan(&oldAlbum)
		if err == sql.ErrNoRows {
			if _, err := tx.ExecContext(ctx, insertTrackSQL, trackArgs(t)...); err != nil {
				return &music.StoreError{Err: err}
			}
			if t.AlbumID != nil {
				return bumpAlbumCount(ctx, tx, *t.AlbumID, 1)
			}
			return nil
		}
		if err != nil {
			return &music.StoreError{Err: err}
		}

		args := trackArgs(t)
		_, err = tx.ExecContext(ctx, `
			UPDATE tracks SET
				path = ?, title = ?, artist = ?, album_artist = ?, album_id = ?,
				album_title = ?, track_number = ?, track_total = ?, disc_number = ?,
				disc_total = ?, year = ?, genres = ?, duration_ms = ?, bitrate = ?,
				sample_rate = ?, channels = ?, format = ?, musicbrainz_id = ?,
				acoustid = ?, added_at = ?, modified_at = ?, file_hash = ?
			WHERE id = ?`, append(args[1:], t.ID.String())...)
		if err != nil {
			return &music.StoreError{Err: err}
		}

		newAlbum := ""
		if t.AlbumID != nil {
			newAlbum = t.AlbumID.String()
		}
		if oldAlbum.String != newAlbum || oldAlbum.Valid != (t.AlbumID != nil) {
			if oldAlbum.Valid {
				if err := recountAlbum(ctx, tx, oldAlbum.String); err != nil {
					return err
				}
			}
			if t.AlbumID != nil {
				if err := recountAlbum(ctx, tx, newAlbum); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// SetTrackPath updates only a track's path and modified_at, used when an
// import detects a moved file.
func (l *Library) SetTrackPath(ctx context.Context, id uuid.UUID, path string) error {
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx,
		`UPDATE tracks SET path = ?, modified_at = ? WHERE id = ?`,
		path, formatTime(now), id.String())
	if err != nil {
		return &music.StoreError{Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &music.NotFoundError{Entity: "track", Key: id.String()}
	}
	return nil
}

// RemoveTrack deletes a track, cascades to playlist entries (keeping
// positions dense) and decrements its album's counter.
func (l *Library) RemoveTrack(ctx context.Context, id uuid.UUID) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var albumID sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT album_id FROM tracks WHERE id = ?`, id.String()).Scan(&albumID)
		if err == sql.ErrNoRows {
			return &music.NotFoundError{Entity: "track", Key: id.String()}
		}
		if err != nil {
			return &music.StoreError{Err: err}
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT DISTINCT playlist_id FROM playlist_tracks WHERE track_id = ?`, id.String())
		if err != nil {
			return &music.StoreError{Err: err}
		}
		var affected []string
		for rows.Next() {
			var pid string
			if err := rows.Scan(&pid); err != nil {
				rows.Close()
				return &music.StoreError{Err: err}
			}
			affected = append(affected, pid)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return &music.StoreError{Err: err}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tracks WHERE id = ?`, id.String()); err != nil {
			return &music.StoreError{Err: err}
		}
		for _, pid := range affected {
			if err := renumberPlaylist(ctx, tx, pid); err != nil {
				return err
			}
		}
		if albumID.Valid {
			aid, err := uuid.Parse(albumID.String)
			if err == nil {
				if err := bumpAlbumCount(ctx, tx, aid, -1); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// GetTrack returns a track by id.
func (l *Library) GetTrack(ctx context.Context, id uuid.UUID) (*music.Track, error) {
	return l.getTrackWhere(ctx, "id = ?", id.String())
}

// GetTrackByPath returns a track by its unique path.
func (l *Library) GetTrackByPath(ctx context.Context, path string) (*music.Track, error) {
	return l.getTrackWhere(ctx, "path = ?", path)
}

// GetTrackByHash returns the first track with the given content hash.
func (l *Library) GetTrackByHash(ctx context.Context, hash string) (*music.Track, error) {
	return l.getTrackWhere(ctx, "file_hash = ?", hash)
}

func (l *Library) getTrackWhere(ctx context.Context, where string, arg any) (*music.Track, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE `+where+` LIMIT 1`, arg)
	t, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, &music.NotFoundError{Entity: "track", Key: toStr(arg)}
	}
	if err != nil {
		if _, ok := err.(*music.StoreError); ok {
			return nil, err
		}
		return nil, &music.StoreError{Err: err}
	}
	return t, nil
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// ListTracks returns one page of tracks plus the full matching count.
func (l *Library) ListTracks(ctx context.Context, sort music.Sort, limit, offset int) ([]*music.Track, int, error) {
	return l.FindTracks(ctx, &query.Query{}, sort, limit, offset)
}

// FindTracks evaluates a parsed query against the catalog, returning one
// page of matches and the total match count.
func (l *Library) FindTracks(ctx context.Context, q *query.Query, sort music.Sort, limit, offset int) ([]*music.Track, int, error) {
	where, args := q.WhereSQL()

	var total int
	countArgs := append([]any{}, args...)
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks WHERE `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}

	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, offset)
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE `+where+
			` ORDER BY `+query.OrderBySQL(sort)+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}
	defer rows.Close()

	tracks, err := collectTracks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tracks, total, nil
}

// SearchTracks runs a raw FTS expression, ordered by relevance.
func (l *Library) SearchTracks(ctx context.Context, expr string, limit, offset int) ([]*music.Track, int, error) {
	var total int
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tracks_fts WHERE tracks_fts MATCH ?`, expr).Scan(&total); err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+prefixColumns("t.", trackColumns)+`
		FROM tracks t
		JOIN tracks_fts fts ON t.rowid = fts.rowid
		WHERE tracks_fts MATCH ?
		ORDER BY rank, t.id
		LIMIT ? OFFSET ?`, expr, limit, offset)
	if err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}
	defer rows.Close()

	tracks, err := collectTracks(rows)
	if err != nil {
		return nil, 0, err
	}
	return tracks, total, nil
}

// CountTracks returns the number of tracks in the catalog.
func (l *Library) CountTracks(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n)
	if err != nil {
		return 0, &music.StoreError{Err: err}
	}
	return n, nil
}

func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func collectTracks(rows *sql.Rows) ([]*music.Track, error) {
	var tracks []*music.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, &music.StoreError{Err: err}
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &music.StoreError{Err: err}
	}
	return tracks, nil
}
