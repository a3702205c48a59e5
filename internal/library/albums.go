package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbutil "github.com/ariejan/apollo/internal/db"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
)

const albumColumns = `id, title, artist, year, genres, track_count, disc_count,
	musicbrainz_id, cover_art_path, added_at, modified_at`

func scanAlbum(row rowScanner) (*music.Album, error) {
	var a music.Album
	var idStr, genres, addedAt, modifiedAt string
	var year sql.NullInt64
	var mbid, coverArt sql.NullString

	err := row.Scan(&idStr, &a.Title, &a.Artist, &year, &genres, &a.TrackCount, &a.DiscCount,
		&mbid, &coverArt, &addedAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	if a.ID, err = uuid.Parse(idStr); err != nil {
		return nil, &music.StoreError{Detail: "invalid album id", Err: err}
	}
	if err := json.Unmarshal([]byte(genres), &a.Genres); err != nil {
		return nil, &music.StoreError{Detail: "invalid genres", Err: err}
	}
	if len(a.Genres) == 0 {
		a.Genres = nil
	}
	a.Year = dbutil.IntPtr(year)
	a.MusicBrainz = dbutil.StringPtr(mbid)
	a.CoverArtPath = dbutil.StringPtr(coverArt)
	if a.AddedAt, err = parseTime(addedAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid added_at", Err: err}
	}
	if a.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid modified_at", Err: err}
	}
	return &a, nil
}

func albumArgs(a *music.Album) []any {
	return []any{
		a.ID.String(), a.Title, a.Artist, dbutil.NullInt(a.Year), genresJSON(a.Genres),
		a.TrackCount, a.DiscCount, dbutil.NullString(a.MusicBrainz),
		dbutil.NullString(a.CoverArtPath),
		NormalizeKey(a.Artist), NormalizeKey(a.Title),
		formatTime(a.AddedAt), formatTime(a.ModifiedAt),
	}
}

// AddAlbum inserts an album, recording its normalized match key.
func (l *Library) AddAlbum(ctx context.Context, a *music.Album) error {
	if err := a.Validate(); err != nil {
		return err
	}
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		return insertAlbum(ctx, tx, a)
	})
}

func insertAlbum(ctx context.Context, tx *sql.Tx, a *music.Album) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO albums (id, title, artist, year, genres, track_count, disc_count,
			musicbrainz_id, cover_art_path, artist_key, title_key, added_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, albumArgs(a)...)
	if err != nil {
		return &music.StoreError{Err: err}
	}
	return nil
}

// UpdateAlbum rewrites an album's mutable fields.
func (l *Library) UpdateAlbum(ctx context.Context, a *music.Album) error {
	if err := a.Validate(); err != nil {
		return err
	}
	a.ModifiedAt = time.Now().UTC()
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		return updateAlbum(ctx, tx, a)
	})
}

func updateAlbum(ctx context.Context, tx *sql.Tx, a *music.Album) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE albums SET
			title = ?, artist = ?, year = ?, genres = ?, track_count = ?,
			disc_count = ?, musicbrainz_id = ?, cover_art_path = ?,
			artist_key = ?, title_key = ?, modified_at = ?
		WHERE id = ?`,
		a.Title, a.Artist, dbutil.NullInt(a.Year), genresJSON(a.Genres),
		a.TrackCount, a.DiscCount, dbutil.NullString(a.MusicBrainz),
		dbutil.NullString(a.CoverArtPath),
		NormalizeKey(a.Artist), NormalizeKey(a.Title),
		formatTime(a.ModifiedAt), a.ID.String())
	if err != nil {
		return &music.StoreError{Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &music.NotFoundError{Entity: "album", Key: a.ID.String()}
	}
	return nil
}

// RemoveAlbum deletes an album. Child tracks keep their rows; their
// album_id reference becomes null.
func (l *Library) RemoveAlbum(ctx context.Context, id uuid.UUID) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE tracks SET album_id = NULL WHERE album_id = ?`, id.String()); err != nil {
			return &music.StoreError{Err: err}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM albums WHERE id = ?`, id.String())
		if err != nil {
			return &music.StoreError{Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &music.NotFoundError{Entity: "album", Key: id.String()}
		}
		return nil
	})
}

// PurgeEmptyAlbums removes albums with no remaining tracks. Albums are
// retained when their last track leaves, so this is the explicit cleanup.
func (l *Library) PurgeEmptyAlbums(ctx context.Context) (int, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM albums WHERE track_count = 0`)
	if err != nil {
		return 0, &music.StoreError{Err: err}
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// GetAlbum returns an album by id.
func (l *Library) GetAlbum(ctx context.Context, id uuid.UUID) (*music.Album, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+albumColumns+` FROM albums WHERE id = ?`, id.String())
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, &music.NotFoundError{Entity: "album", Key: id.String()}
	}
	if err != nil {
		return nil, wrapStore(err)
	}
	return a, nil
}

// FindAlbumByKey looks an album up by the normalized (artist, title) pair
// used for reconciliation during import. Returns nil when absent.
func (l *Library) FindAlbumByKey(ctx context.Context, artist, title string) (*music.Album, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+albumColumns+` FROM albums WHERE artist_key = ? AND title_key = ? LIMIT 1`,
		NormalizeKey(artist), NormalizeKey(title))
	a, err := scanAlbum(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStore(err)
	}
	return a, nil
}

// ListAlbums returns one page of albums plus the total count.
func (l *Library) ListAlbums(ctx context.Context, limit, offset int) ([]*music.Album, int, error) {
	var total int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums`).Scan(&total); err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+albumColumns+` FROM albums
		 ORDER BY artist COLLATE NOCASE, year, title COLLATE NOCASE, id
		 LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}
	defer rows.Close()

	var albums []*music.Album
	for rows.Next() {
		a, err := scanAlbum(rows)
		if err != nil {
			return nil, 0, wrapStore(err)
		}
		albums = append(albums, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, &music.StoreError{Err: err}
	}
	return albums, total, nil
}

// GetAlbumTracks returns an album's tracks ordered by
// (disc_number, track_number, title) with nulls last.
func (l *Library) GetAlbumTracks(ctx context.Context, id uuid.UUID, sort music.Sort) ([]*music.Track, error) {
	order := `disc_number IS NULL, disc_number, track_number IS NULL, track_number, title COLLATE NOCASE, id`
	if sort != "" && sort != music.SortAlbum {
		order = query.OrderBySQL(sort)
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+trackColumns+` FROM tracks WHERE album_id = ? ORDER BY `+order,
		id.String())
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	defer rows.Close()
	return collectTracks(rows)
}

// CountAlbums returns the number of albums in the catalog.
func (l *Library) CountAlbums(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM albums`).Scan(&n); err != nil {
		return 0, &music.StoreError{Err: err}
	}
	return n, nil
}

func bumpAlbumCount(ctx context.Context, tx *sql.Tx, id uuid.UUID, delta int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE albums SET track_count = track_count + ?, modified_at = ?
		WHERE id = ?`, delta, formatTime(time.Now().UTC()), id.String())
	if err != nil {
		return &music.StoreError{Err: err}
	}
	return nil
}

func recountAlbum(ctx context.Context, tx *sql.Tx, id string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE albums SET
			track_count = (SELECT COUNT(*) FROM tracks WHERE album_id = albums.id),
			modified_at = ?
		WHERE id = ?`, formatTime(time.Now().UTC()), id)
	if err != nil {
		return &music.StoreError{Err: err}
	}
	return nil
}

func wrapStore(err error) error {
	if _, ok := err.(*music.StoreError); ok {
		return err
	}
	return &music.StoreError{Err: err}
}
