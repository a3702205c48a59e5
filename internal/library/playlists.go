package library

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	dbutil "github.com/ariejan/apollo/internal/db"
	"github.com/ariejan/apollo/internal/music"
)

const playlistColumns = `id, name, description, kind, query, sort, max_tracks,
	max_duration_secs, created_at, modified_at`

func scanPlaylist(row rowScanner) (*music.Playlist, error) {
	var p music.Playlist
	var idStr, kind, sort, createdAt, modifiedAt string
	var description, queryStr sql.NullString
	var maxTracks, maxDuration sql.NullInt64

	err := row.Scan(&idStr, &p.Name, &description, &kind, &queryStr, &sort,
		&maxTracks, &maxDuration, &createdAt, &modifiedAt)
	if err != nil {
		return nil, err
	}
	if p.ID, err = uuid.Parse(idStr); err != nil {
		return nil, &music.StoreError{Detail: "invalid playlist id", Err: err}
	}
	p.Description = dbutil.StringPtr(description)
	p.Kind = music.PlaylistKind(kind)
	p.Query = dbutil.StringPtr(queryStr)
	p.Sort = music.ParseSort(sort)
	p.MaxTracks = dbutil.IntPtr(maxTracks)
	p.MaxDurationSecs = dbutil.Int64Ptr(maxDuration)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid created_at", Err: err}
	}
	if p.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, &music.StoreError{Detail: "invalid modified_at", Err: err}
	}
	return &p, nil
}

// AddPlaylist inserts a playlist definition.
func (l *Library) AddPlaylist(ctx context.Context, p *music.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO playlists (`+playlistColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.Name, dbutil.NullString(p.Description), string(p.Kind),
		dbutil.NullString(p.Query), string(p.Sort),
		dbutil.NullInt(p.MaxTracks), dbutil.NullInt64(p.MaxDurationSecs),
		formatTime(p.CreatedAt), formatTime(p.ModifiedAt))
	if err != nil {
		return &music.StoreError{Err: err}
	}
	return nil
}

// UpdatePlaylist rewrites a playlist definition.
func (l *Library) UpdatePlaylist(ctx context.Context, p *music.Playlist) error {
	if err := p.Validate(); err != nil {
		return err
	}
	p.ModifiedAt = time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
		UPDATE playlists SET
			name = ?, description = ?, kind = ?, query = ?, sort = ?,
			max_tracks = ?, max_duration_secs = ?, modified_at = ?
		WHERE id = ?`,
		p.Name, dbutil.NullString(p.Description), string(p.Kind),
		dbutil.NullString(p.Query), string(p.Sort),
		dbutil.NullInt(p.MaxTracks), dbutil.NullInt64(p.MaxDurationSecs),
		formatTime(p.ModifiedAt), p.ID.String())
	if err != nil {
		return &music.StoreError{Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &music.NotFoundError{Entity: "playlist", Key: p.ID.String()}
	}
	return nil
}

// RemovePlaylist deletes a playlist; its entries cascade.
func (l *Library) RemovePlaylist(ctx context.Context, id uuid.UUID) error {
	res, err := l.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id.String())
	if err != nil {
		return &music.StoreError{Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &music.NotFoundError{Entity: "playlist", Key: id.String()}
	}
	return nil
}

// GetPlaylist returns a playlist definition by id.
func (l *Library) GetPlaylist(ctx context.Context, id uuid.UUID) (*music.Playlist, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists WHERE id = ?`, id.String())
	p, err := scanPlaylist(row)
	if err == sql.ErrNoRows {
		return nil, &music.NotFoundError{Entity: "playlist", Key: id.String()}
	}
	if err != nil {
		return nil, wrapStore(err)
	}
	return p, nil
}

// ListPlaylists returns all playlists ordered by name.
func (l *Library) ListPlaylists(ctx context.Context) ([]*music.Playlist, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+playlistColumns+` FROM playlists ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	defer rows.Close()

	var playlists []*music.Playlist
	for rows.Next() {
		p, err := scanPlaylist(rows)
		if err != nil {
			return nil, wrapStore(err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &music.StoreError{Err: err}
	}
	return playlists, nil
}

// CountPlaylists returns the number of playlists.
func (l *Library) CountPlaylists(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM playlists`).Scan(&n); err != nil {
		return 0, &music.StoreError{Err: err}
	}
	return n, nil
}

// GetPlaylistEntries returns a static playlist's entries in position order.
func (l *Library) GetPlaylistEntries(ctx context.Context, id uuid.UUID) ([]music.PlaylistEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT playlist_id, track_id, position, added_at
		FROM playlist_tracks WHERE playlist_id = ?
		ORDER BY position`, id.String())
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	defer rows.Close()

	var entries []music.PlaylistEntry
	for rows.Next() {
		var e music.PlaylistEntry
		var pid, tid, addedAt string
		if err := rows.Scan(&pid, &tid, &e.Position, &addedAt); err != nil {
			return nil, &music.StoreError{Err: err}
		}
		if e.PlaylistID, err = uuid.Parse(pid); err != nil {
			return nil, &music.StoreError{Detail: "invalid playlist id", Err: err}
		}
		if e.TrackID, err = uuid.Parse(tid); err != nil {
			return nil, &music.StoreError{Detail: "invalid track id", Err: err}
		}
		if e.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, &music.StoreError{Detail: "invalid added_at", Err: err}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &music.StoreError{Err: err}
	}
	return entries, nil
}

// GetPlaylistTracks returns a static playlist's tracks in position order.
func (l *Library) GetPlaylistTracks(ctx context.Context, id uuid.UUID) ([]*music.Track, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT `+prefixColumns("t.", trackColumns)+`
		FROM tracks t
		JOIN playlist_tracks pt ON t.id = pt.track_id
		WHERE pt.playlist_id = ?
		ORDER BY pt.position`, id.String())
	if err != nil {
		return nil, &music.StoreError{Err: err}
	}
	defer rows.Close()
	return collectTracks(rows)
}

// SetPlaylistTracks replaces a static playlist's entries with the given
// track ids, assigning dense positions [0, n).
func (l *Library) SetPlaylistTracks(ctx context.Context, id uuid.UUID, trackIDs []uuid.UUID) error {
	now := formatTime(time.Now().UTC())
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM playlist_tracks WHERE playlist_id = ?`, id.String()); err != nil {
			return &music.StoreError{Err: err}
		}
		for pos, tid := range trackIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO playlist_tracks (playlist_id, track_id, position, added_at)
				VALUES (?, ?, ?, ?)`, id.String(), tid.String(), pos, now)
			if err != nil {
				return &music.StoreError{Err: err}
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE playlists SET modified_at = ? WHERE id = ?`, now, id.String()); err != nil {
			return &music.StoreError{Err: err}
		}
		return nil
	})
}

// AppendPlaylistTrack adds a track at the end of a static playlist.
func (l *Library) AppendPlaylistTrack(ctx context.Context, id, trackID uuid.UUID) error {
	now := formatTime(time.Now().UTC())
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		var next int
		err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(position), -1) + 1
			FROM playlist_tracks WHERE playlist_id = ?`, id.String()).Scan(&next)
		if err != nil {
			return &music.StoreError{Err: err}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO playlist_tracks (playlist_id, track_id, position, added_at)
			VALUES (?, ?, ?, ?)`, id.String(), trackID.String(), next, now)
		if err != nil {
			return &music.AlreadyExistsError{Entity: "playlist entry", Key: trackID.String()}
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE playlists SET modified_at = ? WHERE id = ?`, now, id.String())
		if err != nil {
			return &music.StoreError{Err: err}
		}
		return nil
	})
}

// RemovePlaylistTrack removes a track from a static playlist, keeping the
// remaining positions dense.
func (l *Library) RemovePlaylistTrack(ctx context.Context, id, trackID uuid.UUID) error {
	return dbutil.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?`,
			id.String(), trackID.String())
		if err != nil {
			return &music.StoreError{Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &music.NotFoundError{Entity: "playlist entry", Key: trackID.String()}
		}
		if err := renumberPlaylist(ctx, tx, id.String()); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE playlists SET modified_at = ? WHERE id = ?`,
			formatTime(time.Now().UTC()), id.String())
		if err != nil {
			return &music.StoreError{Err: err}
		}
		return nil
	})
}

// renumberPlaylist reassigns dense positions [0, n) preserving order.
func renumberPlaylist(ctx context.Context, tx *sql.Tx, playlistID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT track_id FROM playlist_tracks
		WHERE playlist_id = ? ORDER BY position`, playlistID)
	if err != nil {
		return &music.StoreError{Err: err}
	}
	var ids []string
	for rows.Next() {
		var tid string
		if err := rows.Scan(&tid); err != nil {
			rows.Close()
			return &music.StoreError{Err: err}
		}
		ids = append(ids, tid)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return &music.StoreError{Err: err}
	}
	for pos, tid := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE playlist_tracks SET position = ?
			WHERE playlist_id = ? AND track_id = ?`, pos, playlistID, tid); err != nil {
			return &music.StoreError{Err: err}
		}
	}
	return nil
}
