package music

import (
	"time"

	"github.com/google/uuid"
)

// PlaylistKind distinguishes static track lists from query-backed ones.
type PlaylistKind string

const (
	PlaylistStatic PlaylistKind = "static"
	PlaylistSmart  PlaylistKind = "smart"
)

// Sort is a catalog sort order used by listings and playlists.
type Sort string

const (
	SortTitle     Sort = "title"
	SortArtist    Sort = "artist"
	SortAlbum     Sort = "album"
	SortYearAsc   Sort = "year_asc"
	SortYearDesc  Sort = "year_desc"
	SortAddedAsc  Sort = "added_asc"
	SortAddedDesc Sort = "added_desc"
	SortRandom    Sort = "random"
)

// ParseSort maps a stored sort string to a Sort, defaulting to artist
// order for unknown values.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortTitle, SortArtist, SortAlbum, SortYearAsc, SortYearDesc,
		SortAddedAsc, SortAddedDesc, SortRandom:
		return Sort(s)
	default:
		return SortArtist
	}
}

// Playlist is a named track collection, either static (explicit entries)
// or smart (a persisted query materialized on read).
type Playlist struct {
	ID              uuid.UUID
	Name            string
	Description     *string
	Kind            PlaylistKind
	Query           *string
	Sort            Sort
	MaxTracks       *int
	MaxDurationSecs *int64
	CreatedAt       time.Time
	ModifiedAt      time.Time
}

// NewStaticPlaylist creates an empty static playlist.
func NewStaticPlaylist(name string) *Playlist {
	now := time.Now().UTC()
	return &Playlist{
		ID:         uuid.New(),
		Name:       name,
		Kind:       PlaylistStatic,
		Sort:       SortArtist,
		CreatedAt:  now,
		ModifiedAt: now,
	}
}

// NewSmartPlaylist creates a smart playlist backed by the given query.
func NewSmartPlaylist(name, query string) *Playlist {
	p := NewStaticPlaylist(name)
	p.Kind = PlaylistSmart
	p.Query = &query
	return p
}

// Validate enforces the kind/query coupling: smart playlists must carry a
// query, static playlists must not.
func (p *Playlist) Validate() error {
	if p.Name == "" {
		return &StoreError{Detail: "playlist has empty name"}
	}
	switch p.Kind {
	case PlaylistSmart:
		if p.Query == nil {
			return &StoreError{Detail: "smart playlist has no query"}
		}
	case PlaylistStatic:
		p.Query = nil
	default:
		return &StoreError{Detail: "unknown playlist kind " + string(p.Kind)}
	}
	if p.ModifiedAt.Before(p.CreatedAt) {
		p.ModifiedAt = p.CreatedAt
	}
	return nil
}

// PlaylistEntry is one positioned track in a static playlist.
type PlaylistEntry struct {
	PlaylistID uuid.UUID
	TrackID    uuid.UUID
	Position   int
	AddedAt    time.Time
}
