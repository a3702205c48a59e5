// Package music defines the catalog's domain records: tracks, albums and
// playlists, plus the error kinds shared across the engine.
package music

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AudioFormat identifies the audio container of a track.
type AudioFormat string

// Supported audio container kinds.
const (
	FormatMP3     AudioFormat = "mp3"
	FormatFLAC    AudioFormat = "flac"
	FormatOGG     AudioFormat = "ogg"
	FormatOpus    AudioFormat = "opus"
	FormatAAC     AudioFormat = "aac"
	FormatWAV     AudioFormat = "wav"
	FormatAIFF    AudioFormat = "aiff"
	FormatUnknown AudioFormat = "unknown"
)

// ParseAudioFormat maps a stored format string back to an AudioFormat.
// Unrecognized values become FormatUnknown.
func ParseAudioFormat(s string) AudioFormat {
	switch AudioFormat(strings.ToLower(s)) {
	case FormatMP3, FormatFLAC, FormatOGG, FormatOpus, FormatAAC, FormatWAV, FormatAIFF:
		return AudioFormat(strings.ToLower(s))
	default:
		return FormatUnknown
	}
}

// Track is a single audio file in the catalog.
type Track struct {
	ID          uuid.UUID
	Path        string
	Title       string
	Artist      string
	AlbumArtist *string
	AlbumID     *uuid.UUID
	AlbumTitle  *string
	TrackNumber *int
	TrackTotal  *int
	DiscNumber  *int
	DiscTotal   *int
	Year        *int
	Genres      []string
	DurationMS  int64
	Bitrate     *int
	SampleRate  *int
	Channels    *int
	Format      AudioFormat
	MusicBrainz *string
	AcoustID    *string
	AddedAt     time.Time
	ModifiedAt  time.Time
	FileHash    string
}

// NewTrack creates a track with a fresh ID and both timestamps set to now.
// Genres start empty and a negative duration is clamped to zero.
func NewTrack(path, title, artist string, durationMS int64) *Track {
	now := time.Now().UTC()
	if durationMS < 0 {
		durationMS = 0
	}
	return &Track{
		ID:         uuid.New(),
		Path:       path,
		Title:      title,
		Artist:     artist,
		Genres:     nil,
		DurationMS: durationMS,
		Format:     FormatUnknown,
		AddedAt:    now,
		ModifiedAt: now,
	}
}

// Validate checks the track invariants that hooks and external edits must
// preserve: non-negative duration, clean genres and monotonic timestamps.
func (t *Track) Validate() error {
	if t.Path == "" {
		return &StoreError{Detail: "track has empty path"}
	}
	if t.DurationMS < 0 {
		return &StoreError{Detail: "track duration is negative"}
	}
	t.Genres = CleanGenres(t.Genres)
	if t.ModifiedAt.Before(t.AddedAt) {
		t.ModifiedAt = t.AddedAt
	}
	return nil
}

// EffectiveAlbumArtist returns the album artist, falling back to the track
// artist.
func (t *Track) EffectiveAlbumArtist() string {
	if t.AlbumArtist != nil && *t.AlbumArtist != "" {
		return *t.AlbumArtist
	}
	return t.Artist
}

// Album is a derived grouping of tracks sharing album metadata.
type Album struct {
	ID           uuid.UUID
	Title        string
	Artist       string
	Year         *int
	Genres       []string
	TrackCount   int
	DiscCount    int
	MusicBrainz  *string
	CoverArtPath *string
	AddedAt      time.Time
	ModifiedAt   time.Time
}

// NewAlbum creates an album with a fresh ID, zero tracks and one disc.
func NewAlbum(title, artist string) *Album {
	now := time.Now().UTC()
	return &Album{
		ID:         uuid.New(),
		Title:      title,
		Artist:     artist,
		DiscCount:  1,
		AddedAt:    now,
		ModifiedAt: now,
	}
}

// Validate enforces album invariants: counters in range, clean genres,
// monotonic timestamps.
func (a *Album) Validate() error {
	if a.Title == "" {
		return &StoreError{Detail: "album has empty title"}
	}
	if a.TrackCount < 0 {
		return &StoreError{Detail: "album track_count is negative"}
	}
	if a.DiscCount < 1 {
		a.DiscCount = 1
	}
	a.Genres = CleanGenres(a.Genres)
	if a.ModifiedAt.Before(a.AddedAt) {
		a.ModifiedAt = a.AddedAt
	}
	return nil
}

// CleanGenres trims every genre and drops empties, preserving order.
func CleanGenres(genres []string) []string {
	if len(genres) == 0 {
		return nil
	}
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g != "" {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeGenres unions extra into base, preserving first-seen order.
func MergeGenres(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	out := make([]string, 0, len(base)+len(extra))
	for _, g := range base {
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	for _, g := range extra {
		if _, ok := seen[g]; !ok {
			seen[g] = struct{}{}
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
