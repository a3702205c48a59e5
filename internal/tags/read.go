package tags

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"go.senan.xyz/taglib"

	"github.com/ariejan/apollo/internal/music"
)

// trackPrefixRe strips a leading "NN", "NN.", "NN-" style track-number
// prefix when deriving a title from the file stem.
var trackPrefixRe = regexp.MustCompile(`^\d{1,3}[\s.\-_]+`)

// Read extracts a partially-filled track record from one audio file.
// The returned track carries tag metadata and audio properties; the file
// hash is set by the caller. Fails with UnreadableFile when the file is
// not a recognized audio container or reports no duration, and with
// IoError on transport failures.
func Read(path string) (*music.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &music.IoError{Path: path, Err: err}
	}
	m, tagErr := tag.ReadFrom(f)
	f.Close()

	// taglib reads audio properties, and fills tags for the containers
	// dhowden/tag cannot parse.
	props, propsErr := taglib.ReadProperties(path)
	if propsErr != nil {
		return nil, &music.UnreadableFileError{Path: path, Err: propsErr}
	}
	durationMS := props.Length.Milliseconds()
	if durationMS <= 0 {
		return nil, &music.UnreadableFileError{Path: path, Err: errNoDuration}
	}

	t := music.NewTrack(path, "", "", durationMS)
	if bitrate := int(props.Bitrate); bitrate > 0 {
		t.Bitrate = &bitrate
	}
	if rate := int(props.SampleRate); rate > 0 {
		t.SampleRate = &rate
	}
	if channels := int(props.Channels); channels > 0 {
		t.Channels = &channels
	}

	if tagErr == nil {
		fillFromMetadata(t, m)
		t.Format = formatFromFileType(m.FileType())
	}
	if t.Title == "" || t.Artist == "" || t.MusicBrainz == nil || t.AcoustID == nil {
		fillFromTaglib(t, path)
	}
	if t.Format == music.FormatUnknown {
		t.Format = formatFromProbedExtension(path)
	}

	if t.Title == "" {
		t.Title = TitleFromStem(path)
	}
	if t.Artist == "" {
		t.Artist = "Unknown Artist"
	}
	t.Genres = music.CleanGenres(t.Genres)
	return t, nil
}

var errNoDuration = errors.New("container reports no duration")

// TitleFromStem derives a title from the file name, stripping the
// extension and any leading track-number prefix.
func TitleFromStem(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = trackPrefixRe.ReplaceAllString(stem, "")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return stem
}

func fillFromMetadata(t *music.Track, m tag.Metadata) {
	t.Title = strings.TrimSpace(m.Title())
	t.Artist = strings.TrimSpace(m.Artist())
	if aa := strings.TrimSpace(m.AlbumArtist()); aa != "" {
		t.AlbumArtist = &aa
	}
	if album := strings.TrimSpace(m.Album()); album != "" {
		t.AlbumTitle = &album
	}
	if num, total := m.Track(); num > 0 {
		t.TrackNumber = &num
		if total > 0 {
			t.TrackTotal = &total
		}
	}
	if num, total := m.Disc(); num > 0 {
		t.DiscNumber = &num
		if total > 0 {
			t.DiscTotal = &total
		}
	}
	if year := m.Year(); year != 0 {
		t.Year = &year
	}
	if genre := m.Genre(); genre != "" {
		t.Genres = splitGenres(genre)
	}
}

// fillFromTaglib fills fields dhowden/tag missed, including the
// MusicBrainz and AcoustID identifiers stored under custom keys.
func fillFromTaglib(t *music.Track, path string) {
	raw, err := taglib.ReadTags(path)
	if err != nil {
		return
	}
	get := func(key string) string {
		if vals, ok := raw[key]; ok && len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	if t.Title == "" {
		t.Title = get(taglib.Title)
	}
	if t.Artist == "" {
		t.Artist = get(taglib.Artist)
	}
	if t.AlbumArtist == nil {
		if aa := get(taglib.AlbumArtist); aa != "" {
			t.AlbumArtist = &aa
		}
	}
	if t.AlbumTitle == nil {
		if album := get(taglib.Album); album != "" {
			t.AlbumTitle = &album
		}
	}
	if t.TrackNumber == nil {
		if num, total := parseNumberPair(get(taglib.TrackNumber)); num > 0 {
			t.TrackNumber = &num
			if total > 0 {
				t.TrackTotal = &total
			}
		}
	}
	if t.DiscNumber == nil {
		if num, total := parseNumberPair(get(taglib.DiscNumber)); num > 0 {
			t.DiscNumber = &num
			if total > 0 {
				t.DiscTotal = &total
			}
		}
	}
	if t.Year == nil {
		if date := get(taglib.Date); len(date) >= 4 {
			if y, err := strconv.Atoi(date[:4]); err == nil && y != 0 {
				t.Year = &y
			}
		}
	}
	if len(t.Genres) == 0 {
		if vals, ok := raw[taglib.Genre]; ok {
			t.Genres = music.CleanGenres(vals)
		}
	}
	if t.MusicBrainz == nil {
		if mbid := get(taglib.MusicBrainzTrackID); mbid != "" {
			t.MusicBrainz = &mbid
		}
	}
	if t.AcoustID == nil {
		if id := get(acoustIDKey); id != "" {
			t.AcoustID = &id
		}
	}
}

// splitGenres splits a single genre tag on the common multi-value
// separators, preserving order.
func splitGenres(genre string) []string {
	parts := strings.FieldsFunc(genre, func(r rune) bool {
		return r == ';' || r == '\x00'
	})
	return music.CleanGenres(parts)
}

// parseNumberPair parses "N" or "N/M".
func parseNumberPair(s string) (num, total int) {
	if s == "" {
		return 0, 0
	}
	if idx := strings.Index(s, "/"); idx > 0 {
		num, _ = strconv.Atoi(s[:idx])
		total, _ = strconv.Atoi(s[idx+1:])
		return num, total
	}
	num, _ = strconv.Atoi(s)
	return num, 0
}
