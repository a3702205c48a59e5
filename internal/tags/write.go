package tags

import (
	"os"
	"strconv"

	"go.senan.xyz/taglib"

	"github.com/ariejan/apollo/internal/music"
)

// Custom tag keys not covered by taglib constants.
const (
	totalTracksKey = "TOTALTRACKS"
	totalDiscsKey  = "TOTALDISCS"
)

// Write writes a track's tag metadata back to its audio file in place.
// This is the catalog's only file mutation; existing tags not present on
// the record are cleared.
func Write(path string, t *music.Track) error {
	if _, err := os.Stat(path); err != nil {
		return &music.IoError{Path: path, Err: err}
	}

	out := make(map[string][]string)
	add := func(key, value string) {
		if value != "" {
			out[key] = []string{value}
		}
	}
	addInt := func(key string, value *int) {
		if value != nil && *value > 0 {
			out[key] = []string{strconv.Itoa(*value)}
		}
	}

	add(taglib.Title, t.Title)
	add(taglib.Artist, t.Artist)
	if t.AlbumArtist != nil {
		add(taglib.AlbumArtist, *t.AlbumArtist)
	}
	if t.AlbumTitle != nil {
		add(taglib.Album, *t.AlbumTitle)
	}
	addInt(taglib.TrackNumber, t.TrackNumber)
	addInt(totalTracksKey, t.TrackTotal)
	addInt(taglib.DiscNumber, t.DiscNumber)
	addInt(totalDiscsKey, t.DiscTotal)
	if t.Year != nil {
		add(taglib.Date, strconv.Itoa(*t.Year))
	}
	if len(t.Genres) > 0 {
		out[taglib.Genre] = t.Genres
	}
	if t.MusicBrainz != nil {
		add(taglib.MusicBrainzTrackID, *t.MusicBrainz)
	}
	if t.AcoustID != nil {
		add(acoustIDKey, *t.AcoustID)
	}

	if err := taglib.WriteTags(path, out, taglib.Clear); err != nil {
		return &music.UnreadableFileError{Path: path, Err: err}
	}
	return nil
}
