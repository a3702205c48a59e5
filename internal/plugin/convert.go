package plugin

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/ariejan/apollo/internal/music"
)

// trackToLua builds the script-facing view of a track. Identity and
// audio-property fields are included for reading; applyTrackTable only
// reads back the fields scripts may change.
func trackToLua(L *lua.LState, t *music.Track) *lua.LTable {
	tbl := L.NewTable()
	set := func(key string, v lua.LValue) { tbl.RawSetString(key, v) }

	set("id", lua.LString(t.ID.String()))
	set("path", lua.LString(t.Path))
	set("file_hash", lua.LString(t.FileHash))
	set("format", lua.LString(string(t.Format)))
	set("duration_ms", lua.LNumber(t.DurationMS))
	set("added_at", lua.LString(t.AddedAt.Format(time.RFC3339)))
	set("modified_at", lua.LString(t.ModifiedAt.Format(time.RFC3339)))
	setOptInt(tbl, "bitrate", t.Bitrate)
	setOptInt(tbl, "sample_rate", t.SampleRate)
	setOptInt(tbl, "channels", t.Channels)

	set("title", lua.LString(t.Title))
	set("artist", lua.LString(t.Artist))
	setOptString(tbl, "album_artist", t.AlbumArtist)
	setOptString(tbl, "album_title", t.AlbumTitle)
	setOptInt(tbl, "track_number", t.TrackNumber)
	setOptInt(tbl, "track_total", t.TrackTotal)
	setOptInt(tbl, "disc_number", t.DiscNumber)
	setOptInt(tbl, "disc_total", t.DiscTotal)
	setOptInt(tbl, "year", t.Year)
	setOptString(tbl, "musicbrainz_id", t.MusicBrainz)
	setOptString(tbl, "acoustid", t.AcoustID)

	genres := L.NewTable()
	for _, g := range t.Genres {
		genres.Append(lua.LString(g))
	}
	set("genres", genres)
	return tbl
}

// applyTrackTable copies the mutable fields back onto the track and
// re-validates the record, so hook output always satisfies the domain
// invariants.
func applyTrackTable(tbl *lua.LTable, t *music.Track) error {
	t.Title = lua.LVAsString(tbl.RawGetString("title"))
	t.Artist = lua.LVAsString(tbl.RawGetString("artist"))
	t.AlbumArtist = optString(tbl, "album_artist")
	t.AlbumTitle = optString(tbl, "album_title")
	t.TrackNumber = optInt(tbl, "track_number")
	t.TrackTotal = optInt(tbl, "track_total")
	t.DiscNumber = optInt(tbl, "disc_number")
	t.DiscTotal = optInt(tbl, "disc_total")
	t.Year = optInt(tbl, "year")
	t.MusicBrainz = optString(tbl, "musicbrainz_id")
	t.AcoustID = optString(tbl, "acoustid")

	if genres, ok := tbl.RawGetString("genres").(*lua.LTable); ok {
		var out []string
		genres.ForEach(func(_, v lua.LValue) {
			out = append(out, lua.LVAsString(v))
		})
		t.Genres = out
	}
	return t.Validate()
}

// albumToLua builds the script-facing view of an album.
func albumToLua(L *lua.LState, a *music.Album) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("id", lua.LString(a.ID.String()))
	tbl.RawSetString("track_count", lua.LNumber(a.TrackCount))
	tbl.RawSetString("disc_count", lua.LNumber(a.DiscCount))
	tbl.RawSetString("added_at", lua.LString(a.AddedAt.Format(time.RFC3339)))
	tbl.RawSetString("modified_at", lua.LString(a.ModifiedAt.Format(time.RFC3339)))

	tbl.RawSetString("title", lua.LString(a.Title))
	tbl.RawSetString("artist", lua.LString(a.Artist))
	setOptInt(tbl, "year", a.Year)
	setOptString(tbl, "musicbrainz_id", a.MusicBrainz)
	setOptString(tbl, "cover_art_path", a.CoverArtPath)

	genres := L.NewTable()
	for _, g := range a.Genres {
		genres.Append(lua.LString(g))
	}
	tbl.RawSetString("genres", genres)
	return tbl
}

func applyAlbumTable(tbl *lua.LTable, a *music.Album) error {
	a.Title = lua.LVAsString(tbl.RawGetString("title"))
	a.Artist = lua.LVAsString(tbl.RawGetString("artist"))
	a.Year = optInt(tbl, "year")
	a.MusicBrainz = optString(tbl, "musicbrainz_id")
	a.CoverArtPath = optString(tbl, "cover_art_path")

	if genres, ok := tbl.RawGetString("genres").(*lua.LTable); ok {
		var out []string
		genres.ForEach(func(_, v lua.LValue) {
			out = append(out, lua.LVAsString(v))
		})
		a.Genres = out
	}
	return a.Validate()
}

func setOptString(tbl *lua.LTable, key string, v *string) {
	if v != nil {
		tbl.RawSetString(key, lua.LString(*v))
	}
}

func setOptInt(tbl *lua.LTable, key string, v *int) {
	if v != nil {
		tbl.RawSetString(key, lua.LNumber(*v))
	}
}

func optString(tbl *lua.LTable, key string) *string {
	v := tbl.RawGetString(key)
	if v == lua.LNil {
		return nil
	}
	s := lua.LVAsString(v)
	if s == "" {
		return nil
	}
	return &s
}

func optInt(tbl *lua.LTable, key string) *int {
	v := tbl.RawGetString(key)
	n, ok := v.(lua.LNumber)
	if !ok {
		return nil
	}
	i := int(n)
	return &i
}
