package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariejan/apollo/internal/library"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/plugin"
	"github.com/ariejan/apollo/internal/tags"
)

// fakeTags is tag metadata the stub reader returns per base filename.
type fakeTags struct {
	title, artist, album, albumArtist string
	track                             int
	year                              int
	genres                            []string
	unreadable                        bool
}

type fixture struct {
	lib *library.Library
	im  *Importer
	dir string
	tag map[string]fakeTags
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	lib, err := library.OpenMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { lib.Close() })

	f := &fixture{
		lib: lib,
		dir: t.TempDir(),
		tag: make(map[string]fakeTags),
	}
	f.im = New(lib, nil, nil)
	// Tag reading is stubbed so the pipeline runs against plain files;
	// everything else is real.
	f.im.readTags = func(path string) (*music.Track, error) {
		ft, ok := f.tag[filepath.Base(path)]
		if !ok {
			ft = fakeTags{}
		}
		if ft.unreadable {
			return nil, &music.UnreadableFileError{Path: path, Err: errors.New("not a container")}
		}
		title := ft.title
		if title == "" {
			title = tags.TitleFromStem(path)
		}
		artist := ft.artist
		if artist == "" {
			artist = "Unknown Artist"
		}
		tr := music.NewTrack(path, title, artist, 180_000)
		tr.Format = music.FormatMP3
		if ft.album != "" {
			album := ft.album
			tr.AlbumTitle = &album
		}
		if ft.albumArtist != "" {
			aa := ft.albumArtist
			tr.AlbumArtist = &aa
		}
		if ft.track > 0 {
			n := ft.track
			tr.TrackNumber = &n
		}
		if ft.year != 0 {
			y := ft.year
			tr.Year = &y
		}
		tr.Genres = ft.genres
		return tr, nil
	}
	f.im.writeTags = func(string, *music.Track) error { return nil }
	return f
}

func (f *fixture) addFile(t *testing.T, name, content string, ft fakeTags) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	f.tag[filepath.Base(name)] = ft
	return path
}

func (f *fixture) loadPlugins(t *testing.T, scripts map[string]string) {
	t.Helper()
	dir := t.TempDir()
	for name, body := range scripts {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	host := plugin.NewHost(0, nil)
	require.NoError(t, host.LoadDir(dir))
	t.Cleanup(host.Close)
	f.im.hooks = host
}

func TestImportBasic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addFile(t, "01 - untagged.mp3", "audio-a", fakeTags{})

	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Zero(t, report.Failed)

	tr, err := f.lib.GetTrackByPath(ctx, filepath.Join(f.dir, "01 - untagged.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "untagged", tr.Title)
	assert.Equal(t, "Unknown Artist", tr.Artist)
	assert.NotEmpty(t, tr.FileHash)
}

func TestImportIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addFile(t, "a.mp3", "audio-a", fakeTags{title: "A"})
	f.addFile(t, "b.mp3", "audio-b", fakeTags{title: "B"})

	first, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	second, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, first.Imported, second.SkippedUnchanged)

	n, err := f.lib.CountTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestImportHashMove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := f.addFile(t, "a.flac", "same-bytes", fakeTags{title: "A"})

	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)
	before, err := f.lib.GetTrackByPath(ctx, orig)
	require.NoError(t, err)

	// Rename on disk, then re-import the root.
	moved := filepath.Join(f.dir, "sub", "a.flac")
	require.NoError(t, os.MkdirAll(filepath.Dir(moved), 0o755))
	require.NoError(t, os.Rename(orig, moved))

	report, err = f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Moved)

	n, err := f.lib.CountTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	after, err := f.lib.GetTrackByPath(ctx, moved)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
}

func TestImportDuplicateCopyIsUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addFile(t, "a.mp3", "identical", fakeTags{title: "A"})

	_, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)

	// Same bytes at a second path while the first is still on disk.
	f.addFile(t, "copy.mp3", "identical", fakeTags{title: "A"})
	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 0, report.Moved)
	assert.Equal(t, 2, report.SkippedUnchanged)
}

func TestImportAlbumReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addFile(t, "1.mp3", "one", fakeTags{title: "One", artist: "The Band", album: "Debut", track: 1, year: 1970, genres: []string{"Rock"}})
	f.addFile(t, "2.mp3", "two", fakeTags{title: "Two", artist: "the band", album: "debut ", track: 2, year: 1968, genres: []string{"Folk"}})

	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, report.Imported)

	albums, total, err := f.lib.ListAlbums(ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	album := albums[0]
	// First-seen casing wins.
	assert.Equal(t, "Debut", album.Title)
	assert.Equal(t, "The Band", album.Artist)
	assert.Equal(t, 2, album.TrackCount)
	// Earlier year wins; genres union in first-seen order.
	require.NotNil(t, album.Year)
	assert.Equal(t, 1968, *album.Year)
	assert.Equal(t, []string{"Rock", "Folk"}, album.Genres)

	tracks, err := f.lib.GetAlbumTracks(ctx, album.ID, "")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "One", tracks[0].Title)
	assert.Equal(t, "Two", tracks[1].Title)
}

func TestImportHookSkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.loadPlugins(t, map[string]string{"skip_hidden.lua": `
local plugin = { name = "skip_hidden" }
function plugin.on_import(track)
    local base = string.match(track.path, "[^/]+$")
    if string.sub(base, 1, 1) == "." then
        return "skip", "hidden"
    end
    return "continue"
end
return plugin
`})
	f.addFile(t, ".hidden.mp3", "h", fakeTags{title: "Hidden"})
	f.addFile(t, "song.mp3", "s", fakeTags{title: "Song"})

	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.SkippedByHook)

	n, err := f.lib.CountTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportHookMutationIsStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.loadPlugins(t, map[string]string{"retitle.lua": `
local plugin = { name = "retitle" }
function plugin.on_import(track)
    track.title = "From Hook"
    track.genres = { "Hooked" }
    return "continue"
end
return plugin
`})
	path := f.addFile(t, "a.mp3", "a", fakeTags{title: "Original"})

	_, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)

	tr, err := f.lib.GetTrackByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "From Hook", tr.Title)
	assert.Equal(t, []string{"Hooked"}, tr.Genres)
}

func TestImportHookAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.loadPlugins(t, map[string]string{"abort.lua": `
local plugin = { name = "abort" }
function plugin.on_import(track)
    return "abort", "stop everything"
end
return plugin
`})
	f.addFile(t, "a.mp3", "a", fakeTags{title: "A"})
	f.addFile(t, "b.mp3", "b", fakeTags{title: "B"})

	_, err := f.im.Import(ctx, f.dir, Options{})
	var aborted *music.ImportAbortedError
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, "stop everything", aborted.Reason)

	n, err := f.lib.CountTracks(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportUnreadableFileIsNonFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addFile(t, "bad.mp3", "x", fakeTags{unreadable: true})
	f.addFile(t, "good.mp3", "y", fakeTags{title: "Good"})

	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, IssueUnreadable, report.Errors[0].Kind)
	assert.True(t, strings.HasSuffix(report.Errors[0].Path, "bad.mp3"))
}

func TestImportCancellation(t *testing.T) {
	f := newFixture(t)
	f.addFile(t, "a.mp3", "a", fakeTags{title: "A"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.im.Import(ctx, f.dir, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportRefreshesChangedFileAtSamePath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	path := f.addFile(t, "a.mp3", "version-one", fakeTags{title: "V1"})

	_, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	before, err := f.lib.GetTrackByPath(ctx, path)
	require.NoError(t, err)

	// Same path, new bytes and new tags.
	f.addFile(t, "a.mp3", "version-two", fakeTags{title: "V2"})
	report, err := f.im.Import(ctx, f.dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)

	after, err := f.lib.GetTrackByPath(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "V2", after.Title)

	n, err := f.lib.CountTracks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestImportCopyIntoLibrary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	libDir := t.TempDir()
	f.addFile(t, "song.mp3", "bytes", fakeTags{title: "Song", artist: "Artist", album: "Album"})

	report, err := f.im.Import(ctx, f.dir, Options{CopyInto: libDir})
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)

	dest := filepath.Join(libDir, "Artist", "Album", "song.mp3")
	_, statErr := os.Stat(dest)
	assert.NoError(t, statErr)

	tr, err := f.lib.GetTrackByPath(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, "Song", tr.Title)
}

func TestSanitizePathComponent(t *testing.T) {
	assert.Equal(t, "AC_DC", sanitizePathComponent("AC/DC"))
	assert.Equal(t, "Unknown", sanitizePathComponent("   "))
	assert.Equal(t, "Plain", sanitizePathComponent("Plain"))
}
