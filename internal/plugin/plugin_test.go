package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariejan/apollo/internal/music"
)

func writePlugin(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func loadHost(t *testing.T, dir string) *Host {
	t.Helper()
	h := NewHost(0, nil)
	require.NoError(t, h.LoadDir(dir))
	t.Cleanup(h.Close)
	return h
}

const metaPlugin = `
local plugin = {
    name = "meta_test",
    version = "2.1.0",
    description = "checks metadata parsing",
    author = "Tester",
}

function plugin.on_import(track)
    return "continue"
end

function plugin.post_import(track)
end

return plugin
`

func TestLoadDirMetadata(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "meta.lua", metaPlugin)

	h := loadHost(t, dir)
	require.Len(t, h.Plugins(), 1)
	p := h.Plugins()[0]
	assert.Equal(t, "meta_test", p.Name)
	assert.Equal(t, "2.1.0", p.Version)
	assert.Equal(t, "checks metadata parsing", p.Description)
	assert.Equal(t, "Tester", p.Author)
	assert.Equal(t, []string{HookOnImport, HookPostImport}, p.Hooks())
}

func TestLoadDirMissingDirectory(t *testing.T) {
	h := NewHost(0, nil)
	assert.NoError(t, h.LoadDir(filepath.Join(t.TempDir(), "nope")))
	assert.Empty(t, h.Plugins())
}

func TestLoadDirSkipsBrokenScripts(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "aaa_broken.lua", "this is not lua(")
	writePlugin(t, dir, "bbb_noname.lua", "return { version = '1.0' }")
	writePlugin(t, dir, "ccc_good.lua", metaPlugin)

	h := loadHost(t, dir)
	require.Len(t, h.Plugins(), 1)
	assert.Equal(t, "meta_test", h.Plugins()[0].Name)
}

func TestLoadOrderIsLexicographic(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "20_second.lua", `
local plugin = { name = "second" }
function plugin.on_import(track)
    track.title = track.title .. "+second"
    return "continue"
end
return plugin
`)
	writePlugin(t, dir, "10_first.lua", `
local plugin = { name = "first" }
function plugin.on_import(track)
    track.title = track.title .. "+first"
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	track := music.NewTrack("/m/a.mp3", "base", "A", 1000)
	v := h.RunTrackChain(context.Background(), HookOnImport, track)
	assert.Equal(t, Continue, v.Kind)
	assert.Equal(t, "base+first+second", track.Title)
}

func TestTrackChainMutation(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "mutate.lua", `
local plugin = { name = "mutate" }
function plugin.on_import(track)
    if track.artist == "" then
        track.artist = "Unknown Artist"
    end
    track.year = 1999
    track.genres = { " Rock ", "", "Jazz" }
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	track := music.NewTrack("/m/a.mp3", "T", "", 1000)
	v := h.RunTrackChain(context.Background(), HookOnImport, track)
	require.Equal(t, Continue, v.Kind)
	assert.Equal(t, "Unknown Artist", track.Artist)
	require.NotNil(t, track.Year)
	assert.Equal(t, 1999, *track.Year)
	// Invariants are enforced on return: genres are cleaned.
	assert.Equal(t, []string{"Rock", "Jazz"}, track.Genres)
}

func TestTrackChainSkipVerdict(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "skip_hidden.lua", `
local plugin = { name = "skip_hidden" }
function plugin.on_import(track)
    if string.sub(track.path, 1, 1) == "." then
        return "skip", "hidden file"
    end
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	hidden := music.NewTrack(".hidden.mp3", "T", "A", 1000)
	v := h.RunTrackChain(context.Background(), HookOnImport, hidden)
	assert.Equal(t, Skip, v.Kind)
	assert.Equal(t, "hidden file", v.Reason)

	normal := music.NewTrack("song.mp3", "T", "A", 1000)
	v = h.RunTrackChain(context.Background(), HookOnImport, normal)
	assert.Equal(t, Continue, v.Kind)
}

func TestTrackChainAbortStopsChain(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "10_abort.lua", `
local plugin = { name = "aborter" }
function plugin.on_import(track)
    return "abort", "enough"
end
return plugin
`)
	writePlugin(t, dir, "20_never.lua", `
local plugin = { name = "never" }
function plugin.on_import(track)
    track.title = "touched"
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	track := music.NewTrack("/m/a.mp3", "orig", "A", 1000)
	v := h.RunTrackChain(context.Background(), HookOnImport, track)
	assert.Equal(t, Abort, v.Kind)
	assert.Equal(t, "enough", v.Reason)
	assert.Equal(t, "orig", track.Title)
}

func TestHookErrorBecomesContinue(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "explode.lua", `
local plugin = { name = "explode" }
function plugin.on_import(track)
    error("boom")
end
return plugin
`)

	h := loadHost(t, dir)
	track := music.NewTrack("/m/a.mp3", "T", "A", 1000)
	v := h.RunTrackChain(context.Background(), HookOnImport, track)
	assert.Equal(t, Continue, v.Kind)
}

func TestHookTimeoutBecomesContinue(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "spin.lua", `
local plugin = { name = "spin" }
function plugin.on_import(track)
    while true do end
end
return plugin
`)

	h := NewHost(50*time.Millisecond, nil)
	require.NoError(t, h.LoadDir(dir))
	t.Cleanup(h.Close)

	track := music.NewTrack("/m/a.mp3", "T", "A", 1000)
	done := make(chan Verdict, 1)
	go func() {
		done <- h.RunTrackChain(context.Background(), HookOnImport, track)
	}()
	select {
	case v := <-done:
		assert.Equal(t, Continue, v.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("hook timeout did not fire")
	}
}

func TestPostImportIsReadOnly(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "sneaky.lua", `
local plugin = { name = "sneaky" }
function plugin.post_import(track)
    track.title = "mutated"
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	track := music.NewTrack("/m/a.mp3", "orig", "A", 1000)
	v := h.RunTrackChain(context.Background(), HookPostImport, track)
	assert.Equal(t, Continue, v.Kind)
	assert.Equal(t, "orig", track.Title)
}

func TestAlbumChain(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "album.lua", `
local plugin = { name = "album" }
function plugin.on_album_import(album)
    album.year = 1969
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	album := music.NewAlbum("Abbey Road", "The Beatles")
	v := h.RunAlbumChain(context.Background(), HookOnAlbumImport, album)
	assert.Equal(t, Continue, v.Kind)
	require.NotNil(t, album.Year)
	assert.Equal(t, 1969, *album.Year)
}

func TestRunLifecycle(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "lifecycle.lua", `
local plugin = { name = "lifecycle" }
function plugin.on_init()
    log.info("engine up")
end
return plugin
`)

	h := loadHost(t, dir)
	// Verdicts are ignored for lifecycle hooks; this only checks that the
	// chain runs without error.
	h.RunLifecycle(context.Background(), HookOnInit)
}

func TestOnUpdatePairChain(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "pair.lua", `
local plugin = { name = "pair" }
function plugin.on_update(old, new)
    if old.title ~= new.title then
        new.genres = { "Changed" }
    end
    return "continue"
end
return plugin
`)

	h := loadHost(t, dir)
	old := music.NewTrack("/m/a.mp3", "before", "A", 1000)
	updated := music.NewTrack("/m/a.mp3", "after", "A", 1000)
	v := h.RunTrackPairChain(context.Background(), HookOnUpdate, old, updated)
	assert.Equal(t, Continue, v.Kind)
	assert.Equal(t, []string{"Changed"}, updated.Genres)
}
