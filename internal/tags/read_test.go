package tags

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariejan/apollo/internal/music"
)

func TestTitleFromStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/m/01 - untagged.mp3", "untagged"},
		{"/m/01-untagged.mp3", "untagged"},
		{"/m/03. Some Song.flac", "Some Song"},
		{"/m/12 Track Title.ogg", "Track Title"},
		{"/m/No Prefix.mp3", "No Prefix"},
		// A purely numeric stem keeps its name rather than vanishing.
		{"/m/01.mp3", "01"},
		{"/m/1999 World Tour.mp3", "1999 World Tour"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromStem(tt.path))
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.mp3"))
	var ioErr *music.IoError
	assert.True(t, errors.As(err, &ioErr))
}

func TestReadNonAudioFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "readme.mp3")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio"), 0o644))

	_, err := Read(path)
	var unreadable *music.UnreadableFileError
	assert.True(t, errors.As(err, &unreadable))
}

func TestSplitGenres(t *testing.T) {
	assert.Equal(t, []string{"Rock", "Jazz"}, splitGenres("Rock; Jazz"))
	assert.Equal(t, []string{"Rock"}, splitGenres("Rock"))
	assert.Nil(t, splitGenres("  "))
}

func TestParseNumberPair(t *testing.T) {
	num, total := parseNumberPair("3/12")
	assert.Equal(t, 3, num)
	assert.Equal(t, 12, total)

	num, total = parseNumberPair("7")
	assert.Equal(t, 7, num)
	assert.Equal(t, 0, total)

	num, total = parseNumberPair("")
	assert.Zero(t, num)
	assert.Zero(t, total)
}

func TestFormatFromProbedExtension(t *testing.T) {
	assert.Equal(t, music.FormatFLAC, formatFromProbedExtension("/m/a.FLAC"))
	assert.Equal(t, music.FormatOpus, formatFromProbedExtension("/m/a.opus"))
	assert.Equal(t, music.FormatUnknown, formatFromProbedExtension("/m/a.txt"))
}

func TestWriteMissingFile(t *testing.T) {
	tr := music.NewTrack("/nope.mp3", "T", "A", 1000)
	err := Write(filepath.Join(t.TempDir(), "missing.mp3"), tr)
	var ioErr *music.IoError
	assert.True(t, errors.As(err, &ioErr))
}
