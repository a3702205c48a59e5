// Package tags extracts normalized tag metadata from audio files and
// provides the catalog's single tag write-back operation.
package tags

import (
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/ariejan/apollo/internal/music"
)

// File extensions recognized by the reader.
const (
	ExtMP3  = ".mp3"
	ExtFLAC = ".flac"
	ExtOGG  = ".ogg"
	ExtOGA  = ".oga"
	ExtOPUS = ".opus"
	ExtM4A  = ".m4a"
	ExtMP4  = ".mp4"
	ExtAAC  = ".aac"
	ExtWAV  = ".wav"
	ExtAIFF = ".aiff"
	ExtAIF  = ".aif"
)

// acoustIDKey is the Vorbis/ID3 custom key carrying the AcoustID.
const acoustIDKey = "ACOUSTID_ID"

// formatFromFileType maps dhowden/tag's probed container kind to the
// catalog format enum. Probing reads the container header, so the result
// never depends on the extension alone.
func formatFromFileType(ft tag.FileType) music.AudioFormat {
	switch ft {
	case tag.MP3:
		return music.FormatMP3
	case tag.FLAC:
		return music.FormatFLAC
	case tag.OGG:
		return music.FormatOGG
	case tag.M4A, tag.M4B, tag.M4P:
		return music.FormatAAC
	default:
		return music.FormatUnknown
	}
}

// formatFromProbedExtension maps an extension to a format, used only
// after taglib has confirmed the file parses as that container.
func formatFromProbedExtension(path string) music.AudioFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtMP3:
		return music.FormatMP3
	case ExtFLAC:
		return music.FormatFLAC
	case ExtOGG, ExtOGA:
		return music.FormatOGG
	case ExtOPUS:
		return music.FormatOpus
	case ExtM4A, ExtMP4, ExtAAC:
		return music.FormatAAC
	case ExtWAV:
		return music.FormatWAV
	case ExtAIFF, ExtAIF:
		return music.FormatAIFF
	default:
		return music.FormatUnknown
	}
}
