package importer

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ariejan/apollo/internal/music"
)

// copyIntoLibrary copies the track's file into the library directory
// under an artist/album layout and returns the destination path. An
// identical file already at the destination is left alone.
func (im *Importer) copyIntoLibrary(track *music.Track, libraryDir string) (string, error) {
	artist := sanitizePathComponent(track.EffectiveAlbumArtist())
	album := "Unknown Album"
	if track.AlbumTitle != nil {
		album = sanitizePathComponent(*track.AlbumTitle)
	}
	dest := filepath.Join(libraryDir, artist, album, filepath.Base(track.Path))
	if dest == track.Path {
		return dest, nil
	}
	if existing, err := im.hashFile(dest); err == nil && existing == track.FileHash {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &music.IoError{Path: dest, Err: err}
	}
	if err := copyFile(track.Path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &music.IoError{Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".apollo-copy-*")
	if err != nil {
		return &music.IoError{Path: dst, Err: err}
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return &music.IoError{Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return &music.IoError{Path: dst, Err: err}
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return &music.IoError{Path: dst, Err: err}
	}
	return nil
}

// sanitizePathComponent strips path separators and control characters
// from a name used as a directory component.
func sanitizePathComponent(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	return name
}
