package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/ariejan/apollo/internal/music"
)

// hashBufferSize is the fixed read buffer used while hashing.
const hashBufferSize = 64 * 1024

// HashFile computes the hex-encoded SHA-256 of a file's contents,
// streaming with a fixed buffer. The digest is the catalog's dedup key.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &music.IoError{Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &music.IoError{Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
