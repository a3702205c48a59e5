package musicbrainz

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Cache is an on-disk JSON response cache keyed by request URL.
type Cache struct {
	dir string
	ttl time.Duration
}

// cacheEntry wraps a stored payload with its write time.
type cacheEntry struct {
	StoredAt time.Time       `json:"stored_at"`
	Payload  json.RawMessage `json:"payload"`
}

// NewCache creates a cache rooted at dir with the given TTL. A zero TTL
// keeps entries forever.
func NewCache(dir string, ttl time.Duration) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir, ttl: ttl}, nil
}

func (c *Cache) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+".json")
}

// Get loads the cached payload for key into out. Reports whether a fresh
// entry was found.
func (c *Cache) Get(key string, out any) (bool, error) {
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return false, nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return false, nil
	}
	if c.ttl > 0 && time.Since(entry.StoredAt) > c.ttl {
		_ = os.Remove(c.pathFor(key))
		return false, nil
	}
	if err := json.Unmarshal(entry.Payload, out); err != nil {
		return false, err
	}
	return true, nil
}

// Put stores a payload for key.
func (c *Cache) Put(key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	entry := cacheEntry{StoredAt: time.Now().UTC(), Payload: raw}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(c.pathFor(key), data, 0o644)
}
