// Package config loads Apollo's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ariejan/apollo/internal/music"
)

// Config is the full configuration tree.
type Config struct {
	Library     LibraryConfig     `koanf:"library"`
	Import      ImportConfig      `koanf:"import"`
	Paths       PathsConfig       `koanf:"paths"`
	MusicBrainz MusicBrainzConfig `koanf:"musicbrainz"`
	AcoustID    AcoustIDConfig    `koanf:"acoustid"`
	Web         WebConfig         `koanf:"web"`
	Plugins     PluginsConfig     `koanf:"plugins"`
}

// LibraryConfig locates the catalog database.
type LibraryConfig struct {
	DatabasePath string `koanf:"database_path"`
}

// ImportConfig holds import pipeline defaults.
type ImportConfig struct {
	FollowSymlinks    bool     `koanf:"follow_symlinks"`
	MaxDepth          int      `koanf:"max_depth"`
	IncludeExtensions []string `koanf:"include_extensions"`
	CopyIntoLibrary   bool     `koanf:"copy_into_library"`
	WriteTagsBack     bool     `koanf:"write_tags_back"`
	AutoTag           bool     `koanf:"auto_tag"`
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	MusicDir string `koanf:"music_dir"`
	CacheDir string `koanf:"cache_dir"`
}

// MusicBrainzConfig configures the optional metadata lookup.
type MusicBrainzConfig struct {
	Enabled      bool   `koanf:"enabled"`
	AppName      string `koanf:"app_name"`
	ContactEmail string `koanf:"contact_email"`
	CacheTTLDays int    `koanf:"cache_ttl_days"`
}

// AcoustIDConfig configures the AcoustID client.
type AcoustIDConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
}

// WebConfig configures the REST server.
type WebConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// PluginsConfig configures the Lua hook host.
type PluginsConfig struct {
	Directory       string `koanf:"directory"`
	HookTimeoutSecs int    `koanf:"hook_timeout_secs"`
}

// DefaultDir returns the Apollo home directory (~/.apollo).
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".apollo"
	}
	return filepath.Join(home, ".apollo")
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.toml")
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Library: LibraryConfig{
			DatabasePath: filepath.Join(dir, "apollo.db"),
		},
		Import: ImportConfig{
			MaxDepth: 0,
		},
		Paths: PathsConfig{
			CacheDir: filepath.Join(dir, "cache"),
		},
		MusicBrainz: MusicBrainzConfig{
			AppName:      "apollo",
			CacheTTLDays: 7,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8337,
		},
		Plugins: PluginsConfig{
			Directory:       filepath.Join(dir, "plugins"),
			HookTimeoutSecs: 30,
		},
	}
}

// Load reads the configuration at path, layered over the defaults. An
// empty path uses DefaultPath; a missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg := Default()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, &music.IoError{Path: path, Err: err}
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Library.DatabasePath = ExpandPath(cfg.Library.DatabasePath)
	cfg.Paths.MusicDir = ExpandPath(cfg.Paths.MusicDir)
	cfg.Paths.CacheDir = ExpandPath(cfg.Paths.CacheDir)
	cfg.Plugins.Directory = ExpandPath(cfg.Plugins.Directory)
	return cfg, nil
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// WriteDefault writes the default configuration as TOML at path,
// creating parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if path == "" {
		path = DefaultPath()
	}
	if _, err := os.Stat(path); err == nil {
		return &music.AlreadyExistsError{Entity: "config", Key: path}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &music.IoError{Path: path, Err: err}
	}
	return os.WriteFile(path, []byte(defaultTOML()), 0o644)
}

func defaultTOML() string {
	cfg := Default()
	return fmt.Sprintf(`[library]
database_path = %q

[import]
follow_symlinks = false
max_depth = 0
copy_into_library = false
write_tags_back = false
auto_tag = false

[paths]
music_dir = ""
cache_dir = %q

[musicbrainz]
enabled = false
app_name = %q
contact_email = ""
cache_ttl_days = %d

[acoustid]
enabled = false
api_key = ""

[web]
host = %q
port = %d

[plugins]
directory = %q
hook_timeout_secs = %d
`,
		cfg.Library.DatabasePath,
		cfg.Paths.CacheDir,
		cfg.MusicBrainz.AppName,
		cfg.MusicBrainz.CacheTTLDays,
		cfg.Web.Host,
		cfg.Web.Port,
		cfg.Plugins.Directory,
		cfg.Plugins.HookTimeoutSecs)
}

// Get returns the raw value at a dotted key from the file at path.
func Get(path, key string) (any, error) {
	if path == "" {
		path = DefaultPath()
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if !k.Exists(key) {
		return nil, &music.NotFoundError{Entity: "config key", Key: key}
	}
	return k.Get(key), nil
}

// Set updates a dotted key in the file at path and rewrites it.
func Set(path, key, value string) error {
	if path == "" {
		path = DefaultPath()
	}
	k := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := k.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	out, err := k.Marshal(toml.Parser())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &music.IoError{Path: path, Err: err}
	}
	return os.WriteFile(path, out, 0o644)
}
