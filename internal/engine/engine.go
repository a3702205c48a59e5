// Package engine is the composition root: it assembles the catalog
// store, hook host, importer and playlist engine from configuration and
// owns their lifecycle.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ariejan/apollo/internal/config"
	"github.com/ariejan/apollo/internal/importer"
	"github.com/ariejan/apollo/internal/library"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/musicbrainz"
	"github.com/ariejan/apollo/internal/playlists"
	"github.com/ariejan/apollo/internal/plugin"
)

// Engine bundles the assembled components handed to front-ends.
type Engine struct {
	Config    *config.Config
	Log       *zap.Logger
	Library   *library.Library
	Hooks     *plugin.Host
	Importer  *importer.Importer
	Playlists *playlists.Engine
}

// New opens the store, loads plugins and runs their on_init chain.
func New(cfg *config.Config, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	lib, err := library.Open(cfg.Library.DatabasePath, log.Named("library"))
	if err != nil {
		return nil, err
	}

	hooks := plugin.NewHost(
		time.Duration(cfg.Plugins.HookTimeoutSecs)*time.Second,
		log.Named("plugins"))
	if cfg.Plugins.Directory != "" {
		if err := hooks.LoadDir(cfg.Plugins.Directory); err != nil {
			lib.Close()
			return nil, err
		}
	}

	im := importer.New(lib, hooks, log.Named("import"))
	if cfg.MusicBrainz.Enabled {
		var cache *musicbrainz.Cache
		if cfg.Paths.CacheDir != "" {
			ttl := time.Duration(cfg.MusicBrainz.CacheTTLDays) * 24 * time.Hour
			if c, err := musicbrainz.NewCache(cfg.Paths.CacheDir, ttl); err == nil {
				cache = c
			} else {
				log.Warn("response cache unavailable", zap.Error(err))
			}
		}
		mb := musicbrainz.NewClient(cfg.MusicBrainz.AppName, cfg.MusicBrainz.ContactEmail, cache)
		im = im.WithMusicBrainz(mb)
	}

	e := &Engine{
		Config:    cfg,
		Log:       log,
		Library:   lib,
		Hooks:     hooks,
		Importer:  im,
		Playlists: playlists.New(lib),
	}
	hooks.RunLifecycle(context.Background(), plugin.HookOnInit)
	return e, nil
}

// UpdateTrack applies an explicit edit to a track through the hook
// protocol: the on_update chain sees (old, new) and may mutate the new
// record; a Skip or Abort verdict leaves the store untouched.
func (e *Engine) UpdateTrack(ctx context.Context, track *music.Track) error {
	old, err := e.Library.GetTrack(ctx, track.ID)
	if err != nil {
		return err
	}
	verdict := e.Hooks.RunTrackPairChain(ctx, plugin.HookOnUpdate, old, track)
	switch verdict.Kind {
	case plugin.Skip:
		return nil
	case plugin.Abort:
		return &music.ImportAbortedError{Reason: verdict.Reason}
	}
	if err := e.Library.UpdateTrack(ctx, track); err != nil {
		return err
	}
	e.Hooks.RunTrackChain(ctx, plugin.HookPostUpdate, track)
	return nil
}

// Close runs the on_close chain, releases the plugin interpreters and
// drains the store's connection pool.
func (e *Engine) Close() error {
	e.Hooks.RunLifecycle(context.Background(), plugin.HookOnClose)
	e.Hooks.Close()
	return e.Library.Close()
}
