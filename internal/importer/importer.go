// Package importer orchestrates the import pipeline: scan, hash, dedup,
// tag read, hook chain, album reconciliation and the transactional track
// insert.
package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/plugin"
	"github.com/ariejan/apollo/internal/scan"
	"github.com/ariejan/apollo/internal/tags"
)

// Options configures one import run.
type Options struct {
	FollowSymlinks bool
	MaxDepth       int
	IncludeExts    []string
	// CopyInto, when set, copies each file into this library directory
	// (artist/album layout) before importing the copy.
	CopyInto string
	// WriteTagsBack writes the final record's tags to the audio file.
	WriteTagsBack bool
	// Progress, when set, is invoked with the running scan entry count.
	Progress func(entries int)
}

// Recorder is the catalog surface the pipeline writes to. *library.Library
// satisfies it.
type Recorder interface {
	GetTrackByHash(ctx context.Context, hash string) (*music.Track, error)
	GetTrackByPath(ctx context.Context, path string) (*music.Track, error)
	SetTrackPath(ctx context.Context, id uuid.UUID, path string) error
	AddTrack(ctx context.Context, t *music.Track) error
	UpdateTrack(ctx context.Context, t *music.Track) error
	FindAlbumByKey(ctx context.Context, artist, title string) (*music.Album, error)
	AddAlbum(ctx context.Context, a *music.Album) error
	UpdateAlbum(ctx context.Context, a *music.Album) error
}

// MusicBrainzLookup resolves a recording id for a track; nil disables
// the lookup step.
type MusicBrainzLookup interface {
	FindRecordingID(ctx context.Context, title, artist, album string, durationMS int64) (string, error)
}

// Importer runs import pipelines against a catalog.
type Importer struct {
	store Recorder
	hooks *plugin.Host
	log   *zap.Logger
	mb    MusicBrainzLookup

	// Injected collaborators, replaced by tests.
	walk      func(ctx context.Context, root string, opts scan.Options) (*scan.Result, error)
	hashFile  func(path string) (string, error)
	readTags  func(path string) (*music.Track, error)
	writeTags func(path string, t *music.Track) error
}

// New creates an importer bound to a catalog and hook host.
func New(store Recorder, hooks *plugin.Host, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	if hooks == nil {
		hooks = plugin.NewHost(0, log)
	}
	return &Importer{
		store:     store,
		hooks:     hooks,
		log:       log,
		walk:      scan.Walk,
		hashFile:  scan.HashFile,
		readTags:  tags.Read,
		writeTags: tags.Write,
	}
}

// WithMusicBrainz enables the optional recording lookup step.
func (im *Importer) WithMusicBrainz(mb MusicBrainzLookup) *Importer {
	im.mb = mb
	return im
}

// Import walks root and imports every candidate file sequentially, in the
// scanner's emission order. Per-path failures accumulate in the report;
// a walk error, a hook Abort, a store failure or the context cancelling
// stops the run.
func (im *Importer) Import(ctx context.Context, root string, opts Options) (*Report, error) {
	report := &Report{}

	scanRes, err := im.walk(ctx, root, scan.Options{
		MaxDepth:       opts.MaxDepth,
		FollowSymlinks: opts.FollowSymlinks,
		Extensions:     opts.IncludeExts,
		Progress:       opts.Progress,
	})
	if err != nil {
		return report, err
	}
	for _, pe := range scanRes.Errors {
		report.fail(pe.Path, IssueScan, pe.Err.Error())
	}

	for _, path := range scanRes.Paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := im.importOne(ctx, path, opts, report); err != nil {
			var aborted *music.ImportAbortedError
			if errors.As(err, &aborted) {
				return report, err
			}
			var storeErr *music.StoreError
			if errors.As(err, &storeErr) {
				report.fail(path, IssueStore, err.Error())
				// A store failure is fatal to the run.
				return report, err
			}
			report.fail(path, IssueIO, err.Error())
		}
	}

	im.log.Info("import finished",
		zap.String("root", root),
		zap.Int("imported", report.Imported),
		zap.Int("skipped_unchanged", report.SkippedUnchanged),
		zap.Int("skipped_by_hook", report.SkippedByHook),
		zap.Int("moved", report.Moved),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (im *Importer) importOne(ctx context.Context, path string, opts Options, report *Report) error {
	hash, err := im.hashFile(path)
	if err != nil {
		report.fail(path, IssueIO, err.Error())
		return nil
	}

	// Dedup by content hash. An existing record whose file is still in
	// place is unchanged; a record whose old path vanished is a move.
	existing, err := im.store.GetTrackByHash(ctx, hash)
	if err != nil {
		var notFound *music.NotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
	}
	if existing != nil {
		if existing.Path == path {
			report.SkippedUnchanged++
			return nil
		}
		if _, statErr := os.Stat(existing.Path); statErr == nil {
			// The old file is still readable: same bytes at two paths.
			report.SkippedUnchanged++
			return nil
		}
		if err := im.store.SetTrackPath(ctx, existing.ID, path); err != nil {
			return err
		}
		im.log.Debug("track moved", zap.String("from", existing.Path), zap.String("to", path))
		report.Moved++
		return nil
	}

	track, err := im.readTags(path)
	if err != nil {
		var unreadable *music.UnreadableFileError
		if errors.As(err, &unreadable) {
			report.fail(path, IssueUnreadable, err.Error())
			return nil
		}
		report.fail(path, IssueIO, err.Error())
		return nil
	}
	track.FileHash = hash

	if opts.CopyInto != "" {
		dest, err := im.copyIntoLibrary(track, opts.CopyInto)
		if err != nil {
			report.fail(path, IssueIO, err.Error())
			return nil
		}
		track.Path = dest
	}

	if im.mb != nil && track.MusicBrainz == nil {
		im.lookupRecording(ctx, track)
	}

	verdict := im.hooks.RunTrackChain(ctx, plugin.HookOnImport, track)
	switch verdict.Kind {
	case plugin.Skip:
		im.log.Debug("skipped by hook", zap.String("path", path), zap.String("reason", verdict.Reason))
		report.SkippedByHook++
		return nil
	case plugin.Abort:
		return &music.ImportAbortedError{Reason: verdict.Reason}
	}

	if track.AlbumTitle != nil {
		if err := im.reconcileAlbum(ctx, track); err != nil {
			var aborted *music.ImportAbortedError
			if errors.As(err, &aborted) {
				return err
			}
			// Album trouble degrades to an albumless track.
			im.log.Warn("album reconciliation failed", zap.String("path", path), zap.Error(err))
			track.AlbumID = nil
		}
	}

	if err := im.insertOrRefresh(ctx, track); err != nil {
		return err
	}
	report.Imported++

	if opts.WriteTagsBack {
		if err := im.writeTags(track.Path, track); err != nil {
			im.log.Warn("tag write-back failed", zap.String("path", track.Path), zap.Error(err))
		}
	}

	im.hooks.RunTrackChain(ctx, plugin.HookPostImport, track)
	return nil
}

// insertOrRefresh adds the track, or refreshes the existing row when the
// path is already catalogued with different contents (a re-tagged or
// re-encoded file).
func (im *Importer) insertOrRefresh(ctx context.Context, track *music.Track) error {
	err := im.store.AddTrack(ctx, track)
	if err == nil {
		return nil
	}
	var exists *music.AlreadyExistsError
	if !errors.As(err, &exists) {
		return err
	}
	prev, getErr := im.store.GetTrackByPath(ctx, track.Path)
	if getErr != nil {
		return getErr
	}
	track.ID = prev.ID
	track.AddedAt = prev.AddedAt
	return im.store.UpdateTrack(ctx, track)
}

// reconcileAlbum links the track to an existing album, updating its
// aggregates, or creates a new one through the album hook chain.
func (im *Importer) reconcileAlbum(ctx context.Context, track *music.Track) error {
	artist := track.EffectiveAlbumArtist()
	title := *track.AlbumTitle

	album, err := im.store.FindAlbumByKey(ctx, artist, title)
	if err != nil {
		return err
	}
	if album != nil {
		if im.mergeAlbumAggregates(album, track) {
			if err := im.store.UpdateAlbum(ctx, album); err != nil {
				return err
			}
		}
		track.AlbumID = &album.ID
		return nil
	}

	album = music.NewAlbum(title, artist)
	album.Year = track.Year
	album.Genres = music.MergeGenres(nil, track.Genres)
	album.DiscCount = trackDiscCount(track)
	if cover := findCoverArt(filepath.Dir(track.Path)); cover != "" {
		album.CoverArtPath = &cover
	}

	verdict := im.hooks.RunAlbumChain(ctx, plugin.HookOnAlbumImport, album)
	switch verdict.Kind {
	case plugin.Skip:
		// The album is not created; the track imports without one.
		return nil
	case plugin.Abort:
		return &music.ImportAbortedError{Reason: verdict.Reason}
	}

	if err := im.store.AddAlbum(ctx, album); err != nil {
		return err
	}
	track.AlbumID = &album.ID
	im.hooks.RunAlbumChain(ctx, plugin.HookPostAlbumImport, album)
	return nil
}

// mergeAlbumAggregates folds a new track's metadata into an existing
// album. Reports whether anything changed.
func (im *Importer) mergeAlbumAggregates(album *music.Album, track *music.Track) bool {
	changed := false

	// Keep the earlier non-null year.
	if track.Year != nil {
		if album.Year == nil || *track.Year < *album.Year {
			album.Year = track.Year
			changed = true
		}
	}

	merged := music.MergeGenres(album.Genres, track.Genres)
	if len(merged) != len(album.Genres) {
		album.Genres = merged
		changed = true
	}

	if dc := trackDiscCount(track); dc > album.DiscCount {
		album.DiscCount = dc
		changed = true
	}
	return changed
}

func trackDiscCount(track *music.Track) int {
	switch {
	case track.DiscTotal != nil:
		return *track.DiscTotal
	case track.DiscNumber != nil:
		return *track.DiscNumber
	default:
		return 1
	}
}

func (im *Importer) lookupRecording(ctx context.Context, track *music.Track) {
	album := ""
	if track.AlbumTitle != nil {
		album = *track.AlbumTitle
	}
	id, err := im.mb.FindRecordingID(ctx, track.Title, track.Artist, album, track.DurationMS)
	if err != nil {
		im.log.Debug("musicbrainz lookup failed", zap.String("title", track.Title), zap.Error(err))
		return
	}
	if id != "" {
		track.MusicBrainz = &id
	}
}

// coverArtNames are the sidecar files recognized as album art.
var coverArtNames = []string{"cover.jpg", "cover.png", "folder.jpg", "folder.png"}

func findCoverArt(dir string) string {
	for _, name := range coverArtNames {
		candidate := filepath.Join(dir, name)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate
		}
	}
	return ""
}
