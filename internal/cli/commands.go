package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ariejan/apollo/internal/config"
	"github.com/ariejan/apollo/internal/importer"
	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
	"github.com/ariejan/apollo/internal/web"
)

func (a *app) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the Apollo home directory, config file and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(a.configPath); err != nil {
				var exists *music.AlreadyExistsError
				if !errors.As(err, &exists) {
					return err
				}
				fmt.Println("config already exists, leaving it alone")
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			fmt.Println("library initialized at", a.cfg.Library.DatabasePath)
			return nil
		},
	}
}

func (a *app) importCommand() *cobra.Command {
	var writeTags bool
	var copyIntoLibrary bool
	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import a directory of audio files into the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			opts := importer.Options{
				FollowSymlinks: a.cfg.Import.FollowSymlinks,
				MaxDepth:       a.cfg.Import.MaxDepth,
				IncludeExts:    a.cfg.Import.IncludeExtensions,
				WriteTagsBack:  writeTags || a.cfg.Import.WriteTagsBack,
			}
			if copyIntoLibrary || a.cfg.Import.CopyIntoLibrary {
				opts.CopyInto = a.cfg.Paths.MusicDir
			}

			report, err := a.eng.Importer.Import(ctx, args[0], opts)
			if report != nil {
				fmt.Printf("imported %d, unchanged %d, moved %d, skipped by hook %d, failed %d\n",
					report.Imported, report.SkippedUnchanged, report.Moved,
					report.SkippedByHook, report.Failed)
				for _, issue := range report.Errors {
					fmt.Fprintf(os.Stderr, "  %s: %s (%s)\n", issue.Path, issue.Detail, issue.Kind)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&writeTags, "write-tags", false, "write final metadata back to files")
	cmd.Flags().BoolVar(&copyIntoLibrary, "copy", false, "copy files into the library directory")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:       "list {tracks|albums}",
		Short:     "List catalog contents",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"tracks", "albums"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			ctx := cmd.Context()

			switch args[0] {
			case "tracks":
				tracks, total, err := a.eng.Library.ListTracks(ctx, music.SortArtist, limit, offset)
				if err != nil {
					return err
				}
				for _, t := range tracks {
					fmt.Printf("%s  %s - %s\n", t.ID, t.Artist, t.Title)
				}
				fmt.Printf("%d of %d tracks\n", len(tracks), total)
			case "albums":
				albums, total, err := a.eng.Library.ListAlbums(ctx, limit, offset)
				if err != nil {
					return err
				}
				for _, al := range albums {
					year := ""
					if al.Year != nil {
						year = fmt.Sprintf(" (%d)", *al.Year)
					}
					fmt.Printf("%s  %s - %s%s [%d tracks]\n", al.ID, al.Artist, al.Title, year, al.TrackCount)
				}
				fmt.Printf("%d of %d albums\n", len(albums), total)
			default:
				return fmt.Errorf("unknown listing %q", args[0])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "results offset")
	return cmd
}

func (a *app) queryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <expr>",
		Short: "Query the catalog with the Apollo query language",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := ""
			for i, arg := range args {
				if i > 0 {
					expr += " "
				}
				expr += arg
			}
			q, err := query.Parse(expr)
			if err != nil {
				return err
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			tracks, total, err := a.eng.Library.FindTracks(cmd.Context(), q, music.SortArtist, limit, 0)
			if err != nil {
				return err
			}
			for _, t := range tracks {
				album := ""
				if t.AlbumTitle != nil {
					album = " [" + *t.AlbumTitle + "]"
				}
				fmt.Printf("%s - %s%s\n", t.Artist, t.Title, album)
			}
			fmt.Printf("%d matches\n", total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum results")
	return cmd
}

func (a *app) statsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			s, err := a.eng.Library.Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("tracks:     %s\n", humanize.Comma(int64(s.Tracks)))
			fmt.Printf("albums:     %s\n", humanize.Comma(int64(s.Albums)))
			fmt.Printf("artists:    %s\n", humanize.Comma(int64(s.Artists)))
			fmt.Printf("playlists:  %s\n", humanize.Comma(int64(s.Playlists)))
			fmt.Printf("duration:   %s\n", (time.Duration(s.TotalDurationMS) * time.Millisecond).Round(time.Second))
			return nil
		},
	}
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config {show|init|path|get|set}",
		Short: "Inspect and edit the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file location",
			RunE: func(cmd *cobra.Command, args []string) error {
				path := a.configPath
				if path == "" {
					path = config.DefaultPath()
				}
				fmt.Println(path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write a default config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				return config.WriteDefault(a.configPath)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(a.configPath)
				if err != nil {
					return err
				}
				fmt.Printf("database:   %s\n", cfg.Library.DatabasePath)
				fmt.Printf("music dir:  %s\n", cfg.Paths.MusicDir)
				fmt.Printf("plugins:    %s\n", cfg.Plugins.Directory)
				fmt.Printf("web:        %s:%d\n", cfg.Web.Host, cfg.Web.Port)
				fmt.Printf("musicbrainz enabled: %v\n", cfg.MusicBrainz.Enabled)
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one config value",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := config.Get(a.configPath, args[0])
				if err != nil {
					return err
				}
				fmt.Println(v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set one config value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return config.Set(a.configPath, args[0], args[1])
			},
		},
	)
	return cmd
}

func (a *app) webCommand() *cobra.Command {
	var host string
	var port int
	cmd := &cobra.Command{
		Use:   "web",
		Short: "Serve the REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			if host == "" {
				host = a.cfg.Web.Host
			}
			if port == 0 {
				port = a.cfg.Web.Port
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return web.NewServer(a.eng, a.log.Named("web")).ListenAndServe(ctx, host, port)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host")
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	return cmd
}

func (a *app) duplicatesCommand() *cobra.Command {
	var similar bool
	var toleranceMS int64
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find duplicate tracks",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			ctx := cmd.Context()

			var groups [][]*music.Track
			var err error
			if similar {
				groups, err = a.eng.Library.FindSimilarDuplicates(ctx, toleranceMS)
			} else {
				groups, err = a.eng.Library.FindExactDuplicates(ctx)
			}
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("no duplicates found")
				return nil
			}
			for i, group := range groups {
				fmt.Printf("group %d:\n", i+1)
				for _, t := range group {
					fmt.Printf("  %s - %s  (%s)\n", t.Artist, t.Title, t.Path)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&similar, "similar", false, "match by metadata similarity instead of content hash")
	cmd.Flags().Int64Var(&toleranceMS, "tolerance", 2000, "duration tolerance in milliseconds for --similar")
	return cmd
}

