package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ariejan/apollo/internal/music"
	"github.com/ariejan/apollo/internal/query"
)

func (a *app) playlistCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "playlist",
		Short: "Manage playlists",
	}
	cmd.AddCommand(
		a.playlistListCommand(),
		a.playlistCreateCommand(),
		a.playlistDeleteCommand(),
		a.playlistShowCommand(),
		a.playlistAddCommand(),
		a.playlistRemoveCommand(),
	)
	return cmd
}

func (a *app) playlistListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List playlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			playlists, err := a.eng.Library.ListPlaylists(cmd.Context())
			if err != nil {
				return err
			}
			for _, p := range playlists {
				extra := ""
				if p.Kind == music.PlaylistSmart && p.Query != nil {
					extra = fmt.Sprintf("  query=%q", *p.Query)
				}
				fmt.Printf("%s  %s (%s)%s\n", p.ID, p.Name, p.Kind, extra)
			}
			return nil
		},
	}
}

func (a *app) playlistCreateCommand() *cobra.Command {
	var smartQuery string
	var sort string
	var maxTracks int
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a playlist (static, or smart with --query)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p *music.Playlist
			if cmd.Flags().Changed("query") {
				if _, err := query.Parse(smartQuery); err != nil {
					return err
				}
				p = music.NewSmartPlaylist(args[0], smartQuery)
			} else {
				p = music.NewStaticPlaylist(args[0])
			}
			if sort != "" {
				p.Sort = music.ParseSort(sort)
			}
			if maxTracks > 0 {
				p.MaxTracks = &maxTracks
			}

			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			if err := a.eng.Library.AddPlaylist(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Println(p.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&smartQuery, "query", "", "smart playlist query expression")
	cmd.Flags().StringVar(&sort, "sort", "", "sort order")
	cmd.Flags().IntVar(&maxTracks, "max-tracks", 0, "cap the number of tracks")
	return cmd
}

func (a *app) playlistDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid playlist id %q", args[0])
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			return a.eng.Library.RemovePlaylist(cmd.Context(), id)
		},
	}
}

func (a *app) playlistShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a playlist's tracks (smart playlists materialize)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid playlist id %q", args[0])
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()

			tracks, err := a.eng.Playlists.Tracks(cmd.Context(), id)
			if err != nil {
				return err
			}
			for i, t := range tracks {
				fmt.Printf("%3d. %s - %s\n", i+1, t.Artist, t.Title)
			}
			return nil
		},
	}
}

func (a *app) playlistAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add <playlist-id> <track-id>",
		Short: "Append a track to a static playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playlistID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid playlist id %q", args[0])
			}
			trackID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid track id %q", args[1])
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			return a.eng.Playlists.AddTrack(cmd.Context(), playlistID, trackID)
		},
	}
}

func (a *app) playlistRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <playlist-id> <track-id>",
		Short: "Remove a track from a static playlist",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			playlistID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid playlist id %q", args[0])
			}
			trackID, err := uuid.Parse(args[1])
			if err != nil {
				return fmt.Errorf("invalid track id %q", args[1])
			}
			if err := a.openEngine(); err != nil {
				return err
			}
			defer a.closeEngine()
			return a.eng.Playlists.RemoveTrack(cmd.Context(), playlistID, trackID)
		},
	}
}
