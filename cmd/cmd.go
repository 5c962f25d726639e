// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

// App builds the root command.
func (r *Runner) App() *cli.Command {
	return &cli.Command{
		Name:    "crate",
		Usage:   "Tag your music library and keep local playlists in step with Spotify",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("CRATE_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Before:   r.load,
		Commands: r.register(),
	}
}

func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: true,
		},
	}
}

// setupCommand handles database setup and migrations.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the config file if needed, initialize the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "List known migrations and whether they have been applied",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recently applied migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// authCommand handles the Spotify account link.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize crate with Spotify using OAuth2",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "no-browser",
						Usage: "Print the authorization URL instead of opening a browser",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Show the linked Spotify account",
				Flags:  outputFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:   "logout",
				Usage:  "Forget the stored Spotify token",
				Action: r.AuthLogout,
			},
		},
	}
}

func searchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the Spotify catalog",
		ArgsUsage: "<query>",
		Flags: append(outputFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of tracks to return",
				Value: 20,
			},
		),
		Action: r.Search,
	}
}

// libraryCommand manages library tracks.
func libraryCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "library",
		Aliases: []string{"lib"},
		Usage:   "Library tracks",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List library tracks",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:    "query",
						Aliases: []string{"q"},
						Usage:   "Filter by title, artist or album",
					},
				),
				Action: r.LibraryList,
			},
			{
				Name:      "add",
				Usage:     "Add a Spotify track by id, or a manual track with --title",
				ArgsUsage: "[spotify-track-id]",
				Flags: append(outputFlags(),
					&cli.StringFlag{Name: "title", Usage: "Title of a manual track"},
					&cli.StringFlag{Name: "artist", Usage: "Artist of a manual track"},
					&cli.StringFlag{Name: "album", Usage: "Album of a manual track"},
				),
				Action: r.LibraryAdd,
			},
			{
				Name: "remove",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "track"},
				},
				Usage:  "Remove a track from the library",
				Action: r.LibraryRemove,
			},
		},
	}
}

// playlistCommand manages local playlists.
func playlistCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlist",
		Aliases: []string{"pl"},
		Usage:   "Local playlists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists",
				Flags: append(outputFlags(),
					&cli.BoolFlag{
						Name:    "remote",
						Aliases: []string{"r"},
						Usage:   "Include Spotify playlists that have not been imported",
					},
				),
				Action: r.PlaylistList,
			},
			{
				Name: "show",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Usage:  "Show a playlist and its tracks",
				Flags:  outputFlags(),
				Action: r.PlaylistShow,
			},
			{
				Name: "create",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Usage: "Create an empty local playlist",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: r.PlaylistCreate,
			},
			{
				Name:    "edit",
				Aliases: []string{"rename"},
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Usage: "Rename a playlist or change its description",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}},
				},
				Action: r.PlaylistEdit,
			},
			{
				Name: "delete",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Usage:  "Delete a local playlist (the Spotify playlist is kept)",
				Action: r.PlaylistDelete,
			},
			{
				Name:      "add",
				Usage:     "Append library tracks to a playlist",
				ArgsUsage: "<playlist> <track>...",
				Action:    r.PlaylistAdd,
			},
			{
				Name:      "remove",
				Usage:     "Remove a track from a playlist",
				ArgsUsage: "<playlist> <track>",
				Action:    r.PlaylistRemove,
			},
			{
				Name:      "move",
				Usage:     "Move the track at position <from> to position <to> (zero-based)",
				ArgsUsage: "<playlist> <from> <to>",
				Action:    r.PlaylistMove,
			},
			{
				Name:      "export",
				Usage:     "Export playlists to disk",
				ArgsUsage: "[playlist]...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: json, csv, markdown or txt",
						Value:   "json",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: crate_export_{epoch})",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent export workers",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "covers",
						Usage: "Download cover art into markdown exports",
					},
				},
				Action: r.PlaylistExport,
			},
		},
	}
}

// tagCommand manages tags. Tags can be referenced by id or by name.
func tagCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tag",
		Usage: "Tags",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List tags",
				Flags:  outputFlags(),
				Action: r.TagList,
			},
			{
				Name: "create",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Usage: "Create a tag",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "color", Usage: "Display color, e.g. #ff8800"},
				},
				Action: r.TagCreate,
			},
			{
				Name: "delete",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "tag"},
				},
				Usage:  "Delete a tag",
				Action: r.TagDelete,
			},
			{
				Name:      "attach",
				Usage:     "Attach a tag to a library track",
				ArgsUsage: "<tag> <track>",
				Action:    r.TagAttach,
			},
			{
				Name:      "detach",
				Usage:     "Detach a tag from a library track",
				ArgsUsage: "<tag> <track>",
				Action:    r.TagDetach,
			},
			{
				Name: "tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "tag"},
				},
				Usage:  "List the tracks carrying a tag",
				Flags:  outputFlags(),
				Action: r.TagTracks,
			},
		},
	}
}

// syncCommand reconciles local playlists with Spotify.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile local playlists with Spotify",
		Commands: []*cli.Command{
			{
				Name: "import",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "remote"},
				},
				Usage:  "Import a Spotify playlist as a linked local playlist",
				Flags:  outputFlags(),
				Action: r.SyncImport,
			},
			{
				Name: "run",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "playlist"},
				},
				Usage:       "Push a linked playlist to Spotify, or create an unlinked one there with --action create",
				Description: "--action mirror also rewrites the Spotify playlist in local track order.",
				Flags: append(outputFlags(),
					&cli.StringFlag{
						Name:    "action",
						Aliases: []string{"a"},
						Usage:   "sync or mirror (linked playlists), create (unlinked playlists)",
						Value:   "sync",
					},
				),
				Action: r.SyncRun,
			},
			{
				Name:   "all",
				Usage:  "Sync every linked playlist",
				Flags:  outputFlags(),
				Action: r.SyncAll,
			},
		},
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the JSON API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Usage: "Listen host (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port (default from config)"},
		},
		Action: r.Serve,
	}
}

func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse and sync playlists interactively",
		Action: r.TUI,
	}
}
