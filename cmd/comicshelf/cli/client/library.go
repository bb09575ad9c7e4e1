package client

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mwantia/comicshelf/internal/agent"
	config "github.com/mwantia/comicshelf/internal/config/server"
	"github.com/mwantia/comicshelf/pkg/db/store"
	"github.com/mwantia/comicshelf/pkg/log"
)

func NewLibraryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage the comic library",
		Long:  "Run one-shot library operations against the configured catalog without starting the agent.",
	}

	cmd.AddCommand(NewLibraryScanCommand())
	cmd.AddCommand(NewLibraryCleanupCommand())
	cmd.AddCommand(NewLibraryListCommand())
	cmd.AddCommand(NewLibraryFoldersCommand())
	cmd.AddCommand(NewLibraryCoversCommand())

	return cmd
}

// withLibrary opens the catalog for the duration of fn.
func withLibrary(cmd *cobra.Command, fn func(ctx context.Context, services *agent.Services) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	logger := log.NewLoggerService("comicshelf", cfg.Log)
	services, err := agent.OpenLibrary(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer services.Close()

	return fn(cmd.Context(), services)
}

func NewLibraryScanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [folder]",
		Short: "Scan managed folders",
		Long:  "Reconcile the catalog with every managed folder, or only the given one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := ""
			if len(args) == 1 {
				folder = args[0]
			}
			return withLibrary(cmd, func(ctx context.Context, services *agent.Services) error {
				res, err := services.Library.Scan(ctx, folder)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d archive(s) found in %d folder(s): %d inserted, %d attached, %d cover(s), %d failed\n",
					res.Found, res.Folders, res.Inserted, res.Attached, res.Covered, res.Failed)
				return nil
			})
		},
	}

	return cmd
}

func NewLibraryCleanupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Release comics whose archive is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, func(ctx context.Context, services *agent.Services) error {
				n, err := services.Library.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d comic(s) cleaned\n", n)
				return nil
			})
		},
	}

	return cmd
}

func NewLibraryListCommand() *cobra.Command {
	var filter string
	var search string
	var sortBy string
	var limit int
	var humanReadable bool

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List catalog entries",
		Long:  "List comics from the catalog, optionally filtered by provenance, favorites or folder.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, func(ctx context.Context, services *agent.Services) error {
				comics, total, err := services.Library.ListComics(ctx, store.ComicQuery{
					Search: search,
					Filter: store.ComicFilter(filter),
					SortBy: sortBy,
					Limit:  limit,
				})
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetStyle(table.StyleRounded)
				tw.AppendHeader(table.Row{"Title", "Local", "Online", "Pages", "Folders", "Added"})
				for _, comic := range comics {
					folders := make([]string, 0, len(comic.Folders))
					for _, membership := range comic.Folders {
						folders = append(folders, membership.Folder.Name)
					}
					added := comic.DateAdded.Format("2006-01-02 15:04")
					if humanReadable {
						added = humanize.Time(comic.DateAdded)
					}
					tw.AppendRow(table.Row{
						comic.DisplayName,
						yesNo(comic.HasLocal()),
						yesNo(comic.HasOnline()),
						fmt.Sprintf("%d/%d", comic.CurrentPage, comic.TotalPages),
						strings.Join(folders, ", "),
						added,
					})
				}
				tw.SetColumnConfigs([]table.ColumnConfig{
					{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
				})

				fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
				fmt.Fprintf(cmd.OutOrStdout(), "%d of %s comic(s)\n", len(comics), humanize.Comma(total))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&filter, "filter", "f", string(store.FilterAll), "all, favorites, web, downloaded, undownloaded or a folder name")
	cmd.Flags().StringVarP(&search, "search", "s", "", "search display names and tags")
	cmd.Flags().StringVar(&sortBy, "sort", "date", "sort by date or name")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of entries")
	cmd.Flags().BoolVarP(&humanReadable, "human", "H", false, "Enable human-readable format")

	return cmd
}

func NewLibraryFoldersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List folders and their rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, func(ctx context.Context, services *agent.Services) error {
				folders, err := services.Library.Folders(ctx)
				if err != nil {
					return err
				}
				stats, err := services.Library.Stats(ctx)
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetStyle(table.StyleRounded)
				tw.AppendHeader(table.Row{"Name", "Auto", "Name rules", "Tag rules", "Comics"})
				for _, folder := range folders {
					tw.AppendRow(table.Row{
						folder.Name,
						yesNo(folder.Auto),
						strings.Join(folder.NameIncludes, ", "),
						strings.Join(folder.TagIncludes, ", "),
						strconv.FormatInt(stats.Folders[folder.Name], 10),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
				return nil
			})
		},
	}

	return cmd
}

func NewLibraryCoversCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "covers",
		Short: "Manage generated cover files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete cover files no comic refers to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLibrary(cmd, func(ctx context.Context, services *agent.Services) error {
				n, err := services.Library.PruneCoverCache(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d cover file(s) removed\n", n)
				return nil
			})
		},
	})

	return cmd
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
