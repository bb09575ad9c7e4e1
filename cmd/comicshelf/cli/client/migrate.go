package client

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mwantia/comicshelf/internal/agent"
	config "github.com/mwantia/comicshelf/internal/config/server"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect and revert catalog schema migrations",
		Long: `Inspect and revert catalog schema migrations.

The agent applies pending migrations on startup, so a rolled back
migration is applied again the next time it runs.`,
	}

	cmd.AddCommand(newMigrateStatusCommand())
	cmd.AddCommand(newMigrateRollbackCommand())

	return cmd
}

// withStore opens the catalog store, without migrating it, for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, s *store.SQLiteStore) error) error {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load server configuration: %w", err)
	}

	s, err := agent.OpenStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(cmd.Context(), s)
}

func newMigrateStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List schema migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s *store.SQLiteStore) error {
				statuses, err := s.MigrationStatus(ctx)
				if err != nil {
					return err
				}

				tw := table.NewWriter()
				tw.SetStyle(table.StyleRounded)
				tw.AppendHeader(table.Row{"Version", "Description", "Applied"})
				for _, status := range statuses {
					applied := "pending"
					if status.Applied() {
						applied = status.AppliedAt.Local().Format("2006-01-02 15:04")
					}
					tw.AppendRow(table.Row{status.Version, status.Description, applied})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tw.Render())
				return nil
			})
		},
	}
}

func newMigrateRollbackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback",
		Short: "Revert the most recent schema migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, s *store.SQLiteStore) error {
				status, err := s.Rollback(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rolled back migration %d (%s)\n", status.Version, status.Description)
				return nil
			})
		},
	}
}
