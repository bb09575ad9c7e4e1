package server

import (
	"fmt"

	"github.com/mwantia/comicshelf/internal/agent"
	"github.com/spf13/cobra"

	config "github.com/mwantia/comicshelf/internal/config/server"
)

func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Start the comicshelf agent",
		Long: `Start the comicshelf agent.

The agent keeps the catalog in step with the managed folders: it runs an
initial scan, follows filesystem changes and serves the HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return fmt.Errorf("failed to load server configuration: %w", err)
			}

			return agent.NewAgent(cfg).Serve(cmd.Context())
		},
	}

	return cmd
}
