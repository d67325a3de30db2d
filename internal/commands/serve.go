package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/squidcloud/squid-go/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve collections over HTTP",
	Long: `Serve GET /collections/{name} snapshots with a hydration handoff and
continue them live on GET /live?handoff=... over a WebSocket.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	srv := server.New(cfg.Server, provider, cfg.Client, log)
	if err := srv.Run(cmd.Context()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
