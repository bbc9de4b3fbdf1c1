package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/colloquyhq/retrieval/internal/cli"
	"github.com/colloquyhq/retrieval/internal/cli/admin"
	"github.com/colloquyhq/retrieval/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "retrievald",
		Short: "Search and answer engine for Colloquy forums",
		Long: `retrievald indexes forum content and serves hybrid search,
typeahead suggestions, and grounded answer synthesis over it.

Environment variables:
  RETRIEVAL_DATABASE_URL    Postgres connection string (required)
  RETRIEVAL_SERVICE_TOKEN   Shared token for the HTTP API`,
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.ReindexCmd())
	rootCmd.AddCommand(clientCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func clientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Query a running retrieval server",
	}

	cmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cmd.PersistentFlags().String("token", "", "Service token (overrides env and config)")
	cmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")

	cmd.AddCommand(client.InitCmd())
	cmd.AddCommand(client.SearchCmd())
	cmd.AddCommand(client.SuggestCmd())
	cmd.AddCommand(client.AnswerCmd())

	return cmd
}
