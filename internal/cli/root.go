// Package cli provides the command-line interface for agentbrain.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentbrain/agentbrain/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	// API client, created before any command runs.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "agentbrain",
	Short: "Train and query agent knowledge bases",
	Long: `Agentbrain trains AI agents on documents, websites and media
transcripts, and answers questions from what they learned.

Training runs as background jobs on the server; this CLI submits work,
follows progress and asks questions.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "agentbrain server URL (default $AGENTBRAIN_SERVER_URL or http://localhost:8585)")
}
