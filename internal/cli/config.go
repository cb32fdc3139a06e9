package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbrain/agentbrain/internal/service"
)

var tuning service.RetrievalConfig

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and tune server configuration",
}

var retrievalCmd = &cobra.Command{
	Use:   "retrieval",
	Short: "Show or update retrieval tuning",
	Long: `Show the server's retrieval tuning, or update individual
parameters. Changes apply immediately and reset on server restart.

Examples:
  agentbrain config retrieval
  agentbrain config retrieval --max-chunks 5 --similarity-threshold 0.4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		var cfg *service.RetrievalConfig
		var err error
		if cmd.Flags().NFlag() > 0 {
			cfg, err = apiClient.SetRetrievalConfig(ctx, tuning)
		} else {
			cfg, err = apiClient.RetrievalConfig(ctx)
		}
		if err != nil {
			return fmt.Errorf("retrieval config: %w", err)
		}

		fmt.Printf("vectorK:             %d\n", cfg.VectorK)
		fmt.Printf("keywordK:            %d\n", cfg.KeywordK)
		fmt.Printf("similarityThreshold: %.2f\n", cfg.SimilarityThreshold)
		fmt.Printf("confidenceThreshold: %.2f\n", cfg.ConfidenceThreshold)
		fmt.Printf("maxChunks:           %d\n", cfg.MaxChunks)
		fmt.Printf("maxContextLength:    %d\n", cfg.MaxContextLength)
		return nil
	},
}

func init() {
	retrievalCmd.Flags().IntVar(&tuning.VectorK, "vector-k", 0, "vector candidates to fetch")
	retrievalCmd.Flags().IntVar(&tuning.KeywordK, "keyword-k", 0, "keyword candidates to fetch")
	retrievalCmd.Flags().Float64Var(&tuning.SimilarityThreshold, "similarity-threshold", 0, "minimum similarity to keep a chunk")
	retrievalCmd.Flags().Float64Var(&tuning.ConfidenceThreshold, "confidence-threshold", 0, "minimum confidence to keep a chunk")
	retrievalCmd.Flags().IntVar(&tuning.MaxChunks, "max-chunks", 0, "maximum chunks in the answer context")
	retrievalCmd.Flags().IntVar(&tuning.MaxContextLength, "max-context-length", 0, "context size cap in characters")
	configCmd.AddCommand(retrievalCmd)
	rootCmd.AddCommand(configCmd)
}
