package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askShowSources bool

var askCmd = &cobra.Command{
	Use:   "ask <agent-id> <question>",
	Short: "Ask an agent a question",
	Long: `Ask a question against an agent's trained knowledge.

Examples:
  agentbrain ask support-bot "what is our refund policy"
  agentbrain ask support-bot --sources "how do backups work"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askShowSources, "sources", false, "show the knowledge sources behind the answer")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	agentID := args[0]
	question := strings.Join(args[1:], " ")

	answer, err := apiClient.Ask(ctx, agentID, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Println(answer.Reply)
	fmt.Printf("\nconfidence: %.3f", answer.Confidence)
	if answer.FallbackUsed {
		fmt.Print("  (fallback)")
	}
	fmt.Println()

	if askShowSources && len(answer.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, s := range answer.Sources {
			location := string(s.Source)
			if s.SourceURL != nil {
				location += " " + *s.SourceURL
			}
			fmt.Printf("  %-50s chunk %-4d similarity %.3f confidence %.3f\n",
				location, s.ChunkIndex, s.Similarity, s.Confidence)
		}
	}
	return nil
}
