package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var agentsDeleteYes bool

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage agent knowledge bases",
}

var agentsStatsCmd = &cobra.Command{
	Use:   "stats <agent-id>",
	Short: "Show how much knowledge an agent holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := apiClient.AgentStats(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("agent stats: %w", err)
		}

		fmt.Printf("Agent:  %s\n", stats.AgentID)
		fmt.Printf("Chunks: %d\n", stats.TotalChunks)
		if len(stats.BySource) > 0 {
			sources := make([]string, 0, len(stats.BySource))
			for s := range stats.BySource {
				sources = append(sources, s)
			}
			sort.Strings(sources)
			for _, s := range sources {
				fmt.Printf("  %-10s %d\n", s, stats.BySource[s])
			}
		}
		return nil
	},
}

var agentsDeleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Delete all knowledge stored for an agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID := args[0]

		if !agentsDeleteYes {
			fmt.Printf("Delete all knowledge for agent %q? [y/N] ", agentID)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
				fmt.Println("Aborted")
				return nil
			}
		}

		deleted, err := apiClient.DeleteAgent(context.Background(), agentID)
		if err != nil {
			return fmt.Errorf("delete agent: %w", err)
		}
		fmt.Printf("Deleted %d chunks for agent %s\n", deleted, agentID)
		return nil
	},
}

func init() {
	agentsDeleteCmd.Flags().BoolVarP(&agentsDeleteYes, "yes", "y", false, "skip the confirmation prompt")
	agentsCmd.AddCommand(agentsStatsCmd, agentsDeleteCmd)
	rootCmd.AddCommand(agentsCmd)
}
