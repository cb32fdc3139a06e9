package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

var (
	jobsAgent string
	jobsLimit int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect training jobs",
	Long: `List recent training jobs or inspect a specific job by ID.

Examples:
  agentbrain jobs                      # List recent jobs
  agentbrain jobs --agent support-bot  # List jobs for one agent
  agentbrain jobs 4f1c...              # Show details for one job`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func init() {
	jobsCmd.Flags().StringVar(&jobsAgent, "agent", "", "filter jobs by agent ID")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showJob(ctx, args[0])
	}
	return listJobs(ctx)
}

func listJobs(ctx context.Context) error {
	jobs, err := apiClient.ListJobs(ctx, jobsAgent, jobsLimit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-38s %-14s %-10s %-10s %-10s %s\n", "ID", "AGENT", "SOURCE", "STATUS", "PROGRESS", "CREATED")
	for _, job := range jobs {
		progress := fmt.Sprintf("%d%%", job.Progress)
		created := job.CreatedAt.Format("Jan 02 15:04")
		fmt.Printf("%-38s %-14s %-10s %-10s %-10s %s\n",
			job.ID, job.AgentID, job.Source, job.Status, progress, created)
	}
	return nil
}

func showJob(ctx context.Context, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job:       %s\n", job.ID)
	fmt.Printf("Agent:     %s\n", job.AgentID)
	fmt.Printf("Source:    %s\n", job.Source)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Progress:  %d%% (%d/%d chunks)\n", job.Progress, job.ChunksProcessed, job.TotalChunks)
	fmt.Printf("Outcomes:  %d stored, %d errors, %d skipped\n", job.SuccessCount, job.ErrorCount, job.SkippedCount)
	fmt.Printf("Created:   %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	return printJobOutcome(job)
}

// printJobOutcome renders the terminal result or error of a job.
func printJobOutcome(job *service.JobSnapshot) error {
	if job == nil {
		return nil
	}
	switch job.Status {
	case models.JobCompleted:
		if job.Result != nil {
			fmt.Printf("Result:    %s\n", job.Result.Message)
			for _, w := range job.Result.Warnings {
				fmt.Printf("  warning: %s\n", w)
			}
		}
		return nil
	case models.JobFailed:
		if job.Error != nil {
			detail := ""
			if job.Error.URL != "" {
				detail = " (" + job.Error.URL + ")"
			} else if job.Error.File != "" {
				detail = " (" + job.Error.File + ")"
			}
			return fmt.Errorf("job failed: %s%s", job.Error.Message, detail)
		}
		return fmt.Errorf("job failed")
	default:
		return nil
	}
}
