package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

var (
	trainSource    string
	trainText      string
	trainURL       string
	trainFiles     []string
	trainFileType  string
	trainChunkSize int
	trainOverlap   int
	trainWatch     bool
)

var trainCmd = &cobra.Command{
	Use:   "train <agent-id>",
	Short: "Train an agent on new content",
	Long: `Submit a training job for an agent. Content comes from inline
text, local files, a website URL, or media to transcribe.

Examples:
  agentbrain train support-bot --text "Our refund window is 30 days."
  agentbrain train support-bot --file docs/handbook.txt --file-type txt
  agentbrain train support-bot --source website --url https://docs.example.com/faq
  agentbrain train support-bot --source youtube --url https://youtube.com/watch?v=abc --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainSource, "source", "document", "content source: document, website, youtube, audio, video")
	trainCmd.Flags().StringVar(&trainText, "text", "", "inline text to train on")
	trainCmd.Flags().StringVar(&trainURL, "url", "", "source URL for website/youtube training")
	trainCmd.Flags().StringSliceVar(&trainFiles, "file", nil, "file to train on (repeatable)")
	trainCmd.Flags().StringVar(&trainFileType, "file-type", "", "type of the provided files (e.g. txt, mp3)")
	trainCmd.Flags().IntVar(&trainChunkSize, "chunk-size", 0, "chunk size in characters (1000-2000)")
	trainCmd.Flags().IntVar(&trainOverlap, "overlap", 0, "chunk overlap in characters (200-400)")
	trainCmd.Flags().BoolVar(&trainWatch, "watch", false, "follow job progress until it finishes")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	agentID := args[0]

	req := models.TrainRequest{
		Source:    models.Source(trainSource),
		Text:      trainText,
		SourceURL: trainURL,
		FileType:  trainFileType,
		ChunkSize: trainChunkSize,
		Overlap:   trainOverlap,
	}

	for _, path := range trainFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		req.Files = append(req.Files, models.FilePayload{
			Name:    filepath.Base(path),
			Content: base64.StdEncoding.EncodeToString(content),
		})
	}

	resp, err := apiClient.Train(ctx, agentID, req)
	if err != nil {
		return fmt.Errorf("submit training: %w", err)
	}

	fmt.Printf("Training job %s queued for agent %s\n", resp.JobID, agentID)

	if !trainWatch {
		fmt.Printf("Check progress with: agentbrain jobs %s\n", resp.JobID)
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunJobProgress(apiClient, resp.JobID)
	}
	return followJobPlain(ctx, resp.JobID)
}

// followJobPlain prints progress lines for non-interactive output.
func followJobPlain(ctx context.Context, jobID string) error {
	last, err := apiClient.WatchJob(ctx, jobID, func(snap service.JobSnapshot) error {
		fmt.Printf("[%s] %d%% (%d/%d chunks)\n", snap.Status, snap.Progress, snap.ChunksProcessed, snap.TotalChunks)
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch job: %w", err)
	}
	return printJobOutcome(last)
}
