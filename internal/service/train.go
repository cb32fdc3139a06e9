package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/agentbrain/agentbrain/internal/chunker"
	"github.com/agentbrain/agentbrain/internal/db"
	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/source"
)

// trainStore is the slice of the store the trainer writes chunks to.
type trainStore interface {
	versionStore
	CreateChunk(ctx context.Context, id string, in models.ChunkInput) error
}

// Embedder produces embeddings, degrading to a zero vector instead of
// failing.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, bool)
}

// Acquirer resolves a training request to text items.
type Acquirer interface {
	Acquire(ctx context.Context, req models.TrainRequest) ([]source.Item, []source.Failure)
}

// ErrValidation marks request errors the API reports as 400s.
var ErrValidation = errors.New("invalid training request")

// Trainer runs asynchronous training jobs: acquire text, chunk it,
// version and embed each chunk, persist everything with per-chunk
// progress. Errors never escape a running job; they end up in the job's
// terminal state.
type Trainer struct {
	store     trainStore
	jobs      *JobManager
	versioner *Versioner
	embedder  Embedder
	acquirer  Acquirer
	logger    *slog.Logger
}

// NewTrainer wires a Trainer.
func NewTrainer(store trainStore, jobs *JobManager, embedder Embedder, acquirer Acquirer, logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		store:     store,
		jobs:      jobs,
		versioner: NewVersioner(store),
		embedder:  embedder,
		acquirer:  acquirer,
		logger:    logger,
	}
}

// ValidateTrainRequest checks the structural rules for a training
// submission. Violations wrap ErrValidation.
func ValidateTrainRequest(req models.TrainRequest) error {
	if strings.TrimSpace(req.AgentID) == "" {
		return fmt.Errorf("%w: agentId is required", ErrValidation)
	}
	if !models.ValidSource(req.Source) {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, req.Source)
	}

	switch req.Source {
	case models.SourceAudio, models.SourceVideo:
		if len(req.Files) == 0 {
			return fmt.Errorf("%w: %s training requires at least one file", ErrValidation, req.Source)
		}
		if req.FileType == "" {
			return fmt.Errorf("%w: fileType is required for %s files", ErrValidation, req.Source)
		}
	case models.SourceWebsite, models.SourceYouTube:
		if strings.TrimSpace(req.SourceURL) == "" {
			return fmt.Errorf("%w: sourceUrl is required for %s training", ErrValidation, req.Source)
		}
	case models.SourceDocument:
		if strings.TrimSpace(req.Text) == "" && len(req.Files) == 0 {
			return fmt.Errorf("%w: document training requires text or files", ErrValidation)
		}
		if len(req.Files) > 0 && req.FileType == "" {
			return fmt.Errorf("%w: fileType is required when files are provided", ErrValidation)
		}
	}
	return nil
}

// Train validates req, persists a queued job, starts the worker and
// returns immediately with the queued snapshot.
func (t *Trainer) Train(ctx context.Context, req models.TrainRequest) (JobSnapshot, error) {
	if err := ValidateTrainRequest(req); err != nil {
		return JobSnapshot{}, err
	}

	snap, err := t.jobs.Create(ctx, req.AgentID, req.Source)
	if err != nil {
		return JobSnapshot{}, err
	}

	go t.run(snap.ID, req)
	return snap, nil
}

// run executes one training job in the background. The server's request
// context ends with the HTTP response, so the worker uses its own.
func (t *Trainer) run(jobID string, req models.TrainRequest) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("training worker panicked", "job_id", jobID, "panic", r)
			t.jobs.Fail(ctx, jobID, models.JobError{
				Message: fmt.Sprintf("internal error: %v", r),
				Source:  string(req.Source),
			})
		}
	}()

	t.jobs.SetProcessing(ctx, jobID)

	items, failures := t.acquirer.Acquire(ctx, req)
	if len(items) == 0 {
		t.jobs.Fail(ctx, jobID, acquisitionCause(req, failures))
		return
	}
	warnings := make([]string, 0, len(failures))
	for _, f := range failures {
		warnings = append(warnings, failureMessage(f))
	}

	pending := t.chunkItems(items, req)
	counters := models.JobCounters{TotalChunks: len(pending)}
	t.jobs.UpdateProgress(ctx, jobID, counters)

	if len(pending) == 0 {
		t.jobs.Fail(ctx, jobID, models.JobError{
			Message: "acquired content is empty after chunking",
			Source:  string(req.Source),
			URL:     req.SourceURL,
		})
		return
	}

	stored := 0
	for _, pc := range pending {
		counters.ChunksProcessed++

		hash := Fingerprint(pc.input.Text)
		version, dup, err := t.versioner.ResolveVersion(ctx, req.AgentID, hash, pc.input.SourceURL)
		switch {
		case err != nil:
			t.logger.Warn("version resolution failed", "job_id", jobID, "chunk", pc.input.ChunkIndex, "error", err)
			counters.ErrorCount++
		case dup:
			counters.SkippedCount++
		default:
			pc.input.ContentHash = hash
			pc.input.ContentVersion = version

			embedding, usedFallback := t.embedder.Embed(ctx, pc.input.Text)
			pc.input.Embedding = embedding

			err := t.store.CreateChunk(ctx, uuid.New().String(), pc.input)
			switch {
			case errors.Is(err, db.ErrDuplicateChunk):
				// Lost the insert race to a concurrent job.
				counters.SkippedCount++
			case err != nil:
				t.logger.Warn("chunk insert failed", "job_id", jobID, "chunk", pc.input.ChunkIndex, "error", err)
				counters.ErrorCount++
			default:
				stored++
				if usedFallback {
					counters.ErrorCount++
				} else {
					counters.SuccessCount++
				}
			}
		}

		t.jobs.UpdateProgress(ctx, jobID, counters)
	}

	switch {
	case stored == 0 && counters.SkippedCount == counters.TotalChunks:
		t.jobs.Complete(ctx, jobID, models.JobResult{
			Message:      "agent is already trained with this content",
			ChunksStored: 0,
			Warnings:     warnings,
		})
	case stored == 0:
		t.jobs.Fail(ctx, jobID, models.JobError{
			Message: fmt.Sprintf("no chunks could be stored (%d errors, %d skipped)",
				counters.ErrorCount, counters.SkippedCount),
			Source: string(req.Source),
			URL:    req.SourceURL,
		})
	default:
		msg := fmt.Sprintf("training completed: %d chunks stored", stored)
		if counters.SkippedCount > 0 {
			msg += fmt.Sprintf(", %d already known", counters.SkippedCount)
		}
		t.jobs.Complete(ctx, jobID, models.JobResult{
			Message:      msg,
			ChunksStored: stored,
			Warnings:     warnings,
		})
	}
}

// pendingChunk is one chunk awaiting versioning, embedding and storage.
type pendingChunk struct {
	input models.ChunkInput
}

// chunkItems splits every acquired item and assigns request-wide chunk
// indexes and metadata.
func (t *Trainer) chunkItems(items []source.Item, req models.TrainRequest) []pendingChunk {
	opts := chunkOptions(req)

	var pending []pendingChunk
	for _, item := range items {
		sourceURL := item.URL
		if sourceURL == nil && req.SourceURL != "" {
			u := req.SourceURL
			sourceURL = &u
		}

		pieces := chunker.Chunk(item.Text, opts)
		for _, p := range pieces {
			pending = append(pending, pendingChunk{input: models.ChunkInput{
				AgentID:    req.AgentID,
				Text:       p.Text,
				Source:     req.Source,
				SourceURL:  sourceURL,
				ChunkIndex: len(pending),
				ChunkMetadata: models.ChunkMetadata{
					ChunkSize:     p.Length,
					StartPosition: p.Start,
					EndPosition:   p.End,
					FileName:      item.File,
				},
			}})
		}
	}

	for i := range pending {
		pending[i].input.ChunkMetadata.TotalChunks = len(pending)
	}
	return pending
}

// chunkOptions maps request tuning onto chunker options. Requested
// values are clamped to the supported ranges; zero means default.
func chunkOptions(req models.TrainRequest) chunker.Options {
	opts := chunker.DefaultOptions()
	if req.ChunkSize > 0 {
		opts.MaxLength = min(max(req.ChunkSize, 1000), 2000)
	}
	if req.Overlap > 0 {
		opts.Overlap = min(max(req.Overlap, 200), 400)
	}
	return opts
}

// acquisitionCause builds a terminal failure from acquisition outcomes.
func acquisitionCause(req models.TrainRequest, failures []source.Failure) models.JobError {
	cause := models.JobError{
		Message: "could not acquire any text to train on",
		Source:  string(req.Source),
		URL:     req.SourceURL,
	}
	if len(failures) > 0 {
		f := failures[0]
		cause.Message = f.Message
		if f.URL != nil {
			cause.URL = *f.URL
		}
		if f.File != nil {
			cause.File = *f.File
		}
	}
	return cause
}

func failureMessage(f source.Failure) string {
	switch {
	case f.File != nil:
		return fmt.Sprintf("%s: %s", *f.File, f.Message)
	case f.URL != nil:
		return fmt.Sprintf("%s: %s", *f.URL, f.Message)
	default:
		return f.Message
	}
}
