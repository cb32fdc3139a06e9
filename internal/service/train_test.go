package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/agentbrain/agentbrain/internal/db"
	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/source"
)

// fakeTrainStore holds chunks in memory and enforces the store's unique
// (agent, hash, source url) constraint the way SurrealDB does.
type fakeTrainStore struct {
	*fakeVersionStore
	mu     sync.Mutex
	stored []models.ChunkInput
}

func newFakeTrainStore() *fakeTrainStore {
	return &fakeTrainStore{fakeVersionStore: newFakeVersionStore()}
}

func (f *fakeTrainStore) CreateChunk(ctx context.Context, id string, in models.ChunkInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := in.AgentID + "|" + in.ContentHash + "|" + deref(in.SourceURL)
	if _, exists := f.chunks[key]; exists {
		return db.ErrDuplicateChunk
	}
	f.add(in.AgentID, in.ContentHash, in.SourceURL, in.ContentVersion)
	f.stored = append(f.stored, in)
	return nil
}

type fakeEmbedder struct {
	fallback bool
	vec      []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, bool) {
	if f.fallback {
		return make([]float32, len(f.vec)), true
	}
	return f.vec, false
}

type fakeAcquirer struct {
	items    []source.Item
	failures []source.Failure
}

func (f *fakeAcquirer) Acquire(ctx context.Context, req models.TrainRequest) ([]source.Item, []source.Failure) {
	return f.items, f.failures
}

func newTestTrainer(store *fakeTrainStore, embedder Embedder, acquirer Acquirer) (*Trainer, *JobManager) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobs := NewJobManager(newFakeJobStore(), logger)
	return NewTrainer(store, jobs, embedder, acquirer, logger), jobs
}

// runJob executes the worker synchronously for deterministic assertions.
func runJob(t *testing.T, tr *Trainer, jobs *JobManager, req models.TrainRequest) JobSnapshot {
	t.Helper()
	snap, err := jobs.Create(context.Background(), req.AgentID, req.Source)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	tr.run(snap.ID, req)
	got, err := jobs.Get(context.Background(), snap.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return got
}

func TestValidateTrainRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     models.TrainRequest
		wantErr bool
	}{
		{"missing agent", models.TrainRequest{Source: models.SourceDocument, Text: "x"}, true},
		{"unknown source", models.TrainRequest{AgentID: "a", Source: "telepathy"}, true},
		{"document without content", models.TrainRequest{AgentID: "a", Source: models.SourceDocument}, true},
		{"document inline text", models.TrainRequest{AgentID: "a", Source: models.SourceDocument, Text: "x"}, false},
		{"document files without type", models.TrainRequest{AgentID: "a", Source: models.SourceDocument, Files: []models.FilePayload{{Name: "f"}}}, true},
		{"document files with type", models.TrainRequest{AgentID: "a", Source: models.SourceDocument, FileType: "txt", Files: []models.FilePayload{{Name: "f", Content: "x"}}}, false},
		{"website without url", models.TrainRequest{AgentID: "a", Source: models.SourceWebsite}, true},
		{"website with url", models.TrainRequest{AgentID: "a", Source: models.SourceWebsite, SourceURL: "https://x"}, false},
		{"youtube without url", models.TrainRequest{AgentID: "a", Source: models.SourceYouTube}, true},
		{"audio without files", models.TrainRequest{AgentID: "a", Source: models.SourceAudio, FileType: "mp3"}, true},
		{"audio without file type", models.TrainRequest{AgentID: "a", Source: models.SourceAudio, Files: []models.FilePayload{{Name: "f"}}}, true},
		{"audio complete", models.TrainRequest{AgentID: "a", Source: models.SourceAudio, FileType: "mp3", Files: []models.FilePayload{{Name: "f", Content: "x"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTrainRequest(tt.req)
			if tt.wantErr && !errors.Is(err, ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestTrainShortDocument(t *testing.T) {
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{1, 0}}, &fakeAcquirer{
		items: []source.Item{{Text: "Go ships with a race detector built into the toolchain."}},
	})

	got := runJob(t, tr, jobs, models.TrainRequest{AgentID: "agent-1", Source: models.SourceDocument, Text: "x"})

	if got.Status != models.JobCompleted {
		t.Fatalf("status = %s, error = %+v", got.Status, got.Error)
	}
	if got.TotalChunks != 1 || got.SuccessCount != 1 || got.ChunksProcessed != 1 {
		t.Fatalf("counters = %+v", got.JobCounters)
	}
	if got.Progress != 100 {
		t.Fatalf("progress = %d, want 100", got.Progress)
	}
	if len(store.stored) != 1 {
		t.Fatalf("stored %d chunks, want 1", len(store.stored))
	}
	if store.stored[0].ContentVersion != 1 {
		t.Fatalf("content version = %d, want 1", store.stored[0].ContentVersion)
	}
}

func TestTrainAlreadyTrained(t *testing.T) {
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{1, 0}}, &fakeAcquirer{
		items: []source.Item{{Text: "Channels carry values between goroutines."}},
	})
	req := models.TrainRequest{AgentID: "agent-1", Source: models.SourceDocument, Text: "x"}

	first := runJob(t, tr, jobs, req)
	if first.Status != models.JobCompleted || first.SuccessCount != 1 {
		t.Fatalf("first run = %+v", first)
	}

	second := runJob(t, tr, jobs, req)
	if second.Status != models.JobCompleted {
		t.Fatalf("second run status = %s, want completed", second.Status)
	}
	if second.SkippedCount != second.TotalChunks || second.SuccessCount != 0 {
		t.Fatalf("second run counters = %+v", second.JobCounters)
	}
	if second.Result == nil || !strings.Contains(second.Result.Message, "already trained") {
		t.Fatalf("result = %+v", second.Result)
	}
	if len(store.stored) != 1 {
		t.Fatalf("store grew to %d chunks on duplicate run", len(store.stored))
	}
}

func TestTrainAcquisitionFailure(t *testing.T) {
	url := "https://down.example"
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{1}}, &fakeAcquirer{
		failures: []source.Failure{{
			Source:  models.SourceWebsite,
			URL:     &url,
			Message: "fetch website: unexpected status 503",
		}},
	})

	got := runJob(t, tr, jobs, models.TrainRequest{AgentID: "agent-1", Source: models.SourceWebsite, SourceURL: url})

	if got.Status != models.JobFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == nil || got.Error.URL != url || !strings.Contains(got.Error.Message, "503") {
		t.Fatalf("error = %+v", got.Error)
	}
}

func TestTrainEmbeddingFallbackStillStores(t *testing.T) {
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{0, 0}, fallback: true}, &fakeAcquirer{
		items: []source.Item{{Text: "Context cancellation propagates through call trees."}},
	})

	got := runJob(t, tr, jobs, models.TrainRequest{AgentID: "agent-1", Source: models.SourceDocument, Text: "x"})

	if got.Status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.ErrorCount != 1 || got.SuccessCount != 0 {
		t.Fatalf("counters = %+v", got.JobCounters)
	}
	if len(store.stored) != 1 {
		t.Fatal("degraded chunk must still be stored")
	}
}

func TestTrainPartialFileFailureWarns(t *testing.T) {
	badFile := "broken.txt"
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{1}}, &fakeAcquirer{
		items: []source.Item{{Text: "Defer statements run in reverse order."}},
		failures: []source.Failure{{
			Source:  models.SourceDocument,
			File:    &badFile,
			Message: "file is empty",
		}},
	})

	got := runJob(t, tr, jobs, models.TrainRequest{AgentID: "agent-1", Source: models.SourceDocument, Text: "x"})

	if got.Status != models.JobCompleted {
		t.Fatalf("status = %s, want completed despite partial failure", got.Status)
	}
	if got.Result == nil || len(got.Result.Warnings) != 1 {
		t.Fatalf("result = %+v", got.Result)
	}
	if !strings.Contains(got.Result.Warnings[0], badFile) {
		t.Fatalf("warning %q must name the failed file", got.Result.Warnings[0])
	}
}

func TestTrainCounterInvariant(t *testing.T) {
	// A longer text produces multiple chunks; the counter invariant
	// must hold at the end of the run.
	para := strings.Repeat("Each sentence in this paragraph adds weight to the chunking path. ", 40)
	store := newFakeTrainStore()
	tr, jobs := newTestTrainer(store, &fakeEmbedder{vec: []float32{1}}, &fakeAcquirer{
		items: []source.Item{{Text: para}},
	})

	got := runJob(t, tr, jobs, models.TrainRequest{AgentID: "agent-1", Source: models.SourceDocument, Text: "x"})

	if got.Status != models.JobCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	accounted := got.SuccessCount + got.ErrorCount + got.SkippedCount
	if accounted > got.ChunksProcessed || got.ChunksProcessed > got.TotalChunks {
		t.Fatalf("counter invariant violated: %+v", got.JobCounters)
	}
	if got.TotalChunks < 2 {
		t.Fatalf("expected multiple chunks, got %d", got.TotalChunks)
	}
}
