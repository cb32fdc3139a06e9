package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agentbrain/agentbrain/internal/db"
	"github.com/agentbrain/agentbrain/internal/metrics"
	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

type fakeTrainer struct {
	lastReq models.TrainRequest
}

func (f *fakeTrainer) Train(ctx context.Context, req models.TrainRequest) (service.JobSnapshot, error) {
	f.lastReq = req
	if err := service.ValidateTrainRequest(req); err != nil {
		return service.JobSnapshot{}, err
	}
	return service.JobSnapshot{ID: "job-123", AgentID: req.AgentID, Status: models.JobQueued}, nil
}

type fakeJobs struct {
	jobs map[string]service.JobSnapshot
}

func (f *fakeJobs) Get(ctx context.Context, id string) (service.JobSnapshot, error) {
	snap, ok := f.jobs[id]
	if !ok {
		return service.JobSnapshot{}, db.ErrNotFound
	}
	return snap, nil
}

func (f *fakeJobs) List(ctx context.Context, agentID string, limit int) ([]service.JobSnapshot, error) {
	var out []service.JobSnapshot
	for _, j := range f.jobs {
		if agentID == "" || j.AgentID == agentID {
			out = append(out, j)
		}
	}
	return out, nil
}

func (f *fakeJobs) Watch(id string) (<-chan service.JobSnapshot, func(), bool) {
	return nil, nil, false
}

type fakeAsk struct {
	answer service.Answer
	err    error
}

func (f *fakeAsk) Ask(ctx context.Context, agentID, question string) (service.Answer, error) {
	return f.answer, f.err
}

type fakeAgents struct {
	deleted int
	stats   *models.AgentStats
}

func (f *fakeAgents) DeleteAgentChunks(ctx context.Context, agentID string) (int, error) {
	return f.deleted, nil
}

func (f *fakeAgents) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	return f.stats, nil
}

type fakeTuner struct {
	cfg service.RetrievalConfig
}

func (f *fakeTuner) Config() service.RetrievalConfig { return f.cfg }
func (f *fakeTuner) SetConfig(update service.RetrievalConfig) service.RetrievalConfig {
	if update.MaxChunks > 0 {
		f.cfg.MaxChunks = update.MaxChunks
	}
	return f.cfg
}

func testRouter(h *Handlers) http.Handler {
	if h.Logger == nil {
		h.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Router(h, h.Logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTrainEndpoint(t *testing.T) {
	trainer := &fakeTrainer{}
	router := testRouter(&Handlers{Trainer: trainer})

	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/train", models.TrainRequest{
		Source: models.SourceDocument,
		Text:   "some knowledge",
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["jobId"] != "job-123" || resp["status"] != "queued" {
		t.Fatalf("response = %v", resp)
	}
	if trainer.lastReq.AgentID != "agent-1" {
		t.Fatalf("agent id from path not applied: %q", trainer.lastReq.AgentID)
	}
}

func TestTrainEndpointValidation(t *testing.T) {
	router := testRouter(&Handlers{Trainer: &fakeTrainer{}})

	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/train", models.TrainRequest{
		Source: models.SourceWebsite, // missing sourceUrl
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] == "" {
		t.Fatalf("missing error envelope: %s", rec.Body)
	}
}

func TestGetJobEndpoint(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]service.JobSnapshot{
		"job-1": {
			ID: "job-1", AgentID: "agent-1", Status: models.JobProcessing, Progress: 40,
			JobCounters: models.JobCounters{TotalChunks: 10, ChunksProcessed: 4, SuccessCount: 3, SkippedCount: 1},
		},
	}}
	router := testRouter(&Handlers{Jobs: jobs})

	rec := doJSON(t, router, http.MethodGet, "/api/jobs/job-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap service.JobSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Status != models.JobProcessing || snap.Progress != 40 || snap.SuccessCount != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown job", rec.Code)
	}
}

func TestListJobsLimitValidation(t *testing.T) {
	router := testRouter(&Handlers{Jobs: &fakeJobs{jobs: map[string]service.JobSnapshot{}}})

	rec := doJSON(t, router, http.MethodGet, "/api/jobs?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/jobs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string][]service.JobSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["jobs"] == nil {
		t.Fatal("jobs must encode as an empty array, not null")
	}
}

func TestAskEndpoint(t *testing.T) {
	ask := &fakeAsk{answer: service.Answer{
		QuestionID: "q-1",
		Reply:      "the answer",
		Confidence: 0.873,
		Sources:    []service.AnswerSource{{Source: models.SourceDocument, ChunkIndex: 2, Confidence: 0.873}},
	}}
	router := testRouter(&Handlers{Answerer: ask})

	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/ask", askRequest{Question: "what is up"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var answer service.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.Reply != "the answer" || answer.Confidence != 0.873 {
		t.Fatalf("answer = %+v", answer)
	}
}

func TestAskEndpointEmptyQuestion(t *testing.T) {
	router := testRouter(&Handlers{Answerer: &fakeAsk{}})

	rec := doJSON(t, router, http.MethodPost, "/api/agents/agent-1/ask", askRequest{Question: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskEndpointUnknownAgent(t *testing.T) {
	ask := &fakeAsk{
		answer: service.Answer{
			QuestionID:   "q-2",
			Reply:        service.NoKnowledgeReply,
			Confidence:   0,
			FallbackUsed: true,
			Sources:      []service.AnswerSource{},
		},
		err: service.ErrAgentUnknown,
	}
	router := testRouter(&Handlers{Answerer: ask})

	rec := doJSON(t, router, http.MethodPost, "/api/agents/ghost/ask", askRequest{Question: "anything"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var answer service.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &answer); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !answer.FallbackUsed || answer.Confidence != 0 {
		t.Fatalf("404 body must carry the fallback answer, got %+v", answer)
	}
}

func TestDeleteAgentEndpoint(t *testing.T) {
	router := testRouter(&Handlers{Agents: &fakeAgents{deleted: 17}})

	rec := doJSON(t, router, http.MethodDelete, "/api/agents/agent-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["chunksDeleted"] != float64(17) {
		t.Fatalf("response = %v", resp)
	}
}

func TestAgentStatsEndpoint(t *testing.T) {
	router := testRouter(&Handlers{Agents: &fakeAgents{stats: &models.AgentStats{
		AgentID:     "agent-1",
		TotalChunks: 8,
		BySource:    map[string]int{"document": 5, "website": 3},
	}}})

	rec := doJSON(t, router, http.MethodGet, "/api/agents/agent-1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var stats models.AgentStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalChunks != 8 || stats.BySource["website"] != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRetrievalConfigEndpoints(t *testing.T) {
	tuner := &fakeTuner{cfg: service.DefaultRetrievalConfig()}
	router := testRouter(&Handlers{Retrieval: tuner})

	rec := doJSON(t, router, http.MethodGet, "/api/config/retrieval", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var cfg service.RetrievalConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.MaxChunks != 10 {
		t.Fatalf("default MaxChunks = %d", cfg.MaxChunks)
	}

	rec = doJSON(t, router, http.MethodPut, "/api/config/retrieval", service.RetrievalConfig{MaxChunks: 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &cfg)
	if cfg.MaxChunks != 4 {
		t.Fatalf("applied MaxChunks = %d, want 4", cfg.MaxChunks)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(&Handlers{})

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != fmt.Sprintln("ok") {
		t.Fatalf("body = %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	stats := metrics.NewCollector()
	stats.RecordTiming(metrics.OpEmbedding, 5*time.Millisecond)
	stats.RecordFailure(metrics.OpGeneration)
	router := testRouter(&Handlers{Stats: stats})

	rec := doJSON(t, router, http.MethodGet, "/api/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap metrics.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Operations[metrics.OpEmbedding].Count != 1 {
		t.Fatalf("embedding count = %d, want 1", snap.Operations[metrics.OpEmbedding].Count)
	}
	if snap.Operations[metrics.OpGeneration].Failures != 1 {
		t.Fatalf("generation failures = %d, want 1", snap.Operations[metrics.OpGeneration].Failures)
	}
}

func TestMetricsEndpointDisabled(t *testing.T) {
	router := testRouter(&Handlers{})

	rec := doJSON(t, router, http.MethodGet, "/api/metrics", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
