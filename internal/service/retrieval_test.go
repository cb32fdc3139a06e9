package service

import (
	"context"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/agentbrain/agentbrain/internal/models"
)

// fakeSearchStore serves canned candidates for both lookup paths.
type fakeSearchStore struct {
	vectorHits  []models.KnowledgeChunk
	keywordHits []models.KnowledgeChunk
	count       int
	lastPattern string
}

func (f *fakeSearchStore) VectorSearch(ctx context.Context, agentID string, embedding []float32, k int) ([]models.KnowledgeChunk, error) {
	if len(f.vectorHits) > k {
		return f.vectorHits[:k], nil
	}
	return f.vectorHits, nil
}

func (f *fakeSearchStore) KeywordSearch(ctx context.Context, agentID, pattern string, k int) ([]models.KnowledgeChunk, error) {
	f.lastPattern = pattern
	if len(f.keywordHits) > k {
		return f.keywordHits[:k], nil
	}
	return f.keywordHits, nil
}

func (f *fakeSearchStore) CountChunks(ctx context.Context, agentID string) (int, error) {
	return f.count, nil
}

func newTestRetriever(store *fakeSearchStore, queryVec []float32) *Retriever {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRetriever(store, &fakeEmbedder{vec: queryVec}, logger)
}

func chunkWith(text string, embedding []float32) models.KnowledgeChunk {
	return models.KnowledgeChunk{AgentID: "agent-1", Text: text, Embedding: embedding, Source: models.SourceDocument}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"nil left", nil, []float32{1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name     string
		question string
		want     []string
	}{
		{"stopwords removed", "what is the capital of France", []string{"capital", "france"}},
		{"limit five", "alpha bravo charlie delta echo foxtrot golf", []string{"alpha", "bravo", "charlie", "delta", "echo"}},
		{"dedup", "deploy deploy DEPLOY pipeline", []string{"deploy", "pipeline"}},
		{"short words dropped", "go is ok db ha", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractKeywords(tt.question)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("ExtractKeywords(%q) = %v, want %v", tt.question, got, tt.want)
			}
		})
	}
}

func TestConfidenceClamped(t *testing.T) {
	got := confidenceScore(0.95, "kubernetes cluster upgrade", []string{"kubernetes", "cluster", "upgrade"})
	if got != 1 {
		t.Fatalf("confidence = %v, want clamp to 1", got)
	}
	got = confidenceScore(0.5, "nothing relevant here", []string{"kubernetes"})
	if got != 0.5 {
		t.Fatalf("confidence = %v, want unboosted 0.5", got)
	}
}

func TestRetrieveFiltersByThresholds(t *testing.T) {
	query := []float32{1, 0}
	store := &fakeSearchStore{
		vectorHits: []models.KnowledgeChunk{
			chunkWith("strong match about deployment", []float32{0.9, 0.1}),
			chunkWith("weak tangent", []float32{0.1, 1}),
		},
	}
	r := newTestRetriever(store, query)

	result, err := r.Retrieve(context.Background(), "agent-1", "deployment steps")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("sources = %d, want 1 after threshold filtering", len(result.Sources))
	}
	if result.Sources[0].Text != "strong match about deployment" {
		t.Fatalf("kept wrong chunk: %q", result.Sources[0].Text)
	}
	if result.Sources[0].Confidence <= result.Sources[0].Similarity {
		t.Fatal("keyword match must boost confidence above similarity")
	}
}

func TestRetrieveDedupsByText(t *testing.T) {
	query := []float32{1, 0}
	same := chunkWith("identical text either path", query)
	store := &fakeSearchStore{
		vectorHits:  []models.KnowledgeChunk{same},
		keywordHits: []models.KnowledgeChunk{same},
	}
	r := newTestRetriever(store, query)

	result, err := r.Retrieve(context.Background(), "agent-1", "identical text")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Sources) != 1 {
		t.Fatalf("sources = %d, want overlap collapsed to 1", len(result.Sources))
	}
	if strings.Count(result.ContextText, "identical text either path") != 1 {
		t.Fatalf("context repeats deduped chunk: %q", result.ContextText)
	}
}

func TestRetrieveDedupShrinksTopWindow(t *testing.T) {
	query := []float32{1, 0}
	store := &fakeSearchStore{
		vectorHits: []models.KnowledgeChunk{
			chunkWith("duplicate leader text", query),
			chunkWith("duplicate leader text", query),
			chunkWith("different trailing text", []float32{0.9, 0.4}),
		},
	}
	r := newTestRetriever(store, query)
	r.SetConfig(RetrievalConfig{MaxChunks: 2})

	result, err := r.Retrieve(context.Background(), "agent-1", "something unrelated")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// The top-2 window holds both duplicates; collapsing them must not
	// pull the lower-ranked chunk in.
	if len(result.Sources) != 1 {
		t.Fatalf("sources = %d, want window deduped to 1", len(result.Sources))
	}
	if result.Sources[0].Text != "duplicate leader text" {
		t.Fatalf("kept wrong chunk: %q", result.Sources[0].Text)
	}
}

func TestRetrieveRanksByConfidence(t *testing.T) {
	query := []float32{1, 0}
	store := &fakeSearchStore{
		vectorHits: []models.KnowledgeChunk{
			chunkWith("mentions nothing special", []float32{0.9, 0.4}),
			chunkWith("mentions restore procedure directly", query),
		},
	}
	r := newTestRetriever(store, query)

	result, err := r.Retrieve(context.Background(), "agent-1", "restore procedure")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(result.Sources))
	}
	if result.Sources[0].Text != "mentions restore procedure directly" {
		t.Fatalf("top source = %q, want keyword-boosted chunk first", result.Sources[0].Text)
	}
}

func TestRetrieveTruncatesContext(t *testing.T) {
	query := []float32{1, 0}
	long := strings.Repeat("x", 400)
	store := &fakeSearchStore{
		vectorHits: []models.KnowledgeChunk{
			chunkWith(long+"a", query),
			chunkWith(long+"b", query),
		},
	}
	r := newTestRetriever(store, query)
	r.SetConfig(RetrievalConfig{MaxContextLength: 500})

	result, err := r.Retrieve(context.Background(), "agent-1", "padding question")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(result.ContextText) != 500 {
		t.Fatalf("context length = %d, want tail-truncated to 500", len(result.ContextText))
	}
}

func TestRetrieveEmptyAgent(t *testing.T) {
	r := newTestRetriever(&fakeSearchStore{}, []float32{1, 0})

	result, err := r.Retrieve(context.Background(), "agent-empty", "anything at all")
	if err != nil {
		t.Fatalf("no knowledge must not be an error, got %v", err)
	}
	if len(result.Sources) != 0 || result.ContextText != "" {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestRetrieveKeywordPatternIsCaseInsensitiveOr(t *testing.T) {
	store := &fakeSearchStore{}
	r := newTestRetriever(store, []float32{1, 0})

	if _, err := r.Retrieve(context.Background(), "agent-1", "Postgres failover runbook"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if store.lastPattern != "(?i)(postgres|failover|runbook)" {
		t.Fatalf("pattern = %q", store.lastPattern)
	}
}

func TestSetConfigPartialUpdate(t *testing.T) {
	r := newTestRetriever(&fakeSearchStore{}, []float32{1})

	applied := r.SetConfig(RetrievalConfig{MaxChunks: 3})
	if applied.MaxChunks != 3 {
		t.Fatalf("MaxChunks = %d, want 3", applied.MaxChunks)
	}
	defaults := DefaultRetrievalConfig()
	if applied.VectorK != defaults.VectorK || applied.SimilarityThreshold != defaults.SimilarityThreshold {
		t.Fatalf("untouched fields changed: %+v", applied)
	}
}
