package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentbrain/agentbrain/internal/metrics"
	"github.com/agentbrain/agentbrain/internal/models"
)

// searchStore is the slice of the store the retriever reads from.
type searchStore interface {
	VectorSearch(ctx context.Context, agentID string, embedding []float32, k int) ([]models.KnowledgeChunk, error)
	KeywordSearch(ctx context.Context, agentID, pattern string, k int) ([]models.KnowledgeChunk, error)
	CountChunks(ctx context.Context, agentID string) (int, error)
}

// RetrievalConfig tunes the retrieval engine. Process-wide and runtime
// adjustable; never persisted, restarts reset to defaults.
type RetrievalConfig struct {
	VectorK             int     `json:"vectorK"`
	KeywordK            int     `json:"keywordK"`
	SimilarityThreshold float64 `json:"similarityThreshold"`
	ConfidenceThreshold float64 `json:"confidenceThreshold"`
	MaxChunks           int     `json:"maxChunks"`
	MaxContextLength    int     `json:"maxContextLength"`
}

// DefaultRetrievalConfig returns the standard tuning.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		VectorK:             20,
		KeywordK:            8,
		SimilarityThreshold: 0.3,
		ConfidenceThreshold: 0.2,
		MaxChunks:           10,
		MaxContextLength:    50000,
	}
}

// RetrievalResult is the assembled context for one question.
type RetrievalResult struct {
	ContextText string
	Sources     []models.ScoredChunk
	Keywords    []string
}

// Retriever answers "what does this agent know about X" by combining
// vector proximity and keyword matches into one ranked context.
type Retriever struct {
	store    searchStore
	embedder Embedder
	logger   *slog.Logger

	stats *metrics.Collector

	mu  sync.RWMutex
	cfg RetrievalConfig
}

// SetMetrics wires a collector for search timings. Safe to leave unset.
func (r *Retriever) SetMetrics(m *metrics.Collector) {
	r.stats = m
}

// NewRetriever creates a Retriever with default tuning.
func NewRetriever(store searchStore, embedder Embedder, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		logger:   logger,
		cfg:      DefaultRetrievalConfig(),
	}
}

// Config returns the current tuning.
func (r *Retriever) Config() RetrievalConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetConfig applies new tuning. Zero-valued fields keep their current
// value; the applied config is returned.
func (r *Retriever) SetConfig(update RetrievalConfig) RetrievalConfig {
	r.mu.Lock()
	defer r.mu.Unlock()

	if update.VectorK > 0 {
		r.cfg.VectorK = update.VectorK
	}
	if update.KeywordK > 0 {
		r.cfg.KeywordK = update.KeywordK
	}
	if update.SimilarityThreshold > 0 {
		r.cfg.SimilarityThreshold = update.SimilarityThreshold
	}
	if update.ConfidenceThreshold > 0 {
		r.cfg.ConfidenceThreshold = update.ConfidenceThreshold
	}
	if update.MaxChunks > 0 {
		r.cfg.MaxChunks = update.MaxChunks
	}
	if update.MaxContextLength > 0 {
		r.cfg.MaxContextLength = update.MaxContextLength
	}
	return r.cfg
}

// Retrieve assembles ranked context for question from the agent's
// knowledge. An agent with no relevant knowledge yields an empty result,
// not an error; only store failures propagate.
func (r *Retriever) Retrieve(ctx context.Context, agentID, question string) (RetrievalResult, error) {
	cfg := r.Config()

	embedding, usedFallback := r.embedder.Embed(ctx, question)
	if usedFallback {
		r.logger.Warn("question embedding degraded to zero vector", "agent_id", agentID)
	}

	keywords := ExtractKeywords(question)

	var (
		wg          sync.WaitGroup
		vectorHits  []models.KnowledgeChunk
		keywordHits []models.KnowledgeChunk
		vectorErr   error
		keywordErr  error
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		start := time.Now()
		vectorHits, vectorErr = r.store.VectorSearch(ctx, agentID, embedding, cfg.VectorK)
		if vectorErr != nil {
			r.stats.RecordFailure(metrics.OpVectorSearch)
		} else {
			r.stats.RecordTiming(metrics.OpVectorSearch, time.Since(start))
		}
	}()

	if len(keywords) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			keywordHits, keywordErr = r.store.KeywordSearch(ctx, agentID, keywordPattern(keywords), cfg.KeywordK)
			if keywordErr != nil {
				r.stats.RecordFailure(metrics.OpKeywordSearch)
			} else {
				r.stats.RecordTiming(metrics.OpKeywordSearch, time.Since(start))
			}
		}()
	}
	wg.Wait()

	if vectorErr != nil {
		return RetrievalResult{}, fmt.Errorf("vector search: %w", vectorErr)
	}
	if keywordErr != nil {
		return RetrievalResult{}, fmt.Errorf("keyword search: %w", keywordErr)
	}

	// The two candidate sets overlap by design; scoring and the final
	// text dedup resolve repeats.
	candidates := append(vectorHits, keywordHits...)
	scored := make([]models.ScoredChunk, 0, len(candidates))
	for _, chunk := range candidates {
		similarity := cosineSimilarity(embedding, chunk.Embedding)
		confidence := confidenceScore(similarity, chunk.Text, keywords)
		if similarity < cfg.SimilarityThreshold || confidence < cfg.ConfidenceThreshold {
			continue
		}
		scored = append(scored, models.ScoredChunk{
			KnowledgeChunk: chunk,
			Similarity:     similarity,
			Confidence:     confidence,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})

	// Cut to the top candidates first, then collapse duplicate texts;
	// duplicates inside the window shrink the result rather than pull
	// lower-ranked chunks in.
	if len(scored) > cfg.MaxChunks {
		scored = scored[:cfg.MaxChunks]
	}
	seen := make(map[string]struct{}, len(scored))
	selected := make([]models.ScoredChunk, 0, len(scored))
	for _, sc := range scored {
		if _, dup := seen[sc.Text]; dup {
			continue
		}
		seen[sc.Text] = struct{}{}
		selected = append(selected, sc)
	}

	parts := make([]string, len(selected))
	for i, sc := range selected {
		parts[i] = sc.Text
	}
	contextText := strings.Join(parts, "\n\n")
	if len(contextText) > cfg.MaxContextLength {
		contextText = contextText[:cfg.MaxContextLength]
	}

	r.logger.Debug("retrieval complete",
		"agent_id", agentID,
		"vector_hits", len(vectorHits),
		"keyword_hits", len(keywordHits),
		"selected", len(selected),
		"context_chars", len(contextText))

	return RetrievalResult{
		ContextText: contextText,
		Sources:     selected,
		Keywords:    keywords,
	}, nil
}

// stopwords excluded from keyword extraction.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "how": {}, "i": {}, "in": {},
	"is": {}, "it": {}, "its": {}, "me": {}, "my": {}, "of": {}, "on": {},
	"or": {}, "our": {}, "so": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "there": {}, "these": {}, "they": {}, "this": {}, "to": {},
	"was": {}, "we": {}, "were": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "who": {}, "why": {}, "will": {}, "with": {}, "you": {},
	"your": {},
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

// ExtractKeywords returns up to five distinct non-stopword terms from
// question, lowercased, in order of appearance.
func ExtractKeywords(question string) []string {
	words := wordPattern.FindAllString(strings.ToLower(question), -1)

	seen := make(map[string]struct{}, len(words))
	keywords := make([]string, 0, 5)
	for _, w := range words {
		if len(keywords) == 5 {
			break
		}
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
	}
	return keywords
}

// keywordPattern builds a case-insensitive alternation regex for the
// store's keyword lookup.
func keywordPattern(keywords []string) string {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(k)
	}
	return "(?i)(" + strings.Join(quoted, "|") + ")"
}

// confidenceScore boosts similarity by keyword coverage, clamped to
// [0, 1]: confidence = similarity + matched/total * 0.2.
func confidenceScore(similarity float64, text string, keywords []string) float64 {
	confidence := similarity
	if len(keywords) > 0 {
		lower := strings.ToLower(text)
		matched := 0
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				matched++
			}
		}
		confidence += float64(matched) / float64(len(keywords)) * 0.2
	}
	return math.Max(0, math.Min(1, confidence))
}

// cosineSimilarity returns the cosine of the angle between a and b, or
// 0 when either vector is missing, mismatched in length, or zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
