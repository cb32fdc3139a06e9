package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/agentbrain/agentbrain/internal/models"
)

// Generator produces completions, degrading to a fixed reply instead of
// failing.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, bool)
}

// ErrAgentUnknown reports an ask against an agent with no stored
// knowledge. The accompanying Answer is still valid and user-safe.
var ErrAgentUnknown = errors.New("agent has no trained knowledge")

// NoKnowledgeReply is the answer when nothing relevant is stored.
const NoKnowledgeReply = "I don't have any information about that yet. Try training me on relevant content first."

// AnswerSource describes one chunk that contributed to an answer.
type AnswerSource struct {
	Source     models.Source `json:"source"`
	SourceURL  *string       `json:"sourceUrl,omitempty"`
	ChunkIndex int           `json:"chunkIndex"`
	Similarity float64       `json:"similarity"`
	Confidence float64       `json:"confidence"`
}

// Answer is the full response to one question.
type Answer struct {
	QuestionID   string          `json:"questionId"`
	Reply        string          `json:"reply"`
	Confidence   float64         `json:"confidence"`
	FallbackUsed bool            `json:"fallbackUsed"`
	Sources      []AnswerSource  `json:"sources"`
	Config       RetrievalConfig `json:"config"`
}

// chunkCounter reports how much knowledge an agent has.
type chunkCounter interface {
	CountChunks(ctx context.Context, agentID string) (int, error)
}

// Answerer turns retrieval results into generated answers.
type Answerer struct {
	counts    chunkCounter
	retriever *Retriever
	generator Generator
	logger    *slog.Logger
}

// NewAnswerer wires an Answerer.
func NewAnswerer(counts chunkCounter, retriever *Retriever, generator Generator, logger *slog.Logger) *Answerer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{counts: counts, retriever: retriever, generator: generator, logger: logger}
}

// Ask answers question from the agent's knowledge. An unknown agent
// returns a valid fallback Answer together with ErrAgentUnknown; only
// store failures return an error without an Answer.
func (a *Answerer) Ask(ctx context.Context, agentID, question string) (Answer, error) {
	questionID := uuid.New().String()
	cfg := a.retriever.Config()

	count, err := a.counts.CountChunks(ctx, agentID)
	if err != nil {
		return Answer{}, fmt.Errorf("count agent chunks: %w", err)
	}
	if count == 0 {
		return Answer{
			QuestionID:   questionID,
			Reply:        NoKnowledgeReply,
			Confidence:   0,
			FallbackUsed: true,
			Sources:      []AnswerSource{},
			Config:       cfg,
		}, ErrAgentUnknown
	}

	result, err := a.retriever.Retrieve(ctx, agentID, question)
	if err != nil {
		return Answer{}, err
	}

	if len(result.Sources) == 0 {
		return Answer{
			QuestionID:   questionID,
			Reply:        NoKnowledgeReply,
			Confidence:   0,
			FallbackUsed: true,
			Sources:      []AnswerSource{},
			Config:       cfg,
		}, nil
	}

	reply, usedFallback := a.generator.Generate(ctx, buildPrompt(result.ContextText, question))

	sources := make([]AnswerSource, len(result.Sources))
	for i, sc := range result.Sources {
		sources[i] = AnswerSource{
			Source:     sc.Source,
			SourceURL:  sc.SourceURL,
			ChunkIndex: sc.ChunkIndex,
			Similarity: round3(sc.Similarity),
			Confidence: round3(sc.Confidence),
		}
	}

	a.logger.Info("question answered",
		"agent_id", agentID,
		"question_id", questionID,
		"sources", len(sources),
		"fallback", usedFallback)

	return Answer{
		QuestionID:   questionID,
		Reply:        reply,
		Confidence:   round3(result.Sources[0].Confidence),
		FallbackUsed: usedFallback,
		Sources:      sources,
		Config:       cfg,
	}, nil
}

// buildPrompt assembles the generation prompt from context and question.
func buildPrompt(contextText, question string) string {
	var b strings.Builder
	b.WriteString("You are a knowledgeable assistant. Answer the question using only the knowledge below.\n")
	b.WriteString("If the knowledge does not cover the question, say that you don't know.\n\n")
	b.WriteString("Knowledge:\n")
	b.WriteString(contextText)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
