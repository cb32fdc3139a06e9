package provider

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// ollamaBackend adapts a local Ollama instance to the backend
// interface. Ollama has no credentials, so the pool holds a single
// entry and quota rotation is a no-op.
type ollamaBackend struct {
	llm      *ollama.LLM
	embedder embeddings.Embedder
}

func newOllamaBackend(host, embeddingModel, generationModel string) (*ollamaBackend, error) {
	llm, err := ollama.New(
		ollama.WithModel(generationModel),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	embedLLM, err := ollama.New(
		ollama.WithModel(embeddingModel),
		ollama.WithServerURL(host),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(embedLLM)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}
	return &ollamaBackend{llm: llm, embedder: embedder}, nil
}

func (b *ollamaBackend) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return vecs[0], nil
}

func (b *ollamaBackend) generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, b.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}
