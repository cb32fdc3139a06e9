package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/agentbrain/agentbrain/internal/metrics"
)

// FallbackReply is returned by Generate when every attempt failed. It
// is a valid, user-safe result; callers must not treat it as an error.
const FallbackReply = "I'm sorry, I couldn't generate a response right now. Please try again in a moment."

// backend is one credential's view of the external provider.
type backend interface {
	embed(ctx context.Context, text string) ([]float32, error)
	generate(ctx context.Context, prompt string) (string, error)
}

// Config holds provider connection settings.
type Config struct {
	Backend         string   // "openai" (default) or "ollama"
	BaseURL         string   // empty = provider default
	OllamaHost      string   // ollama backend only
	APIKeys         []string // rotated on quota errors, order preserved
	EmbeddingModel  string
	GenerationModel string
	EmbeddingDim    int
}

// Client calls the external embedding/generation service through a
// rotating pool of credentials. Exhausted retries degrade to
// deterministic fallbacks (zero vector, fixed reply) instead of errors,
// so downstream pipelines always receive usable values.
//
// Client is safe for concurrent use.
type Client struct {
	backends []backend
	pool     *Pool
	dim      int
	retry    RetryConfig
	logger   *slog.Logger
	stats    *metrics.Collector
}

// SetMetrics wires a collector; operation timings and failures are
// recorded there. Safe to leave unset.
func (c *Client) SetMetrics(m *metrics.Collector) {
	c.stats = m
}

// NewClient builds a Client with one OpenAI-compatible backend per
// credential, or a single Ollama backend for local setups.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.EmbeddingDim)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Backend == "ollama" {
		b, err := newOllamaBackend(cfg.OllamaHost, cfg.EmbeddingModel, cfg.GenerationModel)
		if err != nil {
			return nil, err
		}
		return &Client{
			backends: []backend{b},
			pool:     NewPool([]string{"ollama"}),
			dim:      cfg.EmbeddingDim,
			retry:    DefaultRetryConfig(),
			logger:   logger,
		}, nil
	}

	if len(cfg.APIKeys) == 0 {
		return nil, fmt.Errorf("at least one provider API key is required")
	}

	backends := make([]backend, 0, len(cfg.APIKeys))
	for _, key := range cfg.APIKeys {
		opts := []openai.Option{
			openai.WithToken(key),
			openai.WithModel(cfg.GenerationModel),
			openai.WithEmbeddingModel(cfg.EmbeddingModel),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create provider client: %w", err)
		}
		embedder, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		backends = append(backends, &openaiBackend{llm: llm, embedder: embedder})
	}

	return &Client{
		backends: backends,
		pool:     NewPool(cfg.APIKeys),
		dim:      cfg.EmbeddingDim,
		retry:    DefaultRetryConfig(),
		logger:   logger,
	}, nil
}

// newClientWithBackends wires pre-built backends; tests use it to
// inject fakes and isolated pools.
func newClientWithBackends(backends []backend, dim int, retry RetryConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	creds := make([]string, len(backends))
	for i := range creds {
		creds[i] = fmt.Sprintf("credential-%d", i)
	}
	return &Client{
		backends: backends,
		pool:     NewPool(creds),
		dim:      dim,
		retry:    retry,
		logger:   logger,
	}
}

// Dimension returns the embedding vector dimension.
func (c *Client) Dimension() int {
	return c.dim
}

// Embed returns the embedding for text. The second result reports
// whether the deterministic zero-vector fallback was used because every
// attempt failed.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, bool) {
	start := time.Now()
	var vec []float32
	err := c.withRetries(ctx, "embed", func(b backend) error {
		v, err := b.embed(ctx, text)
		if err != nil {
			return err
		}
		if len(v) != c.dim {
			return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), c.dim)
		}
		vec = v
		return nil
	})
	if err != nil {
		c.stats.RecordFailure(metrics.OpEmbedding)
		return zeroVector(c.dim), true
	}
	c.stats.RecordTiming(metrics.OpEmbedding, time.Since(start))
	return vec, false
}

// Generate returns a completion for prompt. The second result reports
// whether the fixed fallback reply was used.
func (c *Client) Generate(ctx context.Context, prompt string) (string, bool) {
	start := time.Now()
	var out string
	err := c.withRetries(ctx, "generate", func(b backend) error {
		s, err := b.generate(ctx, prompt)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		c.stats.RecordFailure(metrics.OpGeneration)
		return FallbackReply, true
	}
	c.stats.RecordTiming(metrics.OpGeneration, time.Since(start))
	return out, false
}

// withRetries runs op against the current credential's backend with the
// configured attempt bound. Quota errors rotate the shared pool cursor;
// transient errors back off on the same credential; anything else stops
// immediately. The terminal error is returned so callers can degrade.
func (c *Client) withRetries(ctx context.Context, opName string, op func(backend) error) error {
	var lastErr error
	delay := c.retry.InitialInterval

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		err := op(c.backends[c.pool.Index()])
		if err == nil {
			return nil
		}
		lastErr = err

		switch classify(err) {
		case classQuota:
			next := c.pool.Advance()
			c.logger.Warn("provider quota error, rotating credential",
				"op", opName, "attempt", attempt+1, "next_credential", next, "error", err)
			if !c.wait(ctx, c.retry.RotationDelay) {
				return lastErr
			}
		case classTransient:
			c.logger.Warn("provider transient error, backing off",
				"op", opName, "attempt", attempt+1, "delay", delay, "error", err)
			if !c.wait(ctx, delay) {
				return lastErr
			}
			delay = min(delay*2, c.retry.MaxInterval)
		default:
			c.logger.Error("provider error is not retryable", "op", opName, "error", err)
			return lastErr
		}
	}

	c.logger.Error("provider retries exhausted, degrading to fallback",
		"op", opName, "attempts", c.retry.MaxAttempts, "error", lastErr)
	return lastErr
}

// wait sleeps for d, reporting false if the context ended first.
func (c *Client) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func zeroVector(dim int) []float32 {
	return make([]float32, dim)
}

// openaiBackend adapts a langchaingo OpenAI client to the backend
// interface.
type openaiBackend struct {
	llm      *openai.LLM
	embedder embeddings.Embedder
}

func (b *openaiBackend) embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed: empty response")
	}
	return vecs[0], nil
}

func (b *openaiBackend) generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, b.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return out, nil
}
