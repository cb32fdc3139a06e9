package db

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/agentbrain/agentbrain/internal/models"
)

// sourceCount is the row shape of the per-source aggregation.
type sourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// CreateChunk inserts a knowledge chunk under the given record ID.
// Returns ErrDuplicateChunk when the (agent_id, content_hash,
// source_url) unique index rejects the insert.
func (c *Client) CreateChunk(ctx context.Context, id string, in models.ChunkInput) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("knowledge_chunk", $id) CONTENT {
			agent_id: $agent_id,
			text: $text,
			embedding: $embedding,
			source: $source,
			source_url: $source_url,
			chunk_index: $chunk_index,
			chunk_metadata: $chunk_metadata,
			content_hash: $content_hash,
			content_version: $content_version
		}
	`, map[string]any{
		"id":              id,
		"agent_id":        in.AgentID,
		"text":            in.Text,
		"embedding":       in.Embedding,
		"source":          in.Source,
		"source_url":      in.SourceURL,
		"chunk_index":     in.ChunkIndex,
		"chunk_metadata":  in.ChunkMetadata,
		"content_hash":    in.ContentHash,
		"content_version": in.ContentVersion,
	})
	if err != nil {
		return fmt.Errorf("create chunk: %w", wrapQueryError(err))
	}
	return nil
}

// FindChunkByHash looks up an existing chunk with the same dedup
// lineage. Returns nil when none exists. A nil sourceURL matches only
// chunks stored without one.
func (c *Client) FindChunkByHash(ctx context.Context, agentID, contentHash string, sourceURL *string) (*models.KnowledgeChunk, error) {
	results, err := surrealdb.Query[[]models.KnowledgeChunk](ctx, c.db, `
		SELECT * FROM knowledge_chunk
		WHERE agent_id = $agent_id
			AND content_hash = $content_hash
			AND source_url = $source_url
		LIMIT 1
	`, map[string]any{
		"agent_id":     agentID,
		"content_hash": contentHash,
		"source_url":   sourceURL,
	})
	if err != nil {
		return nil, fmt.Errorf("find chunk by hash: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// MaxContentVersion returns the highest content_version stored for the
// agent/source scope, or 0 when the scope has no chunks.
func (c *Client) MaxContentVersion(ctx context.Context, agentID string, sourceURL *string) (int, error) {
	type row struct {
		Version *int `json:"version"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT math::max(content_version) AS version FROM knowledge_chunk
		WHERE agent_id = $agent_id AND source_url = $source_url
		GROUP ALL
	`, map[string]any{
		"agent_id":   agentID,
		"source_url": sourceURL,
	})
	if err != nil {
		return 0, fmt.Errorf("max content version: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	if v := (*results)[0].Result[0].Version; v != nil {
		return *v, nil
	}
	return 0, nil
}

// VectorSearch returns the top-k chunks for the agent by embedding
// proximity (HNSW, cosine). Stored embeddings are included so callers
// can score candidates themselves.
func (c *Client) VectorSearch(ctx context.Context, agentID string, embedding []float32, k int) ([]models.KnowledgeChunk, error) {
	sql := fmt.Sprintf(`
		SELECT * FROM knowledge_chunk
		WHERE agent_id = $agent_id AND embedding <|%d,40|> $embedding
	`, k)

	results, err := surrealdb.Query[[]models.KnowledgeChunk](ctx, c.db, sql, map[string]any{
		"agent_id":  agentID,
		"embedding": embedding,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.KnowledgeChunk{}, nil
	}
	return (*results)[0].Result, nil
}

// KeywordSearch returns up to k chunks for the agent whose text matches
// the given regular expression (callers build a case-insensitive
// alternation of query terms).
func (c *Client) KeywordSearch(ctx context.Context, agentID, pattern string, k int) ([]models.KnowledgeChunk, error) {
	results, err := surrealdb.Query[[]models.KnowledgeChunk](ctx, c.db, `
		SELECT * FROM knowledge_chunk
		WHERE agent_id = $agent_id AND string::matches(text, $pattern)
		LIMIT $limit
	`, map[string]any{
		"agent_id": agentID,
		"pattern":  pattern,
		"limit":    k,
	})
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.KnowledgeChunk{}, nil
	}
	return (*results)[0].Result, nil
}

// CountChunks returns the number of chunks stored for the agent.
func (c *Client) CountChunks(ctx context.Context, agentID string) (int, error) {
	type row struct {
		Count int `json:"count"`
	}
	results, err := surrealdb.Query[[]row](ctx, c.db, `
		SELECT count() AS count FROM knowledge_chunk
		WHERE agent_id = $agent_id
		GROUP ALL
	`, map[string]any{"agent_id": agentID})
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// AgentStats aggregates the agent's chunk counts by source type.
func (c *Client) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	results, err := surrealdb.Query[[]sourceCount](ctx, c.db, `
		SELECT source, count() AS count FROM knowledge_chunk
		WHERE agent_id = $agent_id
		GROUP BY source
	`, map[string]any{"agent_id": agentID})
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}

	stats := &models.AgentStats{
		AgentID:  agentID,
		BySource: make(map[string]int),
	}
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			stats.BySource[row.Source] = row.Count
			stats.TotalChunks += row.Count
		}
	}
	return stats, nil
}

// DeleteAgentChunks removes every chunk belonging to the agent and
// returns the number removed.
func (c *Client) DeleteAgentChunks(ctx context.Context, agentID string) (int, error) {
	count, err := c.CountChunks(ctx, agentID)
	if err != nil {
		return 0, err
	}
	_, err = surrealdb.Query[any](ctx, c.db, `
		DELETE knowledge_chunk WHERE agent_id = $agent_id
	`, map[string]any{"agent_id": agentID})
	if err != nil {
		return 0, fmt.Errorf("delete agent chunks: %w", err)
	}
	return count, nil
}

// CreateTrainingJob persists a new job record in the queued state.
func (c *Client) CreateTrainingJob(ctx context.Context, id, agentID string, source models.Source) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		CREATE type::record("training_job", $id) CONTENT {
			agent_id: $agent_id,
			source: $source,
			status: $status
		}
	`, map[string]any{
		"id":       id,
		"agent_id": agentID,
		"source":   source,
		"status":   models.JobQueued,
	})
	if err != nil {
		return fmt.Errorf("create training job: %w", wrapQueryError(err))
	}
	return nil
}

// GetTrainingJob returns a job by ID, or ErrNotFound.
func (c *Client) GetTrainingJob(ctx context.Context, id string) (*models.TrainingJob, error) {
	results, err := surrealdb.Query[[]models.TrainingJob](ctx, c.db, `
		SELECT * FROM type::record("training_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get training job: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("training job %q: %w", id, ErrNotFound)
	}
	return &(*results)[0].Result[0], nil
}

// ListTrainingJobs returns the agent's jobs, most recent first. An
// empty agentID lists jobs across all agents.
func (c *Client) ListTrainingJobs(ctx context.Context, agentID string, limit int) ([]models.TrainingJob, error) {
	sql := `
		SELECT * FROM training_job
		ORDER BY created_at DESC
		LIMIT $limit
	`
	vars := map[string]any{"limit": limit}
	if agentID != "" {
		sql = `
		SELECT * FROM training_job
		WHERE agent_id = $agent_id
		ORDER BY created_at DESC
		LIMIT $limit
	`
		vars["agent_id"] = agentID
	}

	results, err := surrealdb.Query[[]models.TrainingJob](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list training jobs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.TrainingJob{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateJobStatus moves the job to the given status.
func (c *Client) UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("training_job", $id) SET
			status = $status,
			updated_at = time::now()
	`, map[string]any{"id": id, "status": status})
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// UpdateJobProgress persists progress and counters. Called after every
// processed chunk so polling stays fine-grained.
func (c *Client) UpdateJobProgress(ctx context.Context, id string, progress int, counters models.JobCounters) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("training_job", $id) SET
			progress = $progress,
			total_chunks = $total_chunks,
			chunks_processed = $chunks_processed,
			success_count = $success_count,
			error_count = $error_count,
			skipped_count = $skipped_count,
			updated_at = time::now()
	`, map[string]any{
		"id":               id,
		"progress":         progress,
		"total_chunks":     counters.TotalChunks,
		"chunks_processed": counters.ChunksProcessed,
		"success_count":    counters.SuccessCount,
		"error_count":      counters.ErrorCount,
		"skipped_count":    counters.SkippedCount,
	})
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// CompleteJob marks the job completed with its result payload.
func (c *Client) CompleteJob(ctx context.Context, id string, result models.JobResult) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("training_job", $id) SET
			status = $status,
			progress = 100,
			result = $result,
			updated_at = time::now(),
			completed_at = time::now()
	`, map[string]any{
		"id":     id,
		"status": models.JobCompleted,
		"result": result,
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks the job failed with its structured cause.
func (c *Client) FailJob(ctx context.Context, id string, cause models.JobError) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("training_job", $id) SET
			status = $status,
			error = $error,
			updated_at = time::now(),
			completed_at = time::now()
	`, map[string]any{
		"id":     id,
		"status": models.JobFailed,
		"error":  cause,
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}
