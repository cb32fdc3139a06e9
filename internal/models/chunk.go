package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Source identifies where a knowledge chunk's text came from.
type Source string

const (
	SourceDocument Source = "document"
	SourceAudio    Source = "audio"
	SourceVideo    Source = "video"
	SourceWebsite  Source = "website"
	SourceYouTube  Source = "youtube"
)

// ValidSource reports whether s is a known source type.
func ValidSource(s Source) bool {
	switch s {
	case SourceDocument, SourceAudio, SourceVideo, SourceWebsite, SourceYouTube:
		return true
	}
	return false
}

// ChunkMetadata carries positional and provenance data for a chunk.
// Best-effort only; ordering guarantees come from ChunkIndex.
type ChunkMetadata struct {
	TotalChunks   int     `json:"total_chunks"`
	ChunkSize     int     `json:"chunk_size"`
	StartPosition int     `json:"start_position"`
	EndPosition   int     `json:"end_position"`
	Section       string  `json:"section,omitempty"`
	FileName      *string `json:"file_name,omitempty"`
	PageNumber    *int    `json:"page_number,omitempty"`
}

// KnowledgeChunk is one unit of trained content for an agent.
// Chunks are created once by the training engine and never mutated in
// place; a changed document becomes a new content version.
type KnowledgeChunk struct {
	ID surrealmodels.RecordID `json:"id"`

	AgentID   string    `json:"agent_id"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`

	Source    Source  `json:"source"`
	SourceURL *string `json:"source_url,omitempty"`

	ChunkIndex    int           `json:"chunk_index"`
	ChunkMetadata ChunkMetadata `json:"chunk_metadata"`

	// Deduplication lineage: ContentHash fingerprints the normalized text,
	// ContentVersion is monotonic per (agent, source_url, hash lineage).
	ContentHash    string `json:"content_hash"`
	ContentVersion int    `json:"content_version"`

	CreatedAt time.Time `json:"created_at"`
}

// ChunkInput is the insert payload for a knowledge chunk.
type ChunkInput struct {
	AgentID        string        `json:"agent_id"`
	Text           string        `json:"text"`
	Embedding      []float32     `json:"embedding"`
	Source         Source        `json:"source"`
	SourceURL      *string       `json:"source_url,omitempty"`
	ChunkIndex     int           `json:"chunk_index"`
	ChunkMetadata  ChunkMetadata `json:"chunk_metadata"`
	ContentHash    string        `json:"content_hash"`
	ContentVersion int           `json:"content_version"`
}

// ScoredChunk is a chunk candidate produced by retrieval, carrying the
// derived ranking scores alongside the stored document.
type ScoredChunk struct {
	KnowledgeChunk
	Similarity float64 `json:"similarity"`
	Confidence float64 `json:"confidence"`
}

// AgentStats summarizes an agent's stored knowledge.
type AgentStats struct {
	AgentID     string         `json:"agent_id"`
	TotalChunks int            `json:"total_chunks"`
	BySource    map[string]int `json:"by_source"`
}
