package db

import "fmt"

// schemaSQL returns the schema initialization SQL. The HNSW index
// dimension must match the embedding provider's output; anything stored
// with a different dimension would be unsearchable.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- KNOWLEDGE CHUNK TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS knowledge_chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS agent_id ON knowledge_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS text ON knowledge_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON knowledge_chunk TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS source ON knowledge_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS source_url ON knowledge_chunk TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS chunk_index ON knowledge_chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS chunk_metadata ON knowledge_chunk TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS content_hash ON knowledge_chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS content_version ON knowledge_chunk TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS created_at ON knowledge_chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_agent ON knowledge_chunk FIELDS agent_id;
    -- Unique dedup lineage: re-ingesting identical content for the same
    -- agent/source is a conflict, which callers treat as a skip.
    DEFINE INDEX IF NOT EXISTS chunk_dedup ON knowledge_chunk FIELDS agent_id, content_hash, source_url UNIQUE;
    DEFINE INDEX IF NOT EXISTS chunk_embedding ON knowledge_chunk FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS chunk_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS chunk_text_ft ON knowledge_chunk FIELDS text FULLTEXT ANALYZER chunk_analyzer BM25;

    -- ==========================================================================
    -- TRAINING JOB TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS training_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS agent_id ON training_job TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON training_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON training_job TYPE string;
    DEFINE FIELD IF NOT EXISTS progress ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS total_chunks ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS chunks_processed ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS success_count ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error_count ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS skipped_count ON training_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS error ON training_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS result ON training_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS created_at ON training_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON training_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON training_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS job_agent ON training_job FIELDS agent_id;
    DEFINE INDEX IF NOT EXISTS job_status ON training_job FIELDS status;
`, embeddingDim)
}
