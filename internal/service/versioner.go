// Package service implements the training pipeline, job tracking,
// retrieval and answering on top of the knowledge store.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/agentbrain/agentbrain/internal/models"
)

// versionStore is the slice of the store the Versioner needs.
type versionStore interface {
	FindChunkByHash(ctx context.Context, agentID, contentHash string, sourceURL *string) (*models.KnowledgeChunk, error)
	MaxContentVersion(ctx context.Context, agentID string, sourceURL *string) (int, error)
}

// Fingerprint returns the content hash for text: sha256 over the text
// with leading and trailing whitespace removed. Interior whitespace is
// preserved so formatting changes produce a new lineage.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// Versioner assigns content versions to incoming chunks. Identical
// content in the same (agent, source URL) scope keeps its version and is
// reported as a duplicate; changed content gets the next version.
type Versioner struct {
	store versionStore
}

// NewVersioner creates a Versioner over store.
func NewVersioner(store versionStore) *Versioner {
	return &Versioner{store: store}
}

// ResolveVersion returns the content version for fingerprint within the
// agent/source scope and whether the content is already stored there.
// Resolution is idempotent; concurrent inserts of the same content are
// settled by the store's unique index, not by locking here.
func (v *Versioner) ResolveVersion(ctx context.Context, agentID, fingerprint string, sourceURL *string) (int, bool, error) {
	existing, err := v.store.FindChunkByHash(ctx, agentID, fingerprint, sourceURL)
	if err != nil {
		return 0, false, fmt.Errorf("resolve version: %w", err)
	}
	if existing != nil {
		return existing.ContentVersion, true, nil
	}

	maxVersion, err := v.store.MaxContentVersion(ctx, agentID, sourceURL)
	if err != nil {
		return 0, false, fmt.Errorf("resolve version: %w", err)
	}
	return maxVersion + 1, false, nil
}
