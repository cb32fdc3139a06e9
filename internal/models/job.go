// Package models defines data structures for the agentbrain knowledge store.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// JobStatus is the state of a training job. Transitions move strictly
// forward: queued -> processing -> completed | failed.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobQueued:
		return next == JobProcessing || next == JobCompleted || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// JobCounters tracks per-chunk outcomes of a training run. The invariant
// SuccessCount + ErrorCount + SkippedCount <= ChunksProcessed <= TotalChunks
// holds at all times.
type JobCounters struct {
	TotalChunks     int `json:"total_chunks"`
	ChunksProcessed int `json:"chunks_processed"`
	SuccessCount    int `json:"success_count"`
	ErrorCount      int `json:"error_count"`
	SkippedCount    int `json:"skipped_count"`
}

// JobError is the structured failure payload of a training job.
type JobError struct {
	Message string `json:"message"`
	Source  string `json:"source,omitempty"`
	URL     string `json:"url,omitempty"`
	File    string `json:"file,omitempty"`
}

// JobResult is the terminal success payload of a training job.
type JobResult struct {
	Message      string   `json:"message"`
	ChunksStored int      `json:"chunks_stored"`
	Warnings     []string `json:"warnings,omitempty"`
}

// TrainingJob is the persisted record of one asynchronous training run.
// At most one of Result / Error is meaningful, depending on the terminal
// state. Read-only after completion except for idempotent polling reads.
type TrainingJob struct {
	ID surrealmodels.RecordID `json:"id"`

	AgentID  string    `json:"agent_id"`
	Source   Source    `json:"source"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"` // 0-100, monotonic while processing

	JobCounters

	Result *JobResult `json:"result,omitempty"`
	Error  *JobError  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
