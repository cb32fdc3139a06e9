package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentbrain/agentbrain/internal/models"
)

// jobStore is the slice of the store the JobManager persists through.
type jobStore interface {
	CreateTrainingJob(ctx context.Context, id, agentID string, source models.Source) error
	GetTrainingJob(ctx context.Context, id string) (*models.TrainingJob, error)
	ListTrainingJobs(ctx context.Context, agentID string, limit int) ([]models.TrainingJob, error)
	UpdateJobStatus(ctx context.Context, id string, status models.JobStatus) error
	UpdateJobProgress(ctx context.Context, id string, progress int, counters models.JobCounters) error
	CompleteJob(ctx context.Context, id string, result models.JobResult) error
	FailJob(ctx context.Context, id string, cause models.JobError) error
}

// JobSnapshot is a point-in-time copy of a training job's state, safe to
// hand to API responses and watchers.
type JobSnapshot struct {
	ID       string           `json:"jobId"`
	AgentID  string           `json:"agentId"`
	Source   models.Source    `json:"source"`
	Status   models.JobStatus `json:"status"`
	Progress int              `json:"progress"`

	models.JobCounters

	Result *models.JobResult `json:"result,omitempty"`
	Error  *models.JobError  `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// trackedJob is the in-memory record of an active job plus its watchers.
type trackedJob struct {
	mu   sync.RWMutex
	snap JobSnapshot
	subs map[chan JobSnapshot]struct{}
}

func (j *trackedJob) snapshot() JobSnapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.snap
}

// publish pushes the current snapshot to all watchers without blocking.
// A watcher that cannot keep up misses intermediate updates. Caller
// must hold j.mu.
func (j *trackedJob) publish() {
	for ch := range j.subs {
		select {
		case ch <- j.snap:
		default:
		}
	}
}

// publishTerminal delivers the terminal snapshot to every watcher,
// evicting the oldest buffered update when the buffer is full. Sends
// serialize under j.mu and receivers only free space, so the send after
// eviction cannot block. Caller must hold j.mu.
func (j *trackedJob) publishTerminal() {
	for ch := range j.subs {
		select {
		case ch <- j.snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- j.snap
		}
	}
}

// JobManager tracks training jobs in memory for live progress and
// persists every state change to the store. Status moves strictly
// forward; illegal transitions are rejected.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*trackedJob
	store  jobStore
	logger *slog.Logger
}

// NewJobManager creates a JobManager over store.
func NewJobManager(store jobStore, logger *slog.Logger) *JobManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobManager{
		jobs:   make(map[string]*trackedJob),
		store:  store,
		logger: logger,
	}
}

// Create persists a new queued job and returns its snapshot.
func (m *JobManager) Create(ctx context.Context, agentID string, src models.Source) (JobSnapshot, error) {
	id := uuid.New().String()
	if err := m.store.CreateTrainingJob(ctx, id, agentID, src); err != nil {
		return JobSnapshot{}, fmt.Errorf("create job: %w", err)
	}

	now := time.Now().UTC()
	job := &trackedJob{
		snap: JobSnapshot{
			ID:        id,
			AgentID:   agentID,
			Source:    src,
			Status:    models.JobQueued,
			CreatedAt: now,
			UpdatedAt: now,
		},
		subs: make(map[chan JobSnapshot]struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	m.logger.Info("training job created", "job_id", id, "agent_id", agentID, "source", src)
	return job.snapshot(), nil
}

// Get returns the job snapshot, reading memory first and falling back to
// the store for jobs from previous runs.
func (m *JobManager) Get(ctx context.Context, id string) (JobSnapshot, error) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if ok {
		return job.snapshot(), nil
	}

	stored, err := m.store.GetTrainingJob(ctx, id)
	if err != nil {
		return JobSnapshot{}, err
	}
	return snapshotFromRecord(stored)
}

// List returns recent jobs for an agent (all agents when agentID is
// empty), most recent first.
func (m *JobManager) List(ctx context.Context, agentID string, limit int) ([]JobSnapshot, error) {
	records, err := m.store.ListTrainingJobs(ctx, agentID, limit)
	if err != nil {
		return nil, err
	}
	snapshots := make([]JobSnapshot, 0, len(records))
	for i := range records {
		snap, err := snapshotFromRecord(&records[i])
		if err != nil {
			m.logger.Warn("skipping unreadable job record", "error", err)
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// SetProcessing moves a queued job to processing.
func (m *JobManager) SetProcessing(ctx context.Context, id string) {
	m.transition(ctx, id, models.JobProcessing, func(snap *JobSnapshot) {
		snap.Status = models.JobProcessing
	}, func(ctx context.Context) error {
		return m.store.UpdateJobStatus(ctx, id, models.JobProcessing)
	})
}

// UpdateProgress records per-chunk counters and derives progress.
// Persisted on every call so a crash loses at most one chunk of
// progress.
func (m *JobManager) UpdateProgress(ctx context.Context, id string, counters models.JobCounters) {
	job := m.lookup(id)
	if job == nil {
		return
	}

	progress := 0
	if counters.TotalChunks > 0 {
		progress = counters.ChunksProcessed * 100 / counters.TotalChunks
	}

	job.mu.Lock()
	if job.snap.Status.Terminal() {
		job.mu.Unlock()
		return
	}
	if progress < job.snap.Progress {
		progress = job.snap.Progress
	}
	job.snap.Progress = progress
	job.snap.JobCounters = counters
	job.snap.UpdatedAt = time.Now().UTC()
	job.publish()
	job.mu.Unlock()

	if err := m.store.UpdateJobProgress(ctx, id, progress, counters); err != nil {
		m.logger.Warn("failed to persist job progress", "job_id", id, "error", err)
	}
}

// Complete marks a job completed with result.
func (m *JobManager) Complete(ctx context.Context, id string, result models.JobResult) {
	now := time.Now().UTC()
	m.transition(ctx, id, models.JobCompleted, func(snap *JobSnapshot) {
		snap.Status = models.JobCompleted
		snap.Progress = 100
		snap.Result = &result
		snap.CompletedAt = &now
	}, func(ctx context.Context) error {
		return m.store.CompleteJob(ctx, id, result)
	})
	m.closeWatchers(id)
	m.logger.Info("training job completed", "job_id", id, "chunks_stored", result.ChunksStored)
}

// Fail marks a job failed with a structured cause.
func (m *JobManager) Fail(ctx context.Context, id string, cause models.JobError) {
	now := time.Now().UTC()
	m.transition(ctx, id, models.JobFailed, func(snap *JobSnapshot) {
		snap.Status = models.JobFailed
		snap.Error = &cause
		snap.CompletedAt = &now
	}, func(ctx context.Context) error {
		return m.store.FailJob(ctx, id, cause)
	})
	m.closeWatchers(id)
	m.logger.Error("training job failed", "job_id", id, "cause", cause.Message)
}

// Watch subscribes to snapshots of job id. The current snapshot is
// delivered first; the channel closes after the terminal snapshot. The
// returned cancel func must be called when the watcher is done. ok is
// false for unknown jobs.
func (m *JobManager) Watch(id string) (<-chan JobSnapshot, func(), bool) {
	job := m.lookup(id)
	if job == nil {
		return nil, nil, false
	}

	ch := make(chan JobSnapshot, 16)

	job.mu.Lock()
	snap := job.snap
	ch <- snap
	if snap.Status.Terminal() {
		close(ch)
		job.mu.Unlock()
		return ch, func() {}, true
	}
	job.subs[ch] = struct{}{}
	job.mu.Unlock()

	cancel := func() {
		job.mu.Lock()
		if _, subscribed := job.subs[ch]; subscribed {
			delete(job.subs, ch)
			close(ch)
		}
		job.mu.Unlock()
	}
	return ch, cancel, true
}

func (m *JobManager) lookup(id string) *trackedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// transition applies a forward status change in memory and persists it.
func (m *JobManager) transition(ctx context.Context, id string, next models.JobStatus, apply func(*JobSnapshot), persist func(context.Context) error) {
	job := m.lookup(id)
	if job == nil {
		m.logger.Warn("transition for unknown job", "job_id", id, "status", next)
		return
	}

	job.mu.Lock()
	if !job.snap.Status.CanTransition(next) {
		m.logger.Warn("illegal job transition ignored",
			"job_id", id, "from", job.snap.Status, "to", next)
		job.mu.Unlock()
		return
	}
	apply(&job.snap)
	job.snap.UpdatedAt = time.Now().UTC()
	if job.snap.Status.Terminal() {
		job.publishTerminal()
	} else {
		job.publish()
	}
	job.mu.Unlock()

	if err := persist(ctx); err != nil {
		m.logger.Warn("failed to persist job transition", "job_id", id, "status", next, "error", err)
	}
}

// closeWatchers drops all subscriptions after a terminal transition.
func (m *JobManager) closeWatchers(id string) {
	job := m.lookup(id)
	if job == nil {
		return
	}
	job.mu.Lock()
	for ch := range job.subs {
		delete(job.subs, ch)
		close(ch)
	}
	job.mu.Unlock()
}

func snapshotFromRecord(record *models.TrainingJob) (JobSnapshot, error) {
	id, err := models.RecordIDString(record.ID)
	if err != nil {
		return JobSnapshot{}, fmt.Errorf("job record id: %w", err)
	}
	return JobSnapshot{
		ID:          id,
		AgentID:     record.AgentID,
		Source:      record.Source,
		Status:      record.Status,
		Progress:    record.Progress,
		JobCounters: record.JobCounters,
		Result:      record.Result,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
		CompletedAt: record.CompletedAt,
	}, nil
}
