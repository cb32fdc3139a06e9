package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentbrain/agentbrain/internal/db"
	"github.com/agentbrain/agentbrain/internal/metrics"
	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

// TrainService submits training jobs.
type TrainService interface {
	Train(ctx context.Context, req models.TrainRequest) (service.JobSnapshot, error)
}

// JobService reads and watches job state.
type JobService interface {
	Get(ctx context.Context, id string) (service.JobSnapshot, error)
	List(ctx context.Context, agentID string, limit int) ([]service.JobSnapshot, error)
	Watch(id string) (<-chan service.JobSnapshot, func(), bool)
}

// AskService answers questions from trained knowledge.
type AskService interface {
	Ask(ctx context.Context, agentID, question string) (service.Answer, error)
}

// AgentAdmin covers the bulk agent operations.
type AgentAdmin interface {
	DeleteAgentChunks(ctx context.Context, agentID string) (int, error)
	AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error)
}

// RetrievalTuner reads and updates retrieval tuning.
type RetrievalTuner interface {
	Config() service.RetrievalConfig
	SetConfig(update service.RetrievalConfig) service.RetrievalConfig
}

// Handlers holds all handler dependencies.
type Handlers struct {
	Trainer   TrainService
	Jobs      JobService
	Answerer  AskService
	Agents    AgentAdmin
	Retrieval RetrievalTuner
	Stats     *metrics.Collector
	Logger    *slog.Logger
}

// Metrics returns runtime operation statistics.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.Stats == nil {
		respondError(w, http.StatusNotFound, "metrics collection is not enabled")
		return
	}
	respondJSON(w, http.StatusOK, h.Stats.Snapshot())
}

func (h *Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Train accepts a training submission and returns the queued job.
func (h *Handlers) Train(w http.ResponseWriter, r *http.Request) {
	var req models.TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.AgentID = chi.URLParam(r, "agentID")

	snap, err := h.Trainer.Train(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger().Error("train submission failed", "agent_id", req.AgentID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not create training job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  snap.ID,
		"status": snap.Status,
	})
}

// GetJob returns the current job document.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	snap, err := h.Jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger().Error("job lookup failed", "job_id", jobID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// ListJobs returns recent jobs, optionally filtered by agentId.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	agentID := r.URL.Query().Get("agentId")
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	jobs, err := h.Jobs.List(r.Context(), agentID, limit)
	if err != nil {
		h.logger().Error("job listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []service.JobSnapshot{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// askRequest is the body of an ask call.
type askRequest struct {
	Question string `json:"question"`
}

// Ask answers a question against the agent's knowledge.
func (h *Handlers) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		respondError(w, http.StatusBadRequest, "question is required")
		return
	}

	agentID := chi.URLParam(r, "agentID")
	answer, err := h.Answerer.Ask(r.Context(), agentID, req.Question)
	switch {
	case errors.Is(err, service.ErrAgentUnknown):
		// The fallback answer is still a valid document for the client.
		respondJSON(w, http.StatusNotFound, answer)
	case err != nil:
		h.logger().Error("ask failed", "agent_id", agentID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not answer question")
	default:
		respondJSON(w, http.StatusOK, answer)
	}
}

// DeleteAgent purges all knowledge stored for an agent.
func (h *Handlers) DeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	deleted, err := h.Agents.DeleteAgentChunks(r.Context(), agentID)
	if err != nil {
		h.logger().Error("agent purge failed", "agent_id", agentID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not delete agent knowledge")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"agentId":       agentID,
		"chunksDeleted": deleted,
	})
}

// AgentStats reports how much knowledge an agent holds, by source.
func (h *Handlers) AgentStats(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	stats, err := h.Agents.AgentStats(r.Context(), agentID)
	if err != nil {
		h.logger().Error("agent stats failed", "agent_id", agentID, "error", err)
		respondError(w, http.StatusInternalServerError, "could not load agent stats")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// GetRetrievalConfig echoes the current retrieval tuning.
func (h *Handlers) GetRetrievalConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Retrieval.Config())
}

// PutRetrievalConfig applies new retrieval tuning and echoes the result.
func (h *Handlers) PutRetrievalConfig(w http.ResponseWriter, r *http.Request) {
	var update service.RetrievalConfig
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	applied := h.Retrieval.SetConfig(update)
	h.logger().Info("retrieval config updated", "config", applied)
	respondJSON(w, http.StatusOK, applied)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
