// Package client provides the REST client for an agentbrain server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentbrain/agentbrain/internal/models"
	"github.com/agentbrain/agentbrain/internal/service"
)

// Client talks to an agentbrain server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client. If endpoint is empty, AGENTBRAIN_SERVER_URL is
// used, defaulting to localhost. Timeout is configurable via
// AGENTBRAIN_CLIENT_TIMEOUT (training uploads can be large).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("AGENTBRAIN_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8585"
	}

	timeout := 5 * time.Minute
	if t := os.Getenv("AGENTBRAIN_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// apiError is the server's error envelope.
type apiError struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes the response into result.
// Non-2xx statuses become errors carrying the server's message.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiError
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, envelope.Error)
		}
		// Some error responses carry a full document (e.g. fallback
		// answers); surface the raw body.
		return &StatusError{Code: resp.StatusCode, Body: raw}
	}

	if result != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// StatusError is a non-2xx response whose body is a document rather
// than an error envelope.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Code)
}

// TrainResponse is the acknowledgement for a training submission.
type TrainResponse struct {
	JobID  string           `json:"jobId"`
	Status models.JobStatus `json:"status"`
}

// Train submits a training request for agentID.
func (c *Client) Train(ctx context.Context, agentID string, req models.TrainRequest) (*TrainResponse, error) {
	var resp TrainResponse
	if err := c.do(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(agentID)+"/train", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*service.JobSnapshot, error) {
	var snap service.JobSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListJobs returns recent jobs, optionally filtered by agent.
func (c *Client) ListJobs(ctx context.Context, agentID string, limit int) ([]service.JobSnapshot, error) {
	path := "/api/jobs"
	query := url.Values{}
	if agentID != "" {
		query.Set("agentId", agentID)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Jobs []service.JobSnapshot `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Ask poses a question to an agent. An unknown agent still yields the
// server's fallback answer.
func (c *Client) Ask(ctx context.Context, agentID, question string) (*service.Answer, error) {
	var answer service.Answer
	err := c.do(ctx, http.MethodPost, "/api/agents/"+url.PathEscape(agentID)+"/ask",
		map[string]string{"question": question}, &answer)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			if json.Unmarshal(statusErr.Body, &answer) == nil && answer.Reply != "" {
				return &answer, nil
			}
		}
		return nil, err
	}
	return &answer, nil
}

// DeleteAgent purges an agent's knowledge and returns the chunk count
// removed.
func (c *Client) DeleteAgent(ctx context.Context, agentID string) (int, error) {
	var resp struct {
		ChunksDeleted int `json:"chunksDeleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/agents/"+url.PathEscape(agentID), nil, &resp); err != nil {
		return 0, err
	}
	return resp.ChunksDeleted, nil
}

// AgentStats returns an agent's knowledge summary.
func (c *Client) AgentStats(ctx context.Context, agentID string) (*models.AgentStats, error) {
	var stats models.AgentStats
	if err := c.do(ctx, http.MethodGet, "/api/agents/"+url.PathEscape(agentID)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RetrievalConfig returns the server's current retrieval tuning.
func (c *Client) RetrievalConfig(ctx context.Context) (*service.RetrievalConfig, error) {
	var cfg service.RetrievalConfig
	if err := c.do(ctx, http.MethodGet, "/api/config/retrieval", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetRetrievalConfig applies tuning and returns the server's applied
// config.
func (c *Client) SetRetrievalConfig(ctx context.Context, update service.RetrievalConfig) (*service.RetrievalConfig, error) {
	var cfg service.RetrievalConfig
	if err := c.do(ctx, http.MethodPut, "/api/config/retrieval", update, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
