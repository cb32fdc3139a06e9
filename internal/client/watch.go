package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentbrain/agentbrain/internal/service"
)

// WatchJob subscribes to live snapshots of a job over the server's
// websocket and invokes onUpdate for each one. It returns the last
// snapshot seen once the job is terminal, the server closes the stream,
// or ctx ends. A non-nil error from onUpdate aborts the watch.
func (c *Client) WatchJob(ctx context.Context, jobID string, onUpdate func(service.JobSnapshot) error) (*service.JobSnapshot, error) {
	wsURL, err := c.watchURL(jobID)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the socket when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var last *service.JobSnapshot
	for {
		var snap service.JobSnapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("read job update: %w", err)
		}

		last = &snap
		if onUpdate != nil {
			if err := onUpdate(snap); err != nil {
				return last, err
			}
		}
		if snap.Status.Terminal() {
			return last, nil
		}
	}
}

// watchURL converts the HTTP base URL into the job's watch endpoint.
func (c *Client) watchURL(jobID string) (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/api/jobs/" + url.PathEscape(jobID) + "/watch"
	return parsed.String(), nil
}
