package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPTranscriber sends media to an external transcription service and
// returns the text it produces.
type HTTPTranscriber struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTranscriber creates a transcriber for the service at baseURL.
func NewHTTPTranscriber(baseURL string, httpClient *http.Client) *HTTPTranscriber {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPTranscriber{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type transcribeRequest struct {
	Kind     string `json:"kind"`
	URL      string `json:"url,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Content  string `json:"content,omitempty"`
}

type transcribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Transcribe posts ref to the service's /transcribe endpoint.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, ref MediaRef) (string, error) {
	payload := transcribeRequest{
		Kind:     string(ref.Kind),
		URL:      ref.URL,
		FileName: ref.FileName,
	}
	if len(ref.Content) > 0 {
		payload.Content = base64.StdEncoding.EncodeToString(ref.Content)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/transcribe", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("call transcription service: %w", err)
	}
	defer func() {
		drain(resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned status %d", resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("transcription failed: %s", out.Error)
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("transcription produced no text")
	}
	return out.Text, nil
}
