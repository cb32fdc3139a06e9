// Package source resolves validated training requests into raw text.
// Websites are scraped and reduced to article text, media is sent to an
// external transcription service, documents arrive inline or as file
// payloads.
package source

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/agentbrain/agentbrain/internal/models"
)

// Item is one acquired piece of text with its provenance.
type Item struct {
	Text string
	URL  *string
	File *string
}

// Failure records one item that could not be acquired. A job only fails
// outright when every item of the request failed.
type Failure struct {
	Source  models.Source
	URL     *string
	File    *string
	Message string
}

// MediaRef points a transcriber at one media input, either by URL or by
// uploaded content.
type MediaRef struct {
	Kind     models.Source
	URL      string
	FileName string
	Content  []byte
}

// Transcriber turns media into text.
type Transcriber interface {
	Transcribe(ctx context.Context, ref MediaRef) (string, error)
}

// Acquirer resolves training requests to text items.
type Acquirer struct {
	httpClient  *http.Client
	transcriber Transcriber
	logger      *slog.Logger
}

// NewAcquirer creates an Acquirer. transcriber may be nil when no
// transcription service is configured; media requests then fail per
// item with a clear message.
func NewAcquirer(httpClient *http.Client, transcriber Transcriber, logger *slog.Logger) *Acquirer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{httpClient: httpClient, transcriber: transcriber, logger: logger}
}

// Acquire resolves req into text items. Per-item failures are collected
// rather than returned as an error; callers decide whether a partial
// result is acceptable.
func (a *Acquirer) Acquire(ctx context.Context, req models.TrainRequest) ([]Item, []Failure) {
	switch req.Source {
	case models.SourceDocument:
		return a.acquireDocument(req)
	case models.SourceWebsite:
		return a.acquireWebsite(ctx, req)
	case models.SourceYouTube:
		return a.acquireMediaURL(ctx, req)
	case models.SourceAudio, models.SourceVideo:
		return a.acquireMediaFiles(ctx, req)
	default:
		return nil, []Failure{{
			Source:  req.Source,
			Message: fmt.Sprintf("unsupported source %q", req.Source),
		}}
	}
}

func (a *Acquirer) acquireDocument(req models.TrainRequest) ([]Item, []Failure) {
	var items []Item
	var failures []Failure

	if strings.TrimSpace(req.Text) != "" {
		items = append(items, Item{Text: req.Text})
	}

	for _, f := range req.Files {
		name := f.Name
		text, err := decodeFilePayload(f)
		if err != nil {
			failures = append(failures, Failure{
				Source:  req.Source,
				File:    &name,
				Message: err.Error(),
			})
			continue
		}
		items = append(items, Item{Text: text, File: &name})
	}

	return items, failures
}

func (a *Acquirer) acquireWebsite(ctx context.Context, req models.TrainRequest) ([]Item, []Failure) {
	srcURL := req.SourceURL
	text, err := a.fetchArticle(ctx, srcURL)
	if err != nil {
		return nil, []Failure{{
			Source:  req.Source,
			URL:     &srcURL,
			Message: err.Error(),
		}}
	}
	return []Item{{Text: text, URL: &srcURL}}, nil
}

// fetchArticle downloads a page and extracts its readable article text.
func (a *Acquirer) fetchArticle(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "agentbrain/1.0")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fetch website: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch website: unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return "", fmt.Errorf("extract article: %w", err)
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", fmt.Errorf("extract article: no readable text at %s", rawURL)
	}

	a.logger.Debug("website article extracted", "url", rawURL, "title", article.Title, "chars", len(text))
	return text, nil
}

func (a *Acquirer) acquireMediaURL(ctx context.Context, req models.TrainRequest) ([]Item, []Failure) {
	srcURL := req.SourceURL
	if a.transcriber == nil {
		return nil, []Failure{{
			Source:  req.Source,
			URL:     &srcURL,
			Message: "no transcription service configured",
		}}
	}

	text, err := a.transcriber.Transcribe(ctx, MediaRef{Kind: req.Source, URL: srcURL})
	if err != nil {
		return nil, []Failure{{
			Source:  req.Source,
			URL:     &srcURL,
			Message: err.Error(),
		}}
	}
	return []Item{{Text: text, URL: &srcURL}}, nil
}

func (a *Acquirer) acquireMediaFiles(ctx context.Context, req models.TrainRequest) ([]Item, []Failure) {
	var items []Item
	var failures []Failure

	for _, f := range req.Files {
		name := f.Name
		if a.transcriber == nil {
			failures = append(failures, Failure{
				Source:  req.Source,
				File:    &name,
				Message: "no transcription service configured",
			})
			continue
		}

		content, err := base64.StdEncoding.DecodeString(f.Content)
		if err != nil {
			content = []byte(f.Content)
		}

		text, err := a.transcriber.Transcribe(ctx, MediaRef{
			Kind:     req.Source,
			FileName: name,
			Content:  content,
		})
		if err != nil {
			failures = append(failures, Failure{
				Source:  req.Source,
				File:    &name,
				Message: err.Error(),
			})
			continue
		}
		items = append(items, Item{Text: text, File: &name})
	}

	return items, failures
}

// decodeFilePayload returns the text of an uploaded document. Content
// is tried as base64 first; raw text payloads pass through unchanged.
func decodeFilePayload(f models.FilePayload) (string, error) {
	if strings.TrimSpace(f.Content) == "" {
		return "", fmt.Errorf("file %q is empty", f.Name)
	}
	decoded, err := base64.StdEncoding.DecodeString(f.Content)
	if err == nil && utf8.Valid(decoded) {
		return string(decoded), nil
	}
	return f.Content, nil
}

// drain is used by HTTP helpers that must read bodies fully before
// closing so connections can be reused.
func drain(r io.Reader) {
	io.Copy(io.Discard, io.LimitReader(r, 1<<20))
}
