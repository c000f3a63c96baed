// Package rvchttp provides a [convert.Engine] backed by an RVC inference
// sidecar (for example an Applio VoiceConverter wrapped in a small HTTP
// server).
//
// Endpoints:
//
//   - POST /load warms the VoiceConverter and answers 200 once it is usable.
//   - POST /convert with the job as JSON converts input_path into output_path
//     and answers 200 when the output file is complete.
//
// Paths are passed by name; the sidecar must share the cache and voices
// directories with this process.
package rvchttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

var _ convert.Engine = (*Engine)(nil)

const (
	defaultTimeout  = 10 * time.Minute
	loadEndpoint    = "/load"
	convertEndpoint = "/convert"
	exportFormat    = "WAV"
	maxErrorBody    = 512
)

// Option is a functional option for [Load].
type Option func(*Engine)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) {
		e.httpClient = c
	}
}

// Engine talks to a loaded RVC sidecar. Concurrent Convert calls are forwarded
// as-is; the sidecar decides whether to queue them.
type Engine struct {
	serverURL  string
	httpClient *http.Client
}

type convertRequest struct {
	InputPath    string `json:"audio_input_path"`
	OutputPath   string `json:"audio_output_path"`
	ModelPath    string `json:"model_path"`
	IndexPath    string `json:"index_path"`
	ExportFormat string `json:"export_format"`
	convert.Settings
}

// Load asks the sidecar at serverURL to prepare its converter.
func Load(ctx context.Context, serverURL string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("rvchttp: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.post(ctx, loadEndpoint, struct{}{}); err != nil {
		return nil, err
	}
	return e, nil
}

// Convert implements [convert.Engine].
func (e *Engine) Convert(ctx context.Context, job convert.Job) error {
	return e.post(ctx, convertEndpoint, convertRequest{
		InputPath:    job.InputPath,
		OutputPath:   job.OutputPath,
		ModelPath:    job.ModelPath,
		IndexPath:    job.IndexPath,
		ExportFormat: exportFormat,
		Settings:     job.Settings,
	})
}

func (e *Engine) post(ctx context.Context, endpoint string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rvchttp: marshal %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("rvchttp: create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rvchttp: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode != http.StatusOK {
		var er struct {
			Detail string `json:"detail"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Detail != "" {
			msg = er.Detail
		}
		return fmt.Errorf("rvchttp: POST %s returned status %d: %s", endpoint, resp.StatusCode, msg)
	}
	return nil
}
