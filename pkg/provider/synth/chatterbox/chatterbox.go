// Package chatterbox provides a [synth.Engine] backed by a Chatterbox inference
// sidecar reached over HTTP.
//
// The sidecar owns the model weights and the accelerator. Two endpoints are
// used:
//
//   - POST /load with {"flavor", "device"} loads the model (idempotent on the
//     sidecar side) and answers {"sample_rate": N}.
//   - POST /generate with {"text", "audio_prompt_path", ...controls} answers an
//     audio/wav body containing the synthesised waveform.
//
// The reference audio path is passed by name, so the sidecar must see the same
// voices directory as this process.
//
// Typical usage:
//
//	e, err := chatterbox.Load(ctx, "http://127.0.0.1:8010", synth.FlavorEnglish, "cuda",
//	    chatterbox.WithTimeout(5*time.Minute),
//	)
//	out, err := e.Generate(ctx, synth.Request{Text: "hi", ReferencePath: "voices/alice/ref.wav"})
//
// The sidecar queues or parallelises concurrent /generate calls itself;
// Engine does not serialise them.
package chatterbox

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

	"github.com/MrWong99/chattervc/pkg/audio"
	"github.com/MrWong99/chattervc/pkg/provider/synth"
)

var _ synth.Engine = (*Engine)(nil)

const (
	defaultTimeout   = 10 * time.Minute
	loadEndpoint     = "/load"
	generateEndpoint = "/generate"

	// maxErrorBody bounds how much of a failed response is quoted in errors.
	maxErrorBody = 512
)

// Option is a functional option for [Load].
type Option func(*Engine)

// WithTimeout sets the per-request HTTP timeout. Model loading can take
// minutes on a cold cache, so the default is generous.
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

// Engine talks to a loaded Chatterbox sidecar.
type Engine struct {
	serverURL  string
	flavor     synth.Flavor
	device     string
	sampleRate int
	httpClient *http.Client
}

type loadRequest struct {
	Flavor string `json:"flavor"`
	Device string `json:"device"`
}

type loadResponse struct {
	SampleRate int `json:"sample_rate"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Load asks the sidecar at serverURL to load the model for flavor on device and
// returns an Engine bound to it. An unreachable sidecar or a failed load is an
// error; callers decide whether to retry.
func Load(ctx context.Context, serverURL string, flavor synth.Flavor, device string, opts ...Option) (*Engine, error) {
	if serverURL == "" {
		return nil, errors.New("chatterbox: serverURL must not be empty")
	}
	e := &Engine{
		serverURL:  strings.TrimRight(serverURL, "/"),
		flavor:     flavor,
		device:     device,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}

	var resp loadResponse
	if err := e.postJSON(ctx, loadEndpoint, loadRequest{Flavor: string(flavor), Device: device}, "application/json", func(body io.Reader) error {
		return json.NewDecoder(body).Decode(&resp)
	}); err != nil {
		return nil, err
	}
	e.sampleRate = resp.SampleRate
	return e, nil
}

// Flavor returns the flavor the sidecar was asked to load.
func (e *Engine) Flavor() synth.Flavor { return e.flavor }

// SampleRate returns the native rate reported by the sidecar at load time.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Generate implements [synth.Engine]. The WAV answer is decoded with its native
// channel layout; its header rate overrides the load-time rate when present.
func (e *Engine) Generate(ctx context.Context, req synth.Request) (synth.Output, error) {
	body := make(map[string]any, len(req.Controls)+2)
	for k, v := range req.Controls {
		body[string(k)] = v
	}
	body["text"] = req.Text
	if req.ReferencePath != "" {
		body["audio_prompt_path"] = req.ReferencePath
	}

	var out synth.Output
	err := e.postJSON(ctx, generateEndpoint, body, "audio/wav", func(r io.Reader) error {
		buf, err := audio.DecodeWAV(r)
		if err != nil {
			return err
		}
		out = synth.Output{Channels: buf.Channels, SampleRate: buf.SampleRate}
		return nil
	})
	if err != nil {
		return synth.Output{}, err
	}
	if out.SampleRate == 0 {
		out.SampleRate = e.sampleRate
	}
	return out, nil
}

// postJSON sends payload to endpoint and hands a 200 body to decode.
func (e *Engine) postJSON(ctx context.Context, endpoint string, payload any, accept string, decode func(io.Reader) error) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chatterbox: marshal %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+endpoint, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("chatterbox: create %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatterbox: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chatterbox: POST %s returned status %d: %s", endpoint, resp.StatusCode, readDetail(resp.Body))
	}
	if err := decode(resp.Body); err != nil {
		return fmt.Errorf("chatterbox: decode %s response: %w", endpoint, err)
	}
	return nil
}

// readDetail extracts a human-readable reason from an error body. FastAPI-style
// {"detail": "..."} bodies are unwrapped; anything else is quoted raw.
func readDetail(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Detail != "" {
		return er.Detail
	}
	return strings.TrimSpace(string(raw))
}
