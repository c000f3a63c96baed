// Package client is a Go client for the chattervc HTTP API.
//
// The OpenAI-compatible endpoints go through the official openai-go SDK; the
// chattervc-specific request fields ride along as extra JSON keys. Everything
// else uses the SDK's generic Get/Post helpers so that retries, headers and
// error decoding behave the same for every call.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// placeholderKey is sent when no API key is configured. chattervc does not
// authenticate, but the SDK always sets an Authorization header.
const placeholderKey = "chattervc"

// Voice is one entry of the voice listing.
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpeechRequest is one synthesis request. Zero values are omitted and take
// the server defaults.
type SpeechRequest struct {
	Model      string
	Input      string
	Voice      string
	Format     string
	SampleRate int

	LanguageID   string
	CFGWeight    *float64
	Exaggeration *float64

	// Extra holds further body fields such as rvc_pitch or rvc_f0_method.
	Extra map[string]any
}

// Speech is a synthesised clip plus the server's observability headers.
type Speech struct {
	Audio               []byte
	ContentType         string
	Model               string
	Voice               string
	ConversionApplied   bool
	SynthesisSampleRate int
}

// Client talks to one chattervc server.
type Client struct {
	oai  oai.Client
	root string
}

type config struct {
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	retries    int
}

// Option is a functional option for [New].
type Option func(*config)

// WithAPIKey sets the bearer token, for servers behind an authenticating proxy.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithTimeout sets a per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithMaxRetries sets how often failed requests are retried. Default 0:
// synthesis is expensive and not worth repeating blindly.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.retries = n }
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:7779.
func New(baseURL string, opts ...Option) (*Client, error) {
	root := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if root == "" {
		return nil, errors.New("client: base URL must not be empty")
	}
	cfg := &config{apiKey: placeholderKey}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.apiKey),
		option.WithBaseURL(root + "/v1/"),
		option.WithMaxRetries(cfg.retries),
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}
	return &Client{oai: oai.NewClient(reqOpts...), root: root}, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.root }

// Health returns nil when GET /health reports ok.
func (c *Client) Health(ctx context.Context) error {
	var res struct {
		OK bool `json:"ok"`
	}
	if err := c.oai.Get(ctx, "health", nil, &res, option.WithBaseURL(c.root+"/")); err != nil {
		return fmt.Errorf("client: health: %w", err)
	}
	if !res.OK {
		return errors.New("client: health: server reported not ok")
	}
	return nil
}

// Models lists the model ids served at /v1/models.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	page, err := c.oai.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("client: list models: %w", err)
	}
	ids := make([]string, len(page.Data))
	for i, m := range page.Data {
		ids[i] = m.ID
	}
	return ids, nil
}

// Voices returns the voice listing. The first entry is the random sentinel.
func (c *Client) Voices(ctx context.Context) ([]Voice, error) {
	var res struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.oai.Get(ctx, "audio/voices", nil, &res); err != nil {
		return nil, fmt.Errorf("client: list voices: %w", err)
	}
	return res.Voices, nil
}

// RefreshVoices asks the server to rescan its voices directory.
func (c *Client) RefreshVoices(ctx context.Context) ([]Voice, error) {
	var res struct {
		Voices []Voice `json:"voices"`
	}
	if err := c.oai.Post(ctx, "audio/voices/refresh", nil, &res); err != nil {
		return nil, fmt.Errorf("client: refresh voices: %w", err)
	}
	return res.Voices, nil
}

// Speech synthesises req and returns the audio.
func (c *Client) Speech(ctx context.Context, req SpeechRequest) (*Speech, error) {
	params := oai.AudioSpeechNewParams{
		Model: oai.SpeechModel(req.Model),
		Input: req.Input,
		Voice: oai.AudioSpeechNewParamsVoice(req.Voice),
	}

	var extra []option.RequestOption
	set := func(key string, v any) { extra = append(extra, option.WithJSONSet(key, v)) }
	if req.Format != "" {
		set("format", req.Format)
	}
	if req.SampleRate > 0 {
		set("sample_rate", req.SampleRate)
	}
	if req.LanguageID != "" {
		set("language_id", req.LanguageID)
	}
	if req.CFGWeight != nil {
		set("cfg_weight", *req.CFGWeight)
	}
	if req.Exaggeration != nil {
		set("exaggeration", *req.Exaggeration)
	}
	for k, v := range req.Extra {
		set(k, v)
	}

	resp, err := c.oai.Audio.Speech.New(ctx, params, extra...)
	if err != nil {
		return nil, fmt.Errorf("client: speech: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("client: speech: read body: %w", err)
	}
	sr, _ := strconv.Atoi(resp.Header.Get("X-Chatterbox-SR"))
	return &Speech{
		Audio:               data,
		ContentType:         resp.Header.Get("Content-Type"),
		Model:               resp.Header.Get("X-Model"),
		Voice:               resp.Header.Get("X-Voice"),
		ConversionApplied:   resp.Header.Get("X-RVC-Applied") == "1",
		SynthesisSampleRate: sr,
	}, nil
}
