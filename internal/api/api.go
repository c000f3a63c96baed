// Package api is the HTTP boundary of chattervc. It serves an
// OpenAI-compatible speech endpoint plus voice and model listings, and maps
// pipeline errors onto status codes with a {"detail": "..."} body.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/chattervc/internal/observe"
	"github.com/MrWong99/chattervc/internal/pipeline"
	"github.com/MrWong99/chattervc/internal/voice"
)

// maxBodyBytes bounds the speech request body.
const maxBodyBytes = 1 << 20

// serviceName is reported by GET /.
const serviceName = "ChatterVC (Chatterbox + RVC) OpenAI-compatible TTS"

// Runner executes speech requests. Implemented by [pipeline.Pipeline].
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Catalog is the voice catalog surface the API needs. Implemented by
// [voice.Catalog].
type Catalog interface {
	List() []voice.Entry
	Refresh(ctx context.Context) ([]voice.Entry, error)
	Root() string
}

// Config holds the static values the handlers report or default to.
type Config struct {
	// Device is the inference device reported by GET /.
	Device string

	// DefaultSampleRate applies when a request omits sample_rate.
	DefaultSampleRate int

	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string

	// RequestTimeout bounds each request. Zero disables the bound.
	RequestTimeout time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	runner  Runner
	catalog Catalog
	cfg     Config
	started time.Time
}

// New creates a Server.
func New(runner Runner, catalog Catalog, cfg Config) *Server {
	return &Server{runner: runner, catalog: catalog, cfg: cfg, started: time.Now()}
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", s.handleInfo)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/audio/models", s.handleModels)
	mux.HandleFunc("GET /v1/models", s.handleOpenAIModels)
	mux.HandleFunc("GET /v1/audio/voices", s.handleVoices)
	mux.HandleFunc("POST /v1/audio/voices/refresh", s.handleRefresh)
	mux.HandleFunc("POST /v1/audio/speech", s.handleSpeech)
}

// Wrap applies CORS and the request timeout around h.
func (s *Server) Wrap(h http.Handler) http.Handler {
	if s.cfg.RequestTimeout > 0 {
		h = withTimeout(h, s.cfg.RequestTimeout)
	}
	return cors(h, s.cfg.CORSOrigins)
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		Service:    serviceName,
		Endpoints:  []string{"/v1/audio/models", "/v1/audio/voices", "/v1/audio/speech"},
		VoicesRoot: s.catalog.Root(),
		Device:     s.cfg.Device,
		Models:     models,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	res := modelsResponse{Models: make([]modelEntry, len(models))}
	for i, m := range models {
		res.Models[i] = modelEntry{ID: m}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOpenAIModels(w http.ResponseWriter, _ *http.Request) {
	res := openAIModelList{Object: "list", Data: make([]openAIModel, len(models))}
	for i, m := range models {
		res.Data[i] = openAIModel{ID: m, Object: "model", Created: s.started.Unix(), OwnedBy: "chattervc"}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, voicesResponse{Voices: s.catalog.List()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	list, err := s.catalog.Refresh(r.Context())
	if err != nil {
		observe.Logger(r.Context()).Error("voice refresh failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, voicesResponse{Voices: list})
}

// handleSpeech serves POST /v1/audio/speech. The payload is mono at the
// requested sample_rate, except for ogg: Opus only takes 8, 12, 16, 24 or
// 48 kHz, so other rates are encoded at 48 kHz. X-Sample-Rate always carries
// the payload's actual rate.
func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var body speechRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	req, err := body.toPipeline(s.cfg.DefaultSampleRate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			observe.Logger(r.Context()).Error("speech request failed", "err", err)
		}
		writeError(w, status, err.Error())
		return
	}

	applied := "0"
	if res.ConversionApplied {
		applied = "1"
	}
	h := w.Header()
	h.Set("Content-Type", res.MIMEType)
	h.Set("Content-Length", strconv.Itoa(len(res.Payload)))
	h.Set("Cache-Control", "no-store")
	h.Set("X-Model", req.Engine)
	h.Set("X-Voice", res.VoiceName)
	h.Set("X-RVC-Applied", applied)
	h.Set("X-Chatterbox-SR", strconv.Itoa(res.SynthesisSampleRate))
	h.Set("X-Sample-Rate", strconv.Itoa(res.PayloadSampleRate))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Payload)
}

// statusFor maps the pipeline error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encode error"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
