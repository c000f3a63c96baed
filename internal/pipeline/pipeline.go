package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/chattervc/internal/gateway"
	"github.com/MrWong99/chattervc/internal/observe"
	"github.com/MrWong99/chattervc/internal/resilience"
	"github.com/MrWong99/chattervc/internal/voice"
	"github.com/MrWong99/chattervc/pkg/audio"
	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

// VoiceResolver maps a selector to a voice. Implemented by [voice.Catalog].
type VoiceResolver interface {
	Resolve(ctx context.Context, selector string) (voice.Record, error)
}

// Synthesizer is the base synthesis stage. Implemented by
// [gateway.Synthesis].
type Synthesizer interface {
	Synthesize(ctx context.Context, in gateway.SynthesisInput) ([]float32, int, error)
}

// Converter is the timbre conversion stage. Implemented by
// [gateway.Conversion].
type Converter interface {
	Convert(ctx context.Context, in, out, modelPath, indexPath string, params convert.Params) error
}

// Pipeline runs speech requests. It is safe for concurrent use; requests do
// not share state beyond the injected collaborators.
type Pipeline struct {
	voices    VoiceResolver
	synth     Synthesizer
	converter Converter
	cacheDir  string
	metrics   *observe.Metrics

	newBreaker func(modelPath string) *resilience.CircuitBreaker
	mu         sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker // keyed by model path
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithConverter enables the conversion stage. Without it chatterbox_rvc
// requests are served with base synthesis only.
func WithConverter(c Converter) Option {
	return func(p *Pipeline) { p.converter = c }
}

// WithBreakers guards the conversion stage with one circuit breaker per voice
// model, created on first use by newBreaker. A model whose breaker is open is
// served with base synthesis; other models are unaffected.
func WithBreakers(newBreaker func(modelPath string) *resilience.CircuitBreaker) Option {
	return func(p *Pipeline) { p.newBreaker = newBreaker }
}

// WithCacheDir sets the directory for the temporary WAV files exchanged with
// the conversion engine. Defaults to [os.TempDir].
func WithCacheDir(dir string) Option {
	return func(p *Pipeline) { p.cacheDir = dir }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a pipeline.
func New(voices VoiceResolver, synth Synthesizer, opts ...Option) *Pipeline {
	p := &Pipeline{voices: voices, synth: synth}
	for _, o := range opts {
		o(p)
	}
	if p.cacheDir == "" {
		p.cacheDir = os.TempDir()
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Run executes req. Errors wrap [ErrBadRequest], [ErrNotFound] or
// [ErrSynthesisFailed].
func (p *Pipeline) Run(ctx context.Context, req Request) (res Result, err error) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "pipeline.Run")
	span.SetAttributes(
		attribute.String("engine", req.Engine),
		attribute.String("voice", req.Voice),
	)
	defer func() {
		observe.EndSpan(span, err)
		p.metrics.RecordSpeechRequest(ctx, req.Engine, statusOf(err), time.Since(start).Seconds())
	}()

	log := observe.Logger(ctx)

	format, err := req.Validate()
	if err != nil {
		return Result{}, err
	}
	text := strings.TrimSpace(req.Text)
	log.Info("speech request", "engine", req.Engine, "voice", req.Voice, "chars", len(text))

	rec, err := p.voices.Resolve(ctx, req.Voice)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	samples, rate, err := p.synthesize(ctx, text, rec, req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	res = Result{
		VoiceName:           rec.Name,
		Engine:              req.Engine,
		SynthesisSampleRate: rate,
	}

	if req.WantsConversion() {
		samples, rate, res.ConversionApplied = p.maybeConvert(ctx, rec, samples, rate, req.Conversion)
	}

	payload, out, err := p.encode(ctx, samples, rate, req.SampleRate, format)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	res.Samples = out
	res.SampleRate = req.SampleRate
	res.Payload = payload
	res.PayloadSampleRate = audio.EncodedRate(format, req.SampleRate)
	res.MIMEType = format.MIMEType()

	log.Info("speech request done",
		"voice", res.VoiceName,
		"conversion_applied", res.ConversionApplied,
		"bytes", len(payload),
		"elapsed", time.Since(start),
	)
	return res, nil
}

func (p *Pipeline) synthesize(ctx context.Context, text string, rec voice.Record, req Request) (samples []float32, rate int, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.synthesize")
	start := time.Now()
	defer func() {
		p.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	cfg, exag := req.CFGWeight, req.Exaggeration
	return p.synth.Synthesize(ctx, gateway.SynthesisInput{
		Text:          text,
		ReferencePath: rec.ReferencePath,
		LanguageID:    req.LanguageID,
		CFGWeight:     &cfg,
		Exaggeration:  &exag,
	})
}

// breaker returns the circuit breaker for modelPath, or nil when breakers are
// disabled.
func (p *Pipeline) breaker(modelPath string) *resilience.CircuitBreaker {
	if p.newBreaker == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.breakers[modelPath]
	if !ok {
		if p.breakers == nil {
			p.breakers = make(map[string]*resilience.CircuitBreaker)
		}
		cb = p.newBreaker(modelPath)
		p.breakers[modelPath] = cb
	}
	return cb
}

// maybeConvert runs the conversion stage when the voice has a model. On any
// failure, including an open breaker for that model, the input audio is
// returned with applied=false.
func (p *Pipeline) maybeConvert(ctx context.Context, rec voice.Record, samples []float32, rate int, params convert.Params) ([]float32, int, bool) {
	log := observe.Logger(ctx)
	if p.converter == nil || !rec.HasConversionModel() {
		p.metrics.RecordConversion(ctx, observe.OutcomeSkipped)
		return samples, rate, false
	}

	var (
		converted []float32
		outRate   int
	)
	run := func(ctx context.Context) error {
		var err error
		converted, outRate, err = p.convert(ctx, rec, samples, rate, params)
		return err
	}

	var err error
	if cb := p.breaker(rec.ConversionModelPath); cb != nil {
		err = cb.Execute(ctx, run)
	} else {
		err = run(ctx)
	}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		p.metrics.RecordConversion(ctx, observe.OutcomeCircuitOpen)
		log.Warn("conversion skipped, circuit open", "voice", rec.Name, "model", rec.ConversionModelPath)
		return samples, rate, false
	case err != nil:
		p.metrics.RecordConversion(ctx, observe.OutcomeFailed)
		log.Warn("conversion failed, using base synthesis",
			"voice", rec.Name,
			"model", rec.ConversionModelPath,
			"index", rec.ConversionIndexPath,
			"err", err,
		)
		return samples, rate, false
	}
	p.metrics.RecordConversion(ctx, observe.OutcomeApplied)
	return converted, outRate, true
}

// convert round-trips samples through the engine via two temp WAV files in
// the cache dir. The files are removed on every path.
func (p *Pipeline) convert(ctx context.Context, rec voice.Record, samples []float32, rate int, params convert.Params) (out []float32, outRate int, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.convert")
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline: conversion panicked: %v", r)
		}
		p.metrics.ConversionDuration.Record(ctx, time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	in := filepath.Join(p.cacheDir, "tts_"+hexID()+".wav")
	dst := filepath.Join(p.cacheDir, "rvc_"+hexID()+".wav")
	defer removeQuietly(in)
	defer removeQuietly(dst)

	if err := audio.WriteWAVFile(in, samples, rate); err != nil {
		return nil, 0, err
	}
	if err := p.converter.Convert(ctx, in, dst, rec.ConversionModelPath, rec.ConversionIndexPath, params); err != nil {
		return nil, 0, err
	}
	out, outRate, err = audio.ReadWAVFile(dst)
	if err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return nil, 0, errors.New("pipeline: conversion produced no audio")
	}
	return out, outRate, nil
}

func (p *Pipeline) encode(ctx context.Context, samples []float32, from, to int, format audio.Format) (payload []byte, out []float32, err error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.encode")
	start := time.Now()
	defer func() {
		p.metrics.EncodeDuration.Record(ctx, time.Since(start).Seconds())
		observe.EndSpan(span, err)
	}()

	out, err = audio.Resample(samples, from, to)
	if err != nil {
		return nil, nil, err
	}
	payload, err = audio.Encode(out, to, format)
	if err != nil {
		return nil, nil, err
	}
	return payload, out, nil
}

func hexID() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:])
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		observe.Logger(context.Background()).Debug("temp file cleanup failed", "path", path, "err", err)
	}
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSynthesisFailed):
		return "synthesis_failed"
	default:
		return "error"
	}
}
