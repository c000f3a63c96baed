// Package app wires all chattervc subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject engine factories via functional options
// (WithSynthesisFactory, WithConversionFactory). When an option is not
// provided, New builds the real sidecar or subprocess clients from the config.
// Either way engines are only constructed on the first speech request.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/chattervc/internal/api"
	"github.com/MrWong99/chattervc/internal/config"
	"github.com/MrWong99/chattervc/internal/gateway"
	"github.com/MrWong99/chattervc/internal/health"
	"github.com/MrWong99/chattervc/internal/observe"
	"github.com/MrWong99/chattervc/internal/pipeline"
	"github.com/MrWong99/chattervc/internal/resilience"
	"github.com/MrWong99/chattervc/internal/voice"
	"github.com/MrWong99/chattervc/pkg/provider/convert"
	"github.com/MrWong99/chattervc/pkg/provider/convert/applio"
	"github.com/MrWong99/chattervc/pkg/provider/convert/rvchttp"
	"github.com/MrWong99/chattervc/pkg/provider/synth"
	"github.com/MrWong99/chattervc/pkg/provider/synth/chatterbox"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics
	gather  prometheus.Gatherer

	synthFactory   gateway.Factory[synth.Engine]
	convertFactory gateway.Factory[convert.Engine]

	// Subsystems, initialised in New and torn down in Shutdown.
	catalog  *voice.Catalog
	watcher  *voice.Watcher
	pipeline *pipeline.Pipeline
	handler  http.Handler
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSynthesisFactory replaces the Chatterbox sidecar client.
func WithSynthesisFactory(f gateway.Factory[synth.Engine]) Option {
	return func(a *App) { a.synthFactory = f }
}

// WithConversionFactory replaces the configured RVC backend.
func WithConversionFactory(f gateway.Factory[convert.Engine]) Option {
	return func(a *App) { a.convertFactory = f }
}

// WithMetrics records on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer serves g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gather = g }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It creates the
// voices root and the cache directory, scans the catalog once and builds the
// HTTP handler. No engine is contacted.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Directories ───────────────────────────────────────────────────
	for _, dir := range []string{cfg.Voices.Root, cfg.Cache.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("app: create %q: %w", dir, err)
		}
	}

	// ── 2. Voice catalog ─────────────────────────────────────────────────
	if err := a.initCatalog(ctx); err != nil {
		return nil, fmt.Errorf("app: init catalog: %w", err)
	}

	// ── 3. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 4. HTTP ──────────────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

func (a *App) initCatalog(ctx context.Context) error {
	a.catalog = voice.NewCatalog(a.cfg.Voices.Root, voice.WithMetrics(a.metrics))
	if err := a.catalog.Scan(ctx); err != nil {
		return err
	}
	slog.Info("voice catalog loaded", "root", a.catalog.Root(), "voices", a.catalog.Len())

	if !a.cfg.Voices.Watch {
		return nil
	}
	w, err := voice.NewWatcher(a.catalog, voice.WithDebounce(a.cfg.Voices.WatchDebounce))
	if err != nil {
		return err
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

func (a *App) initPipeline() error {
	flavor, err := synth.ParseFlavor(a.cfg.Chatterbox.Flavor)
	if err != nil {
		return err
	}
	if a.synthFactory == nil {
		a.synthFactory = a.chatterboxFactory(flavor)
	}
	synthGW := gateway.NewSynthesis(
		gateway.NewLazy("chatterbox", a.synthFactory, a.metrics),
		flavor, a.cfg.Audio.DefaultSampleRate,
	)

	opts := []pipeline.Option{
		pipeline.WithCacheDir(a.cfg.Cache.Dir),
		pipeline.WithMetrics(a.metrics),
	}

	if a.convertFactory == nil {
		a.convertFactory = a.rvcFactory()
	}
	if a.convertFactory != nil {
		convGW := gateway.NewConversion(gateway.NewLazy("rvc", a.convertFactory, a.metrics))
		opts = append(opts, pipeline.WithConverter(convGW), pipeline.WithBreakers(a.modelBreaker))
	} else {
		slog.Info("timbre conversion disabled", "backend", a.cfg.RVC.Backend)
	}

	a.pipeline = pipeline.New(a.catalog, synthGW, opts...)
	return nil
}

// chatterboxFactory builds the Chatterbox sidecar client for flavor.
func (a *App) chatterboxFactory(flavor synth.Flavor) gateway.Factory[synth.Engine] {
	c := a.cfg.Chatterbox
	return func(ctx context.Context) (synth.Engine, error) {
		e, err := chatterbox.Load(ctx, c.URL, flavor, c.Device, chatterbox.WithTimeout(c.Timeout))
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// modelBreaker builds the circuit breaker guarding conversions with one voice
// model.
func (a *App) modelBreaker(modelPath string) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "rvc:" + modelPath,
		MaxFailures:  a.cfg.RVC.Breaker.MaxFailures,
		ResetTimeout: a.cfg.RVC.Breaker.ResetTimeout,
		OnStateChange: func(from, to resilience.State) {
			slog.Warn("conversion circuit breaker state changed", "model", modelPath, "from", from, "to", to)
		},
	})
}

// rvcFactory builds the configured conversion backend. It returns nil when
// conversion is switched off.
func (a *App) rvcFactory() gateway.Factory[convert.Engine] {
	c := a.cfg.RVC
	switch c.Backend {
	case config.RVCBackendHTTP:
		return func(ctx context.Context) (convert.Engine, error) {
			e, err := rvchttp.Load(ctx, c.URL, rvchttp.WithTimeout(c.Timeout))
			if err != nil {
				return nil, err
			}
			return e, nil
		}
	case config.RVCBackendApplio:
		return func(context.Context) (convert.Engine, error) {
			r, err := applio.New(c.Python, c.ApplioDir)
			if err != nil {
				return nil, err
			}
			return r, nil
		}
	default:
		return nil
	}
}

func (a *App) initHTTP() {
	mux := http.NewServeMux()

	srv := api.New(a.pipeline, a.catalog, api.Config{
		Device:            a.cfg.Chatterbox.Device,
		DefaultSampleRate: a.cfg.Audio.DefaultSampleRate,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		RequestTimeout:    a.cfg.Server.RequestTimeout,
	})
	srv.Register(mux)

	health.New(
		health.ReadableDir("voices", a.cfg.Voices.Root),
		health.WritableDir("cache", a.cfg.Cache.Dir),
	).Register(mux)

	if a.gather != nil {
		mux.Handle("GET /metrics", observe.MetricsHandler(a.gather))
	}

	// The observe middleware sits inside so it sees the routed pattern.
	a.handler = srv.Wrap(observe.Middleware(a.metrics)(mux))
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Catalog returns the voice catalog.
func (a *App) Catalog() *voice.Catalog { return a.catalog }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP on the configured listen address and blocks until ctx is
// cancelled or the listener fails. On cancellation Run returns ctx.Err();
// call Shutdown afterwards to drain in-flight requests.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		errc <- err
	}()
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops accepting requests, waits for in-flight ones until ctx
// expires, then closes the remaining subsystems. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
			}
		}
		if err := a.runClosers(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

func (a *App) runClosers() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
