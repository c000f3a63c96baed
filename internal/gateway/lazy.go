// Package gateway fronts the heavyweight inference engines.
//
// Engines are expensive to bring up (model weights are loaded into GPU
// memory), so each one sits behind a [Lazy] holder that constructs it on first
// use and then hands out the same instance forever. Failures are not cached:
// if a sidecar is down at first use, the next request tries again.
//
// The gateways do not serialise inference calls. Chatterbox and RVC sidecars
// queue concurrent requests on their own, and every Applio invocation is a
// separate process.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/chattervc/internal/observe"
)

var (
	// ErrEngineUnavailable is returned when an engine cannot be constructed.
	ErrEngineUnavailable = errors.New("gateway: engine unavailable")

	// ErrConversionFailed wraps every timbre conversion failure.
	ErrConversionFailed = errors.New("gateway: conversion failed")
)

// Factory constructs an engine.
type Factory[T any] func(ctx context.Context) (T, error)

// Lazy holds one engine constructed on first use. After a successful
// construction [Lazy.Get] is a single atomic load.
type Lazy[T any] struct {
	name    string
	factory Factory[T]
	metrics *observe.Metrics

	ready atomic.Pointer[T]
	mu    sync.Mutex
}

// NewLazy returns a holder that builds its engine with factory. name labels
// logs and metrics. A nil metrics uses [observe.DefaultMetrics].
func NewLazy[T any](name string, factory Factory[T], metrics *observe.Metrics) *Lazy[T] {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Lazy[T]{name: name, factory: factory, metrics: metrics}
}

// Name returns the engine label.
func (l *Lazy[T]) Name() string { return l.name }

// Ready reports whether the engine has been constructed.
func (l *Lazy[T]) Ready() bool { return l.ready.Load() != nil }

// Get returns the engine, constructing it if needed. Concurrent first callers
// block on one construction; if it fails they each retry in turn. Errors wrap
// [ErrEngineUnavailable].
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if p := l.ready.Load(); p != nil {
		return *p, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if p := l.ready.Load(); p != nil {
		return *p, nil
	}

	log := observe.Logger(ctx).With("engine", l.name)
	log.Info("loading engine")
	start := time.Now()

	// A caller that goes away must not abort a load other requests wait on.
	eng, err := l.factory(context.WithoutCancel(ctx))
	if err != nil {
		l.metrics.RecordEngineInit(ctx, l.name, "error")
		log.Error("engine load failed", "err", err, "elapsed", time.Since(start))
		var zero T
		return zero, fmt.Errorf("gateway: load %s: %w: %w", l.name, ErrEngineUnavailable, err)
	}
	l.metrics.RecordEngineInit(ctx, l.name, "ok")
	log.Info("engine loaded", "elapsed", time.Since(start))

	l.ready.Store(&eng)
	return eng, nil
}

// EnsureReady constructs the engine if needed and discards it.
func (l *Lazy[T]) EnsureReady(ctx context.Context) error {
	_, err := l.Get(ctx)
	return err
}
