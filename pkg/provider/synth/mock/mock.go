// Package mock provides a test double for the synth.Engine interface.
//
// Example:
//
//	e := &mock.Engine{
//	    GenerateResult: synth.Output{Channels: [][]float32{{0, 0.1}}, SampleRate: 24000},
//	}
//	out, _ := e.Generate(ctx, synth.Request{Text: "hi"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chattervc/pkg/provider/synth"
)

var _ synth.Engine = (*Engine)(nil)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Request is the request passed to Generate.
	Request synth.Request
}

// Engine is a mock implementation of synth.Engine.
type Engine struct {
	mu sync.Mutex

	// GenerateResult is returned by Generate when GenerateErr is nil.
	GenerateResult synth.Output

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// GenerateFunc, if set, replaces the canned result entirely.
	GenerateFunc func(ctx context.Context, req synth.Request) (synth.Output, error)

	// Rate is returned by SampleRate.
	Rate int

	// GenerateCalls records every call to Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns the configured result.
func (e *Engine) Generate(ctx context.Context, req synth.Request) (synth.Output, error) {
	e.mu.Lock()
	e.GenerateCalls = append(e.GenerateCalls, GenerateCall{Ctx: ctx, Request: req})
	fn, out, err := e.GenerateFunc, e.GenerateResult, e.GenerateErr
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return out, err
}

// SampleRate returns Rate.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Rate
}

// CallCount returns the number of Generate calls so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.GenerateCalls)
}
