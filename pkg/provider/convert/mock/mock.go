// Package mock provides a test double for the convert.Engine interface.
//
// By default Convert succeeds without touching the filesystem. Set ConvertFunc
// to write an output file, or ConvertErr / PanicValue to simulate failures.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

var _ convert.Engine = (*Engine)(nil)

// ConvertCall records a single invocation of Convert.
type ConvertCall struct {
	// Ctx is the context passed to Convert.
	Ctx context.Context
	// Job is the job passed to Convert.
	Job convert.Job
}

// Engine is a mock implementation of convert.Engine.
type Engine struct {
	mu sync.Mutex

	// ConvertErr, if non-nil, is returned from Convert.
	ConvertErr error

	// ConvertFunc, if set, runs after the call is recorded and its error is
	// returned instead of ConvertErr.
	ConvertFunc func(ctx context.Context, job convert.Job) error

	// PanicValue, if non-nil, makes Convert panic with it.
	PanicValue any

	// ConvertCalls records every call to Convert in order.
	ConvertCalls []ConvertCall
}

// Convert records the call and returns the configured outcome.
func (e *Engine) Convert(ctx context.Context, job convert.Job) error {
	e.mu.Lock()
	e.ConvertCalls = append(e.ConvertCalls, ConvertCall{Ctx: ctx, Job: job})
	fn, err, p := e.ConvertFunc, e.ConvertErr, e.PanicValue
	e.mu.Unlock()

	if p != nil {
		panic(p)
	}
	if fn != nil {
		return fn(ctx, job)
	}
	return err
}

// CallCount returns the number of Convert calls so far.
func (e *Engine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ConvertCalls)
}
