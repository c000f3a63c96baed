package gateway

import (
	"context"
	"fmt"

	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

// Conversion is the timbre conversion gateway.
type Conversion struct {
	engine *Lazy[convert.Engine]
}

// NewConversion returns a gateway over engine.
func NewConversion(engine *Lazy[convert.Engine]) *Conversion {
	return &Conversion{engine: engine}
}

// Ready reports whether the engine has been loaded.
func (c *Conversion) Ready() bool { return c.engine.Ready() }

// Convert converts the WAV at in with the voice model at modelPath and writes
// the result to out. indexPath may be empty. Absent params take the engine
// defaults. Every error wraps [ErrConversionFailed].
func (c *Conversion) Convert(ctx context.Context, in, out, modelPath, indexPath string, params convert.Params) error {
	eng, err := c.engine.Get(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	job := convert.Job{
		InputPath:  in,
		OutputPath: out,
		ModelPath:  modelPath,
		IndexPath:  indexPath,
		Settings:   params.Resolve(),
	}
	if err := eng.Convert(ctx, job); err != nil {
		return fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return nil
}
