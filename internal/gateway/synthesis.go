package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/chattervc/pkg/audio"
	"github.com/MrWong99/chattervc/pkg/provider/synth"
)

// SynthesisInput is one base synthesis call. Nil or empty controls are not
// forwarded.
type SynthesisInput struct {
	Text          string
	ReferencePath string
	LanguageID    string
	CFGWeight     *float64
	Exaggeration  *float64
}

// Synthesis is the base synthesis gateway.
type Synthesis struct {
	engine      *Lazy[synth.Engine]
	flavor      synth.Flavor
	defaultRate int
}

// NewSynthesis returns a gateway over engine. flavor selects the capability
// table used to filter controls; defaultRate is reported when the engine
// does not state its output rate.
func NewSynthesis(engine *Lazy[synth.Engine], flavor synth.Flavor, defaultRate int) *Synthesis {
	return &Synthesis{engine: engine, flavor: flavor, defaultRate: defaultRate}
}

// Flavor returns the configured engine flavor.
func (s *Synthesis) Flavor() synth.Flavor { return s.flavor }

// Ready reports whether the engine has been loaded.
func (s *Synthesis) Ready() bool { return s.engine.Ready() }

// Synthesize speaks in.Text in the voice of in.ReferencePath and returns mono
// samples with their rate. Controls the flavor does not accept are dropped.
func (s *Synthesis) Synthesize(ctx context.Context, in SynthesisInput) ([]float32, int, error) {
	eng, err := s.engine.Get(ctx)
	if err != nil {
		return nil, 0, err
	}

	out, err := eng.Generate(ctx, synth.Request{
		Text:          in.Text,
		ReferencePath: in.ReferencePath,
		Controls:      s.controls(in),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("gateway: synthesize: %w", err)
	}
	samples := audio.ToMono(out.Channels)
	if len(samples) == 0 {
		return nil, 0, errors.New("gateway: synthesize: engine returned no audio")
	}

	rate := out.SampleRate
	if rate <= 0 {
		rate = eng.SampleRate()
	}
	if rate <= 0 {
		rate = s.defaultRate
	}
	return samples, rate, nil
}

func (s *Synthesis) controls(in SynthesisInput) map[synth.Control]any {
	c := make(map[synth.Control]any, 3)
	set := func(k synth.Control, v any) {
		if s.flavor.Supports(k) {
			c[k] = v
		}
	}
	if in.LanguageID != "" {
		set(synth.ControlLanguageID, in.LanguageID)
	}
	if in.CFGWeight != nil {
		set(synth.ControlCFGWeight, *in.CFGWeight)
	}
	if in.Exaggeration != nil {
		set(synth.ControlExaggeration, *in.Exaggeration)
	}
	return c
}
