// Package synth defines the contract for base speech synthesis engines.
//
// A synthesis engine turns text plus a reference audio prompt into a waveform
// that imitates the prompt's voice. Engines come in flavors that accept
// different optional controls; the set each flavor understands is declared in
// a static capability table rather than discovered at runtime, so callers can
// drop controls an engine would reject before making the call.
//
// Implementations must be safe for concurrent use unless they document
// otherwise.
package synth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnknownFlavor is returned by [ParseFlavor] for unrecognised flavor names.
var ErrUnknownFlavor = errors.New("synth: unknown engine flavor")

// Flavor selects which engine variant is loaded.
type Flavor string

const (
	// FlavorEnglish is the English-only Chatterbox model.
	FlavorEnglish Flavor = "english"

	// FlavorMultilingual is the multilingual Chatterbox model, which also
	// accepts a language tag.
	FlavorMultilingual Flavor = "multilingual"
)

// Control names an optional synthesis parameter.
type Control string

const (
	// ControlLanguageID is a language tag such as "en" or "de".
	ControlLanguageID Control = "language_id"

	// ControlCFGWeight is the classifier-free guidance weight in [0, 1].
	ControlCFGWeight Control = "cfg_weight"

	// ControlExaggeration is the expressiveness weight in [0, 1].
	ControlExaggeration Control = "exaggeration"
)

// capabilities lists the optional controls each flavor accepts.
var capabilities = map[Flavor][]Control{
	FlavorEnglish:      {ControlCFGWeight, ControlExaggeration},
	FlavorMultilingual: {ControlLanguageID, ControlCFGWeight, ControlExaggeration},
}

// ParseFlavor normalises s and returns the matching [Flavor].
func ParseFlavor(s string) (Flavor, error) {
	f := Flavor(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := capabilities[f]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownFlavor, s)
	}
	return f, nil
}

// Controls returns the optional controls flavor f accepts. The returned slice
// must not be modified.
func (f Flavor) Controls() []Control {
	return capabilities[f]
}

// Supports reports whether flavor f accepts control c.
func (f Flavor) Supports(c Control) bool {
	return slices.Contains(capabilities[f], c)
}

// Request is one synthesis call.
type Request struct {
	// Text is the utterance to speak. Never empty.
	Text string

	// ReferencePath is the audio prompt that sets the voice.
	ReferencePath string

	// Controls holds the optional parameters to forward. Callers should only
	// include controls the engine's flavor supports.
	Controls map[Control]any
}

// Output is the raw waveform produced by an engine in its native layout.
type Output struct {
	// Channels holds one row per channel. Most engines return a single row.
	Channels [][]float32

	// SampleRate is the rate the engine produced. Zero means unknown.
	SampleRate int
}

// Engine is a loaded base synthesis engine.
type Engine interface {
	// Generate synthesises req.Text in the voice of req.ReferencePath.
	Generate(ctx context.Context, req Request) (Output, error)

	// SampleRate returns the engine's native output rate, or zero if unknown.
	SampleRate() int
}
