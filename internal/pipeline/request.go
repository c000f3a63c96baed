// Package pipeline runs a speech request through voice resolution, base
// synthesis, optional timbre conversion, resampling and encoding.
//
// Base synthesis is mandatory: when it fails the request fails. Timbre
// conversion is best effort: any failure there, including a panic in the
// engine client, is logged and the request completes with the stage-one
// audio.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MrWong99/chattervc/pkg/audio"
	"github.com/MrWong99/chattervc/pkg/provider/convert"
)

// Error taxonomy. The HTTP boundary maps these to 400, 404 and 500.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrNotFound        = errors.New("not found")
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// Engine names accepted in [Request.Engine].
const (
	EngineChatterbox    = "chatterbox"
	EngineChatterboxRVC = "chatterbox_rvc"
)

// MaxSampleRate bounds the requested output rate.
const MaxSampleRate = 192000

// Request is one speech request with all defaults already applied.
type Request struct {
	// Engine is chatterbox or chatterbox_rvc. Other names behave like
	// chatterbox.
	Engine string
	// Text is the utterance. Surrounding whitespace is ignored.
	Text string
	// Voice is the voice selector: a name, an id, a folder or "random".
	Voice string
	// Format is wav, flac or ogg.
	Format string
	// SampleRate is the output rate in Hz.
	SampleRate int

	LanguageID   string
	CFGWeight    float64
	Exaggeration float64

	// Conversion holds the timbre conversion controls.
	Conversion convert.Params
}

// WantsConversion reports whether the request asks for the conversion stage.
// The engine name must match exactly, ignoring case.
func (r Request) WantsConversion() bool {
	return strings.EqualFold(r.Engine, EngineChatterboxRVC)
}

// Validate checks the request before any inference work and returns the
// parsed output format. Errors wrap [ErrBadRequest].
func (r Request) Validate() (audio.Format, error) {
	if strings.TrimSpace(r.Text) == "" {
		return "", fmt.Errorf("%w: field 'input' (text) is empty", ErrBadRequest)
	}
	format, err := audio.ParseFormat(r.Format)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if r.SampleRate <= 0 || r.SampleRate > MaxSampleRate {
		return "", fmt.Errorf("%w: sample_rate must be in (0, %d], got %d", ErrBadRequest, MaxSampleRate, r.SampleRate)
	}

	var errs []error
	check := func(name string, v *float64, hi float64) {
		if v != nil && !inRange(*v, 0, hi) {
			errs = append(errs, fmt.Errorf("%s must be in [0, %g], got %g", name, hi, *v))
		}
	}
	check("cfg_weight", &r.CFGWeight, 1)
	check("exaggeration", &r.Exaggeration, 1)
	check("rvc_index_rate", r.Conversion.IndexRate, 1)
	check("rvc_protect", r.Conversion.Protect, 0.5)
	check("rvc_volume_envelope", r.Conversion.VolumeEnvelope, 1)
	if len(errs) > 0 {
		return "", fmt.Errorf("%w: %w", ErrBadRequest, errors.Join(errs...))
	}
	return format, nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

// Result is the outcome of a successful run.
type Result struct {
	// Samples is the final mono waveform at SampleRate.
	Samples    []float32
	SampleRate int

	// Payload is Samples encoded in the requested format.
	Payload  []byte
	MIMEType string
	// PayloadSampleRate is the rate inside Payload. It differs from
	// SampleRate only for ogg at rates Opus cannot encode.
	PayloadSampleRate int

	// ConversionApplied is true only when timbre conversion succeeded.
	ConversionApplied bool

	// VoiceName is the concrete voice used, which matters for "random".
	VoiceName string

	// Engine echoes the requested engine name.
	Engine string

	// SynthesisSampleRate is the native rate of the base synthesis output.
	SynthesisSampleRate int
}
