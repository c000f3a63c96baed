// Package convert defines the contract for timbre conversion engines (RVC).
//
// Conversion is file based: the engine reads a WAV from InputPath and writes
// the converted audio to OutputPath. This is the interface the RVC inference
// stacks expose, so it is kept rather than hidden behind in-memory buffers.
//
// Implementations must be safe for concurrent use unless they document
// otherwise.
package convert

import "context"

// Engine defaults, applied by [Params.Resolve] when a field is absent.
const (
	DefaultPitch          = 0
	DefaultIndexRate      = 0.75
	DefaultProtect        = 0.33
	DefaultF0Method       = "rmvpe"
	DefaultVolumeEnvelope = 1.0
	DefaultSID            = 0
)

// Params are the caller-supplied conversion controls. Nil pointers and empty
// strings mean "use the engine default".
type Params struct {
	// Pitch is the shift in semitones.
	Pitch *int
	// IndexRate blends the feature index in [0, 1].
	IndexRate *float64
	// Protect guards voiceless consonants in [0, 0.5].
	Protect *float64
	// F0Method names the pitch estimator, for example "rmvpe" or "crepe".
	F0Method string
	// VolumeEnvelope blends the output loudness envelope in [0, 1].
	VolumeEnvelope *float64
	// SplitAudio processes the input in segments.
	SplitAudio bool
	// F0Autotune snaps the estimated pitch to notes.
	F0Autotune bool
	// CleanAudio applies noise reduction to the output.
	CleanAudio bool
	// SID selects the speaker slot in multi-speaker models.
	SID *int
}

// Settings are fully resolved conversion controls.
type Settings struct {
	Pitch          int     `json:"pitch"`
	IndexRate      float64 `json:"index_rate"`
	Protect        float64 `json:"protect"`
	F0Method       string  `json:"f0_method"`
	VolumeEnvelope float64 `json:"volume_envelope"`
	SplitAudio     bool    `json:"split_audio"`
	F0Autotune     bool    `json:"f0_autotune"`
	CleanAudio     bool    `json:"clean_audio"`
	SID            int     `json:"sid"`
}

// Resolve substitutes engine defaults for every absent field.
func (p Params) Resolve() Settings {
	s := Settings{
		Pitch:          DefaultPitch,
		IndexRate:      DefaultIndexRate,
		Protect:        DefaultProtect,
		F0Method:       DefaultF0Method,
		VolumeEnvelope: DefaultVolumeEnvelope,
		SplitAudio:     p.SplitAudio,
		F0Autotune:     p.F0Autotune,
		CleanAudio:     p.CleanAudio,
		SID:            DefaultSID,
	}
	if p.Pitch != nil {
		s.Pitch = *p.Pitch
	}
	if p.IndexRate != nil {
		s.IndexRate = *p.IndexRate
	}
	if p.Protect != nil {
		s.Protect = *p.Protect
	}
	if p.F0Method != "" {
		s.F0Method = p.F0Method
	}
	if p.VolumeEnvelope != nil {
		s.VolumeEnvelope = *p.VolumeEnvelope
	}
	if p.SID != nil {
		s.SID = *p.SID
	}
	return s
}

// Job describes one file-to-file conversion.
type Job struct {
	// InputPath is the WAV to convert.
	InputPath string
	// OutputPath is where the engine writes the converted WAV.
	OutputPath string
	// ModelPath is the .pth voice model.
	ModelPath string
	// IndexPath is the optional feature index. Empty when the voice has none.
	IndexPath string
	// Settings are the resolved controls.
	Settings Settings
}

// Engine is a loaded timbre conversion engine.
type Engine interface {
	// Convert runs job and returns once OutputPath has been written.
	Convert(ctx context.Context, job Job) error
}
