// Package audio is the codec adapter of chattervc. It turns mono float32
// waveforms into WAV, FLAC or Ogg/Opus payloads, reads and writes the WAV
// files exchanged with the conversion engine, and resamples between rates.
//
// Samples are always mono float32 in the range [-1, 1]. Multi-channel input is
// collapsed with [ToMono] before it enters the rest of the system.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned by [ParseFormat] and [Encode] for container
// names other than wav, flac and ogg.
var ErrUnsupportedFormat = errors.New("audio: unsupported format")

// Format is an output container.
type Format string

const (
	// FormatWAV is 16-bit PCM in a RIFF/WAVE container.
	FormatWAV Format = "wav"

	// FormatFLAC is 16-bit lossless FLAC.
	FormatFLAC Format = "flac"

	// FormatOGG is Opus audio in an Ogg container.
	FormatOGG Format = "ogg"
)

// ParseFormat normalises s and returns the matching [Format].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatWAV, FormatFLAC, FormatOGG:
		return f, nil
	}
	return "", fmt.Errorf("%w %q; use wav|flac|ogg", ErrUnsupportedFormat, s)
}

// MIMEType returns the Content-Type for payloads in format f.
func (f Format) MIMEType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	}
	return "application/octet-stream"
}

// Buffer is decoded audio with its native channel layout. Channels[i] holds
// the samples of channel i; all rows have the same length.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Mono returns the buffer collapsed to a single channel.
func (b Buffer) Mono() []float32 {
	return ToMono(b.Channels)
}
