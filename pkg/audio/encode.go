package audio

import "fmt"

// Encode serialises mono samples at sampleRate into format f and returns the
// payload. Unknown formats yield [ErrUnsupportedFormat].
func Encode(samples []float32, sampleRate int, f Format) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	buf := &seekBuffer{}
	var err error
	switch f {
	case FormatWAV:
		err = encodeWAV(buf, samples, sampleRate)
	case FormatFLAC:
		err = encodeFLAC(buf, samples, sampleRate)
	case FormatOGG:
		err = encodeOgg(buf, samples, sampleRate)
	default:
		return nil, fmt.Errorf("%w %q; use wav|flac|ogg", ErrUnsupportedFormat, string(f))
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodedRate is the sample rate a payload in format f carries when Encode is
// given sampleRate. Ogg/Opus only takes 8, 12, 16, 24 or 48 kHz; any other
// rate is encoded at 48 kHz.
func EncodedRate(f Format, sampleRate int) int {
	if f == FormatOGG && !opusRates[sampleRate] {
		return opusFallbackRate
	}
	return sampleRate
}
