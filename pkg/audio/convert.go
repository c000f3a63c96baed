package audio

import (
	"fmt"

	"github.com/gopxl/beep"
)

// resampleQuality is the beep interpolation window. 4 is beep's recommended
// balance between speed and aliasing for speech.
const resampleQuality = 4

// ToMono averages all channels into one. A single channel is returned as-is
// (no copy). Rows shorter than the first are treated as zero-padded.
func ToMono(channels [][]float32) []float32 {
	switch len(channels) {
	case 0:
		return nil
	case 1:
		return channels[0]
	}
	n := len(channels[0])
	out := make([]float32, n)
	for _, ch := range channels {
		for i := 0; i < n && i < len(ch); i++ {
			out[i] += ch[i]
		}
	}
	scale := 1 / float32(len(channels))
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Resample converts samples from srcRate to dstRate. When the rates match the
// input slice is returned unchanged, so the no-op case is bit-identical.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	if srcRate == dstRate {
		return samples, nil
	}
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid resample rates %d -> %d", srcRate, dstRate)
	}
	if len(samples) == 0 {
		return []float32{}, nil
	}

	r := beep.Resample(resampleQuality, beep.SampleRate(srcRate), beep.SampleRate(dstRate), newSliceStreamer(samples))

	expected := int(int64(len(samples)) * int64(dstRate) / int64(srcRate))
	out := make([]float32, 0, expected+1)
	buf := make([][2]float64, 512)
	for {
		n, ok := r.Stream(buf)
		for i := range n {
			out = append(out, float32(buf[i][0]))
		}
		if !ok {
			break
		}
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("audio: resample: %w", err)
	}
	return out, nil
}

// toInt16 converts float samples to clamped 16-bit PCM values.
func toInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}
