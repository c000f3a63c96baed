package audio

import (
	"errors"
	"io"
)

// sliceStreamer exposes a mono float32 slice as a [beep.Streamer]. Each sample
// is duplicated into both beep channels.
type sliceStreamer struct {
	data []float32
	pos  int
}

func newSliceStreamer(data []float32) *sliceStreamer {
	return &sliceStreamer{data: data}
}

// Stream fills buf with the next samples. It returns ok=false once the slice
// is exhausted.
func (s *sliceStreamer) Stream(buf [][2]float64) (int, bool) {
	if s.pos >= len(s.data) {
		return 0, false
	}
	n := 0
	for n < len(buf) && s.pos < len(s.data) {
		v := float64(s.data[s.pos])
		buf[n][0] = v
		buf[n][1] = v
		n++
		s.pos++
	}
	return n, true
}

// Err always returns nil; a slice cannot fail.
func (s *sliceStreamer) Err() error { return nil }

// seekBuffer is an in-memory io.WriteSeeker. The WAV and FLAC encoders seek
// back to patch header sizes once the payload length is known.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	end := b.pos + len(p)
	if end > len(b.buf) {
		if end > cap(b.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, b.buf)
			b.buf = grown
		} else {
			b.buf = b.buf[:end]
		}
	}
	copy(b.buf[b.pos:], p)
	b.pos = end
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("audio: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	b.pos = int(abs)
	return abs, nil
}

// Bytes returns everything written so far.
func (b *seekBuffer) Bytes() []byte {
	return b.buf
}
