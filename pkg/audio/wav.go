package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"
)

// wavFormat is the format used for every WAV chattervc writes: mono 16-bit.
func wavFormat(sampleRate int) beep.Format {
	return beep.Format{
		SampleRate:  beep.SampleRate(sampleRate),
		NumChannels: 1,
		Precision:   2,
	}
}

// encodeWAV writes samples as 16-bit mono PCM WAV to w.
func encodeWAV(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if err := wav.Encode(w, newSliceStreamer(samples), wavFormat(sampleRate)); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a WAV stream and returns its samples with their native
// channel layout. PCM files go through beep, which exposes at most two
// channels; 32- and 64-bit IEEE-float files keep every channel.
func DecodeWAV(r io.Reader) (Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: read wav: %w", err)
	}
	if buf, ok, err := decodeFloatWAV(data); ok {
		return buf, err
	}

	s, format, err := wav.Decode(bytes.NewReader(data))
	if err != nil {
		return Buffer{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	defer s.Close()

	channels := format.NumChannels
	if channels < 1 {
		channels = 1
	}
	rows := make([][]float32, channels)
	if n := s.Len(); n > 0 {
		for i := range rows {
			rows[i] = make([]float32, 0, n)
		}
	}

	buf := make([][2]float64, 1024)
	for {
		n, ok := s.Stream(buf)
		for i := range n {
			rows[0] = append(rows[0], float32(buf[i][0]))
			if channels > 1 {
				rows[1] = append(rows[1], float32(buf[i][1]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return Buffer{}, fmt.Errorf("audio: read wav samples: %w", err)
	}
	// beep exposes at most two channels.
	if channels > 2 {
		rows = rows[:2]
	}
	return Buffer{Channels: rows, SampleRate: int(format.SampleRate)}, nil
}

// WriteWAVFile writes samples to path as 16-bit mono WAV, creating or
// truncating the file.
func WriteWAVFile(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	if err := encodeWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("audio: close %q: %w", path, err)
	}
	return nil
}

// ReadWAVFile reads the WAV file at path and collapses it to mono.
func ReadWAVFile(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: open %q: %w", path, err)
	}
	defer f.Close()

	buf, err := DecodeWAV(f)
	if err != nil {
		return nil, 0, err
	}
	return buf.Mono(), buf.SampleRate, nil
}
