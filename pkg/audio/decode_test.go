package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/mewkiz/flac"

	"github.com/MrWong99/chattervc/pkg/audio"
)

func TestEncodeFLAC_Decodes(t *testing.T) {
	tests := []struct {
		name      string
		n         int
		wantN     int
		wantBlock uint16
	}{
		{"shorter than a minimum block", 10, 16, 16},
		{"exactly one block", 4096, 4096, 4096},
		{"one sample tail", 4097, 4097, 4096},
		{"four sample tail", 4100, 4100, 4096},
		{"one second", 24000, 24000, 4096},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := audio.Encode(sine(tt.n), 24000, audio.FormatFLAC)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			stream, err := flac.New(bytes.NewReader(data))
			if err != nil {
				t.Fatalf("flac.New: %v", err)
			}
			defer stream.Close()

			info := stream.Info
			if info.BlockSizeMin != tt.wantBlock || info.BlockSizeMax != tt.wantBlock {
				t.Errorf("block sizes = %d..%d, want %d", info.BlockSizeMin, info.BlockSizeMax, tt.wantBlock)
			}
			if info.SampleRate != 24000 || info.NChannels != 1 || info.NSamples != uint64(tt.wantN) {
				t.Errorf("stream info = %d Hz, %d ch, %d samples", info.SampleRate, info.NChannels, info.NSamples)
			}

			got := 0
			for {
				f, err := stream.ParseNext()
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					t.Fatalf("ParseNext after %d samples: %v", got, err)
				}
				got += int(f.BlockSize)
			}
			if got != tt.wantN {
				t.Errorf("decoded %d samples, want %d", got, tt.wantN)
			}
		})
	}
}

// floatWAV builds a little-endian IEEE-float WAV file the way torchaudio
// writes float tensors. extensible wraps the tag in WAVE_FORMAT_EXTENSIBLE.
func floatWAV(rate, channels int, frames [][]float32, extensible bool) []byte {
	var fmtBody bytes.Buffer
	tag := uint16(3)
	if extensible {
		tag = 0xFFFE
	}
	w := func(v any) { _ = binary.Write(&fmtBody, binary.LittleEndian, v) }
	w(tag)
	w(uint16(channels))
	w(uint32(rate))
	w(uint32(rate * channels * 4))
	w(uint16(channels * 4))
	w(uint16(32))
	if extensible {
		w(uint16(22))  // cbSize
		w(uint16(32))  // valid bits
		w(uint32(0x4)) // channel mask
		w(uint16(3))   // sub-format tag
		w([14]byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	}

	var data bytes.Buffer
	for _, fr := range frames {
		for _, s := range fr {
			_ = binary.Write(&data, binary.LittleEndian, math.Float32bits(s))
		}
	}

	var out bytes.Buffer
	chunk := func(id string, body []byte) {
		out.WriteString(id)
		_ = binary.Write(&out, binary.LittleEndian, uint32(len(body)))
		out.Write(body)
	}
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+8+fmtBody.Len()+8+data.Len()))
	out.WriteString("WAVE")
	chunk("fmt ", fmtBody.Bytes())
	chunk("data", data.Bytes())
	return out.Bytes()
}

func TestDecodeWAV_Float32(t *testing.T) {
	want := []float32{0, 0.25, -0.5, 0.999, -1}
	frames := make([][]float32, len(want))
	for i, s := range want {
		frames[i] = []float32{s}
	}

	for _, extensible := range []bool{false, true} {
		buf, err := audio.DecodeWAV(bytes.NewReader(floatWAV(24000, 1, frames, extensible)))
		if err != nil {
			t.Fatalf("extensible=%v: DecodeWAV: %v", extensible, err)
		}
		if buf.SampleRate != 24000 || len(buf.Channels) != 1 {
			t.Fatalf("extensible=%v: got %d Hz, %d channels", extensible, buf.SampleRate, len(buf.Channels))
		}
		if len(buf.Channels[0]) != len(want) {
			t.Fatalf("extensible=%v: got %d samples, want %d", extensible, len(buf.Channels[0]), len(want))
		}
		for i, s := range want {
			if buf.Channels[0][i] != s {
				t.Errorf("extensible=%v: sample %d = %v, want %v", extensible, i, buf.Channels[0][i], s)
			}
		}
	}
}

func TestDecodeWAV_Float32Stereo(t *testing.T) {
	frames := [][]float32{{0.1, -0.1}, {0.2, -0.2}, {0.3, -0.3}}
	buf, err := audio.DecodeWAV(bytes.NewReader(floatWAV(48000, 2, frames, false)))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(buf.Channels) != 2 || len(buf.Channels[1]) != 3 {
		t.Fatalf("got %d channels", len(buf.Channels))
	}
	if buf.Channels[0][2] != 0.3 || buf.Channels[1][2] != -0.3 {
		t.Errorf("channels not de-interleaved: %v", buf.Channels)
	}
	mono := buf.Mono()
	if math.Abs(float64(mono[1])) > 1e-6 {
		t.Errorf("mono mix of opposite channels = %v, want 0", mono[1])
	}
}

func TestEncodedRate(t *testing.T) {
	tests := []struct {
		format audio.Format
		in     int
		want   int
	}{
		{audio.FormatWAV, 44100, 44100},
		{audio.FormatFLAC, 22050, 22050},
		{audio.FormatOGG, 24000, 24000},
		{audio.FormatOGG, 16000, 16000},
		{audio.FormatOGG, 44100, 48000},
		{audio.FormatOGG, 22050, 48000},
	}
	for _, tt := range tests {
		if got := audio.EncodedRate(tt.format, tt.in); got != tt.want {
			t.Errorf("EncodedRate(%s, %d) = %d, want %d", tt.format, tt.in, got, tt.want)
		}
	}
}
