package audio_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/MrWong99/chattervc/pkg/audio"
)

func TestToMono(t *testing.T) {
	t.Run("single channel is returned as-is", func(t *testing.T) {
		in := []float32{0.1, -0.2, 0.3}
		got := audio.ToMono([][]float32{in})
		if &got[0] != &in[0] {
			t.Error("expected the original slice to be returned")
		}
	})

	t.Run("multiple channels are averaged", func(t *testing.T) {
		got := audio.ToMono([][]float32{{0.2, -0.4}, {0.4, 0.0}})
		want := []float32{0.3, -0.2}
		if len(got) != len(want) {
			t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
		}
		for i := range want {
			if math.Abs(float64(got[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
			}
		}
	})

	t.Run("no channels yields empty", func(t *testing.T) {
		if got := audio.ToMono(nil); len(got) != 0 {
			t.Errorf("got %d samples, want 0", len(got))
		}
	})
}

func TestResample(t *testing.T) {
	t.Run("same rate is identity", func(t *testing.T) {
		in := []float32{0.1, 0.2, 0.3}
		got, err := audio.Resample(in, 24000, 24000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if &got[0] != &in[0] {
			t.Error("expected the original slice to be returned")
		}
	})

	t.Run("doubling rate roughly doubles length", func(t *testing.T) {
		in := make([]float32, 2400)
		for i := range in {
			in[i] = float32(math.Sin(float64(i) / 10))
		}
		got, err := audio.Resample(in, 24000, 48000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := len(got) - 4800; diff < -16 || diff > 16 {
			t.Errorf("got %d samples, want about 4800", len(got))
		}
	})

	t.Run("invalid rate", func(t *testing.T) {
		if _, err := audio.Resample([]float32{0}, 0, 48000); err == nil {
			t.Error("expected error for zero source rate")
		}
	})
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    audio.Format
		wantErr bool
	}{
		{in: "wav", want: audio.FormatWAV},
		{in: " FLAC ", want: audio.FormatFLAC},
		{in: "Ogg", want: audio.FormatOGG},
		{in: "xml", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := audio.ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, audio.ErrUnsupportedFormat) {
					t.Fatalf("got err %v, want ErrUnsupportedFormat", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatMIMEType(t *testing.T) {
	for f, want := range map[audio.Format]string{
		audio.FormatWAV:  "audio/wav",
		audio.FormatFLAC: "audio/flac",
		audio.FormatOGG:  "audio/ogg",
	} {
		if got := f.MIMEType(); got != want {
			t.Errorf("%s: got %q, want %q", f, got, want)
		}
	}
}

func sine(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 * float32(math.Sin(2*math.Pi*440*float64(i)/24000))
	}
	return out
}

func TestEncode_Magic(t *testing.T) {
	tests := []struct {
		format audio.Format
		magic  string
	}{
		{audio.FormatWAV, "RIFF"},
		{audio.FormatFLAC, "fLaC"},
		{audio.FormatOGG, "OggS"},
	}
	samples := sine(24000)
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			data, err := audio.Encode(samples, 24000, tt.format)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.HasPrefix(data, []byte(tt.magic)) {
				t.Errorf("payload starts with %q, want %q", data[:min(4, len(data))], tt.magic)
			}
		})
	}
}

func TestEncode_UnsupportedFormat(t *testing.T) {
	_, err := audio.Encode([]float32{0}, 24000, audio.Format("xml"))
	if !errors.Is(err, audio.ErrUnsupportedFormat) {
		t.Fatalf("got err %v, want ErrUnsupportedFormat", err)
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	samples := sine(4800)
	data, err := audio.Encode(samples, 24000, audio.FormatWAV)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if buf.SampleRate != 24000 {
		t.Errorf("sample rate: got %d, want 24000", buf.SampleRate)
	}
	got := buf.Mono()
	if len(got) != len(samples) {
		t.Fatalf("length: got %d, want %d", len(got), len(samples))
	}
	for i := range samples {
		if math.Abs(float64(got[i]-samples[i])) > 1.0/16384 {
			t.Fatalf("sample %d: got %f, want %f", i, got[i], samples[i])
		}
	}
}

func TestWAVFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tts_test.wav")
	samples := sine(1200)
	if err := audio.WriteWAVFile(path, samples, 22050); err != nil {
		t.Fatalf("WriteWAVFile: %v", err)
	}
	got, rate, err := audio.ReadWAVFile(path)
	if err != nil {
		t.Fatalf("ReadWAVFile: %v", err)
	}
	if rate != 22050 {
		t.Errorf("rate: got %d, want 22050", rate)
	}
	if len(got) != len(samples) {
		t.Errorf("length: got %d, want %d", len(got), len(samples))
	}
}

func TestReadWAVFile_Missing(t *testing.T) {
	if _, _, err := audio.ReadWAVFile(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
