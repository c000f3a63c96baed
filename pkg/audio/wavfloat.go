package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// WAV format tags.
const (
	wavTagFloat      = 3
	wavTagExtensible = 0xFFFE
)

// decodeFloatWAV decodes IEEE-float WAV, the default torchaudio writes for
// float tensors and which beep's decoder refuses. ok is false when data is not
// a float WAV; the caller then hands it to beep.
func decodeFloatWAV(data []byte) (buf Buffer, ok bool, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Buffer{}, false, nil
	}

	var channels, rate, bits int
	haveFmt := false
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		// Streaming writers leave the data size unset; take what is there.
		size = min(size, len(body))
		body = body[:size]

		switch id {
		case "fmt ":
			if size < 16 {
				return Buffer{}, false, nil
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			if tag == wavTagExtensible && size >= 26 {
				// The sub-format GUID starts with the real format tag.
				tag = binary.LittleEndian.Uint16(body[24:26])
			}
			if tag != wavTagFloat {
				return Buffer{}, false, nil
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			rate = int(binary.LittleEndian.Uint32(body[4:8]))
			bits = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Buffer{}, false, nil
			}
			buf, err := floatSamples(body, channels, rate, bits)
			return buf, true, err
		}
		pos += 8 + size + size&1
	}
	if haveFmt {
		return Buffer{}, true, errors.New("audio: decode wav: float wav has no data chunk")
	}
	return Buffer{}, false, nil
}

// floatSamples de-interleaves little-endian 32- or 64-bit float frames.
func floatSamples(body []byte, channels, rate, bits int) (Buffer, error) {
	if channels < 1 || rate <= 0 {
		return Buffer{}, fmt.Errorf("audio: decode wav: invalid float wav header (%d channels, %d Hz)", channels, rate)
	}
	if bits != 32 && bits != 64 {
		return Buffer{}, fmt.Errorf("audio: decode wav: unsupported float width %d bits", bits)
	}
	width := bits / 8
	frames := len(body) / (width * channels)

	rows := make([][]float32, channels)
	for c := range rows {
		rows[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			off := (i*channels + c) * width
			if width == 4 {
				rows[c][i] = math.Float32frombits(binary.LittleEndian.Uint32(body[off:]))
			} else {
				rows[c][i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(body[off:])))
			}
		}
	}
	return Buffer{Channels: rows, SampleRate: rate}, nil
}
