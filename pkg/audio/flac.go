package audio

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

const (
	// flacBlockSize is the number of samples per FLAC frame.
	flacBlockSize = 4096

	// flacMinBlock is the smallest block size StreamInfo may declare.
	flacMinBlock = 16

	// flacBlockSizeOffset locates StreamInfo's min/max block size fields:
	// after the "fLaC" signature and the 4-byte metadata block header.
	flacBlockSizeOffset = 8
)

// encodeFLAC writes samples as 16-bit mono FLAC using verbatim subframes.
// Clips shorter than 16 samples are padded with silence.
func encodeFLAC(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if len(samples) < flacMinBlock {
		padded := make([]float32, flacMinBlock)
		copy(padded, samples)
		samples = padded
	}
	info := &meta.StreamInfo{
		BlockSizeMin:  flacBlockSize,
		BlockSizeMax:  flacBlockSize,
		SampleRate:    uint32(sampleRate),
		NChannels:     1,
		BitsPerSample: 16,
		NSamples:      uint64(len(samples)),
	}
	enc, err := flac.NewEncoder(w, info)
	if err != nil {
		return fmt.Errorf("audio: create flac encoder: %w", err)
	}

	pcm := toInt16(samples)
	for num, start := uint64(0), 0; start < len(pcm); num, start = num+1, start+flacBlockSize {
		end := min(start+flacBlockSize, len(pcm))
		block := make([]int32, end-start)
		for i, s := range pcm[start:end] {
			block[i] = int32(s)
		}
		f := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(block)),
				SampleRate:        uint32(sampleRate),
				Channels:          frame.ChannelsMono,
				BitsPerSample:     16,
				Num:               num,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   block,
				NSamples:  len(block),
			}},
		}
		if err := enc.WriteFrame(f); err != nil {
			enc.Close()
			return fmt.Errorf("audio: write flac frame %d: %w", num, err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finish flac stream: %w", err)
	}
	return fixBlockSizes(w, min(len(pcm), flacBlockSize))
}

// fixBlockSizes rewrites the StreamInfo block size range. The encoder records
// the short final block as the minimum, which readers reject when it is
// below 16; the final block is exempt from the minimum in a fixed-size stream.
func fixBlockSizes(w io.WriteSeeker, blockSize int) error {
	var field [4]byte
	binary.BigEndian.PutUint16(field[0:2], uint16(blockSize))
	binary.BigEndian.PutUint16(field[2:4], uint16(blockSize))
	if _, err := w.Seek(flacBlockSizeOffset, io.SeekStart); err != nil {
		return fmt.Errorf("audio: seek flac header: %w", err)
	}
	if _, err := w.Write(field[:]); err != nil {
		return fmt.Errorf("audio: patch flac header: %w", err)
	}
	if _, err := w.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("audio: seek flac end: %w", err)
	}
	return nil
}
