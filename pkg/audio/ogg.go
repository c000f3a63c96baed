package audio

import (
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"
)

const (
	// opusFrameMs is the Opus frame duration.
	opusFrameMs = 20

	// opusGranuleStep is the granule increment per frame. Ogg/Opus granule
	// positions always count 48 kHz samples regardless of the input rate.
	opusGranuleStep = 48000 * opusFrameMs / 1000

	// opusMaxPacket bounds a single encoded Opus packet.
	opusMaxPacket = 4000

	// opusPayloadType is the dynamic RTP payload type conventionally used for Opus.
	opusPayloadType = 111
)

// opusFallbackRate is used for rates libopus does not accept.
const opusFallbackRate = 48000

// opusRates are the input rates libopus accepts.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// encodeOgg writes samples as mono Opus packets in an Ogg container. Rates
// Opus cannot take directly are resampled to 48 kHz first.
func encodeOgg(w io.Writer, samples []float32, sampleRate int) error {
	if rate := EncodedRate(FormatOGG, sampleRate); rate != sampleRate {
		resampled, err := Resample(samples, sampleRate, rate)
		if err != nil {
			return err
		}
		samples, sampleRate = resampled, rate
	}

	enc, err := gopus.NewEncoder(sampleRate, 1, gopus.Audio)
	if err != nil {
		return fmt.Errorf("audio: create opus encoder: %w", err)
	}
	ow, err := oggwriter.NewWith(w, uint32(sampleRate), 1)
	if err != nil {
		return fmt.Errorf("audio: create ogg writer: %w", err)
	}

	frameSize := sampleRate * opusFrameMs / 1000
	pcm := toInt16(samples)
	chunk := make([]int16, frameSize)
	var (
		seq uint16
		ts  uint32
	)
	for start := 0; start < len(pcm); start += frameSize {
		// The final frame is zero-padded to a full 20 ms.
		n := copy(chunk, pcm[start:])
		clear(chunk[n:])

		packet, err := enc.Encode(chunk, frameSize, opusMaxPacket)
		if err != nil {
			ow.Close()
			return fmt.Errorf("audio: opus encode: %w", err)
		}
		err = ow.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    opusPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           1,
			},
			Payload: packet,
		})
		if err != nil {
			ow.Close()
			return fmt.Errorf("audio: write ogg page: %w", err)
		}
		seq++
		ts += opusGranuleStep
	}
	if err := ow.Close(); err != nil {
		return fmt.Errorf("audio: close ogg stream: %w", err)
	}
	return nil
}
