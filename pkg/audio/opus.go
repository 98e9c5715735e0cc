package audio

import (
	"encoding/binary"

	"layeh.com/gopus"
)

// Framed Opus container layout:
//
//	magic    [4]byte  "CQOS"
//	version  uint8    currently 1
//	rate     uint32   sample rate in Hz, little-endian
//	channels uint8
//	frames   repeated { length uint16 little-endian, packet [length]byte }
//
// Opus packets carry no self-contained length, so the container length-prefixes
// each one. Every packet encodes exactly opusFrameMs of audio.
const (
	opusMagic      = "CQOS"
	opusVersion    = 1
	opusHeaderSize = 10

	// opusFrameMs is the duration of each Opus frame. 20 ms is the codec's
	// canonical frame size.
	opusFrameMs = 20

	// opusMaxPacket is the per-frame encode buffer size handed to gopus.
	opusMaxPacket = 4000
)

// opusFrameSamples returns the per-channel sample count of one Opus frame at
// the given rate.
func opusFrameSamples(rate int) int {
	return rate * opusFrameMs / 1000
}

// validOpusRate reports whether rate is one of the sample rates the Opus
// codec operates at.
func validOpusRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

// EncodeOpus compresses a clip into the framed Opus container. The final
// partial frame, if any, is zero-padded to a full frame; decoding therefore
// returns a clip whose length is rounded up to a whole number of frames.
func EncodeOpus(clip Clip) ([]byte, error) {
	if len(clip.PCM) == 0 {
		return nil, formatErrorf(CodecOpus, "cannot encode empty clip")
	}
	if !validOpusRate(clip.SampleRate) {
		return nil, formatErrorf(CodecOpus, "sample rate %d is not an opus rate (8/12/16/24/48 kHz)", clip.SampleRate)
	}
	if clip.Channels != 1 && clip.Channels != 2 {
		return nil, formatErrorf(CodecOpus, "channel count %d, opus supports 1 or 2", clip.Channels)
	}

	enc, err := gopus.NewEncoder(clip.SampleRate, clip.Channels, gopus.Audio)
	if err != nil {
		return nil, formatErrorf(CodecOpus, "create encoder: %v", err)
	}

	frameSamples := opusFrameSamples(clip.SampleRate)
	frameValues := frameSamples * clip.Channels // interleaved int16 values per frame

	samples := BytesToInt16(clip.PCM)
	out := make([]byte, 0, opusHeaderSize+len(clip.PCM)/8)
	out = append(out, opusMagic...)
	out = append(out, opusVersion)
	out = binary.LittleEndian.AppendUint32(out, uint32(clip.SampleRate))
	out = append(out, byte(clip.Channels))

	for off := 0; off < len(samples); off += frameValues {
		frame := samples[off:min(off+frameValues, len(samples))]
		if len(frame) < frameValues {
			padded := make([]int16, frameValues)
			copy(padded, frame)
			frame = padded
		}
		packet, err := enc.Encode(frame, frameSamples, opusMaxPacket)
		if err != nil {
			return nil, formatErrorf(CodecOpus, "encode frame at sample %d: %v", off, err)
		}
		if len(packet) > 0xFFFF {
			return nil, formatErrorf(CodecOpus, "packet of %d bytes exceeds frame length field", len(packet))
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(packet)))
		out = append(out, packet...)
	}

	return out, nil
}

// DecodeOpus parses a framed Opus container and decompresses it back to PCM.
// Truncated frames and unknown versions are rejected with a *FormatError.
func DecodeOpus(data []byte) (Clip, error) {
	if len(data) < opusHeaderSize {
		return Clip{}, formatErrorf(CodecOpus, "container too short: %d bytes", len(data))
	}
	if string(data[:4]) != opusMagic {
		return Clip{}, formatErrorf(CodecOpus, "missing container magic")
	}
	if data[4] != opusVersion {
		return Clip{}, formatErrorf(CodecOpus, "unsupported container version %d", data[4])
	}

	rate := int(binary.LittleEndian.Uint32(data[5:9]))
	channels := int(data[9])
	if !validOpusRate(rate) {
		return Clip{}, formatErrorf(CodecOpus, "sample rate %d is not an opus rate", rate)
	}
	if channels != 1 && channels != 2 {
		return Clip{}, formatErrorf(CodecOpus, "channel count %d, opus supports 1 or 2", channels)
	}

	dec, err := gopus.NewDecoder(rate, channels)
	if err != nil {
		return Clip{}, formatErrorf(CodecOpus, "create decoder: %v", err)
	}

	frameSamples := opusFrameSamples(rate)
	var samples []int16

	body := data[opusHeaderSize:]
	for len(body) > 0 {
		if len(body) < 2 {
			return Clip{}, formatErrorf(CodecOpus, "truncated frame length prefix")
		}
		n := int(binary.LittleEndian.Uint16(body))
		body = body[2:]
		if n == 0 {
			return Clip{}, formatErrorf(CodecOpus, "zero-length frame")
		}
		if n > len(body) {
			return Clip{}, formatErrorf(CodecOpus, "frame declares %d bytes but only %d remain", n, len(body))
		}
		pcm, err := dec.Decode(body[:n], frameSamples, false)
		if err != nil {
			return Clip{}, formatErrorf(CodecOpus, "decode frame: %v", err)
		}
		samples = append(samples, pcm...)
		body = body[n:]
	}

	if len(samples) == 0 {
		return Clip{}, formatErrorf(CodecOpus, "container holds no frames")
	}

	return Clip{
		PCM:        Int16ToBytes(samples),
		SampleRate: rate,
		Channels:   channels,
	}, nil
}
