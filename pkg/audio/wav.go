package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/go-audio/wav"
)

// wavHeader is the 44-byte RIFF/WAVE header written by EncodeWAV: a single
// PCM data chunk directly after a 16-byte fmt chunk.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// EncodeWAV wraps a clip into a RIFF/WAVE container with a 16-bit PCM data
// chunk. The output is deterministic: identical clips produce byte-identical
// containers.
func EncodeWAV(clip Clip) ([]byte, error) {
	if len(clip.PCM) == 0 {
		return nil, formatErrorf(CodecWAV, "cannot encode empty clip")
	}
	if len(clip.PCM)%2 != 0 {
		return nil, formatErrorf(CodecWAV, "odd PCM byte count %d", len(clip.PCM))
	}
	if clip.SampleRate <= 0 {
		return nil, formatErrorf(CodecWAV, "sample rate %d must be positive", clip.SampleRate)
	}
	if clip.Channels <= 0 {
		return nil, formatErrorf(CodecWAV, "channel count %d must be positive", clip.Channels)
	}

	dataSize := uint32(len(clip.PCM))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(clip.Channels),
		SampleRate:    uint32(clip.SampleRate),
		ByteRate:      uint32(clip.SampleRate) * uint32(clip.Channels) * BitDepth / 8,
		BlockAlign:    uint16(clip.Channels) * BitDepth / 8,
		BitsPerSample: BitDepth,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(clip.PCM)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, formatErrorf(CodecWAV, "write header: %v", err)
	}
	buf.Write(clip.PCM)
	return buf.Bytes(), nil
}

// DecodeWAV parses a RIFF/WAVE container and returns the contained PCM.
// Chunk walking is handled by go-audio/wav, so containers with extended fmt
// chunks or extra metadata chunks before "data" decode fine. Only 16-bit
// uncompressed PCM is accepted; anything else is rejected with a
// *FormatError.
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, formatErrorf(CodecWAV, "not a RIFF/WAVE container")
	}
	if dec.WavAudioFormat != 1 {
		return Clip{}, formatErrorf(CodecWAV, "unsupported audio format %d, only PCM is supported", dec.WavAudioFormat)
	}
	if dec.BitDepth != BitDepth {
		return Clip{}, formatErrorf(CodecWAV, "unsupported bit depth %d, only %d-bit is supported", dec.BitDepth, BitDepth)
	}
	if dec.NumChans == 0 {
		return Clip{}, formatErrorf(CodecWAV, "zero channel count")
	}
	if dec.SampleRate == 0 {
		return Clip{}, formatErrorf(CodecWAV, "zero sample rate")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, formatErrorf(CodecWAV, "read data chunk: %v", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return Clip{}, formatErrorf(CodecWAV, "empty data chunk")
	}
	// The chunk reader tolerates truncation by returning a short buffer.
	if dec.PCMSize > 0 && len(buf.Data)*2 != dec.PCMSize {
		return Clip{}, formatErrorf(CodecWAV, "data chunk declares %d bytes but only %d decoded", dec.PCMSize, len(buf.Data)*2)
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		v := int16(s)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}

	return Clip{
		PCM:        pcm,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}
