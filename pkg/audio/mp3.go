package audio

import (
	"bytes"
	"io"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decompresses an MPEG audio stream to a mono PCM clip.
//
// The decoder always produces interleaved 16-bit stereo at the stream's native
// rate; since every reply on the wire is mono source material, the stereo
// output is downmixed back to a single channel before returning.
func DecodeMP3(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, formatErrorf(CodecMP3, "empty payload")
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, formatErrorf(CodecMP3, "open stream: %v", err)
	}

	stereo, err := io.ReadAll(dec)
	if err != nil {
		return Clip{}, formatErrorf(CodecMP3, "decode stream: %v", err)
	}
	if len(stereo) == 0 {
		return Clip{}, formatErrorf(CodecMP3, "stream holds no audio")
	}

	return Clip{
		PCM:        StereoToMono(stereo),
		SampleRate: dec.SampleRate(),
		Channels:   1,
	}, nil
}
