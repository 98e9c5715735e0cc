// Package device provides microphone capture and speaker playback through
// PortAudio. It is the only package touching audio hardware; everything else
// operates on raw PCM.
//
// Call [Init] once before any capture or playback and [Terminate] on
// shutdown.
package device

import (
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/MrWong99/colloquy/pkg/audio"
)

// DefaultFrameSize is the capture frame length in samples. At 16 kHz one
// frame is 64 ms of audio, which gives the segmenter enough resolution for
// its trailing-silence gap.
const DefaultFrameSize = 1024

// Init initialises the PortAudio host API. Must be called once per process
// before opening any stream.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("device: initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases the PortAudio host API.
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("device: terminate portaudio: %w", err)
	}
	return nil
}

// Capture reads fixed-size int16 frames from the default input device.
// Not safe for concurrent use; a single goroutine should own the capture
// loop.
type Capture struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewCapture opens the default input device for mono capture at the given
// sample rate. frameSize <= 0 selects DefaultFrameSize.
func NewCapture(sampleRate, frameSize int) (*Capture, error) {
	if sampleRate <= 0 {
		return nil, errors.New("device: sampleRate must be positive")
	}
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}

	c := &Capture{buf: make([]int16, frameSize)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), frameSize, c.buf)
	if err != nil {
		return nil, fmt.Errorf("device: open capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: start capture stream: %w", err)
	}
	c.stream = stream
	return c, nil
}

// ReadFrame blocks until one full frame has been captured and returns it as
// little-endian 16-bit PCM. The returned slice is freshly allocated and safe
// to retain.
func (c *Capture) ReadFrame() ([]byte, error) {
	if err := c.stream.Read(); err != nil {
		return nil, fmt.Errorf("device: read frame: %w", err)
	}
	return audio.Int16ToBytes(c.buf), nil
}

// Close stops and releases the capture stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Stop()
	if cerr := c.stream.Close(); err == nil {
		err = cerr
	}
	c.stream = nil
	return err
}

// playChunk is the number of samples written to the output stream per call.
const playChunk = 1024

// Play sends a decoded clip to the default output device and blocks until
// the last chunk has been written. A stream is opened at the clip's own rate
// and channel count so replies need no resampling.
func Play(clip audio.Clip) error {
	if len(clip.PCM) == 0 {
		return nil
	}
	if clip.SampleRate <= 0 || clip.Channels <= 0 {
		return errors.New("device: clip must carry sample rate and channels")
	}

	buf := make([]int16, playChunk*clip.Channels)
	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), playChunk, buf)
	if err != nil {
		return fmt.Errorf("device: open playback stream: %w", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("device: start playback stream: %w", err)
	}
	defer stream.Stop()

	samples := audio.BytesToInt16(clip.PCM)
	for off := 0; off < len(samples); off += len(buf) {
		n := copy(buf, samples[off:])
		// Zero-pad the tail so the final write is a full chunk.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		if err := stream.Write(); err != nil {
			return fmt.Errorf("device: write frame: %w", err)
		}
	}
	return nil
}
