// Package client implements the capture side of the voice loop: microphone
// frames run through the amplitude segmenter, completed utterances are
// shipped to the server as WAV containers over a persistent WebSocket, and
// decoded replies are handed to the playback sink.
//
// The client runs two goroutines: a capture loop that never blocks on the
// network, and a session loop that owns the connection. Completed utterances
// cross between them through a bounded queue; when the queue is full the
// oldest waiting utterance is dropped so the conversation stays current.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/audio/vad"
)

// CaptureSampleRate is the microphone sample rate. Utterances are framed as
// 16 kHz mono WAV, which is what transcription backends expect.
const CaptureSampleRate = 16000

// defaultReconnectDelay is the pause between connection attempts.
const defaultReconnectDelay = time.Second

// captureRetryDelay is the pause after a transient capture read failure
// before the next read attempt.
const captureRetryDelay = 100 * time.Millisecond

// State is the connection state of the session loop.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Conn is the minimal transport surface the session loop needs. It exists so
// tests can substitute an in-memory connection.
type Conn interface {
	// Read blocks until the next binary message arrives.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one binary message.
	Write(ctx context.Context, data []byte) error

	// Close tears the connection down.
	Close() error
}

// DialFunc opens a transport connection to the server.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// wsConn adapts *websocket.Conn to Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return nil, err
		}
		if typ != websocket.MessageBinary {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageBinary, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}

// Dial is the production DialFunc backed by coder/websocket.
func Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(32 << 20)
	return &wsConn{conn: conn}, nil
}

// CaptureSource delivers fixed-size PCM frames from the microphone.
// device.Capture satisfies this.
type CaptureSource interface {
	ReadFrame() ([]byte, error)
}

// Config tunes a Client.
type Config struct {
	// ServerURL is the WebSocket endpoint of the server.
	ServerURL string

	// SilenceThreshold is the segmenter's peak-amplitude threshold.
	SilenceThreshold int16

	// SilenceDuration is the trailing-silence gap ending an utterance.
	SilenceDuration time.Duration

	// QueueDepth bounds the utterance queue. Zero means 4.
	QueueDepth int

	// ReconnectDelay is the pause between connection attempts. Zero means
	// one second.
	ReconnectDelay time.Duration
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithDial overrides the transport dialer. Used in tests.
func WithDial(dial DialFunc) Option {
	return func(c *Client) { c.dial = dial }
}

// WithPlayer overrides the playback sink. Used in tests and by mains that
// want to pipe replies elsewhere.
func WithPlayer(play func(audio.Clip) error) Option {
	return func(c *Client) { c.play = play }
}

// WithClock overrides the segmenter clock. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.clock = now }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client owns the capture loop, the utterance queue, and the session loop.
type Client struct {
	cfg    Config
	source CaptureSource
	dial   DialFunc
	play   func(audio.Clip) error
	clock  func() time.Time
	log    *slog.Logger

	state atomic.Int32
	queue chan []byte
}

// New creates a Client reading frames from source. The playback sink
// defaults to discarding replies; mains pass device playback via WithPlayer.
func New(cfg Config, source CaptureSource, opts ...Option) (*Client, error) {
	if source == nil {
		return nil, errors.New("client: capture source must not be nil")
	}
	if cfg.ServerURL == "" {
		return nil, errors.New("client: server URL must not be empty")
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 4
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}

	c := &Client{
		cfg:    cfg,
		source: source,
		dial:   Dial,
		play:   func(audio.Clip) error { return nil },
		log:    slog.Default(),
		queue:  make(chan []byte, cfg.QueueDepth),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		c.log.Info("connection state changed", "state", s)
	}
}

// Run executes the capture and session loops until ctx is cancelled or the
// capture source ends. Reply playback happens inside the session loop, so a
// long reply delays the next request but never capture.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// When the capture source ends, the session loop has nothing left
		// to send and stops too.
		defer cancel()
		return c.captureLoop(ctx)
	})
	g.Go(func() error { return c.sessionLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// captureLoop feeds microphone frames through the segmenter and enqueues
// completed utterances. Read errors are treated as transient and retried;
// only io.EOF ends the loop cleanly, discarding any partial utterance.
func (c *Client) captureLoop(ctx context.Context) error {
	segOpts := []vad.Option{}
	if c.clock != nil {
		segOpts = append(segOpts, vad.WithClock(c.clock))
	}
	seg := vad.New(vad.Config{
		Threshold:       c.cfg.SilenceThreshold,
		SilenceDuration: c.cfg.SilenceDuration,
	}, segOpts...)

	c.log.Info("listening", "sample_rate", CaptureSampleRate)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := c.source.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			// Transient device faults (overflows, dropped reads) must not
			// end the session; the segmenter state stays intact and the
			// next read is retried after a short pause.
			c.log.Warn("capture read failed, retrying", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(captureRetryDelay):
			}
			continue
		}

		switch ev := seg.Observe(frame); ev.Type {
		case vad.EventSpeechStart:
			c.log.Info("speech detected")
		case vad.EventUtteranceReady:
			c.log.Info("utterance complete",
				"duration", audio.Clip{PCM: ev.Utterance, SampleRate: CaptureSampleRate, Channels: 1}.Duration())
			c.enqueue(ev.Utterance)
		}
	}
}

// enqueue adds an utterance to the bounded queue, dropping the oldest
// waiting one on overflow.
func (c *Client) enqueue(utterance []byte) {
	for {
		select {
		case c.queue <- utterance:
			return
		default:
		}
		select {
		case dropped := <-c.queue:
			c.log.Warn("utterance queue full, dropping oldest", "dropped_bytes", len(dropped))
		default:
		}
	}
}

// sessionLoop owns the connection: it dials with a fixed retry delay, sends
// one utterance at a time, and plays the reply. Any transport error tears
// the connection down and starts a fresh connect cycle; the in-flight
// utterance is lost with it.
func (c *Client) sessionLoop(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	for {
		conn, err := c.connect(ctx)
		if err != nil {
			return err
		}

		err = c.converse(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.setState(StateDisconnected)
		c.log.Warn("connection lost, reconnecting", "error", err)
	}
}

// connect dials until it succeeds or ctx is cancelled.
func (c *Client) connect(ctx context.Context) (Conn, error) {
	for {
		c.setState(StateConnecting)
		conn, err := c.dial(ctx, c.cfg.ServerURL)
		if err == nil {
			c.setState(StateConnected)
			c.log.Info("connected", "url", c.cfg.ServerURL)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("connect failed, retrying", "error", err, "delay", c.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// converse runs request/reply cycles on one connection until a transport
// error occurs or ctx is cancelled.
func (c *Client) converse(ctx context.Context, conn Conn) error {
	for {
		var utterance []byte
		select {
		case <-ctx.Done():
			return ctx.Err()
		case utterance = <-c.queue:
		}

		wav, err := audio.EncodeWAV(audio.Clip{
			PCM:        utterance,
			SampleRate: CaptureSampleRate,
			Channels:   1,
		})
		if err != nil {
			// Can only happen for an empty utterance; skip it.
			c.log.Error("failed to frame utterance", "error", err)
			continue
		}

		c.log.Info("processing utterance", "bytes", len(wav))
		if err := conn.Write(ctx, wav); err != nil {
			return fmt.Errorf("send utterance: %w", err)
		}

		reply, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("await reply: %w", err)
		}

		clip, err := audio.Decode(reply)
		if err != nil {
			c.log.Error("undecodable reply, skipping", "error", err, "bytes", len(reply))
			continue
		}

		c.log.Info("playing reply", "duration", clip.Duration())
		if err := c.play(clip); err != nil {
			c.log.Error("playback failed", "error", err)
		}
	}
}
