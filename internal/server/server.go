// Package server hosts the voice interaction endpoint: a WebSocket listener
// that runs one conversation session per connection.
//
// Each accepted connection gets its own session goroutine with a fresh
// pipeline and empty dialogue history; sessions share the provider backends
// but nothing else. Alongside the WebSocket endpoint the server exposes
// /metrics, /healthz, and /readyz on the same listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/colloquy/internal/health"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/pipeline"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	"github.com/MrWong99/colloquy/pkg/provider/stt"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8765"

	// defaultMaxUtteranceBytes bounds a single incoming utterance container.
	defaultMaxUtteranceBytes = 16 << 20

	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
)

// Config tunes the server.
type Config struct {
	// Addr is the TCP listen address. Defaults to DefaultAddr.
	Addr string

	// MaxUtteranceBytes caps the size of a single incoming message. Zero
	// means the built-in default.
	MaxUtteranceBytes int64

	// Pipeline is the per-session pipeline configuration.
	Pipeline pipeline.Config
}

// Providers bundles the capability backends shared by all sessions.
type Providers struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithMetrics overrides the metrics instance. Defaults to
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger overrides the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// Server accepts WebSocket connections and runs one session per connection.
type Server struct {
	cfg       Config
	providers Providers
	metrics   *observe.Metrics
	log       *slog.Logger
}

// New creates a Server. All three providers must be non-nil.
func New(cfg Config, providers Providers, opts ...Option) (*Server, error) {
	if providers.STT == nil || providers.LLM == nil || providers.TTS == nil {
		return nil, errors.New("server: stt, llm, and tts providers must all be non-nil")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxUtteranceBytes <= 0 {
		cfg.MaxUtteranceBytes = defaultMaxUtteranceBytes
	}

	s := &Server{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}

	// Validate the pipeline config up front so a bad reply codec fails at
	// startup, not on the first connection.
	if _, err := pipeline.New(providers.STT, providers.LLM, providers.TTS, cfg.Pipeline,
		pipeline.WithMetrics(s.metrics), pipeline.WithLogger(s.log)); err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	return s, nil
}

// Handler returns the HTTP handler serving the WebSocket endpoint at "/"
// plus the operational endpoints. Exposed for in-process tests.
func (s *Server) Handler() http.Handler {
	hc := health.New()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", hc.Healthz)
	mux.HandleFunc("/readyz", hc.Readyz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:        s.cfg.Addr,
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info("server listening", "addr", s.cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// handleWS upgrades the connection and runs the session loop to completion.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Clients are trusted local tools, not browsers.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "session ended")
	conn.SetReadLimit(s.cfg.MaxUtteranceBytes)

	ctx := r.Context()
	s.metrics.ActiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveSessions.Add(ctx, -1)

	s.log.Info("session started", "remote", r.RemoteAddr)
	err = s.session(ctx, conn)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
		s.log.Info("session ended", "remote", r.RemoteAddr)
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		s.log.Warn("session failed", "remote", r.RemoteAddr, "error", err)
	}
}

// session runs the per-connection request loop. Per-utterance pipeline
// failures are logged and the loop continues; transport failures end the
// session.
func (s *Server) session(ctx context.Context, conn *websocket.Conn) error {
	pl, err := pipeline.New(s.providers.STT, s.providers.LLM, s.providers.TTS, s.cfg.Pipeline,
		pipeline.WithMetrics(s.metrics), pipeline.WithLogger(s.log))
	if err != nil {
		return err
	}

	for {
		typ, payload, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageBinary {
			s.log.Warn("ignoring non-binary message", "type", typ)
			continue
		}

		reply, err := pl.Handle(ctx, payload)
		if err != nil {
			s.log.Error("utterance processing failed", "error", err)
			continue
		}
		if reply == nil {
			continue
		}
		if err := conn.Write(ctx, websocket.MessageBinary, reply); err != nil {
			return fmt.Errorf("write reply: %w", err)
		}
	}
}
