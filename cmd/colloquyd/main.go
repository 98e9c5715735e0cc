// Command colloquyd is the colloquy voice assistant server: it accepts
// WebSocket connections from capture clients, transcribes their utterances,
// generates replies, and streams synthesized speech back.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/internal/observe"
	"github.com/MrWong99/colloquy/internal/pipeline"
	"github.com/MrWong99/colloquy/internal/resilience"
	"github.com/MrWong99/colloquy/internal/server"
	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/llm/anyllm"
	sttopenai "github.com/MrWong99/colloquy/pkg/provider/stt/openai"
	"github.com/MrWong99/colloquy/pkg/provider/stt/whisper"
	ttsopenai "github.com/MrWong99/colloquy/pkg/provider/tts/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Optional .env beside the binary; real environment wins.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "colloquyd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "colloquyd: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("colloquyd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"reply_codec", cfg.Server.ReplyCodec,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "colloquyd"})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	providers, closeProviders, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	defer closeProviders()

	srv, err := server.New(server.Config{
		Addr: cfg.Server.ListenAddr,
		Pipeline: pipeline.Config{
			SystemPrompt:    cfg.Server.SystemPrompt,
			Language:        cfg.Server.Language,
			Temperature:     cfg.Server.Temperature,
			MaxTokens:       cfg.Server.MaxTokens,
			MaxHistoryTurns: cfg.Server.MaxHistoryTurns,
			ReplyCodec:      audio.Codec(cfg.Server.ReplyCodec),
		},
	}, providers)
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildProviders instantiates the STT, LLM, and TTS backends named in cfg.
// The returned close function releases local model resources.
func buildProviders(cfg *config.Config) (server.Providers, func(), error) {
	var (
		ps      server.Providers
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	switch cfg.Providers.STT.Name {
	case "whisper":
		p, err := whisper.New(cfg.Providers.STT.ModelPath)
		if err != nil {
			return ps, closeAll, fmt.Errorf("create stt provider: %w", err)
		}
		closers = append(closers, func() { _ = p.Close() })
		ps.STT = p
	default:
		var opts []sttopenai.Option
		if cfg.Providers.STT.Model != "" {
			opts = append(opts, sttopenai.WithModel(cfg.Providers.STT.Model))
		}
		if cfg.Providers.STT.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(cfg.Providers.STT.BaseURL))
		}
		p, err := sttopenai.New(apiKey(cfg.Providers.STT.APIKey), opts...)
		if err != nil {
			return ps, closeAll, fmt.Errorf("create stt provider: %w", err)
		}
		ps.STT = p
		// A model_path alongside the hosted backend enables local
		// failover when the API is unreachable.
		if cfg.Providers.STT.ModelPath != "" {
			local, err := whisper.New(cfg.Providers.STT.ModelPath)
			if err != nil {
				return ps, closeAll, fmt.Errorf("create stt fallback: %w", err)
			}
			closers = append(closers, func() { _ = local.Close() })
			chain := resilience.NewSTTFallback("openai", p, resilience.BreakerConfig{})
			chain.Add("whisper", local)
			ps.STT = chain
			slog.Info("stt fallback enabled", "backup", "whisper", "model_path", cfg.Providers.STT.ModelPath)
		}
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	var llmOpts []anyllmlib.Option
	if key := cfg.Providers.LLM.APIKey; key != "" {
		llmOpts = append(llmOpts, anyllmlib.WithAPIKey(key))
	}
	if cfg.Providers.LLM.BaseURL != "" {
		llmOpts = append(llmOpts, anyllmlib.WithBaseURL(cfg.Providers.LLM.BaseURL))
	}
	llmP, err := anyllm.New(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model, llmOpts...)
	if err != nil {
		return ps, closeAll, fmt.Errorf("create llm provider: %w", err)
	}
	ps.LLM = llmP
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	ttsOpts := []ttsopenai.Option{
		ttsopenai.WithModel(cfg.Providers.TTS.Model),
		ttsopenai.WithVoice(cfg.Providers.TTS.Voice),
		ttsopenai.WithFormat(ttsopenai.Format(cfg.Providers.TTS.Format)),
	}
	if cfg.Providers.TTS.Speed != 0 {
		ttsOpts = append(ttsOpts, ttsopenai.WithSpeed(cfg.Providers.TTS.Speed))
	}
	if cfg.Providers.TTS.BaseURL != "" {
		ttsOpts = append(ttsOpts, ttsopenai.WithBaseURL(cfg.Providers.TTS.BaseURL))
	}
	ttsP, err := ttsopenai.New(apiKey(cfg.Providers.TTS.APIKey), ttsOpts...)
	if err != nil {
		return ps, closeAll, fmt.Errorf("create tts provider: %w", err)
	}
	ps.TTS = ttsP
	slog.Info("provider created", "kind", "tts", "voice", cfg.Providers.TTS.Voice)

	return ps, closeAll, nil
}

// apiKey resolves a configured key, falling back to OPENAI_API_KEY.
func apiKey(configured string) string {
	if configured != "" {
		return configured
	}
	return os.Getenv("OPENAI_API_KEY")
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
