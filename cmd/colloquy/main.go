// Command colloquy is the capture client: it records the microphone,
// segments speech into utterances, ships them to colloquyd, and plays the
// spoken replies.
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

	"github.com/joho/godotenv"

	"github.com/MrWong99/colloquy/internal/client"
	"github.com/MrWong99/colloquy/internal/config"
	"github.com/MrWong99/colloquy/pkg/audio/device"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	serverURL := flag.String("server", "", "override the server WebSocket URL")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// The client can run on defaults alone; only a malformed file is fatal.
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "colloquy: %v\n", err)
			return 1
		}
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}

	slog.SetDefault(newLogger(cfg.Client.LogLevel))
	slog.Info("colloquy starting", "server_url", cfg.Client.ServerURL)

	if err := device.Init(); err != nil {
		slog.Error("audio init failed", "err", err)
		return 1
	}
	defer func() {
		if err := device.Terminate(); err != nil {
			slog.Warn("audio terminate error", "err", err)
		}
	}()

	capture, err := device.NewCapture(client.CaptureSampleRate, device.DefaultFrameSize)
	if err != nil {
		slog.Error("microphone open failed", "err", err)
		return 1
	}
	defer capture.Close()

	c, err := client.New(client.Config{
		ServerURL:        cfg.Client.ServerURL,
		SilenceThreshold: int16(cfg.Client.SilenceThreshold),
		SilenceDuration:  cfg.Client.SilenceDuration(),
		QueueDepth:       cfg.Client.QueueDepth,
	}, capture, client.WithPlayer(device.Play))
	if err != nil {
		slog.Error("client init failed", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("ready — speak into the microphone, press Ctrl+C to quit")
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
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
