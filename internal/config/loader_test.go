package config

import (
	"strings"
	"testing"
)

func TestLoadFromReader_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != DefaultListenAddr {
		t.Errorf("listen_addr = %q, want %q", cfg.Server.ListenAddr, DefaultListenAddr)
	}
	if cfg.Server.ReplyCodec != "mp3" {
		t.Errorf("reply_codec = %q, want mp3", cfg.Server.ReplyCodec)
	}
	if cfg.Client.ServerURL != DefaultServerURL {
		t.Errorf("server_url = %q, want %q", cfg.Client.ServerURL, DefaultServerURL)
	}
	if cfg.Client.SilenceThreshold != DefaultSilenceLevel {
		t.Errorf("silence_threshold = %d, want %d", cfg.Client.SilenceThreshold, DefaultSilenceLevel)
	}
	if cfg.Client.SilenceDurationMs != DefaultSilenceMs {
		t.Errorf("silence_duration_ms = %d, want %d", cfg.Client.SilenceDurationMs, DefaultSilenceMs)
	}
	if cfg.Client.QueueDepth != DefaultQueueDepth {
		t.Errorf("queue_depth = %d, want %d", cfg.Client.QueueDepth, DefaultQueueDepth)
	}
	if cfg.Providers.STT.Name != "openai" || cfg.Providers.STT.Model != "whisper-1" {
		t.Errorf("stt defaults = %q/%q, want openai/whisper-1", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	}
	if cfg.Providers.TTS.Voice != "nova" {
		t.Errorf("tts voice = %q, want nova", cfg.Providers.TTS.Voice)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	const doc = `
server:
  listen_addr: ":9000"
  log_level: debug
  reply_codec: opus
  language: de
  temperature: 0.5
  max_tokens: 200
  max_history_turns: 6
client:
  server_url: ws://voice.internal:9000
  silence_threshold: 2000
  silence_duration_ms: 600
  queue_depth: 8
providers:
  stt:
    name: whisper
    model_path: /models/ggml-base.en.bin
  llm:
    name: ollama
    model: llama3.2
  tts:
    model: tts-1
    voice: alloy
    format: pcm
    speed: 1.1
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" || cfg.Server.ReplyCodec != "opus" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Client.SilenceDuration().Milliseconds() != 600 {
		t.Errorf("silence duration = %v, want 600ms", cfg.Client.SilenceDuration())
	}
	if cfg.Providers.STT.Name != "whisper" || cfg.Providers.LLM.Name != "ollama" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listne_addr: \":9000\"\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "bad reply codec",
			mutate:  func(c *Config) { c.Server.ReplyCodec = "flac" },
			wantSub: "reply_codec",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Server.LogLevel = "verbose" },
			wantSub: "log_level",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Client.SilenceThreshold = 40000 },
			wantSub: "silence_threshold",
		},
		{
			name:    "queue depth zero",
			mutate:  func(c *Config) { c.Client.QueueDepth = -1 },
			wantSub: "queue_depth",
		},
		{
			name:    "whisper without model path",
			mutate:  func(c *Config) { c.Providers.STT.Name = "whisper"; c.Providers.STT.ModelPath = "" },
			wantSub: "model_path",
		},
		{
			name:    "unknown llm backend",
			mutate:  func(c *Config) { c.Providers.LLM.Name = "skynet" },
			wantSub: "providers.llm.name",
		},
		{
			name:    "mp3 reply with pcm synthesis",
			mutate:  func(c *Config) { c.Providers.TTS.Format = "pcm" },
			wantSub: "requires providers.tts.format",
		},
		{
			name:    "tts speed out of range",
			mutate:  func(c *Config) { c.Providers.TTS.Speed = 9 },
			wantSub: "speed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			ApplyDefaults(cfg)
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Server.ReplyCodec = "flac"
	cfg.Client.QueueDepth = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"reply_codec", "queue_depth"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q missing %q", err, want)
		}
	}
}
