package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] for fields left empty in the file.
const (
	DefaultListenAddr   = ":8765"
	DefaultServerURL    = "ws://localhost:8765"
	DefaultReplyCodec   = "mp3"
	DefaultTTSFormat    = "mp3"
	DefaultSTTName      = "openai"
	DefaultSTTModel     = "whisper-1"
	DefaultLLMName      = "openai"
	DefaultLLMModel     = "gpt-4o-mini"
	DefaultTTSModel     = "tts-1-hd"
	DefaultTTSVoice     = "nova"
	DefaultSilenceLevel = 1500
	DefaultSilenceMs    = 800
	DefaultQueueDepth   = 4
)

// validSTTNames lists recognised transcription backends.
var validSTTNames = []string{"openai", "whisper"}

// validLLMNames lists backends supported by the anyllm provider.
var validLLMNames = []string{"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// Load reads the YAML configuration file at path, applies defaults, and
// returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills empty fields with the package defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ReplyCodec == "" {
		cfg.Server.ReplyCodec = DefaultReplyCodec
	}

	if cfg.Client.ServerURL == "" {
		cfg.Client.ServerURL = DefaultServerURL
	}
	if cfg.Client.LogLevel == "" {
		cfg.Client.LogLevel = LogInfo
	}
	if cfg.Client.SilenceThreshold == 0 {
		cfg.Client.SilenceThreshold = DefaultSilenceLevel
	}
	if cfg.Client.SilenceDurationMs == 0 {
		cfg.Client.SilenceDurationMs = DefaultSilenceMs
	}
	if cfg.Client.QueueDepth == 0 {
		cfg.Client.QueueDepth = DefaultQueueDepth
	}

	if cfg.Providers.STT.Name == "" {
		cfg.Providers.STT.Name = DefaultSTTName
	}
	if cfg.Providers.STT.Model == "" {
		cfg.Providers.STT.Model = DefaultSTTModel
	}
	if cfg.Providers.LLM.Name == "" {
		cfg.Providers.LLM.Name = DefaultLLMName
	}
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = DefaultLLMModel
	}
	if cfg.Providers.TTS.Model == "" {
		cfg.Providers.TTS.Model = DefaultTTSModel
	}
	if cfg.Providers.TTS.Voice == "" {
		cfg.Providers.TTS.Voice = DefaultTTSVoice
	}
	if cfg.Providers.TTS.Format == "" {
		cfg.Providers.TTS.Format = DefaultTTSFormat
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Client.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("client.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Client.LogLevel))
	}

	switch cfg.Server.ReplyCodec {
	case "mp3", "opus", "wav":
	default:
		errs = append(errs, fmt.Errorf("server.reply_codec %q is invalid; valid values: mp3, opus, wav", cfg.Server.ReplyCodec))
	}
	if cfg.Server.Temperature < 0 || cfg.Server.Temperature > 2 {
		errs = append(errs, fmt.Errorf("server.temperature %.2f is out of range [0, 2]", cfg.Server.Temperature))
	}
	if cfg.Server.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("server.max_tokens %d must not be negative", cfg.Server.MaxTokens))
	}
	if cfg.Server.MaxHistoryTurns < 0 {
		errs = append(errs, fmt.Errorf("server.max_history_turns %d must not be negative", cfg.Server.MaxHistoryTurns))
	}

	if cfg.Client.SilenceThreshold < 0 || cfg.Client.SilenceThreshold > 32767 {
		errs = append(errs, fmt.Errorf("client.silence_threshold %d is out of range [0, 32767]", cfg.Client.SilenceThreshold))
	}
	if cfg.Client.SilenceDurationMs < 0 {
		errs = append(errs, fmt.Errorf("client.silence_duration_ms %d must not be negative", cfg.Client.SilenceDurationMs))
	}
	if cfg.Client.QueueDepth < 1 {
		errs = append(errs, fmt.Errorf("client.queue_depth %d must be at least 1", cfg.Client.QueueDepth))
	}

	if !slices.Contains(validSTTNames, cfg.Providers.STT.Name) {
		errs = append(errs, fmt.Errorf("providers.stt.name %q is invalid; valid values: %v", cfg.Providers.STT.Name, validSTTNames))
	}
	if cfg.Providers.STT.Name == "whisper" && cfg.Providers.STT.ModelPath == "" {
		errs = append(errs, fmt.Errorf("providers.stt.model_path is required when providers.stt.name is \"whisper\""))
	}
	if !slices.Contains(validLLMNames, cfg.Providers.LLM.Name) {
		errs = append(errs, fmt.Errorf("providers.llm.name %q is invalid; valid values: %v", cfg.Providers.LLM.Name, validLLMNames))
	}

	switch cfg.Providers.TTS.Format {
	case "mp3", "wav", "pcm":
	default:
		errs = append(errs, fmt.Errorf("providers.tts.format %q is invalid; valid values: mp3, wav, pcm", cfg.Providers.TTS.Format))
	}
	if cfg.Providers.TTS.Speed != 0 && (cfg.Providers.TTS.Speed < 0.25 || cfg.Providers.TTS.Speed > 4.0) {
		errs = append(errs, fmt.Errorf("providers.tts.speed %.2f is out of range [0.25, 4.0]", cfg.Providers.TTS.Speed))
	}

	// An mp3 reply is passed through from the synthesis backend unchanged,
	// so the backend must produce mp3.
	if cfg.Server.ReplyCodec == "mp3" && cfg.Providers.TTS.Format != "mp3" {
		errs = append(errs, fmt.Errorf("server.reply_codec \"mp3\" requires providers.tts.format \"mp3\", got %q", cfg.Providers.TTS.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %w", errors.Join(errs...))
	}
	return nil
}
