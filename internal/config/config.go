// Package config provides the configuration schema and loader for the
// colloquy voice assistant. One file configures both binaries: the server
// reads the server and providers sections, the client reads the client
// section.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	Providers ProvidersConfig `yaml:"providers"`
}

// ServerConfig holds network and conversation settings for colloquyd.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8765".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// ReplyCodec selects the wire encoding of reply containers:
	// "mp3", "opus", or "wav". Default "mp3".
	ReplyCodec string `yaml:"reply_codec"`

	// SystemPrompt frames the assistant persona. Empty uses the built-in
	// conversational prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Language is the BCP-47 transcription language hint. Default "en".
	Language string `yaml:"language"`

	// Temperature is the reply sampling temperature. Default 0.7.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps reply length. Default 150.
	MaxTokens int `yaml:"max_tokens"`

	// MaxHistoryTurns caps the dialogue messages per completion request.
	// Default 4.
	MaxHistoryTurns int `yaml:"max_history_turns"`
}

// ClientConfig holds capture and transport settings for the colloquy client.
type ClientConfig struct {
	// ServerURL is the WebSocket endpoint of colloquyd.
	// Default "ws://localhost:8765".
	ServerURL string `yaml:"server_url"`

	// LogLevel controls verbosity. Default "info".
	LogLevel LogLevel `yaml:"log_level"`

	// SilenceThreshold is the peak-amplitude level (on the int16 scale)
	// below which a frame counts as silence. Default 1500.
	SilenceThreshold int `yaml:"silence_threshold"`

	// SilenceDurationMs is the trailing-silence gap, in milliseconds, that
	// ends an utterance. Default 800.
	SilenceDurationMs int `yaml:"silence_duration_ms"`

	// QueueDepth bounds how many completed utterances may wait while a
	// request is in flight; the oldest is dropped on overflow. Default 4.
	QueueDepth int `yaml:"queue_depth"`
}

// SilenceDuration returns the configured trailing-silence gap.
func (c ClientConfig) SilenceDuration() time.Duration {
	return time.Duration(c.SilenceDurationMs) * time.Millisecond
}

// ProvidersConfig declares which backend to use for each pipeline stage.
type ProvidersConfig struct {
	STT STTConfig `yaml:"stt"`
	LLM LLMConfig `yaml:"llm"`
	TTS TTSConfig `yaml:"tts"`
}

// STTConfig selects and tunes the transcription backend.
type STTConfig struct {
	// Name is "openai" (hosted whisper) or "whisper" (local whisper.cpp).
	// Default "openai".
	Name string `yaml:"name"`

	// APIKey authenticates hosted backends. Falls back to OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the hosted model name. Default "whisper-1".
	Model string `yaml:"model"`

	// ModelPath is the local whisper.cpp model file. Required for the
	// "whisper" backend; optional for "openai", where it enables local
	// failover when the API is unreachable.
	ModelPath string `yaml:"model_path"`

	// BaseURL overrides the hosted API endpoint.
	BaseURL string `yaml:"base_url"`
}

// LLMConfig selects and tunes the reply-generation backend.
type LLMConfig struct {
	// Name is any backend supported by the anyllm provider: "openai",
	// "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq",
	// "llamacpp", "llamafile". Default "openai".
	Name string `yaml:"name"`

	// APIKey authenticates the backend. Falls back to the backend's usual
	// environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, ...).
	APIKey string `yaml:"api_key"`

	// Model is the model name. Default "gpt-4o-mini".
	Model string `yaml:"model"`

	// BaseURL overrides the backend's default API endpoint.
	BaseURL string `yaml:"base_url"`
}

// TTSConfig selects and tunes the speech-synthesis backend.
type TTSConfig struct {
	// APIKey authenticates the OpenAI speech API. Falls back to
	// OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`

	// Model is the synthesis model. Default "tts-1-hd".
	Model string `yaml:"model"`

	// Voice is the voice name. Default "nova".
	Voice string `yaml:"voice"`

	// Format is the synthesis output format: "mp3", "wav", or "pcm".
	// Default "mp3". A "mp3" reply codec requires "mp3" here.
	Format string `yaml:"format"`

	// Speed is the speaking speed multiplier (0.25 to 4.0). Zero uses the
	// backend default.
	Speed float64 `yaml:"speed"`

	// BaseURL overrides the API endpoint.
	BaseURL string `yaml:"base_url"`
}
