package server_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/colloquy/internal/pipeline"
	"github.com/MrWong99/colloquy/internal/server"
	"github.com/MrWong99/colloquy/pkg/audio"
	llmmock "github.com/MrWong99/colloquy/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/colloquy/pkg/provider/stt/mock"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
	ttsmock "github.com/MrWong99/colloquy/pkg/provider/tts/mock"
)

func testUtterance(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 1600*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i+1] = 0x0B
	}
	wav, err := audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

func pcmSpeech() tts.Speech {
	return tts.Speech{
		Data:       make([]byte, 1200*2),
		Codec:      audio.CodecPCM,
		SampleRate: 24000,
		Channels:   1,
	}
}

// startServer spins up an in-process HTTP server around the handler and
// returns its ws:// URL.
func startServer(t *testing.T, sttP *sttmock.Provider, llmP *llmmock.Provider) string {
	t.Helper()
	s, err := server.New(
		server.Config{Pipeline: pipeline.Config{ReplyCodec: audio.CodecWAV}},
		server.Providers{STT: sttP, LLM: llmP, TTS: &ttsmock.Provider{Speech: pcmSpeech()}},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	httpSrv := httptest.NewServer(s.Handler())
	t.Cleanup(httpSrv.Close)
	return "ws" + strings.TrimPrefix(httpSrv.URL, "http")
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func TestSession_UtteranceReplyCycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := startServer(t,
		&sttmock.Provider{Texts: []string{"hello"}},
		&llmmock.Provider{Replies: []string{"hi there"}},
	)
	conn := dial(t, ctx, url)

	if err := conn.Write(ctx, websocket.MessageBinary, testUtterance(t)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	typ, reply, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if typ != websocket.MessageBinary {
		t.Errorf("message type = %v, want binary", typ)
	}
	if c, err := audio.DetectCodec(reply); err != nil || c != audio.CodecWAV {
		t.Fatalf("reply codec = %v (err %v), want wav", c, err)
	}
}

func TestSession_EmptyTranscriptProducesNoReply(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// First utterance transcribes to nothing, second to real text. The
	// client must receive exactly one reply, for the second utterance.
	llmP := &llmmock.Provider{Replies: []string{"answer"}}
	url := startServer(t,
		&sttmock.Provider{Texts: []string{"", "a question"}},
		llmP,
	)
	conn := dial(t, ctx, url)

	utterance := testUtterance(t)
	if err := conn.Write(ctx, websocket.MessageBinary, utterance); err != nil {
		t.Fatalf("Write #1: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, utterance); err != nil {
		t.Fatalf("Write #2: %v", err)
	}

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(llmP.Calls) != 1 {
		t.Errorf("llm calls = %d, want 1", len(llmP.Calls))
	}
	if got := llmP.Calls[0].Req.Messages[0].Content; got != "a question" {
		t.Errorf("completion for %q, want the second utterance", got)
	}
}

func TestSession_MalformedUtteranceKeepsSessionAlive(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := startServer(t,
		&sttmock.Provider{Texts: []string{"still here"}},
		&llmmock.Provider{Replies: []string{"yes"}},
	)
	conn := dial(t, ctx, url)

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("garbage")); err != nil {
		t.Fatalf("Write garbage: %v", err)
	}
	if err := conn.Write(ctx, websocket.MessageBinary, testUtterance(t)); err != nil {
		t.Fatalf("Write utterance: %v", err)
	}

	// The malformed payload is dropped server-side; the valid one answers.
	if _, reply, err := conn.Read(ctx); err != nil || len(reply) == 0 {
		t.Fatalf("Read after garbage: reply=%d bytes err=%v", len(reply), err)
	}
}

func TestSession_FreshHistoryPerConnection(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	llmP := &llmmock.Provider{Replies: []string{"r1", "r2"}}
	url := startServer(t,
		&sttmock.Provider{Texts: []string{"first session", "second session"}},
		llmP,
	)

	for i := 0; i < 2; i++ {
		conn := dial(t, ctx, url)
		if err := conn.Write(ctx, websocket.MessageBinary, testUtterance(t)); err != nil {
			t.Fatalf("Write session %d: %v", i+1, err)
		}
		if _, _, err := conn.Read(ctx); err != nil {
			t.Fatalf("Read session %d: %v", i+1, err)
		}
		conn.Close(websocket.StatusNormalClosure, "")
	}

	if len(llmP.Calls) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(llmP.Calls))
	}
	// The second session must not see the first session's turns.
	if got := len(llmP.Calls[1].Req.Messages); got != 1 {
		t.Errorf("second session window = %d messages, want 1", got)
	}
	if got := llmP.Calls[1].Req.Messages[0].Content; got != "second session" {
		t.Errorf("second session saw %q, want its own utterance only", got)
	}
}

func TestNew_RequiresProviders(t *testing.T) {
	_, err := server.New(server.Config{}, server.Providers{})
	if err == nil {
		t.Fatal("expected error for missing providers")
	}
}
