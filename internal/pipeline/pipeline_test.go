package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/colloquy/internal/pipeline"
	"github.com/MrWong99/colloquy/pkg/audio"
	"github.com/MrWong99/colloquy/pkg/provider/llm"
	llmmock "github.com/MrWong99/colloquy/pkg/provider/llm/mock"
	sttmock "github.com/MrWong99/colloquy/pkg/provider/stt/mock"
	"github.com/MrWong99/colloquy/pkg/provider/tts"
	ttsmock "github.com/MrWong99/colloquy/pkg/provider/tts/mock"
)

// testUtterance returns a small valid WAV container holding 100 ms of
// non-silence at 16 kHz mono.
func testUtterance(t *testing.T) []byte {
	t.Helper()
	pcm := make([]byte, 1600*2)
	for i := 0; i < len(pcm); i += 2 {
		pcm[i] = 0xB8
		pcm[i+1] = 0x0B // 3000 little-endian
	}
	wav, err := audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return wav
}

// pcmSpeech returns mock synthesized speech: 50 ms of raw PCM at 24 kHz mono.
func pcmSpeech() tts.Speech {
	return tts.Speech{
		Data:       make([]byte, 1200*2),
		Codec:      audio.CodecPCM,
		SampleRate: 24000,
		Channels:   1,
	}
}

func newTestPipeline(t *testing.T, sttP *sttmock.Provider, llmP *llmmock.Provider, ttsP *ttsmock.Provider) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(sttP, llmP, ttsP, pipeline.Config{ReplyCodec: audio.CodecWAV})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestHandle_FullTurn(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello there"}}
	llmP := &llmmock.Provider{Replies: []string{"Hi! How can I help?"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	reply, err := p.Handle(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(reply) == 0 {
		t.Fatal("expected a reply container")
	}
	if c, err := audio.DetectCodec(reply); err != nil || c != audio.CodecWAV {
		t.Fatalf("reply codec = %v (err %v), want wav", c, err)
	}

	if got := len(ttsP.Texts); got != 1 || ttsP.Texts[0] != "Hi! How can I help?" {
		t.Errorf("tts received %v, want the generated reply", ttsP.Texts)
	}

	hist := p.History().Window()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Role != llm.RoleUser || hist[0].Content != "hello there" {
		t.Errorf("first turn = %+v, want user/hello there", hist[0])
	}
	if hist[1].Role != llm.RoleAssistant || hist[1].Content != "Hi! How can I help?" {
		t.Errorf("second turn = %+v, want assistant reply", hist[1])
	}
}

func TestHandle_EmptyTranscriptNoReplyNoHistory(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"   "}}
	llmP := &llmmock.Provider{Replies: []string{"should not be called"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	reply, err := p.Handle(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != nil {
		t.Errorf("expected nil reply for empty transcript, got %d bytes", len(reply))
	}
	if len(llmP.Calls) != 0 {
		t.Errorf("llm was called %d times, want 0", len(llmP.Calls))
	}
	if p.History().Len() != 0 {
		t.Errorf("history length = %d, want 0", p.History().Len())
	}
}

func TestHandle_TwoUtterancesOrderedHistory(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"first question", "second question"}}
	llmP := &llmmock.Provider{Replies: []string{"first answer", "second answer"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	utterance := testUtterance(t)
	for i := 0; i < 2; i++ {
		if _, err := p.Handle(context.Background(), utterance); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	want := []llm.Message{
		{Role: llm.RoleUser, Content: "first question"},
		{Role: llm.RoleAssistant, Content: "first answer"},
		{Role: llm.RoleUser, Content: "second question"},
		{Role: llm.RoleAssistant, Content: "second answer"},
	}
	got := p.History().Window()
	if len(got) != len(want) {
		t.Fatalf("history length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("turn %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// The second completion request must include the first turn pair.
	secondReq := llmP.Calls[1].Req
	if len(secondReq.Messages) != 3 {
		t.Fatalf("second request window = %d messages, want 3", len(secondReq.Messages))
	}
	if secondReq.Messages[0].Content != "first question" {
		t.Errorf("second request starts with %q, want first question", secondReq.Messages[0].Content)
	}
}

func TestHandle_HistoryWindowBounded(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"q1", "q2", "q3", "q4"}}
	llmP := &llmmock.Provider{Replies: []string{"a1", "a2", "a3", "a4"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	utterance := testUtterance(t)
	for i := 0; i < 4; i++ {
		if _, err := p.Handle(context.Background(), utterance); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	// Retention is bounded: older turns are dropped, so the session holds
	// at most the default of 4 messages no matter how long it runs.
	if p.History().Len() != 4 {
		t.Errorf("retained history = %d, want 4", p.History().Len())
	}
	lastReq := llmP.Calls[3].Req
	if len(lastReq.Messages) != 4 {
		t.Fatalf("last request window = %d messages, want 4", len(lastReq.Messages))
	}
	if lastReq.Messages[0].Content != "a2" {
		t.Errorf("window starts with %q, want a2", lastReq.Messages[0].Content)
	}
	if lastReq.Messages[3].Content != "q4" {
		t.Errorf("window ends with %q, want q4", lastReq.Messages[3].Content)
	}
}

func TestHistory_BoundedRetention(t *testing.T) {
	h := pipeline.NewHistory(4)
	for i := 0; i < 50; i++ {
		h.Append(llm.RoleUser, fmt.Sprintf("q%d", i))
		h.Append(llm.RoleAssistant, fmt.Sprintf("a%d", i))
	}
	if h.Len() != 4 {
		t.Fatalf("retained history = %d, want 4", h.Len())
	}
	w := h.Window()
	want := []string{"q48", "a48", "q49", "a49"}
	for i, content := range want {
		if w[i].Content != content {
			t.Errorf("window[%d] = %q, want %q", i, w[i].Content, content)
		}
	}
}

func TestHandle_MalformedContainer(t *testing.T) {
	sttP := &sttmock.Provider{}
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	_, err := p.Handle(context.Background(), []byte("not audio at all"))
	if err == nil {
		t.Fatal("expected error for malformed container")
	}
	var ferr *audio.FormatError
	if !errors.As(err, &ferr) {
		t.Errorf("error %v is not a *audio.FormatError", err)
	}
	if len(sttP.Calls) != 0 {
		t.Errorf("stt was called %d times, want 0", len(sttP.Calls))
	}
}

func TestHandle_LLMFailureKeepsUserTurn(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello"}}
	llmP := &llmmock.Provider{Err: errors.New("backend down")}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	_, err := p.Handle(context.Background(), testUtterance(t))
	if err == nil {
		t.Fatal("expected error from llm failure")
	}

	hist := p.History().Window()
	if len(hist) != 1 || hist[0].Role != llm.RoleUser {
		t.Errorf("history = %+v, want exactly the user turn", hist)
	}
}

func TestHandle_EmptyReplyNoSynthesisKeepsUserTurn(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello"}}
	llmP := &llmmock.Provider{Replies: []string{"  \n "}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	reply, err := p.Handle(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if reply != nil {
		t.Errorf("expected nil reply for empty generation, got %d bytes", len(reply))
	}
	if len(ttsP.Texts) != 0 {
		t.Errorf("tts was called with %v, want no calls", ttsP.Texts)
	}

	hist := p.History().Window()
	if len(hist) != 1 || hist[0].Role != llm.RoleUser {
		t.Errorf("history = %+v, want exactly the user turn", hist)
	}
}

func TestHandle_TTSFailureKeepsAssistantTurn(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello"}}
	llmP := &llmmock.Provider{Replies: []string{"hi"}}
	ttsP := &ttsmock.Provider{Err: errors.New("synthesis failed")}
	p := newTestPipeline(t, sttP, llmP, ttsP)

	_, err := p.Handle(context.Background(), testUtterance(t))
	if err == nil {
		t.Fatal("expected error from tts failure")
	}

	hist := p.History().Window()
	if len(hist) != 2 || hist[1].Role != llm.RoleAssistant {
		t.Errorf("history = %+v, want user + assistant turns", hist)
	}
}

func TestHandle_OpusReplyCodec(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello"}}
	llmP := &llmmock.Provider{Replies: []string{"hi"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p, err := pipeline.New(sttP, llmP, ttsP, pipeline.Config{ReplyCodec: audio.CodecOpus})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := p.Handle(context.Background(), testUtterance(t))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if c, err := audio.DetectCodec(reply); err != nil || c != audio.CodecOpus {
		t.Fatalf("reply codec = %v (err %v), want opus", c, err)
	}
}

func TestHandle_MP3ReplyRequiresMP3Speech(t *testing.T) {
	sttP := &sttmock.Provider{Texts: []string{"hello"}}
	llmP := &llmmock.Provider{Replies: []string{"hi"}}
	ttsP := &ttsmock.Provider{Speech: pcmSpeech()}
	p, err := pipeline.New(sttP, llmP, ttsP, pipeline.Config{ReplyCodec: audio.CodecMP3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Handle(context.Background(), testUtterance(t)); err == nil {
		t.Fatal("expected error when mp3 reply codec receives raw PCM speech")
	}
}

func TestNew_RejectsUnknownCodec(t *testing.T) {
	_, err := pipeline.New(&sttmock.Provider{}, &llmmock.Provider{}, &ttsmock.Provider{}, pipeline.Config{ReplyCodec: audio.Codec("flac")})
	if err == nil {
		t.Fatal("expected error for unknown reply codec")
	}
}
