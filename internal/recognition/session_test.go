package recognition

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"voskstream/internal/engine"
	"voskstream/internal/engine/enginetest"
	"voskstream/internal/logger"
)

func voice(n int) []byte {
	return bytes.Repeat([]byte{1, 2}, n/2)
}

func silence(n int) []byte {
	return make([]byte, n)
}

func openSession(t *testing.T, b *enginetest.Backend, opts Options) *Session {
	t.Helper()
	if opts.SampleRate == 0 {
		opts.SampleRate = 16000
	}
	eng := engine.New(b, logger.Discard())
	s, err := Open(eng, "/models/test", "", opts, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSessionLifecycle(t *testing.T) {
	b := enginetest.New()
	eng := engine.New(b, logger.Discard())
	model, err := eng.LoadModel("/models/test")
	if err != nil {
		t.Fatal(err)
	}

	s := New(eng, model, Options{SampleRate: 16000, OwnsModel: true}, logger.Discard())
	if s.State() != StateCreated {
		t.Fatalf("expected created, got %v", s.State())
	}
	if _, err := s.Feed(voice(2048)); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("feed before configure: expected ErrNotConfigured, got %v", err)
	}

	if err := s.Configure(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateConfigured {
		t.Fatalf("expected configured, got %v", s.State())
	}

	res, err := s.Feed(voice(2048))
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != Partial || res.Text != "one" {
		t.Errorf("expected partial %q, got %+v", "one", res)
	}
	if s.State() != StateStreaming {
		t.Errorf("expected streaming, got %v", s.State())
	}

	res, err = s.Feed(silence(2048))
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != Final || res.Text != "one" {
		t.Errorf("expected final %q, got %+v", "one", res)
	}

	if _, err := s.Feed(voice(2048)); err != nil {
		t.Fatal(err)
	}
	res, err = s.Stop()
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "two" {
		t.Errorf("Stop must flush trailing utterance, got %+v", res)
	}
	if s.State() != StateFinished {
		t.Errorf("expected finished, got %v", s.State())
	}

	if _, err := s.Feed(voice(2048)); !errors.Is(err, ErrFinished) {
		t.Errorf("feed after stop: expected ErrFinished, got %v", err)
	}
	if _, err := s.Stop(); err != nil {
		t.Errorf("second Stop must be a no-op, got %v", err)
	}

	if models, recs := b.Live(); models != 0 || recs != 0 {
		t.Errorf("live handles after stop: models=%d recognizers=%d", models, recs)
	}
}

func TestSessionSharedModelNotFreed(t *testing.T) {
	b := enginetest.New()
	eng := engine.New(b, logger.Discard())
	model, _ := eng.LoadModel("/models/test")

	s := New(eng, model, Options{SampleRate: 16000}, logger.Discard())
	if err := s.Configure(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	if models, recs := b.Live(); models != 1 || recs != 0 {
		t.Errorf("expected the shared model alive, got models=%d recognizers=%d", models, recs)
	}
	if err := model.Free(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionSilenceNeverFinalText(t *testing.T) {
	s := openSession(t, enginetest.New(), Options{})
	defer s.Stop()

	for i := 0; i < 50; i++ {
		res, err := s.Feed(silence(4000))
		if err != nil {
			t.Fatal(err)
		}
		if res.Kind == Final && res.Text != "" {
			t.Fatalf("silence produced text %q", res.Text)
		}
		if res.Kind == Partial {
			t.Fatalf("silence produced partial %+v", res)
		}
	}
}

func TestSessionDeterministic(t *testing.T) {
	input := [][]byte{voice(2048), voice(2048), silence(2048), voice(2048), silence(2048), silence(2048)}

	run := func() string {
		s := openSession(t, enginetest.New("alpha", "beta", "gamma"), Options{})
		var texts []string
		for _, frame := range input {
			res, err := s.Feed(frame)
			if err != nil {
				t.Fatal(err)
			}
			if res.Kind == Final {
				texts = append(texts, res.Text)
			}
		}
		res, _ := s.Stop()
		texts = append(texts, res.Text)
		return strings.Join(texts, "|")
	}

	first := run()
	if first != "alpha beta|gamma|" {
		t.Errorf("unexpected transcript %q", first)
	}
	for i := 0; i < 3; i++ {
		if got := run(); got != first {
			t.Errorf("run %d: %q != %q", i, got, first)
		}
	}
}

func TestSessionResetClearsPartial(t *testing.T) {
	s := openSession(t, enginetest.New(), Options{})
	defer s.Stop()

	res, _ := s.Feed(voice(2048))
	if res.Kind != Partial {
		t.Fatalf("expected partial, got %+v", res)
	}
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}

	raw, err := s.rec.PartialResult()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParsePartial(raw)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Kind != Pending || parsed.Text != "" {
		t.Errorf("expected empty partial after reset, got %+v", parsed)
	}
}

func TestSessionProcessingErrorIsolated(t *testing.T) {
	b := enginetest.New()
	s := openSession(t, b, Options{})
	defer s.Stop()

	b.Last().FailNext = 1
	var perr *engine.ProcessingError
	if _, err := s.Feed(voice(2048)); !errors.As(err, &perr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if _, err := s.Feed(voice(2048)); err != nil {
		t.Fatalf("next frame must succeed: %v", err)
	}
}

func TestSessionMalformedOutput(t *testing.T) {
	b := enginetest.New()
	s := openSession(t, b, Options{})
	defer s.Stop()

	b.Last().Garbage = `{"unexpected": 1}`
	if _, err := s.Feed(voice(2048)); !errors.Is(err, ErrMalformedOutput) {
		t.Errorf("expected ErrMalformedOutput, got %v", err)
	}
}

func TestSessionOptionsApplied(t *testing.T) {
	b := enginetest.New()
	s := openSession(t, b, Options{MaxAlternatives: 2, Words: true, PartialWords: true, Grammar: `["one"]`})

	fake := b.Last()
	if fake.MaxAlternatives != 2 || !fake.Words || !fake.PartialWords || fake.Grammar != `["one"]` {
		t.Errorf("options not applied: %+v", fake)
	}

	s.Feed(voice(2048))
	res, err := s.Feed(silence(2048))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alternatives) != 1 || res.Text != "one" {
		t.Errorf("expected alternatives result, got %+v", res)
	}
	s.Stop()
}

func TestSessionNLSML(t *testing.T) {
	s := openSession(t, enginetest.New(), Options{NLSML: true})
	defer s.Stop()

	s.Feed(voice(2048))
	res, err := s.Feed(silence(2048))
	if err != nil {
		t.Fatal(err)
	}
	if res.Kind != Final || !strings.HasPrefix(res.Raw, "<?xml") {
		t.Errorf("expected raw NLSML document, got %+v", res)
	}
	if _, err := s.GenerateSubtitles(context.Background(), bytes.NewReader(nil), 7); err == nil {
		t.Error("subtitles require JSON output")
	}
}

func TestOpenReleasesOnFailure(t *testing.T) {
	b := enginetest.New()
	b.FailRecognizer = true
	eng := engine.New(b, logger.Discard())

	if _, err := Open(eng, "/models/test", "/models/spk", Options{SampleRate: 16000}, logger.Discard()); !errors.Is(err, engine.ErrRecognizerCreate) {
		t.Fatalf("expected ErrRecognizerCreate, got %v", err)
	}
	if models, recs := b.Live(); models != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", models, recs)
	}

	b = enginetest.New()
	b.FailModel = true
	eng = engine.New(b, logger.Discard())
	if _, err := Open(eng, "/models/broken", "", Options{SampleRate: 16000}, logger.Discard()); !errors.Is(err, engine.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
}

func TestOpenWithSpeakerModel(t *testing.T) {
	b := enginetest.New()
	s := openSessionSpk(t, b)

	s.Feed(voice(2048))
	res, err := s.Feed(silence(2048))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Speaker) == 0 || res.SpeakerFrames == 0 {
		t.Errorf("expected speaker vector, got %+v", res)
	}
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if models, recs := b.Live(); models != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", models, recs)
	}
}

func openSessionSpk(t *testing.T, b *enginetest.Backend) *Session {
	t.Helper()
	eng := engine.New(b, logger.Discard())
	s, err := Open(eng, "/models/test", "/models/spk", Options{SampleRate: 16000}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGenerateSubtitles(t *testing.T) {
	b := enginetest.New("a", "b", "c", "d", "e", "f", "g", "h", "i", "j")
	s := openSession(t, b, Options{})
	defer s.Stop()

	// 5 блоков речи, пауза, 4 блока речи, без паузы в конце
	var audio bytes.Buffer
	for i := 0; i < 5; i++ {
		audio.Write(voice(ChunkSize))
	}
	audio.Write(silence(ChunkSize))
	for i := 0; i < 4; i++ {
		audio.Write(voice(ChunkSize))
	}

	cues, err := s.GenerateSubtitles(context.Background(), &audio, 3)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"a b c", "d e", "f g h", "i"}
	if len(cues) != len(want) {
		t.Fatalf("expected %d cues, got %+v", len(want), cues)
	}
	for i, c := range cues {
		if c.Index != i {
			t.Errorf("cue %d: index %d", i, c.Index)
		}
		if c.Text != want[i] {
			t.Errorf("cue %d: text %q, want %q", i, c.Text, want[i])
		}
		if c.End <= c.Start {
			t.Errorf("cue %d: bad timing %v-%v", i, c.Start, c.End)
		}
	}
	if !b.Last().Words {
		t.Error("subtitles must enable word timing")
	}
}

func TestGenerateSubtitlesCanceled(t *testing.T) {
	s := openSession(t, enginetest.New(), Options{})
	defer s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.GenerateSubtitles(ctx, bytes.NewReader(voice(ChunkSize)), 7); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
