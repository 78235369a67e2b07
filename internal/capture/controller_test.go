package capture

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voskstream/internal/engine"
	"voskstream/internal/engine/enginetest"
	"voskstream/internal/logger"
	"voskstream/internal/models"
	"voskstream/internal/recognition"
)

var (
	voiceFrame   = bytes.Repeat([]byte{1, 2}, 1024)
	silenceFrame = make([]byte, 2048)
)

// fakeSource отдаёт кадры из script, затем Idle (или Err) в темпе устройства.
type fakeSource struct {
	mu      sync.Mutex
	script  [][]byte
	idle    []byte
	err     error
	openErr error
	opened  int
	closed  int
	reads   int
	rates   []int
}

func (s *fakeSource) Open(sampleRate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened++
	s.rates = append(s.rates, sampleRate)
	return nil
}

func (s *fakeSource) ReadFrame() ([]byte, error) {
	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if len(s.script) > 0 {
		f := s.script[0]
		s.script = s.script[1:]
		return f, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.idle, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSource) counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

func (s *fakeSource) openedRates() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.rates...)
}

type events struct {
	mu     sync.Mutex
	finals []string
	errs   []error
}

func (e *events) final(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finals = append(e.finals, text)
}

func (e *events) error(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *events) snapshot() ([]string, []error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.finals...), append([]error(nil), e.errs...)
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

type fixture struct {
	backend *enginetest.Backend
	source  *fakeSource
	events  *events
	ctrl    *Controller
}

func newFixture(t *testing.T, src *fakeSource, tune func(*enginetest.Backend), maxErrors int) *fixture {
	t.Helper()
	b := enginetest.New()
	eng := engine.New(b, logger.Discard())
	ev := &events{}

	opener := OpenerFunc(func(ctx context.Context) (*recognition.Session, error) {
		s, err := recognition.Open(eng, "/models/test", "", recognition.Options{SampleRate: 16000}, logger.Discard())
		if err == nil && tune != nil {
			tune(b)
		}
		return s, err
	})

	c := NewController(Config{
		Source:               src,
		Opener:               opener,
		OnFinalText:          ev.final,
		OnError:              ev.error,
		MaxConsecutiveErrors: maxErrors,
	}, logger.Discard())
	t.Cleanup(func() { c.Close() })

	return &fixture{backend: b, source: src, events: ev, ctrl: c}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, &fakeSource{
		script: [][]byte{voiceFrame, voiceFrame, silenceFrame},
		idle:   silenceFrame,
	}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != Running {
		t.Fatalf("expected running, got %v", f.ctrl.State())
	}

	eventually(t, "final text", func() bool {
		finals, _ := f.events.snapshot()
		return len(finals) == 1
	})
	finals, _ := f.events.snapshot()
	if finals[0] != "one two" {
		t.Errorf("unexpected final %q", finals[0])
	}

	if err := f.ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %v", f.ctrl.State())
	}
	if opened, closed := f.source.counts(); opened != 1 || closed != 1 {
		t.Errorf("device opened %d closed %d", opened, closed)
	}
	if live, recs := f.backend.Live(); live != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", live, recs)
	}

	// silence after Stop produced no empty finals
	finals, _ = f.events.snapshot()
	if len(finals) != 1 {
		t.Errorf("expected exactly one final, got %q", finals)
	}
}

func TestDoubleStartSingleWorker(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.ctrl.Start(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := f.backend.Created(); n != 1 {
		t.Errorf("expected one recognizer, got %d", n)
	}
	if opened, _ := f.source.counts(); opened != 1 {
		t.Errorf("expected device opened once, got %d", opened)
	}
	if err := f.ctrl.Stop(); err != nil {
		t.Fatal(err)
	}
}

func TestStopWhenIdle(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	if err := f.ctrl.Stop(); err != nil {
		t.Errorf("Stop on idle must be a no-op, got %v", err)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %v", f.ctrl.State())
	}
	if _, closed := f.source.counts(); closed != 0 {
		t.Errorf("device closed without being opened")
	}
}

func TestStopFlushesLastUtterance(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: voiceFrame}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "frames", func() bool {
		f.source.mu.Lock()
		defer f.source.mu.Unlock()
		return f.source.reads > 3
	})
	if err := f.ctrl.Stop(); err != nil {
		t.Fatal(err)
	}

	finals, _ := f.events.snapshot()
	if len(finals) != 1 || !strings.HasPrefix(finals[0], "one") {
		t.Errorf("expected flushed utterance, got %q", finals)
	}
}

func TestDeviceErrorStopsImplicitly(t *testing.T) {
	unplugged := errors.New("device unplugged")
	f := newFixture(t, &fakeSource{
		script: [][]byte{voiceFrame, voiceFrame},
		err:    unplugged,
	}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "implicit stop", func() bool {
		_, errs := f.events.snapshot()
		return len(errs) > 0 && f.ctrl.State() == Idle
	})

	finals, errs := f.events.snapshot()
	if !errors.Is(errs[0], ErrDevice) {
		t.Errorf("expected ErrDevice, got %v", errs[0])
	}
	if len(finals) != 1 || finals[0] != "one two" {
		t.Errorf("expected flushed utterance, got %q", finals)
	}
	if live, recs := f.backend.Live(); live != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", live, recs)
	}
	if _, closed := f.source.counts(); closed != 1 {
		t.Errorf("expected device closed once, got %d", closed)
	}

	// Start after an implicit stop works again.
	f.source.mu.Lock()
	f.source.err = nil
	f.source.idle = silenceFrame
	f.source.mu.Unlock()
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := f.backend.Created(); n != 2 {
		t.Errorf("expected second recognizer, got %d", n)
	}
}

func TestStaleFailureIgnored(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.ctrl.notifyFailed(0, errors.New("old session"))
	// Start is a no-op here and returns only after the failure was handled.
	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != Running {
		t.Errorf("stale failure stopped the running session")
	}
}

func TestAcquisitionFailureLeavesIdle(t *testing.T) {
	src := &fakeSource{idle: silenceFrame}
	b := enginetest.New()
	b.FailModel = true
	eng := engine.New(b, logger.Discard())

	c := NewController(Config{
		Source: src,
		Opener: OpenerFunc(func(ctx context.Context) (*recognition.Session, error) {
			return recognition.Open(eng, "/models/broken", "", recognition.Options{SampleRate: 16000}, logger.Discard())
		}),
	}, logger.Discard())
	defer c.Close()

	if err := c.Start(context.Background()); !errors.Is(err, engine.ErrModelLoad) {
		t.Fatalf("expected ErrModelLoad, got %v", err)
	}
	if c.State() != Idle {
		t.Errorf("expected idle, got %v", c.State())
	}
	if opened, _ := src.counts(); opened != 0 {
		t.Errorf("device must not be opened when the model fails")
	}
}

func TestDeviceOpenFailureReleasesSession(t *testing.T) {
	f := newFixture(t, &fakeSource{openErr: errors.New("no input device")}, nil, 0)

	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrDevice) {
		t.Fatalf("expected ErrDevice, got %v", err)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %v", f.ctrl.State())
	}
	if live, recs := f.backend.Live(); live != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", live, recs)
	}
}

func TestConsecutiveErrorsSurfaced(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: voiceFrame}, func(b *enginetest.Backend) {
		b.Last().FailNext = 25
	}, 10)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	eventually(t, "recovery", func() bool {
		f.source.mu.Lock()
		defer f.source.mu.Unlock()
		return f.source.reads > 30
	})
	if err := f.ctrl.Stop(); err != nil {
		t.Fatal(err)
	}

	_, errs := f.events.snapshot()
	if len(errs) != 2 {
		t.Fatalf("expected 2 surfaced errors, got %v", errs)
	}
	var perr *engine.ProcessingError
	if !errors.As(errs[0], &perr) {
		t.Errorf("expected ProcessingError, got %v", errs[0])
	}
}

func TestClosedController(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.Close(); err != nil {
		t.Fatal(err)
	}
	if live, recs := f.backend.Live(); live != 0 || recs != 0 {
		t.Errorf("Close must stop the session: models=%d recognizers=%d", live, recs)
	}
	if err := f.ctrl.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := f.ctrl.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestToggle(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	if err := f.ctrl.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != Running {
		t.Fatalf("expected running, got %v", f.ctrl.State())
	}
	if err := f.ctrl.Toggle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %v", f.ctrl.State())
	}
	if opened, closed := f.source.counts(); opened != 1 || closed != 1 {
		t.Errorf("device opened %d closed %d", opened, closed)
	}
}

func TestSourceOpenedAtSessionRate(t *testing.T) {
	b := enginetest.New()
	eng := engine.New(b, logger.Discard())
	src := &fakeSource{idle: silenceFrame}

	var rate atomic.Int64
	rate.Store(16000)
	opener := OpenerFunc(func(ctx context.Context) (*recognition.Session, error) {
		opts := recognition.Options{SampleRate: float64(rate.Load())}
		return recognition.Open(eng, "/models/test", "", opts, logger.Discard())
	})

	c := NewController(Config{Source: src, Opener: opener}, logger.Discard())
	t.Cleanup(func() { c.Close() })

	for _, r := range []int64{16000, 8000} {
		rate.Store(r)
		if err := c.Start(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := c.Stop(); err != nil {
			t.Fatal(err)
		}
	}

	got := src.openedRates()
	if len(got) != 2 || got[0] != 16000 || got[1] != 8000 {
		t.Errorf("device must follow the session rate, got %v", got)
	}
}

func TestQuitTearsDownRunningSession(t *testing.T) {
	f := newFixture(t, &fakeSource{idle: silenceFrame}, nil, 0)

	if err := f.ctrl.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	// управляющая горутина завершается при работающем воркере
	f.ctrl.closeOnce.Do(func() { close(f.ctrl.quit) })
	<-f.ctrl.done

	if opened, closed := f.source.counts(); opened != 1 || closed != 1 {
		t.Errorf("device opened %d closed %d", opened, closed)
	}
	if live, recs := f.backend.Live(); live != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", live, recs)
	}
	if f.ctrl.State() != Idle {
		t.Errorf("expected idle, got %v", f.ctrl.State())
	}
}

func TestModelOpener(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "vosk-model-small-en-us-0.15"), 0o755); err != nil {
		t.Fatal(err)
	}
	b := enginetest.New()
	opener := &ModelOpener{
		Store:   models.NewStore(models.Config{Dirs: []string{dir}, CatalogURL: "http://127.0.0.1:1/none"}, logger.Discard()),
		Engine:  engine.New(b, logger.Discard()),
		Model:   models.Descriptor{Lang: "en-us"},
		Options: recognition.Options{SampleRate: 16000},
		Log:     logger.Discard(),
	}

	s, err := opener.OpenSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.State() != recognition.StateConfigured {
		t.Errorf("expected configured session, got %v", s.State())
	}
	if _, err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	opener.Model = models.Descriptor{Lang: "de"}
	if _, err := opener.OpenSession(context.Background()); !errors.Is(err, models.ErrDownloadFailed) {
		t.Errorf("expected ErrDownloadFailed, got %v", err)
	}
	if live, recs := b.Live(); live != 0 || recs != 0 {
		t.Errorf("handles leaked: models=%d recognizers=%d", live, recs)
	}
}
