// Package recognition ведёт один цикл потокового распознавания.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"voskstream/internal/engine"
	"voskstream/internal/subtitle"
)

// ChunkSize - размер блока при пакетной обработке файла.
const ChunkSize = 4000

var (
	// ErrFinished - сессия уже остановлена.
	ErrFinished = errors.New("сессия завершена")
	// ErrNotConfigured - распознаватель ещё не создан.
	ErrNotConfigured = errors.New("сессия не настроена")
)

// State состояние сессии.
type State int

const (
	StateCreated State = iota
	StateConfigured
	StateStreaming
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateFinished:
		return "finished"
	default:
		return "created"
	}
}

// Options настройки распознавателя сессии.
type Options struct {
	SampleRate      float64
	MaxAlternatives int
	Words           bool
	PartialWords    bool
	NLSML           bool
	Grammar         string
	SpeakerModel    *engine.SpeakerModel
	// OwnsModel - Stop освобождает модель и модель диктора.
	OwnsModel bool
}

// Session владеет распознавателем и превращает аудио в результаты.
type Session struct {
	mu    sync.Mutex
	id    string
	eng   *engine.Engine
	model *engine.Model
	opts  Options
	rec   *engine.Recognizer
	state State
	log   logrus.FieldLogger
}

// New создаёт сессию в состоянии Created.
func New(eng *engine.Engine, model *engine.Model, opts Options, log logrus.FieldLogger) *Session {
	id := uuid.NewString()
	return &Session{
		id:    id,
		eng:   eng,
		model: model,
		opts:  opts,
		state: StateCreated,
		log:   log.WithFields(logrus.Fields{"session": id, "model": model.Path()}),
	}
}

// Open загружает модель (и модель диктора, если задан spkPath) и возвращает
// настроенную сессию, которая владеет ими. При ошибке всё загруженное освобождается.
func Open(eng *engine.Engine, modelPath, spkPath string, opts Options, log logrus.FieldLogger) (*Session, error) {
	model, err := eng.LoadModel(modelPath)
	if err != nil {
		return nil, err
	}

	if spkPath != "" {
		spk, err := eng.LoadSpeakerModel(spkPath)
		if err != nil {
			model.Free()
			return nil, err
		}
		opts.SpeakerModel = spk
	}
	opts.OwnsModel = true

	s := New(eng, model, opts, log)
	if err := s.Configure(); err != nil {
		_, _ = s.Stop()
		return nil, err
	}
	return s, nil
}

// ID возвращает идентификатор сессии для логов.
func (s *Session) ID() string {
	return s.id
}

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SampleRate возвращает частоту, на которую настроен распознаватель.
func (s *Session) SampleRate() float64 {
	return s.opts.SampleRate
}

// Configure создаёт распознаватель и применяет флаги до первого аудио.
func (s *Session) Configure() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFinished:
		return ErrFinished
	case StateCreated:
	default:
		return nil
	}

	var opts []engine.RecognizerOption
	if s.opts.SpeakerModel != nil {
		opts = append(opts, engine.WithSpeakerModel(s.opts.SpeakerModel))
	}
	if s.opts.Grammar != "" {
		opts = append(opts, engine.WithGrammar(s.opts.Grammar))
	}

	rec, err := s.eng.NewRecognizer(s.model, s.opts.SampleRate, opts...)
	if err != nil {
		return err
	}

	if s.opts.MaxAlternatives > 0 {
		rec.SetMaxAlternatives(s.opts.MaxAlternatives)
	}
	rec.SetWords(s.opts.Words)
	rec.SetPartialWords(s.opts.PartialWords)
	if s.opts.NLSML {
		rec.SetNLSML(true)
	}

	s.rec = rec
	s.state = StateConfigured
	s.log.WithField("sample_rate", s.opts.SampleRate).Debug("Распознаватель создан")
	return nil
}

// Feed передаёт кадр аудио в распознаватель.
// На границе фразы возвращает Final, иначе Partial или Pending.
// Ошибка обработки кадра не меняет состояние сессии.
func (s *Session) Feed(frame []byte) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accept(frame, true)
}

func (s *Session) accept(frame []byte, wantPartial bool) (Result, error) {
	switch s.state {
	case StateFinished:
		return Result{}, ErrFinished
	case StateCreated:
		return Result{}, ErrNotConfigured
	}
	s.state = StateStreaming

	st, err := s.rec.AcceptWaveform(frame)
	if err != nil {
		return Result{}, err
	}

	if st == engine.StatusFinal {
		raw, err := s.rec.Result()
		if err != nil {
			return Result{}, err
		}
		return s.parseFinal(raw)
	}

	if !wantPartial {
		return Result{Kind: Pending}, nil
	}
	raw, err := s.rec.PartialResult()
	if err != nil {
		return Result{}, err
	}
	if s.opts.NLSML {
		return Result{Kind: Partial, Raw: raw}, nil
	}
	return ParsePartial(raw)
}

func (s *Session) parseFinal(raw string) (Result, error) {
	if s.opts.NLSML {
		return Result{Kind: Final, Raw: raw}, nil
	}
	return ParseFinal(raw)
}

// Reset возвращает декодер в начальное состояние без пересоздания.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFinished:
		return ErrFinished
	case StateCreated:
		return ErrNotConfigured
	}
	return s.rec.Reset()
}

// Stop сбрасывает хвост последней фразы и освобождает ресурсы
// в обратном порядке. Освобождение продолжается после ошибок.
// Повторный вызов ничего не делает.
func (s *Session) Stop() (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateFinished {
		return Result{}, nil
	}

	var res Result
	var errs []error

	if s.rec != nil {
		if raw, err := s.rec.FinalResult(); err != nil {
			errs = append(errs, err)
		} else if res, err = s.parseFinal(raw); err != nil {
			errs = append(errs, err)
		}
		s.rec.Free()
		s.rec = nil
	}

	if s.opts.OwnsModel {
		if s.opts.SpeakerModel != nil {
			if err := s.opts.SpeakerModel.Free(); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.model.Free(); err != nil {
			errs = append(errs, err)
		}
	}

	s.state = StateFinished
	s.log.Debug("Сессия завершена")
	return res, errors.Join(errs...)
}

// GenerateSubtitles распознаёт конечный поток PCM16 и собирает субтитры.
// Включает тайминги слов, поэтому вызывается до первого Feed.
func (s *Session) GenerateSubtitles(ctx context.Context, src io.Reader, wordsPerLine int) ([]subtitle.Cue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateFinished:
		return nil, ErrFinished
	case StateCreated:
		return nil, ErrNotConfigured
	}
	if s.opts.NLSML {
		return nil, fmt.Errorf("субтитры недоступны в режиме NLSML")
	}
	s.rec.SetWords(true)

	b := subtitle.NewBuilder(wordsPerLine)
	buf := make([]byte, ChunkSize)
	var skipped int

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			res, err := s.accept(buf[:n], false)
			var perr *engine.ProcessingError
			switch {
			case errors.As(err, &perr):
				skipped++
				s.log.WithError(err).Warn("Блок пропущен")
			case err != nil:
				return nil, err
			case res.Kind == Final:
				b.Add(res.SubtitleWords())
			}
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("чтение аудио: %w", rerr)
		}
	}

	raw, err := s.rec.FinalResult()
	if err != nil {
		return nil, err
	}
	res, err := ParseFinal(raw)
	if err != nil {
		return nil, err
	}
	b.Add(res.SubtitleWords())

	s.log.WithFields(logrus.Fields{"cues": len(b.Cues()), "skipped": skipped}).Info("Субтитры готовы")
	return b.Cues(), nil
}
