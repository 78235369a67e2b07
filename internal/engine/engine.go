// Package engine даёт безопасную обёртку над нативным движком распознавания.
//
// Нативные дескрипторы модели и распознавателя создаются и освобождаются
// строго парами. Распознаватель держит ссылку на свою модель, поэтому модель
// нельзя освободить, пока на неё ссылается хотя бы один распознаватель.
package engine

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrModelLoad - нативная библиотека не смогла загрузить модель.
	ErrModelLoad = errors.New("ошибка загрузки модели")
	// ErrRecognizerCreate - нативная библиотека не смогла создать распознаватель.
	ErrRecognizerCreate = errors.New("ошибка создания распознавателя")
	// ErrModelInUse - модель ещё используется распознавателями.
	ErrModelInUse = errors.New("модель используется")
	// ErrClosed - дескриптор уже освобождён.
	ErrClosed = errors.New("дескриптор освобождён")
)

// ProcessingError - нативный вызов декодирования вернул ошибку.
type ProcessingError struct {
	Status int // код возврата нативного вызова
	Size   int // размер переданного буфера в байтах
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("ошибка обработки аудио: статус %d, буфер %d байт", e.Status, e.Size)
}

// Status результат AcceptWaveform.
type Status int

const (
	// StatusPending - граница фразы не достигнута.
	StatusPending Status = iota
	// StatusFinal - фраза завершена, доступен Result.
	StatusFinal
)

func (s Status) String() string {
	if s == StatusFinal {
		return "final"
	}
	return "pending"
}

// ModelHandle - нативная модель.
type ModelHandle interface {
	FindWord(word string) int
	Free()
}

// SpkModelHandle - нативная модель диктора.
type SpkModelHandle interface {
	Free()
}

// RecognizerHandle - нативный распознаватель.
// Флаги передаются как 0/1, как в C API.
type RecognizerHandle interface {
	SetMaxAlternatives(n int)
	SetWords(enabled int)
	SetPartialWords(enabled int)
	SetNLSML(enabled int)
	SetSpkModel(spk SpkModelHandle)
	SetGrm(grammar string)
	AcceptWaveform(buf []byte) int
	Result() string
	PartialResult() string
	FinalResult() string
	Reset()
	Free()
}

// Backend - низкоуровневый доступ к нативной библиотеке.
// Ошибка конструктора означает нулевой дескриптор.
type Backend interface {
	NewModel(path string) (ModelHandle, error)
	NewSpkModel(path string) (SpkModelHandle, error)
	NewRecognizer(model ModelHandle, sampleRate float64) (RecognizerHandle, error)
	NewRecognizerSpk(model ModelHandle, sampleRate float64, spk SpkModelHandle) (RecognizerHandle, error)
	NewRecognizerGrm(model ModelHandle, sampleRate float64, grammar string) (RecognizerHandle, error)
}

// Engine создаёт модели и распознаватели поверх Backend.
type Engine struct {
	backend Backend
	log     logrus.FieldLogger
}

// New создаёт Engine.
func New(backend Backend, log logrus.FieldLogger) *Engine {
	return &Engine{backend: backend, log: log}
}

// LoadModel загружает модель из директории.
func (e *Engine) LoadModel(path string) (*Model, error) {
	h, err := e.backend.NewModel(path)
	if err != nil || h == nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, nullHandle(err))
	}
	e.log.WithField("model", path).Info("Модель загружена")
	return &Model{path: path, handle: h, log: e.log}, nil
}

// LoadSpeakerModel загружает модель диктора.
func (e *Engine) LoadSpeakerModel(path string) (*SpeakerModel, error) {
	h, err := e.backend.NewSpkModel(path)
	if err != nil || h == nil {
		return nil, fmt.Errorf("%w: модель диктора %s: %v", ErrModelLoad, path, nullHandle(err))
	}
	e.log.WithField("model", path).Info("Модель диктора загружена")
	return &SpeakerModel{path: path, handle: h}, nil
}

// RecognizerOption дополнительная настройка распознавателя.
type RecognizerOption func(*recognizerOptions)

type recognizerOptions struct {
	spk     *SpeakerModel
	grammar string
}

// WithSpeakerModel включает распознавание диктора.
func WithSpeakerModel(spk *SpeakerModel) RecognizerOption {
	return func(o *recognizerOptions) { o.spk = spk }
}

// WithGrammar ограничивает словарь JSON-списком фраз, например `["yes", "no", "[unk]"]`.
func WithGrammar(grammar string) RecognizerOption {
	return func(o *recognizerOptions) { o.grammar = grammar }
}

// NewRecognizer создаёт распознаватель для модели.
func (e *Engine) NewRecognizer(model *Model, sampleRate float64, opts ...RecognizerOption) (*Recognizer, error) {
	var o recognizerOptions
	for _, opt := range opts {
		opt(&o)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: некорректная частота %v", ErrRecognizerCreate, sampleRate)
	}
	if o.spk != nil && o.grammar != "" {
		return nil, fmt.Errorf("%w: модель диктора и грамматика взаимоисключающие", ErrRecognizerCreate)
	}

	mh, err := model.acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecognizerCreate, err)
	}

	var spkHandle SpkModelHandle
	if o.spk != nil {
		spkHandle, err = o.spk.acquire()
		if err != nil {
			model.release()
			return nil, fmt.Errorf("%w: %v", ErrRecognizerCreate, err)
		}
	}

	var h RecognizerHandle
	switch {
	case spkHandle != nil:
		h, err = e.backend.NewRecognizerSpk(mh, sampleRate, spkHandle)
	case o.grammar != "":
		h, err = e.backend.NewRecognizerGrm(mh, sampleRate, o.grammar)
	default:
		h, err = e.backend.NewRecognizer(mh, sampleRate)
	}
	if err != nil || h == nil {
		if o.spk != nil {
			o.spk.release()
		}
		model.release()
		return nil, fmt.Errorf("%w: %v", ErrRecognizerCreate, nullHandle(err))
	}

	return &Recognizer{
		handle:     h,
		model:      model,
		spk:        o.spk,
		sampleRate: sampleRate,
		log:        e.log.WithField("model", model.Path()),
	}, nil
}

// nullHandle подставляет причину, когда нативный вызов вернул nil без ошибки.
func nullHandle(err error) error {
	if err != nil {
		return err
	}
	return errors.New("нулевой дескриптор")
}
