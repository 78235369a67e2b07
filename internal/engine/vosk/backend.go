// Package vosk подключает libvosk как Backend движка.
package vosk

import (
	"errors"

	vosk "github.com/alphacep/vosk-api/go"

	"voskstream/internal/engine"
)

var (
	errForeignHandle = errors.New("дескриптор создан другим backend")
	errNullHandle    = errors.New("libvosk вернул пустой дескриптор")
)

var (
	_ engine.Backend          = Backend{}
	_ engine.RecognizerHandle = recognizer{}
)

// Backend реализует engine.Backend через vosk-api.
type Backend struct{}

// New создаёт Backend. level - уровень логов libvosk (-1 отключает их).
func New(level int) Backend {
	vosk.SetLogLevel(level)
	return Backend{}
}

// NewModel загружает модель из директории.
func (Backend) NewModel(path string) (engine.ModelHandle, error) {
	m, err := vosk.NewModel(path)
	if err != nil {
		return nil, err
	}
	if nativeModel(m) == nil {
		return nil, errNullHandle
	}
	return m, nil
}

// NewSpkModel загружает модель диктора.
func (Backend) NewSpkModel(path string) (engine.SpkModelHandle, error) {
	m, err := vosk.NewSpkModel(path)
	if err != nil {
		return nil, err
	}
	if nativeSpkModel(m) == nil {
		return nil, errNullHandle
	}
	return m, nil
}

// NewRecognizer создаёт распознаватель.
func (Backend) NewRecognizer(model engine.ModelHandle, sampleRate float64) (engine.RecognizerHandle, error) {
	m, ok := model.(*vosk.VoskModel)
	if !ok {
		return nil, errForeignHandle
	}
	return wrap(vosk.NewRecognizer(m, sampleRate))
}

// NewRecognizerSpk создаёт распознаватель с моделью диктора.
func (Backend) NewRecognizerSpk(model engine.ModelHandle, sampleRate float64, spk engine.SpkModelHandle) (engine.RecognizerHandle, error) {
	m, ok := model.(*vosk.VoskModel)
	if !ok {
		return nil, errForeignHandle
	}
	s, ok := spk.(*vosk.VoskSpkModel)
	if !ok {
		return nil, errForeignHandle
	}
	return wrap(vosk.NewRecognizerSpk(m, sampleRate, s))
}

// NewRecognizerGrm создаёт распознаватель с грамматикой.
func (Backend) NewRecognizerGrm(model engine.ModelHandle, sampleRate float64, grammar string) (engine.RecognizerHandle, error) {
	m, ok := model.(*vosk.VoskModel)
	if !ok {
		return nil, errForeignHandle
	}
	return wrap(vosk.NewRecognizerGrm(m, sampleRate, grammar))
}

func wrap(rec *vosk.VoskRecognizer, err error) (engine.RecognizerHandle, error) {
	if err != nil {
		return nil, err
	}
	if nativeRecognizer(rec) == nil {
		return nil, errNullHandle
	}
	return recognizer{rec}, nil
}

// recognizer дополняет VoskRecognizer до интерфейса engine.
type recognizer struct {
	*vosk.VoskRecognizer
}

func (r recognizer) SetSpkModel(spk engine.SpkModelHandle) {
	if s, ok := spk.(*vosk.VoskSpkModel); ok {
		r.VoskRecognizer.SetSpkModel(s)
	}
}

func (r recognizer) SetNLSML(enabled int) {
	setNLSML(r.VoskRecognizer, enabled)
}
