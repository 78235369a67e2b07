// Package enginetest содержит детерминированный Backend для тестов.
//
// Фейковый декодер считает буфер с ненулевыми сэмплами "словом", а буфер
// тишины после слов - границей фразы.
package enginetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"voskstream/internal/engine"
)

// ErrNull имитирует нулевой нативный дескриптор.
var ErrNull = errors.New("null handle")

// Backend - фейковая реализация engine.Backend.
type Backend struct {
	mu sync.Mutex

	// Words - словарь, слова выдаются по кругу.
	Words []string
	// FailModel - NewModel возвращает ошибку.
	FailModel bool
	// FailRecognizer - NewRecognizer* возвращают ошибку.
	FailRecognizer bool

	nextWord      int
	models        int
	modelsFreed   int
	recs          int
	recsFreed     int
	spkModels     int
	spkFreed      int
	lastRecognize *Recognizer
}

// New создаёт фейковый Backend со словарём.
func New(words ...string) *Backend {
	if len(words) == 0 {
		words = []string{"one", "two", "three", "four", "five"}
	}
	return &Backend{Words: words}
}

// Live возвращает число неосвобождённых моделей и распознавателей.
func (b *Backend) Live() (models, recognizers int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.models - b.modelsFreed + b.spkModels - b.spkFreed, b.recs - b.recsFreed
}

// Created возвращает число созданных распознавателей.
func (b *Backend) Created() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.recs
}

// Last возвращает последний созданный распознаватель.
func (b *Backend) Last() *Recognizer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRecognize
}

func (b *Backend) NewModel(path string) (engine.ModelHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailModel {
		return nil, ErrNull
	}
	b.models++
	return &Model{backend: b, path: path}, nil
}

func (b *Backend) NewSpkModel(path string) (engine.SpkModelHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailModel {
		return nil, ErrNull
	}
	b.spkModels++
	return &SpkModel{backend: b}, nil
}

func (b *Backend) NewRecognizer(model engine.ModelHandle, sampleRate float64) (engine.RecognizerHandle, error) {
	return b.newRecognizer(model, sampleRate, nil, "")
}

func (b *Backend) NewRecognizerSpk(model engine.ModelHandle, sampleRate float64, spk engine.SpkModelHandle) (engine.RecognizerHandle, error) {
	return b.newRecognizer(model, sampleRate, spk, "")
}

func (b *Backend) NewRecognizerGrm(model engine.ModelHandle, sampleRate float64, grammar string) (engine.RecognizerHandle, error) {
	return b.newRecognizer(model, sampleRate, nil, grammar)
}

func (b *Backend) newRecognizer(model engine.ModelHandle, sampleRate float64, spk engine.SpkModelHandle, grammar string) (engine.RecognizerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := model.(*Model)
	if !ok || m.freed || b.FailRecognizer {
		return nil, ErrNull
	}
	b.recs++
	r := &Recognizer{backend: b, sampleRate: sampleRate, Grammar: grammar, Spk: spk != nil}
	b.lastRecognize = r
	return r, nil
}

func (b *Backend) word() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	w := b.Words[b.nextWord%len(b.Words)]
	b.nextWord++
	return w
}

// Model - фейковая модель.
type Model struct {
	backend *Backend
	path    string
	freed   bool
}

func (m *Model) FindWord(word string) int {
	for i, w := range m.backend.Words {
		if w == word {
			return i
		}
	}
	return -1
}

func (m *Model) Free() {
	m.backend.mu.Lock()
	defer m.backend.mu.Unlock()

	if m.freed {
		panic("model freed twice")
	}
	m.freed = true
	m.backend.modelsFreed++
}

// SpkModel - фейковая модель диктора.
type SpkModel struct {
	backend *Backend
	freed   bool
}

func (s *SpkModel) Free() {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()

	if s.freed {
		panic("speaker model freed twice")
	}
	s.freed = true
	s.backend.spkFreed++
}

type word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Conf  float64 `json:"conf"`
}

// Recognizer - фейковый распознаватель.
type Recognizer struct {
	backend    *Backend
	sampleRate float64
	samples    int
	current    []word
	last       []word
	freed      bool

	// Флаги, выставленные через Set*.
	MaxAlternatives int
	Words           bool
	PartialWords    bool
	NLSML           bool
	Spk             bool
	Grammar         string

	// FailNext - сколько следующих AcceptWaveform вернут -1.
	FailNext int
	// Garbage - если не пусто, возвращается вместо JSON результата.
	Garbage string
	// Accepted - число вызовов AcceptWaveform.
	Accepted int
}

func (r *Recognizer) SetMaxAlternatives(n int)              { r.MaxAlternatives = n }
func (r *Recognizer) SetWords(enabled int)                  { r.Words = enabled != 0 }
func (r *Recognizer) SetPartialWords(enabled int)           { r.PartialWords = enabled != 0 }
func (r *Recognizer) SetNLSML(enabled int)                  { r.NLSML = enabled != 0 }
func (r *Recognizer) SetSpkModel(spk engine.SpkModelHandle) { r.Spk = spk != nil }
func (r *Recognizer) SetGrm(grammar string)                 { r.Grammar = grammar }

func (r *Recognizer) AcceptWaveform(buf []byte) int {
	r.Accepted++
	if r.FailNext > 0 {
		r.FailNext--
		return -1
	}

	n := len(buf) / 2
	start := float64(r.samples) / r.sampleRate
	r.samples += n
	end := float64(r.samples) / r.sampleRate

	if silent(buf) {
		if len(r.current) == 0 {
			return 0
		}
		r.last = r.current
		r.current = nil
		return 1
	}

	r.current = append(r.current, word{Word: r.backend.word(), Start: start, End: end, Conf: 1})
	return 0
}

func (r *Recognizer) Result() string {
	words := r.last
	r.last = nil
	return r.render(words)
}

func (r *Recognizer) PartialResult() string {
	if r.Garbage != "" {
		return r.Garbage
	}
	out := map[string]any{"partial": joinWords(r.current)}
	if r.PartialWords && len(r.current) > 0 {
		out["partial_result"] = r.current
	}
	return marshal(out)
}

func (r *Recognizer) FinalResult() string {
	words := append(r.last, r.current...)
	r.last = nil
	r.current = nil
	return r.render(words)
}

func (r *Recognizer) Reset() {
	r.current = nil
	r.last = nil
}

func (r *Recognizer) Free() {
	r.backend.mu.Lock()
	defer r.backend.mu.Unlock()

	if r.freed {
		panic("recognizer freed twice")
	}
	r.freed = true
	r.backend.recsFreed++
}

func (r *Recognizer) render(words []word) string {
	if r.Garbage != "" {
		return r.Garbage
	}
	text := joinWords(words)

	if r.NLSML {
		return fmt.Sprintf(`<?xml version="1.0"?><result><interpretation><input mode="speech">%s</input></interpretation></result>`, text)
	}
	if r.MaxAlternatives > 0 {
		return marshal(map[string]any{
			"alternatives": []map[string]any{{"text": text, "confidence": 100.0}},
		})
	}

	out := map[string]any{"text": text}
	if r.Words && len(words) > 0 {
		out["result"] = words
	}
	if r.Spk && len(words) > 0 {
		out["spk"] = []float64{0.1, -0.2, 0.3}
		out["spk_frames"] = len(words) * 10
	}
	return marshal(out)
}

func joinWords(words []word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}

func silent(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
