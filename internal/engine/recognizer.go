package engine

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Recognizer - потоковый распознаватель, привязанный к одной модели.
// Все вызовы сериализуются: нативный слой не реентерабелен.
type Recognizer struct {
	mu         sync.Mutex
	handle     RecognizerHandle
	model      *Model
	spk        *SpeakerModel
	sampleRate float64
	fed        bool // был AcceptWaveform после создания или Reset
	log        logrus.FieldLogger
}

// SampleRate возвращает частоту дискретизации распознавателя.
func (r *Recognizer) SampleRate() float64 {
	return r.sampleRate
}

// Model возвращает модель распознавателя.
func (r *Recognizer) Model() *Model {
	return r.model
}

// AcceptWaveform передаёт PCM16 mono данные в декодер.
func (r *Recognizer) AcceptWaveform(buf []byte) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return StatusPending, ErrClosed
	}
	// Нечётная длина не может быть последовательностью 16-битных сэмплов
	if len(buf)%2 != 0 {
		return StatusPending, &ProcessingError{Status: -1, Size: len(buf)}
	}

	r.fed = true
	res := r.handle.AcceptWaveform(buf)
	if res < 0 {
		return StatusPending, &ProcessingError{Status: res, Size: len(buf)}
	}
	if res > 0 {
		return StatusFinal, nil
	}
	return StatusPending, nil
}

// Result возвращает JSON результата завершённой фразы.
func (r *Recognizer) Result() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return "", ErrClosed
	}
	return r.handle.Result(), nil
}

// PartialResult возвращает JSON промежуточного результата.
func (r *Recognizer) PartialResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return "", ErrClosed
	}
	return r.handle.PartialResult(), nil
}

// FinalResult завершает текущую фразу и возвращает её JSON.
func (r *Recognizer) FinalResult() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return "", ErrClosed
	}
	return r.handle.FinalResult(), nil
}

// Reset сбрасывает состояние декодера. Дескрипторы остаются валидными.
func (r *Recognizer) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return ErrClosed
	}
	r.handle.Reset()
	r.fed = false
	return nil
}

// SetMaxAlternatives задаёт число альтернатив в результате.
func (r *Recognizer) SetMaxAlternatives(n int) {
	r.configure("max_alternatives", func(h RecognizerHandle) { h.SetMaxAlternatives(n) })
}

// SetWords включает тайминги слов в результате.
func (r *Recognizer) SetWords(enabled bool) {
	r.configure("words", func(h RecognizerHandle) { h.SetWords(boolToInt(enabled)) })
}

// SetPartialWords включает тайминги слов в промежуточном результате.
func (r *Recognizer) SetPartialWords(enabled bool) {
	r.configure("partial_words", func(h RecognizerHandle) { h.SetPartialWords(boolToInt(enabled)) })
}

// SetNLSML переключает вывод результата в формат NLSML.
func (r *Recognizer) SetNLSML(enabled bool) {
	r.configure("nlsml", func(h RecognizerHandle) { h.SetNLSML(boolToInt(enabled)) })
}

// SetGrammar заменяет грамматику распознавателя.
func (r *Recognizer) SetGrammar(grammar string) {
	r.configure("grammar", func(h RecognizerHandle) { h.SetGrm(grammar) })
}

// SetSpkModel подключает модель диктора.
func (r *Recognizer) SetSpkModel(spk *SpeakerModel) {
	if spk == nil {
		return
	}
	sh, err := spk.acquire()
	if err != nil {
		r.log.WithError(err).Warn("Модель диктора не подключена")
		return
	}

	r.mu.Lock()
	if r.handle == nil {
		r.mu.Unlock()
		spk.release()
		return
	}
	if r.fed {
		r.log.WithField("option", "spk_model").Warn("Настройка изменена во время потока, поведение не определено до Reset")
	}
	r.handle.SetSpkModel(sh)
	old := r.spk
	r.spk = spk
	r.mu.Unlock()

	if old != nil {
		old.release()
	}
}

func (r *Recognizer) configure(option string, apply func(RecognizerHandle)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return
	}
	if r.fed {
		r.log.WithField("option", option).Warn("Настройка изменена во время потока, поведение не определено до Reset")
	}
	apply(r.handle)
}

// Free освобождает распознаватель и отпускает модель. Повторный вызов ничего не делает.
func (r *Recognizer) Free() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.handle == nil {
		return
	}
	r.handle.Free()
	r.handle = nil

	if r.spk != nil {
		r.spk.release()
	}
	r.model.release()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
