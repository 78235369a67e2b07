package engine

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Model - загруженная модель движка.
type Model struct {
	mu     sync.Mutex
	path   string
	handle ModelHandle
	refs   int
	log    logrus.FieldLogger
}

// Path возвращает путь, из которого загружена модель.
func (m *Model) Path() string {
	return m.path
}

// FindWord возвращает индекс слова в словаре модели или -1.
func (m *Model) FindWord(word string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return -1
	}
	return m.handle.FindWord(word)
}

// Refs возвращает число распознавателей, ссылающихся на модель.
func (m *Model) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}

// Free освобождает модель. Повторный вызов ничего не делает.
// Пока модель используется распознавателями, возвращает ErrModelInUse.
func (m *Model) Free() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil
	}
	if m.refs > 0 {
		return fmt.Errorf("%w: %d распознавателей", ErrModelInUse, m.refs)
	}

	m.handle.Free()
	m.handle = nil
	m.log.WithField("model", m.path).Debug("Модель освобождена")
	return nil
}

func (m *Model) acquire() (ModelHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle == nil {
		return nil, fmt.Errorf("модель %s: %w", m.path, ErrClosed)
	}
	m.refs++
	return m.handle, nil
}

func (m *Model) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs > 0 {
		m.refs--
	}
}

// SpeakerModel - модель диктора для распознавания говорящего.
type SpeakerModel struct {
	mu     sync.Mutex
	path   string
	handle SpkModelHandle
	refs   int
}

// Path возвращает путь модели диктора.
func (s *SpeakerModel) Path() string {
	return s.path
}

// Free освобождает модель диктора. Повторный вызов ничего не делает.
func (s *SpeakerModel) Free() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return nil
	}
	if s.refs > 0 {
		return fmt.Errorf("%w: %d распознавателей", ErrModelInUse, s.refs)
	}

	s.handle.Free()
	s.handle = nil
	return nil
}

func (s *SpeakerModel) acquire() (SpkModelHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return nil, fmt.Errorf("модель диктора %s: %w", s.path, ErrClosed)
	}
	s.refs++
	return s.handle, nil
}

func (s *SpeakerModel) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs > 0 {
		s.refs--
	}
}
