// Package audio читает кадры PCM16 с микрофона через PortAudio.
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"voskstream/internal/pcm"
)

const (
	// SampleRate - частота дискретизации по умолчанию.
	SampleRate = 16000
	// Channels - количество каналов (mono).
	Channels = 1
	// FramesPerBuffer - сэмплов в одном кадре по умолчанию.
	FramesPerBuffer = 1024
)

var errNotOpen = errors.New("устройство не открыто")

// Device - микрофон по умолчанию. Реализует capture.Source.
type Device struct {
	mu        sync.Mutex
	frames    func() int
	stream    *portaudio.Stream
	buffer    []int16
	out       []byte
	overflows int
	log       logrus.FieldLogger
}

// NewDevice создаёт устройство. frames читается при каждом Open,
// nil или нулевое значение заменяется на FramesPerBuffer.
func NewDevice(frames func() int, log logrus.FieldLogger) *Device {
	return &Device{frames: frames, log: log}
}

// Open инициализирует PortAudio и запускает поток записи
// с частотой распознавателя.
func (d *Device) Open(sampleRate int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream != nil {
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	frames := FramesPerBuffer
	if d.frames != nil {
		if n := d.frames(); n > 0 {
			frames = n
		}
	}
	d.buffer = make([]int16, frames)
	d.out = make([]byte, frames*pcm.BytesPerSample)

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("инициализация PortAudio: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		Channels,            // input channels
		0,                   // output channels
		float64(sampleRate), // sample rate
		frames,              // frames per buffer
		d.buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("открытие микрофона: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("запуск записи: %w", err)
	}

	d.stream = stream
	d.overflows = 0
	d.log.WithFields(logrus.Fields{"sample_rate": sampleRate, "frames": frames}).Debug("Микрофон открыт")
	return nil
}

// ReadFrame блокируется до заполнения одного кадра.
// Возвращённый срез действителен до следующего вызова.
func (d *Device) ReadFrame() ([]byte, error) {
	d.mu.Lock()
	stream, buffer, out := d.stream, d.buffer, d.out
	d.mu.Unlock()

	if stream == nil {
		return nil, errNotOpen
	}

	if err := stream.Read(); err != nil {
		// Переполнение входного буфера - потеря части звука, не отказ устройства
		if !errors.Is(err, portaudio.InputOverflowed) {
			return nil, err
		}
		d.overflows++
		d.log.WithField("count", d.overflows).Debug("Переполнение буфера микрофона")
	}

	return pcm.Encode(out, buffer), nil
}

// Close останавливает поток и освобождает PortAudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stream == nil {
		return nil
	}
	stream := d.stream
	d.stream = nil

	err := errors.Join(stream.Stop(), stream.Close(), portaudio.Terminate())
	d.log.Debug("Микрофон закрыт")
	return err
}
